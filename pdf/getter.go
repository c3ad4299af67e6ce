// seehuhn.de/go/pdfmerge - merging and copying PDF files
// Copyright (C) 2025  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pdf

import (
	"fmt"
	"io"
)

// Getter represents a PDF file opened for reading.
//
// Get returns the object stored under the given reference.  If the
// reference does not correspond to an object in the file, a
// [MalformedFileError] is returned.  Stream objects returned by Get must
// have an unread R.
type Getter interface {
	GetMeta() *MetaInfo
	Get(ref Reference) (Object, error)
}

// Putter represents a PDF file opened for writing.
type Putter interface {
	Alloc() Reference
	Put(ref Reference, obj Object) error
	Free(ref Reference)
}

// maxRefChain limits the length of reference chains followed by Resolve.
const maxRefChain = 16

// Resolve resolves references to indirect objects.
//
// If obj is a [Reference], the function reads the corresponding object from
// the file and returns the result.  Chains of references are followed.
// If obj is not a [Reference], it is returned unchanged.
func Resolve(r Getter, obj Object) (Object, error) {
	for i := 0; i < maxRefChain; i++ {
		ref, isRef := obj.(Reference)
		if !isRef {
			return obj, nil
		}
		var err error
		obj, err = r.Get(ref)
		if err != nil {
			return nil, err
		}
	}
	return nil, Errorf("too many levels of indirection")
}

// GetDict resolves references to indirect objects and makes sure the
// resulting object is a dictionary.  The value nil is returned unchanged.
func GetDict(r Getter, obj Object) (Dict, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case Dict:
		return x, nil
	default:
		return nil, Errorf("expected Dict but got %T", obj)
	}
}

// GetArray resolves references to indirect objects and makes sure the
// resulting object is an array.  The value nil is returned unchanged.
func GetArray(r Getter, obj Object) (Array, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case Array:
		return x, nil
	default:
		return nil, Errorf("expected Array but got %T", obj)
	}
}

// GetName resolves references to indirect objects and makes sure the
// resulting object is a name.  The value nil is converted to "".
func GetName(r Getter, obj Object) (Name, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return "", err
	}
	switch x := obj.(type) {
	case nil:
		return "", nil
	case Name:
		return x, nil
	default:
		return "", Errorf("expected Name but got %T", obj)
	}
}

// GetInteger resolves references to indirect objects and makes sure the
// resulting object is an integer.  The value nil is converted to 0.
func GetInteger(r Getter, obj Object) (Integer, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return 0, err
	}
	switch x := obj.(type) {
	case nil:
		return 0, nil
	case Integer:
		return x, nil
	case Real:
		// some writers use reals where integers are required
		if x == Real(Integer(x)) {
			return Integer(x), nil
		}
	}
	return 0, Errorf("expected Integer but got %T", obj)
}

// GetNumber resolves references to indirect objects and makes sure the
// resulting object is an integer or a real number.
func GetNumber(r Getter, obj Object) (float64, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return 0, err
	}
	switch x := obj.(type) {
	case Integer:
		return float64(x), nil
	case Real:
		return float64(x), nil
	default:
		return 0, Errorf("expected number but got %T", obj)
	}
}

// GetString resolves references to indirect objects and makes sure the
// resulting object is a string.  The value nil is returned unchanged.
func GetString(r Getter, obj Object) (String, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case String:
		return x, nil
	default:
		return nil, Errorf("expected String but got %T", obj)
	}
}

// GetStream resolves references to indirect objects and makes sure the
// resulting object is a stream.  The value nil is returned unchanged.
func GetStream(r Getter, obj Object) (*Stream, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case *Stream:
		return x, nil
	default:
		return nil, Errorf("expected Stream but got %T", obj)
	}
}

// ReadAll reads the raw data of a stream, without applying any filters.
func ReadAll(stm *Stream) ([]byte, error) {
	if stm.R == nil {
		return nil, nil
	}
	data, err := io.ReadAll(stm.R)
	if err != nil {
		return nil, fmt.Errorf("reading stream data: %w", err)
	}
	return data, nil
}
