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
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
)

// Object is a value which can appear in a PDF file.  The merge engine only
// needs the nine basic object types: [Array], [Bool], [Dict], [Integer],
// [Name], [Real], [Reference], [*Stream] and [String].  PDF null is the Go
// value nil.
type Object interface {
	// PDF writes the object in PDF syntax to w.
	PDF(w io.Writer) error
}

// Bool is a PDF boolean.
type Bool bool

// PDF implements the [Object] interface.
func (x Bool) PDF(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatBool(bool(x)))
	return err
}

// Integer is a PDF integer.
type Integer int64

// PDF implements the [Object] interface.
func (x Integer) PDF(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(x), 10))
	return err
}

// Real is a PDF real number.  NaN and infinities have no PDF form.
type Real float64

// PDF implements the [Object] interface.
func (x Real) PDF(w io.Writer) error {
	f := float64(x)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("cannot write real number %g", f)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += "."
	}
	_, err := io.WriteString(w, s)
	return err
}

// String holds the bytes of a PDF string.  Text strings copied from a
// source file keep their original encoding.
type String []byte

// PDF implements the [Object] interface.
//
// Mostly printable strings are written in literal form, everything else as
// a hex string.
func (x String) PDF(w io.Writer) error {
	balanced := parensBalanced(x)
	escapes := 0
	for _, c := range x {
		if needsEscape(c, balanced) {
			escapes++
		}
	}
	if 3*escapes > len(x) {
		_, err := fmt.Fprintf(w, "<%x>", []byte(x))
		return err
	}

	buf := make([]byte, 0, len(x)+escapes+2)
	buf = append(buf, '(')
	for _, c := range x {
		if !needsEscape(c, balanced) {
			buf = append(buf, c)
			continue
		}
		switch c {
		case '\r':
			buf = append(buf, `\r`...)
		case '\n':
			buf = append(buf, `\n`...)
		case '\t':
			buf = append(buf, `\t`...)
		case '\b':
			buf = append(buf, `\b`...)
		case '\f':
			buf = append(buf, `\f`...)
		case '(', ')', '\\':
			buf = append(buf, '\\', c)
		default:
			buf = fmt.Appendf(buf, `\%03o`, c)
		}
	}
	buf = append(buf, ')')
	_, err := w.Write(buf)
	return err
}

// parensBalanced reports whether every ')' in s closes an earlier '('.
// Balanced parentheses may appear unescaped in a literal string.
func parensBalanced(s []byte) bool {
	depth := 0
	for _, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func needsEscape(c byte, balanced bool) bool {
	if c < 32 || c >= 127 || c == '\\' {
		return true
	}
	return !balanced && (c == '(' || c == ')')
}

// Name is a PDF name, stored without the leading slash.
type Name string

// PDF implements the [Object] interface.
func (x Name) PDF(w io.Writer) error {
	buf := make([]byte, 0, len(x)+1)
	buf = append(buf, '/')
	for i := 0; i < len(x); i++ {
		c := x[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter[c] {
			buf = fmt.Appendf(buf, "#%02x", c)
		} else {
			buf = append(buf, c)
		}
	}
	_, err := w.Write(buf)
	return err
}

// Array is a PDF array.
type Array []Object

func (x Array) String() string {
	return "<Array, " + strconv.Itoa(len(x)) + " elements>"
}

// PDF implements the [Object] interface.
func (x Array) PDF(w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, val := range x {
		if i > 0 {
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if err := writeObject(w, val); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

// Dict is a PDF dictionary.
//
// The order of keys carries no meaning.  When a dictionary is written, the
// keys are sorted so that the output is deterministic.
type Dict map[Name]Object

func (x Dict) String() string {
	res := []string{}
	tp, ok := x["Type"].(Name)
	if ok {
		res = append(res, string(tp)+" Dict")
	} else {
		res = append(res, "Dict")
	}
	if len(x) != 1 {
		res = append(res, strconv.FormatInt(int64(len(x)), 10)+" entries")
	} else {
		res = append(res, "1 entry")
	}
	return "<" + strings.Join(res, ", ") + ">"
}

// Get returns the value stored under key, and whether the key was present.
func (x Dict) Get(key Name) (Object, bool) {
	val, ok := x[key]
	return val, ok && val != nil
}

// Clone returns a shallow copy of the dictionary.
func (x Dict) Clone() Dict {
	if x == nil {
		return nil
	}
	return maps.Clone(x)
}

// PDF implements the [Object] interface.
func (x Dict) PDF(w io.Writer) error {
	if x == nil {
		_, err := w.Write([]byte("null"))
		return err
	}

	keys := make([]Name, 0, len(x))
	for key, val := range x {
		if val == nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i int, j int) bool {
		return keys[i] < keys[j]
	})

	_, err := w.Write([]byte("<<"))
	if err != nil {
		return err
	}
	for _, name := range keys {
		val := x[name]

		_, err = w.Write([]byte("\n"))
		if err != nil {
			return err
		}
		err = name.PDF(w)
		if err != nil {
			return err
		}
		_, err = w.Write([]byte(" "))
		if err != nil {
			return err
		}
		err = val.PDF(w)
		if err != nil {
			return err
		}
	}
	_, err = w.Write([]byte("\n>>"))
	return err
}

// Stream is a PDF stream: a dictionary followed by binary data.
//
// R yields the raw stream data, i.e. the data with all filters listed in
// the stream dictionary still applied.
type Stream struct {
	Dict
	R io.Reader
}

func (x *Stream) String() string {
	res := []string{}
	tp, ok := x.Dict["Type"].(Name)
	if ok {
		res = append(res, string(tp)+" Stream")
	} else {
		res = append(res, "Stream")
	}
	length, ok := x.Dict["Length"].(Integer)
	if ok {
		res = append(res, strconv.FormatInt(int64(length), 10)+" bytes")
	}
	switch filter := x.Dict["Filter"].(type) {
	case Name:
		res = append(res, string(filter))
	case Array:
		for _, f := range filter {
			if name, ok := f.(Name); ok {
				res = append(res, string(name))
			}
		}
	}
	return "<" + strings.Join(res, ", ") + ">"
}

// PDF implements the [Object] interface.
//
// The /Length entry of the dictionary is replaced by the actual number of
// bytes read from R.
func (x *Stream) PDF(w io.Writer) error {
	var data []byte
	if x.R != nil {
		var err error
		data, err = io.ReadAll(x.R)
		if err != nil {
			return err
		}
	}

	dict := x.Dict.Clone()
	if dict == nil {
		dict = Dict{}
	}
	dict["Length"] = Integer(len(data))
	err := dict.PDF(w)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte("\nstream\n"))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte("\nendstream"))
	return err
}

// Reference represents a reference to an indirect object in a PDF file.
// The lower 32 bits represent the object number, the next 16 bits the
// generation number.
type Reference uint64

// NewReference returns the reference for the given object number and
// generation number.
func NewReference(number uint32, generation uint16) Reference {
	return Reference(uint64(number) | uint64(generation)<<32)
}

// Number returns the object number of the reference.
func (x Reference) Number() uint32 {
	return uint32(x)
}

// Generation returns the generation number of the reference.
func (x Reference) Generation() uint16 {
	return uint16(x >> 32)
}

func (x Reference) String() string {
	res := []string{
		"obj_",
		strconv.FormatInt(int64(x.Number()), 10),
	}
	gen := x.Generation()
	if gen > 0 {
		res = append(res, "@", strconv.FormatUint(uint64(gen), 10))
	}
	return strings.Join(res, "")
}

// PDF implements the [Object] interface.
func (x Reference) PDF(w io.Writer) error {
	if x>>48 != 0 {
		return fmt.Errorf("invalid reference: 0x%016x", uint64(x))
	}

	_, err := fmt.Fprintf(w, "%d %d R", x.Number(), x.Generation())
	return err
}

// Keyword is a bare keyword found in a PDF file which does not denote any
// of the basic object types.  Keywords cannot be written to PDF files;
// they only appear in objects read from malformed files.
type Keyword string

// PDF implements the [Object] interface.
func (x Keyword) PDF(w io.Writer) error {
	return &UnsupportedError{Obj: x}
}

// IsNative reports whether obj is one of the basic PDF object types,
// or nil.
func IsNative(obj Object) bool {
	switch obj.(type) {
	case nil, Bool, Integer, Real, Name, String, Array, Dict, *Stream, Reference:
		return true
	default:
		return false
	}
}

func writeObject(w io.Writer, obj Object) error {
	if obj == nil {
		_, err := w.Write([]byte("null"))
		return err
	}
	return obj.PDF(w)
}

// Format formats a PDF object as a string, in the same way as
// it would be written to a PDF file.
func Format(obj Object) string {
	buf := &bytes.Buffer{}
	err := writeObject(buf, obj)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return buf.String()
}
