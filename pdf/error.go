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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errVersion       = errors.New("unsupported PDF version")
	errMissingObject = errors.New("object not found")
)

// MalformedFileError indicates that a PDF file could not be parsed, or that
// the file refers to objects which do not exist.
type MalformedFileError struct {
	Pos int64
	Err error
	Loc []string
}

func (err *MalformedFileError) Error() string {
	parts := make([]string, 0, len(err.Loc)+2)
	parts = append(parts, "not a valid PDF file")
	for i := len(err.Loc) - 1; i >= 0; i-- {
		parts = append(parts, err.Loc[i])
	}
	if err.Err != nil {
		parts = append(parts, err.Err.Error())
	}
	msg := strings.Join(parts, ": ")
	if err.Pos > 0 {
		msg += " (at byte " + strconv.FormatInt(err.Pos, 10) + ")"
	}
	return msg
}

func (err *MalformedFileError) Unwrap() error {
	return err.Err
}

// Errorf creates a new MalformedFileError with the given message.
func Errorf(format string, args ...any) error {
	return &MalformedFileError{Err: fmt.Errorf(format, args...)}
}

// Wrap adds location information to an error.  MalformedFileErrors keep
// their type, so that callers can still detect them using [errors.As].
func Wrap(err error, loc string) error {
	if err == nil {
		return nil
	}
	var mf *MalformedFileError
	if errors.As(err, &mf) {
		res := &MalformedFileError{
			Pos: mf.Pos,
			Err: mf.Err,
			Loc: append(append([]string{}, mf.Loc...), loc),
		}
		return res
	}
	return fmt.Errorf("%s: %w", loc, err)
}

// IsMalformed reports whether err is, or wraps, a MalformedFileError.
func IsMalformed(err error) bool {
	var mf *MalformedFileError
	return errors.As(err, &mf)
}

// DanglingReferenceError is returned when a PDF file is closed while some
// allocated object numbers were never bound to a value.
type DanglingReferenceError struct {
	Refs []Reference
}

func (err *DanglingReferenceError) Error() string {
	var names []string
	for i, ref := range err.Refs {
		if i >= 8 {
			names = append(names, "...")
			break
		}
		names = append(names, ref.String())
	}
	return fmt.Sprintf("%d dangling references: %s",
		len(err.Refs), strings.Join(names, ", "))
}

// UnsupportedError indicates that an object cannot be written to a PDF file.
type UnsupportedError struct {
	Obj Object
}

func (err *UnsupportedError) Error() string {
	return fmt.Sprintf("cannot write object of type %T to PDF file", err.Obj)
}
