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

package pdfmerge

import (
	"errors"
	"fmt"
)

// PageError is returned when a page cannot be added to the output.
// The session remains usable after such an error.
type PageError struct {
	// Source describes the source file.
	Source string

	// Page is the page number within the source, starting at 1.
	Page int

	Err error
}

func (err *PageError) Error() string {
	return fmt.Sprintf("%s: page %d: %v", err.Source, err.Page, err.Err)
}

func (err *PageError) Unwrap() error {
	return err.Err
}

var errClosed = errors.New("pdfmerge: session is closed")
