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

// Package pdfmerge assembles a new PDF file from pages of existing files.
//
// A [Session] copies pages, together with all objects reachable from them,
// into a single output file.  Each source file keeps its own translation
// table, so that objects shared between pages of the same source are
// written only once:
//
//	s, err := pdfmerge.Create("out.pdf", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, fname := range []string{"a.pdf", "b.pdf"} {
//	    err = s.AddFile(fname)
//	    if err != nil {
//	        s.Abort()
//	        log.Fatal(err)
//	    }
//	}
//	err = s.Close()
//
// All copied pages become children of a single new page tree root.  The
// interactive form (/AcroForm) and the output intents of the first source
// which provides them are kept, later ones are ignored.
package pdfmerge
