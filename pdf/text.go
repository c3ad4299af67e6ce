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
	"golang.org/x/text/encoding/unicode"
)

var utf16BOM = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

// TextString creates a String object using the "text string" encoding.
// Strings which only use printable ASCII characters are stored as they are,
// all other strings are stored as UTF-16BE with a byte order mark.
func TextString(s string) String {
	plain := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 0x20 && c != '\t' && c != '\n' && c != '\r') || c >= 0x7f {
			plain = false
			break
		}
	}
	if plain {
		return String(s)
	}

	buf, err := utf16BOM.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// invalid UTF-8 input: fall back to the raw bytes
		return String(s)
	}
	return String(buf)
}

// AsTextString interprets x as a PDF "text string" and returns
// the corresponding utf-8 encoded string.
//
// Strings without a UTF-16 byte order mark are interpreted as
// ISO 8859-1, which agrees with PDFDocEncoding for all printable
// characters apart from the range 0x80-0xA0.
func (x String) AsTextString() string {
	if len(x) >= 2 && x[0] == 0xFE && x[1] == 0xFF {
		buf, err := utf16BOM.NewDecoder().Bytes(x)
		if err == nil {
			return string(buf)
		}
	}

	rr := make([]rune, len(x))
	for i, c := range x {
		rr[i] = rune(c)
	}
	return string(rr)
}
