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
)

// ascii85Decode decodes data encoded with the ASCII85Decode filter.
// Decoding stops at the end marker "~>".  A missing end marker is
// tolerated.
func ascii85Decode(data []byte) ([]byte, error) {
	res := make([]byte, 0, len(data)*4/5+4)

	var v uint32
	k := 0
loop:
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case isWhiteSpace(c):
			continue
		case c >= '!' && c < '!'+85:
			v = v*85 + uint32(c-'!')
			k++
		case c == 'z' && k == 0:
			res = append(res, 0, 0, 0, 0)
			continue
		case c == '~':
			if i+1 < len(data) && data[i+1] != '>' {
				return nil, errInvalidASCII85
			}
			break loop
		default:
			return nil, errInvalidASCII85
		}

		if k == 5 {
			res = append(res, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
			v = 0
			k = 0
		}
	}

	switch k {
	case 0:
		// pass
	case 1:
		return nil, errInvalidASCII85
	default:
		for i := k; i < 5; i++ {
			v = v*85 + 84
		}
		out := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
		res = append(res, out[:k-1]...)
	}
	return res, nil
}

// asciiHexDecode decodes data encoded with the ASCIIHexDecode filter.
// A final odd digit is completed with 0.
func asciiHexDecode(data []byte) ([]byte, error) {
	res := make([]byte, 0, len(data)/2+1)

	var hi byte
	odd := false
	for _, c := range data {
		if isWhiteSpace(c) {
			continue
		}
		if c == '>' {
			break
		}
		d, ok := hexDigit(c)
		if !ok {
			return nil, errInvalidASCIIHex
		}
		if odd {
			res = append(res, hi<<4|d)
		} else {
			hi = d
		}
		odd = !odd
	}
	if odd {
		res = append(res, hi<<4)
	}
	return res, nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isWhiteSpace(c byte) bool {
	switch c {
	case 0, 9, 10, 12, 13, 32:
		return true
	}
	return false
}

var (
	errInvalidASCII85 = &MalformedFileError{
		Err: errors.New("invalid ASCII85 data"),
	}
	errInvalidASCIIHex = &MalformedFileError{
		Err: errors.New("invalid ASCIIHex data"),
	}
)
