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
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// The copy engine never needs to look inside content streams.  Decoding is
// only required for cross-reference streams, object streams, metadata
// streams and ICC profiles.

// Decode returns the decoded data of a stream.  The supported filters are
// FlateDecode (with or without PNG predictors), ASCII85Decode and
// ASCIIHexDecode.
func Decode(r Getter, stm *Stream) ([]byte, error) {
	raw, err := ReadAll(stm)
	if err != nil {
		return nil, err
	}

	filters, err := streamFilters(r, stm.Dict)
	if err != nil {
		return nil, err
	}
	data := raw
	for _, f := range filters {
		switch f.name {
		case "FlateDecode", "Fl":
			data, err = flateDecode(data, f.parms)
		case "ASCII85Decode", "A85":
			data, err = ascii85Decode(data)
		case "ASCIIHexDecode", "AHx":
			data, err = asciiHexDecode(data)
		default:
			err = fmt.Errorf("unsupported filter %q", f.name)
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

type filterInfo struct {
	name  Name
	parms Dict
}

func streamFilters(r Getter, dict Dict) ([]filterInfo, error) {
	filter, err := Resolve(r, dict["Filter"])
	if err != nil {
		return nil, err
	}
	parms, err := Resolve(r, dict["DecodeParms"])
	if err != nil {
		return nil, err
	}

	switch f := filter.(type) {
	case nil:
		return nil, nil
	case Name:
		pDict, _ := parms.(Dict)
		return []filterInfo{{name: f, parms: pDict}}, nil
	case Array:
		pa, _ := parms.(Array)
		var res []filterInfo
		for i, fi := range f {
			name, err := GetName(r, fi)
			if err != nil {
				return nil, err
			}
			var pDict Dict
			if i < len(pa) {
				pDict, _ = pa[i].(Dict)
			}
			res = append(res, filterInfo{name: name, parms: pDict})
		}
		return res, nil
	default:
		return nil, Errorf("invalid /Filter entry %s", Format(filter))
	}
}

func flateDecode(data []byte, parms Dict) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &MalformedFileError{Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &MalformedFileError{Err: err}
	}

	predictor := intParm(parms, "Predictor", 1)
	switch {
	case predictor == 1:
		return out, nil
	case predictor >= 10:
		colors := intParm(parms, "Colors", 1)
		bpc := intParm(parms, "BitsPerComponent", 8)
		columns := intParm(parms, "Columns", 1)
		return pngUnpredict(out, colors, bpc, columns)
	default:
		return nil, fmt.Errorf("unsupported predictor %d", predictor)
	}
}

func intParm(parms Dict, key Name, def int) int {
	if x, ok := parms[key].(Integer); ok && x > 0 && x < 1<<20 {
		return int(x)
	}
	return def
}

// pngUnpredict reverses the PNG predictors, as used by FlateDecode with
// /Predictor >= 10.  Every row starts with a byte giving the predictor type.
func pngUnpredict(data []byte, colors, bpc, columns int) ([]byte, error) {
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if rowLen <= 0 {
		return nil, errors.New("invalid predictor parameters")
	}

	prev := make([]byte, rowLen)
	res := make([]byte, 0, len(data)/(rowLen+1)*rowLen)
	for len(data) > 0 {
		if len(data) < rowLen+1 {
			return nil, &MalformedFileError{Err: errors.New("truncated predictor row")}
		}
		tp := data[0]
		row := append([]byte{}, data[1:rowLen+1]...)
		data = data[rowLen+1:]

		for i := range row {
			var left, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch tp {
			case 0:
				// none
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, &MalformedFileError{
					Err: fmt.Errorf("invalid PNG predictor type %d", tp),
				}
			}
		}
		res = append(res, row...)
		prev = row
	}
	return res, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// flateEncode compresses data using the zlib format.
func flateEncode(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw, err := zlib.NewWriterLevel(buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	_, err = zw.Write(data)
	if err != nil {
		return nil, err
	}
	err = zw.Close()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
