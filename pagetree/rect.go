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

package pagetree

import (
	"math"

	"seehuhn.de/go/geom/rect"

	"seehuhn.de/go/pdfmerge/pdf"
)

// GetRect decodes a PDF rectangle.  The corners are normalized, so that
// LLx <= URx and LLy <= URy.
func GetRect(r pdf.Getter, obj pdf.Object) (rect.Rect, error) {
	a, err := pdf.GetArray(r, obj)
	if err != nil {
		return rect.Rect{}, err
	}
	if len(a) != 4 {
		return rect.Rect{}, pdf.Errorf("invalid rectangle %s", pdf.Format(a))
	}

	var values [4]float64
	for i, obj := range a {
		values[i], err = pdf.GetNumber(r, obj)
		if err != nil {
			return rect.Rect{}, err
		}
	}
	return rect.Rect{
		LLx: math.Min(values[0], values[2]),
		LLy: math.Min(values[1], values[3]),
		URx: math.Max(values[0], values[2]),
		URy: math.Max(values[1], values[3]),
	}, nil
}

// RectArray converts a rectangle into a PDF array.  Integer coordinates are
// written as integers.
func RectArray(box rect.Rect) pdf.Array {
	res := make(pdf.Array, 0, 4)
	for _, x := range []float64{box.LLx, box.LLy, box.URx, box.URy} {
		if x == math.Trunc(x) && math.Abs(x) < 1<<31 {
			res = append(res, pdf.Integer(x))
		} else {
			res = append(res, pdf.Real(math.Round(100*x)/100))
		}
	}
	return res
}
