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

// Package nametree reads PDF name trees.
//
// Name trees map strings to PDF objects.  They are used, for example, for
// the named destinations in the /Dests entry of the document name
// dictionary.
package nametree

import (
	"errors"

	"seehuhn.de/go/pdfmerge/pdf"
)

// PDF 2.0 sections: 7.9.6

// ErrKeyNotFound is returned by Lookup if the key is not in the tree.
var ErrKeyNotFound = errors.New("key not found")

// Lookup returns the value stored under key in the name tree with the
// given root.  The value is returned unresolved.
func Lookup(r pdf.Getter, root pdf.Object, key pdf.String) (pdf.Object, error) {
	node, err := pdf.GetDict(r, root)
	if node == nil {
		if err == nil {
			err = ErrKeyNotFound
		}
		return nil, err
	}
	seen := map[pdf.Reference]bool{}
	if ref, ok := root.(pdf.Reference); ok {
		seen[ref] = true
	}
	return lookupInNode(r, node, key, seen)
}

func lookupInNode(r pdf.Getter, node pdf.Dict, key pdf.String, seen map[pdf.Reference]bool) (pdf.Object, error) {
	if names, ok := node["Names"]; ok {
		arr, err := pdf.GetArray(r, names)
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(arr); i += 2 {
			k, err := pdf.GetString(r, arr[i])
			if err != nil {
				continue
			}
			if string(k) == string(key) {
				return arr[i+1], nil
			}
		}
		return nil, ErrKeyNotFound
	}

	kids, err := pdf.GetArray(r, node["Kids"])
	if err != nil {
		return nil, err
	}
	for _, kid := range kids {
		if ref, ok := kid.(pdf.Reference); ok {
			if seen[ref] {
				return nil, errLoop
			}
			seen[ref] = true
		}
		child, _ := pdf.GetDict(r, kid)
		if child == nil {
			continue
		}

		limits, _ := pdf.GetArray(r, child["Limits"])
		if len(limits) == 2 {
			lo, err1 := pdf.GetString(r, limits[0])
			hi, err2 := pdf.GetString(r, limits[1])
			if err1 == nil && err2 == nil &&
				(string(key) < string(lo) || string(key) > string(hi)) {
				continue
			}
		}

		val, err := lookupInNode(r, child, key, seen)
		if err == ErrKeyNotFound {
			continue
		}
		return val, err
	}
	return nil, ErrKeyNotFound
}

// Size returns the number of entries in the name tree.
func Size(r pdf.Getter, root pdf.Object) (int, error) {
	node, err := pdf.GetDict(r, root)
	if node == nil {
		return 0, err
	}
	seen := map[pdf.Reference]bool{}
	if ref, ok := root.(pdf.Reference); ok {
		seen[ref] = true
	}
	return sizeNode(r, node, seen)
}

func sizeNode(r pdf.Getter, node pdf.Dict, seen map[pdf.Reference]bool) (int, error) {
	if names, ok := node["Names"]; ok {
		arr, err := pdf.GetArray(r, names)
		if err != nil {
			return 0, err
		}
		return len(arr) / 2, nil
	}

	kids, err := pdf.GetArray(r, node["Kids"])
	if err != nil {
		return 0, err
	}
	total := 0
	for _, kid := range kids {
		if ref, ok := kid.(pdf.Reference); ok {
			if seen[ref] {
				return 0, errLoop
			}
			seen[ref] = true
		}
		child, err := pdf.GetDict(r, kid)
		if err != nil {
			return 0, err
		}
		n, err := sizeNode(r, child, seen)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

var errLoop = &pdf.MalformedFileError{
	Err: errors.New("name tree contains a loop"),
}
