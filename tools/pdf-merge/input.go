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

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// input is one command line argument: a file name and an optional list of
// page ranges.
type input struct {
	fname  string
	ranges []pageRange
}

// pageRange is an inclusive range of page numbers.  A zero last page
// denotes the end of the document.
type pageRange struct {
	first, last int
}

// parseInput splits an argument of the form "file.pdf=1-3,5,7-" into the
// file name and the page ranges.
func parseInput(arg string) (*input, error) {
	fname, sel, hasRanges := strings.Cut(arg, "=")
	if fname == "" {
		return nil, fmt.Errorf("%q: missing file name", arg)
	}
	in := &input{fname: fname}
	if !hasRanges {
		return in, nil
	}

	for _, part := range strings.Split(sel, ",") {
		a, b, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(a)
		if err != nil || first < 1 {
			return nil, fmt.Errorf("%q: invalid page range %q", arg, part)
		}
		last := first
		if isRange {
			if b == "" {
				last = 0
			} else {
				last, err = strconv.Atoi(b)
				if err != nil || last < first {
					return nil, fmt.Errorf("%q: invalid page range %q", arg, part)
				}
			}
		}
		in.ranges = append(in.ranges, pageRange{first: first, last: last})
	}
	return in, nil
}

// pageList returns the selected page numbers for a document with n pages.
func (in *input) pageList(n int) ([]int, error) {
	if in.ranges == nil {
		pages := make([]int, n)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}

	var pages []int
	for _, r := range in.ranges {
		last := r.last
		if last == 0 {
			last = n
		}
		if r.first > n || last > n {
			return nil, fmt.Errorf("%s: page range %d-%d exceeds %d pages",
				in.fname, r.first, last, n)
		}
		for p := r.first; p <= last; p++ {
			pages = append(pages, p)
		}
	}
	return pages, nil
}
