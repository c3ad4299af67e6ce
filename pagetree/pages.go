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

// Package pagetree locates pages in the page tree of a PDF file.
package pagetree

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/maps"

	"seehuhn.de/go/geom/rect"

	"seehuhn.de/go/pdfmerge/pdf"
)

// Page is a page of a PDF file, as found in the page tree.
type Page struct {
	// Ref is the reference of the page dictionary in the file.
	Ref pdf.Reference

	// Dict is a copy of the page dictionary.  Attributes inherited from
	// ancestor nodes of the page tree are stored in the dictionary itself.
	Dict pdf.Dict

	// MediaBox is the page's media box.
	MediaBox rect.Rect

	// DefaultMediaBox is set if neither the page nor any of its ancestors
	// specify a media box.  In this case MediaBox is set to US Letter size
	// and Dict contains a corresponding /MediaBox entry.
	DefaultMediaBox bool
}

// Letter is the media box used for pages which do not specify one.
var Letter = rect.Rect{LLx: 0, LLy: 0, URx: 612, URy: 792}

// inheritable lists the page attributes which can be specified on
// intermediate nodes of the page tree.
var inheritable = []pdf.Name{"Resources", "MediaBox", "CropBox", "Rotate"}

// NumPages returns the number of pages in the document.
func NumPages(r pdf.Getter) (int, error) {
	catalog := r.GetMeta().Catalog
	if catalog == nil || catalog.Pages == 0 {
		return 0, errInvalidPageTree
	}
	pageTreeNode, err := pdf.GetDict(r, catalog.Pages)
	if err != nil {
		return 0, err
	}

	count, err := pdf.GetInteger(r, pageTreeNode["Count"])
	if err != nil {
		return 0, err
	}
	if count < 0 || count > math.MaxInt32 {
		return 0, errInvalidPageTree
	}
	return int(count), nil
}

// GetPage returns the page with index pageNo.  Page indices start at 0.
//
// The /Count entries of intermediate nodes are used to skip subtrees, so
// that only the nodes on the path to the page are read.
func GetPage(r pdf.Getter, pageNo int) (*Page, error) {
	if pageNo < 0 {
		return nil, fmt.Errorf("invalid page number %d", pageNo)
	}
	catalog := r.GetMeta().Catalog
	if catalog == nil || catalog.Pages == 0 {
		return nil, errInvalidPageTree
	}

	inherited := pdf.Dict{}
	skip := pdf.Integer(pageNo)

	kids := pdf.Array{catalog.Pages}
	seen := map[pdf.Reference]bool{}
	for len(kids) > 0 {
		ref, isRef := kids[0].(pdf.Reference)
		kids = kids[1:]
		if !isRef {
			return nil, pdf.Errorf("page tree node is not an indirect object")
		}
		if seen[ref] {
			return nil, errInvalidPageTree
		}
		seen[ref] = true

		node, err := pdf.GetDict(r, ref)
		if err != nil {
			return nil, err
		}

		tp, err := nodeType(r, node)
		if err != nil {
			return nil, err
		}

		switch tp {
		case "Page":
			if skip > 0 {
				skip--
				continue
			}
			return newPage(r, ref, node, inherited)

		case "Pages":
			count, err := pdf.GetInteger(r, node["Count"])
			if err != nil {
				return nil, err
			}
			if count < 0 {
				return nil, errInvalidPageTree
			}
			if skip >= count {
				skip -= count
				continue
			}
			for _, name := range inheritable {
				if val, ok := node.Get(name); ok {
					inherited[name] = val
				}
			}
			kids, err = pdf.GetArray(r, node["Kids"])
			if err != nil {
				return nil, err
			}

		default:
			return nil, errInvalidPageTree
		}
	}

	return nil, fmt.Errorf("page %d not found", pageNo)
}

func newPage(r pdf.Getter, ref pdf.Reference, node, inherited pdf.Dict) (*Page, error) {
	dict := maps.Clone(node)
	dict["Type"] = pdf.Name("Page")
	for _, name := range inheritable {
		if _, ok := dict.Get(name); !ok {
			if val, ok := inherited[name]; ok {
				dict[name] = val
			}
		}
	}

	page := &Page{
		Ref:  ref,
		Dict: dict,
	}
	if mediaBox, ok := dict.Get("MediaBox"); ok {
		box, err := GetRect(r, mediaBox)
		if err != nil {
			return nil, pdf.Wrap(err, "MediaBox")
		}
		page.MediaBox = box
	} else {
		page.MediaBox = Letter
		page.DefaultMediaBox = true
		dict["MediaBox"] = RectArray(Letter)
	}
	return page, nil
}

// FindPages returns the references of all pages in the document,
// in page order.
func FindPages(r pdf.Getter) ([]pdf.Reference, error) {
	catalog := r.GetMeta().Catalog
	if catalog == nil || catalog.Pages == 0 {
		return nil, errInvalidPageTree
	}

	var res []pdf.Reference
	todo := []pdf.Reference{catalog.Pages}
	seen := map[pdf.Reference]bool{
		catalog.Pages: true,
	}
	for len(todo) > 0 {
		k := len(todo) - 1
		ref := todo[k]
		todo = todo[:k]

		node, err := pdf.GetDict(r, ref)
		if err != nil {
			return nil, err
		}
		tp, err := nodeType(r, node)
		if err != nil {
			return nil, err
		}
		switch tp {
		case "Page":
			res = append(res, ref)
		case "Pages":
			kids, err := pdf.GetArray(r, node["Kids"])
			if err != nil {
				return nil, err
			}
			for i := len(kids) - 1; i >= 0; i-- {
				kidRef, ok := kids[i].(pdf.Reference)
				if !ok {
					return nil, pdf.Errorf("page tree node is not an indirect object")
				}
				if seen[kidRef] {
					return nil, errInvalidPageTree
				}
				seen[kidRef] = true
				todo = append(todo, kidRef)
			}
		default:
			return nil, errInvalidPageTree
		}
	}

	return res, nil
}

func nodeType(r pdf.Getter, node pdf.Dict) (pdf.Name, error) {
	tp, err := pdf.GetName(r, node["Type"])
	if err != nil || tp != "" {
		return tp, err
	}
	// The type is required, but some writers omit it.
	if _, hasKids := node["Kids"]; hasKids {
		return "Pages", nil
	}
	return "Page", nil
}

var errInvalidPageTree = &pdf.MalformedFileError{
	Err: errors.New("invalid page tree"),
}
