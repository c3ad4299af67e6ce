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

// Package outline reads and writes PDF document outlines (bookmarks).
//
// Outline items refer to pages by their 0-based index in the document, so
// that an outline read from one file can be re-targeted to the pages of a
// merged file.
package outline

import (
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"seehuhn.de/go/pdfmerge/nametree"
	"seehuhn.de/go/pdfmerge/pagetree"
	"seehuhn.de/go/pdfmerge/pdf"
)

// PDF 2.0 sections: 12.3.3

// Outline represents the root of a document outline.
// Use [Read] to read an outline from a PDF file, or create a new outline
// and populate it using [Outline.AddItem].
type Outline struct {
	// Items contains the top-level outline items.
	Items []*Item
}

// Item represents an outline item.  Items form a tree via the Children field.
type Item struct {
	// Title is the text displayed for this outline item.
	Title string

	// Page is the 0-based index of the target page.  Items with a negative
	// or out-of-range page index have no destination.
	Page int

	// Dest (optional) selects the view of the target page.
	// If this is nil, the whole page is shown (/Fit).
	Dest *XYZ

	// Open indicates whether the children of the item are initially visible.
	Open bool

	// Bold (PDF 1.4) displays the item in bold.
	Bold bool

	// Italic (PDF 1.4) displays the item in italic.
	Italic bool

	// Color (PDF 1.4) is the RGB color of the item text.  Components must be
	// in the range 0.0 to 1.0.  The zero value gives black text.
	Color [3]float64

	// Children contains the child outline items.
	Children []*Item
}

// XYZ describes a /XYZ destination: the point (Left, Top) is placed in the
// upper-left corner of the window.  A Zoom value of 0 leaves the zoom
// factor unchanged.
type XYZ struct {
	Left, Top, Zoom float64
}

// AddItem appends a new top-level item with the given title and returns it.
func (o *Outline) AddItem(title string, page int) *Item {
	item := &Item{
		Title: title,
		Page:  page,
	}
	o.Items = append(o.Items, item)
	return item
}

// AddChild appends a new child item with the given title and returns it.
func (item *Item) AddChild(title string, page int) *Item {
	child := &Item{
		Title: title,
		Page:  page,
	}
	item.Children = append(item.Children, child)
	return child
}

// Shift adds offset to the page index of every item which has a
// destination.  This is used when the pages of a document are appended
// after offset other pages.
func (o *Outline) Shift(offset int) {
	if o == nil {
		return
	}
	var shift func(items []*Item)
	shift = func(items []*Item) {
		for _, item := range items {
			if item.Page >= 0 {
				item.Page += offset
			}
			shift(item.Children)
		}
	}
	shift(o.Items)
}

// Read reads the document outline from a PDF file.
// Returns nil if the document has no outline.
//
// Destinations which do not point to a page of r are read with page
// index -1.
func Read(r pdf.Getter) (*Outline, error) {
	meta := r.GetMeta()
	rootRef := meta.Catalog.Outlines
	if rootRef == 0 {
		return nil, nil
	}

	pageRefs, err := pagetree.FindPages(r)
	if err != nil {
		return nil, err
	}
	rd := &reader{
		r:     r,
		seen:  map[pdf.Reference]bool{rootRef: true},
		pages: make(map[pdf.Reference]int, len(pageRefs)),
	}
	for i, ref := range pageRefs {
		rd.pages[ref] = i
	}
	rd.dests, _ = pdf.GetDict(r, meta.Catalog.Extra["Dests"])
	if names, _ := pdf.GetDict(r, meta.Catalog.Extra["Names"]); names != nil {
		rd.destTree = names["Dests"]
	}

	rootDict, err := pdf.GetDict(r, rootRef)
	if err != nil {
		return nil, pdf.Wrap(err, "outline root")
	}

	firstRef, _ := rootDict["First"].(pdf.Reference)
	items, err := rd.readChildren(firstRef)
	if err != nil {
		return nil, err
	}

	return &Outline{Items: items}, nil
}

type reader struct {
	r     pdf.Getter
	seen  map[pdf.Reference]bool
	pages map[pdf.Reference]int

	dests    pdf.Dict   // PDF 1.1 named destinations
	destTree pdf.Object // name tree of named destinations
}

func (rd *reader) readChildren(ref pdf.Reference) ([]*Item, error) {
	var res []*Item
	for ref != 0 {
		item, dict, err := rd.readItem(ref)
		if err != nil {
			return nil, err
		}

		res = append(res, item)

		ref, _ = dict["Next"].(pdf.Reference)
	}
	return res, nil
}

func (rd *reader) readItem(ref pdf.Reference) (*Item, pdf.Dict, error) {
	if rd.seen[ref] {
		return nil, nil, pdf.Errorf("outline tree contains a loop")
	}
	rd.seen[ref] = true
	if len(rd.seen) > 65536 {
		return nil, nil, errors.New("outline too large")
	}

	dict, err := pdf.GetDict(rd.r, ref)
	if err != nil {
		return nil, nil, err
	}

	item := &Item{Page: -1}

	title, err := pdf.GetString(rd.r, dict["Title"])
	if err != nil {
		return nil, nil, pdf.Wrap(err, "/Title in outline")
	}
	item.Title = title.AsTextString()

	count, _ := pdf.GetInteger(rd.r, dict["Count"])
	item.Open = count > 0

	dest := dict["Dest"]
	if dest == nil {
		if a, _ := pdf.GetDict(rd.r, dict["A"]); a != nil {
			if s, _ := pdf.GetName(rd.r, a["S"]); s == "GoTo" {
				dest = a["D"]
			}
		}
	}
	if dest != nil {
		item.Page, item.Dest = rd.decodeDest(dest)
	}

	if cArr, _ := pdf.GetArray(rd.r, dict["C"]); len(cArr) == 3 {
		for i, c := range cArr {
			x, _ := pdf.GetNumber(rd.r, c)
			item.Color[i] = min(max(x, 0), 1)
		}
	}

	if f, _ := pdf.GetInteger(rd.r, dict["F"]); f != 0 {
		item.Italic = f&1 != 0
		item.Bold = f&2 != 0
	}

	firstRef, _ := dict["First"].(pdf.Reference)
	children, err := rd.readChildren(firstRef)
	if err != nil {
		return nil, nil, err
	}
	item.Children = children

	return item, dict, nil
}

// decodeDest interprets an explicit destination, or a named destination
// from the catalog's /Dests dictionary or the /Dests name tree.
// Destinations which cannot be mapped to a page give page index -1.
func (rd *reader) decodeDest(obj pdf.Object) (int, *XYZ) {
	obj, err := pdf.Resolve(rd.r, obj)
	if err != nil {
		return -1, nil
	}
	switch name := obj.(type) {
	case pdf.Name:
		if rd.dests != nil {
			obj, err = pdf.Resolve(rd.r, rd.dests[name])
		}
	case pdf.String:
		obj, err = nametree.Lookup(rd.r, rd.destTree, name)
		if err == nil {
			obj, err = pdf.Resolve(rd.r, obj)
		}
	}
	if err != nil {
		return -1, nil
	}
	if d, isDict := obj.(pdf.Dict); isDict {
		obj, err = pdf.Resolve(rd.r, d["D"])
		if err != nil {
			return -1, nil
		}
	}

	a, _ := obj.(pdf.Array)
	if len(a) < 2 {
		return -1, nil
	}
	pageRef, _ := a[0].(pdf.Reference)
	pageNo, ok := rd.pages[pageRef]
	if !ok {
		return -1, nil
	}

	tp, _ := pdf.GetName(rd.r, a[1])
	if tp != "XYZ" {
		return pageNo, nil
	}
	dest := &XYZ{}
	coords := []*float64{&dest.Left, &dest.Top, &dest.Zoom}
	for i, p := range coords {
		if 2+i < len(a) {
			*p, _ = pdf.GetNumber(rd.r, a[2+i])
		}
	}
	return pageNo, dest
}

// Write writes the outline to a PDF file and returns the reference of the
// outline root.  The page indices of the items refer to the page
// references in pages.  If the outline is empty, 0 is returned and
// nothing is written.
func (o *Outline) Write(w pdf.Putter, pages []pdf.Reference) (pdf.Reference, error) {
	if o == nil || len(o.Items) == 0 {
		return 0, nil
	}

	ww := &writer{
		w:     w,
		pages: pages,
		count: map[*Item]int{},
	}

	var rootCount int
	for _, item := range o.Items {
		rootCount += ww.getCount(item)
	}

	rootRef := w.Alloc()
	first, last := ww.allocEnds(len(o.Items))
	rootDict := pdf.Dict{
		"Type":  pdf.Name("Outlines"),
		"First": first,
		"Last":  last,
		"Count": pdf.Integer(rootCount),
	}
	err := w.Put(rootRef, rootDict)
	if err != nil {
		return 0, err
	}

	err = ww.writeChildren(rootRef, first, last, o.Items)
	if err != nil {
		return 0, err
	}
	return rootRef, nil
}

type writer struct {
	w     pdf.Putter
	pages []pdf.Reference
	count map[*Item]int
}

func (ww *writer) allocEnds(n int) (first, last pdf.Reference) {
	first = ww.w.Alloc()
	if n > 1 {
		last = ww.w.Alloc()
	} else {
		last = first
	}
	return first, last
}

// getCount computes the /Count values for item and its descendants.  The
// return value is the number of entries item contributes to the visible
// outline of its parent.
func (ww *writer) getCount(item *Item) int {
	if len(item.Children) == 0 {
		return 1
	}

	// count this item plus all visible descendants
	total := 1
	for _, child := range item.Children {
		total += ww.getCount(child)
	}

	descendants := total - 1
	if item.Open {
		ww.count[item] = descendants
		return total
	}
	ww.count[item] = -descendants
	return 1
}

func (ww *writer) writeChildren(parent, first, last pdf.Reference, items []*Item) error {
	refs := make([]pdf.Reference, len(items))
	for i := range items {
		if i == 0 {
			refs[i] = first
		} else if i == len(items)-1 {
			refs[i] = last
		} else {
			refs[i] = ww.w.Alloc()
		}
	}

	for i, item := range items {
		dict := pdf.Dict{
			"Parent": parent,
		}
		if i > 0 {
			dict["Prev"] = refs[i-1]
		}
		if i < len(items)-1 {
			dict["Next"] = refs[i+1]
		}
		err := ww.writeItem(refs[i], dict, item)
		if err != nil {
			return err
		}
	}
	return nil
}

func (ww *writer) writeItem(ref pdf.Reference, dict pdf.Dict, item *Item) error {
	dict["Title"] = pdf.TextString(norm.NFC.String(item.Title))

	if item.Page >= 0 && item.Page < len(ww.pages) {
		dest := pdf.Array{ww.pages[item.Page]}
		if item.Dest == nil {
			dest = append(dest, pdf.Name("Fit"))
		} else {
			var zoom pdf.Object
			if item.Dest.Zoom != 0 {
				zoom = pdf.Real(item.Dest.Zoom)
			}
			dest = append(dest, pdf.Name("XYZ"),
				pdf.Real(item.Dest.Left), pdf.Real(item.Dest.Top), zoom)
		}
		dict["Dest"] = dest
	}

	if item.Color != [3]float64{} {
		c := make(pdf.Array, 3)
		for i, x := range item.Color {
			if x < 0 || x > 1 {
				return fmt.Errorf("outline item color component %d out of range: %g", i, x)
			}
			c[i] = pdf.Real(x)
		}
		dict["C"] = c
	}

	var flags int
	if item.Italic {
		flags |= 1
	}
	if item.Bold {
		flags |= 2
	}
	if flags != 0 {
		dict["F"] = pdf.Integer(flags)
	}

	var first, last pdf.Reference
	if len(item.Children) > 0 {
		first, last = ww.allocEnds(len(item.Children))
		dict["First"] = first
		dict["Last"] = last
		dict["Count"] = pdf.Integer(ww.count[item])
	}

	err := ww.w.Put(ref, dict)
	if err != nil {
		return err
	}

	if len(item.Children) > 0 {
		return ww.writeChildren(ref, first, last, item.Children)
	}
	return nil
}
