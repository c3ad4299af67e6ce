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

package pdfcopy

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/pdfmerge/pdf"
)

// memOut records the objects written by a Copier.
type memOut struct {
	next    uint32
	objects map[pdf.Reference]pdf.Object
	data    map[pdf.Reference][]byte
	pending map[pdf.Reference]bool
	freed   map[pdf.Reference]bool
}

func newMemOut() *memOut {
	return &memOut{
		objects: map[pdf.Reference]pdf.Object{},
		data:    map[pdf.Reference][]byte{},
		pending: map[pdf.Reference]bool{},
		freed:   map[pdf.Reference]bool{},
	}
}

func (m *memOut) Alloc() pdf.Reference {
	m.next++
	ref := pdf.NewReference(m.next, 0)
	m.pending[ref] = true
	return ref
}

func (m *memOut) Put(ref pdf.Reference, obj pdf.Object) error {
	if !m.pending[ref] {
		return fmt.Errorf("%s not allocated", ref)
	}
	if stm, ok := obj.(*pdf.Stream); ok {
		body, err := pdf.ReadAll(stm)
		if err != nil {
			return err
		}
		m.data[ref] = body
	}
	delete(m.pending, ref)
	m.objects[ref] = obj
	return nil
}

func (m *memOut) Free(ref pdf.Reference) {
	if m.pending[ref] {
		delete(m.pending, ref)
		m.freed[ref] = true
	}
}

func (m *memOut) numStreams() int {
	n := 0
	for _, obj := range m.objects {
		if _, ok := obj.(*pdf.Stream); ok {
			n++
		}
	}
	return n
}

func mustAdd(t *testing.T, d *pdf.Data, obj pdf.Object) pdf.Reference {
	t.Helper()
	ref, err := d.Add(obj)
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

func imageStream(dict pdf.Dict, data string) *pdf.Stream {
	return &pdf.Stream{Dict: dict, R: strings.NewReader(data)}
}

func TestSharedObject(t *testing.T) {
	src := pdf.NewData(pdf.V1_7)
	img := mustAdd(t, src, imageStream(pdf.Dict{"Subtype": pdf.Name("Image")}, "pixels"))
	res := pdf.Dict{"XObject": pdf.Dict{"Im1": img}}
	page1 := pdf.Dict{"Type": pdf.Name("Page"), "Resources": res}
	page2 := pdf.Dict{"Type": pdf.Name("Page"), "Resources": res}
	ref1 := mustAdd(t, src, page1)
	ref2 := mustAdd(t, src, page2)

	out := newMemOut()
	root := out.Alloc()
	c := NewCopier(out, root, nil)

	dest1, err := c.CopyPage(src, ref1, page1)
	if err != nil {
		t.Fatal(err)
	}
	dest2, err := c.CopyPage(src, ref2, page2)
	if err != nil {
		t.Fatal(err)
	}

	img1 := out.objects[dest1].(pdf.Dict)["Resources"].(pdf.Dict)["XObject"].(pdf.Dict)["Im1"]
	img2 := out.objects[dest2].(pdf.Dict)["Resources"].(pdf.Dict)["XObject"].(pdf.Dict)["Im1"]
	if img1 != img2 {
		t.Errorf("shared image copied twice: %v != %v", img1, img2)
	}
	if n := out.numStreams(); n != 1 {
		t.Errorf("%d streams written, want 1", n)
	}

	again, err := c.CopyReference(src, img)
	if err != nil {
		t.Fatal(err)
	}
	if again != img1 {
		t.Errorf("re-copy gave %s, want %s", again, img1)
	}
	if got := c.Stats().Objects; got != 3 {
		t.Errorf("%d objects written, want 3", got)
	}
}

func TestCycle(t *testing.T) {
	src := pdf.NewData(pdf.V1_7)
	a := src.Alloc()
	b := src.Alloc()
	self := src.Alloc()
	for ref, obj := range map[pdf.Reference]pdf.Object{
		a:    pdf.Dict{"Next": b},
		b:    pdf.Dict{"Next": a, "List": pdf.Array{a, b}},
		self: pdf.Dict{"Self": self},
	} {
		err := src.Put(ref, obj)
		if err != nil {
			t.Fatal(err)
		}
	}

	out := newMemOut()
	c := NewCopier(out, 0, nil)

	destA, err := c.CopyReference(src, a)
	if err != nil {
		t.Fatal(err)
	}
	destB := out.objects[destA].(pdf.Dict)["Next"].(pdf.Reference)
	want := pdf.Dict{"Next": destA, "List": pdf.Array{destA, destB}}
	if d := cmp.Diff(want, out.objects[destB]); d != "" {
		t.Error(d)
	}
	if len(out.objects) != 2 {
		t.Errorf("%d objects written, want 2", len(out.objects))
	}

	destSelf, err := c.CopyReference(src, self)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(pdf.Dict{"Self": destSelf}, out.objects[destSelf]); d != "" {
		t.Error(d)
	}
	if len(out.pending) != 0 {
		t.Errorf("unbound references: %v", out.pending)
	}

	e, ok := c.Table(src).Lookup(a)
	if !ok || !e.Copied || e.Dest != destA {
		t.Errorf("wrong table entry %v", e)
	}
}

func TestPageParent(t *testing.T) {
	src := pdf.NewData(pdf.V1_7)
	pagesRef := src.Alloc()
	bead := mustAdd(t, src, pdf.Dict{"Type": pdf.Name("Bead"), "P": pagesRef})
	page := pdf.Dict{
		"Type":   pdf.Name("Page"),
		"Parent": pagesRef,
		"B":      pdf.Array{bead},
		"Rotate": pdf.Integer(90),
	}
	pageRef := mustAdd(t, src, page)
	err := src.Put(pagesRef, pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  pdf.Array{pageRef},
		"Count": pdf.Integer(1),
	})
	if err != nil {
		t.Fatal(err)
	}

	out := newMemOut()
	root := out.Alloc()
	c := NewCopier(out, root, nil)
	dest, err := c.CopyPage(src, pageRef, page)
	if err != nil {
		t.Fatal(err)
	}

	want := pdf.Dict{
		"Type":   pdf.Name("Page"),
		"Parent": root,
		"Rotate": pdf.Integer(90),
	}
	if d := cmp.Diff(want, out.objects[dest]); d != "" {
		t.Error(d)
	}
	if _, found := c.Table(src).Lookup(pagesRef); found {
		t.Error("source page tree was followed")
	}
	if _, found := c.Table(src).Lookup(bead); found {
		t.Error("/B entry was followed")
	}
}

func TestCopyPageFresh(t *testing.T) {
	src := pdf.NewData(pdf.V1_7)
	page := pdf.Dict{"Type": pdf.Name("Page")}
	pageRef := mustAdd(t, src, page)

	out := newMemOut()
	c := NewCopier(out, out.Alloc(), nil)
	first, err := c.CopyPage(src, pageRef, page)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.CopyPage(src, pageRef, page)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("page added twice shares one object")
	}
	e, _ := c.Table(src).Lookup(pageRef)
	if e.Dest != second {
		t.Errorf("table points to %s, want %s", e.Dest, second)
	}
}

func TestSmartCopy(t *testing.T) {
	srcA := pdf.NewData(pdf.V1_7)
	srcB := pdf.NewData(pdf.V1_7)
	imgA := mustAdd(t, srcA, imageStream(pdf.Dict{"Width": pdf.Integer(1)}, "identical"))
	imgB := mustAdd(t, srcB, imageStream(pdf.Dict{"Width": pdf.Integer(2)}, "identical"))
	imgC := mustAdd(t, srcB, imageStream(pdf.Dict{"Width": pdf.Integer(2)}, "identicaL"))

	out := newMemOut()
	c := NewCopier(out, 0, &Options{Smart: true})

	destA, err := c.CopyReference(srcA, imgA)
	if err != nil {
		t.Fatal(err)
	}
	destB, err := c.CopyReference(srcB, imgB)
	if err != nil {
		t.Fatal(err)
	}
	destC, err := c.CopyReference(srcB, imgC)
	if err != nil {
		t.Fatal(err)
	}

	if destA != destB {
		t.Errorf("identical streams not merged: %s != %s", destA, destB)
	}
	if destC == destA {
		t.Error("different streams were merged")
	}
	if n := out.numStreams(); n != 2 {
		t.Errorf("%d streams written, want 2", n)
	}
	// the dictionary of the first stream wins
	if w := out.objects[destA].(*pdf.Stream).Dict["Width"]; w != pdf.Integer(1) {
		t.Errorf("wrong stream dict, /Width = %v", w)
	}
	if !bytes.Equal(out.data[destA], []byte("identical")) {
		t.Errorf("wrong stream data %q", out.data[destA])
	}
	if len(out.pending) != 0 {
		t.Errorf("unbound references: %v", out.pending)
	}
	if len(out.freed) != 1 {
		t.Errorf("%d references freed, want 1", len(out.freed))
	}
	if s := c.Stats(); s.DedupHits != 1 || s.Streams != 2 {
		t.Errorf("wrong stats %+v", s)
	}

	e, ok := c.Table(srcB).Lookup(imgB)
	if !ok || e.Dest != destA || !e.Copied {
		t.Errorf("wrong table entry %+v", e)
	}
}

func TestNoDedupWithoutSmart(t *testing.T) {
	src := pdf.NewData(pdf.V1_7)
	img1 := mustAdd(t, src, imageStream(pdf.Dict{}, "same"))
	img2 := mustAdd(t, src, imageStream(pdf.Dict{}, "same"))

	out := newMemOut()
	c := NewCopier(out, 0, nil)
	dest1, err := c.CopyReference(src, img1)
	if err != nil {
		t.Fatal(err)
	}
	dest2, err := c.CopyReference(src, img2)
	if err != nil {
		t.Fatal(err)
	}
	if dest1 == dest2 {
		t.Error("streams merged without Smart option")
	}
	if !bytes.Equal(out.data[dest1], out.data[dest2]) {
		t.Error("stream data differs")
	}
}

func TestMissingObject(t *testing.T) {
	src := pdf.NewData(pdf.V1_7)
	font := mustAdd(t, src, pdf.Dict{"Type": pdf.Name("Font")})
	page := pdf.Dict{
		"Type": pdf.Name("Page"),
		"Resources": pdf.Dict{
			"Font":    pdf.Dict{"F1": font},
			"XObject": pdf.Dict{"X": pdf.NewReference(99, 0)},
		},
	}
	pageRef := mustAdd(t, src, page)

	out := newMemOut()
	c := NewCopier(out, out.Alloc(), nil)
	_, err := c.CopyPage(src, pageRef, page)
	if !pdf.IsMalformed(err) {
		t.Fatalf("expected MalformedFileError, got %v", err)
	}

	// Only the pages root, allocated above, may be unbound.
	if len(out.pending) != 1 {
		t.Errorf("%d unbound references after failure, want 1", len(out.pending))
	}
	if _, found := c.Table(src).Lookup(pdf.NewReference(99, 0)); found {
		t.Error("entry for missing object kept")
	}
	if _, found := c.Table(src).Lookup(pageRef); found {
		t.Error("entry for failed page kept")
	}

	// the copier stays usable
	other := pdf.Dict{"Type": pdf.Name("Page"), "Resources": pdf.Dict{"Font": pdf.Dict{"F1": font}}}
	otherRef := mustAdd(t, src, other)
	_, err = c.CopyPage(src, otherRef, other)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.pending) != 1 {
		t.Errorf("%d unbound references, want 1", len(out.pending))
	}
}

func TestKeywordCoercion(t *testing.T) {
	src := pdf.NewData(pdf.V1_7)
	out := newMemOut()
	c := NewCopier(out, 0, nil)

	in := pdf.Dict{
		"A": pdf.Keyword("TRUE"),
		"B": pdf.Keyword("False"),
		"C": pdf.Keyword("bogus"),
		"D": pdf.Array{pdf.Keyword("x"), pdf.Integer(1)},
	}
	got, err := c.Copy(src, in)
	if err != nil {
		t.Fatal(err)
	}
	want := pdf.Dict{
		"A": pdf.Bool(true),
		"B": pdf.Bool(false),
		"D": pdf.Array{nil, pdf.Integer(1)},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Error(d)
	}
	if n := c.Stats().Coerced; n != 4 {
		t.Errorf("%d values coerced, want 4", n)
	}
}

func TestFreeTable(t *testing.T) {
	src := pdf.NewData(pdf.V1_7)
	obj := mustAdd(t, src, pdf.Dict{"X": pdf.Integer(1)})

	out := newMemOut()
	c := NewCopier(out, 0, nil)
	first, err := c.CopyReference(src, obj)
	if err != nil {
		t.Fatal(err)
	}
	if c.Table(src).Len() != 1 {
		t.Errorf("wrong table size %d", c.Table(src).Len())
	}

	c.Free(src)
	if c.Table(src) != nil {
		t.Error("table not released")
	}
	second, err := c.CopyReference(src, obj)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("object not copied again after Free")
	}
}

func TestSeparateNamespaces(t *testing.T) {
	srcA := pdf.NewData(pdf.V1_7)
	srcB := pdf.NewData(pdf.V1_7)
	refA := mustAdd(t, srcA, pdf.Dict{"Doc": pdf.Name("A")})
	refB := mustAdd(t, srcB, pdf.Dict{"Doc": pdf.Name("B")})
	if refA != refB {
		t.Fatal("test setup: expected equal source references")
	}

	out := newMemOut()
	c := NewCopier(out, 0, nil)
	destA, err := c.CopyReference(srcA, refA)
	if err != nil {
		t.Fatal(err)
	}
	destB, err := c.CopyReference(srcB, refB)
	if err != nil {
		t.Fatal(err)
	}
	if destA == destB {
		t.Fatal("objects from different sources share a destination")
	}
	if out.objects[destB].(pdf.Dict)["Doc"] != pdf.Name("B") {
		t.Error("wrong object copied for second source")
	}
}

// linkedPages returns a source with two pages, where the first page has a
// link annotation pointing to the second one.  The second page has no
// /Type entry.
func linkedPages(t *testing.T) (src *pdf.Data, root pdf.Reference, pages []pdf.Reference, dicts []pdf.Dict) {
	t.Helper()

	src = pdf.NewData(pdf.V1_7)
	root = src.Alloc()
	p1 := src.Alloc()
	p2 := src.Alloc()
	link := mustAdd(t, src, pdf.Dict{
		"Type":    pdf.Name("Annot"),
		"Subtype": pdf.Name("Link"),
		"Dest":    pdf.Array{p2, pdf.Name("Fit")},
	})
	dicts = []pdf.Dict{
		{"Type": pdf.Name("Page"), "Parent": root, "Annots": pdf.Array{link}},
		{"Parent": root, "Rotate": pdf.Integer(90)},
	}
	for ref, obj := range map[pdf.Reference]pdf.Object{
		root: pdf.Dict{"Type": pdf.Name("Pages"), "Kids": pdf.Array{p1, p2}, "Count": pdf.Integer(2)},
		p1:   dicts[0],
		p2:   dicts[1],
	} {
		err := src.Put(ref, obj)
		if err != nil {
			t.Fatal(err)
		}
	}
	return src, root, []pdf.Reference{p1, p2}, dicts
}

// linkTarget returns the destination page of the link on a copied page.
func linkTarget(t *testing.T, out *memOut, page pdf.Reference) pdf.Reference {
	t.Helper()
	annots := out.objects[page].(pdf.Dict)["Annots"].(pdf.Array)
	link := out.objects[annots[0].(pdf.Reference)].(pdf.Dict)
	return link["Dest"].(pdf.Array)[0].(pdf.Reference)
}

func TestPageReference(t *testing.T) {
	src, srcRoot, pages, dicts := linkedPages(t)

	out := newMemOut()
	root := out.Alloc()
	c := NewCopier(out, root, nil)

	first, err := c.CopyPage(src, pages[0], dicts[0])
	if err != nil {
		t.Fatal(err)
	}
	target := linkTarget(t, out, first)
	if !out.pending[target] {
		t.Errorf("linked page %s was written before it was added", target)
	}
	if e, _ := c.Table(src).Lookup(pages[1]); e.Copied {
		t.Error("linked page marked as copied")
	}

	second, err := c.CopyPage(src, pages[1], dicts[1])
	if err != nil {
		t.Fatal(err)
	}
	if second != target {
		t.Errorf("page copied to %s, but the link points to %s", second, target)
	}
	want := pdf.Dict{"Parent": root, "Rotate": pdf.Integer(90)}
	if d := cmp.Diff(want, out.objects[second]); d != "" {
		t.Errorf("page without /Type (-want +got):\n%s", d)
	}
	if _, found := c.Table(src).Lookup(srcRoot); found {
		t.Error("source page tree was copied")
	}
	if len(out.objects) != 3 {
		t.Errorf("%d objects written, want 3", len(out.objects))
	}

	// a reserved reference is used only once
	third, err := c.CopyPage(src, pages[1], dicts[1])
	if err != nil {
		t.Fatal(err)
	}
	if third == second {
		t.Error("page added twice shares one object")
	}
}

func TestReleasePending(t *testing.T) {
	src, _, pages, dicts := linkedPages(t)

	out := newMemOut()
	root := out.Alloc()
	c := NewCopier(out, root, nil)
	first, err := c.CopyPage(src, pages[0], dicts[0])
	if err != nil {
		t.Fatal(err)
	}
	target := linkTarget(t, out, first)

	c.ReleasePending()
	if !out.freed[target] {
		t.Errorf("reference %s of the missing page not released", target)
	}
	if d := cmp.Diff(map[pdf.Reference]bool{root: true}, out.pending); d != "" {
		t.Errorf("unexpected unbound references (-want +got):\n%s", d)
	}
	if _, found := c.Table(src).Lookup(pages[1]); found {
		t.Error("released page still in the table")
	}
	if n := c.Stats().Unresolved; n != 1 {
		t.Errorf("%d unresolved pages, want 1", n)
	}

	// Free releases reserved references, too
	src2, _, pages2, dicts2 := linkedPages(t)
	_, err = c.CopyPage(src2, pages2[0], dicts2[0])
	if err != nil {
		t.Fatal(err)
	}
	c.Free(src2)
	if d := cmp.Diff(map[pdf.Reference]bool{root: true}, out.pending); d != "" {
		t.Errorf("unexpected unbound references after Free (-want +got):\n%s", d)
	}
}

func TestReservedPageRollback(t *testing.T) {
	src, _, pages, dicts := linkedPages(t)

	out := newMemOut()
	c := NewCopier(out, out.Alloc(), nil)
	first, err := c.CopyPage(src, pages[0], dicts[0])
	if err != nil {
		t.Fatal(err)
	}
	target := linkTarget(t, out, first)

	broken := pdf.Dict{"Parent": dicts[1]["Parent"], "Contents": pdf.NewReference(99, 0)}
	_, err = c.CopyPage(src, pages[1], broken)
	if err == nil {
		t.Fatal("copying a page with a missing object succeeded")
	}

	second, err := c.CopyPage(src, pages[1], dicts[1])
	if err != nil {
		t.Fatal(err)
	}
	if second != target {
		t.Errorf("page copied to %s after a failed copy, want %s", second, target)
	}
}
