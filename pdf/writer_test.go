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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// writeTestFile writes a one-page document and returns the file contents
// together with the references of the page and of its content stream.
func writeTestFile(t *testing.T, opt *WriterOptions) ([]byte, Reference, Reference) {
	t.Helper()

	out := &bytes.Buffer{}
	w, err := NewWriter(out, opt)
	if err != nil {
		t.Fatal(err)
	}

	pagesRef := w.Alloc()
	contentRef, err := w.Add(&Stream{
		Dict: Dict{},
		R:    strings.NewReader("BT /F1 12 Tf (Hello) Tj ET"),
	})
	if err != nil {
		t.Fatal(err)
	}
	pageRef, err := w.Add(Dict{
		"Type":     Name("Page"),
		"Parent":   pagesRef,
		"MediaBox": Array{Integer(0), Integer(0), Integer(200), Integer(100)},
		"Contents": contentRef,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = w.Put(pagesRef, Dict{
		"Type":  Name("Pages"),
		"Kids":  Array{pageRef},
		"Count": Integer(1),
	})
	if err != nil {
		t.Fatal(err)
	}

	meta := w.GetMeta()
	meta.Catalog.Pages = pagesRef
	meta.Info = &Info{
		Title:        "PDF Test Document",
		Author:       "Jochen Voß",
		CreationDate: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	err = w.Close()
	if err != nil {
		t.Fatal(err)
	}
	return out.Bytes(), pageRef, contentRef
}

func TestWriterRoundTrip(t *testing.T) {
	data, pageRef, contentRef := writeTestFile(t, nil)

	r, err := NewReader(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.GetMeta().Version != V1_7 {
		t.Errorf("wrong version %s", r.GetMeta().Version)
	}

	page, err := GetDict(r, pageRef)
	if err != nil {
		t.Fatal(err)
	}
	pagesRef := r.GetMeta().Catalog.Pages
	want := Dict{
		"Type":     Name("Page"),
		"Parent":   pagesRef,
		"MediaBox": Array{Integer(0), Integer(0), Integer(200), Integer(100)},
		"Contents": contentRef,
	}
	if d := cmp.Diff(want, page); d != "" {
		t.Errorf("page dict: %s", d)
	}

	// streams can be read repeatedly
	for i := 0; i < 2; i++ {
		stm, err := GetStream(r, contentRef)
		if err != nil {
			t.Fatal(err)
		}
		body, err := ReadAll(stm)
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != "BT /F1 12 Tf (Hello) Tj ET" {
			t.Errorf("%d: wrong stream data %q", i, body)
		}
	}

	infoDict, err := GetDict(r, r.GetMeta().Trailer["Info"])
	if err != nil {
		t.Fatal(err)
	}
	author, err := GetString(r, infoDict["Author"])
	if err != nil {
		t.Fatal(err)
	}
	if author.AsTextString() != "Jochen Voß" {
		t.Errorf("wrong author %q", author.AsTextString())
	}

	info := r.GetMeta().Info
	if info == nil {
		t.Fatal("info dictionary not decoded")
	}
	if info.Title != "PDF Test Document" {
		t.Errorf("wrong title %q", info.Title)
	}
	if !info.CreationDate.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("wrong creation date %s", info.CreationDate)
	}
}

func TestDecodeDate(t *testing.T) {
	cases := []string{
		"D:19981223195200-08'00'",
		"D:20000101000000Z",
		"D:20201224163012+01'30'",
		"D:20010809191510 ", // trailing space, seen in some PDF files
		"D:2021",
	}
	for i, test := range cases {
		_, err := TextString(test).AsDate()
		if err != nil {
			t.Errorf("%d %q %s\n", i, test, err)
		}
	}

	_, err := String("yesterday").AsDate()
	if err == nil {
		t.Error("invalid date accepted")
	}
}

func TestWriterCompress(t *testing.T) {
	data, _, contentRef := writeTestFile(t, &WriterOptions{CompressStreams: true})

	r, err := NewReader(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		t.Fatal(err)
	}
	stm, err := GetStream(r, contentRef)
	if err != nil {
		t.Fatal(err)
	}
	if stm.Dict["Filter"] != Name("FlateDecode") {
		t.Errorf("stream not compressed: %v", stm.Dict)
	}
	body, err := Decode(r, stm)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "BT /F1 12 Tf (Hello) Tj ET" {
		t.Errorf("wrong stream data %q", body)
	}
}

func TestDanglingReference(t *testing.T) {
	out := &bytes.Buffer{}
	w, err := NewWriter(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	pagesRef, err := w.Add(Dict{"Type": Name("Pages"), "Kids": Array{}, "Count": Integer(0)})
	if err != nil {
		t.Fatal(err)
	}
	w.GetMeta().Catalog.Pages = pagesRef
	dangling := w.Alloc()

	err = w.Close()
	var danglingErr *DanglingReferenceError
	if !errors.As(err, &danglingErr) {
		t.Fatalf("expected DanglingReferenceError, got %v", err)
	}
	if d := cmp.Diff([]Reference{dangling}, danglingErr.Refs); d != "" {
		t.Error(d)
	}
	if bytes.Contains(out.Bytes(), []byte("xref")) ||
		bytes.Contains(out.Bytes(), []byte("trailer")) {
		t.Error("cross-reference table written despite dangling reference")
	}
}

func TestPutErrors(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ref := w.Alloc()
	err = w.Put(ref, Integer(1))
	if err != nil {
		t.Fatal(err)
	}
	err = w.Put(ref, Integer(2))
	if err == nil {
		t.Error("binding a reference twice succeeded")
	}

	err = w.Put(NewReference(100, 0), Integer(3))
	if err == nil {
		t.Error("binding an unallocated reference succeeded")
	}

	freed := w.Alloc()
	w.Free(freed)
	err = w.Put(freed, Integer(4))
	if err == nil {
		t.Error("binding a freed reference succeeded")
	}

	// serialization errors leave the reference allocated
	bad := w.Alloc()
	err = w.Put(bad, Array{Keyword("bogus")})
	if err == nil {
		t.Fatal("writing a keyword succeeded")
	}
	err = w.Put(bad, Integer(5))
	if err != nil {
		t.Errorf("reference unusable after failed write: %v", err)
	}
}

func TestFree(t *testing.T) {
	out := &bytes.Buffer{}
	w, err := NewWriter(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	unused := w.Alloc()
	pagesRef, err := w.Add(Dict{"Type": Name("Pages"), "Kids": Array{}, "Count": Integer(0)})
	if err != nil {
		t.Fatal(err)
	}
	w.Free(unused)
	w.GetMeta().Catalog.Pages = pagesRef
	err = w.Close()
	if err != nil {
		t.Fatal(err)
	}

	data := out.Bytes()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Get(unused)
	if !IsMalformed(err) {
		t.Errorf("expected MalformedFileError for freed object, got %v", err)
	}
	_, err = r.Get(pagesRef)
	if err != nil {
		t.Error(err)
	}
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestWriterClosesOutput(t *testing.T) {
	// successful close
	out := &closeRecorder{}
	w, err := NewWriter(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	pagesRef, err := w.Add(Dict{"Type": Name("Pages"), "Kids": Array{}, "Count": Integer(0)})
	if err != nil {
		t.Fatal(err)
	}
	w.GetMeta().Catalog.Pages = pagesRef
	err = w.Close()
	if err != nil {
		t.Fatal(err)
	}
	if !out.closed {
		t.Error("output not closed")
	}

	// failed close
	out = &closeRecorder{}
	w, err = NewWriter(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Alloc()
	err = w.Close()
	if err == nil {
		t.Fatal("missing error")
	}
	if !out.closed {
		t.Error("output not closed after error")
	}

	// abort
	out = &closeRecorder{}
	w, err = NewWriter(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = w.Abort()
	if err != nil {
		t.Fatal(err)
	}
	if !out.closed {
		t.Error("output not closed by Abort")
	}
	if _, err := w.Add(Integer(1)); err == nil {
		t.Error("writing after Abort succeeded")
	}
}

func TestWriterHeader(t *testing.T) {
	out := &bytes.Buffer{}
	_, err := NewWriter(out, &WriterOptions{Version: V1_4})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out.Bytes(), []byte("%PDF-1.4\n")) {
		t.Errorf("wrong header %q", out.Bytes())
	}
}
