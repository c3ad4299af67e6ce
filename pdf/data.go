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
	"fmt"
	"io"
	"slices"
)

// Data is an in-memory representation of a PDF document.
// Data implements both the [Getter] and the [Putter] interface.
type Data struct {
	meta    MetaInfo
	objects map[Reference]Object
	lastRef uint32
}

// NewData returns a new, empty in-memory PDF document.
func NewData(v Version) *Data {
	return &Data{
		meta: MetaInfo{
			Version: v,
			Catalog: &Catalog{},
		},
		objects: map[Reference]Object{},
	}
}

// GetMeta returns the meta information of the document.
func (d *Data) GetMeta() *MetaInfo {
	return &d.meta
}

// Alloc allocates a new object number for an indirect object.
func (d *Data) Alloc() Reference {
	for {
		d.lastRef++
		ref := NewReference(d.lastRef, 0)
		if _, ok := d.objects[ref]; !ok {
			return ref
		}
	}
}

// Get returns the object stored under ref.  A [MalformedFileError] is
// returned if no such object exists.  Streams are returned with an unread R.
func (d *Data) Get(ref Reference) (Object, error) {
	obj, ok := d.objects[ref]
	if !ok {
		return nil, &MalformedFileError{
			Err: fmt.Errorf("%s: %w", ref, errMissingObject),
		}
	}
	return streamView(obj), nil
}

// Put stores obj under ref.  Stream data is read into memory.
// Storing nil removes the object.
func (d *Data) Put(ref Reference, obj Object) error {
	switch x := obj.(type) {
	case nil:
		delete(d.objects, ref)
		return nil
	case *Stream:
		data, err := ReadAll(x)
		if err != nil {
			return err
		}
		obj = &Stream{Dict: x.Dict, R: bytes.NewReader(data)}
	}
	d.objects[ref] = obj
	return nil
}

// Free removes the object stored under ref, if any.
func (d *Data) Free(ref Reference) {
	delete(d.objects, ref)
}

// Add allocates a new reference and stores obj under it.
func (d *Data) Add(obj Object) (Reference, error) {
	ref := d.Alloc()
	err := d.Put(ref, obj)
	if err != nil {
		return 0, err
	}
	return ref, nil
}

// Write writes the document to w as a PDF file.  Object numbers are
// preserved; only generation 0 objects can be written.
func (d *Data) Write(w io.Writer) error {
	opt := &WriterOptions{
		Version: d.meta.Version,
		ID:      d.meta.ID,
	}
	pdf, err := NewWriter(w, opt)
	if err != nil {
		return err
	}
	meta := pdf.GetMeta()
	if d.meta.Catalog != nil {
		catalog := *d.meta.Catalog
		meta.Catalog = &catalog
	}
	meta.Info = d.meta.Info

	refs := make([]Reference, 0, len(d.objects))
	for ref := range d.objects {
		if ref.Generation() != 0 || ref.Number() == 0 {
			pdf.Abort()
			return fmt.Errorf("pdf: cannot write object %s", ref)
		}
		refs = append(refs, ref)
	}
	slices.Sort(refs)

	for _, ref := range refs {
		for {
			next := pdf.Alloc()
			if next == ref {
				break
			}
			pdf.Free(next)
		}
		err := pdf.Put(ref, streamView(d.objects[ref]))
		if err != nil {
			pdf.Abort()
			return err
		}
	}

	return pdf.Close()
}
