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
	"fmt"
	"io"
	"os"
	"slices"
)

// Writer represents a PDF file open for writing.
// Use [Create] or [NewWriter] to create a new Writer.
//
// Object numbers are allocated using [Writer.Alloc] and are bound to values
// using [Writer.Put].  Objects are written to the file as soon as they are
// bound.  Every allocated reference must be bound or released using
// [Writer.Free] before [Writer.Close] is called.
type Writer struct {
	meta MetaInfo

	w        *posWriter
	compress bool

	nextRef uint32
	xref    map[uint32]*xRefEntry
	pending map[Reference]struct{}
}

// WriterOptions allows to influence the way a PDF file is generated.
type WriterOptions struct {
	// Version is the PDF version written into the file header.
	// If this is zero, PDF 1.7 is used.
	Version Version

	// ID, if set, must consist of two byte slices.  It is written as the
	// /ID entry of the trailer.
	ID [][]byte

	// CompressStreams causes stream data without filters to be compressed
	// using the FlateDecode filter.
	CompressStreams bool
}

var defaultWriterOptions = &WriterOptions{
	Version: V1_7,
}

// Create creates the named PDF file and opens it for output.  If a previous
// file with the same name exists, it is overwritten.  After writing is
// complete, [Writer.Close] must be called to write the trailer and to close
// the underlying file.
func Create(fname string, opt *WriterOptions) (*Writer, error) {
	fd, err := os.Create(fname)
	if err != nil {
		return nil, err
	}
	pdf, err := NewWriter(fd, opt)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return pdf, nil
}

// NewWriter prepares a PDF file for writing.
//
// If w implements [io.Closer], it is closed by [Writer.Close] and by
// [Writer.Abort].
func NewWriter(w io.Writer, opt *WriterOptions) (*Writer, error) {
	if opt == nil {
		opt = defaultWriterOptions
	}
	version := opt.Version
	if version == 0 {
		version = V1_7
	}
	versionString, err := version.ToString()
	if err != nil {
		return nil, err
	}
	if opt.ID != nil && len(opt.ID) != 2 {
		return nil, errors.New("pdf: ID must consist of two byte strings")
	}

	pdf := &Writer{
		meta: MetaInfo{
			Version: version,
			ID:      opt.ID,
			Catalog: &Catalog{},
		},
		w:        &posWriter{w: w},
		compress: opt.CompressStreams,
		nextRef:  1,
		xref:     make(map[uint32]*xRefEntry),
		pending:  make(map[Reference]struct{}),
	}

	_, err = fmt.Fprintf(pdf.w, "%%PDF-%s\n%%\x80\x80\x80\x80\n", versionString)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// GetMeta returns the meta information of the file being written.
// Fields in the returned structure can be modified until the file is closed.
// The Catalog field is used to construct the document catalog,
// and the Info field (if non-nil) the document information dictionary.
func (pdf *Writer) GetMeta() *MetaInfo {
	return &pdf.meta
}

// Alloc allocates an object number for an indirect object.  Numbers are
// assigned in increasing order, starting at 1.
func (pdf *Writer) Alloc() Reference {
	ref := NewReference(pdf.nextRef, 0)
	pdf.nextRef++
	pdf.pending[ref] = struct{}{}
	return ref
}

// Add allocates a new reference and writes obj as the corresponding
// indirect object.
func (pdf *Writer) Add(obj Object) (Reference, error) {
	ref := pdf.Alloc()
	err := pdf.Put(ref, obj)
	if err != nil {
		delete(pdf.pending, ref)
		pdf.xref[ref.Number()] = &xRefEntry{Pos: -1, Generation: 65535}
		return 0, err
	}
	return ref, nil
}

// Put writes obj to the file, as the indirect object with reference ref.
// The reference must have been obtained from [Writer.Alloc], and each
// reference can only be bound once.
//
// If obj cannot be serialized, nothing is written and ref stays allocated.
func (pdf *Writer) Put(ref Reference, obj Object) error {
	if pdf.w == nil {
		return errClosed
	}
	if _, ok := pdf.pending[ref]; !ok {
		if entry, seen := pdf.xref[ref.Number()]; seen {
			if entry.IsFree() {
				return fmt.Errorf("pdf: %s was freed", ref)
			}
			return fmt.Errorf("pdf: %s already written", ref)
		}
		return fmt.Errorf("pdf: %s was not allocated", ref)
	}

	if stm, isStream := obj.(*Stream); isStream && pdf.compress {
		var err error
		obj, err = compressStream(stm)
		if err != nil {
			return err
		}
	}

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%d %d obj\n", ref.Number(), ref.Generation())
	err := writeObject(buf, obj)
	if err != nil {
		return fmt.Errorf("writing %s: %w", ref, err)
	}
	buf.WriteString("\nendobj\n")

	pos := pdf.w.pos
	_, err = pdf.w.Write(buf.Bytes())
	if err != nil {
		return err
	}

	delete(pdf.pending, ref)
	pdf.xref[ref.Number()] = &xRefEntry{Pos: pos, Generation: ref.Generation()}
	return nil
}

// Free releases a reference which was allocated but never written.  The
// object number is marked as free in the cross-reference table.
// Calling Free on a reference which was already written has no effect.
func (pdf *Writer) Free(ref Reference) {
	if _, ok := pdf.pending[ref]; !ok {
		return
	}
	delete(pdf.pending, ref)
	pdf.xref[ref.Number()] = &xRefEntry{Pos: -1, Generation: 65535}
}

// Close writes the document catalog, the cross-reference table and the
// trailer, and closes the underlying writer if it implements [io.Closer].
//
// If any allocated reference was neither written nor freed, a
// [*DanglingReferenceError] is returned and the file is left unfinished.
// The underlying writer is closed in all cases.
func (pdf *Writer) Close() (err error) {
	if pdf.w == nil {
		return errClosed
	}
	defer func() {
		err2 := pdf.closeUnderlying()
		if err == nil {
			err = err2
		}
	}()

	if len(pdf.pending) > 0 {
		refs := make([]Reference, 0, len(pdf.pending))
		for ref := range pdf.pending {
			refs = append(refs, ref)
		}
		slices.Sort(refs)
		return &DanglingReferenceError{Refs: refs}
	}

	catalog := pdf.meta.Catalog
	if catalog == nil || catalog.Pages == 0 {
		return errors.New("pdf: missing page tree root in catalog")
	}
	catalogRef, err := pdf.Add(catalog.AsDict())
	if err != nil {
		return err
	}
	trailer := Dict{
		"Root": catalogRef,
	}
	if pdf.meta.Info != nil {
		infoRef, err := pdf.Add(pdf.meta.Info.AsDict())
		if err != nil {
			return err
		}
		trailer["Info"] = infoRef
	}
	if len(pdf.meta.ID) == 2 {
		trailer["ID"] = Array{String(pdf.meta.ID[0]), String(pdf.meta.ID[1])}
	}

	xRefPos := pdf.w.pos
	err = pdf.writeXRefTable(trailer)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(pdf.w, "\nstartxref\n%d\n%%%%EOF\n", xRefPos)
	return err
}

// Abort closes the underlying writer without finishing the PDF file.
func (pdf *Writer) Abort() error {
	if pdf.w == nil {
		return nil
	}
	return pdf.closeUnderlying()
}

func (pdf *Writer) closeUnderlying() error {
	w := pdf.w.w
	// make sure we don't accidentally write beyond the end of file
	pdf.w = nil
	if closer, ok := w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// writeXRefTable writes a classic cross-reference table, followed by the
// trailer dictionary.  Free entries are linked into the free list starting
// at object 0.
func (pdf *Writer) writeXRefTable(trailer Dict) error {
	size := pdf.nextRef
	trailer["Size"] = Integer(size)

	_, err := fmt.Fprintf(pdf.w, "xref\n0 %d\n", size)
	if err != nil {
		return err
	}

	nextFree := func(i uint32) uint32 {
		for j := i + 1; j < size; j++ {
			if pdf.xref[j].IsFree() {
				return j
			}
		}
		return 0
	}

	for i := uint32(0); i < size; i++ {
		entry := pdf.xref[i]
		if entry.IsFree() {
			gen := uint16(65535)
			if entry != nil && i > 0 {
				gen = entry.Generation
			}
			_, err = fmt.Fprintf(pdf.w, "%010d %05d f\r\n", nextFree(i), gen)
		} else {
			_, err = fmt.Fprintf(pdf.w, "%010d %05d n\r\n", entry.Pos, entry.Generation)
		}
		if err != nil {
			return err
		}
	}

	_, err = pdf.w.Write([]byte("trailer\n"))
	if err != nil {
		return err
	}
	return trailer.PDF(pdf.w)
}

func compressStream(stm *Stream) (*Stream, error) {
	if _, hasFilter := stm.Dict["Filter"]; hasFilter {
		return stm, nil
	}
	data, err := ReadAll(stm)
	if err != nil {
		return nil, err
	}
	zData, err := flateEncode(data)
	if err != nil {
		return nil, err
	}
	dict := stm.Dict.Clone()
	if dict == nil {
		dict = Dict{}
	}
	dict["Filter"] = Name("FlateDecode")
	return &Stream{Dict: dict, R: bytes.NewReader(zData)}, nil
}

var errClosed = errors.New("pdf: writer is closed")

type posWriter struct {
	w   io.Writer
	pos int64
}

func (w *posWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	return n, err
}
