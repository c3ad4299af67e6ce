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
)

// Reader represents a pdf file opened for reading.  Use [Open] or
// [NewReader] to create a new Reader.
//
// Objects are parsed on demand, when they are first requested via [Reader.Get].
type Reader struct {
	meta MetaInfo

	name   string
	r      io.ReaderAt
	size   int64
	closer io.Closer

	xref map[uint32]*xRefEntry

	cache  *lruCache[Reference, Object]
	objStm *lruCache[Reference, *objStm]

	level int
}

// ReaderOptions can be used to configure a [Reader].
type ReaderOptions struct {
	// CacheSize is the number of parsed objects kept in memory.
	// If this is zero, a default value is used.
	CacheSize int
}

const defaultCacheSize = 1024

// Open opens the named PDF file for reading.  After use, [Reader.Close] must
// be called to release the file handle.
func Open(fname string, opt *ReaderOptions) (*Reader, error) {
	fd, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}
	r, err := NewReader(fd, fi.Size(), opt)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	r.name = fname
	r.closer = fd
	return r, nil
}

// NewReader creates a new Reader which reads a PDF file from data.
// If data implements [io.Closer], it is closed by [Reader.Close].
func NewReader(data io.ReaderAt, size int64, opt *ReaderOptions) (*Reader, error) {
	if opt == nil {
		opt = &ReaderOptions{}
	}
	cacheSize := opt.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	r := &Reader{
		r:      data,
		size:   size,
		cache:  newCache[Reference, Object](cacheSize),
		objStm: newCache[Reference, *objStm](16),
	}
	if c, ok := data.(io.Closer); ok {
		r.closer = c
	}

	s := r.scannerAt(0)
	version, err := s.readHeaderVersion()
	if err != nil {
		return nil, err
	}
	r.meta.Version = version

	xref, trailer, err := r.readXRef()
	if err != nil {
		return nil, err
	}
	r.xref = xref
	r.meta.Trailer = trailer

	if trailer["Encrypt"] != nil {
		return nil, errors.New("encrypted PDF files are not supported")
	}

	if ID, ok := trailer["ID"].(Array); ok && len(ID) >= 2 {
		for i := 0; i < 2; i++ {
			s, ok := ID[i].(String)
			if !ok {
				break
			}
			r.meta.ID = append(r.meta.ID, []byte(s))
		}
		if len(r.meta.ID) != 2 {
			r.meta.ID = nil
		}
	}

	catalogDict, err := GetDict(r, trailer["Root"])
	if err != nil {
		return nil, Wrap(err, "document catalog")
	}
	r.meta.Catalog, err = DecodeCatalog(r, catalogDict)
	if err != nil {
		return nil, err
	}
	if r.meta.Catalog.Version > r.meta.Version {
		r.meta.Version = r.meta.Catalog.Version
	}

	r.meta.Info, err = DecodeInfo(r, trailer["Info"])
	if err != nil {
		return nil, Wrap(err, "document information dictionary")
	}

	return r, nil
}

// Close releases the file handle used by the reader.
func (r *Reader) Close() error {
	r.cache.Clear()
	r.objStm.Clear()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

func (r *Reader) String() string {
	if r.name != "" {
		return r.name
	}
	return "pdf.Reader"
}

// GetMeta returns the meta information of the file.
// This implements the [Getter] interface.
func (r *Reader) GetMeta() *MetaInfo {
	return &r.meta
}

// Get reads an indirect object from the file.
// This implements the [Getter] interface.
//
// Every call returns a fresh [Stream] value for stream objects, so that the
// stream data can be read more than once.
func (r *Reader) Get(ref Reference) (Object, error) {
	if obj, ok := r.cache.Get(ref); ok {
		return streamView(obj), nil
	}

	entry := r.xref[ref.Number()]
	if entry.IsFree() || entry.Generation != ref.Generation() {
		return nil, &MalformedFileError{
			Err: fmt.Errorf("%s: %w", ref, errMissingObject),
		}
	}

	var obj Object
	var err error
	if entry.InStream != 0 {
		obj, err = r.getFromObjectStream(ref.Number(), entry.InStream)
		if err != nil {
			return nil, Wrap(err, ref.String())
		}
	} else {
		var fileRef Reference
		s := r.scannerAt(entry.Pos)
		obj, fileRef, err = s.ReadIndirectObject()
		if err != nil {
			return nil, Wrap(err, ref.String())
		}
		if fileRef != ref {
			return nil, &MalformedFileError{
				Pos: entry.Pos,
				Err: fmt.Errorf("xref corrupted: expected %s, found %s", ref, fileRef),
			}
		}
	}

	r.cache.Put(ref, obj)
	return streamView(obj), nil
}

// streamView returns a new Stream which reads the data of stm from the
// start.  Other objects are returned unchanged.
//
// Stream data is either held in memory or is a section of the underlying
// file, which is only read when the stream is used.
func streamView(obj Object) Object {
	stm, ok := obj.(*Stream)
	if !ok {
		return obj
	}
	var r io.Reader
	switch x := stm.R.(type) {
	case *bytes.Reader:
		r = io.NewSectionReader(x, 0, x.Size())
	case *io.SectionReader:
		outer, off, n := x.Outer()
		r = io.NewSectionReader(outer, off, n)
	default:
		return obj
	}
	return &Stream{
		Dict: stm.Dict,
		R:    r,
	}
}

type objStm struct {
	data []byte
	offs map[uint32]int
}

func (r *Reader) getFromObjectStream(number uint32, container Reference) (Object, error) {
	contents, ok := r.objStm.Get(container)
	if !ok {
		var err error
		contents, err = r.loadObjectStream(container)
		if err != nil {
			return nil, err
		}
		r.objStm.Put(container, contents)
	}

	offs, ok := contents.offs[number]
	if !ok || offs >= len(contents.data) {
		return nil, &MalformedFileError{
			Err: errors.New("object missing from object stream"),
		}
	}
	s := newScanner(bytes.NewReader(contents.data[offs:]), 0, nil)
	return s.ReadObject()
}

func (r *Reader) loadObjectStream(ref Reference) (*objStm, error) {
	entry := r.xref[ref.Number()]
	if entry.IsFree() || entry.InStream != 0 {
		return nil, &MalformedFileError{
			Err: errors.New("invalid object stream reference"),
		}
	}
	obj, err := r.Get(ref)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*Stream)
	if !ok {
		return nil, &MalformedFileError{
			Pos: entry.Pos,
			Err: errors.New("wrong type for object stream"),
		}
	}

	n, ok := stm.Dict["N"].(Integer)
	if !ok || n < 0 || n > 100000 {
		return nil, &MalformedFileError{
			Pos: entry.Pos,
			Err: errors.New("no valid /N for ObjStm"),
		}
	}
	first, ok := stm.Dict["First"].(Integer)
	if !ok || first < 0 {
		return nil, &MalformedFileError{
			Pos: entry.Pos,
			Err: errors.New("no valid /First for ObjStm"),
		}
	}

	data, err := Decode(r, stm)
	if err != nil {
		return nil, Wrap(err, "object stream")
	}

	s := newScanner(bytes.NewReader(data), 0, nil)
	offs := make(map[uint32]int, n)
	for i := 0; i < int(n); i++ {
		no, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		off, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		if no < 0 || off < 0 {
			return nil, &MalformedFileError{
				Pos: entry.Pos,
				Err: errors.New("invalid ObjStm index"),
			}
		}
		offs[uint32(no)] = int(first) + int(off)
	}

	return &objStm{data: data, offs: offs}, nil
}

// safeGetInt resolves stream lengths which are given as indirect
// references.
func (r *Reader) safeGetInt(obj Object) (Integer, error) {
	if x, ok := obj.(Integer); ok {
		return x, nil
	}

	if r.level > 2 {
		return 0, &MalformedFileError{
			Err: errors.New("length of stream depends on stream length"),
		}
	}
	r.level++
	defer func() { r.level-- }()
	return GetInteger(r, obj)
}

func (r *Reader) scannerAt(pos int64) *scanner {
	return newFileScanner(r.r, pos, r.size, r.safeGetInt)
}
