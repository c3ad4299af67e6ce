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
	"strconv"
)

type xRefEntry struct {
	Pos        int64
	Generation uint16
	InStream   Reference
}

// IsFree reports whether the entry describes a free object.
// A nil entry is free.
func (entry *xRefEntry) IsFree() bool {
	return entry == nil || entry.Pos < 0 && entry.InStream == 0
}

type xRefSubSection struct {
	Start uint32
	Size  uint32
}

func (r *Reader) findXRef() (int64, error) {
	pos, err := r.lastOccurence("startxref")
	if err != nil {
		return 0, err
	}
	s := r.scannerAt(pos + 9)

	xRefPos, err := s.ReadInteger()
	if err != nil {
		return 0, err
	}
	if xRefPos <= 0 || int64(xRefPos) >= r.size {
		return 0, &MalformedFileError{
			Pos: s.currentPos(),
			Err: errors.New("invalid xref position"),
		}
	}
	return int64(xRefPos), nil
}

func (r *Reader) lastOccurence(pat string) (int64, error) {
	const chunkSize = 1024

	buf := make([]byte, chunkSize)
	k := int64(len(pat))
	pos := r.size
	for pos >= k {
		start := max(pos-chunkSize, 0)
		n, err := r.r.ReadAt(buf[:pos-start], start)
		if err != nil && err != io.EOF {
			return 0, err
		}

		idx := bytes.LastIndex(buf[:n], []byte(pat))
		if idx >= 0 {
			return start + int64(idx), nil
		}
		if start == 0 {
			break
		}
		pos = start + k - 1
	}
	return 0, &MalformedFileError{
		Err: errors.New("startxref not found"),
	}
}

// readXRef reads the cross-reference information of the file, following
// /Prev links and /XRefStm entries.  Entries from later sections take
// precedence over earlier ones.
func (r *Reader) readXRef() (map[uint32]*xRefEntry, Dict, error) {
	start, err := r.findXRef()
	if err != nil {
		return nil, nil, err
	}

	xref := make(map[uint32]*xRefEntry)
	trailer := Dict{}
	first := true
	seen := make(map[int64]bool)
	for !seen[start] {
		seen[start] = true

		s := r.scannerAt(start)
		err := s.SkipWhiteSpace()
		if err != nil {
			return nil, nil, err
		}
		buf, err := s.Peek(4)
		if err != nil {
			return nil, nil, err
		}

		var dict Dict
		if bytes.Equal(buf, []byte("xref")) {
			dict, err = readXRefTable(xref, s)
			if err != nil {
				return nil, nil, err
			}

			if xRefStm, ok := dict["XRefStm"]; ok {
				zStart, ok := xRefStm.(Integer)
				if !ok || zStart <= 0 || int64(zStart) >= r.size {
					return nil, nil, &MalformedFileError{
						Pos: start,
						Err: errors.New("invalid /XRefStm"),
					}
				}
				_, err = r.readXRefStream(xref, r.scannerAt(int64(zStart)))
				if err != nil {
					return nil, nil, err
				}
			}
		} else {
			dict, err = r.readXRefStream(xref, s)
			if err != nil {
				return nil, nil, err
			}
		}

		if first {
			for _, key := range []Name{"Root", "Encrypt", "Info", "ID", "Size"} {
				if val, ok := dict[key]; ok {
					trailer[key] = val
				}
			}
			first = false
		}

		prev := dict["Prev"]
		if prev == nil {
			break
		}
		prevStart, ok := prev.(Integer)
		if !ok || prevStart <= 0 || int64(prevStart) >= r.size {
			return nil, nil, &MalformedFileError{
				Pos: start,
				Err: fmt.Errorf("invalid /Prev value %s", Format(prev)),
			}
		}
		start = int64(prevStart)
	}

	return xref, trailer, nil
}

func readXRefTable(xref map[uint32]*xRefEntry, s *scanner) (Dict, error) {
	err := s.SkipString("xref")
	if err != nil {
		return nil, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}

	for {
		buf, err := s.Peek(1)
		if err != nil {
			return nil, err
		}
		if len(buf) == 0 || buf[0] < '0' || buf[0] > '9' {
			break
		}

		start, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		length, err := s.ReadInteger()
		if err != nil {
			return nil, err
		}
		if start < 0 || length < 0 || start+length > 1<<32 {
			return nil, s.malformed("invalid xref subsection header")
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}

		sec := &xRefSubSection{Start: uint32(start), Size: uint32(length)}
		err = decodeXRefSection(xref, s, sec)
		if err != nil {
			return nil, err
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
	}

	err = s.SkipString("trailer")
	if err != nil {
		return nil, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}
	return s.ReadDict()
}

func decodeXRefSection(xref map[uint32]*xRefEntry, s *scanner, sec *xRefSubSection) error {
	for k := uint32(0); k < sec.Size; k++ {
		i := sec.Start + k

		buf, err := s.Peek(20)
		if err != nil {
			return err
		}
		if len(buf) < 20 {
			return &MalformedFileError{
				Pos: s.currentPos(),
				Err: io.ErrUnexpectedEOF,
			}
		}
		if xref[i] != nil {
			s.pos += 20
			continue
		}

		a, err := strconv.ParseInt(string(buf[:10]), 10, 64)
		if err != nil {
			return &MalformedFileError{Pos: s.currentPos(), Err: err}
		}
		b, err := strconv.ParseUint(string(buf[11:16]), 10, 16)
		if err != nil {
			// some writers use generation 65536 for the head of the free list
			if !bytes.HasPrefix(buf, []byte("0000000000 65536 ")) {
				return &MalformedFileError{Pos: s.currentPos(), Err: err}
			}
			b = 65535
			buf[17] = 'f'
		}
		switch buf[17] {
		case 'f':
			xref[i] = &xRefEntry{Pos: -1, Generation: uint16(b)}
		case 'n':
			xref[i] = &xRefEntry{Pos: a, Generation: uint16(b)}
		default:
			return s.malformed("malformed xref table")
		}
		s.pos += 20
	}
	return nil
}

func (r *Reader) readXRefStream(xref map[uint32]*xRefEntry, s *scanner) (Dict, error) {
	obj, _, err := s.ReadIndirectObject()
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*Stream)
	if !ok {
		return nil, s.malformed("invalid xref stream")
	}
	dict := stream.Dict

	w, ss, err := checkXRefStreamDict(dict)
	if err != nil {
		return nil, err
	}
	data, err := Decode(r, stream)
	if err != nil {
		return nil, Wrap(err, "xref stream")
	}
	err = decodeXRefStream(xref, data, w, ss)
	if err != nil {
		return nil, err
	}
	return dict, nil
}

func checkXRefStreamDict(dict Dict) ([]int, []*xRefSubSection, error) {
	size, ok := dict["Size"].(Integer)
	if !ok || size < 0 {
		return nil, nil, Errorf("xref stream: invalid /Size")
	}
	W, ok := dict["W"].(Array)
	if !ok || len(W) < 3 {
		return nil, nil, Errorf("xref stream: invalid /W")
	}
	w := make([]int, 0, len(W))
	for i, Wi := range W {
		wi, ok := Wi.(Integer)
		if !ok || wi < 0 || i < 3 && wi > 8 {
			return nil, nil, Errorf("xref stream: invalid /W")
		}
		w = append(w, int(wi))
	}

	var ss []*xRefSubSection
	switch ind := dict["Index"].(type) {
	case nil:
		ss = append(ss, &xRefSubSection{Start: 0, Size: uint32(size)})
	case Array:
		if len(ind)%2 != 0 {
			return nil, nil, Errorf("xref stream: invalid /Index")
		}
		for i := 0; i < len(ind); i += 2 {
			start, ok1 := ind[i].(Integer)
			n, ok2 := ind[i+1].(Integer)
			if !ok1 || !ok2 || start < 0 || n < 0 || start+n > 1<<32 {
				return nil, nil, Errorf("xref stream: invalid /Index")
			}
			ss = append(ss, &xRefSubSection{Start: uint32(start), Size: uint32(n)})
		}
	default:
		return nil, nil, Errorf("xref stream: invalid /Index")
	}
	return w, ss, nil
}

func decodeXRefStream(xref map[uint32]*xRefEntry, data []byte, w []int, ss []*xRefSubSection) error {
	wTotal := 0
	for _, wi := range w {
		wTotal += wi
	}

	w0, w1, w2 := w[0], w[1], w[2]
	for _, sec := range ss {
		for k := uint32(0); k < sec.Size; k++ {
			if len(data) < wTotal {
				return Errorf("xref stream: truncated data")
			}
			buf := data[:wTotal]
			data = data[wTotal:]

			i := sec.Start + k
			if xref[i] != nil {
				continue
			}

			tp := int64(1)
			if w0 > 0 {
				tp = decodeInt(buf[:w0])
			}
			a := decodeInt(buf[w0 : w0+w1])
			b := decodeInt(buf[w0+w1 : w0+w1+w2])
			switch tp {
			case 0: // free
				xref[i] = &xRefEntry{Pos: -1, Generation: uint16(b)}
			case 1: // in use, uncompressed
				xref[i] = &xRefEntry{Pos: a, Generation: uint16(b)}
			case 2: // in use, stored in an object stream
				xref[i] = &xRefEntry{
					Pos:      b,
					InStream: NewReference(uint32(a), 0),
				}
			}
		}
	}
	return nil
}

func decodeInt(buf []byte) (res int64) {
	for _, x := range buf {
		res = res<<8 | int64(x)
	}
	return res
}
