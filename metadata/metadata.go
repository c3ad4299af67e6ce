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

// Package metadata reads and writes XMP metadata streams.
package metadata

import (
	"bytes"
	"time"

	"golang.org/x/text/language"

	"seehuhn.de/go/xmp"

	"seehuhn.de/go/pdfmerge/pdf"
)

// PDF 2.0 sections: 14.3

// Stream represents an XMP metadata stream.
type Stream struct {
	Data *xmp.Packet
}

// Read reads an XMP metadata stream from a PDF file.
// If obj is nil, nil is returned.
func Read(r pdf.Getter, obj pdf.Object) (*Stream, error) {
	stm, err := pdf.GetStream(r, obj)
	if err != nil {
		return nil, err
	}
	if stm == nil {
		return nil, nil
	}
	body, err := pdf.Decode(r, stm)
	if err != nil {
		return nil, pdf.Wrap(err, "metadata stream")
	}

	packet, err := xmp.Read(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	return &Stream{Data: packet}, nil
}

// Embed writes the XMP packet as a metadata stream and returns the
// reference of the stream.
func (s *Stream) Embed(w pdf.Putter) (pdf.Reference, error) {
	buf := &bytes.Buffer{}
	err := s.Data.Write(buf, &xmp.PacketOptions{Pretty: true})
	if err != nil {
		return 0, err
	}

	ref := w.Alloc()
	stm := &pdf.Stream{
		Dict: pdf.Dict{
			"Type":    pdf.Name("Metadata"),
			"Subtype": pdf.Name("XML"),
		},
		R: buf,
	}
	err = w.Put(ref, stm)
	if err != nil {
		w.Free(ref)
		return 0, err
	}
	return ref, nil
}

// Equal reports whether s and other represent the same XMP metadata.
func (s *Stream) Equal(other *Stream) bool {
	if s == nil || other == nil {
		return s == other
	}

	return s.Data.Equal(other.Data)
}

// FromInfo builds an XMP packet which mirrors the document information
// dictionary.  Missing dates are set to now.
func FromInfo(info *pdf.Info, lang language.Tag, now time.Time) (*Stream, error) {
	if info == nil {
		info = &pdf.Info{}
	}

	dc := &xmp.DublinCore{}
	setLocalized := func(l *xmp.Localized, val string) {
		if val == "" {
			return
		}
		l.Set(language.Und, val)
		if lang != language.Und {
			l.Set(lang, val)
		}
	}
	setLocalized(&dc.Title, info.Title)
	setLocalized(&dc.Description, info.Subject)
	if info.Author != "" {
		dc.Creator.Append(xmp.NewProperName(info.Author))
	}

	created := info.CreationDate
	if created.IsZero() {
		created = now
	}
	modified := info.ModDate
	if modified.IsZero() {
		modified = now
	}
	basic := &basicInfo{
		CreateDate:   xmp.NewDate(created),
		ModifyDate:   xmp.NewDate(modified),
		MetadataDate: xmp.NewDate(now),
	}
	if info.Creator != "" {
		basic.CreatorTool = xmp.NewAgentName(info.Creator)
	}

	pdfInfo := &pdfNS{}
	if info.Keywords != "" {
		pdfInfo.Keywords = xmp.NewText(info.Keywords)
	}
	if info.Producer != "" {
		pdfInfo.Producer = xmp.NewAgentName(info.Producer)
	}

	packet := xmp.NewPacket()
	err := packet.Set(dc, basic, pdfInfo)
	if err != nil {
		return nil, err
	}
	return &Stream{Data: packet}, nil
}

// Write writes an XMP metadata stream describing info to w.
func Write(w pdf.Putter, info *pdf.Info, lang language.Tag, now time.Time) (pdf.Reference, error) {
	s, err := FromInfo(info, lang, now)
	if err != nil {
		return 0, err
	}
	return s.Embed(w)
}

// basicInfo is the XMP basic namespace.
type basicInfo struct {
	_            xmp.Namespace `xmp:"http://ns.adobe.com/xap/1.0/"`
	_            xmp.Prefix    `xmp:"xmp"`
	CreateDate   xmp.Date
	ModifyDate   xmp.Date
	MetadataDate xmp.Date
	CreatorTool  xmp.AgentName
}

// pdfNS is the XMP namespace for PDF properties.
type pdfNS struct {
	_        xmp.Namespace `xmp:"http://ns.adobe.com/pdf/1.3/"`
	_        xmp.Prefix    `xmp:"pdf"`
	Keywords xmp.Text
	Producer xmp.AgentName
}
