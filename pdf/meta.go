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
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// MetaInfo represents the meta information of a PDF file.
type MetaInfo struct {
	// Version is the PDF version used in this file.
	Version Version

	// The ID of the file.  This is either a slice of two byte slices (the
	// original ID of the file, and the ID of the current version), or nil if
	// the file does not specify an ID.
	ID [][]byte

	// Catalog is the document catalog for this file.
	Catalog *Catalog

	// Info is the document information dictionary for this file.
	// This is nil if the file does not contain a document information
	// dictionary.
	Info *Info

	// Trailer is the trailer dictionary for the file.
	// This excludes entries related to the cross-reference table.
	Trailer Dict
}

// Version represents a version of PDF standard.
type Version int

// PDF versions supported by this library.
const (
	_ Version = iota
	V1_0
	V1_1
	V1_2
	V1_3
	V1_4
	V1_5
	V1_6
	V1_7
	V2_0
)

// ParseVersion parses a PDF version string.
func ParseVersion(verString string) (Version, error) {
	switch verString {
	case "1.0":
		return V1_0, nil
	case "1.1":
		return V1_1, nil
	case "1.2":
		return V1_2, nil
	case "1.3":
		return V1_3, nil
	case "1.4":
		return V1_4, nil
	case "1.5":
		return V1_5, nil
	case "1.6":
		return V1_6, nil
	case "1.7":
		return V1_7, nil
	case "2.0":
		return V2_0, nil
	}
	return 0, errVersion
}

// ToString returns the string representation of ver, e.g. "1.7".
// If ver does not correspond to a supported PDF version, an error is
// returned.
func (ver Version) ToString() (string, error) {
	if ver >= V1_0 && ver <= V1_7 {
		return "1." + string([]byte{byte(ver - V1_0 + '0')}), nil
	}
	if ver == V2_0 {
		return "2.0", nil
	}
	return "", errVersion
}

func (ver Version) String() string {
	versionString, err := ver.ToString()
	if err != nil {
		versionString = "pdf.Version(" + strconv.Itoa(int(ver)) + ")"
	}
	return versionString
}

// Catalog represents a PDF Document Catalog.  The only required field in this
// structure is Pages, which specifies the root of the page tree.
//
// Entries without a dedicated field are kept in Extra.
type Catalog struct {
	// Version (optional, PDF 1.4) specifies the PDF version this document
	// conforms to if later than the version in the file header.
	Version Version

	// Pages is the root of the document's page tree.
	Pages Reference

	// Outlines (optional) is the root of the document's outline hierarchy.
	Outlines Reference

	// PageMode (optional) specifies how the document should be displayed when
	// opened.
	PageMode Name

	// AcroForm (optional, PDF 1.2) is the document's interactive form
	// dictionary.
	AcroForm Object

	// Metadata (optional, PDF 1.4) contains metadata for the document.
	Metadata Reference

	// Lang (optional, PDF 1.4) specifies the natural language for all text in
	// the document.
	Lang language.Tag

	// OutputIntents (optional, PDF 1.4) specifies the color characteristics of
	// output devices on which the document might be rendered.
	OutputIntents Object

	Extra Dict
}

// AsDict returns the catalog as a PDF dictionary.
func (c *Catalog) AsDict() Dict {
	dict := Dict{}
	for key, val := range c.Extra {
		dict[key] = val
	}
	dict["Type"] = Name("Catalog")
	dict["Pages"] = c.Pages
	if c.Version != 0 {
		if s, err := c.Version.ToString(); err == nil {
			dict["Version"] = Name(s)
		}
	}
	if c.Outlines != 0 {
		dict["Outlines"] = c.Outlines
	}
	if c.PageMode != "" {
		dict["PageMode"] = c.PageMode
	}
	if c.AcroForm != nil {
		dict["AcroForm"] = c.AcroForm
	}
	if c.Metadata != 0 {
		dict["Metadata"] = c.Metadata
	}
	if c.Lang != language.Und {
		dict["Lang"] = TextString(c.Lang.String())
	}
	if c.OutputIntents != nil {
		dict["OutputIntents"] = c.OutputIntents
	}
	return dict
}

// DecodeCatalog converts a catalog dictionary into a Catalog.
func DecodeCatalog(r Getter, dict Dict) (*Catalog, error) {
	if dict == nil {
		return nil, Errorf("catalog dictionary is missing")
	}

	pages, ok := dict["Pages"].(Reference)
	if !ok {
		return nil, Errorf("catalog: /Pages must be an indirect reference")
	}

	c := &Catalog{
		Pages:         pages,
		AcroForm:      dict["AcroForm"],
		OutputIntents: dict["OutputIntents"],
		Extra:         Dict{},
	}
	if ver, err := GetName(r, dict["Version"]); err == nil && ver != "" {
		c.Version, _ = ParseVersion(string(ver))
	}
	c.Outlines, _ = dict["Outlines"].(Reference)
	c.Metadata, _ = dict["Metadata"].(Reference)
	c.PageMode, _ = GetName(r, dict["PageMode"])
	if lang, err := GetString(r, dict["Lang"]); err == nil && len(lang) > 0 {
		c.Lang, _ = language.Parse(lang.AsTextString())
	}

	for key, val := range dict {
		switch key {
		case "Type", "Pages", "Version", "Outlines", "PageMode", "AcroForm",
			"Metadata", "Lang", "OutputIntents":
			// pass
		default:
			c.Extra[key] = val
		}
	}
	return c, nil
}

// Info represents a PDF Document Information Dictionary.
// All fields in this structure are optional.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string

	// Creator gives the name of the application that created the original
	// document, if the document was converted to PDF from another format.
	Creator string

	// Producer gives the name of the application that converted the document,
	// if the document was converted to PDF from another format.
	Producer string

	// CreationDate gives the date and time the document was created.
	CreationDate time.Time

	// ModDate gives the date and time the document was most recently modified.
	ModDate time.Time
}

// AsDict returns the information dictionary as a PDF dictionary.
func (info *Info) AsDict() Dict {
	dict := Dict{}
	set := func(key Name, val string) {
		if val != "" {
			dict[key] = TextString(val)
		}
	}
	set("Title", info.Title)
	set("Author", info.Author)
	set("Subject", info.Subject)
	set("Keywords", info.Keywords)
	set("Creator", info.Creator)
	set("Producer", info.Producer)
	if !info.CreationDate.IsZero() {
		dict["CreationDate"] = Date(info.CreationDate)
	}
	if !info.ModDate.IsZero() {
		dict["ModDate"] = Date(info.ModDate)
	}
	return dict
}

// Date creates a PDF String object encoding the given date and time.
func Date(t time.Time) String {
	s := t.Format("D:20060102150405-0700")
	k := len(s) - 2
	s = s[:k] + "'" + s[k:]
	return String(s)
}

// AsDate converts a PDF date string to a time.Time object.
// If the string does not have the correct format, an error is returned.
func (x String) AsDate() (time.Time, error) {
	s := x.AsTextString()
	if s == "D:" || s == "" {
		return time.Time{}, nil
	}
	s = strings.ReplaceAll(s, "'", "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "19") || strings.HasPrefix(s, "20") {
		s = "D:" + s
	}

	formats := []string{
		"D:20060102150405-0700",
		"D:20060102150405-07",
		"D:20060102150405Z0000",
		"D:20060102150405Z00",
		"D:20060102150405Z",
		"D:20060102150405",
		"D:200601021504",
		"D:2006010215",
		"D:20060102",
		"D:200601",
		"D:2006",
	}
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNoDate
}

var errNoDate = errors.New("malformed date string")

// DecodeInfo converts a document information dictionary into an Info.
// Malformed entries are ignored.  If obj is nil, nil is returned.
func DecodeInfo(r Getter, obj Object) (*Info, error) {
	dict, err := GetDict(r, obj)
	if err != nil || dict == nil {
		return nil, err
	}

	text := func(key Name) string {
		s, _ := GetString(r, dict[key])
		return s.AsTextString()
	}
	date := func(key Name) time.Time {
		s, _ := GetString(r, dict[key])
		t, _ := s.AsDate()
		return t
	}
	info := &Info{
		Title:        text("Title"),
		Author:       text("Author"),
		Subject:      text("Subject"),
		Keywords:     text("Keywords"),
		Creator:      text("Creator"),
		Producer:     text("Producer"),
		CreationDate: date("CreationDate"),
		ModDate:      date("ModDate"),
	}
	return info, nil
}
