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

// Package outputintent implements PDF output intent dictionaries.
package outputintent

import (
	"bytes"
	"errors"
	"fmt"

	"seehuhn.de/go/icc"

	"seehuhn.de/go/pdfmerge/pdf"
)

// PDF 2.0 sections: 14.11.5

// Subtypes of output intents.
const (
	PDFX  pdf.Name = "GTS_PDFX"
	PDFA1 pdf.Name = "GTS_PDFA1"
	PDFE1 pdf.Name = "ISO_PDFE1"
)

// Intent describes the color characteristics of an output device.
type Intent struct {
	// Subtype identifies the standard the intent belongs to.
	// If this is empty, [PDFA1] is used.
	Subtype pdf.Name

	// OutputCondition (optional) is a human-readable description of the
	// output condition.
	OutputCondition string

	// OutputConditionIdentifier identifies the output condition, either by
	// a name in the registry given by RegistryName or by "Custom".
	OutputConditionIdentifier string

	// RegistryName (optional) is the URL of the registry for
	// OutputConditionIdentifier.
	RegistryName string

	// Info (optional) describes the output condition in more detail.
	Info string

	// Profile (optional) is an ICC profile describing the output device.
	// The profile is required if OutputConditionIdentifier is not a
	// registered name.
	Profile []byte
}

// Embed writes the ICC profile, if any, to w and returns the output intent
// dictionary.  The dictionary is meant to be stored in the /OutputIntents
// array of the document catalog.
func (oi *Intent) Embed(w pdf.Putter) (pdf.Dict, error) {
	if oi.OutputConditionIdentifier == "" {
		return nil, errors.New("output intent: missing OutputConditionIdentifier")
	}

	subtype := oi.Subtype
	if subtype == "" {
		subtype = PDFA1
	}
	dict := pdf.Dict{
		"Type":                      pdf.Name("OutputIntent"),
		"S":                         subtype,
		"OutputConditionIdentifier": pdf.TextString(oi.OutputConditionIdentifier),
	}
	if oi.OutputCondition != "" {
		dict["OutputCondition"] = pdf.TextString(oi.OutputCondition)
	}
	if oi.RegistryName != "" {
		dict["RegistryName"] = pdf.TextString(oi.RegistryName)
	}
	if oi.Info != "" {
		dict["Info"] = pdf.TextString(oi.Info)
	}

	if len(oi.Profile) > 0 {
		n, err := numComponents(oi.Profile)
		if err != nil {
			return nil, err
		}

		ref := w.Alloc()
		stm := &pdf.Stream{
			Dict: pdf.Dict{"N": pdf.Integer(n)},
			R:    bytes.NewReader(oi.Profile),
		}
		err = w.Put(ref, stm)
		if err != nil {
			w.Free(ref)
			return nil, err
		}
		dict["DestOutputProfile"] = ref
	}

	return dict, nil
}

// Decode reads an output intent dictionary.
func Decode(r pdf.Getter, obj pdf.Object) (*Intent, error) {
	dict, err := pdf.GetDict(r, obj)
	if err != nil {
		return nil, err
	}
	if dict == nil {
		return nil, pdf.Errorf("missing output intent dictionary")
	}

	oi := &Intent{}
	oi.Subtype, err = pdf.GetName(r, dict["S"])
	if err != nil {
		return nil, pdf.Wrap(err, "output intent /S")
	}

	text := func(key pdf.Name) string {
		s, _ := pdf.GetString(r, dict[key])
		return s.AsTextString()
	}
	oi.OutputCondition = text("OutputCondition")
	oi.OutputConditionIdentifier = text("OutputConditionIdentifier")
	oi.RegistryName = text("RegistryName")
	oi.Info = text("Info")

	stm, err := pdf.GetStream(r, dict["DestOutputProfile"])
	if err != nil {
		return nil, pdf.Wrap(err, "output intent profile")
	}
	if stm != nil {
		oi.Profile, err = pdf.Decode(r, stm)
		if err != nil {
			return nil, pdf.Wrap(err, "output intent profile")
		}
	}

	return oi, nil
}

// numComponents decodes the ICC profile and returns the number of color
// components of its color space.
func numComponents(profile []byte) (int, error) {
	p, err := icc.Decode(profile)
	if err != nil {
		return 0, fmt.Errorf("output intent: invalid ICC profile: %w", err)
	}
	n := p.ColorSpace.NumComponents()
	if n != 1 && n != 3 && n != 4 {
		return 0, fmt.Errorf("output intent: unsupported number of components %d", n)
	}
	return n, nil
}
