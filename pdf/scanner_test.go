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
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadObject(t *testing.T) {
	cases := []struct {
		in  string
		out Object
	}{
		{"null", nil},
		{"true", Bool(true)},
		{"false", Bool(false)},
		{"12", Integer(12)},
		{"-3", Integer(-3)},
		{"+17", Integer(17)},
		{"-.5", Real(-0.5)},
		{"4.25", Real(4.25)},
		{"12 0 R", NewReference(12, 0)},
		{"12 0", Integer(12)},
		{"7 3 R", NewReference(7, 3)},
		{"/Name", Name("Name")},
		{"/A#42", Name("AB")},
		{"(hello)", String("hello")},
		{`(a\)b)`, String("a)b")},
		{`(a(b)c)`, String("a(b)c")},
		{`(\101\n)`, String("A\n")},
		{"<48656c6c6f>", String("Hello")},
		{"<48 65 6>", String("He`")},
		{"[1 2 R]", Array{NewReference(1, 2)}},
		{"[1 2 3]", Array{Integer(1), Integer(2), Integer(3)}},
		{"[/a[]]", Array{Name("a"), Array{}}},
		{"<< /A 1 /B null >>", Dict{"A": Integer(1)}},
		{"<</Pages 2 0 R/Kids[]/Count 0>>", Dict{
			"Pages": NewReference(2, 0),
			"Kids":  Array{},
			"Count": Integer(0),
		}},
		{"% comment\n/X", Name("X")},
		{"foo", Keyword("foo")},
		{"TRUE", Keyword("TRUE")},
	}
	for _, test := range cases {
		s := newScanner(strings.NewReader(test.in), 0, nil)
		obj, err := s.ReadObject()
		if err != nil {
			t.Errorf("%q: %v", test.in, err)
			continue
		}
		if d := cmp.Diff(test.out, obj); d != "" {
			t.Errorf("%q: %s", test.in, d)
		}
	}
}

func TestReadObjectErrors(t *testing.T) {
	cases := []string{
		"",
		"(unterminated",
		"<4x>",
		"[1 2",
		"<< 1 2 >>",
		strings.Repeat("[", 200) + strings.Repeat("]", 200),
	}
	for _, in := range cases {
		s := newScanner(strings.NewReader(in), 0, nil)
		_, err := s.ReadObject()
		if err == nil {
			t.Errorf("%q: missing error", in)
		}
	}
}

func TestReadIndirectObject(t *testing.T) {
	in := "3 1 obj\n<< /Length 5 /Type /XObject >>\nstream\nABCDE\nendstream\nendobj\n"
	s := newScanner(strings.NewReader(in), 0, nil)
	obj, ref, err := s.ReadIndirectObject()
	if err != nil {
		t.Fatal(err)
	}
	if ref != NewReference(3, 1) {
		t.Errorf("wrong reference %s", ref)
	}
	stm, ok := obj.(*Stream)
	if !ok {
		t.Fatalf("expected stream, got %T", obj)
	}
	data, err := io.ReadAll(stm.R)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ABCDE" {
		t.Errorf("wrong stream data %q", data)
	}
	if stm.Dict["Type"] != Name("XObject") {
		t.Errorf("wrong stream dict %v", stm.Dict)
	}
}

func TestStreamLengthMismatch(t *testing.T) {
	cases := []string{
		// data shorter than /Length
		"1 0 obj\n<< /Length 100 >>\nstream\nabc\nendstream\nendobj\n",
		// /Length shorter than data
		"1 0 obj\n<< /Length 1 >>\nstream\nabc\nendstream\nendobj\n",
		// missing /Length
		"1 0 obj\n<< >>\nstream\nabc\nendstream\nendobj\n",
	}
	for i, in := range cases {
		s := newScanner(strings.NewReader(in), 0, nil)
		_, _, err := s.ReadIndirectObject()
		if !IsMalformed(err) {
			t.Errorf("%d: expected MalformedFileError, got %v", i, err)
		}
	}
}

func TestReadHeaderVersion(t *testing.T) {
	s := newScanner(strings.NewReader("%PDF-1.4\n%\x80\x80\n"), 0, nil)
	ver, err := s.readHeaderVersion()
	if err != nil {
		t.Fatal(err)
	}
	if ver != V1_4 {
		t.Errorf("wrong version %s", ver)
	}

	s = newScanner(strings.NewReader("hello world"), 0, nil)
	_, err = s.readHeaderVersion()
	if err == nil {
		t.Error("missing error for file without header")
	}
}
