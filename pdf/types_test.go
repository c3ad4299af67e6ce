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
	"math"
	"testing"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		in  Object
		out string
	}{
		{nil, "null"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Integer(42), "42"},
		{Integer(-7), "-7"},
		{Real(1.5), "1.5"},
		{Real(2), "2."},
		{Name("Type"), "/Type"},
		{Name("A B"), "/A#20B"},
		{Name("x#y"), "/x#23y"},
		{String("hello"), "(hello)"},
		{String("a(b)c"), "(a(b)c)"},
		{String("a(b"), `(a\(b)`},
		{String("line\n"), `(line\n)`},
		{String{0, 1, 2, 3}, "<00010203>"},
		{String(""), "()"},
		{String("ab)(cdef"), `(ab\)\(cdef)`},
		{String(")("), "<2928>"},
		{String(`a\b`), `(a\\b)`},
		{String{0xff, 'a', 'b', 'c'}, `(\377abc)`},
		{Name("a/b"), "/a#2fb"},
		{Name("\xe9"), "/#e9"},
		{Array{Integer(1), nil, Name("x")}, "[1 null /x]"},
		{Array{}, "[]"},
		{Dict{"B": Integer(1), "A": Name("x")}, "<<\n/A /x\n/B 1\n>>"},
		{Dict{"A": nil}, "<<\n>>"},
		{NewReference(5, 0), "5 0 R"},
		{NewReference(12, 3), "12 3 R"},
	}
	for _, test := range cases {
		got := Format(test.in)
		if got != test.out {
			t.Errorf("Format(%#v) = %q, want %q", test.in, got, test.out)
		}
	}
}

func TestParensBalanced(t *testing.T) {
	cases := map[string]bool{
		"":       true,
		"()":     true,
		"(()())": true,
		")(":     false,
		"((":     false,
		"a)":     false,
	}
	for in, want := range cases {
		if got := parensBalanced([]byte(in)); got != want {
			t.Errorf("parensBalanced(%q) = %t, want %t", in, got, want)
		}
	}
}

func TestRealInvalid(t *testing.T) {
	for _, x := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := Real(x).PDF(&bytes.Buffer{})
		if err == nil {
			t.Errorf("no error for %g", x)
		}
	}
}

func TestStreamLength(t *testing.T) {
	stm := &Stream{
		Dict: Dict{"Length": Integer(1000)},
		R:    bytes.NewReader([]byte("12345")),
	}
	got := Format(stm)
	want := "<<\n/Length 5\n>>\nstream\n12345\nendstream"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if stm.Dict["Length"] != Integer(1000) {
		t.Error("caller's dictionary was modified")
	}
}

func TestReference(t *testing.T) {
	ref := NewReference(0xFFFFFFFF, 0xFFFF)
	if ref.Number() != 0xFFFFFFFF {
		t.Errorf("wrong number %d", ref.Number())
	}
	if ref.Generation() != 0xFFFF {
		t.Errorf("wrong generation %d", ref.Generation())
	}
	if s := NewReference(7, 0).String(); s != "obj_7" {
		t.Errorf("wrong string %q", s)
	}
	if s := NewReference(7, 2).String(); s != "obj_7@2" {
		t.Errorf("wrong string %q", s)
	}
}

func TestKeyword(t *testing.T) {
	if IsNative(Keyword("foo")) {
		t.Error("keywords must not be native")
	}
	for _, obj := range []Object{nil, Integer(1), Dict{}, &Stream{}, NewReference(1, 0)} {
		if !IsNative(obj) {
			t.Errorf("%T should be native", obj)
		}
	}

	err := Keyword("foo").PDF(&bytes.Buffer{})
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
	if unsupported.Obj != Keyword("foo") {
		t.Errorf("wrong object %v", unsupported.Obj)
	}

	err = Array{Integer(1), Keyword("bar")}.PDF(&bytes.Buffer{})
	if !errors.As(err, &unsupported) {
		t.Errorf("nested keyword: expected UnsupportedError, got %v", err)
	}
}

func TestTextString(t *testing.T) {
	for _, s := range []string{"", "hello", "Jochen Voß", "日本語", "a\tb"} {
		enc := TextString(s)
		if got := enc.AsTextString(); got != s {
			t.Errorf("%q: round trip gave %q", s, got)
		}
	}

	if enc := TextString("plain"); string(enc) != "plain" {
		t.Errorf("ASCII text was encoded as %q", enc)
	}
	enc := TextString("ß")
	if !bytes.HasPrefix(enc, []byte{0xFE, 0xFF}) {
		t.Errorf("missing byte order mark in %x", []byte(enc))
	}
}
