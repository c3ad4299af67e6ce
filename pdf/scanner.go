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
	"io"
	"strconv"
)

const scannerBufSize = 1024

// maxNesting limits the nesting depth of arrays and dictionaries.
const maxNesting = 128

type scanner struct {
	r         io.Reader
	buf       []byte
	pos, used int
	eof       bool

	// startPos is the file offset corresponding to the start of r,
	// discarded counts the bytes dropped from the front of buf.
	startPos  int64
	discarded int64

	getInt func(Object) (Integer, error)
	depth  int

	// If ra is set, stream data is not read but returned as a section
	// of ra.  The scanner input then is ra, starting at startPos and
	// ending at size.
	ra   io.ReaderAt
	size int64
}

func newScanner(r io.Reader, startPos int64, getInt func(Object) (Integer, error)) *scanner {
	return &scanner{
		r:        r,
		buf:      make([]byte, scannerBufSize),
		startPos: startPos,
		getInt:   getInt,
	}
}

// newFileScanner returns a scanner which reads ra from pos to size.
// Stream data is not read into memory.
func newFileScanner(ra io.ReaderAt, pos, size int64, getInt func(Object) (Integer, error)) *scanner {
	s := newScanner(io.NewSectionReader(ra, pos, size-pos), pos, getInt)
	s.ra = ra
	s.size = size
	return s
}

// skipTo moves a file scanner to the file offset pos, without reading the
// bytes in between.
func (s *scanner) skipTo(pos int64) error {
	if pos > s.size {
		return io.ErrUnexpectedEOF
	}
	s.r = io.NewSectionReader(s.ra, pos, s.size-pos)
	s.startPos = pos
	s.discarded = 0
	s.pos = 0
	s.used = 0
	s.eof = false
	return nil
}

// currentPos returns the file offset of the next unread byte.
func (s *scanner) currentPos() int64 {
	return s.startPos + s.discarded + int64(s.pos)
}

// bytesRead returns the number of bytes consumed since the scanner was
// created.
func (s *scanner) bytesRead() int64 {
	return s.discarded + int64(s.pos)
}

func (s *scanner) malformed(msg string) error {
	return &MalformedFileError{
		Pos: s.currentPos(),
		Err: errors.New(msg),
	}
}

// refill makes sure that at least n bytes are available in the buffer,
// unless the end of input is reached first.
func (s *scanner) refill(n int) error {
	if s.used-s.pos >= n || s.eof {
		return nil
	}

	if s.pos > 0 {
		copy(s.buf, s.buf[s.pos:s.used])
		s.discarded += int64(s.pos)
		s.used -= s.pos
		s.pos = 0
	}
	if n > len(s.buf) {
		buf := make([]byte, n+scannerBufSize)
		copy(buf, s.buf[:s.used])
		s.buf = buf
	}

	for s.used < n && !s.eof {
		k, err := s.r.Read(s.buf[s.used:])
		s.used += k
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			return err
		}
	}
	return nil
}

// Peek returns the next n bytes without consuming them.  Fewer bytes are
// returned at the end of input.
func (s *scanner) Peek(n int) ([]byte, error) {
	err := s.refill(n)
	if err != nil {
		return nil, err
	}
	end := s.pos + n
	if end > s.used {
		end = s.used
	}
	return s.buf[s.pos:end], nil
}

// Discard skips the next n bytes.
func (s *scanner) Discard(n int64) error {
	for n > 0 {
		err := s.refill(1)
		if err != nil {
			return err
		}
		avail := int64(s.used - s.pos)
		if avail == 0 {
			return &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		}
		if avail > n {
			avail = n
		}
		s.pos += int(avail)
		n -= avail
	}
	return nil
}

// ReadBytes reads exactly n bytes.
func (s *scanner) ReadBytes(n int) ([]byte, error) {
	res := make([]byte, 0, n)
	for len(res) < n {
		err := s.refill(1)
		if err != nil {
			return nil, err
		}
		if s.used == s.pos {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		}
		k := n - len(res)
		if k > s.used-s.pos {
			k = s.used - s.pos
		}
		res = append(res, s.buf[s.pos:s.pos+k]...)
		s.pos += k
	}
	return res, nil
}

// SkipWhiteSpace skips white space and comments.
func (s *scanner) SkipWhiteSpace() error {
	for {
		err := s.refill(1)
		if err != nil {
			return err
		}
		if s.pos >= s.used {
			return nil
		}
		c := s.buf[s.pos]
		switch {
		case isSpace[c]:
			s.pos++
		case c == '%':
			for {
				err := s.refill(1)
				if err != nil {
					return err
				}
				if s.pos >= s.used {
					return nil
				}
				c := s.buf[s.pos]
				if c == '\r' || c == '\n' {
					break
				}
				s.pos++
			}
		default:
			return nil
		}
	}
}

// SkipString consumes the given string, which must come next in the input.
func (s *scanner) SkipString(pat string) error {
	buf, err := s.Peek(len(pat))
	if err != nil {
		return err
	}
	if string(buf) != pat {
		return s.malformed("expected \"" + pat + "\"")
	}
	s.pos += len(pat)
	return nil
}

// readToken reads a sequence of regular (non-space, non-delimiter)
// characters.
func (s *scanner) readToken() ([]byte, error) {
	var res []byte
	for {
		err := s.refill(1)
		if err != nil {
			return nil, err
		}
		if s.pos >= s.used {
			return res, nil
		}
		c := s.buf[s.pos]
		if isSpace[c] || isDelimiter[c] {
			return res, nil
		}
		res = append(res, c)
		s.pos++
	}
}

// ReadInteger reads an integer, skipping leading white space.
func (s *scanner) ReadInteger() (Integer, error) {
	err := s.SkipWhiteSpace()
	if err != nil {
		return 0, err
	}
	tok, err := s.readToken()
	if err != nil {
		return 0, err
	}
	x, err := strconv.ParseInt(string(tok), 10, 64)
	if err != nil {
		return 0, s.malformed("invalid integer " + strconv.Quote(string(tok)))
	}
	return Integer(x), nil
}

// ReadObject reads a direct object.  References "n g R" are recognised.
// Streams are not allowed here, see ReadIndirectObject.
func (s *scanner) ReadObject() (Object, error) {
	err := s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}
	buf, err := s.Peek(2)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
	}

	switch c := buf[0]; {
	case c == '/':
		s.pos++
		return s.ReadName()
	case c == '(':
		s.pos++
		return s.ReadQuotedString()
	case c == '<' && len(buf) > 1 && buf[1] == '<':
		return s.ReadDict()
	case c == '<':
		s.pos++
		return s.ReadHexString()
	case c == '[':
		return s.ReadArray()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return s.readNumberOrReference()
	case isDelimiter[c]:
		return nil, s.malformed("unexpected character " + strconv.QuoteRune(rune(c)))
	}

	tok, err := s.readToken()
	if err != nil {
		return nil, err
	}
	switch string(tok) {
	case "null":
		return nil, nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	return Keyword(tok), nil
}

func (s *scanner) readNumberOrReference() (Object, error) {
	tok, err := s.readToken()
	if err != nil {
		return nil, err
	}

	isInt := len(tok) > 0
	for i, c := range tok {
		if (c < '0' || c > '9') && !(i == 0 && (c == '+' || c == '-')) {
			isInt = false
			break
		}
	}
	if isInt {
		x, err := strconv.ParseInt(string(tok), 10, 64)
		if err == nil {
			if x >= 0 && x <= 0xFFFFFFFF {
				ref, ok, err := s.tryReference(uint32(x))
				if err != nil {
					return nil, err
				}
				if ok {
					return ref, nil
				}
			}
			return Integer(x), nil
		}
	}

	// Some writers produce numbers like "--5" or "5-" ...
	clean := bytes.TrimLeft(tok, "+")
	if bytes.HasPrefix(clean, []byte("--")) {
		clean = clean[1:]
	}
	x, err := strconv.ParseFloat(string(clean), 64)
	if err != nil {
		return nil, s.malformed("invalid number " + strconv.Quote(string(tok)))
	}
	return Real(x), nil
}

// tryReference checks whether the number just read is the start of an
// indirect reference "n g R".  If so, the rest of the reference is consumed.
func (s *scanner) tryReference(number uint32) (Reference, bool, error) {
	buf, err := s.Peek(32)
	if err != nil {
		return 0, false, err
	}

	i := 0
	for i < len(buf) && isSpace[buf[i]] {
		i++
	}
	if i == 0 {
		return 0, false, nil
	}
	start := i
	for i < len(buf) && buf[i] >= '0' && buf[i] <= '9' {
		i++
	}
	if i == start || i-start > 5 {
		return 0, false, nil
	}
	gen, err := strconv.ParseUint(string(buf[start:i]), 10, 16)
	if err != nil {
		return 0, false, nil
	}
	j := i
	for j < len(buf) && isSpace[buf[j]] {
		j++
	}
	if j == i || j >= len(buf) || buf[j] != 'R' {
		return 0, false, nil
	}
	j++
	if j < len(buf) && !isSpace[buf[j]] && !isDelimiter[buf[j]] {
		return 0, false, nil
	}

	s.pos += j
	return NewReference(number, uint16(gen)), true, nil
}

// ReadName reads a name.  The leading slash must already be consumed.
func (s *scanner) ReadName() (Name, error) {
	tok, err := s.readToken()
	if err != nil {
		return "", err
	}
	if bytes.IndexByte(tok, '#') < 0 {
		return Name(tok), nil
	}

	res := make([]byte, 0, len(tok))
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c == '#' && i+2 < len(tok) && isHex(tok[i+1]) && isHex(tok[i+2]) {
			res = append(res, unhex(tok[i+1])<<4|unhex(tok[i+2]))
			i += 2
			continue
		}
		res = append(res, c)
	}
	return Name(res), nil
}

// ReadQuotedString reads a literal string.  The opening parenthesis must
// already be consumed.
func (s *scanner) ReadQuotedString() (String, error) {
	var res []byte
	level := 1
	for {
		err := s.refill(4)
		if err != nil {
			return nil, err
		}
		if s.pos >= s.used {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		}
		c := s.buf[s.pos]
		s.pos++

		switch c {
		case '(':
			level++
			res = append(res, c)
		case ')':
			level--
			if level == 0 {
				return String(res), nil
			}
			res = append(res, c)
		case '\r':
			// end-of-line markers are normalised to '\n'
			if s.pos < s.used && s.buf[s.pos] == '\n' {
				s.pos++
			}
			res = append(res, '\n')
		case '\\':
			if s.pos >= s.used {
				return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
			}
			e := s.buf[s.pos]
			s.pos++
			switch e {
			case 'n':
				res = append(res, '\n')
			case 'r':
				res = append(res, '\r')
			case 't':
				res = append(res, '\t')
			case 'b':
				res = append(res, '\b')
			case 'f':
				res = append(res, '\f')
			case '\r':
				if s.pos < s.used && s.buf[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
				// line continuation
			case '0', '1', '2', '3', '4', '5', '6', '7':
				val := e - '0'
				for k := 0; k < 2 && s.pos < s.used; k++ {
					d := s.buf[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 | (d - '0')
					s.pos++
				}
				res = append(res, val)
			default:
				res = append(res, e)
			}
		default:
			res = append(res, c)
		}
	}
}

// ReadHexString reads a hexadecimal string.  The opening angle bracket must
// already be consumed.
func (s *scanner) ReadHexString() (String, error) {
	var res []byte
	var hi byte
	odd := false
	for {
		err := s.refill(1)
		if err != nil {
			return nil, err
		}
		if s.pos >= s.used {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		}
		c := s.buf[s.pos]
		s.pos++

		switch {
		case c == '>':
			if odd {
				res = append(res, hi<<4)
			}
			return String(res), nil
		case isSpace[c]:
			// pass
		case isHex(c):
			if odd {
				res = append(res, hi<<4|unhex(c))
			} else {
				hi = unhex(c)
			}
			odd = !odd
		default:
			return nil, s.malformed("invalid character in hex string")
		}
	}
}

// ReadArray reads an array.
func (s *scanner) ReadArray() (Array, error) {
	err := s.SkipString("[")
	if err != nil {
		return nil, err
	}
	s.depth++
	defer func() { s.depth-- }()
	if s.depth > maxNesting {
		return nil, s.malformed("objects nested too deeply")
	}

	res := Array{}
	for {
		err := s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		buf, err := s.Peek(1)
		if err != nil {
			return nil, err
		}
		if len(buf) == 0 {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		}
		if buf[0] == ']' {
			s.pos++
			return res, nil
		}
		obj, err := s.ReadObject()
		if err != nil {
			return nil, err
		}
		res = append(res, obj)
	}
}

// ReadDict reads a dictionary.
func (s *scanner) ReadDict() (Dict, error) {
	err := s.SkipString("<<")
	if err != nil {
		return nil, err
	}
	s.depth++
	defer func() { s.depth-- }()
	if s.depth > maxNesting {
		return nil, s.malformed("objects nested too deeply")
	}

	res := Dict{}
	for {
		err := s.SkipWhiteSpace()
		if err != nil {
			return nil, err
		}
		buf, err := s.Peek(2)
		if err != nil {
			return nil, err
		}
		if len(buf) == 0 {
			return nil, &MalformedFileError{Pos: s.currentPos(), Err: io.ErrUnexpectedEOF}
		}
		if bytes.HasPrefix(buf, []byte(">>")) {
			s.pos += 2
			return res, nil
		}
		if buf[0] != '/' {
			return nil, s.malformed("dictionary key must be a name")
		}
		s.pos++
		key, err := s.ReadName()
		if err != nil {
			return nil, err
		}
		val, err := s.ReadObject()
		if err != nil {
			return nil, err
		}
		if val != nil {
			res[key] = val
		}
	}
}

// ReadIndirectObject reads an object of the form "n g obj ... endobj".
// Stream data is read into memory.
func (s *scanner) ReadIndirectObject() (Object, Reference, error) {
	number, err := s.ReadInteger()
	if err != nil {
		return nil, 0, err
	}
	generation, err := s.ReadInteger()
	if err != nil {
		return nil, 0, err
	}
	if number < 0 || number > 0xFFFFFFFF || generation < 0 || generation > 0xFFFF {
		return nil, 0, s.malformed("invalid object number")
	}
	ref := NewReference(uint32(number), uint16(generation))

	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, 0, err
	}
	err = s.SkipString("obj")
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.ReadObject()
	if err != nil {
		return nil, 0, err
	}
	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, 0, err
	}

	buf, err := s.Peek(6)
	if err != nil {
		return nil, 0, err
	}
	if dict, isDict := obj.(Dict); isDict && bytes.Equal(buf, []byte("stream")) {
		s.pos += 6
		obj, err = s.readStreamData(dict)
		if err != nil {
			return nil, 0, err
		}
		err = s.SkipWhiteSpace()
		if err != nil {
			return nil, 0, err
		}
	}

	// A missing "endobj" is tolerated at the end of the file.
	buf, err = s.Peek(6)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) > 0 {
		err = s.SkipString("endobj")
		if err != nil {
			return nil, 0, err
		}
	}

	return obj, ref, nil
}

func (s *scanner) readStreamData(dict Dict) (*Stream, error) {
	// The keyword "stream" is followed by CRLF or LF.
	buf, err := s.Peek(2)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(buf, []byte("\r\n")) {
		s.pos += 2
	} else if len(buf) > 0 && (buf[0] == '\n' || buf[0] == '\r') {
		s.pos++
	}

	var length Integer
	if s.getInt != nil {
		length, err = s.getInt(dict["Length"])
	} else {
		l, ok := dict["Length"].(Integer)
		if !ok {
			err = s.malformed("missing /Length")
		}
		length = l
	}
	if err != nil {
		return nil, Wrap(err, "stream length")
	}
	if length < 0 {
		return nil, s.malformed("negative stream length")
	}

	dataPos := s.currentPos()
	var r io.Reader
	if s.ra != nil {
		err = s.skipTo(dataPos + int64(length))
		r = io.NewSectionReader(s.ra, dataPos, int64(length))
	} else {
		var data []byte
		data, err = s.ReadBytes(int(length))
		r = bytes.NewReader(data)
	}
	if err != nil {
		return nil, &MalformedFileError{
			Pos: dataPos,
			Err: errors.New("stream length exceeds available data"),
		}
	}

	err = s.SkipWhiteSpace()
	if err != nil {
		return nil, err
	}
	buf, err = s.Peek(9)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(buf, []byte("endstream")) {
		return nil, &MalformedFileError{
			Pos: s.currentPos(),
			Err: errors.New("stream length inconsistent with stream data"),
		}
	}
	s.pos += 9

	dict["Length"] = length
	return &Stream{
		Dict: dict,
		R:    r,
	}, nil
}

// readHeaderVersion reads the "%PDF-x.y" header.
func (s *scanner) readHeaderVersion() (Version, error) {
	buf, err := s.Peek(1024)
	if err != nil {
		return 0, err
	}
	idx := bytes.Index(buf, []byte("%PDF-"))
	if idx < 0 || len(buf) < idx+8 {
		return 0, s.malformed("PDF header not found")
	}
	ver, err := ParseVersion(string(buf[idx+5 : idx+8]))
	if err != nil {
		return 0, &MalformedFileError{Err: err}
	}
	s.pos += idx + 8
	return ver, nil
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

var isSpace = [256]bool{
	0:  true,
	9:  true,
	10: true,
	12: true,
	13: true,
	32: true,
}

var isDelimiter = [256]bool{
	'(': true,
	')': true,
	'<': true,
	'>': true,
	'[': true,
	']': true,
	'{': true,
	'}': true,
	'/': true,
	'%': true,
}
