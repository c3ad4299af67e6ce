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

package pdfmerge

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/language"

	"seehuhn.de/go/pdfmerge/metadata"
	"seehuhn.de/go/pdfmerge/outline"
	"seehuhn.de/go/pdfmerge/outputintent"
	"seehuhn.de/go/pdfmerge/pagetree"
	"seehuhn.de/go/pdfmerge/pdf"
	"seehuhn.de/go/pdfmerge/pdfcopy"
)

// Options can be used to configure a [Session].
type Options struct {
	// Version is the PDF version written into the file header.
	// If this is zero, PDF 1.7 is used.
	Version pdf.Version

	// Smart enables deduplication of streams with identical data, across
	// all source files.
	Smart bool

	// CompressStreams causes stream data without filters to be compressed.
	CompressStreams bool

	// Info (optional) is written as the document information dictionary.
	Info *pdf.Info

	// Metadata causes an XMP metadata stream describing Info to be added
	// to the document catalog.
	Metadata bool

	// Lang (optional) is the natural language of the document.
	Lang language.Tag

	// Logger receives diagnostic messages.  If this is nil, nothing is
	// logged.
	Logger *slog.Logger
}

// A Session builds one output file from pages of one or more source files.
//
// The methods of a Session must not be called concurrently.
type Session struct {
	w      *pdf.Writer
	copier *pdfcopy.Copier
	log    *slog.Logger
	opt    Options

	pagesRoot pdf.Reference
	pages     []pdf.Reference

	acroForm      pdf.Object
	hasAcroForm   bool
	outputIntents pdf.Array
	hasIntents    bool
	outline       *outline.Outline

	maxVersion pdf.Version
	closed     bool
}

// Create creates the named output file and starts a new session.
// If the file exists, it is overwritten.
func Create(fname string, opt *Options) (*Session, error) {
	fd, err := os.Create(fname)
	if err != nil {
		return nil, err
	}
	s, err := Open(fd, opt)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return s, nil
}

// Open starts a new session which writes the merged file to w.
// If w implements [io.Closer], it is closed by [Session.Close] and by
// [Session.Abort].
func Open(w io.Writer, opt *Options) (*Session, error) {
	if opt == nil {
		opt = &Options{}
	}

	out, err := pdf.NewWriter(w, &pdf.WriterOptions{
		Version:         opt.Version,
		CompressStreams: opt.CompressStreams,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		w:   out,
		log: opt.Logger,
		opt: *opt,
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	s.pagesRoot = out.Alloc()
	s.copier = pdfcopy.NewCopier(out, s.pagesRoot, &pdfcopy.Options{
		Smart:  opt.Smart,
		Logger: s.log,
	})
	return s, nil
}

// Writer returns the underlying PDF writer.  This can be used to add
// objects which are not copied from a source file.
func (s *Session) Writer() *pdf.Writer {
	return s.w
}

// NumPages returns the number of pages added so far.
func (s *Session) NumPages() int {
	return len(s.pages)
}

// AddPage appends page pageNo of src to the output.  Page numbers start
// at 1.
//
// The page is copied afresh on every call, so a page added twice appears
// twice in the output.  Objects used by the page are shared with pages
// copied earlier from the same source.  Links to the page from pages
// added before resolve to the first copy of the page.  Links to pages
// which are never added become null.
//
// If the page cannot be copied, a [*PageError] is returned.  The session
// remains usable in this case.
func (s *Session) AddPage(src pdf.Getter, pageNo int) error {
	if s.closed {
		return errClosed
	}

	ref, err := s.addPage(src, pageNo)
	if err != nil {
		return &PageError{Source: sourceName(src), Page: pageNo, Err: err}
	}
	s.pages = append(s.pages, ref)
	s.noteVersion(src)

	s.log.Debug("page added",
		"source", sourceName(src),
		"page", pageNo,
		"ref", ref,
		"total", len(s.pages))
	return nil
}

func (s *Session) addPage(src pdf.Getter, pageNo int) (pdf.Reference, error) {
	if pageNo < 1 {
		return 0, fmt.Errorf("invalid page number %d", pageNo)
	}
	page, err := pagetree.GetPage(src, pageNo-1)
	if err != nil {
		return 0, err
	}
	if page.DefaultMediaBox {
		s.log.Warn("page has no media box, using US Letter",
			"source", sourceName(src),
			"page", pageNo)
	}
	return s.copier.CopyPage(src, page.Ref, page.Dict)
}

// AddPages appends all pages of src to the output.
func (s *Session) AddPages(src pdf.Getter) error {
	n, err := pagetree.NumPages(src)
	if err != nil {
		return fmt.Errorf("%s: %w", sourceName(src), err)
	}
	for i := 1; i <= n; i++ {
		err := s.AddPage(src, i)
		if err != nil {
			return err
		}
	}
	return nil
}

// AddFile opens the named file, appends all its pages to the output and
// releases the file again.
func (s *Session) AddFile(fname string) error {
	if s.closed {
		return errClosed
	}
	r, err := pdf.Open(fname, nil)
	if err != nil {
		return err
	}

	err = s.AddPages(r)
	err2 := s.FreeReader(r)
	if err == nil {
		err = err2
	}
	return err
}

// CopyAcroForm copies the interactive form dictionary of src to the
// output.  Only the first source which has a form is used: once a form
// has been copied, later calls have no effect.
func (s *Session) CopyAcroForm(src pdf.Getter) error {
	if s.closed {
		return errClosed
	}
	form := src.GetMeta().Catalog.AcroForm
	if form == nil {
		return nil
	}
	if s.hasAcroForm {
		s.log.Debug("AcroForm ignored", "source", sourceName(src))
		return nil
	}

	res, err := s.copier.Copy(src, form)
	if err != nil {
		return fmt.Errorf("%s: AcroForm: %w", sourceName(src), err)
	}
	s.acroForm = res
	s.hasAcroForm = true
	s.noteVersion(src)
	return nil
}

// CopyOutputIntents copies the output intents of src to the output.
// Like for [Session.CopyAcroForm], only the first source which has
// output intents is used.
func (s *Session) CopyOutputIntents(src pdf.Getter) error {
	if s.closed {
		return errClosed
	}
	intents := src.GetMeta().Catalog.OutputIntents
	if intents == nil {
		return nil
	}
	if s.hasIntents {
		s.log.Debug("output intents ignored", "source", sourceName(src))
		return nil
	}

	a, err := pdf.GetArray(src, intents)
	if err != nil {
		return fmt.Errorf("%s: OutputIntents: %w", sourceName(src), err)
	}
	res, err := s.copier.Copy(src, a)
	if err != nil {
		return fmt.Errorf("%s: OutputIntents: %w", sourceName(src), err)
	}
	copied, _ := res.(pdf.Array)
	s.outputIntents = append(s.outputIntents, copied...)
	s.hasIntents = true
	return nil
}

// AddOutputIntent adds an output intent to the document catalog.
func (s *Session) AddOutputIntent(oi *outputintent.Intent) error {
	if s.closed {
		return errClosed
	}
	dict, err := oi.Embed(s.w)
	if err != nil {
		return err
	}
	s.outputIntents = append(s.outputIntents, dict)
	return nil
}

// SetOutlines sets the document outline of the output.  The page indices
// of the outline items refer to the pages of the output, in the order in
// which they were added.
func (s *Session) SetOutlines(o *outline.Outline) {
	s.outline = o
}

// FreeReader discards the translation table for src.  If src implements
// [io.Closer], it is closed.  Pages of src added after this call do not
// share objects with pages added before.
func (s *Session) FreeReader(src pdf.Getter) error {
	s.copier.Free(src)
	if closer, ok := src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Close writes the page tree, the document catalog and the
// cross-reference table, and closes the output.
//
// If a reference allocated using [Session.Writer] was never bound,
// a [*pdf.DanglingReferenceError] is returned and the output is not
// finished.
func (s *Session) Close() error {
	if s.closed {
		return errClosed
	}
	s.closed = true

	err := s.finish()
	if err != nil {
		s.w.Abort()
		return err
	}

	err = s.w.Close()
	if err != nil {
		return err
	}

	st := s.copier.Stats()
	s.log.Info("output written",
		"pages", len(s.pages),
		"objects", st.Objects,
		"streams", st.Streams,
		"dedup", st.DedupHits,
		"coerced", st.Coerced,
		"unresolved", st.Unresolved)
	return nil
}

// finish writes the page tree root and fills in the document catalog.
func (s *Session) finish() error {
	s.copier.ReleasePending()

	kids := make(pdf.Array, len(s.pages))
	for i, ref := range s.pages {
		kids[i] = ref
	}
	err := s.w.Put(s.pagesRoot, pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  kids,
		"Count": pdf.Integer(len(s.pages)),
	})
	if err != nil {
		return err
	}

	meta := s.w.GetMeta()
	catalog := meta.Catalog
	catalog.Pages = s.pagesRoot

	if s.outline != nil {
		ref, err := s.outline.Write(s.w, s.pages)
		if err != nil {
			return fmt.Errorf("outline: %w", err)
		}
		catalog.Outlines = ref
	}
	if s.hasAcroForm {
		catalog.AcroForm = s.acroForm
	}
	if len(s.outputIntents) > 0 {
		catalog.OutputIntents = s.outputIntents
	}
	catalog.Lang = s.opt.Lang

	if s.maxVersion > meta.Version {
		if meta.Version >= pdf.V1_4 {
			catalog.Version = s.maxVersion
		} else {
			s.log.Warn("source uses a newer PDF version than the output",
				"source", s.maxVersion,
				"output", meta.Version)
		}
	}

	meta.Info = s.opt.Info
	if s.opt.Metadata {
		ref, err := metadata.Write(s.w, s.opt.Info, s.opt.Lang, time.Now())
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
		catalog.Metadata = ref
	}
	return nil
}

// Abort abandons the session and closes the output without finishing
// the PDF file.
func (s *Session) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Abort()
}

func (s *Session) noteVersion(src pdf.Getter) {
	if v := src.GetMeta().Version; v > s.maxVersion {
		s.maxVersion = v
	}
}

// sourceName returns a description of src for use in messages.
func sourceName(src pdf.Getter) string {
	if stringer, ok := src.(fmt.Stringer); ok {
		return stringer.String()
	}
	return fmt.Sprintf("%T", src)
}
