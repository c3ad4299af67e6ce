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

// Package pdfcopy copies objects from one or more PDF files into a new file.
//
// A [Copier] keeps one translation [Table] per source file.  The table maps
// references in the source file to references in the output file, so that
// every source object is written at most once, even if it is reachable along
// several paths or is part of a reference cycle.
//
// Pages are only written by [Copier.CopyPage].  If a page is reached
// through a reference, for example from a link annotation, an output
// reference is reserved for the page and bound once the page itself is
// copied.  Reserved references of pages which are never copied are
// released by [Copier.ReleasePending].
//
// With [Options.Smart] set, streams are additionally deduplicated by their
// raw data, across all source files.
package pdfcopy

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"seehuhn.de/go/pdfmerge/pdf"
)

// Options can be used to configure a [Copier].
type Options struct {
	// Smart enables deduplication of streams with identical data.
	Smart bool

	// Cache is the stream cache used when Smart is set.  If this is nil,
	// a new cache is created.
	Cache *StreamCache

	// Logger receives warnings about objects which cannot be copied
	// faithfully.  If this is nil, nothing is logged.
	Logger *slog.Logger
}

// Entry describes how one object of a source file is translated.
type Entry struct {
	// Dest is the reference of the object in the output file.
	Dest pdf.Reference

	// Copied is set once copying of the object body has started.
	Copied bool
}

type entry struct {
	Entry
	bound bool
}

// Table is the translation table for one source file.
type Table struct {
	entries map[pdf.Reference]*entry
}

// Lookup returns the translation entry for the source reference ref.
func (t *Table) Lookup(ref pdf.Reference) (Entry, bool) {
	e, ok := t.entries[ref]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return len(t.entries)
}

// Stats summarizes the work done by a [Copier].
type Stats struct {
	// Objects is the number of objects written to the output.
	Objects int

	// Streams is the number of stream objects written to the output.
	Streams int

	// DedupHits is the number of source streams which were replaced by an
	// existing stream with the same data.
	DedupHits int

	// Coerced is the number of values which were not valid PDF objects
	// and were replaced.
	Coerced int

	// Unresolved is the number of page references which were released
	// because the page was never copied.
	Unresolved int
}

// A Copier copies objects from source files into an output file.
//
// Indirect objects are allocated in the output file as needed, and
// references are translated accordingly.
type Copier struct {
	w         pdf.Putter
	pagesRoot pdf.Reference

	tables map[pdf.Getter]*Table
	cache  *StreamCache
	log    *slog.Logger
	stats  Stats

	journal []change
}

// change records a table modification, so that it can be undone if a copy
// operation fails.
type change struct {
	table *Table
	src   pdf.Reference
	prev  *entry
	cur   *entry
}

// NewCopier creates a new Copier which writes to w.  The /Parent entry of
// every copied page dictionary is replaced by pagesRoot.  If pagesRoot is
// 0, pages reached through references are copied like other objects.
func NewCopier(w pdf.Putter, pagesRoot pdf.Reference, opt *Options) *Copier {
	if opt == nil {
		opt = &Options{}
	}
	c := &Copier{
		w:         w,
		pagesRoot: pagesRoot,
		tables:    make(map[pdf.Getter]*Table),
		log:       opt.Logger,
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	if opt.Smart {
		c.cache = opt.Cache
		if c.cache == nil {
			c.cache = NewStreamCache(nil)
		}
	}
	return c
}

// Table returns the translation table for src, or nil if no objects have
// been copied from src yet.
func (c *Copier) Table(src pdf.Getter) *Table {
	return c.tables[src]
}

// Free discards the translation table for src.  Objects copied from src
// later on are written again.  Page references reserved for src are
// released, as for [Copier.ReleasePending].
func (c *Copier) Free(src pdf.Getter) {
	if t, ok := c.tables[src]; ok {
		c.releasePending(t)
	}
	delete(c.tables, src)
}

// ReleasePending releases the output references reserved for pages which
// were referenced but never copied.  References to such pages read as
// null in the output.  This must be called before the output is closed.
func (c *Copier) ReleasePending() {
	for _, t := range c.tables {
		c.releasePending(t)
	}
}

func (c *Copier) releasePending(t *Table) {
	for ref, e := range t.entries {
		if e.Copied || e.bound {
			continue
		}
		c.w.Free(e.Dest)
		delete(t.entries, ref)
		c.stats.Unresolved++
		c.log.Debug("referenced page not copied", "page", ref)
	}
}

// Stats returns statistics about the objects copied so far.
func (c *Copier) Stats() Stats {
	return c.stats
}

func (c *Copier) table(src pdf.Getter) *Table {
	t, ok := c.tables[src]
	if !ok {
		t = &Table{entries: make(map[pdf.Reference]*entry)}
		c.tables[src] = t
	}
	return t
}

// CopyReference copies the object ref from src to the output file, together
// with all objects reachable from it, and returns the reference of the copy.
//
// If the object was copied before, the existing copy is used.
// If copying fails, all table entries created during the call are removed.
func (c *Copier) CopyReference(src pdf.Getter, ref pdf.Reference) (pdf.Reference, error) {
	c.journal = c.journal[:0]
	res, err := c.copyReference(c.table(src), src, ref)
	if err != nil {
		c.rollback()
		return 0, err
	}
	return res, nil
}

// Copy copies a direct object from src to the output file.  Indirect objects
// referenced by obj are copied as needed.
func (c *Copier) Copy(src pdf.Getter, obj pdf.Object) (pdf.Object, error) {
	c.journal = c.journal[:0]
	res, err := c.copy(c.table(src), src, obj)
	if err != nil {
		c.rollback()
		return nil, err
	}
	return res, nil
}

// CopyPage copies the page dictionary dict, found under ref in src, as a
// new page of the output file.
//
// A new output object is allocated for every call, even if the page was
// copied before.  Only if ref has been allocated but not yet copied, the
// existing output reference is used.  Afterwards, references to ref from
// objects copied later resolve to the new page.
func (c *Copier) CopyPage(src pdf.Getter, ref pdf.Reference, dict pdf.Dict) (pdf.Reference, error) {
	c.journal = c.journal[:0]
	t := c.table(src)

	prev := t.entries[ref]
	cur := prev
	reserved := cur != nil && !cur.Copied
	if !reserved {
		cur = &entry{Entry: Entry{Dest: c.w.Alloc()}}
		t.entries[ref] = cur
		c.journal = append(c.journal, change{table: t, src: ref, prev: prev, cur: cur})
	}
	cur.Copied = true

	res, err := c.copyDict(t, src, dict)
	if err == nil {
		err = c.put(cur, res)
	}
	if err != nil {
		if reserved {
			cur.Copied = false
		}
		c.rollback()
		return 0, err
	}
	return cur.Dest, nil
}

func (c *Copier) copyReference(t *Table, src pdf.Getter, ref pdf.Reference) (pdf.Reference, error) {
	if e, ok := t.entries[ref]; ok {
		// Either the object is copied already, or copying is in progress
		// further up the call stack.
		return e.Dest, nil
	}

	e := &entry{Entry: Entry{Dest: c.w.Alloc()}}
	t.entries[ref] = e
	c.journal = append(c.journal, change{table: t, src: ref, cur: e})

	obj, err := pdf.Resolve(src, ref)
	if err != nil {
		return 0, err
	}

	if dict, isDict := obj.(pdf.Dict); isDict && c.pagesRoot != 0 && isPage(src, dict) {
		// reserved until the page is copied by CopyPage
		return e.Dest, nil
	}

	stm, isStream := obj.(*pdf.Stream)
	if isStream && c.cache != nil {
		data, err := pdf.ReadAll(stm)
		if err != nil {
			return 0, pdf.Wrap(err, ref.String())
		}
		if existing, found := c.cache.Lookup(data); found {
			c.w.Free(e.Dest)
			e.Dest = existing
			e.Copied = true
			e.bound = true
			c.stats.DedupHits++
			return existing, nil
		}

		e.Copied = true
		dict, err := c.copyDict(t, src, stm.Dict)
		if err != nil {
			return 0, err
		}
		err = c.put(e, &pdf.Stream{Dict: dict, R: bytes.NewReader(data)})
		if err != nil {
			return 0, err
		}
		c.cache.Register(data, e.Dest)
		return e.Dest, nil
	}

	e.Copied = true
	res, err := c.copy(t, src, obj)
	if err != nil {
		return 0, err
	}
	err = c.put(e, res)
	if err != nil {
		return 0, err
	}
	return e.Dest, nil
}

func (c *Copier) put(e *entry, obj pdf.Object) error {
	err := c.w.Put(e.Dest, obj)
	if err != nil {
		return err
	}
	e.bound = true
	c.stats.Objects++
	if _, isStream := obj.(*pdf.Stream); isStream {
		c.stats.Streams++
	}
	return nil
}

func (c *Copier) copy(t *Table, src pdf.Getter, obj pdf.Object) (pdf.Object, error) {
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case pdf.Dict:
		return c.copyDict(t, src, x)
	case pdf.Array:
		return c.copyArray(t, src, x)
	case *pdf.Stream:
		dict, err := c.copyDict(t, src, x.Dict)
		if err != nil {
			return nil, err
		}
		return &pdf.Stream{Dict: dict, R: x.R}, nil
	case pdf.Reference:
		return c.copyReference(t, src, x)
	case pdf.Bool, pdf.Integer, pdf.Real, pdf.Name, pdf.String:
		return obj, nil
	default:
		return c.coerce(obj), nil
	}
}

func (c *Copier) copyDict(t *Table, src pdf.Getter, dict pdf.Dict) (pdf.Dict, error) {
	if dict == nil {
		return nil, nil
	}
	page := isPage(src, dict)

	res := make(pdf.Dict, len(dict))
	for key, val := range dict {
		if page && (key == "Parent" || key == "B") {
			continue
		}
		repl, err := c.copy(t, src, val)
		if err != nil {
			return nil, err
		}
		if repl != nil {
			res[key] = repl
		}
	}
	if page && c.pagesRoot != 0 {
		res["Parent"] = c.pagesRoot
	}
	return res, nil
}

// isPage reports whether dict is a page dictionary.  Some writers omit
// the required /Type entry.  A dictionary without /Type, /Subtype and
// /Kids is taken as a page if its parent is a page tree node.
func isPage(src pdf.Getter, dict pdf.Dict) bool {
	if tp, ok := dict["Type"]; ok {
		return tp == pdf.Name("Page")
	}
	if _, ok := dict["Subtype"]; ok {
		return false
	}
	if _, ok := dict["Kids"]; ok {
		return false
	}
	parent, _ := pdf.GetDict(src, dict["Parent"])
	_, hasKids := parent["Kids"]
	_, hasCount := parent["Count"]
	return hasKids && hasCount
}

func (c *Copier) copyArray(t *Table, src pdf.Getter, a pdf.Array) (pdf.Array, error) {
	res := make(pdf.Array, len(a))
	for i, val := range a {
		repl, err := c.copy(t, src, val)
		if err != nil {
			return nil, err
		}
		res[i] = repl
	}
	return res, nil
}

// coerce replaces values which cannot be written to a PDF file.  The
// keywords "true" and "false" are accepted in any case, everything else
// becomes null.
func (c *Copier) coerce(obj pdf.Object) pdf.Object {
	c.stats.Coerced++

	var res pdf.Object
	if kw, ok := obj.(pdf.Keyword); ok {
		switch strings.ToLower(string(kw)) {
		case "true":
			res = pdf.Bool(true)
		case "false":
			res = pdf.Bool(false)
		}
	}
	c.log.Warn("replaced unsupported object",
		"value", fmt.Sprint(obj),
		"replacement", pdf.Format(res))
	return res
}

// rollback undoes the table changes recorded since the start of the current
// operation.  Output references which were allocated but not written are
// released.
func (c *Copier) rollback() {
	for i := len(c.journal) - 1; i >= 0; i-- {
		ch := c.journal[i]
		if !ch.cur.bound {
			c.w.Free(ch.cur.Dest)
		}
		if ch.prev != nil {
			ch.table.entries[ch.src] = ch.prev
		} else if !ch.cur.bound {
			delete(ch.table.entries, ch.src)
		}
	}
	c.journal = c.journal[:0]
}
