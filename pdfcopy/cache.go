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

package pdfcopy

import (
	"bytes"
	"hash/maphash"

	"seehuhn.de/go/pdfmerge/pdf"
)

// StreamCache maps raw stream data to the reference of an object in the
// output file which has exactly this data.
//
// Only the stream data is used as the key.  Two streams with identical data
// but different dictionaries share the same entry.
type StreamCache struct {
	hash    func([]byte) uint64
	buckets map[uint64][]cacheEntry
	size    int
}

type cacheEntry struct {
	data []byte
	ref  pdf.Reference
}

var seed = maphash.MakeSeed()

func defaultHash(data []byte) uint64 {
	return maphash.Bytes(seed, data)
}

// NewStreamCache returns a new, empty cache.  If hash is nil, a
// [maphash] based hash function is used.  Entries with equal hash values
// are told apart by comparing the full data.
func NewStreamCache(hash func([]byte) uint64) *StreamCache {
	if hash == nil {
		hash = defaultHash
	}
	return &StreamCache{
		hash:    hash,
		buckets: make(map[uint64][]cacheEntry),
	}
}

// Lookup returns the reference registered for data, if any.
func (c *StreamCache) Lookup(data []byte) (pdf.Reference, bool) {
	return c.find(c.hash(data), data)
}

// Register records that the output object ref has stream data data.
// If data is already registered, the existing entry is kept.
// The cache retains data, so the caller must not modify it afterwards.
func (c *StreamCache) Register(data []byte, ref pdf.Reference) {
	h := c.hash(data)
	if _, found := c.find(h, data); found {
		return
	}
	c.buckets[h] = append(c.buckets[h], cacheEntry{data: data, ref: ref})
	c.size++
}

// ProbeOrRegister returns the reference registered for data and true, if
// there is one.  Otherwise ref is registered for data, and ref and false
// are returned.
func (c *StreamCache) ProbeOrRegister(data []byte, ref pdf.Reference) (pdf.Reference, bool) {
	h := c.hash(data)
	if existing, found := c.find(h, data); found {
		return existing, true
	}
	c.buckets[h] = append(c.buckets[h], cacheEntry{data: data, ref: ref})
	c.size++
	return ref, false
}

// Len returns the number of distinct stream contents in the cache.
func (c *StreamCache) Len() int {
	return c.size
}

func (c *StreamCache) find(h uint64, data []byte) (pdf.Reference, bool) {
	for _, entry := range c.buckets[h] {
		if bytes.Equal(entry.data, data) {
			return entry.ref, true
		}
	}
	return 0, false
}
