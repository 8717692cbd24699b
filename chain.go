// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package gamepak

import (
	"fmt"
)

// Chain is a prioritized list of archives, such as an IWAD followed by the
// PWADs that patch it. Later archives override earlier ones.
type Chain struct {
	archives   []Archive
	fileMap    map[string]int // cache: name -> archive index
	cacheBuilt bool           // whether fileMap has been populated
}

// NewChain builds a chain from already opened archives in order of
// increasing priority.
func NewChain(archives ...Archive) *Chain {
	c := &Chain{archives: archives}
	c.Refresh()
	return c
}

// OpenChain opens archives in order of increasing priority. The last path
// has the highest priority. The format of each file is detected from its magic.
func OpenChain(paths []string, opts ...Option) (*Chain, error) {
	archives := make([]Archive, 0, len(paths))
	for _, path := range paths {
		archive, err := Open(path, opts...)
		if err != nil {
			for _, opened := range archives {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("open archive %s: %w", path, err)
		}
		archives = append(archives, archive)
	}
	return NewChain(archives...), nil
}

// Close closes all archives in the chain.
func (c *Chain) Close() error {
	var firstErr error
	for _, archive := range c.archives {
		if err := archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len returns the number of archives in the chain.
func (c *Chain) Len() int {
	return len(c.archives)
}

// Archive returns the archive at position i.
func (c *Chain) Archive(i int) Archive {
	return c.archives[i]
}

// Refresh rebuilds the name cache. Call it after adding or removing files
// in any archive of the chain.
func (c *Chain) Refresh() {
	c.fileMap = make(map[string]int)

	// Highest priority first, so the first archive to claim a name wins
	for i := len(c.archives) - 1; i >= 0; i-- {
		for _, e := range c.archives[i].Files() {
			if _, exists := c.fileMap[e.Name]; !exists {
				c.fileMap[e.Name] = i
			}
		}
	}
	c.cacheBuilt = true
}

// resolve returns the archive holding the highest priority copy of name.
func (c *Chain) resolve(name string) (Archive, bool) {
	if !c.cacheBuilt {
		c.Refresh()
	}
	if i, ok := c.fileMap[normalizeName(name)]; ok && c.archives[i].Contains(name) {
		return c.archives[i], true
	}
	// Cache miss or stale entry, fall back to a linear search
	return c.resolveLinear(name)
}

func (c *Chain) resolveLinear(name string) (Archive, bool) {
	for i := len(c.archives) - 1; i >= 0; i-- {
		if c.archives[i].Contains(name) {
			return c.archives[i], true
		}
	}
	return nil, false
}

// Contains reports whether any archive in the chain contains name.
func (c *Chain) Contains(name string) bool {
	_, ok := c.resolve(name)
	return ok
}

// ReadFile returns the highest priority copy of name.
func (c *Chain) ReadFile(name string, buf []byte) ([]byte, error) {
	archive, ok := c.resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w in chain: %s", ErrFileNotFound, name)
	}
	return archive.ReadFile(name, buf)
}

// ExtractFile extracts the highest priority copy of name to target.
func (c *Chain) ExtractFile(name, target string) error {
	archive, ok := c.resolve(name)
	if !ok {
		return fmt.Errorf("%w in chain: %s", ErrFileNotFound, name)
	}
	return archive.ExtractFile(name, target)
}

// Files returns the union of the archives' entries. For names present in
// several archives, the highest priority entry is returned. Order follows
// the archives from lowest to highest priority, each in its own order.
func (c *Chain) Files() []Entry {
	seen := make(map[string]int)
	var result []Entry
	for _, archive := range c.archives {
		for _, e := range archive.Files() {
			if i, ok := seen[e.Name]; ok {
				result[i] = e
				continue
			}
			seen[e.Name] = len(result)
			result = append(result, e)
		}
	}
	return result
}
