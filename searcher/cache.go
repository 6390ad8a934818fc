package searcher

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"tictactoe/game"
	"tictactoe/meta"
)

const cacheVersion = 1

var ErrCorruptCache = errors.New("corrupt cache file")

// Bound tells how a cached score relates to the true value of the position.
type Bound uint8

const (
	Exact Bound = iota
	Lower       // true value >= score
	Upper       // true value <= score
)

// Key identifies a position from the searching player's point of view. Horizon is the
// number of plies left before the depth limit, -1 when unbounded.
type Key struct {
	Cells      [meta.CELLS]game.Cell
	Player     game.Cell
	Maximizing bool
	Horizon    int8
}

// Entry holds a score normalised to the node: wins and losses count plies from the
// node itself rather than from the search root, so entries are valid for any root.
type Entry struct {
	Score int
	Bound Bound
}

// Cache is a memo of position scores, safe for concurrent searches.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Key]Entry)}
}

func (c *Cache) Get(k Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	return e, ok
}

func (c *Cache) Put(k Key, e Entry) {
	c.mu.Lock()
	c.entries[k] = e
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[Key]Entry)
	c.mu.Unlock()
}

// Merge copies entries from other. Exact entries replace bounds, never the reverse.
func (c *Cache) Merge(other *Cache) {
	if other == nil || other == c {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range other.entries {
		if existing, ok := c.entries[k]; ok && existing.Bound == Exact && e.Bound != Exact {
			continue
		}
		c.entries[k] = e
	}
}

type cacheDump struct {
	Version int
	Entries []cacheRecord
}

type cacheRecord struct {
	Board      string
	Player     uint8
	Maximizing bool
	Horizon    int8
	Score      int
	Bound      uint8
}

// Save writes a gob snapshot next to path and renames it into place.
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	dump := cacheDump{Version: cacheVersion, Entries: make([]cacheRecord, 0, len(c.entries))}
	for k, e := range c.entries {
		dump.Entries = append(dump.Entries, cacheRecord{
			Board:      game.FromCells(k.Cells).Key(),
			Player:     uint8(k.Player),
			Maximizing: k.Maximizing,
			Horizon:    k.Horizon,
			Score:      e.Score,
			Bound:      uint8(e.Bound),
		})
	}
	c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(dump); err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// LoadCache reads a snapshot written by Save. A missing file gives an empty cache and no
// error. An unreadable or corrupt file gives an empty cache and an error wrapping
// ErrCorruptCache, so callers can log it and carry on.
func LoadCache(path string) (*Cache, error) {
	c := NewCache()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("failed to open cache: %w", err)
	}
	defer f.Close()

	var dump cacheDump
	if err := gob.NewDecoder(f).Decode(&dump); err != nil {
		return c, fmt.Errorf("%w: %s: %v", ErrCorruptCache, path, err)
	}
	if dump.Version != cacheVersion {
		return c, fmt.Errorf("%w: %s: unsupported version %d", ErrCorruptCache, path, dump.Version)
	}
	for _, r := range dump.Entries {
		b, err := game.ParseKey(r.Board)
		if err != nil {
			return NewCache(), fmt.Errorf("%w: %s: %v", ErrCorruptCache, path, err)
		}
		c.entries[Key{
			Cells:      b.Cells(),
			Player:     game.Cell(r.Player),
			Maximizing: r.Maximizing,
			Horizon:    r.Horizon,
		}] = Entry{Score: r.Score, Bound: Bound(r.Bound)}
	}
	return c, nil
}

func toStored(score, depth int) int {
	switch {
	case score > 0:
		return score + depth
	case score < 0:
		return score - depth
	}
	return 0
}

func fromStored(score, depth int) int {
	switch {
	case score > 0:
		return score - depth
	case score < 0:
		return score + depth
	}
	return 0
}
