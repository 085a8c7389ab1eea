// Package gridcache keeps materialized grids on disk as MessagePack so a
// repeated request skips parsing and interpolation.
package gridcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"go.ngs.io/antgrid/internal/grid"
)

const ext = ".msgpack"

// Cache is a directory of encoded grids.
type Cache struct {
	dir string
}

// New creates the cache directory if needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create grid cache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Key derives a cache key from the parts that determine a grid, typically
// dataset, layer, region, spacing and the source file hash.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+ext)
}

// Get returns the grid stored under key. ok is false on a miss.
func (c *Cache) Get(key string) (g *grid.Grid, ok bool, err error) {
	//nolint:gosec // G304: key is a hex digest.
	f, err := os.Open(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	g = new(grid.Grid)
	if err := msgpack.NewDecoder(f).Decode(g); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached grid %s: %w", key, err)
	}
	if err := g.Validate(); err != nil {
		return nil, false, fmt.Errorf("cached grid %s: %w", key, err)
	}
	return g, true, nil
}

// Put stores g under key, replacing any previous entry atomically.
func (c *Cache) Put(key string, g *grid.Grid) error {
	tmp := filepath.Join(c.dir, "."+uuid.NewString()+".tmp")
	//nolint:gosec // G304: tmp is inside the cache directory.
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := msgpack.NewEncoder(f).Encode(g); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode grid: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to store grid: %w", err)
	}
	return nil
}

// Clear removes every cached grid and returns the number removed.
func (c *Cache) Clear() (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*"+ext))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return 0, err
		}
	}
	return len(matches), nil
}
