// Package backend selects a kv driver by name.
package backend

import (
	"fmt"
	"os"
	"strings"

	"github.com/LeJamon/goVaultd/internal/storage/kv"
	"github.com/LeJamon/goVaultd/internal/storage/kv/bbolt"
	"github.com/LeJamon/goVaultd/internal/storage/kv/leveldb"
	"github.com/LeJamon/goVaultd/internal/storage/kv/memory"
	"github.com/LeJamon/goVaultd/internal/storage/kv/pebble"
)

const (
	Pebble  = "pebble"
	Bbolt   = "bbolt"
	LevelDB = "leveldb"
	Memory  = "memory"
)

// Names lists the supported backends.
var Names = []string{Pebble, Bbolt, LevelDB, Memory}

// NewManager returns a manager for the named backend rooted at path. The
// directory is created when missing.
func NewManager(name, path string) (kv.Manager, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == Memory {
		return memory.NewManager(), nil
	}
	if !Supported(name) {
		return nil, fmt.Errorf("%w: %q", kv.ErrUnknownBackend, name)
	}
	if path == "" {
		return nil, fmt.Errorf("%s backend requires a path", name)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	switch name {
	case Pebble:
		return pebble.NewManager(path), nil
	case Bbolt:
		return bbolt.NewManager(path), nil
	default:
		return leveldb.NewManager(path), nil
	}
}

// Supported reports whether name is a known backend.
func Supported(name string) bool {
	for _, n := range Names {
		if n == strings.ToLower(name) {
			return true
		}
	}
	return false
}
