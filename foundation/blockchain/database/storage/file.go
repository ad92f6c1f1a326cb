// Package storage implements the serializers used to persist a snapshot of
// the blockchain.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// File represents the serialization implementation for storing the entire
// chain as one JSON document. The document is replaced atomically on every
// save. This implements the database.Serializer interface.
type File struct {
	path string
}

// NewFile constructs a File value for use. The directory for the file is
// created if it doesn't exist.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	return &File{path: path}, nil
}

// Save writes the blocks to a temporary file and renames it over the
// snapshot so a crash never leaves a partial snapshot behind.
func (f *File) Save(blocks []database.BlockData) error {
	data, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}

// Load reads the snapshot. A missing snapshot is not an error, it returns
// no blocks.
func (f *File) Load() ([]database.BlockData, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var blocks []database.BlockData
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", f.path, err)
	}

	return blocks, nil
}

// Reset removes the snapshot from disk.
func (f *File) Reset() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
