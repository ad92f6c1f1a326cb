package storage

import (
	"sync"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// Memory represents the serialization implementation for keeping a snapshot
// in memory. It is used by tests and by nodes that don't persist.
type Memory struct {
	mu     sync.Mutex
	blocks []database.BlockData
}

// NewMemory constructs a Memory value for use.
func NewMemory() *Memory {
	return &Memory{}
}

// Save replaces the snapshot with a copy of the blocks.
func (m *Memory) Save(blocks []database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = append([]database.BlockData(nil), blocks...)
	return nil
}

// Load returns a copy of the snapshot.
func (m *Memory) Load() ([]database.BlockData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]database.BlockData(nil), m.blocks...), nil
}

// Reset clears the snapshot.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	return nil
}
