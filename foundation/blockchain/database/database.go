// Package database handles all the lower level support for maintaining the
// blockchain: blocks, transactions, the canonical chain and the content
// addressed block store shared by the chain and its forks.
package database

import (
	"fmt"
)

// Serializer interface represents the behavior required to be implemented by any
// package providing support for storing and reading a snapshot of the blockchain.
// A snapshot is the ordered list of blocks starting with genesis.
type Serializer interface {
	Save(blocks []BlockData) error
	Load() ([]BlockData, error)
	Reset() error
}

// =============================================================================

// Snapshot returns the chain as the ordered list of blocks to persist.
func Snapshot(chain *Chain) []BlockData {
	blocks := chain.Blocks(0, chain.Height())

	data := make([]BlockData, len(blocks))
	for i, block := range blocks {
		data[i] = NewBlockData(block)
	}

	return data
}

// Restore rebuilds a chain from a persisted snapshot into a new block store.
// Every block is validated again through TryAppend so a corrupt snapshot is
// rejected as a whole. An empty snapshot produces a chain holding only genesis.
func Restore(genesis Block, data []BlockData, evHandler func(v string, args ...any)) (*Chain, error) {
	store := NewStore()

	if len(data) == 0 {
		return NewChain(store, genesis, evHandler), nil
	}

	blocks := make([]Block, len(data))
	for i, bd := range data {
		block, err := ToBlock(bd)
		if err != nil {
			return nil, fmt.Errorf("snapshot entry %d: %w", i, err)
		}
		blocks[i] = block
	}

	return LoadChain(store, genesis, blocks, evHandler)
}
