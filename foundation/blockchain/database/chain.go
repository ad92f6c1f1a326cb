package database

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Chain represents the canonical sequence of blocks starting at genesis. It
// only changes by appending a block to the tip or by replacing a suffix
// during a fork switch. A Chain is not safe for concurrent use.
type Chain struct {
	store     *Store
	hashes    []string
	heights   map[string]uint64
	txs       map[string]uint64
	work      []*uint256.Int
	evHandler func(v string, args ...any)
}

// NewChain constructs a chain holding only the genesis block.
func NewChain(store *Store, genesis Block, evHandler func(v string, args ...any)) *Chain {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	c := Chain{
		store:     store,
		heights:   make(map[string]uint64),
		txs:       make(map[string]uint64),
		evHandler: evHandler,
	}
	c.push(genesis)

	return &c
}

// LoadChain constructs a chain from a sequence of blocks starting with the
// genesis block. Every block after genesis is validated as it is appended.
func LoadChain(store *Store, genesis Block, blocks []Block, evHandler func(v string, args ...any)) (*Chain, error) {
	if len(blocks) == 0 {
		return nil, errors.New("no blocks provided, genesis is required")
	}

	if blocks[0].Hash() != genesis.Hash() || blocks[0].ComputeHash() != genesis.Hash() {
		return nil, fmt.Errorf("genesis mismatch, got %s, exp %s", blocks[0].Hash(), genesis.Hash())
	}

	c := NewChain(store, genesis, evHandler)
	for _, block := range blocks[1:] {
		if err := c.TryAppend(block); err != nil {
			return nil, fmt.Errorf("blk[%d]: %w", block.Header.Number, err)
		}
	}

	return c, nil
}

// Store returns the block store the chain references.
func (c *Chain) Store() *Store {
	return c.store
}

// Genesis returns the first block of the chain.
func (c *Chain) Genesis() Block {
	b, _ := c.store.Get(c.hashes[0])
	return b
}

// Tip returns the latest block in the chain.
func (c *Chain) Tip() Block {
	b, _ := c.store.Get(c.hashes[len(c.hashes)-1])
	return b
}

// Height returns the height of the tip.
func (c *Chain) Height() uint64 {
	return uint64(len(c.hashes) - 1)
}

// Get returns the chain block for the specified hash.
func (c *Chain) Get(hash string) (Block, bool) {
	if _, exists := c.heights[hash]; !exists {
		return Block{}, false
	}
	return c.store.Get(hash)
}

// Contains reports if the hash is part of the chain.
func (c *Chain) Contains(hash string) bool {
	_, exists := c.heights[hash]
	return exists
}

// HeightOf returns the height of the block with the specified hash.
func (c *Chain) HeightOf(hash string) (uint64, bool) {
	h, exists := c.heights[hash]
	return h, exists
}

// BlockAt returns the block at the specified height.
func (c *Chain) BlockAt(height uint64) (Block, bool) {
	if height > c.Height() {
		return Block{}, false
	}
	return c.store.Get(c.hashes[height])
}

// Blocks returns a copy of the blocks between from and to inclusive.
func (c *Chain) Blocks(from uint64, to uint64) []Block {
	if to > c.Height() {
		to = c.Height()
	}

	if from > to {
		return nil
	}

	out := make([]Block, 0, to-from+1)
	for _, hash := range c.hashes[from : to+1] {
		b, _ := c.store.Get(hash)
		out = append(out, b)
	}

	return out
}

// ContainsTx reports if the transaction with the specified id is confirmed
// in one of the chain blocks.
func (c *Chain) ContainsTx(txID string) bool {
	_, exists := c.txs[txID]
	return exists
}

// TryAppend adds the block to the tip of the chain if it directly extends
// the tip and passes validation.
func (c *Chain) TryAppend(block Block) error {
	if err := block.Validate(c.Tip(), c.evHandler); err != nil {
		return err
	}

	if tx := block.Payload.Tx; tx != nil && c.ContainsTx(tx.ID()) {
		return newBlockError(InvalidPayload, "%w", NewTxError(DuplicateTransaction, "tx[%s] already confirmed", tx))
	}

	c.push(block)

	return nil
}

// ReplaceSuffix swaps every block after the forkpoint height for the
// specified blocks. The chain is left untouched if the blocks don't form a
// valid contiguous suffix rooted at the forkpoint. The blocks that were
// removed from the chain are returned.
func (c *Chain) ReplaceSuffix(forkpointHeight uint64, blocks []Block) ([]Block, error) {
	forkpoint, exists := c.BlockAt(forkpointHeight)
	if !exists {
		return nil, NewForkError(ForkpointNotFound, "height %d is above the tip %d", forkpointHeight, c.Height())
	}

	if len(blocks) == 0 {
		return nil, NewForkError(NonContiguousSuffix, "no blocks provided")
	}

	parent := forkpoint
	seen := make(map[string]struct{})
	for _, block := range blocks {
		if err := block.Validate(parent, c.evHandler); err != nil {
			return nil, NewForkError(NonContiguousSuffix, "blk[%d]: %w", block.Header.Number, err)
		}

		// A transaction can only be confirmed once in the resulting chain.
		if tx := block.Payload.Tx; tx != nil {
			id := tx.ID()
			if h, exists := c.txs[id]; exists && h <= forkpointHeight {
				return nil, NewForkError(NonContiguousSuffix, "blk[%d]: tx[%s] already confirmed at blk[%d]", block.Header.Number, tx, h)
			}
			if _, exists := seen[id]; exists {
				return nil, NewForkError(NonContiguousSuffix, "blk[%d]: tx[%s] confirmed twice", block.Header.Number, tx)
			}
			seen[id] = struct{}{}
		}

		parent = block
	}

	displaced := c.truncate(forkpointHeight)
	for _, block := range blocks {
		c.push(block)
	}

	return displaced, nil
}

// Reset removes every block except genesis and returns the removed blocks.
func (c *Chain) Reset() []Block {
	return c.truncate(0)
}

// CumulativeWork returns the total work of all the blocks in the chain.
func (c *Chain) CumulativeWork() *uint256.Int {
	return new(uint256.Int).Set(c.work[len(c.work)-1])
}

// WorkAfter returns the work of the blocks above the specified height.
func (c *Chain) WorkAfter(height uint64) *uint256.Int {
	if height >= c.Height() {
		return new(uint256.Int)
	}

	return new(uint256.Int).Sub(c.work[len(c.work)-1], c.work[height])
}

// WorkThrough returns the work of the blocks from genesis up to and
// including the specified height.
func (c *Chain) WorkThrough(height uint64) *uint256.Int {
	if height > c.Height() {
		height = c.Height()
	}

	return new(uint256.Int).Set(c.work[height])
}

// =============================================================================

// push adds the block to the tip without validation.
func (c *Chain) push(block Block) {
	height := uint64(len(c.hashes))

	c.store.Put(block)
	c.hashes = append(c.hashes, block.Hash())
	c.heights[block.Hash()] = height

	if block.Payload.Tx != nil {
		c.txs[block.Payload.Tx.ID()] = height
	}

	total := block.Work()
	if len(c.work) > 0 {
		total.Add(total, c.work[len(c.work)-1])
	}
	c.work = append(c.work, total)
}

// truncate drops every block above the specified height.
func (c *Chain) truncate(height uint64) []Block {
	removed := make([]Block, 0, c.Height()-height)

	for _, hash := range c.hashes[height+1:] {
		b, _ := c.store.Get(hash)
		removed = append(removed, b)

		delete(c.heights, hash)
		if b.Payload.Tx != nil {
			delete(c.txs, b.Payload.Tx.ID())
		}
	}

	c.hashes = c.hashes[:height+1]
	c.work = c.work[:height+1]

	return removed
}
