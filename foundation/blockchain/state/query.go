package state

import (
	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/fork"
	"github.com/ardanlabs/powchain/foundation/blockchain/orphan"
)

// QueryLastest represents to query the latest block in the chain.
const QueryLastest = ^uint64(0) >> 1

// Status represents a summary of the node's chain and pools.
type Status struct {
	Height         uint64 `json:"height"`
	TipHash        string `json:"tip_hash"`
	CumulativeWork string `json:"cumulative_work"`
	Forks          int    `json:"forks"`
	Orphans        int    `json:"orphans"`
	Mempool        int    `json:"mempool"`
	StoredBlocks   int    `json:"stored_blocks"`
}

// =============================================================================

// The query methods run on the goroutine that owns the engine. They return
// ErrShutdown once the state has been shut down.

// QueryStatus returns a summary of the chain and the pools.
func (s *State) QueryStatus() (Status, error) {
	var status Status
	err := s.exec(func(e *consensus.Engine) {
		chain := e.Chain()
		status = Status{
			Height:         chain.Height(),
			TipHash:        chain.Tip().Hash(),
			CumulativeWork: chain.CumulativeWork().Dec(),
			Forks:          len(e.Forks()),
			Orphans:        len(e.Orphans()),
			Mempool:        e.Mempool().Count(),
			StoredBlocks:   chain.Store().Len(),
		}
	})

	return status, err
}

// QueryBlocksByNumber returns the set of chain blocks between the numbers.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) ([]database.Block, error) {
	var blocks []database.Block
	err := s.exec(func(e *consensus.Engine) {
		height := e.Chain().Height()
		if from == QueryLastest {
			from = height
			to = from
		}
		if to == QueryLastest {
			to = height
		}

		blocks = e.Chain().Blocks(from, to)
	})

	return blocks, err
}

// QueryBlockByHash returns the block from the chain or the fork pool.
func (s *State) QueryBlockByHash(hash string) (database.Block, bool, error) {
	var block database.Block
	var exists bool
	err := s.exec(func(e *consensus.Engine) {
		block, exists = e.QueryBlock(hash)
	})

	return block, exists, err
}

// QueryForks returns the details of every fork.
func (s *State) QueryForks() ([]fork.Info, error) {
	var forks []fork.Info
	err := s.exec(func(e *consensus.Engine) {
		forks = e.Forks()
	})

	return forks, err
}

// QueryOrphans returns the details of every orphan.
func (s *State) QueryOrphans() ([]orphan.Info, error) {
	var orphans []orphan.Info
	err := s.exec(func(e *consensus.Engine) {
		orphans = e.Orphans()
	})

	return orphans, err
}

// QueryMempool returns the pending transactions in arrival order.
func (s *State) QueryMempool() ([]database.SignedTx, error) {
	var txs []database.SignedTx
	err := s.exec(func(e *consensus.Engine) {
		txs = e.Mempool().Copy()
	})

	return txs, err
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() (int, error) {
	var n int
	err := s.exec(func(e *consensus.Engine) {
		n = e.Mempool().Count()
	})

	return n, err
}
