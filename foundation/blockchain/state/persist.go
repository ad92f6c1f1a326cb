package state

import (
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// Save writes a snapshot of the chain to storage. The snapshot is taken on
// the event loop so it never observes a partial change.
func (s *State) Save() error {
	var snapshot []database.BlockData
	err := s.exec(func(e *consensus.Engine) {
		snapshot = database.Snapshot(e.Chain())
	})
	if err != nil {
		return err
	}

	if err := s.storage.Save(snapshot); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	s.evHandler("state: Save: saved blocks[%d]", len(snapshot))

	return nil
}

// Load replaces the chain with the snapshot held in storage. The whole
// snapshot is validated before the chain is replaced.
func (s *State) Load() error {
	data, err := s.storage.Load()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}

	chain, err := database.Restore(s.genesisBlock, data, s.evHandler)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}

	err = s.exec(func(e *consensus.Engine) {
		e.Replace(chain)
	})
	if err != nil {
		return err
	}

	s.evHandler("state: Load: loaded chain: height[%d]: tip[%s]", chain.Height(), chain.Tip().Hash())
	s.signalTipChanged()

	return nil
}

// Reset returns the chain to the genesis block. Storage is not touched
// until the next save.
func (s *State) Reset() error {
	err := s.exec(func(e *consensus.Engine) {
		e.Reset()
	})
	if err != nil {
		return err
	}

	s.evHandler("state: Reset: chain reset to genesis")
	s.signalTipChanged()

	return nil
}

// ResetStorage clears the snapshot held in storage. It is the explicit
// reset required to start a node whose snapshot is corrupt.
func (s *State) ResetStorage() error {
	return s.storage.Reset()
}

// signalTipChanged tells the worker the tip was replaced outside of the
// admission rules.
func (s *State) signalTipChanged() {
	if s.Worker != nil {
		s.Worker.SignalCancelMining()
		s.Worker.SignalStartMining()
	}
}
