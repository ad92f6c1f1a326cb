package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// Set of errors returned by mining.
var (
	ErrNoTransactions = errors.New("no transactions in mempool")
	ErrStaleBlock     = errors.New("mined block no longer extends the tip")
)

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. The block carries the data when provided,
// otherwise the oldest transaction in the mempool. The search runs outside
// of the event loop and the result goes through the same admission rules
// as a block from a peer.
func (s *State) MineNewBlock(ctx context.Context, data string) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: prepare candidate")

	var args database.POWArgs
	var empty bool

	err := s.exec(func(e *consensus.Engine) {
		tip := e.Chain().Tip()

		args.Parent = tip
		args.Difficulty = max(s.genesis.Difficulty, tip.Header.Difficulty)

		if data != "" {
			args.Payload = database.Payload{Data: data}
			return
		}

		tx, exists := e.Mempool().NextForMining()
		if !exists {
			empty = true
			return
		}
		args.Payload = database.Payload{Tx: &tx}
	})
	if err != nil {
		return database.Block{}, err
	}

	if empty {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	args.EvHandler = s.evHandler
	block, err := database.POW(ctx, args)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: submit block")

	res, err := s.dispatch(message{event: consensus.MinedBlock{Block: block}})
	if err != nil {
		return database.Block{}, err
	}

	out := res.Outcomes[0]
	switch {
	case out.Err != nil:
		return database.Block{}, out.Err

	case out.Classification != consensus.DirectExtend && !out.Promoted:
		return database.Block{}, fmt.Errorf("%w: %s", ErrStaleBlock, out.Classification)
	}

	return block, nil
}
