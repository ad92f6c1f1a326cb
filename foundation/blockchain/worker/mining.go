package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
)

// job represents a request to mine a block.
type job struct {
	ctx    context.Context
	data   string
	result chan jobResult
}

// jobResult is what a mining job produced.
type jobResult struct {
	block database.Block
	err   error
}

// errRestart means the tip changed while mining.
var errRestart = errors.New("tip changed, restart mining")

// =============================================================================

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case j := <-w.jobs:
			if !w.isShutdown() {
				block, err := w.runMiningOperation(j.ctx, j.data)
				j.result <- jobResult{block: block, err: err}
			}

		case <-w.startMining:
			if !w.isShutdown() {
				w.runPoolMiningOperation()
			}

		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runPoolMiningOperation mines the oldest transaction in the mempool.
func (w *Worker) runPoolMiningOperation() {

	// Make sure there are transactions in the mempool.
	length, err := w.state.QueryMempoolLength()
	if err != nil || length == 0 {
		w.evHandler("worker: runPoolMiningOperation: MINING: no transactions to mine: Txs[%d]", length)
		return
	}

	// After running a mining operation, check if a new operation should
	// be signaled again.
	defer func() {
		length, err := w.state.QueryMempoolLength()
		if err == nil && length > 0 {
			w.evHandler("worker: runPoolMiningOperation: MINING: signal new mining operation: Txs[%d]", length)
			w.SignalStartMining()
		}
	}()

	if _, err := w.runMiningOperation(context.Background(), ""); err != nil {
		w.evHandler("worker: runPoolMiningOperation: MINING: %s", err)
	}
}

// runMiningOperation mines a block until one extends the chain. Every time
// the tip changes the search is cancelled and started again on the new tip.
func (w *Worker) runMiningOperation(ctx context.Context, data string) (database.Block, error) {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	for {
		block, err := w.mineOnce(ctx, data)

		switch {
		case err == nil:
			return block, nil

		case errors.Is(err, errRestart), errors.Is(err, state.ErrStaleBlock):
			if w.isShutdown() {
				return database.Block{}, ErrShutdown
			}
			w.evHandler("worker: runMiningOperation: MINING: restarting on new tip")

		default:
			return database.Block{}, err
		}
	}
}

// mineOnce performs a single search against the current tip.
func (w *Worker) mineOnce(parent context.Context, data string) (database.Block, error) {

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: mineOnce: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Can't return from this function until this G is complete.
	var wg sync.WaitGroup
	wg.Add(1)

	// This G exists to cancel the mining operation.
	var restart bool
	go func() {
		defer wg.Done()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: mineOnce: MINING: CANCEL: requested")
			restart = true
			cancel()
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	t := time.Now()
	block, err := w.state.MineNewBlock(ctx, data)
	duration := time.Since(t)

	cancel()
	wg.Wait()

	w.evHandler("worker: mineOnce: MINING: mining duration[%v]", duration)

	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoTransactions):
			w.evHandler("worker: mineOnce: MINING: WARNING: no transactions in mempool")
		case restart && parent.Err() == nil:
			return database.Block{}, errRestart
		case ctx.Err() != nil:
			w.evHandler("worker: mineOnce: MINING: CANCEL: complete")
		default:
			w.evHandler("worker: mineOnce: MINING: ERROR: %s", err)
		}
		return database.Block{}, err
	}

	// WOW, we mined a block. The state already queued the broadcast.
	w.evHandler("worker: mineOnce: MINING: SOLVED: blk[%d]: %s", block.Header.Number, block.Hash())

	return block, nil
}
