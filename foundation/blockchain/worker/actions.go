package worker

import (
	"context"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
)

// actionTimeout bounds the network calls made for a single action.
const actionTimeout = 30 * time.Second

// actionOperations performs the network actions produced by the state.
func (w *Worker) actionOperations() {
	w.evHandler("worker: actionOperations: G started")
	defer w.evHandler("worker: actionOperations: G completed")

	for {
		select {
		case actions := <-w.actions:
			if !w.isShutdown() {
				w.runActions(actions)
			}

		case <-w.shut:
			w.evHandler("worker: actionOperations: received shut signal")
			return
		}
	}
}

// runActions performs the set of actions in the order they were produced.
func (w *Worker) runActions(actions []consensus.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	for _, action := range actions {
		if w.isShutdown() {
			return
		}

		switch act := action.(type) {
		case consensus.BroadcastBlock:
			if err := w.state.NetSendBlockToPeers(ctx, act.Block, act.Except); err != nil {
				w.evHandler("worker: runActions: broadcast block[%s]: WARNING: %s", act.Block.Hash(), err)
			}

		case consensus.BroadcastTransaction:
			w.state.NetSendTxToPeers(ctx, act.Tx, act.Except)

		case consensus.RequestBlock:
			if err := w.requestBlock(ctx, act); err != nil {
				w.evHandler("worker: runActions: request block[%s]: WARNING: %s", act.Hash, err)
			}

		case consensus.RequestChain:
			if err := w.requestChain(ctx, act); err != nil {
				w.evHandler("worker: runActions: request chain from[%d]: WARNING: %s", act.From, err)
			}
		}
	}
}

// =============================================================================

// orphanOperations periodically asks the state to retry the orphans.
func (w *Worker) orphanOperations() {
	w.evHandler("worker: orphanOperations: G started")
	defer w.evHandler("worker: orphanOperations: G completed")

	for {
		select {
		case <-w.orphanTicker.C:
			if !w.isShutdown() {
				w.runOrphanOperation()
			}

		case <-w.shut:
			w.evHandler("worker: orphanOperations: received shut signal")
			return
		}
	}
}

// runOrphanOperation retries the orphans. The requests for missing parents
// come back through the action queue.
func (w *Worker) runOrphanOperation() {
	outcomes, err := w.state.RetryOrphans()
	if err != nil {
		w.evHandler("worker: runOrphanOperation: ERROR: %s", err)
		return
	}

	for _, out := range outcomes {
		if out.Err != nil {
			w.evHandler("worker: runOrphanOperation: dropped orphan[%s]: %s", out.Hash, out.Err)
		}
	}
}
