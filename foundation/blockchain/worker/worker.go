// Package worker implements mining, peer updates, orphan retries and the
// network actions produced by the state for the blockchain.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
)

// maxActionRequests represents the max number of pending network action
// batches that can be outstanding before batches are dropped.
const maxActionRequests = 100

// ErrShutdown is returned when work is requested after shutdown.
var ErrShutdown = errors.New("worker is shutting down")

// Config represents the configuration for the worker.
type Config struct {
	AutoMine            bool
	PeerUpdateInterval  time.Duration
	OrphanRetryInterval time.Duration
	EvHandler           state.EventHandler
}

// =============================================================================

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	autoMine     bool
	wg           sync.WaitGroup
	peerTicker   *time.Ticker
	orphanTicker *time.Ticker
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool
	redial       chan chan struct{}
	jobs         chan job
	actions      chan []consensus.Action
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config) *Worker {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	peerInterval := cfg.PeerUpdateInterval
	if peerInterval <= 0 {
		peerInterval = time.Minute
	}

	orphanInterval := cfg.OrphanRetryInterval
	if orphanInterval <= 0 {
		orphanInterval = 10 * time.Second
	}

	w := Worker{
		state:        st,
		autoMine:     cfg.AutoMine,
		peerTicker:   time.NewTicker(peerInterval),
		orphanTicker: time.NewTicker(orphanInterval),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		redial:       make(chan chan struct{}),
		jobs:         make(chan job),
		actions:      make(chan []consensus.Action, maxActionRequests),
		evHandler:    ev,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.actionOperations,
		w.orphanOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for range g {
		<-hasStarted
	}

	// Pick up any transactions restored with the chain.
	w.SignalStartMining()

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop tickers")
	w.peerTicker.Stop()
	w.orphanTicker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation when the node mines the
// mempool on its own. If there is already a signal pending in the channel,
// just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.autoMine {
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately and restart against the new tip.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalActions queues network actions. If maxActionRequests batches are
// pending, the actions are dropped.
func (w *Worker) SignalActions(actions []consensus.Action) {
	select {
	case w.actions <- actions:
		w.evHandler("worker: SignalActions: actions[%d] signaled", len(actions))
	default:
		w.evHandler("worker: SignalActions: queue full, actions[%d] won't be performed", len(actions))
	}
}

// =============================================================================

// Mine asks the mining G to mine a block carrying the data, or the oldest
// mempool transaction when the data is empty. The search restarts when the
// tip changes and the call returns once a block extends the chain.
func (w *Worker) Mine(ctx context.Context, data string) (database.Block, error) {
	j := job{
		ctx:    ctx,
		data:   data,
		result: make(chan jobResult, 1),
	}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return database.Block{}, ctx.Err()
	case <-w.shut:
		return database.Block{}, ErrShutdown
	}

	select {
	case r := <-j.result:
		return r.block, r.err
	case <-ctx.Done():
		return database.Block{}, ctx.Err()
	}
}

// Redial asks the peer G to refresh the peers right away and waits for it
// to complete.
func (w *Worker) Redial(ctx context.Context) error {
	done := make(chan struct{})

	select {
	case w.redial <- done:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.shut:
		return ErrShutdown
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
