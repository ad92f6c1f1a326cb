// Package state is the core API for the blockchain. All changes to the chain
// and its pools are applied by a single goroutine that receives events over
// one ordered channel.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
	"github.com/go-resty/resty/v2"
)

// Set of errors returned by the state API.
var (
	ErrShutdown        = errors.New("state is shutting down")
	ErrSnapshotCorrupt = errors.New("snapshot is corrupt, an explicit reset is required")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and talking to peers.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
	SignalActions(actions []consensus.Action)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Host             string
	Genesis          genesis.Genesis
	Storage          database.Serializer
	KnownPeers       *peer.PeerSet
	MaxForks         int
	MaxOrphans       int
	MaxOrphanRetries int
	EvHandler        EventHandler
}

// State manages the blockchain database.
type State struct {
	host         string
	evHandler    EventHandler
	genesis      genesis.Genesis
	genesisBlock database.Block
	storage      database.Serializer
	knownPeers   *peer.PeerSet
	client       *resty.Client

	engine   *consensus.Engine
	messages chan message
	shut     chan struct{}
	shutOnce sync.Once
	shutErr  error
	wg       sync.WaitGroup

	Worker Worker
}

// New constructs a new blockchain for data management. The chain is
// restored from storage and every block is validated again. A snapshot that
// fails validation is an error, the node requires an explicit reset.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	genesisBlock := database.GenesisBlock(cfg.Genesis)

	// Load all existing blocks from storage into memory for processing.
	blocks, err := cfg.Storage.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}

	chain, err := database.Restore(genesisBlock, blocks, ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}

	engine := consensus.New(consensus.Config{
		Genesis:          genesisBlock,
		Chain:            chain,
		MaxForks:         cfg.MaxForks,
		MaxOrphans:       cfg.MaxOrphans,
		MaxOrphanRetries: cfg.MaxOrphanRetries,
		EvHandler:        ev,
	})

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	// Every request to a peer carries this node's host so the peer knows
	// where blocks and transactions came from.
	client := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader(peer.HostHeader, cfg.Host)

	state := State{
		host:         cfg.Host,
		evHandler:    ev,
		genesis:      cfg.Genesis,
		genesisBlock: genesisBlock,
		storage:      cfg.Storage,
		knownPeers:   knownPeers,
		client:       client,
		engine:       engine,
		messages:     make(chan message),
		shut:         make(chan struct{}),
	}

	ev("state: New: restored chain: height[%d]: tip[%s]", chain.Height(), chain.Tip().Hash())

	state.wg.Add(1)
	go func() {
		defer state.wg.Done()
		state.run()
	}()

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down. The chain is saved before the
// event loop stops.
func (s *State) Shutdown() error {
	s.shutOnce.Do(func() {
		s.evHandler("state: shutdown: started")
		defer s.evHandler("state: shutdown: completed")

		// Stop all blockchain writing activity.
		if s.Worker != nil {
			s.Worker.Shutdown()
		}

		s.shutErr = s.Save()

		close(s.shut)
		s.wg.Wait()
	})

	return s.shutErr
}

// =============================================================================

// message represents a unit of work for the event loop. Either an event
// for the engine or a function that needs access to the engine.
type message struct {
	event consensus.Event
	fn    func(e *consensus.Engine)
	reply chan consensus.Result
}

// run is the event loop. It is the only goroutine that touches the engine.
func (s *State) run() {
	s.evHandler("state: run: G started")
	defer s.evHandler("state: run: G completed")

	for {
		select {
		case msg := <-s.messages:
			msg.reply <- s.apply(msg)

		case <-s.shut:
			return
		}
	}
}

// apply executes the message against the engine.
func (s *State) apply(msg message) consensus.Result {
	if msg.fn != nil {
		msg.fn(s.engine)
		return consensus.Result{}
	}

	res := s.engine.Handle(msg.event)
	s.afterEvent(res)

	return res
}

// afterEvent reports the accepted blocks and hands the work the event
// produced to the worker.
func (s *State) afterEvent(res consensus.Result) {
	for _, out := range res.Outcomes {
		switch {
		case out.Promoted:
			s.blockEvent(s.engine.Chain().Tip(), out.Classification)

		case out.Classification == consensus.DirectExtend:
			if b, exists := s.engine.Chain().Get(out.Hash); exists {
				s.blockEvent(b, out.Classification)
			}
		}
	}

	if s.Worker == nil {
		return
	}

	// The in-flight mining operation is against a stale tip.
	if res.TipChanged {
		s.Worker.SignalCancelMining()
		s.Worker.SignalStartMining()
	}

	if len(res.Actions) > 0 {
		s.Worker.SignalActions(res.Actions)
	}
}

// dispatch sends the message to the event loop and waits for the result.
func (s *State) dispatch(msg message) (consensus.Result, error) {
	msg.reply = make(chan consensus.Result, 1)

	select {
	case s.messages <- msg:
	case <-s.shut:
		return consensus.Result{}, ErrShutdown
	}

	select {
	case res := <-msg.reply:
		return res, nil
	case <-s.shut:
		return consensus.Result{}, ErrShutdown
	}
}

// exec runs the function on the event loop.
func (s *State) exec(fn func(e *consensus.Engine)) error {
	_, err := s.dispatch(message{fn: fn})
	return err
}
