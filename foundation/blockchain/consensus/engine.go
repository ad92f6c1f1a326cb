// Package consensus implements the block admission state machine. Every
// block, local or remote, is classified against the chain, the fork pool
// and the orphan pool one at a time. The engine returns the actions the
// network layer needs to perform and never performs I/O itself.
package consensus

import (
	"errors"
	"sort"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/fork"
	"github.com/ardanlabs/powchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/powchain/foundation/blockchain/orphan"
)

// Classification represents what the engine decided about a block.
type Classification int

// Set of classifications for an admitted block.
const (
	Duplicate Classification = iota + 1
	DirectExtend
	CompetingBlock
	NewFork
	ForkExtends
	MissingParent
	Invalid
)

var classifications = map[Classification]string{
	Duplicate:      "Duplicate",
	DirectExtend:   "DirectExtend",
	CompetingBlock: "CompetingBlock",
	NewFork:        "NewFork",
	ForkExtends:    "ForkExtends",
	MissingParent:  "MissingParent",
	Invalid:        "Invalid",
}

// String implements the fmt.Stringer interface.
func (c Classification) String() string {
	if s, exists := classifications[c]; exists {
		return s
	}
	return "Unknown"
}

// Outcome records the classification of a single block.
type Outcome struct {
	Hash           string
	Number         uint64
	Classification Classification
	Promoted       bool
	Err            error
}

// Result represents everything that happened while handling one event.
// A block event can produce several outcomes when orphans waiting on the
// block are released.
type Result struct {
	Outcomes   []Outcome
	Actions    []Action
	TipChanged bool
	Err        error
}

// Classification returns the classification of the first block handled.
func (r Result) Classification() Classification {
	if len(r.Outcomes) == 0 {
		return 0
	}
	return r.Outcomes[0].Classification
}

// Promoted reports if any block in the result caused a fork promotion.
func (r Result) Promoted() bool {
	for _, o := range r.Outcomes {
		if o.Promoted {
			return true
		}
	}
	return false
}

// =============================================================================

// Config represents the configuration required to construct an engine.
type Config struct {
	Genesis          database.Block
	Chain            *database.Chain
	MaxForks         int
	MaxOrphans       int
	MaxOrphanRetries int
	EvHandler        func(v string, args ...any)
}

// Engine owns the chain, the fork pool, the orphan pool and the mempool.
// An Engine is not safe for concurrent use, it is driven by a single
// goroutine.
type Engine struct {
	genesis          database.Block
	chain            *database.Chain
	forks            *fork.Pool
	orphans          *orphan.Pool
	mempool          *mempool.Mempool
	maxForks         int
	maxOrphanRetries int
	evHandler        func(v string, args ...any)
}

// New constructs an engine. When no chain is provided the engine starts
// with a chain holding only the genesis block.
func New(cfg Config) *Engine {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	chain := cfg.Chain
	if chain == nil {
		chain = database.NewChain(database.NewStore(), cfg.Genesis, ev)
	}

	e := Engine{
		genesis:          cfg.Genesis,
		chain:            chain,
		forks:            fork.New(chain.Store(), cfg.MaxForks, ev),
		orphans:          orphan.New(cfg.MaxOrphans),
		maxForks:         cfg.MaxForks,
		maxOrphanRetries: cfg.MaxOrphanRetries,
		evHandler:        ev,
	}

	e.mempool = mempool.New(func(txID string) bool {
		return e.chain.ContainsTx(txID)
	})

	return &e
}

// Genesis returns the genesis block.
func (e *Engine) Genesis() database.Block {
	return e.genesis
}

// Chain returns the canonical chain.
func (e *Engine) Chain() *database.Chain {
	return e.chain
}

// Mempool returns the pool of pending transactions.
func (e *Engine) Mempool() *mempool.Mempool {
	return e.mempool
}

// Forks returns the details of every fork.
func (e *Engine) Forks() []fork.Info {
	return e.forks.Copy()
}

// Orphans returns the details of every orphan.
func (e *Engine) Orphans() []orphan.Info {
	return e.orphans.Copy()
}

// QueryBlock returns the block for the specified hash from the chain or
// the fork pool.
func (e *Engine) QueryBlock(hash string) (database.Block, bool) {
	if b, exists := e.chain.Get(hash); exists {
		return b, true
	}
	return e.forks.Get(hash)
}

// =============================================================================

// Handle processes the event and returns what happened.
func (e *Engine) Handle(event Event) Result {
	var res Result

	switch ev := event.(type) {
	case NewBlock:
		e.admit(ev.Block, ev.Source, &res)

	case BlockRequestResponse:
		e.admit(ev.Block, ev.Source, &res)

	case MinedBlock:
		e.admit(ev.Block, "", &res)

	case ChainSyncResponse:
		blocks := append([]database.Block(nil), ev.Blocks...)
		sort.SliceStable(blocks, func(i, j int) bool {
			return blocks[i].Header.Number < blocks[j].Header.Number
		})

		e.evHandler("consensus: Handle: sync: replaying blocks[%d] from[%s]", len(blocks), ev.Source)

		for _, block := range blocks {
			e.admit(block, ev.Source, &res)
		}

	case NewTransaction:
		if err := e.mempool.Insert(ev.Tx); err != nil {
			e.evHandler("consensus: Handle: tx[%s]: rejected: %s", ev.Tx, err)
			res.Err = err
			return res
		}

		e.evHandler("consensus: Handle: tx[%s]: added to mempool", ev.Tx)
		res.Actions = append(res.Actions, BroadcastTransaction{Tx: ev.Tx, Except: ev.Source})
	}

	return res
}

// RetryOrphans counts another attempt for every orphan. Requests are
// produced for the parents still missing and orphans that used up their
// retries are evicted.
func (e *Engine) RetryOrphans() Result {
	var res Result

	due, expired := e.orphans.Retry(e.maxOrphanRetries)

	for _, entry := range due {
		res.Actions = append(res.Actions, RequestBlock{Hash: entry.Block.Header.ParentHash, Peer: entry.Source})
	}

	for _, entry := range expired {
		err := &database.SyncError{Hash: entry.Block.Header.ParentHash, Retries: entry.Retries - 1}
		e.evHandler("consensus: RetryOrphans: blk[%d]: evicted: %s", entry.Block.Header.Number, err)
		res.Outcomes = append(res.Outcomes, Outcome{
			Hash:           entry.Block.Hash(),
			Number:         entry.Block.Header.Number,
			Classification: MissingParent,
			Err:            err,
		})
	}

	return res
}

// Replace swaps the chain for one restored from storage. Forks and orphans
// are dropped since they were relative to the previous chain. Transactions
// confirmed by the previous chain but not by the restored one go back into
// the mempool.
func (e *Engine) Replace(chain *database.Chain) {
	previous := e.chain.Blocks(1, e.chain.Height())

	e.chain = chain
	e.forks = fork.New(chain.Store(), e.maxForks, e.evHandler)
	e.orphans.Reset()

	if n := e.mempool.Prune(); n > 0 {
		e.evHandler("consensus: Replace: pruned confirmed transactions[%d]", n)
	}

	e.reinject(previous)
}

// Reset returns the chain to genesis. Forks and orphans are dropped and the
// transactions of the removed blocks go back into the mempool.
func (e *Engine) Reset() {
	removed := e.chain.Reset()
	e.forks.Reset()
	e.orphans.Reset()

	e.reinject(removed)
	e.sweep()
}

// =============================================================================

// admit runs a single block through the state machine. Any orphans waiting
// on the block are admitted after it.
func (e *Engine) admit(block database.Block, source string, res *Result) {
	out := e.classify(block, source, res)
	res.Outcomes = append(res.Outcomes, out)

	if out.Err != nil {
		e.evHandler("consensus: admit: blk[%d]: %s: %s: %s", out.Number, out.Hash, out.Classification, out.Err)
	} else {
		e.evHandler("consensus: admit: blk[%d]: %s: %s: promoted[%t]", out.Number, out.Hash, out.Classification, out.Promoted)
	}

	switch out.Classification {
	case DirectExtend, CompetingBlock, NewFork, ForkExtends:
		for _, entry := range e.orphans.Resolve(block.Hash()) {
			e.evHandler("consensus: admit: blk[%d]: releasing orphan: %s", entry.Block.Header.Number, entry.Block.Hash())
			e.admit(entry.Block, entry.Source, res)
		}
	}
}

// classify applies the admission rules in order: duplicate check, validity,
// parent resolution, comparison against the tip, fork placement and the
// promotion check.
func (e *Engine) classify(block database.Block, source string, res *Result) Outcome {
	out := Outcome{
		Hash:   block.Hash(),
		Number: block.Header.Number,
	}

	// Duplicate check.
	if e.chain.Contains(block.Hash()) || e.forks.Contains(block.Hash()) || e.orphans.Contains(block.Hash()) {
		out.Classification = Duplicate
		return out
	}

	// Structural and proof of work check.
	if err := block.ValidateSelf(); err != nil {
		out.Classification = Invalid
		out.Err = err
		return out
	}

	// Parent resolution.
	parentHash := block.Header.ParentHash
	if !e.chain.Contains(parentHash) && !e.forks.Contains(parentHash) {
		out.Classification = MissingParent
		e.addOrphan(block, source, res)
		return out
	}

	// Comparison against the chain tip.
	tip := e.chain.Tip()
	switch {
	case parentHash == tip.Hash():
		if err := e.chain.TryAppend(block); err != nil {
			out.Classification = Invalid
			out.Err = err
			return out
		}

		out.Classification = DirectExtend
		e.mempool.RemoveConfirmed(block)
		e.afterChainMutation(res)
		res.Actions = append(res.Actions, BroadcastBlock{Block: block, Except: source})

		// A direct extension can still leave a fork carrying more work
		// when difficulties differ between branches.
		out.Promoted = e.promote(res)
		return out

	case tip.Header.Number > 0 && parentHash == tip.Header.ParentHash && block.Header.Number == tip.Header.Number:
		if _, _, err := e.forks.Register(block, e.chain); err != nil {
			out.Classification = Invalid
			out.Err = err
			return out
		}

		out.Classification = CompetingBlock
		out.Promoted = e.promote(res)
		return out
	}

	// Fork pool placement.
	outcome, _, err := e.forks.Register(block, e.chain)
	if err != nil {
		out.Classification = Invalid
		out.Err = err
		return out
	}

	switch outcome {
	case fork.ExtendsExistingFork:
		out.Classification = ForkExtends
	case fork.StartsNewFork:
		out.Classification = NewFork
	default:
		out.Classification = MissingParent
		e.addOrphan(block, source, res)
		return out
	}

	// Promotion check.
	out.Promoted = e.promote(res)
	return out
}

// addOrphan holds the block and asks the network for what is missing. A
// node more than one block behind asks for the chain instead of the parent.
func (e *Engine) addOrphan(block database.Block, source string, res *Result) {
	for _, entry := range e.orphans.Add(block, source) {
		e.evHandler("consensus: addOrphan: blk[%d]: evicted: %s", entry.Block.Header.Number, entry.Block.Hash())
	}

	parentHash := block.Header.ParentHash

	switch {
	case e.orphans.Contains(parentHash):
		// The parent is held as an orphan and its ancestors are already
		// being requested.

	case block.Header.Number > e.chain.Height()+1:
		res.Actions = append(res.Actions, RequestChain{Peer: source, From: e.chain.Height() + 1})

	default:
		res.Actions = append(res.Actions, RequestBlock{Hash: parentHash, Peer: source})
	}
}

// promote replaces the chain suffix with the heaviest fork while a fork
// carries more work than the chain. A fork that fails to apply is dropped.
func (e *Engine) promote(res *Result) bool {
	var promoted bool

	for {
		plan := e.forks.PromoteIfHeavier(e.chain)
		if plan == nil {
			break
		}

		forkpoint, _ := e.chain.BlockAt(plan.ForkpointHeight)

		displaced, err := e.chain.ReplaceSuffix(plan.ForkpointHeight, plan.Blocks)
		if err != nil {
			e.evHandler("consensus: promote: forkpoint[%d]: dropping fork: %s", plan.ForkpointHeight, err)
			e.forks.Remove(plan.Fork)
			continue
		}

		e.evHandler("consensus: promote: forkpoint[%d]: new tip[%d]: displaced[%d]", plan.ForkpointHeight, e.chain.Height(), len(displaced))

		e.forks.Remove(plan.Fork)
		e.forks.AddBranch(forkpoint.Hash(), plan.ForkpointHeight, displaced)

		if n := e.forks.RevalidateAfterReorg(e.chain); n > 0 {
			e.evHandler("consensus: promote: dropped forks[%d]", n)
		}

		e.reinject(displaced)
		e.afterChainMutation(res)

		promoted = true
	}

	if promoted {
		res.Actions = append(res.Actions, BroadcastBlock{Block: e.chain.Tip()})
	}

	return promoted
}

// afterChainMutation performs the duties shared by every change of the
// chain tip.
func (e *Engine) afterChainMutation(res *Result) {
	if n := e.mempool.Prune(); n > 0 {
		e.evHandler("consensus: afterChainMutation: pruned confirmed transactions[%d]", n)
	}

	e.sweep()
	res.TipChanged = true
}

// reinject returns the transactions of blocks that left the chain to the
// mempool when they are not confirmed anymore.
func (e *Engine) reinject(blocks []database.Block) {
	for _, block := range blocks {
		tx := block.Payload.Tx
		if tx == nil {
			continue
		}

		if err := e.mempool.Insert(*tx); err != nil {
			if !errors.Is(err, database.ErrDuplicateTransaction) {
				e.evHandler("consensus: reinject: tx[%s]: %s", tx, err)
			}
			continue
		}

		e.evHandler("consensus: reinject: tx[%s]: back in mempool", tx)
	}
}

// sweep drops the blocks neither the chain nor a fork refers to.
func (e *Engine) sweep() {
	live := func(hash string) bool {
		return e.chain.Contains(hash) || e.forks.Contains(hash)
	}

	if n := e.chain.Store().Sweep(live); n > 0 {
		e.evHandler("consensus: sweep: released blocks[%d]", n)
	}
}
