// Package fork maintains the set of branches that diverge from the canonical
// chain but have not replaced it. Fork blocks live in the same block store
// as the chain, a fork only holds the ordered hashes of its blocks.
package fork

import (
	"sort"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/holiman/uint256"
)

// Outcome represents what happened to a block handed to Register.
type Outcome int

// Set of outcomes for registering a block.
const (
	ExtendsExistingFork Outcome = iota + 1
	StartsNewFork
	Orphaned
)

// String implements the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case ExtendsExistingFork:
		return "ExtendsExistingFork"
	case StartsNewFork:
		return "StartsNewFork"
	case Orphaned:
		return "Orphaned"
	}
	return "Unknown"
}

// =============================================================================

// Fork represents a contiguous branch of blocks whose first block follows
// the forkpoint, the last block the branch shares with the chain.
type Fork struct {
	Forkpoint       string
	ForkpointHeight uint64
	Hashes          []string
	Work            *uint256.Int
}

// Tip returns the hash of the last block in the fork.
func (f *Fork) Tip() string {
	return f.Hashes[len(f.Hashes)-1]
}

// Height returns the height of the last block in the fork.
func (f *Fork) Height() uint64 {
	return f.ForkpointHeight + uint64(len(f.Hashes))
}

// index returns the position of the hash inside the fork.
func (f *Fork) index(hash string) int {
	for i, h := range f.Hashes {
		if h == hash {
			return i
		}
	}
	return -1
}

// Info is a copy of the fork details for display.
type Info struct {
	Forkpoint       string `json:"forkpoint"`
	ForkpointHeight uint64 `json:"forkpoint_height"`
	Tip             string `json:"tip"`
	TipHeight       uint64 `json:"tip_height"`
	Length          int    `json:"length"`
	Work            string `json:"work"`
}

// PromotionPlan describes the fork that should replace the chain suffix
// above the forkpoint height.
type PromotionPlan struct {
	Fork            *Fork
	ForkpointHeight uint64
	Blocks          []database.Block
}

// =============================================================================

// Pool represents the set of known forks keyed by forkpoint and then by tip.
// A Pool is not safe for concurrent use.
type Pool struct {
	store     *database.Store
	forks     map[string]map[string]*Fork
	members   map[string]int
	maxForks  int
	evHandler func(v string, args ...any)
}

// New constructs an empty fork pool. When more than maxForks forks exist,
// the fork with the least total work is dropped.
func New(store *database.Store, maxForks int, evHandler func(v string, args ...any)) *Pool {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	return &Pool{
		store:     store,
		forks:     make(map[string]map[string]*Fork),
		members:   make(map[string]int),
		maxForks:  maxForks,
		evHandler: evHandler,
	}
}

// Len returns the number of forks.
func (p *Pool) Len() int {
	var n int
	for _, tips := range p.forks {
		n += len(tips)
	}
	return n
}

// Contains reports if the block is part of any fork.
func (p *Pool) Contains(hash string) bool {
	return p.members[hash] > 0
}

// Get returns the fork block for the specified hash.
func (p *Pool) Get(hash string) (database.Block, bool) {
	if !p.Contains(hash) {
		return database.Block{}, false
	}
	return p.store.Get(hash)
}

// IsTip reports if the hash is the tip of a fork.
func (p *Pool) IsTip(hash string) bool {
	for _, tips := range p.forks {
		if _, exists := tips[hash]; exists {
			return true
		}
	}
	return false
}

// Register places the block into the pool. The block extends a fork when
// its parent is a fork tip, starts a new fork when its parent is any other
// known chain or fork block, and is orphaned otherwise. The block is
// validated against its parent before it is added.
func (p *Pool) Register(block database.Block, chain *database.Chain) (Outcome, *Fork, error) {
	parentHash := block.Header.ParentHash

	// The parent is the tip of an existing fork.
	if f := p.forkByTip(parentHash); f != nil {
		parent, _ := p.store.Get(parentHash)
		if err := block.Validate(parent, p.evHandler); err != nil {
			return 0, nil, err
		}

		p.remove(f)
		f.Hashes = append(f.Hashes, block.Hash())
		f.Work = new(uint256.Int).Add(f.Work, block.Work())
		p.store.Put(block)
		p.add(f)

		p.evHandler("fork: Register: extend: forkpoint[%d]: tip[%d]: %s", f.ForkpointHeight, f.Height(), block.Hash())

		return ExtendsExistingFork, f, nil
	}

	// The parent sits inside an existing fork. The new fork shares the
	// prefix up to the parent.
	if f, i := p.forkContaining(parentHash); f != nil {
		parent, _ := p.store.Get(parentHash)
		if err := block.Validate(parent, p.evHandler); err != nil {
			return 0, nil, err
		}

		hashes := make([]string, 0, i+2)
		hashes = append(hashes, f.Hashes[:i+1]...)
		hashes = append(hashes, block.Hash())

		nf := Fork{
			Forkpoint:       f.Forkpoint,
			ForkpointHeight: f.ForkpointHeight,
			Hashes:          hashes,
		}
		p.store.Put(block)
		nf.Work = p.work(nf.Hashes)
		p.add(&nf)
		p.enforceLimit(chain, &nf)

		p.evHandler("fork: Register: new fork from fork: forkpoint[%d]: tip[%d]: %s", nf.ForkpointHeight, nf.Height(), block.Hash())

		return StartsNewFork, &nf, nil
	}

	// The parent is a block in the chain.
	if height, exists := chain.HeightOf(parentHash); exists {
		parent, _ := chain.Get(parentHash)
		if err := block.Validate(parent, p.evHandler); err != nil {
			return 0, nil, err
		}

		nf := Fork{
			Forkpoint:       parentHash,
			ForkpointHeight: height,
			Hashes:          []string{block.Hash()},
			Work:            block.Work(),
		}
		p.store.Put(block)
		p.add(&nf)
		p.enforceLimit(chain, &nf)

		p.evHandler("fork: Register: new fork from chain: forkpoint[%d]: %s", height, block.Hash())

		return StartsNewFork, &nf, nil
	}

	return Orphaned, nil, nil
}

// AddBranch records a contiguous set of blocks that follow the forkpoint as
// a fork. It is used to keep the blocks a promotion removed from the chain.
func (p *Pool) AddBranch(forkpoint string, forkpointHeight uint64, blocks []database.Block) {
	if len(blocks) == 0 {
		return
	}

	f := Fork{
		Forkpoint:       forkpoint,
		ForkpointHeight: forkpointHeight,
		Hashes:          make([]string, len(blocks)),
	}

	for i, block := range blocks {
		p.store.Put(block)
		f.Hashes[i] = block.Hash()
	}
	f.Work = p.work(f.Hashes)

	p.add(&f)
}

// PromoteIfHeavier compares every fork against the chain blocks it would
// replace and returns the fork with the most total work among those that
// carry strictly more work than the chain over the same span.
func (p *Pool) PromoteIfHeavier(chain *database.Chain) *PromotionPlan {
	var best *Fork
	var bestTotal *uint256.Int

	for _, f := range p.sorted() {
		height, exists := chain.HeightOf(f.Forkpoint)
		if !exists || height != f.ForkpointHeight {
			continue
		}

		// Ties keep the chain, the fork must be strictly heavier.
		if !f.Work.Gt(chain.WorkAfter(height)) {
			continue
		}

		total := new(uint256.Int).Add(chain.WorkThrough(height), f.Work)
		if best == nil || total.Gt(bestTotal) {
			best = f
			bestTotal = total
		}
	}

	if best == nil {
		return nil
	}

	return &PromotionPlan{
		Fork:            best,
		ForkpointHeight: best.ForkpointHeight,
		Blocks:          p.Blocks(best),
	}
}

// Remove drops the fork from the pool.
func (p *Pool) Remove(f *Fork) {
	p.remove(f)
}

// RevalidateAfterReorg re-anchors every fork against the chain after a
// promotion. Blocks that are now part of the chain are stripped from the
// front of a fork. A fork whose forkpoint left the chain is re-anchored
// through another fork holding that forkpoint, or dropped. The number of
// dropped forks is returned.
func (p *Pool) RevalidateAfterReorg(chain *database.Chain) int {
	all := p.sorted()

	p.forks = make(map[string]map[string]*Fork)
	p.members = make(map[string]int)

	var dropped int
	var pending []*Fork

	for _, f := range all {
		for len(f.Hashes) > 0 && chain.Contains(f.Hashes[0]) {
			f.Forkpoint = f.Hashes[0]
			f.Hashes = f.Hashes[1:]
		}

		if len(f.Hashes) == 0 {
			dropped++
			continue
		}

		height, exists := chain.HeightOf(f.Forkpoint)
		if !exists {
			pending = append(pending, f)
			continue
		}

		f.ForkpointHeight = height
		f.Work = p.work(f.Hashes)
		p.add(f)
	}

	// Forks rooted on a losing branch can be re-anchored through the fork
	// now holding that branch. Repeat while progress is being made.
	for progress := true; progress && len(pending) > 0; {
		progress = false

		var next []*Fork
		for _, f := range pending {
			anchor, i := p.forkContaining(f.Forkpoint)
			if anchor == nil {
				next = append(next, f)
				continue
			}

			hashes := make([]string, 0, i+1+len(f.Hashes))
			hashes = append(hashes, anchor.Hashes[:i+1]...)
			hashes = append(hashes, f.Hashes...)

			f.Forkpoint = anchor.Forkpoint
			f.ForkpointHeight = anchor.ForkpointHeight
			f.Hashes = hashes
			f.Work = p.work(f.Hashes)

			if !p.IsTip(f.Tip()) {
				p.add(f)
			}
			progress = true
		}
		pending = next
	}

	for _, f := range pending {
		p.evHandler("fork: RevalidateAfterReorg: drop: forkpoint[%s]: tip[%s]", f.Forkpoint, f.Tip())
		dropped++
	}

	return dropped
}

// Blocks returns the blocks of the fork in order.
func (p *Pool) Blocks(f *Fork) []database.Block {
	blocks := make([]database.Block, 0, len(f.Hashes))
	for _, hash := range f.Hashes {
		b, _ := p.store.Get(hash)
		blocks = append(blocks, b)
	}
	return blocks
}

// Copy returns the details of every fork ordered by forkpoint height.
func (p *Pool) Copy() []Info {
	forks := p.sorted()

	infos := make([]Info, len(forks))
	for i, f := range forks {
		infos[i] = Info{
			Forkpoint:       f.Forkpoint,
			ForkpointHeight: f.ForkpointHeight,
			Tip:             f.Tip(),
			TipHeight:       f.Height(),
			Length:          len(f.Hashes),
			Work:            f.Work.Dec(),
		}
	}

	return infos
}

// Reset removes every fork.
func (p *Pool) Reset() {
	p.forks = make(map[string]map[string]*Fork)
	p.members = make(map[string]int)
}

// =============================================================================

// add indexes the fork by forkpoint and tip.
func (p *Pool) add(f *Fork) {
	tips, exists := p.forks[f.Forkpoint]
	if !exists {
		tips = make(map[string]*Fork)
		p.forks[f.Forkpoint] = tips
	}
	tips[f.Tip()] = f

	for _, hash := range f.Hashes {
		p.members[hash]++
	}
}

// remove drops the fork from the indexes.
func (p *Pool) remove(f *Fork) {
	tips, exists := p.forks[f.Forkpoint]
	if !exists {
		return
	}

	if _, exists := tips[f.Tip()]; !exists {
		return
	}

	delete(tips, f.Tip())
	if len(tips) == 0 {
		delete(p.forks, f.Forkpoint)
	}

	for _, hash := range f.Hashes {
		p.members[hash]--
		if p.members[hash] <= 0 {
			delete(p.members, hash)
		}
	}
}

// forkByTip returns the fork whose tip is the hash.
func (p *Pool) forkByTip(hash string) *Fork {
	for _, tips := range p.forks {
		if f, exists := tips[hash]; exists {
			return f
		}
	}
	return nil
}

// forkContaining returns a fork holding the hash and its position.
func (p *Pool) forkContaining(hash string) (*Fork, int) {
	if !p.Contains(hash) {
		return nil, -1
	}

	for _, f := range p.sorted() {
		if i := f.index(hash); i >= 0 {
			return f, i
		}
	}
	return nil, -1
}

// work sums the work of the blocks.
func (p *Pool) work(hashes []string) *uint256.Int {
	total := new(uint256.Int)
	for _, hash := range hashes {
		b, _ := p.store.Get(hash)
		total.Add(total, b.Work())
	}
	return total
}

// enforceLimit drops the forks with the least total work until the pool
// is back within its limit. The fork just registered is never the one
// dropped, so a block reported as held stays held.
func (p *Pool) enforceLimit(chain *database.Chain, keep *Fork) {
	if p.maxForks <= 0 {
		return
	}

	for p.Len() > p.maxForks {
		var lightest *Fork
		var lightestTotal *uint256.Int

		for _, f := range p.sorted() {
			if f == keep {
				continue
			}

			total := new(uint256.Int).Add(chain.WorkThrough(f.ForkpointHeight), f.Work)
			if lightest == nil || total.Lt(lightestTotal) {
				lightest = f
				lightestTotal = total
			}
		}

		if lightest == nil {
			return
		}

		p.evHandler("fork: enforceLimit: drop: forkpoint[%d]: tip[%s]", lightest.ForkpointHeight, lightest.Tip())
		p.remove(lightest)
	}
}

// sorted returns the forks in a stable order: forkpoint height, then
// length, then tip hash.
func (p *Pool) sorted() []*Fork {
	var forks []*Fork
	for _, tips := range p.forks {
		for _, f := range tips {
			forks = append(forks, f)
		}
	}

	sort.Slice(forks, func(i, j int) bool {
		if forks[i].ForkpointHeight != forks[j].ForkpointHeight {
			return forks[i].ForkpointHeight < forks[j].ForkpointHeight
		}
		if len(forks[i].Hashes) != len(forks[j].Hashes) {
			return len(forks[i].Hashes) > len(forks[j].Hashes)
		}
		return forks[i].Tip() < forks[j].Tip()
	})

	return forks
}
