// Package orphan holds blocks whose parent is not known yet. Orphans are
// indexed by the hash of the parent they wait on so they can be released
// once that parent is accepted.
package orphan

import (
	"sort"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// Entry represents an orphaned block and the bookkeeping for requesting
// its parent.
type Entry struct {
	Block   database.Block
	Source  string
	Retries int
	Added   time.Time
}

// Info is a copy of the orphan details for display.
type Info struct {
	Hash       string    `json:"hash"`
	Number     uint64    `json:"number"`
	ParentHash string    `json:"parent_hash"`
	Source     string    `json:"source"`
	Retries    int       `json:"retries"`
	Added      time.Time `json:"added"`
}

// Pool represents the set of orphaned blocks. A Pool is not safe for
// concurrent use.
type Pool struct {
	entries  map[string]*Entry
	byParent map[string][]string
	order    []string
	max      int
}

// New constructs an orphan pool holding at most max blocks. When the pool
// is full the oldest orphan is evicted.
func New(max int) *Pool {
	return &Pool{
		entries:  make(map[string]*Entry),
		byParent: make(map[string][]string),
		max:      max,
	}
}

// Len returns the number of orphans.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Contains reports if the block is held as an orphan.
func (p *Pool) Contains(hash string) bool {
	_, exists := p.entries[hash]
	return exists
}

// Get returns the orphan for the specified hash.
func (p *Pool) Get(hash string) (database.Block, bool) {
	e, exists := p.entries[hash]
	if !exists {
		return database.Block{}, false
	}
	return e.Block, true
}

// Add stores the block until its parent arrives. Adding a block that is
// already held does nothing. The evicted orphans are returned.
func (p *Pool) Add(block database.Block, source string) []Entry {
	hash := block.Hash()
	if p.Contains(hash) {
		return nil
	}

	p.entries[hash] = &Entry{
		Block:  block,
		Source: source,
		Added:  time.Now(),
	}
	p.byParent[block.Header.ParentHash] = append(p.byParent[block.Header.ParentHash], hash)
	p.order = append(p.order, hash)

	var evicted []Entry
	for p.max > 0 && len(p.entries) > p.max {
		evicted = append(evicted, p.remove(p.order[0]))
	}

	return evicted
}

// Resolve removes and returns every orphan waiting on the specified parent.
func (p *Pool) Resolve(parentHash string) []Entry {
	hashes := p.byParent[parentHash]
	if len(hashes) == 0 {
		return nil
	}

	resolved := make([]Entry, 0, len(hashes))
	for _, hash := range append([]string(nil), hashes...) {
		resolved = append(resolved, p.remove(hash))
	}

	return resolved
}

// Retry counts another attempt for every orphan. Orphans that used up
// maxRetries are evicted and returned as expired. The others are returned
// as due, one per missing parent that is not itself held as an orphan.
func (p *Pool) Retry(maxRetries int) (due []Entry, expired []Entry) {
	requested := make(map[string]bool)

	for _, hash := range append([]string(nil), p.order...) {
		e := p.entries[hash]
		e.Retries++

		if e.Retries > maxRetries {
			expired = append(expired, p.remove(hash))
			continue
		}

		parent := e.Block.Header.ParentHash
		if p.Contains(parent) || requested[parent] {
			continue
		}

		requested[parent] = true
		due = append(due, *e)
	}

	return due, expired
}

// Copy returns the details of every orphan ordered by block number.
func (p *Pool) Copy() []Info {
	infos := make([]Info, 0, len(p.entries))
	for _, hash := range p.order {
		e := p.entries[hash]
		infos = append(infos, Info{
			Hash:       hash,
			Number:     e.Block.Header.Number,
			ParentHash: e.Block.Header.ParentHash,
			Source:     e.Source,
			Retries:    e.Retries,
			Added:      e.Added,
		})
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Number < infos[j].Number
	})

	return infos
}

// Reset removes every orphan.
func (p *Pool) Reset() {
	p.entries = make(map[string]*Entry)
	p.byParent = make(map[string][]string)
	p.order = nil
}

// remove drops the orphan from every index.
func (p *Pool) remove(hash string) Entry {
	e := p.entries[hash]
	delete(p.entries, hash)

	parent := e.Block.Header.ParentHash
	siblings := p.byParent[parent]
	for i, h := range siblings {
		if h == hash {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(siblings) == 0 {
		delete(p.byParent, parent)
	} else {
		p.byParent[parent] = siblings
	}

	for i, h := range p.order {
		if h == hash {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}

	return *e
}
