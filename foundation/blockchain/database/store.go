package database

// Store is a content addressed set of blocks. The chain and the fork pool
// hold ordered hashes into the store, so blocks shared between branches
// are kept once. A Store is not safe for concurrent use, it is owned by the
// single goroutine applying changes to the chain.
type Store struct {
	blocks map[string]Block
}

// NewStore constructs an empty block store.
func NewStore() *Store {
	return &Store{
		blocks: make(map[string]Block),
	}
}

// Put adds the block to the store under its hash.
func (s *Store) Put(block Block) {
	s.blocks[block.Hash()] = block
}

// Get returns the block for the specified hash.
func (s *Store) Get(hash string) (Block, bool) {
	b, exists := s.blocks[hash]
	return b, exists
}

// Len returns the number of blocks being held.
func (s *Store) Len() int {
	return len(s.blocks)
}

// Sweep removes every block the live function does not claim and returns
// the number of blocks removed.
func (s *Store) Sweep(live func(hash string) bool) int {
	var removed int
	for hash := range s.blocks {
		if !live(hash) {
			delete(s.blocks, hash)
			removed++
		}
	}

	return removed
}
