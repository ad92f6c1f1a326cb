// Package mempool maintains the pool of pending transactions for the
// blockchain. Transactions are handed to the miner in the order they arrived.
package mempool

import (
	"sync"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// ConfirmedFunc reports if a transaction with the specified id is already
// confirmed in the chain.
type ConfirmedFunc func(txID string) bool

// Mempool represents a cache of transactions keyed by transaction id. The
// insertion order is kept so the oldest transaction is mined first.
type Mempool struct {
	mu        sync.RWMutex
	pool      map[string]database.SignedTx
	order     []string
	confirmed ConfirmedFunc
}

// New constructs a new mempool. The confirmed function is used to reject
// transactions the chain already holds.
func New(confirmed ConfirmedFunc) *Mempool {
	if confirmed == nil {
		confirmed = func(string) bool { return false }
	}

	return &Mempool{
		pool:      make(map[string]database.SignedTx),
		confirmed: confirmed,
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Insert validates the transaction and adds it to the pool if it is not
// already pending or confirmed.
func (mp *Mempool) Insert(tx database.SignedTx) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	id := tx.ID()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[id]; exists {
		return database.NewTxError(database.DuplicateTransaction, "tx[%s] already pending", tx)
	}

	if mp.confirmed(id) {
		return database.NewTxError(database.DuplicateTransaction, "tx[%s] already confirmed", tx)
	}

	mp.pool[id] = tx
	mp.order = append(mp.order, id)

	return nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(txID string) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.delete(txID)
}

// RemoveConfirmed removes any pool transaction carried by the block's
// payload. It reports if a transaction was removed.
func (mp *Mempool) RemoveConfirmed(block database.Block) bool {
	if block.Payload.Tx == nil {
		return false
	}

	return mp.Delete(block.Payload.Tx.ID())
}

// NextForMining returns the oldest pending transaction.
func (mp *Mempool) NextForMining() (database.SignedTx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if len(mp.order) == 0 {
		return database.SignedTx{}, false
	}

	return mp.pool[mp.order[0]], true
}

// Copy returns the pending transactions in the order they arrived.
func (mp *Mempool) Copy() []database.SignedTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.SignedTx, 0, len(mp.order))
	for _, id := range mp.order {
		txs = append(txs, mp.pool[id])
	}

	return txs
}

// Prune removes every transaction the confirmed function now reports as
// confirmed and returns how many were removed.
func (mp *Mempool) Prune() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for _, id := range append([]string(nil), mp.order...) {
		if mp.confirmed(id) {
			mp.delete(id)
			removed++
		}
	}

	return removed
}

// =============================================================================

// delete removes the transaction, the caller must hold the write lock.
func (mp *Mempool) delete(txID string) bool {
	if _, exists := mp.pool[txID]; !exists {
		return false
	}

	delete(mp.pool, txID)
	for i, id := range mp.order {
		if id == txID {
			mp.order = append(mp.order[:i], mp.order[i+1:]...)
			break
		}
	}

	return true
}
