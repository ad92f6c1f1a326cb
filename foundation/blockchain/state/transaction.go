package state

import (
	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// UpsertWalletTransaction accepts a transaction from a wallet for inclusion.
// The transaction is shared with every known peer.
func (s *State) UpsertWalletTransaction(signedTx database.SignedTx) error {
	return s.upsertTransaction(signedTx, "")
}

// UpsertNodeTransaction accepts a transaction from a node for inclusion.
// The transaction is shared with every known peer except the source.
func (s *State) UpsertNodeTransaction(signedTx database.SignedTx, source string) error {
	return s.upsertTransaction(signedTx, source)
}

// =============================================================================

// upsertTransaction validates the transaction and adds it to the mempool.
func (s *State) upsertTransaction(signedTx database.SignedTx, source string) error {
	res, err := s.dispatch(message{event: consensus.NewTransaction{Tx: signedTx, Source: source}})
	if err != nil {
		return err
	}

	if res.Err != nil {
		return res.Err
	}

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}
