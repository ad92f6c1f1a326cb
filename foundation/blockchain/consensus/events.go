package consensus

import (
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
)

// Event represents an input to the engine. The set of events is closed,
// only the types in this package implement it.
type Event interface {
	event()
}

// NewBlock is a block received from a peer.
type NewBlock struct {
	Block  database.Block
	Source string
}

// NewTransaction is a transaction received from a peer or a wallet.
type NewTransaction struct {
	Tx     database.SignedTx
	Source string
}

// ChainSyncResponse carries the blocks a peer returned for a chain request.
type ChainSyncResponse struct {
	Blocks []database.Block
	Source string
}

// BlockRequestResponse carries the block a peer returned for a block request.
type BlockRequestResponse struct {
	Block  database.Block
	Source string
}

// MinedBlock is a block this node mined.
type MinedBlock struct {
	Block database.Block
}

func (NewBlock) event()             {}
func (NewTransaction) event()       {}
func (ChainSyncResponse) event()    {}
func (BlockRequestResponse) event() {}
func (MinedBlock) event()           {}

// =============================================================================

// Action represents work the engine needs the network layer to perform.
// The set of actions is closed, only the types in this package implement it.
type Action interface {
	action()
}

// BroadcastBlock sends the block to every known peer except the one it
// came from.
type BroadcastBlock struct {
	Block  database.Block
	Except string
}

// BroadcastTransaction sends the transaction to every known peer except the
// one it came from.
type BroadcastTransaction struct {
	Tx     database.SignedTx
	Except string
}

// RequestBlock asks for the block with the specified hash. An empty peer
// means any peer can be asked.
type RequestBlock struct {
	Hash string
	Peer string
}

// RequestChain asks for the blocks starting at the specified height. An
// empty peer means all peers are asked.
type RequestChain struct {
	Peer string
	From uint64
}

func (BroadcastBlock) action()       {}
func (BroadcastTransaction) action() {}
func (RequestBlock) action()         {}
func (RequestChain) action()         {}
