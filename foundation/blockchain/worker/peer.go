package worker

import (
	"context"
	"math/big"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
)

// peerOperations handles finding new peers.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.peerTicker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}

		case done := <-w.redial:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
			close(done)

		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation updates the peer list. A peer that doesn't answer is
// dropped from the list and a peer that carries more work than this node
// is asked for its chain.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(ctx, pr)
		if err != nil {
			w.evHandler("worker: runPeersOperation: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			w.state.RemoveKnownPeer(pr)
			continue
		}

		// Add new peers to this nodes list.
		w.addNewPeers(peerStatus.KnownPeers)

		if w.isHeavier(peerStatus) {
			w.evHandler("worker: runPeersOperation: %s: carries more work[%s]", pr.Host, peerStatus.CumulativeWork)
			w.requestChain(ctx, consensus.RequestChain{Peer: pr.Host, From: 1})
		}
	}

	// Get the latest peers and let them know this node is available to chat.
	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetRequestAddPeer(ctx, pr); err != nil {
			w.evHandler("worker: runPeersOperation: addPeer: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// addNewPeers takes the list of known peers and makes sure they are included
// in the nodes list of know peers.
func (w *Worker) addNewPeers(knownPeers []peer.Peer) {
	w.evHandler("worker: runPeersOperation: addNewPeers: started")
	defer w.evHandler("worker: runPeersOperation: addNewPeers: completed")

	for _, pr := range knownPeers {
		if w.state.AddKnownPeer(pr) {
			w.evHandler("worker: runPeersOperation: addNewPeers: add peer nodes: adding peer-node %s", pr)
		}
	}
}

// isHeavier reports if the peer's chain carries more work than ours.
func (w *Worker) isHeavier(ps peer.PeerStatus) bool {
	theirs, ok := new(big.Int).SetString(ps.CumulativeWork, 10)
	if !ok {
		return false
	}

	status, err := w.state.QueryStatus()
	if err != nil {
		return false
	}

	ours, ok := new(big.Int).SetString(status.CumulativeWork, 10)
	if !ok {
		return false
	}

	return theirs.Cmp(ours) > 0
}
