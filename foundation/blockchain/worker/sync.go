package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
)

// Sync updates the peer list, mempool and blocks.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(ctx, pr)
		if err != nil {
			w.evHandler("worker: sync: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this nodes list.
		w.addNewPeers(peerStatus.KnownPeers)

		// Retrieve the mempool from the peer.
		pool, err := w.state.NetRequestPeerMempool(ctx, pr)
		if err != nil {
			w.evHandler("worker: sync: retrievePeerMempool: %s: ERROR: %s", pr.Host, err)
		}
		for _, tx := range pool {
			if err := w.state.UpsertNodeTransaction(tx, pr.Host); err != nil {
				w.evHandler("worker: sync: retrievePeerMempool: %s: tx[%s]: %s", pr.Host, tx, err)
			}
		}

		// If this peer has blocks we don't have, we need to add them.
		if w.isHeavier(peerStatus) {
			w.evHandler("worker: sync: retrievePeerBlocks: %s: latestBlockNumber[%d]", pr.Host, peerStatus.LatestBlockNumber)
			w.requestChain(ctx, consensus.RequestChain{Peer: pr.Host, From: 1})
		}
	}
}

// SyncPeers asks the specified peer, or every known peer when the host is
// "all", for its whole chain. The blocks are replayed through the admission
// rules so the chain with the most work wins.
func (w *Worker) SyncPeers(ctx context.Context, host string) error {
	if host == "all" {
		host = ""
	}

	if host != "" {
		if !w.state.AddKnownPeer(peer.New(host)) {
			w.evHandler("worker: SyncPeers: %s: already known", host)
		}
	}

	return w.requestChain(ctx, consensus.RequestChain{Peer: host, From: 1})
}

// =============================================================================

// requestChain asks the peers for their blocks starting at the requested
// height and hands them to the state.
func (w *Worker) requestChain(ctx context.Context, req consensus.RequestChain) error {
	peers := w.targets(req.Peer)
	if len(peers) == 0 {
		return errors.New("no peers to request the chain from")
	}

	var errs []error
	for _, pr := range peers {
		blocks, err := w.state.NetRequestPeerBlocks(ctx, pr, req.From)
		if err != nil {
			w.evHandler("worker: requestChain: %s: ERROR: %s", pr.Host, err)
			errs = append(errs, fmt.Errorf("%s: %w", pr.Host, err))
			continue
		}

		outcomes, err := w.state.ProcessChainSync(blocks, pr.Host)
		if err != nil {
			return err
		}

		w.evHandler("worker: requestChain: %s: replayed blocks[%d]", pr.Host, len(outcomes))
	}

	return errors.Join(errs...)
}

// requestBlock asks the peers for a single block until one returns it.
func (w *Worker) requestBlock(ctx context.Context, req consensus.RequestBlock) error {
	for _, pr := range w.targets(req.Peer) {
		block, err := w.state.NetRequestPeerBlock(ctx, pr, req.Hash)
		if err != nil {
			w.evHandler("worker: requestBlock: %s: hash[%s]: ERROR: %s", pr.Host, req.Hash, err)
			continue
		}

		out, err := w.state.ProcessRequestedBlock(block, pr.Host)
		if err != nil {
			w.evHandler("worker: requestBlock: %s: hash[%s]: %s: %s", pr.Host, req.Hash, out.Classification, err)
		}

		return nil
	}

	return fmt.Errorf("block %s not found on any peer", req.Hash)
}

// targets returns the specified peer, or every known peer when the host is
// empty. A specified peer the node doesn't know is still asked, falling
// back to every known peer when it can't answer is left to retries.
func (w *Worker) targets(host string) []peer.Peer {
	if host != "" {
		return []peer.Peer{peer.New(host)}
	}
	return w.state.RetrieveKnownPeers()
}
