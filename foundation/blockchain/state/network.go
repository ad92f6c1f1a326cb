package state

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
	"golang.org/x/sync/errgroup"
)

const baseURL = "http://%s/v1/node"

// maxPeerRequests is the number of peers talked to at the same time.
const maxPeerRequests = 8

// NetSendBlockToPeers takes the new block and sends it to all known peers
// except the one it came from.
func (s *State) NetSendBlockToPeers(ctx context.Context, block database.Block, except string) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	var g errgroup.Group
	g.SetLimit(maxPeerRequests)

	for _, pr := range s.RetrieveKnownPeers() {
		if pr.Match(except) {
			continue
		}

		g.Go(func() error {
			url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))

			var status struct {
				Status string `json:"status"`
			}

			if err := s.send(ctx, http.MethodPost, url, database.NewBlockData(block), &status); err != nil {
				s.evHandler("state: NetSendBlockToPeers: WARNING: %s: %s", pr.Host, err)
				return fmt.Errorf("%s: %w", pr.Host, err)
			}

			s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]: status[%s]", pr, status.Status)
			return nil
		})
	}

	return g.Wait()
}

// NetSendTxToPeers shares a new transaction with the known peers except the
// one it came from.
func (s *State) NetSendTxToPeers(ctx context.Context, tx database.SignedTx, except string) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	var g errgroup.Group
	g.SetLimit(maxPeerRequests)

	for _, pr := range s.RetrieveKnownPeers() {
		if pr.Match(except) {
			continue
		}

		g.Go(func() error {
			url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
			if err := s.send(ctx, http.MethodPost, url, tx, nil); err != nil {
				s.evHandler("state: NetSendTxToPeers: WARNING: %s: %s", pr.Host, err)
			}
			return nil
		})
	}

	g.Wait()
}

// NetRequestPeerStatus asks the peer for its status, including the peers
// it knows about.
func (s *State) NetRequestPeerStatus(ctx context.Context, pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := s.send(ctx, http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer-node[%s]: latest-blknum[%d]: work[%s]: peer-list[%s]", pr, ps.LatestBlockNumber, ps.CumulativeWork, ps.KnownPeers)

	return ps, nil
}

// NetRequestAddPeer lets the peer know this node is available.
func (s *State) NetRequestAddPeer(ctx context.Context, pr peer.Peer) error {
	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))
	return s.send(ctx, http.MethodPost, url, peer.New(s.host), nil)
}

// NetRequestPeerMempool asks the peer for the transactions in their mempool.
func (s *State) NetRequestPeerMempool(ctx context.Context, pr peer.Peer) ([]database.SignedTx, error) {
	s.evHandler("state: NetRequestPeerMempool: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerMempool: completed: %s", pr)

	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var mempool []database.SignedTx
	if err := s.send(ctx, http.MethodGet, url, nil, &mempool); err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestPeerMempool: len[%d]", len(mempool))

	return mempool, nil
}

// NetRequestPeerBlocks asks the peer for its chain blocks starting at the
// specified number.
func (s *State) NetRequestPeerBlocks(ctx context.Context, pr peer.Peer, from uint64) ([]database.Block, error) {
	s.evHandler("state: NetRequestPeerBlocks: started: %s: from[%d]", pr, from)
	defer s.evHandler("state: NetRequestPeerBlocks: completed: %s", pr)

	url := fmt.Sprintf("%s/block/list/%d/latest", fmt.Sprintf(baseURL, pr.Host), from)

	var blocksData []database.BlockData
	if err := s.send(ctx, http.MethodGet, url, nil, &blocksData); err != nil {
		return nil, err
	}

	blocks := make([]database.Block, 0, len(blocksData))
	for _, bd := range blocksData {
		block, err := database.ToBlock(bd)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	s.evHandler("state: NetRequestPeerBlocks: found blocks[%d]", len(blocks))

	return blocks, nil
}

// NetRequestPeerBlock asks the peer for the block with the specified hash.
func (s *State) NetRequestPeerBlock(ctx context.Context, pr peer.Peer, hash string) (database.Block, error) {
	s.evHandler("state: NetRequestPeerBlock: started: %s: hash[%s]", pr, hash)
	defer s.evHandler("state: NetRequestPeerBlock: completed: %s", pr)

	url := fmt.Sprintf("%s/block/hash/%s", fmt.Sprintf(baseURL, pr.Host), hash)

	var blockData database.BlockData
	if err := s.send(ctx, http.MethodGet, url, nil, &blockData); err != nil {
		return database.Block{}, err
	}

	return database.ToBlock(blockData)
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func (s *State) send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	req := s.client.R().SetContext(ctx)

	if dataSend != nil {
		req.SetBody(dataSend)
	}

	if dataRecv != nil {
		req.SetResult(dataRecv)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("%s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}

	return nil
}
