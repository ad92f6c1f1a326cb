// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ardanlabs/powchain/business/sys/validate"
	"github.com/ardanlabs/powchain/business/web/errs"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitNodeTransaction adds new node transactions to the mempool.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	source := r.Header.Get(peer.HostHeader)

	h.Log.Infow("add tran", "traceid", web.GetTraceID(ctx), "from:nonce", signedTx, "to", signedTx.ToID, "amount", signedTx.Amount, "source", source)
	if err := h.State.UpsertNodeTransaction(signedTx, source); err != nil {
		return errs.FromDomain(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProposeBlock takes a block received from a peer and runs it through the
// admission rules. Blocks that are not invalid are accepted even if they
// don't change the tip.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var blockData database.BlockData
	if err := web.Decode(r, &blockData); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	block, err := database.ToBlock(blockData)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode block: %w", err), http.StatusBadRequest)
	}

	out, err := h.State.ProcessProposedBlock(block, r.Header.Get(peer.HostHeader))
	if err != nil {
		return errs.FromDomain(err)
	}

	resp := struct {
		Status   string `json:"status"`
		Promoted bool   `json:"promoted"`
	}{
		Status:   out.Classification.String(),
		Promoted: out.Promoted,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st, err := h.State.QueryStatus()
	if err != nil {
		return errs.FromDomain(err)
	}

	status := peer.PeerStatus{
		LatestBlockHash:   st.TipHash,
		LatestBlockNumber: st.Height,
		CumulativeWork:    st.CumulativeWork,
		KnownPeers:        h.State.RetrieveKnownPeers(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// AddPeer learns about the peer that is calling.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.CheckHost(pr.Host); err != nil {
		return err
	}

	if h.State.AddKnownPeer(pr) {
		h.Log.Infow("add peer", "traceid", web.GetTraceID(ctx), "host", pr.Host)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// BlockByHash returns the block from the chain or a fork. It answers the
// requests for the parent of an orphan.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash := web.Param(r, "hash")

	block, exists, err := h.State.QueryBlockByHash(hash)
	if err != nil {
		return errs.FromDomain(err)
	}
	if !exists {
		return errs.NewTrusted(fmt.Errorf("block %s not found", hash), http.StatusNotFound)
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" || fromStr == "" {
		fromStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" || toStr == "" {
		toStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blocks, err := h.State.QueryBlocksByNumber(from, to)
	if err != nil {
		return errs.FromDomain(err)
	}

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs, err := h.State.QueryMempool()
	if err != nil {
		return errs.FromDomain(err)
	}

	return web.Respond(ctx, w, txs, http.StatusOK)
}
