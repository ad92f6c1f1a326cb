// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/powchain/business/sys/validate"
	"github.com/ardanlabs/powchain/business/web/errs"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/nameservice"
	"github.com/ardanlabs/powchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Worker represents the background work the handlers ask for.
type Worker interface {
	Mine(ctx context.Context, data string) (database.Block, error)
	Redial(ctx context.Context) error
	SyncPeers(ctx context.Context, host string) error
}

// Handlers manages the set of user facing endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Worker Worker
	NS     *nameservice.NameService
	WS     websocket.Upgrader
	Evts   *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	sub := h.Evts.Subscribe()
	defer h.Evts.Unsubscribe(sub.ID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-sub.C:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveGenesis(), http.StatusOK)
}

// Status returns a summary of the chain and the pools.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return h.respondStatus(ctx, w)
}

// Accounts returns the names known to the name service.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.NS.Copy(), http.StatusOK)
}

// SubmitWalletTransaction adds new user transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("add user tran", "traceid", web.GetTraceID(ctx), "from:nonce", signedTx, "to", h.NS.Lookup(signedTx.ToID), "amount", signedTx.Amount)
	if err := h.State.UpsertWalletTransaction(signedTx); err != nil {
		return errs.FromDomain(err)
	}

	resp := struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}{
		Status: "transaction added to mempool",
		ID:     signedTx.ID(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool, err := h.State.QueryMempool()
	if err != nil {
		return errs.FromDomain(err)
	}

	txs := make([]tx, len(mempool))
	for i, signedTx := range mempool {
		txs[i] = toTx(h.NS, signedTx)
	}

	return web.Respond(ctx, w, txs, http.StatusOK)
}

// Mine mines a block carrying the data, or the oldest transaction in the
// mempool when no data is provided.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req mineRequest
	if r.ContentLength != 0 {
		if err := web.Decode(r, &req); err != nil {
			return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
		}
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	blk, err := h.Worker.Mine(ctx, req.Data)
	if err != nil {
		return errs.FromDomain(err)
	}

	return web.Respond(ctx, w, toBlock(h.NS, blk), http.StatusOK)
}

// Sync asks the peer, or every peer for "all", for its chain.
func (h Handlers) Sync(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	host := web.Param(r, "peer")
	if host != "all" {
		if err := validate.CheckHost(host); err != nil {
			return err
		}
	}

	if err := h.Worker.SyncPeers(ctx, host); err != nil {
		return errs.NewTrusted(err, http.StatusBadGateway)
	}

	return h.respondStatus(ctx, w)
}

// Chain returns the blocks of the chain. The range can be limited with the
// from and to query parameters.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := queryNumber(r, "from", 0)
	if err != nil {
		return err
	}

	to, err := queryNumber(r, "to", state.QueryLastest)
	if err != nil {
		return err
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	status, err := h.State.QueryStatus()
	if err != nil {
		return errs.FromDomain(err)
	}

	blocks, err := h.State.QueryBlocksByNumber(from, to)
	if err != nil {
		return errs.FromDomain(err)
	}

	resp := chain{
		Height:         status.Height,
		TipHash:        status.TipHash,
		CumulativeWork: status.CumulativeWork,
		Blocks:         make([]block, len(blocks)),
	}
	for i, blk := range blocks {
		resp.Blocks[i] = toBlock(h.NS, blk)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlockByHash returns the block from the chain or a fork.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash := web.Param(r, "hash")

	blk, exists, err := h.State.QueryBlockByHash(hash)
	if err != nil {
		return errs.FromDomain(err)
	}
	if !exists {
		return errs.NewTrusted(fmt.Errorf("block %s not found", hash), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toBlock(h.NS, blk), http.StatusOK)
}

// Forks returns the forks being tracked.
func (h Handlers) Forks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	forks, err := h.State.QueryForks()
	if err != nil {
		return errs.FromDomain(err)
	}

	return web.Respond(ctx, w, forks, http.StatusOK)
}

// Orphans returns the blocks waiting for their parent.
func (h Handlers) Orphans(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	orphans, err := h.State.QueryOrphans()
	if err != nil {
		return errs.FromDomain(err)
	}

	return web.Respond(ctx, w, orphans, http.StatusOK)
}

// Peers returns the known peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveKnownPeers(), http.StatusOK)
}

// Redial refreshes the peers right away.
func (h Handlers) Redial(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.Worker.Redial(ctx); err != nil {
		return errs.FromDomain(err)
	}

	return web.Respond(ctx, w, h.State.RetrieveKnownPeers(), http.StatusOK)
}

// Load replaces the chain with the saved snapshot.
func (h Handlers) Load(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.Load(); err != nil {
		return errs.FromDomain(err)
	}

	return h.respondStatus(ctx, w)
}

// Save writes a snapshot of the chain.
func (h Handlers) Save(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.Save(); err != nil {
		return errs.FromDomain(err)
	}

	return web.Respond(ctx, w, status{Status: "chain saved"}, http.StatusOK)
}

// Reset returns the chain to the genesis block.
func (h Handlers) Reset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.Reset(); err != nil {
		return errs.FromDomain(err)
	}

	return h.respondStatus(ctx, w)
}

// respondStatus writes the summary of the chain and the pools.
func (h Handlers) respondStatus(ctx context.Context, w http.ResponseWriter) error {
	status, err := h.State.QueryStatus()
	if err != nil {
		return errs.FromDomain(err)
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// =============================================================================

func queryNumber(r *http.Request, key string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(key)
	if v == "" || v == "latest" {
		return def, nil
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errs.NewTrusted(fmt.Errorf("%s: %w", key, err), http.StatusBadRequest)
	}

	return n, nil
}
