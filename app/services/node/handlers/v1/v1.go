// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/powchain/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/powchain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/nameservice"
	"github.com/ardanlabs/powchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Worker public.Worker
	NS     *nameservice.NameService
	Evts   *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:    cfg.Log,
		State:  cfg.State,
		Worker: cfg.Worker,
		NS:     cfg.NS,
		WS:     websocket.Upgrader{},
		Evts:   cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/accounts", pbl.Accounts)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
	app.Handle(http.MethodGet, version, "/tx/list", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/mining/mine", pbl.Mine)
	app.Handle(http.MethodPost, version, "/sync/:peer", pbl.Sync)
	app.Handle(http.MethodGet, version, "/chain", pbl.Chain)
	app.Handle(http.MethodGet, version, "/chain/block/:hash", pbl.BlockByHash)
	app.Handle(http.MethodPost, version, "/chain/load", pbl.Load)
	app.Handle(http.MethodPost, version, "/chain/save", pbl.Save)
	app.Handle(http.MethodPost, version, "/chain/reset", pbl.Reset)
	app.Handle(http.MethodGet, version, "/forks", pbl.Forks)
	app.Handle(http.MethodGet, version, "/orphans", pbl.Orphans)
	app.Handle(http.MethodGet, version, "/peers", pbl.Peers)
	app.Handle(http.MethodPost, version, "/peers/redial", pbl.Redial)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodPost, version, "/node/peers", prv.AddPeer)
	app.Handle(http.MethodGet, version, "/node/block/hash/:hash", prv.BlockByHash)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByNumber)
	app.Handle(http.MethodPost, version, "/node/block/propose", prv.ProposeBlock)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitNodeTransaction)
	app.Handle(http.MethodGet, version, "/node/tx/list", prv.Mempool)
}
