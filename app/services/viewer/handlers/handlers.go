// Package handlers contains the full set of handler functions and routes
// supported by the viewer.
package handlers

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/ardanlabs/powchain/business/web/mid"
	"github.com/ardanlabs/powchain/foundation/web"
	"go.uber.org/zap"
)

//go:embed assets
var assets embed.FS

// Config contains all the mandatory systems required by the viewer.
type Config struct {
	Build    string
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	NodeURL  string
}

// UIMux constructs an http.Handler with all application routes defined.
func UIMux(cfg Config) (*web.App, error) {
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Panics(),
		mid.Cors("*"),
	)

	// Register the index page for the website.
	ig, err := newIndex(cfg.Build, cfg.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("loading index template: %w", err)
	}
	app.Handle(http.MethodGet, "", "/", ig.handler)

	// Register the assets.
	static, err := fs.Sub(assets, "assets/static")
	if err != nil {
		return nil, fmt.Errorf("loading assets: %w", err)
	}
	fileServer := http.StripPrefix("/assets/", http.FileServer(http.FS(static)))
	f := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		fileServer.ServeHTTP(w, r)
		return nil
	}
	app.Handle(http.MethodGet, "", "/assets/*", f)

	return app, nil
}
