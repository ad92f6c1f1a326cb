package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/powchain/app/services/node/handlers"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/database/storage"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/metrics"
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/logger"
	"github.com/ardanlabs/powchain/foundation/nameservice"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10m"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
			CorsOrigins     []string      `conf:"default:*"`
		}
		State struct {
			Storage             string        `conf:"default:file,help:file|disk|memory"`
			DBPath              string        `conf:"default:zblock/chain.json"`
			AutoMine            bool          `conf:"default:true"`
			MaxForks            int           `conf:"default:64"`
			MaxOrphans          int           `conf:"default:256"`
			MaxOrphanRetries    int           `conf:"default:5"`
			OrphanRetryInterval time.Duration `conf:"default:10s"`
			PeerUpdateInterval  time.Duration `conf:"default:1m"`
			KnownPeers          []string      `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
			Reset               bool          `conf:"default:false,help:clears a corrupt snapshot before starting"`
		}
		Genesis struct {
			Path string `conf:"default:zblock/genesis.json"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work blockchain node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for account addresses.
	// The names come from the file names in the zblock/accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", account)
	}

	// =========================================================================
	// Blockchain Support

	gen, err := genesis.Load(cfg.Genesis.Path)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	strg, err := newStorage(cfg.State.Storage, cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("unable to construct storage: %w", err)
	}

	// A corrupt snapshot keeps the node from starting until it is cleared.
	if cfg.State.Reset {
		log.Infow("startup", "status", "clearing snapshot", "path", cfg.State.DBPath)
		if err := strg.Reset(); err != nil {
			return fmt.Errorf("unable to reset storage: %w", err)
		}
	}

	// A peer set is a collection of known nodes in the network so transactions
	// and blocks can be shared.
	peerSet := peer.NewPeerSet()
	for _, host := range cfg.State.KnownPeers {
		if host != cfg.Web.PrivateHost {
			peerSet.Add(peer.New(host))
		}
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. The viewer events are sent to any websocket client
	// that is connected into the system through the events package.
	evts := events.New("viewer:")
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	st, err := state.New(state.Config{
		Host:             cfg.Web.PrivateHost,
		Genesis:          gen,
		Storage:          strg,
		KnownPeers:       peerSet,
		MaxForks:         cfg.State.MaxForks,
		MaxOrphans:       cfg.State.MaxOrphans,
		MaxOrphanRetries: cfg.State.MaxOrphanRetries,
		EvHandler:        ev,
	})
	if err != nil {
		if errors.Is(err, state.ErrSnapshotCorrupt) {
			return fmt.Errorf("%w: restart with NODE_STATE_RESET=true", err)
		}
		return err
	}
	defer func() {
		if err := st.Shutdown(); err != nil {
			log.Errorw("shutdown", "status", "state shutdown", "ERROR", err)
		}
	}()

	// The worker package implements the different workflows such as mining,
	// network actions, orphan retries and peer updates. The worker will
	// register itself with the state.
	wrk := worker.Run(st, worker.Config{
		AutoMine:            cfg.State.AutoMine,
		PeerUpdateInterval:  cfg.State.PeerUpdateInterval,
		OrphanRetryInterval: cfg.State.OrphanRetryInterval,
		EvHandler:           ev,
	})

	// The collector reads the node status every time the metrics are scraped.
	prometheus.MustRegister(metrics.NewCollector(st.QueryStatus))

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:    shutdown,
		Log:         log,
		State:       st,
		Worker:      wrk,
		NS:          ns,
		Evts:        evts,
		CorsOrigins: cfg.Web.CorsOrigins,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// newStorage constructs the serializer used to persist the chain.
func newStorage(kind string, path string) (database.Serializer, error) {
	switch kind {
	case "file":
		return storage.NewFile(path)
	case "disk":
		return storage.NewDisk(path)
	case "memory":
		return storage.NewMemory(), nil
	}

	return nil, fmt.Errorf("unknown storage %q", kind)
}
