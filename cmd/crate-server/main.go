// crate-server is a small TCP server exposing a crate dictionary filter
// over a RESP-subset protocol: CRATE.ADD, CRATE.CONTAIN, CRATE.CONTAINN,
// CRATE.STATS, and PING.
//
// Startup loads an existing snapshot if one is present at -snapshot;
// otherwise it starts with an empty filter sized by -capacity. On a clean
// shutdown (SIGINT/SIGTERM), the current filter state is written back to
// the same path.
//
// The core filter (internal/crate) has no internal synchronization; this
// server wraps it in a sync.RWMutex and is the thing actually responsible
// for making concurrent ADD/CONTAIN calls safe.
package main

import (
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"crate.quotient.dev/internal/crate"
	"crate.quotient.dev/internal/crate/snapshot"
)

type config struct {
	port            int
	maxConnections  int
	shutdownTimeout time.Duration
	idleTimeout     time.Duration
	capacity        uint64
	snapshotPath    string
	metricsAddr     string
}

type application struct {
	config   config
	logger   *slog.Logger
	listener net.Listener
	filter   *crate.Filter
	mu       sync.RWMutex
	router   *router
	metrics  *metrics
	readyCh  chan struct{}
	wg       sync.WaitGroup
	connSem  *semaphore.Weighted
}

func main() {
	var cfg config

	flag.IntVar(&cfg.port, "port", 6480, "TCP server port")
	flag.IntVar(&cfg.maxConnections, "max-conn", 100, "Maximum concurrent connections")
	flag.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", 0, "Idle client connection timeout (0 for no timeout)")
	flag.Uint64Var(&cfg.capacity, "capacity", 1_000_000, "Filter capacity (keys) when starting without a snapshot")
	flag.StringVar(&cfg.snapshotPath, "snapshot", "crate.snap", "Snapshot file path, loaded at startup and saved at shutdown")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", ":9480", "Address to serve Prometheus metrics on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: newMetrics(),
		connSem: semaphore.NewWeighted(int64(cfg.maxConnections)),
	}
	app.router = app.commands()

	if err := app.loadSnapshot(); err != nil {
		logger.Error("failed to load snapshot", "error", err, "path", cfg.snapshotPath)
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.metricsAddr, nil); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	if err := app.serve(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	if err := app.saveSnapshot(); err != nil {
		logger.Error("failed to save snapshot on shutdown", "error", err, "path", cfg.snapshotPath)
		os.Exit(1)
	}
}

func (app *application) commands() *router {
	r := newRouter()
	r.handle("CRATE.ADD", exactly(1), app.handleCrateAdd)
	r.handle("CRATE.CONTAIN", exactly(1), app.handleCrateContain)
	r.handle("CRATE.CONTAINN", oneOf(64, 128), app.handleCrateContainN)
	r.handle("CRATE.STATS", exactly(0), app.handleCrateStats)
	r.handle("PING", anyArity, app.handlePing)
	return r
}

func (app *application) loadSnapshot() error {
	f, err := os.Open(app.config.snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		app.logger.Info("no snapshot found, starting empty", "path", app.config.snapshotPath, "capacity", app.config.capacity)
		app.filter = crate.New(app.config.capacity)
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	loaded, err := snapshot.Load(f)
	if err != nil {
		return err
	}
	app.filter = loaded
	app.logger.Info("loaded snapshot", "path", app.config.snapshotPath, "buckets", loaded.BucketCount(), "fingerprints", loaded.Fill())
	return nil
}

func (app *application) saveSnapshot() error {
	tmp := app.config.snapshotPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	app.mu.RLock()
	err = snapshot.Save(f, app.filter)
	app.mu.RUnlock()

	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, app.config.snapshotPath)
}
