package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelgrid.ai/internal/platform/config"
	"voxelgrid.ai/internal/platform/otel"
	persistlog "voxelgrid.ai/internal/persistence/log"
	"voxelgrid.ai/internal/sim/tuning"
	"voxelgrid.ai/internal/sim/world"
	"voxelgrid.ai/internal/transport/mcpbridge"
	"voxelgrid.ai/internal/transport/observer"
	"voxelgrid.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "grid_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit read model)")
		noSeed     = flag.Bool("no_seed", false, "skip seed_voxels/seed_links from tuning")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	env, err := config.LoadServerEnv()
	if err != nil {
		logger.Fatalf("env: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := otel.Setup(ctx, "voxelgrid-server", env.OTelEndpoint, env.OTelEnabled)
	if err != nil {
		logger.Fatalf("otel: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = shutdownTracing(ctx2)
	}()

	// Optional: read-model index backend (does not affect propagation).
	idx, err := openRuntimeIndex(worldDir, *worldID, *disableDB, env, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(*worldID, tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	w, err := world.New(worldConfigFromTuning(*worldID, tune))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()

	obsSrv := observer.NewServer(w, logger)
	ticks := multiTickLogger{tickLog, obsSrv}
	audits := multiAuditLogger{auditLog}
	if idx != nil {
		ticks = append(ticks, idx)
		audits = append(audits, idx)
	}
	w.SetTickLogger(ticks)
	w.SetAuditLogger(audits)

	if !*noSeed {
		n, err := seedWorld(w, tune)
		if err != nil {
			logger.Fatalf("seed: %v", err)
		}
		logger.Printf("seeded voxels=%d links=%d", n, len(tune.SeedLinks))
	}

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
			if world.IsCorrupted(err) {
				cancel()
			}
		}
	}()

	wsSrv := ws.NewServer(w, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, wsSrv, obsSrv, idx))

	if env.AdminHTTPEnabled() {
		// Local-only admin endpoints.
		registerAdminHandlers(mux, w)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (VG_ENABLE_ADMIN_HTTP=false)")
	}
	if env.EnablePprofHTTP {
		registerPprof(mux)
	} else {
		logger.Printf("pprof endpoints disabled (VG_ENABLE_PPROF_HTTP=false)")
	}
	if env.EnableMCPHTTP {
		mux.Handle("/mcp", loopbackGuard(mcpbridge.Handler(mcpbridge.NewServer(w))))
		logger.Printf("mcp tools enabled at /mcp (loopback only)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s interval=%s", *addr, *worldID, tune.TickInterval())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
	logger.Printf("stopped at tick=%d", w.CurrentTick())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteTick(entry)
		}
	}
	return nil
}

type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteAudit(entry)
		}
	}
	return nil
}
