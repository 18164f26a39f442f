package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roboblocks/internal/bridge"
	"roboblocks/internal/config"
	"roboblocks/internal/logging"
	persistlog "roboblocks/internal/persistence/log"
	"roboblocks/internal/persistence/objstore"
	"roboblocks/internal/protocol"
	"roboblocks/internal/transport/httpapi"
	"roboblocks/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/server.yaml", "server config path (missing file uses defaults)")
		addr       = flag.String("addr", "", "http listen address (overrides config listen)")
		disableDB  = flag.Bool("disable_db", false, "disable the submission index")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if a := strings.TrimSpace(*addr); a != "" {
		cfg.Listen = a
	}

	logger, logCloser := logging.New("server", logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer logCloser.Close()

	cats, err := loadCatalogs(cfg)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	logger.Printf("catalogs blocks=%s toolbox=%s", cats.catalog.Digest, cats.toolbox.Digest)

	// Optional read-model index; the audit log stays the source of truth.
	idx, err := openRuntimeIndex(cfg.Index, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	defer idx.Close()
	if entries, err := cats.entries(); err != nil {
		logger.Printf("catalog entries: %v", err)
	} else if err := idx.upsertCatalogs(entries); err != nil {
		logger.Printf("index catalogs: %v", err)
	}

	metrics := idx.metrics()
	recorders := idx.recorders()
	var mirror *objstore.Mirror
	if cfg.AuditLogDir != "" {
		audit := persistlog.NewSubmissionLogger(cfg.AuditLogDir, logger)
		mirror, err = openAuditMirror(cfg, audit, logger)
		if err != nil {
			logger.Fatalf("audit mirror: %v", err)
		}
		defer func() {
			// Closing the audit log hands its last file to the mirror.
			_ = audit.Close()
			mirror.Close()
		}()
		if mirror != nil {
			metrics = append(metrics, httpapi.AuditMirrorMetrics(mirror))
		}
		recorders = append(recorders, audit)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var bridges []bridge.Bridge
	if cfg.UsesFile() {
		fb := bridge.NewFileBridge(cfg.Bridge.FilePath)
		bridges = append(bridges, bridge.NewRecording(fb, "file", recorders...))
		logger.Printf("file bridge path=%s", fb.Path())
	}
	if cfg.UsesWS() {
		ackTimeout, _ := cfg.Bridge.AckTimeoutDuration()
		wb := bridge.NewWSBridge(bridge.WSConfig{
			URL:        cfg.Bridge.WSURL,
			ClientName: cfg.Bridge.ClientName,
			AckTimeout: ackTimeout,
		}, logger)
		wb.Start()
		defer wb.Close()
		bridges = append(bridges, bridge.NewRecording(wb, "ws", recorders...))
		metrics = append(metrics, httpapi.WSBridgeMetrics(wb))
		logger.Printf("ws bridge url=%s", cfg.Bridge.WSURL)
	}
	var b bridge.Bridge
	switch len(bridges) {
	case 0:
		logger.Printf("bridge disabled; Run and Save only emit")
	case 1:
		b = bridges[0]
	default:
		b = bridge.Multi(bridges)
	}

	editors := ws.NewServer(ws.ServerConfig{Emitter: cats.emitter, Bridge: b, Catalogs: cats.digests()}, logger)
	metrics = append(metrics, httpapi.EditorMetrics(editors))

	api := httpapi.New(httpapi.Config{
		Catalog:     cats.catalog,
		Toolbox:     cats.toolbox,
		Emitter:     cats.emitter,
		Bridge:      b,
		Submissions: idx.lister(),
		Metrics:     metrics,
	}, logger)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/v1/ws", editors.Handler())

	if envBool("ROBOBLOCKS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", adminStateHandler(cfg, cats, b, editors, idx, mirror))
	} else {
		logger.Printf("admin endpoints disabled (ROBOBLOCKS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("ROBOBLOCKS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Deferred closes of bridges, audit log and index run only after every
	// handler, including hijacked editor sessions, has returned.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := srv.Shutdown(ctx2); err != nil {
			logger.Printf("http shutdown: %v", err)
		}
		if err := editors.Shutdown(ctx2); err != nil {
			logger.Printf("editor sessions shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s (protocol %s)", cfg.Listen, protocol.Version)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-stopped
	logger.Printf("stopped")
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
