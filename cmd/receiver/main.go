// Command receiver is the robot-side end of the websocket bridge. It
// writes every program it receives to a file for the arm controller.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roboblocks/internal/bridge"
	"roboblocks/internal/logging"
	persistlog "roboblocks/internal/persistence/log"
	"roboblocks/internal/transport/ws"
)

func main() {
	var (
		addr     = flag.String("addr", ":8090", "http listen address")
		outPath  = flag.String("out", bridge.DefaultFilePath, "file each received program is written to")
		auditDir = flag.String("audit", "", "directory for the received-submissions log (empty disables)")
		logFile  = flag.String("log_file", "", "rotated log file (in addition to stdout)")
	)
	flag.Parse()

	logger, logCloser := logging.New("receiver", logging.Options{File: *logFile, MaxSizeMB: 20, MaxBackups: 3})
	defer logCloser.Close()

	var recorders []bridge.Recorder
	if d := strings.TrimSpace(*auditDir); d != "" {
		audit := persistlog.NewSubmissionLogger(d, logger)
		defer audit.Close()
		recorders = append(recorders, audit)
	}
	sink := bridge.NewRecording(bridge.NewFileBridge(*outPath), "receiver", recorders...)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/bridge", ws.NewReceiver(sink, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s out=%s", *addr, *outPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-stopped
}
