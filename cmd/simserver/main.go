package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poseplanner.ai/internal/sim/simtest"
	"poseplanner.ai/internal/transport/ws"
)

func main() {
	var (
		addr = flag.String("addr", ":8070", "http listen address")
		path = flag.String("path", "/v1/sim", "websocket endpoint path")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[simserver] ", log.LstdFlags|log.Lmicroseconds)

	s := simtest.New(simtest.Kitchen())
	mux := http.NewServeMux()
	mux.HandleFunc(*path, ws.NewServer(s, "kitchen", logger).Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("serving in-memory kitchen on %s%s", *addr, *path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("listen: %v", err)
	}
}
