package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coordplane/coordplane/internal/config"
	"github.com/coordplane/coordplane/internal/frontrouter"
	"github.com/coordplane/coordplane/internal/gittree"
	"github.com/coordplane/coordplane/internal/vmpool"
)

func main() {
	configPath := flag.String("config", "configs/coordplane.yaml", "Coordplane configuration file")
	listenAddr := flag.String("listen", "", "Override the configured listen address")
	dataDir := flag.String("data", "", "Override the configured data directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	vmpool.SetIntervals(
		time.Duration(cfg.VMPool.HealthCheckIntervalMs)*time.Millisecond,
		time.Duration(cfg.VMPool.VMBootTimeoutMs)*time.Millisecond,
	)
	gittree.SetSweepInterval(time.Duration(cfg.GitTree.SweepIntervalMs) * time.Millisecond)

	handler := frontrouter.New(cfg.DataDir)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("[COORD] listening on %s (data dir %s)\n", cfg.ListenAddr, cfg.DataDir)
		serverErr <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "[COORD] server error: %v\n", err)
			os.Exit(1)
		}
	case <-shutdown:
		fmt.Println("[COORD] shutting down (signal received)...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[COORD] shutdown error: %v\n", err)
	}
	fmt.Println("[COORD] stopped")
}
