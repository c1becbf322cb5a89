// Package main provides the entry point for the self-hosted relay daemon.
//
// relayd stores only sealed blobs and opaque topic messages; it never sees
// plaintext libraries. Configuration comes from RELAYD_* environment
// variables or a .env file.
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

	"github.com/samber/do/v2"

	"github.com/leafmarkapp/leafmark-sync/internal/config"
	"github.com/leafmarkapp/leafmark-sync/internal/di"
	"github.com/leafmarkapp/leafmark-sync/internal/logger"
	"github.com/leafmarkapp/leafmark-sync/internal/relay/server"
)

func main() {
	injector := di.NewContainer(config.Flags{})

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := do.MustInvoke[*logger.Logger](injector)
	relay := do.MustInvoke[*server.Server](injector)
	defer relay.Close()

	srv := &http.Server{
		Addr:              cfg.Relayd.Addr,
		Handler:           relay,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay daemon listening", "addr", cfg.Relayd.Addr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("relay daemon failed", "error", err)
		}
	case <-quit:
		log.Info("Shutting down relay daemon gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Shutdown error", "error", err)
		}
	}

	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}
}
