// Command redikit-server starts a RESP2-compatible in-memory data server,
// optionally as a replica of another instance.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/redikit/redikit/mcfg"
	"github.com/redikit/redikit/mctx"
	"github.com/redikit/redikit/mlog"
	"github.com/redikit/redikit/metrics"
	"github.com/redikit/redikit/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := mcfg.New()
	cfg.SetDefault("port", "6379")

	if err := cfg.ParseCLI(os.Args[1:]); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if path, ok := cfg.Get("config-file"); ok {
		if err := cfg.LoadFile(path); err != nil {
			return err
		}
	}

	log := newLogger(cfg)

	srv := server.New(cfg, log)

	if maddr, ok := cfg.Get("metrics-addr"); ok {
		reg := prometheus.NewRegistry()
		srv.WithMetrics(reg)
		go func() {
			if err := metrics.Serve(context.Background(), maddr, reg); err != nil {
				log.Warn(context.Background(), "metrics server stopped", err)
			}
		}()
	}

	addr := ":" + cfg.String("port", "6379")
	srv.RegisterHooks(addr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Hooks.Init runs the listener bind, snapshot load, and (if configured
	// as a replica) master connect registered by RegisterHooks, in that
	// order, before a single connection is accepted.
	if err := srv.Hooks.Init(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	log.Info(mctx.Annotate(ctx, "addr", addr, "replica", fmt.Sprint(srv.IsReplica)), "starting redikit-server")

	err := srv.Run(ctx, addr)

	shutdownCtx := context.Background()
	if shErr := srv.Hooks.Shutdown(shutdownCtx); shErr != nil {
		log.Warn(shutdownCtx, "shutdown hook failed", shErr)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("server exited: %w", err)
	}
	log.Info(shutdownCtx, "shutdown complete")
	return nil
}

func newLogger(cfg *mcfg.Store) *mlog.Logger {
	lvl := mlog.LevelFromString(cfg.String("log-level", "info"))

	var handler mlog.Handler
	if cfg.String("log-format", "text") == "json" {
		handler = mlog.NewJSONLogrusHandler()
	} else {
		handler = mlog.NewTextHandler(os.Stderr)
	}
	return mlog.New(handler, lvl)
}
