package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Ko-stant/room-layout-sync/internal/config"
	"github.com/Ko-stant/room-layout-sync/internal/furniture"
	"github.com/Ko-stant/room-layout-sync/internal/relay"
	"github.com/Ko-stant/room-layout-sync/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	StartProfiling(cfg.Profiling)

	logger := log.New(os.Stderr, "", log.LstdFlags)

	st, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	catalog := furniture.NewCatalog(logger)
	if err := catalog.LoadDir(filepath.Join(cfg.ContentDir, "furniture")); err != nil {
		log.Printf("furniture catalog: %v", err)
	}
	log.Printf("loaded %d furniture types", len(catalog.Definitions()))

	rel := relay.New(st, logger, relay.Options{
		CompactEvery:   cfg.CompactEvery,
		WriteTimeout:   cfg.WriteTimeout,
		ReadLimit:      cfg.ReadLimit,
		AllowedOrigins: cfg.AllowedOrigins,
		Catalog:        catalog,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Debug {
		rel.Metrics().StartMetricsReporting(ctx, logger, time.Minute)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rel.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Printf("relay listening on %s (db %s)", cfg.Addr, cfg.DatabasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := rel.Close(shutdownCtx); err != nil {
		log.Printf("compact on shutdown: %v", err)
	}
}
