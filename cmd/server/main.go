package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nickray/healthlake/pkg/blob/badger"
	"github.com/nickray/healthlake/pkg/config"
	"github.com/nickray/healthlake/pkg/server"
)

const badgerGCInterval = 10 * time.Minute

func main() {
	log.Println("Starting healthlake server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	log.Printf("Data directory: %s", cfg.DataDir)

	store, err := badger.New(badger.Config{Path: cfg.DataDir})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()
	log.Println("BadgerDB object store initialized")

	router, hub, err := server.Initialize(cfg, store)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	log.Println("WebSocket hub started for sync notifications")

	go runBadgerGC(ctx, store)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
		// Write timeout covers the full query-engine polling wait on a
		// cache miss; keep it well above typical execution time.
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		log.Println("  POST /sync              - Ingest health export data")
		log.Println("  GET  /detail/<date>     - Daily metric rollup")
		log.Println("  GET  /workouts/<date>   - Daily workout rollup")
		log.Println("  GET  /summary/<month>   - Monthly rollup")
		log.Println("  GET  /global            - All-time metrics")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown warning: %v", err)
	}
	log.Println("Server exited cleanly")
}

// runBadgerGC periodically reclaims value log space; Badger never does this
// on its own.
func runBadgerGC(ctx context.Context, store *badger.Store) {
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.RunGC(0.5); err == nil {
				log.Println("BadgerDB GC reclaimed disk space")
			}
		}
	}
}
