package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/acrell/mnemo/internal/cache"
	"github.com/acrell/mnemo/internal/config"
	"github.com/acrell/mnemo/internal/conflict"
	"github.com/acrell/mnemo/internal/dynamics"
	"github.com/acrell/mnemo/internal/ranker"
	"github.com/acrell/mnemo/internal/semantic"
	"github.com/acrell/mnemo/internal/server"
	"github.com/acrell/mnemo/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Resolve database path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sem := semantic.NewHTTPStore(cfg.Semantic.URL, cfg.Semantic.AgentID, cfg.SemanticTimeout())

	var memCache cache.Cache = cache.Noop{}
	if cfg.Cache.Enabled {
		memCache = cache.NewMemoryCache(
			time.Duration(cfg.Cache.SearchTTL)*time.Second,
			time.Duration(cfg.Cache.KeyMemoryTTL)*time.Second,
		)
	}

	tracker := dynamics.NewTracker(db, sem)
	if cfg.Dynamics.PruneEvery > 0 {
		tracker.PruneEvery = cfg.Dynamics.PruneEvery
	}
	if cfg.Dynamics.RetentionDays > 0 {
		tracker.Retention = time.Duration(cfg.Dynamics.RetentionDays) * 24 * time.Hour
	}

	rk := ranker.New(sem, memCache, tracker)
	rk.Limits = ranker.Limits{
		MaxKeyMemories: cfg.Ranker.MaxKeyMemories,
		MaxPerBucket:   cfg.Ranker.MaxPerBucket,
		MaxRelations:   cfg.Ranker.MaxRelations,
		MaxQueryChars:  cfg.Ranker.MaxQueryChars,
	}

	resolver := conflict.NewResolver(sem, db, tracker, memCache)

	srv := server.New(db, tracker, rk, resolver, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "mnemo serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  semantic store: %s\n", cfg.Semantic.URL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
