package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/synapse/internal/config"
	"github.com/lazypower/synapse/internal/embed"
	"github.com/lazypower/synapse/internal/engine"
	"github.com/lazypower/synapse/internal/logger"
	"github.com/lazypower/synapse/internal/metrics"
	"github.com/lazypower/synapse/internal/server"
	"github.com/lazypower/synapse/internal/store"
	"github.com/lazypower/synapse/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the maintenance scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Env); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get()

	db, dbPath, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	emb := newEmbedder(cfg.Embedding, log)
	m := metrics.New()
	eng, err := engine.New(engine.Options{
		DB:           db,
		Telemetry:    telemetry.NewRuntime(),
		Embedder:     emb,
		Config:       cfg.Engine,
		EmbedTimeout: cfg.Embedding.Timeout,
		Logger:       log,
		Metrics:      m,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Load(ctx); err != nil {
		log.Warn("starting with an empty graph", zap.Error(err))
	}

	events, _ := eng.Subscribe(256)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.New(eng, db, m, log, VersionString()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	eng.Scheduler().Start(gctx)

	g.Go(func() error {
		log.Info("synapse serving",
			zap.String("addr", httpServer.Addr),
			zap.String("db", dbPath),
			zap.String("embedder", embedderName(emb)),
			zap.Duration("interval", cfg.Engine.Interval))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpErr := httpServer.Shutdown(shutdownCtx)
		// scheduler stops before the final flush; db closes after both
		engErr := eng.Shutdown(shutdownCtx)
		return errors.Join(httpErr, engErr)
	})

	g.Go(func() error {
		for ev := range events {
			log.Debug("graph event",
				zap.String("kind", string(ev.Kind)),
				zap.String("subject", ev.Subject),
				zap.Float64("value", ev.Value))
		}
		return nil
	})

	return g.Wait()
}

// newEmbedder builds the configured provider behind a circuit breaker, or
// returns nil so the engine uses fallback vectors.
func newEmbedder(cfg config.EmbeddingConfig, log *zap.Logger) embed.Provider {
	p, err := embed.NewProvider(cfg)
	if errors.Is(err, embed.ErrUnconfigured) {
		log.Info("no embedding provider configured, using fallback vectors")
		return nil
	}
	if err != nil {
		log.Warn("embedding provider unavailable, using fallback vectors", zap.Error(err))
		return nil
	}
	return embed.NewBreaker(p, 30*time.Second, log)
}

func embedderName(p embed.Provider) string {
	if p == nil {
		return "fallback"
	}
	return p.Name()
}

// openDB opens the configured database, defaulting to ~/.synapse/graph.db.
func openDB(cfg config.Config) (*store.DB, string, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	return db, dbPath, nil
}
