package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "data_dir", cfg.Index.DataDir)

	if err := run(cfg); err != nil {
		slog.Error("indexer service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var s *schema.Schema
	if !indexer.Exists(cfg.Index.DataDir) {
		if cfg.Index.SchemaFile == "" {
			return fmt.Errorf("no index at %s and no index.schemaFile to create one", cfg.Index.DataDir)
		}
		var err error
		if s, err = schema.LoadFile(cfg.Index.SchemaFile); err != nil {
			return err
		}
	}
	idx, err := indexer.Open(cfg.Index.DataDir, s, true, cfg)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	w, err := idx.Writer(0, 0)
	if err != nil {
		return err
	}
	defer w.Close()

	if cfg.Postgres.Host != "" {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to commit catalog: %w", err)
		}
		defer db.Close()
		cat := catalog.New(db.DB, catalog.IndexName(cfg.Index.DataDir))
		if err := cat.Migrate(ctx); err != nil {
			return err
		}
		// The final commit runs after ctx is cancelled.
		w.OnCommit(cat.Hook(context.Background()))
		slog.Info("commit catalog enabled", "host", cfg.Postgres.Host)
	}

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path)
		if err := ms.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ms.Shutdown(shutdownCtx)
		}()
	}

	ic := consumer.New(idx.Schema(), w, cfg.Ingest, cfg.Index.CommitInterval, metrics.Default())
	kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, ic.HandleMessage, kafka.WithDeferredCommit())
	defer kc.Close()
	ic.SetOffsetCommitter(kc)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
		"commit_every", cfg.Ingest.CommitEvery,
		"commit_interval", cfg.Index.CommitInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return kc.Start(gctx)
	})
	g.Go(func() error {
		ic.Run(gctx)
		return nil
	})
	return g.Wait()
}
