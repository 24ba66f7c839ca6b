package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dsa-agent/config"
	"dsa-agent/database"
	"dsa-agent/ingest"
	"dsa-agent/llmclient"
	"dsa-agent/rag"

	"go.uber.org/zap"
)

func main() {
	backend := flag.String("backend", "", "Index backend to write: pgvector or snapshot (defaults to INDEX_BACKEND)")
	flag.Parse()

	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load(tempLogger)
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	if *backend != "" {
		cfg.IndexBackend = *backend
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Ingestion failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	docs, err := ingest.LoadCorpus(cfg.BooksDir, cfg.JSONDir, logger)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents found in %s or %s", cfg.BooksDir, cfg.JSONDir)
	}

	var sink ingest.Sink
	switch cfg.IndexBackend {
	case "snapshot":
		snapshot, err := ingest.NewSnapshotSink(cfg.SnapshotDir, cfg.EmbeddingModel)
		if err != nil {
			return err
		}
		sink = snapshot
	default:
		store, err := database.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		sink = ingest.NewPostgresSink(store)
	}

	embedder, err := rag.NewCachedEmbedder(llmclient.New(cfg, logger), cfg.EmbeddingModel, cfg.EmbeddingCacheSize, nil, logger)
	if err != nil {
		return err
	}
	chunker := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, rag.NewProseSentenceSplitter(logger))
	pipeline := ingest.NewPipeline(chunker, embedder, sink, cfg.EmbeddingModel, cfg.IngestBatch, logger)

	stats, err := pipeline.Run(ctx, docs)
	if err != nil {
		return err
	}
	logger.Info("Ingestion complete",
		zap.String("backend", cfg.IndexBackend),
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.Chunks),
		zap.Int("stored", stats.Stored),
		zap.Int("dimension", stats.Dimension))
	return nil
}
