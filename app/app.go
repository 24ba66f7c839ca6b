// Package app builds the process-wide handles once at startup. If any of them
// cannot be built the App stays unready and callers must refuse requests.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	"dsa-agent/agent"
	"dsa-agent/config"
	"dsa-agent/database"
	apperrors "dsa-agent/errors"
	"dsa-agent/llmclient"
	"dsa-agent/rag"
	"dsa-agent/tools"
	"dsa-agent/web/types"

	"go.uber.org/zap"
)

// Runner answers one question. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, question string, history []types.ChatTurn) (string, error)
}

type App struct {
	Agent   Runner
	initErr error
	closers []io.Closer
	logger  *zap.Logger
	once    sync.Once
}

// New never returns nil. Check Ready before serving.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) *App {
	a := &App{logger: logger}
	if err := a.init(ctx, cfg); err != nil {
		a.initErr = apperrors.Tag(apperrors.ErrNotInitialized, err)
		logger.Error("Backend initialization failed; requests will be refused", zap.Error(err))
		a.Close()
		a.closers = nil
		return a
	}
	logger.Info("Backend initialized")
	return a
}

// NewWithRunner wraps an already-built runner, for tests and embedding.
func NewWithRunner(r Runner, logger *zap.Logger) *App {
	return &App{Agent: r, logger: logger}
}

// NewUnavailable records a failed startup.
func NewUnavailable(err error, logger *zap.Logger) *App {
	return &App{initErr: apperrors.Tag(apperrors.ErrNotInitialized, err), logger: logger}
}

func (a *App) Ready() bool {
	return a.initErr == nil && a.Agent != nil
}

func (a *App) InitErr() error {
	if a.initErr == nil && a.Agent == nil {
		return apperrors.ErrNotInitialized
	}
	return a.initErr
}

func (a *App) init(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	llm := llmclient.New(cfg, a.logger)

	var shared rag.EmbeddingCache
	if cfg.RedisURL != "" {
		redisCache, err := rag.NewRedisEmbeddingCache(ctx, cfg.RedisURL, cfg.RedisCacheTTL, a.logger)
		if err != nil {
			// the shared cache is optional
			a.logger.Warn("Redis embedding cache unavailable, using in-process cache only", zap.Error(err))
		} else {
			shared = redisCache
			a.closers = append(a.closers, redisCache)
		}
	}
	embedder, err := rag.NewCachedEmbedder(llm, cfg.EmbeddingModel, cfg.EmbeddingCacheSize, shared, a.logger)
	if err != nil {
		return err
	}

	index, err := a.openIndex(ctx, cfg, embedder)
	if err != nil {
		return err
	}

	var reranker rag.Reranker
	switch cfg.RerankBackend {
	case "lexical":
		reranker = rag.NewLexicalReranker()
	default:
		reranker = rag.NewCohereReranker(cfg.RerankHost, cfg.RerankAPIKey, cfg.RerankModel, cfg.LLMRequestTimeout, a.logger)
	}

	executor, err := a.openSandbox(ctx, cfg)
	if err != nil {
		return err
	}

	retriever := rag.New(cfg, index, reranker, llm, a.logger)
	registry, err := tools.NewRegistry(
		tools.NewKnowledgeBaseTool(retriever, a.logger),
		tools.NewCodeGeneratorTool(llm, a.logger),
		tools.NewPythonREPLTool(executor, cfg.SandboxMaxOutput, a.logger),
		tools.NewDiagramTool(llm, a.logger),
	)
	if err != nil {
		return err
	}

	a.Agent = agent.NewAgent(cfg, llm, registry, a.logger)
	return nil
}

func (a *App) openIndex(ctx context.Context, cfg *config.Config, embedder rag.Embedder) (rag.Index, error) {
	switch cfg.IndexBackend {
	case "snapshot":
		idx, err := rag.LoadSnapshotIndex(cfg.SnapshotDir, embedder, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Loaded snapshot index", zap.String("dir", cfg.SnapshotDir), zap.Int("chunks", idx.Len()))
		return idx, nil
	default:
		store, err := database.NewPostgresStore(ctx, cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, apperrors.Tag(apperrors.ErrIndex, err)
		}
		a.closers = append(a.closers, store)
		n, err := store.CountChunks(ctx)
		if err != nil {
			return nil, apperrors.Tag(apperrors.ErrIndex, err)
		}
		if n == 0 {
			return nil, apperrors.Tag(apperrors.ErrIndex, fmt.Errorf("table dsa_chunks is empty, run the ingest command first"))
		}
		manifest, err := store.LoadManifest(ctx, database.ChunksManifest)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Tag(apperrors.ErrIndex, fmt.Errorf("index manifest missing, the last ingestion did not finish"))
		}
		if err != nil {
			return nil, apperrors.Tag(apperrors.ErrIndex, err)
		}
		if manifest.EmbeddingModel != cfg.EmbeddingModel {
			return nil, apperrors.Tag(apperrors.ErrIndex, fmt.Errorf("index built with %q, configured model is %q", manifest.EmbeddingModel, cfg.EmbeddingModel))
		}
		a.logger.Info("Using pgvector index", zap.Int("chunks", n))
		return rag.NewPgvectorIndex(store, embedder, cfg.IndexFileTypes), nil
	}
}

func (a *App) openSandbox(ctx context.Context, cfg *config.Config) (tools.Executor, error) {
	switch cfg.SandboxBackend {
	case "docker":
		sb, err := tools.NewDockerSandbox(ctx, cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sb)
		return sb, nil
	default:
		pool, err := tools.NewPythonExecutorPool(ctx, cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool)
		return pool, nil
	}
}

// Close releases shared handles in reverse order of creation.
func (a *App) Close() {
	a.once.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i].Close(); err != nil {
				a.logger.Warn("Failed to close resource", zap.Error(err))
			}
		}
	})
}
