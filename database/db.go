package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresStore holds the corpus index tables. The pool is shared process wide
// and opened once at startup.
type PostgresStore struct {
	DB     *sql.DB
	logger *zap.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Successfully connected to the database")
	return &PostgresStore{DB: db, logger: logger}, nil
}

// EnsureSchema creates the pgvector extension and chunk table if they do not exist.
// dimension fixes the embedding width; 0 leaves the column unconstrained and skips the ANN index.
func (s *PostgresStore) EnsureSchema(ctx context.Context, dimension int) error {
	vectorType := "vector"
	if dimension > 0 {
		vectorType = fmt.Sprintf("vector(%d)", dimension)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dsa_chunks (
            id UUID PRIMARY KEY,
            source TEXT NOT NULL,
            file_type TEXT NOT NULL DEFAULT '',
            chunk_index INT NOT NULL,
            content TEXT NOT NULL,
            metadata JSONB DEFAULT '{}'::jsonb,
            content_hash TEXT NOT NULL,
            embedding %s NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`, vectorType),
		`CREATE INDEX IF NOT EXISTS idx_dsa_chunks_source ON dsa_chunks(source)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_dsa_chunks_hash ON dsa_chunks(source, content_hash)`,
		`CREATE TABLE IF NOT EXISTS index_manifest (
            name TEXT PRIMARY KEY,
            version INT NOT NULL,
            embedding_model TEXT NOT NULL,
            dimension INT NOT NULL,
            updated_at TIMESTAMPTZ DEFAULT NOW()
        )`,
	}
	if dimension > 0 {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_dsa_chunks_embedding ON dsa_chunks USING hnsw (embedding vector_cosine_ops)`)
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}
