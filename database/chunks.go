package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// ChunkRecord is one embedded chunk of the DSA corpus.
type ChunkRecord struct {
	ID          uuid.UUID
	Source      string
	FileType    string
	ChunkIndex  int
	Content     string
	Metadata    map[string]string
	ContentHash string
	Embedding   []float32
}

// ChunkMatch is a search hit with its cosine similarity.
type ChunkMatch struct {
	Source     string
	ChunkIndex int
	Content    string
	Metadata   map[string]string
	Similarity float64
}

// ChunksManifest names the manifest row written by ingestion.
const ChunksManifest = "dsa_chunks"

// Manifest describes the index that is currently loaded.
type Manifest struct {
	Name           string
	Version        int
	EmbeddingModel string
	Dimension      int
}

// InsertChunks writes records in one transaction. Duplicate (source, hash) pairs are skipped.
func (s *PostgresStore) InsertChunks(ctx context.Context, records []ChunkRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO dsa_chunks (id, source, file_type, chunk_index, content, metadata, content_hash, embedding)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (source, content_hash) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		metaJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		res, err := stmt.ExecContext(ctx, rec.ID, rec.Source, rec.FileType, rec.ChunkIndex, rec.Content,
			string(metaJSON), rec.ContentHash, pgvector.NewVector(rec.Embedding))
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk %s#%d: %w", rec.Source, rec.ChunkIndex, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return inserted, nil
}

// DeleteChunksBySources removes every chunk of the given sources so re-ingested files replace old text.
func (s *PostgresStore) DeleteChunksBySources(ctx context.Context, sources []string) (int64, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM dsa_chunks WHERE source = ANY($1)`, pq.Array(sources))
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks by source: %w", err)
	}
	return res.RowsAffected()
}

// SearchChunks returns the k nearest chunks by cosine distance, optionally limited to file types.
func (s *PostgresStore) SearchChunks(ctx context.Context, embedding []float32, k int, fileTypes []string) ([]ChunkMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	var builder strings.Builder
	builder.WriteString(`SELECT source, chunk_index, content, metadata, 1 - (embedding <=> $1) AS similarity FROM dsa_chunks`)
	args := []any{pgvector.NewVector(embedding), k}
	if len(fileTypes) > 0 {
		builder.WriteString(` WHERE file_type = ANY($3)`)
		args = append(args, pq.Array(fileTypes))
	}
	builder.WriteString(` ORDER BY embedding <=> $1 LIMIT $2`)

	rows, err := s.DB.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		var metaJSON []byte
		if err := rows.Scan(&m.Source, &m.ChunkIndex, &m.Content, &metaJSON, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
			}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CountChunks reports how many chunks the index holds.
func (s *PostgresStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM dsa_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// SaveManifest records the version and embedding model of an ingestion run.
func (s *PostgresStore) SaveManifest(ctx context.Context, m Manifest) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO index_manifest (name, version, embedding_model, dimension, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (name) DO UPDATE SET version = EXCLUDED.version,
            embedding_model = EXCLUDED.embedding_model, dimension = EXCLUDED.dimension, updated_at = NOW()`,
		m.Name, m.Version, m.EmbeddingModel, m.Dimension)
	if err != nil {
		return fmt.Errorf("failed to save index manifest: %w", err)
	}
	return nil
}

// DeleteManifest removes the manifest for name so the index reads as unbuilt
// until the next SaveManifest.
func (s *PostgresStore) DeleteManifest(ctx context.Context, name string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM index_manifest WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete index manifest: %w", err)
	}
	return nil
}

// LoadManifest returns the manifest for name. sql.ErrNoRows means the index was never built.
func (s *PostgresStore) LoadManifest(ctx context.Context, name string) (Manifest, error) {
	m := Manifest{Name: name}
	err := s.DB.QueryRowContext(ctx,
		`SELECT version, embedding_model, dimension FROM index_manifest WHERE name = $1`, name).
		Scan(&m.Version, &m.EmbeddingModel, &m.Dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return m, sql.ErrNoRows
	}
	if err != nil {
		return m, fmt.Errorf("failed to load index manifest: %w", err)
	}
	return m, nil
}
