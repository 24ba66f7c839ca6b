package rag

import (
	"context"
	"strconv"

	"dsa-agent/database"
	apperrors "dsa-agent/errors"
)

// chunkSearcher is the part of database.PostgresStore the index needs.
type chunkSearcher interface {
	SearchChunks(ctx context.Context, embedding []float32, k int, fileTypes []string) ([]database.ChunkMatch, error)
}

// PgvectorIndex searches the dsa_chunks table by cosine distance.
type PgvectorIndex struct {
	store     chunkSearcher
	embedder  Embedder
	fileTypes []string
}

func NewPgvectorIndex(store chunkSearcher, embedder Embedder, fileTypes []string) *PgvectorIndex {
	return &PgvectorIndex{store: store, embedder: embedder, fileTypes: fileTypes}
}

func (p *PgvectorIndex) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	vec, err := EmbedOne(ctx, p.embedder, query)
	if err != nil {
		return nil, apperrors.Tag(apperrors.ErrRetrieval, err)
	}
	matches, err := p.store.SearchChunks(ctx, vec, k, p.fileTypes)
	if err != nil {
		return nil, apperrors.Tag(apperrors.ErrRetrieval, err)
	}

	docs := make([]Document, 0, len(matches))
	for _, m := range matches {
		meta := cloneStringMap(m.Metadata)
		meta["chunk_index"] = strconv.Itoa(m.ChunkIndex)
		docs = append(docs, Document{
			Text:     m.Content,
			Source:   m.Source,
			Metadata: meta,
			Score:    m.Similarity,
		})
	}
	return docs, nil
}
