package ingest

import (
	"context"
	"fmt"

	"dsa-agent/database"
	"dsa-agent/rag"

	"go.uber.org/zap"
)

// Chunk is one piece of a source document ready for embedding.
type Chunk struct {
	rag.Document
	Index int
	Hash  string
}

// Sink receives embedded chunks. Begin is called once with every source that
// will be written so stale chunks can be replaced.
type Sink interface {
	Begin(ctx context.Context, sources []string, dimension int) error
	Write(ctx context.Context, chunks []Chunk, vectors [][]float32) (int, error)
	Finish(ctx context.Context, model string, dimension int) error
}

// Pipeline chunks, embeds and stores a corpus.
type Pipeline struct {
	chunker  *rag.Chunker
	embedder rag.Embedder
	sink     Sink
	model    string
	batch    int
	logger   *zap.Logger
}

type Stats struct {
	Documents int
	Chunks    int
	Stored    int
	Dimension int
}

func NewPipeline(chunker *rag.Chunker, embedder rag.Embedder, sink Sink, model string, batch int, logger *zap.Logger) *Pipeline {
	if batch <= 0 {
		batch = 64
	}
	return &Pipeline{chunker: chunker, embedder: embedder, sink: sink, model: model, batch: batch, logger: logger}
}

// ChunkDocuments splits docs and drops duplicate chunks within a source.
func (p *Pipeline) ChunkDocuments(docs []rag.Document) []Chunk {
	var out []Chunk
	next := make(map[string]int)
	seen := make(map[string]struct{})
	for _, d := range docs {
		for _, text := range p.chunker.Chunk(d.Text) {
			hash := rag.HashContent(text)
			key := d.Source + "\x00" + hash
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			meta := make(map[string]string, len(d.Metadata))
			for k, v := range d.Metadata {
				meta[k] = v
			}
			out = append(out, Chunk{
				Document: rag.Document{Text: text, Source: d.Source, Metadata: meta},
				Index:    next[d.Source],
				Hash:     hash,
			})
			next[d.Source]++
		}
	}
	return out
}

// Run ingests docs. Embedding the first batch fixes the vector dimension the
// sink is prepared with.
func (p *Pipeline) Run(ctx context.Context, docs []rag.Document) (Stats, error) {
	stats := Stats{Documents: len(docs)}
	chunks := p.ChunkDocuments(docs)
	stats.Chunks = len(chunks)
	if len(chunks) == 0 {
		return stats, fmt.Errorf("no chunks produced from %d documents", len(docs))
	}
	p.logger.Info("Chunked corpus", zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))

	sources := uniqueSources(chunks)
	begun := false

	for start := 0; start < len(chunks); start += p.batch {
		end := min(start+p.batch, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return stats, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		if !begun {
			stats.Dimension = len(vectors[0])
			if err := p.sink.Begin(ctx, sources, stats.Dimension); err != nil {
				return stats, err
			}
			begun = true
		}

		n, err := p.sink.Write(ctx, batch, vectors)
		if err != nil {
			return stats, err
		}
		stats.Stored += n
		p.logger.Info("Stored batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(chunks)))
	}

	if err := p.sink.Finish(ctx, p.model, stats.Dimension); err != nil {
		return stats, err
	}
	return stats, nil
}

func uniqueSources(chunks []Chunk) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range chunks {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		out = append(out, c.Source)
	}
	return out
}

// ChunkStore is the part of the Postgres store ingestion writes through.
type ChunkStore interface {
	EnsureSchema(ctx context.Context, dimension int) error
	DeleteManifest(ctx context.Context, name string) error
	DeleteChunksBySources(ctx context.Context, sources []string) (int64, error)
	InsertChunks(ctx context.Context, records []database.ChunkRecord) (int, error)
	SaveManifest(ctx context.Context, m database.Manifest) error
}

// PostgresSink writes to the dsa_chunks table, replacing prior chunks of
// re-ingested sources. The manifest is dropped before any chunk changes and
// only written back by Finish, so an interrupted run leaves an index that
// fails the startup check.
type PostgresSink struct {
	store ChunkStore
}

func NewPostgresSink(store ChunkStore) *PostgresSink {
	return &PostgresSink{store: store}
}

func (s *PostgresSink) Begin(ctx context.Context, sources []string, dimension int) error {
	if err := s.store.EnsureSchema(ctx, dimension); err != nil {
		return err
	}
	if err := s.store.DeleteManifest(ctx, database.ChunksManifest); err != nil {
		return err
	}
	_, err := s.store.DeleteChunksBySources(ctx, sources)
	return err
}

func (s *PostgresSink) Write(ctx context.Context, chunks []Chunk, vectors [][]float32) (int, error) {
	records := make([]database.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = database.ChunkRecord{
			Source:      c.Source,
			FileType:    c.Metadata["file_type"],
			ChunkIndex:  c.Index,
			Content:     c.Text,
			Metadata:    c.Metadata,
			ContentHash: c.Hash,
			Embedding:   vectors[i],
		}
	}
	return s.store.InsertChunks(ctx, records)
}

func (s *PostgresSink) Finish(ctx context.Context, model string, dimension int) error {
	return s.store.SaveManifest(ctx, database.Manifest{
		Name:           database.ChunksManifest,
		Version:        rag.SnapshotVersion,
		EmbeddingModel: model,
		Dimension:      dimension,
	})
}

// SnapshotSink accumulates chunks in memory and writes a snapshot directory
// at the end.
type SnapshotSink struct {
	index *rag.SnapshotIndex
	dir   string
}

func NewSnapshotSink(dir string, model string) (*SnapshotSink, error) {
	index, err := rag.NewSnapshotIndex(nil, model)
	if err != nil {
		return nil, err
	}
	return &SnapshotSink{index: index, dir: dir}, nil
}

func (s *SnapshotSink) Begin(context.Context, []string, int) error { return nil }

func (s *SnapshotSink) Write(ctx context.Context, chunks []Chunk, vectors [][]float32) (int, error) {
	docs := make([]rag.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = c.Document
	}
	if err := s.index.Add(ctx, docs, vectors); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *SnapshotSink) Finish(context.Context, string, int) error {
	return s.index.Save(s.dir)
}
