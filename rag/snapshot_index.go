package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	apperrors "dsa-agent/errors"

	"github.com/philippgille/chromem-go"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 2

const (
	snapshotIndexFile    = "index.gob"
	snapshotManifestFile = "manifest.json"
	snapshotCollection   = "dsa-corpus"
	sourceMetadataKey    = "source"
	addConcurrency       = 4
)

// SnapshotManifest describes a snapshot directory.
type SnapshotManifest struct {
	Version        int    `json:"version"`
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
	Chunks         int    `json:"chunks"`
}

// SnapshotIndex is an in-memory chromem collection persisted as a versioned
// directory: the exported database next to a manifest. It is loaded read-only
// at startup.
type SnapshotIndex struct {
	mu         sync.RWMutex
	embedder   Embedder
	db         *chromem.DB
	collection *chromem.Collection
	manifest   SnapshotManifest
}

func NewSnapshotIndex(embedder Embedder, model string) (*SnapshotIndex, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(snapshotCollection, nil, embeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot collection: %w", err)
	}
	return &SnapshotIndex{
		embedder:   embedder,
		db:         db,
		collection: collection,
		manifest:   SnapshotManifest{Version: SnapshotVersion, EmbeddingModel: model},
	}, nil
}

// LoadSnapshotIndex reads dir/manifest.json and imports dir/index.gob. A
// missing or mismatched snapshot is an initialization failure.
func LoadSnapshotIndex(dir string, embedder Embedder, model string) (*SnapshotIndex, error) {
	var manifest SnapshotManifest
	if err := readJSON(filepath.Join(dir, snapshotManifestFile), &manifest); err != nil {
		return nil, apperrors.Tag(apperrors.ErrIndex, err)
	}
	if manifest.Version != SnapshotVersion {
		return nil, apperrors.Tag(apperrors.ErrIndex, fmt.Errorf("snapshot version %d, want %d", manifest.Version, SnapshotVersion))
	}
	if model != "" && manifest.EmbeddingModel != model {
		return nil, apperrors.Tag(apperrors.ErrIndex, fmt.Errorf("snapshot built with %q, configured model is %q", manifest.EmbeddingModel, model))
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(filepath.Join(dir, snapshotIndexFile), ""); err != nil {
		return nil, apperrors.Tag(apperrors.ErrIndex, fmt.Errorf("import %s: %w", snapshotIndexFile, err))
	}
	collection := db.GetCollection(snapshotCollection, embeddingFunc(embedder))
	if collection == nil {
		return nil, apperrors.Tag(apperrors.ErrIndex, fmt.Errorf("snapshot has no %q collection", snapshotCollection))
	}
	if collection.Count() != manifest.Chunks {
		return nil, apperrors.Tag(apperrors.ErrIndex, fmt.Errorf("snapshot has %d chunks, manifest says %d", collection.Count(), manifest.Chunks))
	}
	return &SnapshotIndex{embedder: embedder, db: db, collection: collection, manifest: manifest}, nil
}

// Add stores chunks with precomputed vectors. All vectors must share one
// dimension.
func (s *SnapshotIndex) Add(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("documents and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.manifest.Dimension
	next := s.collection.Count()
	batch := make([]chromem.Document, 0, len(docs))
	for i, d := range docs {
		if dim == 0 {
			dim = len(vectors[i])
		}
		if len(vectors[i]) != dim {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(vectors[i]), dim)
		}
		metadata := cloneStringMap(d.Metadata)
		metadata[sourceMetadataKey] = d.Source
		batch = append(batch, chromem.Document{
			ID:        strconv.Itoa(next + i),
			Metadata:  metadata,
			Embedding: normalize(vectors[i]),
			Content:   d.Text,
		})
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.collection.AddDocuments(ctx, batch, addConcurrency); err != nil {
		return fmt.Errorf("failed to add documents to snapshot: %w", err)
	}
	s.manifest.Dimension = dim
	s.manifest.Chunks = s.collection.Count()
	return nil
}

// Save writes the snapshot to dir, replacing any previous one.
func (s *SnapshotIndex) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, snapshotIndexFile)
	tmp := path + ".tmp"
	if err := s.db.ExportToFile(tmp, false, ""); err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return writeJSON(filepath.Join(dir, snapshotManifestFile), s.manifest)
}

func (s *SnapshotIndex) Len() int {
	return s.collection.Count()
}

func (s *SnapshotIndex) SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error) {
	vec, err := EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, apperrors.Tag(apperrors.ErrRetrieval, err)
	}

	k = min(k, s.collection.Count())
	if k <= 0 {
		return nil, nil
	}
	results, err := s.collection.QueryEmbedding(ctx, normalize(vec), k, nil, nil)
	if err != nil {
		return nil, apperrors.Tag(apperrors.ErrRetrieval, fmt.Errorf("snapshot query failed: %w", err))
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		metadata := cloneStringMap(r.Metadata)
		source := metadata[sourceMetadataKey]
		delete(metadata, sourceMetadataKey)
		docs = append(docs, Document{Text: r.Content, Source: source, Metadata: metadata, Score: float64(r.Similarity)})
	}
	return docs, nil
}

// embeddingFunc adapts an Embedder for chromem. Stored chunks always carry
// their vectors, so it only runs for documents added without one.
func embeddingFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if e == nil {
			return nil, errors.New("snapshot index has no embedder")
		}
		vec, err := EmbedOne(ctx, e, text)
		if err != nil {
			return nil, err
		}
		return normalize(vec), nil
	}
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
