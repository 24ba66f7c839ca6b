package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// EmbeddingCache is a shared second-level cache (redis) behind the in-process LRU.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// CachedEmbedder memoizes embeddings of identical texts. Only the
// text->vector mapping is cached; retrieval results never are.
type CachedEmbedder struct {
	next   Embedder
	model  string
	local  *lru.Cache
	shared EmbeddingCache
	logger *zap.Logger
}

func NewCachedEmbedder(next Embedder, model string, size int, shared EmbeddingCache, logger *zap.Logger) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 256
	}
	local, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, model: model, local: local, shared: shared, logger: logger}, nil
}

// cacheKey scopes the key by model so a model change never serves stale vectors.
func cacheKey(model, text string) string {
	return model + ":" + strconv.FormatUint(xxhash.Sum64String(text), 16)
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := cacheKey(e.model, text)
		if v, ok := e.local.Get(key); ok {
			out[i] = v.([]float32)
			continue
		}
		if e.shared != nil {
			if vec, ok := e.shared.Get(ctx, key); ok {
				e.local.Add(key, vec)
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		key := cacheKey(e.model, missTexts[j])
		e.local.Add(key, vecs[j])
		if e.shared != nil {
			e.shared.Set(ctx, key, vecs[j])
		}
		out[i] = vecs[j]
	}
	e.logger.Debug("Embedded texts",
		zap.Int("requested", len(texts)),
		zap.Int("cache_misses", len(missTexts)))
	return out, nil
}

// EmbedOne is a convenience for single query embeddings.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return vecs[0], nil
}
