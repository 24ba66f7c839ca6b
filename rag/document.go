package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Document is a retrieved chunk of the DSA corpus. Documents are passed by value
// through rerank and synthesis and never mutated in place.
type Document struct {
	Text     string
	Source   string
	Metadata map[string]string
	Score    float64
}

// Index is the corpus similarity index built by the offline ingestion job.
type Index interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HashContent is the chunk hash used for de-duplication during ingestion.
func HashContent(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func cloneStringMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return make(map[string]string)
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
