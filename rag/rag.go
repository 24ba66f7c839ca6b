package rag

import (
	"context"
	"strings"

	"dsa-agent/config"
	"dsa-agent/llmclient"
	"dsa-agent/prompts"
	"dsa-agent/web/format"

	"go.uber.org/zap"
)

// Generator is the completion capability the synthesizer needs.
type Generator interface {
	Complete(ctx context.Context, prompt string, opts llmclient.ChatOptions) (string, error)
}

// Answer is the result of one grounded query.
type Answer struct {
	Text    string
	Sources []Document
	Refused bool
}

// RAG over-fetches from the corpus index, reranks, and answers strictly from the kept chunks.
type RAG struct {
	cfg       *config.Config
	index     Index
	reranker  Reranker
	generator Generator
	logger    *zap.Logger
}

func New(cfg *config.Config, index Index, reranker Reranker, generator Generator, logger *zap.Logger) *RAG {
	return &RAG{
		cfg:       cfg,
		index:     index,
		reranker:  reranker,
		generator: generator,
		logger:    logger,
	}
}

// Retrieve returns the reranked top-N chunks for query. Nothing is cached between queries.
func (r *RAG) Retrieve(ctx context.Context, query string) ([]Document, error) {
	candidates, err := r.index.SimilaritySearch(ctx, query, r.cfg.RetrievalFetchK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	kept, err := r.reranker.Rerank(ctx, query, candidates, r.cfg.RerankTopN)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Retrieved and reranked candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(kept)))
	return kept, nil
}

// Query answers question from the knowledge base or returns the fixed refusal.
func (r *RAG) Query(ctx context.Context, question string) (Answer, error) {
	docs, err := r.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}
	r.logSources(docs)

	if len(docs) == 0 {
		return Answer{Text: prompts.KnowledgeBaseRefusal, Refused: true}, nil
	}

	text, err := r.generator.Complete(ctx, prompts.StrictQA(buildContext(docs), question), llmclient.ChatOptions{
		Temperature: llmclient.Temperature(0),
	})
	if err != nil {
		return Answer{}, err
	}

	text = strings.TrimSpace(text)
	if isRefusal(text) {
		return Answer{Text: prompts.KnowledgeBaseRefusal, Sources: docs, Refused: true}, nil
	}
	return Answer{Text: text, Sources: docs}, nil
}

// logSources reports the two best chunks for observability only.
func (r *RAG) logSources(docs []Document) {
	if len(docs) == 0 {
		r.logger.Info("No relevant source documents found for this query in the knowledge base")
		return
	}
	previewLen := r.cfg.SourcePreviewLen
	if previewLen <= 0 {
		previewLen = 150
	}
	for i, d := range docs[:min(2, len(docs))] {
		source := d.Source
		if source == "" {
			source = "N/A"
		}
		r.logger.Info("RAG source document",
			zap.Int("rank", i+1),
			zap.String("source", source),
			zap.Float64("score", d.Score),
			zap.String("preview", format.Truncate(d.Text, previewLen)))
	}
}

func buildContext(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if t := strings.TrimSpace(d.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// isRefusal treats an empty answer, or one that contains the refusal sentence, as a refusal.
// Wrapping quotes or a trailing explanation never leak to the caller.
func isRefusal(text string) bool {
	if text == "" {
		return true
	}
	normalized := strings.ToLower(strings.Trim(text, "\"' \n"))
	return strings.Contains(normalized, strings.ToLower(strings.TrimSuffix(prompts.KnowledgeBaseRefusal, ".")))
}
