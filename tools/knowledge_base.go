package tools

import (
	"context"
	"errors"
	"strings"

	"dsa-agent/rag"

	lctools "github.com/tmc/langchaingo/tools"
	"go.uber.org/zap"
)

const KnowledgeBaseName = "Knowledge Base"

// Querier answers a question strictly from the corpus.
type Querier interface {
	Query(ctx context.Context, question string) (rag.Answer, error)
}

type KnowledgeBaseTool struct {
	rag    Querier
	logger *zap.Logger
}

func NewKnowledgeBaseTool(q Querier, logger *zap.Logger) *KnowledgeBaseTool {
	return &KnowledgeBaseTool{rag: q, logger: logger}
}

func (t *KnowledgeBaseTool) Name() string { return KnowledgeBaseName }

func (t *KnowledgeBaseTool) Description() string {
	return `**ONLY** useful for answering questions *strictly* about Data Structures and Algorithms (DSA) concepts, specific programming topics, algorithms, data structures, and **retrieving EXISTING code snippets from the loaded DSA documents**.
**This tool MUST be prioritized for any request involving existing code examples or theoretical DSA information.**
**If the user's question is NOT explicitly and directly about DSA or programming, then DO NOT use this tool.**`
}

func (t *KnowledgeBaseTool) Call(ctx context.Context, input string) (string, error) {
	question := strings.TrimSpace(input)
	if question == "" {
		return "", &Failure{Op: "Error retrieving from knowledge base", Err: errors.New("empty query")}
	}
	answer, err := t.rag.Query(ctx, question)
	if err != nil {
		t.logger.Error("Knowledge base query failed", zap.Error(err))
		return "", &Failure{Op: "Error retrieving from knowledge base", Err: err}
	}
	if answer.Refused {
		t.logger.Info("Knowledge base refused question", zap.Int("sources", len(answer.Sources)))
	}
	return answer.Text, nil
}

var _ lctools.Tool = (*KnowledgeBaseTool)(nil)
