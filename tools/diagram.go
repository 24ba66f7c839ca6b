package tools

import (
	"context"
	"strings"

	"dsa-agent/llmclient"
	"dsa-agent/prompts"
	"dsa-agent/web/format"

	lctools "github.com/tmc/langchaingo/tools"
	"go.uber.org/zap"
)

const DiagramName = "ASCII Visualizer"

type DiagramTool struct {
	llm    Generator
	logger *zap.Logger
}

func NewDiagramTool(llm Generator, logger *zap.Logger) *DiagramTool {
	return &DiagramTool{llm: llm, logger: logger}
}

func (t *DiagramTool) Name() string { return DiagramName }

func (t *DiagramTool) Description() string {
	return `Useful for generating simple, text-based (ASCII art) diagrams of Data Structures and Algorithms.
Use this when a quick, clear, character-based visual representation is beneficial for concepts like arrays, linked lists, simple trees, queues, stacks, or graph traversals.
**When comparing two concepts, generate a clean, line-based ASCII table comparison (like with a '|' separator) to clearly highlight their differences.**
The input should be a precise and clear description of the diagram needed.
Example Input: "ASCII diagram of a singly linked list with nodes A, B, C.", "ASCII table comparing Stack and Queue."`
}

func (t *DiagramTool) Call(ctx context.Context, input string) (string, error) {
	raw, err := t.llm.Complete(ctx, prompts.ASCIIDiagram(strings.TrimSpace(input)), llmclient.ChatOptions{
		Stop:        prompts.DiagramStops,
		Temperature: llmclient.Temperature(0),
	})
	if err != nil {
		t.logger.Error("Diagram generation failed", zap.Error(err))
		return "", &Failure{Op: "Error generating ASCII diagram", Err: err}
	}
	return NormalizeDiagram(raw), nil
}

var _ lctools.Tool = (*DiagramTool)(nil)

// NormalizeDiagram returns the art in exactly one untagged fence.
// NormalizeDiagram(NormalizeDiagram(s)) == NormalizeDiagram(s).
func NormalizeDiagram(raw string) string {
	return format.WrapFence(format.StripFence(raw))
}
