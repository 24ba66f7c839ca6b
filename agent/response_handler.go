package agent

import (
	"strings"

	"dsa-agent/llmclient"
	"dsa-agent/prompts"
	"dsa-agent/web/format"

	"go.uber.org/zap"
)

// ResponseHandler turns a terminal step into the text returned to the caller.
type ResponseHandler struct {
	logger *zap.Logger
}

func NewResponseHandler(logger *zap.Logger) *ResponseHandler {
	return &ResponseHandler{logger: logger}
}

// Finalize cuts the answer at the terminal stop sequences and attaches the
// latest tool artifact (generated code or diagram) unchanged. Artifacts are
// never re-wrapped.
func (r *ResponseHandler) Finalize(answer string, pad *Scratchpad) string {
	text := llmclient.ApplyStops(answer, prompts.TerminalStops)
	text = format.CloseOpenFence(format.PreprocessAssistantText(text))

	if strings.Contains(text, prompts.OutOfDomainRefusal) {
		return prompts.OutOfDomainRefusal
	}
	if strings.TrimSpace(text) == prompts.KnowledgeBaseRefusal {
		return prompts.KnowledgeBaseRefusal
	}

	if artifact := r.artifact(text, pad); artifact != "" {
		if text == "" {
			return artifact
		}
		return text + "\n\n" + artifact
	}

	if text == "" {
		r.logger.Warn("Final answer was empty after cleanup, using best-effort answer")
		return r.BestEffort(pad)
	}
	return text
}

// artifact picks what to carry into the answer. A tool output that is itself
// a fenced artifact is attached whole, provenance line included; otherwise
// only the fenced blocks of the observation are attached.
func (r *ResponseHandler) artifact(text string, pad *Scratchpad) string {
	if format.HasFencedBlock(text) {
		return ""
	}
	obs, ok := pad.LastArtifactObservation()
	if !ok {
		return ""
	}
	obs = strings.TrimSpace(obs)
	if format.StartsWithFence(obs) {
		return obs
	}
	blocks := format.FencedBlocks(obs)
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.Markdown())
	}
	return strings.Join(parts, "\n\n")
}

// BestEffort answers a turn that ended without a final answer.
func (r *ResponseHandler) BestEffort(pad *Scratchpad) string {
	if obs, ok := pad.LastUsefulObservation(); ok && strings.TrimSpace(obs) != "" {
		return strings.TrimSpace(obs)
	}
	return prompts.BudgetExhausted
}

// AcceptRawAnswer returns raw as a final answer when it carries no control
// keywords, or "" when it cannot be used.
func (r *ResponseHandler) AcceptRawAnswer(raw string) string {
	text := strings.TrimSpace(thoughtRe.ReplaceAllString(raw, ""))
	if text == "" || hasDirective(text) {
		return ""
	}
	return text
}
