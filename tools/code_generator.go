package tools

import (
	"context"
	"regexp"
	"strings"

	"dsa-agent/llmclient"
	"dsa-agent/prompts"
	"dsa-agent/web/format"

	lctools "github.com/tmc/langchaingo/tools"
	"go.uber.org/zap"
)

const CodeGeneratorName = "Code Generator"

var langTagRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_+#.-]*$`)

type CodeGeneratorTool struct {
	llm    Generator
	logger *zap.Logger
}

func NewCodeGeneratorTool(llm Generator, logger *zap.Logger) *CodeGeneratorTool {
	return &CodeGeneratorTool{llm: llm, logger: logger}
}

func (t *CodeGeneratorTool) Name() string { return CodeGeneratorName }

func (t *CodeGeneratorTool) Description() string {
	return `Generates **NEW** programming code snippets based on a user's **explicit request for creation**.
**This tool should ONLY be used as a LAST RESORT if the 'Knowledge Base' tool fails to provide a suitable existing code example or if the user explicitly asks for new code generation (e.g., "write a function for...", "create a class...").**
Specify the language if you need code in a language other than Python.`
}

func (t *CodeGeneratorTool) Call(ctx context.Context, input string) (string, error) {
	request := strings.TrimSpace(input)
	raw, err := t.llm.Complete(ctx, prompts.CodeGenerator(request), llmclient.ChatOptions{
		Stop: prompts.CodeGeneratorStops,
	})
	if err != nil {
		t.logger.Error("Code generation failed", zap.Error(err))
		return "", &Failure{Op: "Error generating code", Err: err}
	}
	return NormalizeGeneratedCode(raw), nil
}

var _ lctools.Tool = (*CodeGeneratorTool)(nil)

// NormalizeGeneratedCode turns a completion that continued inside an open fence
// into exactly one closed fenced block followed by the provenance marker.
func NormalizeGeneratedCode(raw string) string {
	body := strings.TrimRight(raw, " \t\r\n")
	body = strings.TrimLeft(body, "\r\n")

	if !strings.HasPrefix(strings.TrimSpace(body), format.Fence) {
		// the prompt opened the fence; the completion starts inside it
		firstLine, _, _ := strings.Cut(body, "\n")
		if langTagRe.MatchString(strings.TrimSpace(firstLine)) && strings.Contains(body, "\n") {
			body = format.Fence + body
		} else {
			body = format.Fence + "\n" + body
		}
	} else {
		body = strings.TrimSpace(body)
	}

	// keep only the first block
	open, rest, _ := strings.Cut(body, "\n")
	if idx := strings.Index(rest, format.Fence); idx >= 0 {
		rest = strings.TrimRight(rest[:idx], " \t\r\n")
	}
	rest = strings.TrimRight(rest, " \t\r\n")
	code := open + "\n" + rest + "\n" + format.Fence
	if rest == "" {
		code = open + "\n" + format.Fence
	}
	return code + "\n\n" + prompts.GeneratedCodeSource
}
