package tools

import (
	"context"
	"errors"
	"strings"

	"dsa-agent/web/format"

	lctools "github.com/tmc/langchaingo/tools"
	"go.uber.org/zap"
)

const PythonREPLName = "Python REPL"

const defaultMaxOutput = 8 * 1024

// PythonREPLTool executes snippets through an Executor. Tracebacks from the
// snippet are ordinary output; only executor failures are returned as errors.
type PythonREPLTool struct {
	exec      Executor
	maxOutput int
	logger    *zap.Logger
}

func NewPythonREPLTool(exec Executor, maxOutput int, logger *zap.Logger) *PythonREPLTool {
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	return &PythonREPLTool{exec: exec, maxOutput: maxOutput, logger: logger}
}

func (t *PythonREPLTool) Name() string { return PythonREPLName }

func (t *PythonREPLTool) Description() string {
	return `Executes Python code. Input: single string of Python code. **Use print() for output.**
Output: code execution result.
Use for testing, debugging, and demonstrating output.
Do NOT generate code or perform unrelated math.`
}

func (t *PythonREPLTool) Call(ctx context.Context, input string) (string, error) {
	code := extractCode(input)
	if code == "" {
		return "", &Failure{Op: "Error", Err: errors.New("no code provided, pass the Python source as the Action Input")}
	}

	t.logger.Info("Executing Python code", zap.Int("code_lines", strings.Count(code, "\n")+1))
	out, err := t.exec.Execute(ctx, code)
	if err != nil {
		t.logger.Error("Error executing Python code", zap.Error(err))
		return "", &Failure{Op: "Error", Err: err}
	}
	if t.logger.Core().Enabled(zap.DebugLevel) {
		t.logger.Debug("Python code executed successfully", zap.String("result_preview", sanitizeLogOutput(out, 100)))
	}
	return truncateOutput(out, t.maxOutput), nil
}

var _ lctools.Tool = (*PythonREPLTool)(nil)

// extractCode accepts bare code or code wrapped in a markdown fence.
func extractCode(input string) string {
	trimmed := strings.TrimSpace(input)
	if blocks := format.FencedBlocks(trimmed); len(blocks) > 0 {
		return strings.TrimSpace(blocks[0].Code)
	}
	// the agent stop list can cut the closing fence
	return strings.TrimSpace(format.StripFence(trimmed))
}

// combineOutput joins stdout and stderr the way an interactive interpreter shows them.
func combineOutput(stdout, stderr string, limit int) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	if limit <= 0 {
		limit = defaultMaxOutput
	}
	switch {
	case stderr == "":
		return truncateOutput(stdout, limit)
	case stdout == "":
		return truncateOutput(stderr, limit)
	default:
		return truncateOutput(stdout, limit) + "\nSTDERR: " + truncateOutput(stderr, limit/2)
	}
}

func truncateOutput(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "\n...[output truncated]"
}

// sanitizeLogOutput truncates output and hides anything that looks like a credential.
func sanitizeLogOutput(s string, maxLen int) string {
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	lower := strings.ToLower(s)
	for _, pattern := range []string{"password", "passwd", "token", "api_key", "apikey", "secret", "credentials"} {
		if strings.Contains(lower, pattern) {
			return "[Output contains potentially sensitive data - not logged]"
		}
	}
	return s
}
