package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dsa-agent/prompts"
	"dsa-agent/web/format"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeGeneratedCode(t *testing.T) {
	suffix := "\n\n" + prompts.GeneratedCodeSource

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "continuation with language tag",
			raw:  "python\ndef add(a, b):\n    return a + b\n",
			want: "```python\ndef add(a, b):\n    return a + b\n```" + suffix,
		},
		{
			name: "continuation without tag",
			raw:  "\ndef add(a, b):\n    return a + b",
			want: "```\ndef add(a, b):\n    return a + b\n```" + suffix,
		},
		{
			name: "already fenced and closed",
			raw:  "```java\nclass A {}\n```",
			want: "```java\nclass A {}\n```" + suffix,
		},
		{
			name: "trailing explanation dropped",
			raw:  "```go\nfunc f() {}\n```\nThis function does nothing.",
			want: "```go\nfunc f() {}\n```" + suffix,
		},
		{
			name: "refusal is still fenced",
			raw:  prompts.NoCodeRefusal,
			want: "```\n" + prompts.NoCodeRefusal + "\n```" + suffix,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeGeneratedCode(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Len(t, format.FencedBlocks(got), 1)
			assert.True(t, strings.HasSuffix(got, prompts.GeneratedCodeSource))
		})
	}
}

func TestCodeGeneratorTool(t *testing.T) {
	gen := &fakeGenerator{response: "python\ndef reverse(s):\n    return s[::-1]\n"}
	tool := NewCodeGeneratorTool(gen, zap.NewNop())

	out, err := tool.Call(context.Background(), "Python function to reverse a string")
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Python function to reverse a string")
	assert.True(t, strings.HasSuffix(gen.prompts[0], "Code:\n```"))
	assert.Equal(t, prompts.CodeGeneratorStops, gen.opts[0].Stop)

	blocks := format.FencedBlocks(out)
	require.Len(t, blocks, 1)
	assert.Equal(t, "python", blocks[0].Language)
	assert.Contains(t, blocks[0].Code, "return s[::-1]")
	assert.Equal(t, 2, format.CountFenceLines(out))
}

func TestCodeGeneratorToolError(t *testing.T) {
	tool := NewCodeGeneratorTool(&fakeGenerator{err: errors.New("rate limited")}, zap.NewNop())
	out, err := tool.Call(context.Background(), "anything")
	assert.Empty(t, out)
	require.Error(t, err)
	assert.EqualError(t, err, "Error generating code: rate limited")

	var failure *Failure
	assert.ErrorAs(t, err, &failure)
}
