package tools

import (
	"context"
	"errors"
	"testing"

	"dsa-agent/prompts"
	"dsa-agent/web/format"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const stackArt = "+---+\n| 3 |\n+---+\n| 2 |\n+---+"

func TestNormalizeDiagram(t *testing.T) {
	want := "```\n" + stackArt + "\n```"

	inputs := map[string]string{
		"bare":             stackArt,
		"bare with spaces": "\n\n" + stackArt + "\n  \n",
		"closing only":     stackArt + "\n```",
		"fenced":           "```\n" + stackArt + "\n```",
		"tagged":           "```text\n" + stackArt + "\n```",
	}
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			got := NormalizeDiagram(raw)
			assert.Equal(t, want, got)
			assert.Equal(t, got, NormalizeDiagram(got))

			blocks := format.FencedBlocks(got)
			require.Len(t, blocks, 1)
			assert.Empty(t, blocks[0].Language)
		})
	}
}

func TestNormalizeDiagramKeepsIndentation(t *testing.T) {
	art := "    A\n   / \\\n  B   C"
	got := NormalizeDiagram("```\n" + art + "\n```")
	assert.Equal(t, "```\n"+art+"\n```", got)
	assert.Equal(t, got, NormalizeDiagram(got))
}

func TestDiagramTool(t *testing.T) {
	gen := &fakeGenerator{response: stackArt + "\n"}
	tool := NewDiagramTool(gen, zap.NewNop())

	out, err := tool.Call(context.Background(), "stack with 3 on top of 2")
	require.NoError(t, err)
	assert.Equal(t, "```\n"+stackArt+"\n```", out)

	require.Len(t, gen.opts, 1)
	require.NotNil(t, gen.opts[0].Temperature)
	assert.Zero(t, *gen.opts[0].Temperature)
	assert.Equal(t, prompts.DiagramStops, gen.opts[0].Stop)
	assert.Contains(t, gen.prompts[0], "stack with 3 on top of 2")
}

func TestDiagramToolBareIndentedArt(t *testing.T) {
	art := "    A\n   / \\\n  B   C"
	tool := NewDiagramTool(&fakeGenerator{response: "\n" + art + "\n"}, zap.NewNop())

	out, err := tool.Call(context.Background(), "binary tree with root A")
	require.NoError(t, err)
	assert.Equal(t, "```\n"+art+"\n```", out)

	fenced, err := NewDiagramTool(&fakeGenerator{response: "```\n" + art + "\n```"}, zap.NewNop()).
		Call(context.Background(), "binary tree with root A")
	require.NoError(t, err)
	assert.Equal(t, out, fenced)
}

func TestDiagramToolError(t *testing.T) {
	tool := NewDiagramTool(&fakeGenerator{err: errors.New("timeout")}, zap.NewNop())
	_, err := tool.Call(context.Background(), "queue")
	assert.EqualError(t, err, "Error generating ASCII diagram: timeout")
}
