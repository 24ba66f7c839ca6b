package agent

import (
	"testing"

	"dsa-agent/prompts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func padWith(observations ...string) *Scratchpad {
	pad := NewScratchpad()
	for _, obs := range observations {
		pad.Append(Step{Action: "tool", ActionInput: "in", Observation: obs})
	}
	return pad
}

func appendFailed(pad *Scratchpad, obs string) *Scratchpad {
	pad.Append(Step{Action: "tool", ActionInput: "in", Observation: obs, Failed: true})
	return pad
}

func TestFinalize(t *testing.T) {
	h := NewResponseHandler(zap.NewNop())

	tests := []struct {
		name   string
		answer string
		pad    *Scratchpad
		want   string
	}{
		{
			name:   "trailing reasoning removed",
			answer: "Merge sort is O(n log n).\nThought: I should add more\nAction: Knowledge Base",
			pad:    padWith(),
			want:   "Merge sort is O(n log n).",
		},
		{
			name:   "filler removed",
			answer: "BFS uses a queue.\n\nI hope this helps!",
			pad:    padWith(),
			want:   "BFS uses a queue.",
		},
		{
			name:   "knowledge base refusal exact",
			answer: prompts.KnowledgeBaseRefusal + "\n" + prompts.KnowledgeBaseRefusal,
			pad:    padWith(),
			want:   prompts.KnowledgeBaseRefusal,
		},
		{
			name:   "fenced blocks inside prose observation are attached alone",
			answer: "Here is the example.",
			pad:    padWith("Insertion looks like:\n```java\nlist.add(x);\n```\nThat is all."),
			want:   "Here is the example.\n\n```java\nlist.add(x);\n```",
		},
		{
			name:   "empty answer falls back to artifact",
			answer: "```python\nprint(1)\n```",
			pad:    padWith("```python\nprint(1)\n```\n\n" + prompts.GeneratedCodeSource),
			want:   "```python\nprint(1)\n```\n\n" + prompts.GeneratedCodeSource,
		},
		{
			name:   "failed observations are not carried",
			answer: "Sorry, try again.",
			pad:    appendFailed(NewScratchpad(), "Error generating code: ```boom```"),
			want:   "Sorry, try again.",
		},
		{
			name:   "empty answer without artifact uses best effort",
			answer: "",
			pad:    padWith("Heaps are complete binary trees."),
			want:   "Heaps are complete binary trees.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Finalize(tt.answer, tt.pad))
		})
	}
}

func TestBestEffort(t *testing.T) {
	h := NewResponseHandler(zap.NewNop())

	assert.Equal(t, prompts.BudgetExhausted, h.BestEffort(NewScratchpad()))
	assert.Equal(t, prompts.BudgetExhausted, h.BestEffort(appendFailed(NewScratchpad(), "Error: executor down")))

	pad := appendFailed(padWith("first"), "Error retrieving from knowledge base: timeout")
	pad.Append(Step{ParseError: errMissingAction, Observation: "Invalid format."})
	assert.Equal(t, "first", h.BestEffort(pad))

	// tool output that happens to start with "Error" is still output
	assert.Equal(t, "Error count: 0", h.BestEffort(padWith("Error count: 0")))
}

func TestAcceptRawAnswer(t *testing.T) {
	h := NewResponseHandler(zap.NewNop())
	assert.Equal(t, "A tree is acyclic.", h.AcceptRawAnswer("Thought: A tree is acyclic."))
	assert.Empty(t, h.AcceptRawAnswer("Thought: use a tool\nAction: Knowledge Base"))
	assert.Empty(t, h.AcceptRawAnswer("   "))
}

func TestScratchpadRender(t *testing.T) {
	pad := NewScratchpad()
	assert.Equal(t, "Thought:", pad.Render())

	pad.Append(Step{Thought: "look\nit up", Action: "Knowledge Base", ActionInput: "stack", Observation: "LIFO"})
	pad.Append(Step{Thought: "rambling", ParseError: errMissingAction, Observation: "Invalid format."})
	want := "Thought: look it up\nAction: Knowledge Base\nAction Input: stack\nObservation: LIFO\n" +
		"Thought: rambling\nObservation: Invalid format.\n" +
		"Thought:"
	assert.Equal(t, want, pad.Render())
	assert.Equal(t, 2, pad.Len())
}

func TestActionCache(t *testing.T) {
	c := NewActionCache()
	_, ok := c.Get("Knowledge Base", "stack")
	assert.False(t, ok)

	c.Add("Knowledge Base", "stack", "LIFO")
	obs, ok := c.Get("Knowledge Base", "  Stack ")
	assert.True(t, ok)
	assert.Equal(t, "LIFO", obs)
	assert.Equal(t, 1, c.Repeats("Knowledge Base", "stack"))

	_, ok = c.Get("Python REPL", "1/0")
	assert.False(t, ok)
}

func TestScratchpadArtifactSkipsFailedSteps(t *testing.T) {
	pad := padWith("```python\nprint(1)\n```")
	appendFailed(pad, "Error generating code: ```boom```")

	obs, ok := pad.LastArtifactObservation()
	require.True(t, ok)
	assert.Equal(t, "```python\nprint(1)\n```", obs)
}

func TestConversationLoop(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSteps = 2
	cfg.ConsecutiveErrors = 2
	loop := NewConversationLoop(cfg, zap.NewNop())

	ok, _ := loop.ShouldContinue(0)
	assert.True(t, ok)
	ok, reason := loop.ShouldContinue(2)
	assert.False(t, ok)
	assert.Equal(t, "Maximum steps reached.", reason)

	assert.False(t, loop.RecordParseFailure())
	assert.True(t, loop.RecordParseFailure())
	ok, reason = loop.ShouldContinue(1)
	assert.False(t, ok)
	assert.Equal(t, "Consecutive errors.", reason)

	loop.RecordSuccess()
	assert.Zero(t, loop.ConsecutiveErrors())
}
