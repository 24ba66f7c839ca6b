package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStep(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Step
	}{
		{
			name: "action with thought prefix",
			text: "Thought: I should look this up.\nAction: Knowledge Base\nAction Input: What is a stack?",
			want: Step{Thought: "I should look this up.", Action: "Knowledge Base", ActionInput: "What is a stack?"},
		},
		{
			name: "continuation without thought label",
			text: " The user wants code.\nAction: Code Generator\nAction Input: \"Python function to reverse a linked list\"\n",
			want: Step{Thought: "The user wants code.", Action: "Code Generator", ActionInput: "Python function to reverse a linked list"},
		},
		{
			name: "multi-line action input",
			text: "Thought: run it\nAction: Python REPL\nAction Input: xs = [1, 2]\nprint(xs[::-1])",
			want: Step{Thought: "run it", Action: "Python REPL", ActionInput: "xs = [1, 2]\nprint(xs[::-1])"},
		},
		{
			name: "hallucinated observation dropped",
			text: "Action: Knowledge Base\nAction Input: heap\nObservation: a heap is",
			want: Step{Action: "Knowledge Base", ActionInput: "heap"},
		},
		{
			name: "final answer",
			text: "Thought: I know this.\nFinal Answer: A queue is FIFO.",
			want: Step{Thought: "I know this.", Final: true, FinalAnswer: "A queue is FIFO."},
		},
		{
			name: "final answer before stray action",
			text: "Final Answer: done\nAction: Knowledge Base",
			want: Step{Final: true, FinalAnswer: "done\nAction: Knowledge Base"},
		},
		{
			name: "final answer phrase inside thought",
			text: "Thought: I need the knowledge base before I give a final answer: searching now\nAction: Knowledge Base\nAction Input: stack",
			want: Step{
				Thought:     "I need the knowledge base before I give a final answer: searching now",
				Action:      "Knowledge Base",
				ActionInput: "stack",
			},
		},
		{
			name: "bold markers around action",
			text: "**Action:** **Knowledge Base**\nAction Input: trie",
			want: Step{Action: "Knowledge Base", ActionInput: "trie"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStep(tt.text)
			tt.want.Raw = tt.text
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStepFailures(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{"no directives", "I think a stack is LIFO.", errMissingAction},
		{"action without input", "Thought: hmm\nAction: Knowledge Base", errMissingActionInput},
		{"action none", "Thought: nothing to do\nAction: None\nAction Input: -", errEmptyAction},
		{"empty", "", errMissingAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStep(tt.text)
			assert.Equal(t, tt.wantErr, got.ParseError)
			assert.False(t, got.Final)
		})
	}
}

func TestHasDirective(t *testing.T) {
	assert.True(t, hasDirective("foo\nAction: x"))
	assert.True(t, hasDirective("Final Answer: x"))
	assert.True(t, hasDirective("Action Input: x"))
	assert.False(t, hasDirective("A stack supports push and pop."))
	assert.False(t, hasDirective("The action taken: push"))
}
