package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dsa-agent/llmclient"

	lctools "github.com/tmc/langchaingo/tools"
)

// Tool is the langchaingo tool contract: text in, text out. A returned error
// is shown to the model as the observation, never surfaced to the caller.
type Tool = lctools.Tool

// Failure is the error a tool returns when it could not produce output. Its
// message is the observation text.
type Failure struct {
	Op  string
	Err error
}

func (f *Failure) Error() string { return f.Op + ": " + f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// Generator is the completion capability the generative tools need.
type Generator interface {
	Complete(ctx context.Context, prompt string, opts llmclient.ChatOptions) (string, error)
}

// Registry maps tool names to implementations. It is filled once at startup
// and only read afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q registered twice", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup resolves a name written by the model. Exact names win; otherwise
// case, underscores and stray punctuation are ignored, then a unique
// word-subset or small-typo match is accepted.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if t, ok := r.tools[name]; ok {
		return t, true
	}
	want := normalizeToolName(name)
	if want == "" {
		return nil, false
	}
	for _, n := range r.order {
		if normalizeToolName(n) == want {
			return r.tools[n], true
		}
	}
	if match := r.fuzzyMatch(want); match != "" {
		return r.tools[match], true
	}
	return nil, false
}

// FormatForPrompt renders "Name: description" lines for the reasoning prompt.
func (r *Registry) FormatForPrompt() string {
	var b strings.Builder
	for i, n := range r.order {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(n)
		b.WriteString(": ")
		b.WriteString(strings.Join(strings.Fields(r.tools[n].Description()), " "))
	}
	return b.String()
}

func normalizeToolName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Trim(name, "\"'`*[]().:")
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// fuzzyMatch accepts a unique tool whose words contain every input word,
// or a unique tool within edit distance 2.
func (r *Registry) fuzzyMatch(want string) string {
	wantWords := strings.Fields(want)

	var subset []string
	for _, n := range r.order {
		nameWords := strings.Fields(normalizeToolName(n))
		if containsAll(nameWords, wantWords) {
			subset = append(subset, n)
		}
	}
	if len(subset) == 1 {
		return subset[0]
	}

	type candidate struct {
		name string
		dist int
	}
	var close []candidate
	for _, n := range r.order {
		if d := levenshtein(want, normalizeToolName(n)); d <= 2 {
			close = append(close, candidate{n, d})
		}
	}
	sort.SliceStable(close, func(i, j int) bool { return close[i].dist < close[j].dist })
	if len(close) == 1 || (len(close) > 1 && close[0].dist < close[1].dist) {
		return close[0].name
	}
	return ""
}

func containsAll(haystack, needles []string) bool {
	if len(needles) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(haystack))
	for _, h := range haystack {
		set[h] = struct{}{}
	}
	for _, n := range needles {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
