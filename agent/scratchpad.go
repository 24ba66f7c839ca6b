package agent

import (
	"fmt"
	"strings"
)

// Scratchpad is the append-only transcript of one turn.
type Scratchpad struct {
	steps []Step
}

func NewScratchpad() *Scratchpad {
	return &Scratchpad{}
}

func (s *Scratchpad) Append(step Step) {
	s.steps = append(s.steps, step)
}

func (s *Scratchpad) Len() int {
	return len(s.steps)
}

// Steps returns a copy of the recorded steps.
func (s *Scratchpad) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Render formats the transcript for the reasoning prompt. It always ends with
// an open "Thought:" for the next completion to continue.
func (s *Scratchpad) Render() string {
	var b strings.Builder
	for _, st := range s.steps {
		if st.ParseError != "" {
			fmt.Fprintf(&b, "Thought: %s\nObservation: %s\n", oneLine(st.Thought), st.Observation)
			continue
		}
		fmt.Fprintf(&b, "Thought: %s\nAction: %s\nAction Input: %s\nObservation: %s\n",
			oneLine(st.Thought), st.Action, st.ActionInput, st.Observation)
	}
	b.WriteString("Thought:")
	return b.String()
}

// LastUsefulObservation returns the most recent observation that is neither a
// failure nor a format correction.
func (s *Scratchpad) LastUsefulObservation() (string, bool) {
	for i := len(s.steps) - 1; i >= 0; i-- {
		st := s.steps[i]
		if st.ParseError != "" || st.Failed || st.Observation == "" {
			continue
		}
		return st.Observation, true
	}
	return "", false
}

// LastArtifactObservation returns the most recent successful observation
// containing a fence, such as generated code or a diagram.
func (s *Scratchpad) LastArtifactObservation() (string, bool) {
	for i := len(s.steps) - 1; i >= 0; i-- {
		st := s.steps[i]
		if st.ParseError != "" || st.Failed {
			continue
		}
		if strings.Contains(st.Observation, "```") {
			return st.Observation, true
		}
	}
	return "", false
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
