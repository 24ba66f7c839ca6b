package agent

import (
	"regexp"
	"strings"
)

// Step is one reasoning cycle. A terminal step has FinalAnswer set and no
// Observation; a step that could not be parsed carries ParseError. Failed is
// set when the observation reports a failed tool call or backend request
// rather than tool output.
type Step struct {
	Thought     string
	Action      string
	ActionInput string
	Observation string
	Failed      bool
	Final       bool
	FinalAnswer string
	ParseError  string
	Raw         string
}

var (
	finalAnswerRe = regexp.MustCompile(`(?ims)^[ \t*]*Final\s*Answer\s*:[ \t]*(.*)`)
	actionRe      = regexp.MustCompile(`(?im)^[ \t*]*Action\s*\d*\s*:[ \t]*(.*)$`)
	actionInputRe = regexp.MustCompile(`(?is)Action\s*\d*\s*Input\s*\d*\s*:[ \t]*(.*)`)
	thoughtRe     = regexp.MustCompile(`(?i)^\s*Thought\s*:\s*`)
	directiveRe   = regexp.MustCompile(`(?im)^[ \t*]*(Action\s*\d*\s*Input|Action|Final\s*Answer|Observation)\s*\d*\s*:`)
)

const (
	errMissingAction      = "Invalid Format: Missing 'Action:' after 'Thought:'"
	errMissingActionInput = "Invalid Format: Missing 'Action Input:' after 'Action:'"
	errEmptyAction        = "Invalid Format: 'Action:' must name a tool"
)

// ParseStep reads one reasoning completion. Whichever directive appears first
// wins when the model writes both an action and a final answer.
func ParseStep(text string) Step {
	step := Step{Raw: text}

	actionLoc := actionRe.FindStringSubmatchIndex(text)
	finalLoc := finalAnswerRe.FindStringSubmatchIndex(text)

	switch {
	case finalLoc != nil && (actionLoc == nil || finalLoc[0] < actionLoc[0]):
		step.Thought = thoughtBefore(text, finalLoc[0])
		step.Final = true
		step.FinalAnswer = strings.TrimSpace(text[finalLoc[2]:finalLoc[3]])
		return step

	case actionLoc != nil:
		step.Thought = thoughtBefore(text, actionLoc[0])
		step.Action = cleanActionName(text[actionLoc[2]:actionLoc[3]])
		if step.Action == "" || strings.EqualFold(step.Action, "none") || strings.EqualFold(step.Action, "n/a") {
			step.Action = ""
			step.ParseError = errEmptyAction
			return step
		}
		rest := text[actionLoc[1]:]
		m := actionInputRe.FindStringSubmatch(rest)
		if m == nil {
			step.ParseError = errMissingActionInput
			return step
		}
		step.ActionInput = cleanActionInput(m[1])
		return step
	}

	step.Thought = strings.TrimSpace(thoughtRe.ReplaceAllString(text, ""))
	step.ParseError = errMissingAction
	return step
}

func thoughtBefore(text string, end int) string {
	return strings.TrimSpace(thoughtRe.ReplaceAllString(text[:end], ""))
}

func cleanActionName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*`\"' ")
	return strings.TrimSpace(s)
}

// cleanActionInput drops a hallucinated observation and one layer of quotes.
func cleanActionInput(s string) string {
	if idx := strings.Index(s, "\nObservation"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if len(s) >= 2 && !strings.Contains(s, "\n") {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// hasDirective reports whether text still contains a control keyword.
func hasDirective(text string) bool {
	return directiveRe.MatchString(text)
}
