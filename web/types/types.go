package types

import "strings"

// Roles accepted in chat history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AgentMessage represents a message in the format expected by the LLM backend.
type AgentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatTurn is one prior exchange supplied by the caller. History is never stored server side.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body accepted by POST /chat.
type ChatRequest struct {
	Input       string     `json:"input"`
	ChatHistory []ChatTurn `json:"chat_history"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Output string `json:"output"`
	HTML   string `json:"html,omitempty"`
}

// NormalizeRole maps loosely formatted roles ("Human", "AI", "bot") onto user/assistant.
// Unknown roles return "".
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return RoleUser
	case "assistant", "ai", "bot":
		return RoleAssistant
	default:
		return ""
	}
}
