package agent

import (
	"strings"

	"dsa-agent/web/types"
)

// formatChatHistory renders prior turns for the reasoning prompt. Turns with
// unknown roles or no content are skipped.
func formatChatHistory(history []types.ChatTurn) string {
	var b strings.Builder
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		switch types.NormalizeRole(turn.Role) {
		case types.RoleUser:
			b.WriteString("Human: ")
		case types.RoleAssistant:
			b.WriteString("AI: ")
		default:
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return ""
	}
	return "Previous conversation:\n" + strings.TrimRight(b.String(), "\n")
}
