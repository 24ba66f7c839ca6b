package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dsa-agent/web/types"
)

// ChatClient posts turns to a running backend.
type ChatClient struct {
	baseURL string
	http    *http.Client
}

func NewChatClient(baseURL string, timeout time.Duration) *ChatClient {
	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Send posts one question with the history so far. Non-200 replies surface
// the server's "output" message as the error text.
func (c *ChatClient) Send(ctx context.Context, input string, history []types.ChatTurn) (string, error) {
	body, err := json.Marshal(types.ChatRequest{Input: input, ChatHistory: history})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	var out types.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("bad response from backend (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Output == "" {
			out.Output = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%s", out.Output)
	}
	return out.Output, nil
}
