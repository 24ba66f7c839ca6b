package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"dsa-agent/config"
	apperrors "dsa-agent/errors"
	"dsa-agent/web/types"

	"go.uber.org/zap"
)

// ErrContextWindowExceeded is returned when the model reports the prompt
// exceeds the available context size.
var ErrContextWindowExceeded = errors.New("context window exceeded")

// ChatOptions are per-call overrides. Zero values fall back to the configured defaults.
type ChatOptions struct {
	Stop        []string
	Temperature *float64
	MaxTokens   int
}

// Temperature is a helper for building ChatOptions literals.
func Temperature(t float64) *float64 { return &t }

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []types.AgentMessage `json:"messages"`
	Stream      bool                 `json:"stream"`
	Stop        []string             `json:"stop,omitempty"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      types.AgentMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client talks to an OpenAI-compatible inference API (Together by default).
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LLMRequestTimeout},
		logger:     logger,
	}
}

// Complete sends prompt as a single user message. This mirrors how the
// completion-style prompts of the agent and tools are written.
func (c *Client) Complete(ctx context.Context, prompt string, opts ChatOptions) (string, error) {
	return c.Chat(ctx, []types.AgentMessage{{Role: types.RoleUser, Content: prompt}}, opts)
}

// Chat performs a non-streaming chat completion call. Stop sequences are sent to
// the backend and enforced again locally, since some providers cap or ignore them.
func (c *Client) Chat(ctx context.Context, messages []types.AgentMessage, opts ChatOptions) (string, error) {
	temperature := opts.Temperature
	if temperature == nil {
		temperature = Temperature(c.cfg.LLMTemperature)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.LLMMaxTokens
	}
	reqBody := chatRequest{
		Model:       c.cfg.LLMModel,
		Messages:    messages,
		Stop:        opts.Stop,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.LLMHost, "/"))
	bodyBytes, err := c.post(ctx, url, c.cfg.LLMAPIKey, jsonBody)
	if err != nil {
		if strings.Contains(err.Error(), "exceeds the available context size") || strings.Contains(err.Error(), "context_length_exceeded") {
			return "", ErrContextWindowExceeded
		}
		return "", apperrors.Tag(apperrors.ErrLLMCommunication, err)
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return "", apperrors.Tag(apperrors.ErrLLMCommunication, fmt.Errorf("decode chat response: %w", err))
	}
	if len(cr.Choices) == 0 {
		return "", apperrors.Tag(apperrors.ErrLLMCommunication, errors.New("no response choices from llm server"))
	}

	content := ApplyStops(cr.Choices[0].Message.Content, opts.Stop)
	c.logger.Debug("LLM chat completed",
		zap.String("finish_reason", cr.Choices[0].FinishReason),
		zap.Int("content_len", len(content)))
	return content, nil
}

// Embed returns one embedding per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	jsonBody, err := json.Marshal(embeddingRequest{Model: c.cfg.EmbeddingModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", strings.TrimRight(c.cfg.EmbeddingHost, "/"))
	bodyBytes, err := c.post(ctx, url, c.cfg.EmbeddingAPIKey, jsonBody)
	if err != nil {
		return nil, apperrors.Tag(apperrors.ErrLLMCommunication, err)
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response had %d vectors for %d inputs", len(er.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range er.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// post sends a JSON body and returns the response body of a 200 reply, retrying
// transient failures (429, 5xx, transport errors) with backoff.
func (c *Client) post(ctx context.Context, url, apiKey string, body []byte) ([]byte, error) {
	attempts := c.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.backoffSleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			// Do not retry on context cancellation/deadline
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("LLM request failed, retrying", zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return respBody, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("llm server status %s: %s", resp.Status, truncate(string(respBody), 300))
			c.logger.Warn("LLM service unavailable, retrying", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
			continue
		default:
			return nil, fmt.Errorf("llm server status %s: %s", resp.Status, truncate(string(respBody), 300))
		}
	}
	return nil, fmt.Errorf("no successful response after %d attempts: %w", attempts, lastErr)
}

func (c *Client) backoffSleep(ctx context.Context, attempt int) error {
	// Exponential backoff with configurable jitter and cap
	base := c.cfg.RetryDelaySeconds
	if base <= 0 {
		base = time.Second
	}
	d := base * time.Duration(1<<attempt)
	if maxWait := c.cfg.LLMBackoffMaxSeconds; maxWait > 0 && d > maxWait {
		d = maxWait
	}
	jitterRatio := c.cfg.LLMBackoffJitterRatio
	if jitterRatio < 0 || jitterRatio > 1 {
		jitterRatio = 0.1
	}
	if jitter := time.Duration(float64(d) * jitterRatio); jitter > 0 {
		d = d - jitter + time.Duration(rand.Int63n(int64(2*jitter)+1))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ApplyStops cuts text at the earliest occurrence of any stop sequence.
// The stop sequence itself is not included, matching backend semantics.
func ApplyStops(text string, stops []string) string {
	cut := len(text)
	for _, s := range stops {
		if s == "" {
			continue
		}
		if idx := strings.Index(text, s); idx != -1 && idx < cut {
			cut = idx
		}
	}
	return text[:cut]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
