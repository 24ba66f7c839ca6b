package tui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dsa-agent/web/types"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	answer  string
	err     error
	history []types.ChatTurn
}

func (f *fakeSender) Send(_ context.Context, _ string, history []types.ChatTurn) (string, error) {
	f.history = history
	return f.answer, f.err
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestModelKeepsHistoryAcrossTurns(t *testing.T) {
	sender := &fakeSender{answer: "A stack is LIFO."}
	m := sized(New(sender))

	m.input.SetValue("What is a stack?")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.waiting)

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.waiting)
	require.Len(t, m.history, 2)
	assert.Equal(t, types.RoleUser, m.history[0].Role)
	assert.Equal(t, "A stack is LIFO.", m.history[1].Content)

	m.input.SetValue("And a queue?")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	cmd()
	assert.Len(t, sender.history, 2, "prior turns are sent with the next question")
}

func TestModelShowsErrorsWithoutRecordingTurn(t *testing.T) {
	m := sized(New(&fakeSender{err: errors.New("Backend not fully initialized. Please check server logs.")}))
	m.input.SetValue("hi")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next, _ = next.(Model).Update(cmd())
	m = next.(Model)
	assert.Empty(t, m.history)
	assert.Contains(t, m.status, "Backend not fully initialized")
}

func TestModelIgnoresEmptyInput(t *testing.T) {
	m := sized(New(&fakeSender{}))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestChatClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if req.Input == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"output": "An error occurred while processing your request."})
			return
		}
		_ = json.NewEncoder(w).Encode(types.ChatResponse{Output: "echo: " + req.Input})
	}))
	defer srv.Close()

	client := NewChatClient(srv.URL+"/", 5*time.Second)
	out, err := client.Send(context.Background(), "bfs", nil)
	require.NoError(t, err)
	assert.Equal(t, "echo: bfs", out)

	_, err = client.Send(context.Background(), "fail", nil)
	require.Error(t, err)
	assert.Equal(t, "An error occurred while processing your request.", err.Error())
}
