package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dsa-agent/app"
	"dsa-agent/config"
	"dsa-agent/web/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type echoRunner struct{}

func (echoRunner) Run(_ context.Context, question string, _ []types.ChatTurn) (string, error) {
	return "answer to " + question, nil
}

func testServer() *Server {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		CORSAllowedOrigins:      []string{"https://dsa-rag.vercel.app"},
		RateLimitMessagesPerMin: 60,
		RateLimitBurstSize:      5,
	}
	return NewServer(app.NewWithRunner(echoRunner{}, zap.NewNop()), zap.NewNop(), cfg)
}

func TestServerRoutes(t *testing.T) {
	s := testServer()
	defer s.limiter.Stop()

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"input":"bfs"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "answer to bfs")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
}

func TestServerCORS(t *testing.T) {
	s := testServer()
	defer s.limiter.Stop()

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://dsa-rag.vercel.app")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "https://dsa-rag.vercel.app", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerStartStops(t *testing.T) {
	s := testServer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Start(ctx, "127.0.0.1:0"))
}
