package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 0)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
	assert.Equal(t, 0, tb.Remaining())
}

func TestRateLimitMiddlewarePerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewClientRateLimiter(RateLimiterConfig{MessagesPerMinute: 1, BurstSize: 2}, zap.NewNop())
	defer limiter.Stop()

	r := gin.New()
	r.POST("/chat", RateLimitMiddleware(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001").Code)
	w := send("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000").Code, "other clients have their own bucket")
}

func TestClientRateLimiterCleanup(t *testing.T) {
	limiter := NewClientRateLimiter(RateLimiterConfig{MessagesPerMinute: 60, BurstSize: 1, IdleTTL: time.Minute}, zap.NewNop())
	defer limiter.Stop()

	limiter.Allow("a")
	limiter.cleanup(time.Now())
	assert.Len(t, limiter.buckets, 1)

	limiter.cleanup(time.Now().Add(2 * time.Minute))
	assert.Empty(t, limiter.buckets)
}

func TestRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestContext(zap.NewNop()))
	r.GET("/", func(c *gin.Context) {
		assert.NotNil(t, LoggerFrom(c))
		c.String(http.StatusOK, RequestIDFrom(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, w.Body.String())

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, given)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, given, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\nX-Evil: 1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "not-a-uuid\nX-Evil: 1", w.Header().Get(RequestIDHeader))
}
