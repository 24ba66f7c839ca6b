package handlers

import (
	"net/http"
	"strings"

	"dsa-agent/app"
	apperrors "dsa-agent/errors"
	"dsa-agent/web/format"
	"dsa-agent/web/middleware"
	"dsa-agent/web/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgNotInitialized = "Backend not fully initialized. Please check server logs."
	msgNoInput        = "No input provided."
	msgAgentError     = "An error occurred while processing your request."
	msgIndex          = "Backend is running. Access the frontend via index.html"
)

type ChatHandler struct {
	app    *app.App
	logger *zap.Logger
}

func NewChatHandler(a *app.App, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{app: a, logger: logger}
}

func (h *ChatHandler) Index(c *gin.Context) {
	c.String(http.StatusOK, msgIndex)
}

func (h *ChatHandler) Health(c *gin.Context) {
	if !h.app.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SendMessage runs one turn. History comes from the client and is never stored.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	logger := h.requestLogger(c)

	if !h.app.Ready() {
		respondWithError(c, http.StatusServiceUnavailable, h.app.InitErr(), msgNotInitialized, logger)
		return
	}

	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, msgNoInput)
		return
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		respondWithClientError(c, http.StatusBadRequest, msgNoInput)
		return
	}

	logger.Info("Received chat request",
		zap.Int("input_len", len(input)),
		zap.Int("history_len", len(req.ChatHistory)))

	output, err := h.app.Agent.Run(c.Request.Context(), input, req.ChatHistory)
	if err != nil {
		switch {
		case apperrors.IsInvalidInput(err):
			respondWithClientError(c, http.StatusBadRequest, msgNoInput)
		case c.Request.Context().Err() != nil:
			logger.Info("Client went away before the answer was ready")
			c.Status(499)
		default:
			respondWithError(c, http.StatusInternalServerError, err, msgAgentError, logger)
		}
		return
	}

	resp := types.ChatResponse{Output: output}
	if strings.EqualFold(c.Query("format"), "html") {
		resp.HTML = format.RenderHTML(output)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) requestLogger(c *gin.Context) *zap.Logger {
	if l := middleware.LoggerFrom(c); l != nil {
		return l
	}
	return h.logger
}
