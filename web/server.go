package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dsa-agent/app"
	"dsa-agent/config"
	"dsa-agent/web/handlers"
	"dsa-agent/web/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router  *gin.Engine
	app     *app.App
	limiter *middleware.ClientRateLimiter
	logger  *zap.Logger
	config  *config.Config
}

func NewServer(a *app.App, logger *zap.Logger, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestContext(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	server := &Server{
		router: router,
		app:    a,
		limiter: middleware.NewClientRateLimiter(middleware.RateLimiterConfig{
			MessagesPerMinute: cfg.RateLimitMessagesPerMin,
			BurstSize:         cfg.RateLimitBurstSize,
		}, logger),
		logger: logger,
		config: cfg,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	chatHandler := handlers.NewChatHandler(s.app, s.logger)

	s.router.GET("/", chatHandler.Index)
	s.router.GET("/health", chatHandler.Health)
	s.router.POST("/chat", middleware.RateLimitMiddleware(s.limiter), chatHandler.SendMessage)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight turns.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))
	defer s.limiter.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
