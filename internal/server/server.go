// Package server exposes the assistant core over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"aria/internal/assistant/app"
	"aria/internal/auth"
	"aria/internal/config"
	"aria/internal/shared/logging"
	id "aria/internal/utils/id"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts the turn API.
type Server struct {
	orchestrator *app.Orchestrator
	tokens       *auth.Manager
	logger       logging.Logger

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startTime  time.Time
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, orchestrator *app.Orchestrator, tokens *auth.Manager, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s := &Server{
		orchestrator: orchestrator,
		tokens:       tokens,
		logger:       logging.OrNop(logger),
		engine:       engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return len(cfg.AllowedOrigins) == 0 || originAllowed(r.Header.Get("Origin"), cfg.AllowedOrigins)
			},
		},
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		startTime: time.Now(),
	}
	s.httpServer.Handler = engine

	engine.Use(s.requestID())
	engine.Use(limitBody(1 << 20))
	s.routes()
	return s
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == origin || a == "*" {
			return true
		}
	}
	return false
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/ws", s.handleWebSocket)

	v1 := s.engine.Group("/api/v1")
	{
		v1.POST("/turn", s.handleTurn)
		v1.GET("/users/:userId/sessions/:sessionId", s.handleGetContext)
		v1.DELETE("/users/:userId/sessions/:sessionId", s.handleClearContext)
		v1.POST("/principals", s.handleRegisterPrincipal)
	}
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// requestID stamps every request with an identifier for log correlation,
// honoring one supplied by the caller.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = id.NewRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(id.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
