package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otto/internal/config"
	"otto/internal/events"
	"otto/internal/logging"
	"otto/internal/memory"
	"otto/internal/observability"
	"otto/internal/orchestrator"
	"otto/internal/ports"
)

// Version reported by /health.
const Version = "1.0.0"

// Deps are the collaborators the HTTP façade exposes.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Bus          *events.Bus
	Registry     ports.ToolDispatcher
	Memory       *memory.Manager
	LLM          ports.LLMClient
	Obs          *observability.Observability
}

// Server is the thin HTTP façade over the orchestrator.
type Server struct {
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	startTime  time.Time
	logger     logging.Logger
}

// NewServer builds the gin engine, middleware stack, and route table.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s := &Server{
		deps:   deps,
		engine: engine,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
		logger:    logging.NewComponentLogger("Server"),
	}

	if deps.Obs != nil {
		engine.Use(s.observe())
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // orchestrations and event streams outlive any fixed write deadline
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.POST("/orchestrate", s.handleOrchestrate)
	s.engine.POST("/chat", s.handleChat)

	orch := s.engine.Group("/orchestration")
	{
		orch.GET("/status/:task_id", s.handleStatus)
		orch.GET("/metrics", s.handleOrchestrationMetrics)
		orch.GET("/active", s.handleActive)
		orch.POST("/cancel/:task_id", s.handleCancel)
		orch.GET("/recommendations", s.handleRecommendations)
		orch.GET("/events/:task_id", s.handleEventStream)
	}

	s.engine.GET("/tools", s.handleTools)
}

// observe records request metrics after the handler chain completes.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Obs.Metrics.RecordHTTPRequest(c.Request.Context(),
			c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
