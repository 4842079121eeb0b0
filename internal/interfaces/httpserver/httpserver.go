package httpserver

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruvnet/fine-tune-mcp/internal/infrastructure/config"
	"github.com/ruvnet/fine-tune-mcp/internal/interfaces/httpserver/middlewares"
	"github.com/ruvnet/fine-tune-mcp/internal/interfaces/httpserver/routes/mcp"
)

type HTTPServer struct {
	router   *gin.Engine
	config   *config.Config
	mcpRoute *mcp.MCPRoute
}

func NewHTTPServer(cfg *config.Config, mcpRoute *mcp.MCPRoute) *HTTPServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestID())
	router.Use(middlewares.RequestLogger())
	router.Use(middlewares.CORS())

	return &HTTPServer{
		router:   router,
		config:   cfg,
		mcpRoute: mcpRoute,
	}
}

func (s *HTTPServer) setupRoutes() {
	// Health check endpoints
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "fine-tune-mcp"})
	})

	s.router.GET("/readyz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ready", "service": "fine-tune-mcp"})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Register MCP routes
	v1 := s.router.Group("/v1")
	s.mcpRoute.RegisterRouter(v1)
}

func (s *HTTPServer) Run() error {
	s.setupRoutes()
	addr := fmt.Sprintf(":%s", s.config.HTTPPort)
	return s.router.Run(addr)
}
