// Package server exposes the graph over HTTP. It is a thin shell around the
// chronicle client: handlers bind requests, call the client, and map sentinel
// errors to status codes.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/chronicle"
	"github.com/soundprediction/chronicle/pkg/config"
	"github.com/soundprediction/chronicle/pkg/server/handlers"
)

// Server is the HTTP front end.
type Server struct {
	config *config.Config
	router *gin.Engine
	client *chronicle.Client
	server *http.Server
}

// New creates a server instance around an open client.
func New(cfg *config.Config, client *chronicle.Client) *Server {
	return &Server{
		config: cfg,
		client: client,
	}
}

// Setup builds the router and the underlying http.Server.
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.client)
	queryHandler := handlers.NewQueryHandler(s.client)
	commitHandler := handlers.NewCommitHandler(s.client)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/search", queryHandler.Search)
		v1.POST("/paths", queryHandler.Paths)

		v1.GET("/entities", queryHandler.ListEntities)
		v1.GET("/entities/:id/versions", queryHandler.EntityVersions)
		v1.GET("/entities/:id/timeline", queryHandler.EntityTimeline)
		v1.GET("/entities/:id/relations", queryHandler.EntityRelations)

		v1.GET("/relations", queryHandler.ListRelations)
		v1.GET("/relations/:id/versions", queryHandler.RelationVersions)

		v1.POST("/cache", queryHandler.SaveCache)
		v1.GET("/cache/latest", queryHandler.LatestCache)
		v1.GET("/cache/:id", queryHandler.GetCache)

		v1.POST("/commit", commitHandler.Commit)
		v1.GET("/commits", commitHandler.ListCommits)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	fmt.Printf("Starting server on %s\n", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println("Stopping server...")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
