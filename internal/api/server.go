package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hostlink-project/hostlink/internal/config"
	"github.com/hostlink-project/hostlink/internal/match"
	"github.com/hostlink-project/hostlink/internal/network"
	"github.com/hostlink-project/hostlink/internal/store"
)

// SayFunc queues a chat message for the engine. Implemented by the host
// application so the send happens on the pump goroutine.
type SayFunc func(text string) bool

// Server is the REST status API server for HostLink.
type Server struct {
	cfg     *config.Config
	tracker *match.Tracker
	history *store.MatchStore // nil when persistence is disabled
	say     SayFunc           // nil disables the say endpoint

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, tracker *match.Tracker, history *store.MatchStore, say SayFunc) *Server {
	// Set Gin mode based on log level
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:     cfg,
		tracker: tracker,
		history: history,
		say:     say,
	}
}

// Start initializes and starts the API server.
func (s *Server) Start(ctx context.Context) error {
	app := s.cfg.GetApplicationData()

	// Build router
	s.router = s.buildRouter()

	addr := fmt.Sprintf("%s:%d", app.API.Bind, app.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Create listener with SO_REUSEADDR for immediate rebinding after restart
	lc := network.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())
	router.Use(IPWhitelist(s.cfg))

	// CORS
	allowedOrigins := s.cfg.GetApplicationData().Security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(s.cfg.GetApplicationData().Security.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	// ---- Public endpoints ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/get_server_info", s.handleGetServerInfo)
		public.GET("/get_version", s.handleGetVersion)
	}

	// ---- Match endpoints ----
	matchGroup := router.Group("/api/match")
	{
		matchGroup.GET("/state", s.handleGetState)
		matchGroup.GET("/players", s.handleGetPlayers)
		matchGroup.GET("/chat", s.handleGetChat)
		matchGroup.GET("/team_stats", s.handleGetTeamStats)
		matchGroup.POST("/say", s.handleSay)
	}

	// ---- History endpoints ----
	history := router.Group("/api/history")
	{
		history.GET("/matches", s.handleGetMatches)
		history.GET("/matches/:id", s.handleGetMatchDetail)
	}

	// ---- Monitor endpoints ----
	monitor := router.Group("/api/monitor")
	{
		monitor.GET("/get_cpu_usage", s.handleGetCPUUsage)
		monitor.GET("/get_memory_usage", s.handleGetMemoryUsage)
		monitor.GET("/get_disk_usage", s.handleGetDiskUsage)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
