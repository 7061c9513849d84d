package server

import (
	"context"
	"net/http"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/middleware"
	"github.com/PaulBabatuyi/filesync/internal/observability"
	"github.com/PaulBabatuyi/filesync/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is anything /ready should check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	Metrics        *observability.Metrics
	Checks         map[string]Pinger

	// per client IP, applied to login and register; zero disables
	AuthRatePerSecond float64
	AuthRateBurst     int
}

// Server exposes the file and auth services over HTTP.
type Server struct {
	files  *service.FileService
	auth   *service.AuthService
	logger *zap.Logger
	config Config
}

func New(files *service.FileService, auth *service.AuthService, logger *zap.Logger, config Config) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 50 << 20
	}
	return &Server{files: files, auth: auth, logger: logger, config: config}
}

// Router builds the gin engine with every route and middleware attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:    []string{"Origin", "Content-Type", middleware.UserIDHeader, middleware.RequestIDHeader},
		ExposeHeaders:   []string{"Content-Disposition", middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))
	router.Use(middleware.Chain(s.logger, s.config.Metrics)...)

	router.GET("/", s.handleIndex)
	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	if s.config.UploadDir != "" {
		router.Use(static.Serve("/uploads", static.LocalFile(s.config.UploadDir, false)))
	}

	limit := middleware.ClientRateLimit(s.config.AuthRatePerSecond, s.config.AuthRateBurst, s.logger)
	api := router.Group("/api")
	{
		api.POST("/login", limit, s.handleLogin)
		api.POST("/register", limit, s.handleRegister)

		api.POST("/upload", s.handleUpload)
		api.GET("/files", s.handleListFiles)
		api.GET("/download/:fileId", s.handleDownload)
		api.DELETE("/files/:fileId", s.handleDeleteFile)
		api.GET("/files/:fileId/preview", s.handlePreview)
	}

	router.NoRoute(func(c *gin.Context) {
		respError(c, http.StatusNotFound, "route not found")
	})
	return router
}

// HTTPServer wraps Router in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
