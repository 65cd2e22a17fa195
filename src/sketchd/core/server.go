package core

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitswalk/sketchforge/src/sketchd/api"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

// Server holds the HTTP server instance and its runtime
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	rt         *runtime
	api        *api.API
	limiter    *api.RateLimiter
}

// newServer creates the router and registers the API on it
func newServer(rt *runtime) *Server {
	if viper.GetString("log.level") == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(ginLogger())

	limiter := api.NewRateLimiter(api.RateLimitConfig{
		Enabled:        viper.GetBool("server.rate_limit.enabled"),
		CompilesPerMin: viper.GetInt("server.rate_limit.compiles_per_min"),
		LookupsPerMin:  viper.GetInt("server.rate_limit.lookups_per_min"),
	})

	api.SetVersionInfo(VersionInfo)
	apiInstance := api.New(api.Config{
		Sketches:    rt.sketches,
		Builds:      rt.builds,
		Catalog:     rt.catalog,
		Pipeline:    rt.pipeline,
		Finder:      rt.finder,
		Archiver:    rt.archiver,
		RateLimiter: limiter,
	})
	apiInstance.RegisterRoutes(router)

	return &Server{
		router:  router,
		rt:      rt,
		api:     apiInstance,
		limiter: limiter,
	}
}

// Run starts the HTTP server and blocks until a shutdown signal
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", viper.GetString("server.bind"), viper.GetInt("server.port"))

	// Compiles run synchronously inside the request, so the write
	// timeout must outlast a full toolchain run.
	buildTimeout := s.rt.pipeline.Config().Timeout
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3*buildTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	defer s.limiter.Stop()

	backupCtx, stopBackup := context.WithCancel(context.Background())
	defer stopBackup()
	go s.rt.backupLoop(backupCtx, viper.GetDuration("database.backup_interval"))

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting sketchd server", "address", addr)
		if s.api.HasArchive() {
			log.Info("Artifact archive enabled", "type", s.rt.archiver.Backend().Type(), "location", s.rt.archiver.Backend().Location())
		} else {
			log.Warn("Artifact archive disabled - firmware endpoints unavailable")
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("Received signal, shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info("Server stopped gracefully")
	return nil
}

// corsMiddleware returns a gin middleware for handling CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ginLogger returns a gin middleware for logging requests
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if query := c.Request.URL.RawQuery; query != "" {
			path = path + "?" + query
		}

		c.Next()

		log.Debug("HTTP request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// runServer is called by the root and serve commands
func runServer() error {
	log.Info("sketchd starting",
		"version", VersionInfo.Version,
		"build_date", VersionInfo.BuildDate,
		"log_output", log.Output(),
	)

	rt, err := openRuntime(context.Background())
	if err != nil {
		return err
	}

	err = newServer(rt).Run()

	log.Info("Persisting database to disk")
	if dbErr := rt.Close(); dbErr != nil {
		if err == nil {
			err = dbErr
		}
	} else {
		log.Info("Database persisted successfully")
	}

	return err
}
