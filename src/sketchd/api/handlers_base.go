package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleRoot returns API discovery information
func (a *API) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, APIInfo{
		Name:        "sketchd",
		Description: "Firmware sketch synthesis and build service",
		Version:     versionInfo.Version,
		APIVersions: []string{"v1"},
		Endpoints: APIInfoEndpoints{
			Health:     "/v1/health",
			Version:    "/v1/version",
			Sketches:   "/v1/sketches",
			Components: "/v1/components",
			Lookup:     "/v1/firmware/lookup",
		},
	})
}

// handleHealth returns the current health status of the server
func (a *API) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: a.catalog.Len(),
		Storage:    "disabled",
	}

	if a.archiver != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := a.archiver.Backend().Ping(ctx); err != nil {
			log.Warn("Storage backend unreachable", "error", err)
			resp.Status = "degraded"
			resp.Storage = "unavailable"
		} else {
			resp.Storage = a.archiver.Backend().Type()
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleVersion returns version and build information for the server
func (a *API) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, versionInfo.Map())
}
