package api

import "github.com/gin-gonic/gin"

// RegisterRoutes configures all API routes on the given router
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/", a.handleRoot)

	v1 := router.Group("/v1")
	{
		v1.GET("/health", a.handleHealth)
		v1.GET("/version", a.handleVersion)

		sketches := v1.Group("/sketches")
		{
			sketches.GET("", a.handleListSketches)
			sketches.POST("", a.handleCreateSketch)
			sketches.GET("/:id", a.handleGetSketch)
			sketches.PUT("/:id", a.handleUpdateSketch)
			sketches.POST("/:id/compile", a.rateLimit("compile", a.limits().CompilesPerMin), a.handleCompileSketch)
			sketches.GET("/:id/builds", a.handleListBuilds)

			if a.archiver != nil {
				sketches.GET("/:id/firmware", a.handleDownloadFirmware)
				sketches.GET("/:id/source", a.handleGetSource)
			}
		}

		if a.archiver != nil {
			v1.GET("/firmware", a.handleListFirmware)
		}
		v1.POST("/firmware/lookup", a.rateLimit("lookup", a.limits().LookupsPerMin), a.handleLookupFirmware)
		v1.GET("/components", a.handleListComponents)
	}
}

// limits returns the configured request limits
func (a *API) limits() RateLimitConfig {
	if a.limiter == nil {
		return RateLimitConfig{}
	}
	return a.limiter.config
}
