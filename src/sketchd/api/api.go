// Package api exposes the sketchd pipeline over HTTP with gin.
package api

import (
	"github.com/bitswalk/sketchforge/src/common/version"
	"github.com/bitswalk/sketchforge/src/sketchd/build"
	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
	"github.com/bitswalk/sketchforge/src/sketchd/db"
	"github.com/bitswalk/sketchforge/src/sketchd/lookup"
	"github.com/bitswalk/sketchforge/src/sketchd/storage"
)

var versionInfo = version.New()

// SetVersionInfo sets the version reported by the version endpoint
func SetVersionInfo(v *version.Info) {
	if v != nil {
		versionInfo = v
	}
}

// API holds the handler dependencies
type API struct {
	sketches *db.SketchRepository
	builds   *db.BuildRepository
	catalog  *catalog.Catalog
	pipeline *build.Pipeline
	finder   *lookup.Finder
	archiver *storage.Archiver
	limiter  *RateLimiter
}

// Config contains API configuration options
type Config struct {
	Sketches *db.SketchRepository
	Builds   *db.BuildRepository
	Catalog  *catalog.Catalog
	Pipeline *build.Pipeline
	Finder   *lookup.Finder
	// Archiver is nil when archiving is disabled
	Archiver *storage.Archiver
	// RateLimiter throttles compile and lookup requests. nil disables it.
	RateLimiter *RateLimiter
}

// New creates a new API instance
func New(cfg Config) *API {
	return &API{
		sketches: cfg.Sketches,
		builds:   cfg.Builds,
		catalog:  cfg.Catalog,
		pipeline: cfg.Pipeline,
		finder:   cfg.Finder,
		archiver: cfg.Archiver,
		limiter:  cfg.RateLimiter,
	}
}

// HasArchive returns true if an artifact archive is configured
func (a *API) HasArchive() bool {
	return a.archiver != nil
}
