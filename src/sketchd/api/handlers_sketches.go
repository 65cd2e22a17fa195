package api

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/bitswalk/sketchforge/src/common/errors"
	"github.com/bitswalk/sketchforge/src/sketchd/db"
	"github.com/bitswalk/sketchforge/src/sketchd/sketch"
	"github.com/gin-gonic/gin"
)

// maxConfigSize caps the request body of a sketch configuration
const maxConfigSize = 1 << 20

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func toSketchResponse(s *db.Sketch) SketchResponse {
	return SketchResponse{Sketch: *s, Config: json.RawMessage(s.Config)}
}

// handleListSketches returns every stored sketch
func (a *API) handleListSketches(c *gin.Context) {
	sketches, err := a.sketches.List()
	if err != nil {
		respondError(c, errors.ErrDatabaseQuery.WithCause(err))
		return
	}

	out := make([]SketchResponse, 0, len(sketches))
	for i := range sketches {
		out = append(out, toSketchResponse(&sketches[i]))
	}
	c.JSON(http.StatusOK, SketchListResponse{Count: len(out), Sketches: out})
}

// handleCreateSketch stores a configuration document. The body may carry
// comments; the stored copy is the canonical JSON form.
func (a *API) handleCreateSketch(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigSize))
	if err != nil {
		respondError(c, errors.ErrInvalidJSON.WithCause(err))
		return
	}

	cfg, err := sketch.ParseConfig(body)
	if err != nil {
		respondError(c, err)
		return
	}
	canonical, err := cfg.MarshalJSON()
	if err != nil {
		respondError(c, err)
		return
	}

	s := &db.Sketch{
		Name:   strings.TrimSpace(c.Query("name")),
		Config: string(canonical),
	}
	if err := a.sketches.Create(s); err != nil {
		respondError(c, errors.ErrDatabaseQuery.WithCause(err))
		return
	}

	log.Info("Sketch created", "sketch_id", s.ID, "name", s.Name)
	c.JSON(http.StatusCreated, toSketchResponse(s))
}

// handleGetSketch returns a sketch by id or by binary sha256
func (a *API) handleGetSketch(c *gin.Context) {
	id := c.Param("id")

	var (
		s   *db.Sketch
		err error
	)
	if digestPattern.MatchString(id) {
		s, err = a.sketches.GetBySHA256(id)
	} else {
		s, err = a.sketches.GetByID(id)
	}
	if err != nil {
		respondError(c, errors.ErrDatabaseQuery.WithCause(err))
		return
	}
	if s == nil {
		respondError(c, errors.ErrSketchNotFound)
		return
	}

	c.JSON(http.StatusOK, toSketchResponse(s))
}

// handleUpdateSketch replaces the configuration of a sketch. The stored
// fingerprint and archived outputs of the old configuration are dropped.
func (a *API) handleUpdateSketch(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigSize))
	if err != nil {
		respondError(c, errors.ErrInvalidJSON.WithCause(err))
		return
	}

	cfg, err := sketch.ParseConfig(body)
	if err != nil {
		respondError(c, err)
		return
	}

	s, err := a.pipeline.Reconfigure(c.Request.Context(), c.Param("id"), cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSketchResponse(s))
}

// handleCompileSketch runs the build pipeline for a sketch
func (a *API) handleCompileSketch(c *gin.Context) {
	res, err := a.pipeline.Compile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CompileResponse{
		SketchID:    res.SketchID,
		BuildID:     res.BuildID,
		Target:      res.Target,
		SHA256:      res.Fingerprint.SHA256,
		Size:        res.Fingerprint.Size,
		Duplicate:   res.DuplicateOf != "",
		DuplicateOf: res.DuplicateOf,
	})
}

// handleListBuilds returns the build history of a sketch, newest first
func (a *API) handleListBuilds(c *gin.Context) {
	s, ok := a.requireSketch(c)
	if !ok {
		return
	}

	builds, err := a.builds.ListBySketch(s.ID)
	if err != nil {
		respondError(c, errors.ErrDatabaseQuery.WithCause(err))
		return
	}
	if builds == nil {
		builds = []db.Build{}
	}
	c.JSON(http.StatusOK, BuildListResponse{Count: len(builds), Builds: builds})
}

// requireSketch loads the :id sketch or writes the error response
func (a *API) requireSketch(c *gin.Context) (*db.Sketch, bool) {
	s, err := a.sketches.GetByID(c.Param("id"))
	if err != nil {
		respondError(c, errors.ErrDatabaseQuery.WithCause(err))
		return nil, false
	}
	if s == nil {
		respondError(c, errors.ErrSketchNotFound)
		return nil, false
	}
	return s, true
}
