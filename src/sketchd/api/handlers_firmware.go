package api

import (
	"io"
	"net/http"

	"github.com/bitswalk/sketchforge/src/common/errors"
	"github.com/bitswalk/sketchforge/src/sketchd/lookup"
	"github.com/bitswalk/sketchforge/src/sketchd/storage"
	"github.com/gin-gonic/gin"
)

// errNoFirmware is returned when a sketch has no archived build
var errNoFirmware = errors.ErrSketchNotFound.WithMessage("Sketch has no archived firmware")

// handleLookupFirmware identifies the sketch that produced an uploaded
// Intel hex image
func (a *API) handleLookupFirmware(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 2*lookup.MaxHexLength))
	if err != nil {
		respondError(c, errors.ErrInvalidJSON.WithCause(err))
		return
	}
	if len(body) == 0 {
		respondError(c, errors.ErrMissingRequiredField.WithMessage("Firmware hex body is required"))
		return
	}

	s, err := a.finder.FindByBinary(c.Request.Context(), string(body))
	if err != nil {
		respondError(c, err)
		return
	}
	if s == nil {
		respondError(c, errors.ErrNoMatchingSketch)
		return
	}

	c.JSON(http.StatusOK, toSketchResponse(s))
}

// handleDownloadFirmware streams the archived firmware binary of a sketch
func (a *API) handleDownloadFirmware(c *gin.Context) {
	s, ok := a.requireSketch(c)
	if !ok {
		return
	}
	if !a.archived(c, s.SHA256, storage.FirmwareKey(s.SHA256)) {
		return
	}

	body, info, err := a.archiver.OpenFirmware(c.Request.Context(), s.SHA256)
	if err != nil {
		respondError(c, errors.ErrStorageUnavailable.WithCause(err))
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", `attachment; filename="`+s.SHA256+`.bin"`)
	c.DataFromReader(http.StatusOK, info.Size, "application/octet-stream", body, nil)
}

// handleGetSource returns the archived sketch source of the last build
func (a *API) handleGetSource(c *gin.Context) {
	s, ok := a.requireSketch(c)
	if !ok {
		return
	}
	ext := a.pipeline.Config().SourceExt
	if !a.archived(c, s.SHA256, storage.SourceKey(s.SHA256, ext)) {
		return
	}

	source, err := a.archiver.FetchSource(c.Request.Context(), s.SHA256, ext)
	if err != nil {
		respondError(c, errors.ErrStorageUnavailable.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, SourceResponse{SHA256: s.SHA256, Source: source})
}

// archived reports whether key exists in the archive, writing the error
// response when it does not
func (a *API) archived(c *gin.Context, digest, key string) bool {
	if digest == "" {
		respondError(c, errNoFirmware)
		return false
	}
	exists, err := a.archiver.Backend().Exists(c.Request.Context(), key)
	if err != nil {
		respondError(c, errors.ErrStorageUnavailable.WithCause(err))
		return false
	}
	if !exists {
		respondError(c, errNoFirmware)
		return false
	}
	return true
}

// handleListFirmware returns the archived firmware binaries
func (a *API) handleListFirmware(c *gin.Context) {
	firmware, err := a.archiver.ListFirmware(c.Request.Context())
	if err != nil {
		respondError(c, errors.ErrStorageUnavailable.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, FirmwareListResponse{Count: len(firmware), Firmware: firmware})
}
