package api

import (
	stderrors "errors"

	"github.com/bitswalk/sketchforge/src/common/errors"
	"github.com/bitswalk/sketchforge/src/sketchd/build"
	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
	"github.com/bitswalk/sketchforge/src/sketchd/sketch"
	"github.com/gin-gonic/gin"
)

// translate maps a pipeline error onto the API error catalog
func translate(err error) (*errors.Error, map[string]interface{}) {
	var (
		apiErr    *errors.Error
		notFound  *catalog.NotFoundError
		configErr *sketch.ConfigError
		startup   *sketch.StartupPatternError
		tmplErr   *sketch.TemplateError
		sizeErr   *build.SizeExceededError
		tcErr     *build.ToolchainError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr, nil
	case stderrors.Is(err, build.ErrSketchNotFound):
		return errors.ErrSketchNotFound, nil
	case errors.As(err, &notFound):
		return errors.ErrComponentNotFound.WithMessage(notFound.Error()), map[string]interface{}{
			"name":     notFound.Name,
			"category": notFound.Category,
		}
	case errors.As(err, &configErr):
		return errors.ErrInvalidConfig.WithMessage(configErr.Error()), nil
	case errors.As(err, &startup):
		return errors.ErrStartupPattern.WithMessage(startup.Error()), map[string]interface{}{
			"pattern": startup.Pattern,
		}
	case errors.As(err, &tmplErr):
		return errors.ErrTemplate.WithMessage(tmplErr.Error()), map[string]interface{}{
			"component": tmplErr.Component,
			"category":  tmplErr.Category,
			"section":   tmplErr.Section,
		}
	case errors.As(err, &sizeErr):
		return errors.ErrSizeExceeded.WithMessage(sizeErr.Error()), map[string]interface{}{
			"size":  sizeErr.Size,
			"limit": sizeErr.Limit,
		}
	case errors.As(err, &tcErr):
		details := map[string]interface{}{"stage": string(tcErr.Stage)}
		if tcErr.Diagnostics != "" {
			details["diagnostics"] = tcErr.Diagnostics
		}
		if tcErr.Stage == build.StageTimeout {
			return errors.ErrToolchainTimeout, details
		}
		return errors.ErrToolchainFailed, details
	default:
		return errors.ErrInternal, nil
	}
}

// respondError writes the error envelope for err
func respondError(c *gin.Context, err error) {
	apiErr, details := translate(err)
	if build.IsUserError(err) {
		log.Debug("Request rejected", "path", c.FullPath(), "error", err)
	} else if apiErr.HTTPStatus >= 500 {
		log.Error("Request failed", "path", c.FullPath(), "error", err)
	}

	if details != nil {
		c.JSON(apiErr.HTTPStatus, apiErr.ToResponseWithDetails(details))
		return
	}
	c.JSON(apiErr.HTTPStatus, apiErr.ToResponse())
}
