package api

import (
	"net/http"

	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
	"github.com/gin-gonic/gin"
)

// handleListComponents returns the catalog, optionally filtered by category
// or by component name
func (a *API) handleListComponents(c *gin.Context) {
	var components []catalog.Component
	switch {
	case c.Query("name") != "":
		name := c.Query("name")
		for _, category := range a.catalog.Categories(name) {
			if comp, ok := a.catalog.Lookup(name, category); ok {
				components = append(components, comp)
			}
		}
	case c.Query("category") != "":
		components = a.catalog.ByCategory(c.Query("category"))
	default:
		components = a.catalog.List()
	}

	out := make([]ComponentResponse, 0, len(components))
	for _, comp := range components {
		out = append(out, ComponentResponse{
			Name:        comp.Name,
			Category:    comp.Category,
			PrettyName:  comp.PrettyName,
			Description: comp.Description,
			Period:      comp.Period,
			Defaults:    comp.Defaults,
			Testride:    comp.Testride,
		})
	}
	c.JSON(http.StatusOK, ComponentListResponse{Count: len(out), Components: out})
}
