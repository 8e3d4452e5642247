package taxonomy

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers taxonomy routes on a pre-configured
// group.
func RegisterRoutesWithGroup(g *echo.Group, taxonomyService *Service) {
	h := &handler{taxonomyService: taxonomyService}

	g.GET("/:kind", h.list)
	g.POST("/:kind/consolidate", h.consolidate)
	g.POST("/:kind/delete", h.deleteValues)
}
