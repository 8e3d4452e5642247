package jobs

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers job routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, jobService *Service, cancelRegistry *CancelRegistry) {
	h := &handler{
		jobService:     jobService,
		cancelRegistry: cancelRegistry,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("/:id/cancel", h.cancel)
}
