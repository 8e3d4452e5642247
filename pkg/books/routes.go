package books

import (
	"github.com/hondanahq/hondana/pkg/thumbnails"
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers book routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, bookService *Service, thumbnailService *thumbnails.Service) {
	h := &handler{
		bookService:      bookService,
		thumbnailService: thumbnailService,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.PUT("/:id/metadata", h.updateMetadata)
	g.GET("/:id/cover", h.cover)
	g.POST("/:id/cover", h.uploadCover)
}
