package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hondanahq/hondana/pkg/binder"
	"github.com/hondanahq/hondana/pkg/books"
	"github.com/hondanahq/hondana/pkg/config"
	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/hondanahq/hondana/pkg/jobs"
	"github.com/hondanahq/hondana/pkg/notifications"
	"github.com/hondanahq/hondana/pkg/providers"
	"github.com/hondanahq/hondana/pkg/refresh"
	"github.com/hondanahq/hondana/pkg/taxonomy"
	"github.com/hondanahq/hondana/pkg/thumbnails"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, hub *notifications.Hub, registry *providers.Registry, cancels *jobs.CancelRegistry) (*http.Server, *refresh.Orchestrator, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	thumbnailService := thumbnails.New(cfg)

	bookService := books.NewService(db)
	bookService.SetThumbnailCreator(thumbnailService)

	taxonomyService := taxonomy.NewService(db)
	taxonomyService.SetFileRewriter(bookService)

	jobService := jobs.NewService(db)

	orchestrator := refresh.NewOrchestrator(db, cfg, registry, cancels, hub, bookService)
	proposalService := refresh.NewProposalService(db, bookService, jobService)

	booksGroup := e.Group("/books")
	books.RegisterRoutesWithGroup(booksGroup, bookService, thumbnailService)

	jobsGroup := e.Group("/jobs")
	jobs.RegisterRoutesWithGroup(jobsGroup, jobService, cancels)

	taxonomyGroup := e.Group("/taxonomy")
	taxonomy.RegisterRoutesWithGroup(taxonomyGroup, taxonomyService)

	// Refresh routes hang off the root so proposal paths can sit next to the
	// job paths they relate to.
	refresh.RegisterRoutesWithGroup(e.Group(""), jobService, proposalService)

	e.GET("/notifications/ws", hub.Handler)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, orchestrator, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
