package books

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/hondanahq/hondana/pkg/metadata"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/hondanahq/hondana/pkg/thumbnails"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	bookService      *Service
	thumbnailService *thumbnails.Service
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{
		ID:               &id,
		IncludeRelations: true,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListBooksQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListBooksOptions{
		Limit:            &params.Limit,
		Offset:           &params.Offset,
		LibraryID:        params.LibraryID,
		IncludeRelations: true,
	}

	books, total, err := h.bookService.ListBooksWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Books []*models.Book `json:"books"`
		Total int            `json:"total"`
	}{books, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) updateMetadata(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	payload := UpdateMetadataPayload{}
	if err := c.Bind(&payload); err != nil {
		return errors.WithStack(err)
	}

	clearFlags := metadata.ClearFlags{}
	for _, f := range payload.Clear {
		clearFlags[metadata.Field(f)] = true
	}

	book, err := h.bookService.UpdateMetadata(ctx, id, ApplyMetadataOptions{
		Metadata:        payload.Metadata,
		Clear:           clearFlags,
		Mode:            metadata.ReplaceMode(payload.Mode),
		MergeCategories: payload.MergeCategories,
		MergeMoods:      payload.MergeMoods,
		MergeTags:       payload.MergeTags,
		UpdateThumbnail: payload.UpdateThumbnail,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) cover(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	path := h.thumbnailService.Path(book.ID)
	if _, err := os.Stat(path); err != nil {
		return errcodes.NotFound("Cover")
	}

	return errors.WithStack(c.File(path))
}

func (h *handler) uploadCover(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}
	if book.CoverLocked {
		return errcodes.Locked("Cover")
	}

	file, err := c.FormFile("cover")
	if err != nil {
		return errcodes.MalformedPayload()
	}
	src, err := file.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer src.Close()

	if _, err := h.thumbnailService.CreateFromUpload(book.ID, src); err != nil {
		return errors.WithStack(err)
	}

	now := time.Now()
	book.CoverUpdatedAt = &now
	err = h.bookService.UpdateBook(ctx, book, UpdateBookOptions{Columns: []string{"cover_updated_at"}})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}
