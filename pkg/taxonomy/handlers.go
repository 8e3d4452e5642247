package taxonomy

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	taxonomyService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		return errors.WithStack(err)
	}

	values, err := h.taxonomyService.List(ctx, kind)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]any{
		"kind":   kind,
		"values": values,
	}))
}

func (h *handler) consolidate(c echo.Context) error {
	ctx := c.Request().Context()

	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		return errors.WithStack(err)
	}

	params := ConsolidatePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	result, err := h.taxonomyService.Consolidate(ctx, kind, params.Targets, params.Values, ConsolidateOptions{
		RewriteFiles: params.RewriteFiles,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, result))
}

func (h *handler) deleteValues(c echo.Context) error {
	ctx := c.Request().Context()

	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		return errors.WithStack(err)
	}

	params := DeletePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	result, err := h.taxonomyService.Delete(ctx, kind, params.Values, ConsolidateOptions{
		RewriteFiles: params.RewriteFiles,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, result))
}
