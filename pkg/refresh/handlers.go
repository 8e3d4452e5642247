package refresh

import (
	"net/http"
	"strconv"

	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/hondanahq/hondana/pkg/jobs"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

type handler struct {
	jobService      *jobs.Service
	proposalService *ProposalService
}

func (h *handler) createRefreshJob(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateRefreshJobPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if params.LibraryID == nil && len(params.BookIDs) == 0 {
		return errcodes.ValidationError("Refresh needs a library or an explicit book list.")
	}

	active, err := h.jobService.HasActiveJobByType(ctx, models.JobTypeMetadataRefresh)
	if err != nil {
		return errors.WithStack(err)
	}
	if active {
		return errcodes.Conflict("A metadata refresh is already running.")
	}

	data := &models.JobMetadataRefreshData{
		LibraryID: params.LibraryID,
		BookIDs:   params.BookIDs,
	}
	if params.Options != nil {
		raw, err := json.Marshal(params.Options)
		if err != nil {
			return errors.WithStack(err)
		}
		data.Options = raw
	}

	job := &models.Job{
		Type:       models.JobTypeMetadataRefresh,
		Status:     models.JobStatusPending,
		DataParsed: data,
		LibraryID:  params.LibraryID,
		UserID:     params.UserID,
	}

	if err := h.jobService.CreateJob(ctx, job); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) listJobProposals(c echo.Context) error {
	ctx := c.Request().Context()
	jobID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Job")
	}

	// Bind params.
	params := ListProposalsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	proposals, total, err := h.proposalService.ListProposalsWithTotal(ctx, ListProposalsOptions{
		Limit:    &params.Limit,
		Offset:   &params.Offset,
		JobID:    &jobID,
		Statuses: params.Status,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Proposals []*models.Proposal `json:"proposals"`
		Total     int                `json:"total"`
	}{proposals, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) acceptProposal(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Proposal")
	}

	reviewerID, err := optionalUserID(c)
	if err != nil {
		return err
	}

	proposal, err := h.proposalService.AcceptProposal(ctx, id, reviewerID)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, proposal))
}

func (h *handler) rejectProposal(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Proposal")
	}

	reviewerID, err := optionalUserID(c)
	if err != nil {
		return err
	}

	proposal, err := h.proposalService.RejectProposal(ctx, id, reviewerID)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, proposal))
}

// optionalUserID reads the user_id query param used to attribute the review.
func optionalUserID(c echo.Context) (*int, error) {
	raw := c.QueryParam("user_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return nil, errcodes.ValidationError(`"user_id" must be a positive integer.`)
	}
	return &id, nil
}
