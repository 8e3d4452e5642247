package refresh

import (
	"context"
	"database/sql"
	"time"

	"github.com/hondanahq/hondana/pkg/books"
	"github.com/hondanahq/hondana/pkg/config"
	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/hondanahq/hondana/pkg/jobs"
	"github.com/hondanahq/hondana/pkg/metadata"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

type RetrieveProposalOptions struct {
	ID *int
}

type ListProposalsOptions struct {
	Limit    *int
	Offset   *int
	JobID    *int
	BookID   *int
	Statuses []string

	includeTotal bool
}

// ProposalService stages review-mode refresh results and applies or discards
// them on reviewer action.
type ProposalService struct {
	db          *bun.DB
	bookService *books.Service
	jobService  *jobs.Service
}

func NewProposalService(db *bun.DB, bookService *books.Service, jobService *jobs.Service) *ProposalService {
	return &ProposalService{
		db:          db,
		bookService: bookService,
		jobService:  jobService,
	}
}

// CreateProposal stages fetched metadata for review. The proposal carries
// the id of whoever kicked off the job so reviewers can see who asked for
// the refresh.
func (svc *ProposalService) CreateProposal(ctx context.Context, job *models.Job, bookID int, cm *metadata.CandidateMetadata) (*models.Proposal, error) {
	data, err := json.Marshal(cm)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	now := time.Now()
	proposal := &models.Proposal{
		CreatedAt:   now,
		UpdatedAt:   now,
		JobID:       job.ID,
		BookID:      bookID,
		CreatedByID: job.UserID,
		Status:      models.ProposalStatusFetched,
		Metadata:    string(data),
	}

	_, err = svc.db.
		NewInsert().
		Model(proposal).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	proposal.MetadataParsed = cm
	return proposal, nil
}

func (svc *ProposalService) RetrieveProposal(ctx context.Context, opts RetrieveProposalOptions) (*models.Proposal, error) {
	proposal := &models.Proposal{}

	q := svc.db.
		NewSelect().
		Model(proposal)

	if opts.ID != nil {
		q = q.Where("pr.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Proposal")
		}
		return nil, errors.WithStack(err)
	}

	if err := parseProposalMetadata(proposal); err != nil {
		return nil, err
	}

	return proposal, nil
}

func (svc *ProposalService) ListProposals(ctx context.Context, opts ListProposalsOptions) ([]*models.Proposal, error) {
	p, _, err := svc.listProposalsWithTotal(ctx, opts)
	return p, errors.WithStack(err)
}

func (svc *ProposalService) ListProposalsWithTotal(ctx context.Context, opts ListProposalsOptions) ([]*models.Proposal, int, error) {
	opts.includeTotal = true
	return svc.listProposalsWithTotal(ctx, opts)
}

func (svc *ProposalService) listProposalsWithTotal(ctx context.Context, opts ListProposalsOptions) ([]*models.Proposal, int, error) {
	proposals := []*models.Proposal{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&proposals).
		Order("pr.created_at ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.JobID != nil {
		q = q.Where("pr.job_id = ?", *opts.JobID)
	}
	if opts.BookID != nil {
		q = q.Where("pr.book_id = ?", *opts.BookID)
	}
	if opts.Statuses != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			for _, s := range opts.Statuses {
				sq = sq.WhereOr("pr.status = ?", s)
			}
			return sq
		})
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	for _, proposal := range proposals {
		if err := parseProposalMetadata(proposal); err != nil {
			return nil, 0, err
		}
	}

	return proposals, total, nil
}

// AcceptProposal merges the staged metadata onto the book through the same
// path a direct update takes, using the options the originating job ran
// with. A proposal whose book has since been deleted surfaces as not found
// and stays in fetched status.
func (svc *ProposalService) AcceptProposal(ctx context.Context, id int, reviewerID *int) (*models.Proposal, error) {
	proposal, err := svc.RetrieveProposal(ctx, RetrieveProposalOptions{ID: &id})
	if err != nil {
		return nil, err
	}
	if proposal.Status != models.ProposalStatusFetched {
		return nil, errcodes.Conflict("Proposal has already been reviewed.")
	}

	book, err := svc.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{
		ID:               &proposal.BookID,
		IncludeRelations: true,
	})
	if err != nil {
		return nil, err
	}

	cm, ok := proposal.MetadataParsed.(*metadata.CandidateMetadata)
	if !ok || cm == nil {
		return nil, errors.New("proposal metadata is not parseable")
	}

	opts, err := svc.jobOptions(ctx, proposal.JobID, book.LibraryID)
	if err != nil {
		return nil, err
	}

	_, err = svc.bookService.ApplyMetadata(ctx, book, books.ApplyMetadataOptions{
		Metadata:        cm,
		Mode:            opts.Mode,
		MergeCategories: opts.MergeCategories,
		MergeMoods:      opts.MergeMoods,
		MergeTags:       opts.MergeTags,
		UpdateThumbnail: opts.RefreshCovers,
	})
	if err != nil {
		return nil, err
	}

	return svc.review(ctx, proposal, models.ProposalStatusAccepted, reviewerID)
}

// RejectProposal discards the staged metadata without touching the book.
func (svc *ProposalService) RejectProposal(ctx context.Context, id int, reviewerID *int) (*models.Proposal, error) {
	proposal, err := svc.RetrieveProposal(ctx, RetrieveProposalOptions{ID: &id})
	if err != nil {
		return nil, err
	}
	if proposal.Status != models.ProposalStatusFetched {
		return nil, errcodes.Conflict("Proposal has already been reviewed.")
	}

	return svc.review(ctx, proposal, models.ProposalStatusRejected, reviewerID)
}

func (svc *ProposalService) review(ctx context.Context, proposal *models.Proposal, status string, reviewerID *int) (*models.Proposal, error) {
	now := time.Now()
	proposal.Status = status
	proposal.ReviewedAt = &now
	proposal.ReviewedByID = reviewerID
	proposal.UpdatedAt = now

	_, err := svc.db.
		NewUpdate().
		Model(proposal).
		Column("status", "reviewed_at", "reviewed_by_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return proposal, nil
}

func (svc *ProposalService) jobOptions(ctx context.Context, jobID, libraryID int) (*metadata.RefreshOptions, error) {
	job, err := svc.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &jobID})
	if err != nil {
		return nil, err
	}
	data, ok := job.DataParsed.(*models.JobMetadataRefreshData)
	if !ok {
		data = &models.JobMetadataRefreshData{}
	}

	library := &models.Library{}
	err = svc.db.NewSelect().Model(library).Where("l.id = ?", libraryID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			library = nil
		} else {
			return nil, errors.WithStack(err)
		}
	}

	userConfig, err := config.User()
	if err != nil {
		userConfig = nil
	}

	return OptionsForJob(data, library, userConfig)
}

func parseProposalMetadata(proposal *models.Proposal) error {
	cm := &metadata.CandidateMetadata{}
	if err := json.Unmarshal([]byte(proposal.Metadata), cm); err != nil {
		return errors.WithStack(err)
	}
	proposal.MetadataParsed = cm
	return nil
}
