package refresh

import (
	"context"
	"math/rand"
	"time"

	"github.com/hondanahq/hondana/pkg/books"
	"github.com/hondanahq/hondana/pkg/config"
	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/hondanahq/hondana/pkg/jobs"
	"github.com/hondanahq/hondana/pkg/metadata"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/hondanahq/hondana/pkg/notifications"
	"github.com/hondanahq/hondana/pkg/providers"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// Per-item outcomes reported on progress notifications.
const (
	ItemStatusUpdated   = "updated"
	ItemStatusUnchanged = "unchanged"
	ItemStatusProposed  = "proposed"
	ItemStatusSkipped   = "skipped"
	ItemStatusError     = "error"
)

// Orchestrator runs one metadata refresh job end to end: scoping, provider
// fan-out, resolution, and either merging or staging a proposal per book.
// Item failures are isolated; only errors before the per-book loop fail the
// whole job.
type Orchestrator struct {
	db              *bun.DB
	bookService     *books.Service
	jobService      *jobs.Service
	proposalService *ProposalService
	registry        *providers.Registry
	cancels         *jobs.CancelRegistry
	publisher       notifications.Publisher
	fetchTimeout    time.Duration

	// Injectable for tests.
	sleep         func(time.Duration)
	throttleDelay func() time.Duration
}

func NewOrchestrator(db *bun.DB, cfg *config.Config, registry *providers.Registry, cancels *jobs.CancelRegistry, publisher notifications.Publisher, bookService *books.Service) *Orchestrator {
	jobService := jobs.NewService(db)

	return &Orchestrator{
		db:              db,
		bookService:     bookService,
		jobService:      jobService,
		proposalService: NewProposalService(db, bookService, jobService),
		registry:        registry,
		cancels:         cancels,
		publisher:       publisher,
		fetchTimeout:    cfg.ProviderFetchTimeout,

		sleep:         time.Sleep,
		throttleDelay: defaultThrottleDelay,
	}
}

// defaultThrottleDelay spaces requests against rate-limited sources by 0.5
// to 1.5 seconds.
func defaultThrottleDelay() time.Duration {
	return 500*time.Millisecond + time.Duration(rand.Int63n(int64(time.Second)))
}

// itemResult is what one pass over one book reports back on the progress
// notification.
type itemResult struct {
	status     string
	message    string
	reviewMode bool
}

// ProcessJob runs a refresh job to a terminal status. The cancellation flag
// for the job id is always cleared on the way out so ids can be reused.
func (o *Orchestrator) ProcessJob(ctx context.Context, job *models.Job) error {
	defer o.cancels.Clear(job.ID)

	opts, userConfig, bookIDs, err := o.prepare(ctx, job)
	if err != nil {
		o.finish(ctx, job, models.JobStatusError)
		return err
	}

	now := time.Now()
	job.Status = models.JobStatusInProgress
	job.StartedAt = &now
	job.TotalItems = len(bookIDs)
	job.CompletedItems = 0
	err = o.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
		Columns: []string{"status", "started_at", "total_items", "completed_items"},
	})
	if err != nil {
		o.finish(ctx, job, models.JobStatusError)
		return err
	}

	for _, bookID := range bookIDs {
		if o.cancels.Cancelled(job.ID) {
			o.finish(ctx, job, models.JobStatusCancelled)
			return nil
		}

		result := o.processBook(ctx, job, bookID, opts, userConfig)

		job.CompletedItems++
		err = o.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"completed_items"}})
		if err != nil {
			logger.FromContext(ctx).Err(err).Error("update job progress error")
		}

		payload := map[string]interface{}{
			"completed_items": job.CompletedItems,
			"total_items":     job.TotalItems,
			"book_id":         bookID,
			"status":          result.status,
			"review_mode":     result.reviewMode,
		}
		if result.message != "" {
			payload["message"] = result.message
		}
		o.publish(notifications.Event{
			Type:    notifications.EventJobProgress,
			JobID:   &job.ID,
			BookID:  &bookID,
			Payload: payload,
		})
	}

	o.finish(ctx, job, models.JobStatusCompleted)
	return nil
}

// prepare resolves everything the per-book loop needs. Any error here is
// fatal to the job and leaves it at zero progress. A nil options return
// means the job has no scope-wide options and each book falls back to its
// own library's defaults.
func (o *Orchestrator) prepare(ctx context.Context, job *models.Job) (*metadata.RefreshOptions, *config.UserConfig, []int, error) {
	if job.DataParsed == nil && job.Data != "" {
		if err := job.UnmarshalData(); err != nil {
			return nil, nil, nil, err
		}
	}
	data, ok := job.DataParsed.(*models.JobMetadataRefreshData)
	if !ok || data == nil {
		return nil, nil, nil, errors.New("job has no refresh data")
	}

	var library *models.Library
	if data.LibraryID != nil {
		library = &models.Library{}
		err := o.db.NewSelect().Model(library).Where("l.id = ?", *data.LibraryID).Scan(ctx)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "loading library")
		}
	}

	userConfig, err := config.User()
	if err != nil {
		return nil, nil, nil, err
	}

	var opts *metadata.RefreshOptions
	if len(data.Options) > 0 || library != nil {
		opts, err = OptionsForJob(data, library, userConfig)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	bookIDs := data.BookIDs
	if len(bookIDs) == 0 {
		if data.LibraryID == nil {
			return nil, nil, nil, errcodes.ValidationError("Refresh needs a library or an explicit book list.")
		}
		bookIDs, err = o.bookService.ListBookIDs(ctx, data.LibraryID, nil)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	return opts, userConfig, bookIDs, nil
}

// bookOptions resolves the effective options for one book on an ad-hoc job
// that carried none of its own: the book's library defaults apply.
func (o *Orchestrator) bookOptions(ctx context.Context, book *models.Book, userConfig *config.UserConfig) (*metadata.RefreshOptions, error) {
	library := book.Library
	if library == nil {
		library = &models.Library{}
		err := o.db.NewSelect().Model(library).Where("l.id = ?", book.LibraryID).Scan(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "loading library")
		}
	}
	return OptionsForJob(&models.JobMetadataRefreshData{}, library, userConfig)
}

// processBook refreshes one record. Failures are reported on the progress
// notification and swallowed so the rest of the batch proceeds.
func (o *Orchestrator) processBook(ctx context.Context, job *models.Job, bookID int, jobOpts *metadata.RefreshOptions, userConfig *config.UserConfig) itemResult {
	log := logger.FromContext(ctx)

	book, err := o.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{
		ID:               &bookID,
		IncludeRelations: true,
	})
	if err != nil {
		log.Warn("skipping missing book", logger.Data{"book_id": bookID})
		return itemResult{status: ItemStatusError, message: "book not found"}
	}

	opts := jobOpts
	if opts == nil {
		opts, err = o.bookOptions(ctx, book, userConfig)
		if err != nil {
			log.Err(err).Error("resolve refresh options error")
			return itemResult{status: ItemStatusError, message: err.Error()}
		}
	}

	if book.AllFieldsLocked() {
		return itemResult{status: ItemStatusSkipped, message: "all fields locked", reviewMode: opts.ReviewMode}
	}

	if opts.IncludesRateLimitedProvider() {
		o.sleep(o.throttleDelay())
	}

	candidates := providers.FetchTopCandidates(ctx, o.registry, opts.ProviderSet(), hintForBook(book), o.fetchTimeout)
	resolved := metadata.Resolve(opts, candidates)

	if opts.ReviewMode {
		proposal, err := o.proposalService.CreateProposal(ctx, job, book.ID, resolved)
		if err != nil {
			log.Err(err).Error("create proposal error")
			return itemResult{status: ItemStatusError, message: err.Error(), reviewMode: true}
		}
		o.publish(notifications.Event{
			Type:   notifications.EventProposalAdded,
			JobID:  &job.ID,
			BookID: &book.ID,
			Payload: map[string]interface{}{
				"proposal_id": proposal.ID,
			},
		})
		return itemResult{status: ItemStatusProposed, reviewMode: true}
	}

	changed, err := o.bookService.ApplyMetadata(ctx, book, books.ApplyMetadataOptions{
		Metadata:        resolved,
		Mode:            opts.Mode,
		MergeCategories: opts.MergeCategories,
		MergeMoods:      opts.MergeMoods,
		MergeTags:       opts.MergeTags,
		UpdateThumbnail: opts.RefreshCovers,
		UserConfig:      userConfig,
	})
	if err != nil {
		log.Err(err).Error("apply metadata error")
		return itemResult{status: ItemStatusError, message: err.Error()}
	}
	if !changed {
		return itemResult{status: ItemStatusUnchanged}
	}

	o.publish(notifications.Event{
		Type:   notifications.EventBookUpdated,
		JobID:  &job.ID,
		BookID: &book.ID,
	})
	return itemResult{status: ItemStatusUpdated}
}

func (o *Orchestrator) finish(ctx context.Context, job *models.Job, status string) {
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now

	err := o.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"status", "completed_at"}})
	if err != nil {
		logger.FromContext(ctx).Err(err).Error("finalize job error")
	}

	o.publish(notifications.Event{
		Type:  notifications.EventJobCompleted,
		JobID: &job.ID,
		Payload: map[string]interface{}{
			"status":          job.Status,
			"completed_items": job.CompletedItems,
			"total_items":     job.TotalItems,
		},
	})
}

func (o *Orchestrator) publish(event notifications.Event) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(event)
}

func hintForBook(book *models.Book) providers.BookHint {
	hint := providers.BookHint{
		Title:  book.Title,
		ISBN13: book.ISBN13,
		ISBN10: book.ISBN10,
		ASIN:   book.ASIN,
	}
	if len(book.Authors) > 0 {
		hint.AuthorName = book.Authors[0].Name
	}
	return hint
}
