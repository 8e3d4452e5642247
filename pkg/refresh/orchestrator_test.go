package refresh

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hondanahq/hondana/pkg/books"
	"github.com/hondanahq/hondana/pkg/config"
	"github.com/hondanahq/hondana/pkg/jobs"
	"github.com/hondanahq/hondana/pkg/metadata"
	"github.com/hondanahq/hondana/pkg/migrations"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/hondanahq/hondana/pkg/notifications"
	"github.com/hondanahq/hondana/pkg/providers"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	models.RegisterJoinModels(db)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func createTestLibrary(t *testing.T, db *bun.DB) *models.Library {
	t.Helper()

	library := &models.Library{Name: "Main", Filepath: t.TempDir()}
	_, err := db.NewInsert().Model(library).Exec(context.Background())
	require.NoError(t, err)
	return library
}

func createTestBook(t *testing.T, db *bun.DB, libraryID int, title string) *models.Book {
	t.Helper()

	book := &models.Book{
		LibraryID: libraryID,
		FileName:  title + ".epub",
		FileType:  models.FileTypeEPUB,
		Title:     title,
	}
	_, err := db.NewInsert().Model(book).Exec(context.Background())
	require.NoError(t, err)
	return book
}

type fakeClient struct {
	id          string
	rateLimited bool
	candidate   *metadata.CandidateMetadata
	fetches     int32
	onFetch     func(count int32)
}

func (f *fakeClient) ID() string        { return f.id }
func (f *fakeClient) RateLimited() bool { return f.rateLimited }

func (f *fakeClient) FetchTopCandidate(_ context.Context, _ providers.BookHint) (*metadata.CandidateMetadata, error) {
	count := atomic.AddInt32(&f.fetches, 1)
	if f.onFetch != nil {
		f.onFetch(count)
	}
	return f.candidate, nil
}

func (f *fakeClient) FetchCandidateList(ctx context.Context, hint providers.BookHint) ([]*metadata.CandidateMetadata, error) {
	cm, err := f.FetchTopCandidate(ctx, hint)
	if err != nil || cm == nil {
		return nil, err
	}
	return []*metadata.CandidateMetadata{cm}, nil
}

type recordingPublisher struct {
	events []notifications.Event
}

func (p *recordingPublisher) Publish(event notifications.Event) {
	p.events = append(p.events, event)
}

func (p *recordingPublisher) byType(eventType string) []notifications.Event {
	var out []notifications.Event
	for _, event := range p.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type fixture struct {
	db           *bun.DB
	orchestrator *Orchestrator
	bookService  *books.Service
	jobService   *jobs.Service
	cancels      *jobs.CancelRegistry
	publisher    *recordingPublisher
	client       *fakeClient
	library      *models.Library
}

func newFixture(t *testing.T, client *fakeClient) *fixture {
	t.Helper()

	db := newTestDB(t)
	cancels := jobs.NewCancelRegistry()
	publisher := &recordingPublisher{}
	bookService := books.NewService(db)
	cfg := &config.Config{ProviderFetchTimeout: 2 * time.Second}

	orchestrator := NewOrchestrator(db, cfg, providers.NewRegistry(client), cancels, publisher, bookService)
	orchestrator.sleep = func(time.Duration) {}
	orchestrator.throttleDelay = func() time.Duration { return 0 }

	return &fixture{
		db:           db,
		orchestrator: orchestrator,
		bookService:  bookService,
		jobService:   jobs.NewService(db),
		cancels:      cancels,
		publisher:    publisher,
		client:       client,
		library:      createTestLibrary(t, db),
	}
}

func (f *fixture) createJob(t *testing.T, data *models.JobMetadataRefreshData) *models.Job {
	t.Helper()

	job := &models.Job{
		Type:       models.JobTypeMetadataRefresh,
		Status:     models.JobStatusPending,
		DataParsed: data,
		LibraryID:  data.LibraryID,
	}
	require.NoError(t, f.jobService.CreateJob(context.Background(), job))
	return job
}

func rawOptions(t *testing.T, opts *metadata.RefreshOptions) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(opts)
	require.NoError(t, err)
	return raw
}

func TestProcessJobCompletes(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		id:        metadata.ProviderGoogleBooks,
		candidate: &metadata.CandidateMetadata{Title: pointerutil.String("Refreshed Title")},
	}
	f := newFixture(t, client)
	ctx := context.Background()

	var bookIDs []int
	for _, title := range []string{"One", "Two", "Three"} {
		bookIDs = append(bookIDs, createTestBook(t, f.db, f.library.ID, title).ID)
	}

	job := f.createJob(t, &models.JobMetadataRefreshData{
		LibraryID: &f.library.ID,
		Options:   rawOptions(t, &metadata.RefreshOptions{Providers: []string{metadata.ProviderGoogleBooks}}),
	})

	require.NoError(t, f.orchestrator.ProcessJob(ctx, job))

	stored, err := f.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.TotalItems)
	assert.Equal(t, 3, stored.CompletedItems)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)

	for _, id := range bookIDs {
		book, err := f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &id})
		require.NoError(t, err)
		assert.Equal(t, "Refreshed Title", book.Title)
	}

	assert.Len(t, f.publisher.byType(notifications.EventJobProgress), 3)
	assert.Len(t, f.publisher.byType(notifications.EventJobCompleted), 1)
}

func TestProcessJobCancellation(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		id:        metadata.ProviderGoogleBooks,
		candidate: &metadata.CandidateMetadata{Title: pointerutil.String("Refreshed Title")},
	}
	f := newFixture(t, client)
	ctx := context.Background()

	var bookIDs []int
	for i := 0; i < 10; i++ {
		bookIDs = append(bookIDs, createTestBook(t, f.db, f.library.ID, "Book").ID)
	}

	job := f.createJob(t, &models.JobMetadataRefreshData{
		BookIDs: bookIDs,
		Options: rawOptions(t, &metadata.RefreshOptions{Providers: []string{metadata.ProviderGoogleBooks}}),
	})

	client.onFetch = func(count int32) {
		if count == 4 {
			f.cancels.Request(job.ID)
		}
	}

	require.NoError(t, f.orchestrator.ProcessJob(ctx, job))

	stored, err := f.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)
	assert.Equal(t, 10, stored.TotalItems)
	assert.Equal(t, 4, stored.CompletedItems)
	assert.EqualValues(t, 4, atomic.LoadInt32(&client.fetches))

	// The item in flight when cancellation arrived still finished; later
	// ones were never touched.
	for i, id := range bookIDs {
		book, err := f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &id})
		require.NoError(t, err)
		if i < 4 {
			assert.Equal(t, "Refreshed Title", book.Title)
		} else {
			assert.Equal(t, "Book", book.Title)
		}
	}

	// The flag is cleared so the id can be reused.
	assert.False(t, f.cancels.Cancelled(job.ID))
}

func TestProcessJobItemIsolation(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		id:        metadata.ProviderGoogleBooks,
		candidate: &metadata.CandidateMetadata{Title: pointerutil.String("Refreshed Title")},
	}
	f := newFixture(t, client)
	ctx := context.Background()

	var bookIDs []int
	for i := 0; i < 4; i++ {
		bookIDs = append(bookIDs, createTestBook(t, f.db, f.library.ID, "Book").ID)
	}
	withMissing := append([]int{}, bookIDs[:2]...)
	withMissing = append(withMissing, 999999)
	withMissing = append(withMissing, bookIDs[2:]...)

	job := f.createJob(t, &models.JobMetadataRefreshData{
		BookIDs: withMissing,
		Options: rawOptions(t, &metadata.RefreshOptions{Providers: []string{metadata.ProviderGoogleBooks}}),
	})

	require.NoError(t, f.orchestrator.ProcessJob(ctx, job))

	stored, err := f.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, 5, stored.CompletedItems)

	for _, id := range bookIDs {
		book, err := f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &id})
		require.NoError(t, err)
		assert.Equal(t, "Refreshed Title", book.Title)
	}
}

func TestProcessJobPerBookLibraryDefaults(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		id:        metadata.ProviderGoogleBooks,
		candidate: &metadata.CandidateMetadata{Title: pointerutil.String("Refreshed Title")},
	}
	f := newFixture(t, client)
	ctx := context.Background()

	curated := &models.Library{
		Name:           "Curated",
		Filepath:       t.TempDir(),
		RefreshOptions: pointerutil.String(`{"review_mode":true,"providers":["googlebooks"]}`),
	}
	_, err := f.db.NewInsert().Model(curated).Exec(ctx)
	require.NoError(t, err)

	staged := createTestBook(t, f.db, curated.ID, "Staged")
	direct := createTestBook(t, f.db, f.library.ID, "Direct")

	// An ad-hoc book list with no options of its own: each book answers to
	// its own library's defaults.
	job := f.createJob(t, &models.JobMetadataRefreshData{BookIDs: []int{staged.ID, direct.ID}})

	require.NoError(t, f.orchestrator.ProcessJob(ctx, job))

	stored, err := f.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)

	// The curated library defaults to review mode, so its book is staged and
	// left untouched.
	book, err := f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &staged.ID})
	require.NoError(t, err)
	assert.Equal(t, "Staged", book.Title)

	proposals, err := f.orchestrator.proposalService.ListProposals(ctx, ListProposalsOptions{JobID: &job.ID})
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, staged.ID, proposals[0].BookID)

	// The other library has no defaults, so its book is written directly.
	book, err = f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &direct.ID})
	require.NoError(t, err)
	assert.Equal(t, "Refreshed Title", book.Title)
}

func TestProcessJobProgressReportsItemOutcomes(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		id:        metadata.ProviderGoogleBooks,
		candidate: &metadata.CandidateMetadata{Title: pointerutil.String("Refreshed Title")},
	}
	f := newFixture(t, client)
	ctx := context.Background()

	book := createTestBook(t, f.db, f.library.ID, "Book")
	missingID := 999999

	job := f.createJob(t, &models.JobMetadataRefreshData{
		BookIDs: []int{book.ID, missingID},
		Options: rawOptions(t, &metadata.RefreshOptions{Providers: []string{metadata.ProviderGoogleBooks}}),
	})

	require.NoError(t, f.orchestrator.ProcessJob(ctx, job))

	progress := f.publisher.byType(notifications.EventJobProgress)
	require.Len(t, progress, 2)

	byBook := map[int]map[string]interface{}{}
	for _, event := range progress {
		require.NotNil(t, event.BookID)
		payload, ok := event.Payload.(map[string]interface{})
		require.True(t, ok)
		byBook[*event.BookID] = payload
	}

	updated := byBook[book.ID]
	require.NotNil(t, updated)
	assert.Equal(t, ItemStatusUpdated, updated["status"])
	assert.Equal(t, false, updated["review_mode"])
	assert.NotContains(t, updated, "message")

	failed := byBook[missingID]
	require.NotNil(t, failed)
	assert.Equal(t, ItemStatusError, failed["status"])
	assert.Equal(t, "book not found", failed["message"])
	assert.Equal(t, 2, failed["total_items"])
}

func TestProcessJobFatalBeforeLoop(t *testing.T) {
	t.Parallel()
	client := &fakeClient{id: metadata.ProviderGoogleBooks}
	f := newFixture(t, client)
	ctx := context.Background()

	missingLibrary := 424242
	job := f.createJob(t, &models.JobMetadataRefreshData{LibraryID: &missingLibrary})

	require.Error(t, f.orchestrator.ProcessJob(ctx, job))

	stored, err := f.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, stored.Status)
	assert.Zero(t, stored.CompletedItems)
	assert.Zero(t, atomic.LoadInt32(&client.fetches))
}

func TestProcessJobSkipsFullyLockedBooks(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		id:        metadata.ProviderGoogleBooks,
		candidate: &metadata.CandidateMetadata{Title: pointerutil.String("Refreshed Title")},
	}
	f := newFixture(t, client)
	ctx := context.Background()

	locked := createTestBook(t, f.db, f.library.ID, "Locked")
	for _, def := range metadata.ScalarFields {
		def.SetLock(locked, true)
	}
	for _, def := range metadata.SetFields {
		def.SetLock(locked, true)
	}
	locked.ReviewsLocked = true
	locked.CoverLocked = true
	_, err := f.db.NewUpdate().Model(locked).WherePK().Exec(ctx)
	require.NoError(t, err)

	open := createTestBook(t, f.db, f.library.ID, "Open")

	job := f.createJob(t, &models.JobMetadataRefreshData{
		BookIDs: []int{locked.ID, open.ID},
		Options: rawOptions(t, &metadata.RefreshOptions{Providers: []string{metadata.ProviderGoogleBooks}}),
	})

	require.NoError(t, f.orchestrator.ProcessJob(ctx, job))

	// Only the open book reached the providers.
	assert.EqualValues(t, 1, atomic.LoadInt32(&client.fetches))

	stored, err := f.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.CompletedItems)

	book, err := f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &locked.ID})
	require.NoError(t, err)
	assert.Equal(t, "Locked", book.Title)
}

func TestProcessJobThrottlesRateLimitedProviders(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		id:          metadata.ProviderAmazon,
		rateLimited: true,
		candidate:   &metadata.CandidateMetadata{Title: pointerutil.String("Refreshed Title")},
	}
	f := newFixture(t, client)
	ctx := context.Background()

	sleeps := 0
	f.orchestrator.sleep = func(time.Duration) { sleeps++ }

	for i := 0; i < 3; i++ {
		createTestBook(t, f.db, f.library.ID, "Book")
	}

	job := f.createJob(t, &models.JobMetadataRefreshData{
		LibraryID: &f.library.ID,
		Options:   rawOptions(t, &metadata.RefreshOptions{Providers: []string{metadata.ProviderAmazon}}),
	})

	require.NoError(t, f.orchestrator.ProcessJob(ctx, job))
	assert.Equal(t, 3, sleeps)
}

func TestThrottleDelayRange(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		d := defaultThrottleDelay()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestProcessJobReviewMode(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		id: metadata.ProviderGoogleBooks,
		candidate: &metadata.CandidateMetadata{
			Title:       pointerutil.String("Proposed Title"),
			Description: pointerutil.String("Proposed description."),
		},
	}
	f := newFixture(t, client)
	ctx := context.Background()
	svc := f.orchestrator.proposalService

	first := createTestBook(t, f.db, f.library.ID, "First")
	second := createTestBook(t, f.db, f.library.ID, "Second")

	job := &models.Job{
		Type:   models.JobTypeMetadataRefresh,
		Status: models.JobStatusPending,
		UserID: pointerutil.Int(7),
		DataParsed: &models.JobMetadataRefreshData{
			BookIDs: []int{first.ID, second.ID},
			Options: rawOptions(t, &metadata.RefreshOptions{
				Providers:  []string{metadata.ProviderGoogleBooks},
				ReviewMode: true,
			}),
		},
	}
	require.NoError(t, f.jobService.CreateJob(ctx, job))

	require.NoError(t, f.orchestrator.ProcessJob(ctx, job))

	// Nothing merged yet.
	book, err := f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &first.ID})
	require.NoError(t, err)
	assert.Equal(t, "First", book.Title)

	proposals, err := svc.ListProposals(ctx, ListProposalsOptions{JobID: &job.ID})
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	for _, proposal := range proposals {
		assert.Equal(t, models.ProposalStatusFetched, proposal.Status)
		require.NotNil(t, proposal.CreatedByID)
		assert.Equal(t, 7, *proposal.CreatedByID)
	}
	assert.Len(t, f.publisher.byType(notifications.EventProposalAdded), 2)

	t.Run("accept merges through the same path", func(t *testing.T) {
		accepted, err := svc.AcceptProposal(ctx, proposals[0].ID, pointerutil.Int(3))
		require.NoError(t, err)
		assert.Equal(t, models.ProposalStatusAccepted, accepted.Status)
		assert.NotNil(t, accepted.ReviewedAt)
		require.NotNil(t, accepted.ReviewedByID)
		assert.Equal(t, 3, *accepted.ReviewedByID)

		book, err := f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &proposals[0].BookID})
		require.NoError(t, err)
		assert.Equal(t, "Proposed Title", book.Title)
	})

	t.Run("reviewing twice conflicts", func(t *testing.T) {
		_, err := svc.AcceptProposal(ctx, proposals[0].ID, nil)
		require.Error(t, err)

		_, err = svc.RejectProposal(ctx, proposals[0].ID, nil)
		require.Error(t, err)
	})

	t.Run("reject leaves the book untouched", func(t *testing.T) {
		rejected, err := svc.RejectProposal(ctx, proposals[1].ID, nil)
		require.NoError(t, err)
		assert.Equal(t, models.ProposalStatusRejected, rejected.Status)

		book, err := f.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &proposals[1].BookID})
		require.NoError(t, err)
		assert.Equal(t, "Second", book.Title)
	})

	t.Run("accept fails when the book is gone", func(t *testing.T) {
		third := createTestBook(t, f.db, f.library.ID, "Third")
		proposal, err := svc.CreateProposal(ctx, job, third.ID, &metadata.CandidateMetadata{
			Title: pointerutil.String("Orphaned"),
		})
		require.NoError(t, err)

		require.NoError(t, f.bookService.DeleteBook(ctx, third.ID))

		_, err = svc.AcceptProposal(ctx, proposal.ID, nil)
		require.Error(t, err)

		// Still reviewable later.
		stored, err := svc.RetrieveProposal(ctx, RetrieveProposalOptions{ID: &proposal.ID})
		require.NoError(t, err)
		assert.Equal(t, models.ProposalStatusFetched, stored.Status)
	})
}

func TestOptionsForJob(t *testing.T) {
	t.Parallel()

	t.Run("request options win over library defaults", func(t *testing.T) {
		raw, err := json.Marshal(&metadata.RefreshOptions{Mode: metadata.ReplaceModeAll})
		require.NoError(t, err)

		library := &models.Library{RefreshOptions: pointerutil.String(`{"mode":"replace_missing"}`)}
		opts, err := OptionsForJob(&models.JobMetadataRefreshData{Options: raw}, library, nil)
		require.NoError(t, err)
		assert.Equal(t, metadata.ReplaceModeAll, opts.Mode)
	})

	t.Run("library defaults apply when the request has none", func(t *testing.T) {
		library := &models.Library{RefreshOptions: pointerutil.String(`{"mode":"replace_missing","review_mode":true}`)}
		opts, err := OptionsForJob(&models.JobMetadataRefreshData{}, library, nil)
		require.NoError(t, err)
		assert.Equal(t, metadata.ReplaceModeMissing, opts.Mode)
		assert.True(t, opts.ReviewMode)
	})

	t.Run("user config cover default fills the gap", func(t *testing.T) {
		opts, err := OptionsForJob(&models.JobMetadataRefreshData{}, nil, &config.UserConfig{RefreshCoversByDefault: true})
		require.NoError(t, err)
		assert.True(t, opts.RefreshCovers)
	})

	t.Run("malformed options fail", func(t *testing.T) {
		_, err := OptionsForJob(&models.JobMetadataRefreshData{Options: json.RawMessage(`{`)}, nil, nil)
		require.Error(t, err)
	})
}
