package books

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hondanahq/hondana/pkg/config"
	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/hondanahq/hondana/pkg/fileutils"
	"github.com/hondanahq/hondana/pkg/metadata"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/hondanahq/hondana/pkg/sidecar"
	"github.com/hondanahq/hondana/pkg/taxonomy"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

const maxReviewsPerProvider = 5

// ThumbnailCreator downloads and stores a cover image for a book. The URL is
// validated before any request goes out.
type ThumbnailCreator interface {
	CreateFromURL(ctx context.Context, bookID int, url string) (string, error)
}

// MetadataWriter embeds the current catalog metadata into the book's file
// (or a companion document) and regenerates the content hash afterwards.
type MetadataWriter interface {
	WriteMetadata(ctx context.Context, book *models.Book) error
	RegenerateHash(ctx context.Context, book *models.Book) (string, error)
}

// FileMover relocates a book's file to match the library naming pattern.
type FileMover interface {
	MoveIfNeeded(ctx context.Context, book *models.Book) (moved bool, newName, newSubPath string, err error)
}

// ApplyMetadataOptions configures one merge pass over a single record.
type ApplyMetadataOptions struct {
	Metadata        *metadata.CandidateMetadata
	Clear           metadata.ClearFlags
	Mode            metadata.ReplaceMode
	MergeCategories bool
	MergeMoods      bool
	MergeTags       bool
	UpdateThumbnail bool

	// UserConfig overrides the global user config; nil loads it.
	UserConfig *config.UserConfig
}

// bookMetadataColumns is every column the merge engine may touch on the book
// row.
var bookMetadataColumns = []string{
	"title", "subtitle", "description", "publisher", "published_date",
	"series_name", "series_number", "series_total",
	"isbn13", "isbn10", "asin", "page_count", "language",
	"amazon_rating", "amazon_review_count",
	"goodreads_rating", "goodreads_review_count", "hardcover_rating",
	"title_locked", "subtitle_locked", "description_locked",
	"publisher_locked", "published_date_locked",
	"series_name_locked", "series_number_locked", "series_total_locked",
	"isbn13_locked", "isbn10_locked", "asin_locked",
	"page_count_locked", "language_locked",
	"amazon_rating_locked", "amazon_review_count_locked",
	"goodreads_rating_locked", "goodreads_review_count_locked",
	"hardcover_rating_locked",
	"authors_locked", "categories_locked", "moods_locked", "tags_locked",
	"reviews_locked", "cover_locked",
	"metadata_match_score", "cover_updated_at",
}

type plannedSet struct {
	def   metadata.SetField
	names []string
}

// ApplyMetadata merges a resolved metadata object onto a book record inside
// one transaction. The book must be loaded with its relations. Returns
// whether anything was written; when nothing differs and no thumbnail is
// due, the whole operation short-circuits without touching storage.
func (svc *Service) ApplyMetadata(ctx context.Context, book *models.Book, opts ApplyMetadataOptions) (bool, error) {
	m := opts.Metadata
	if m == nil {
		m = &metadata.CandidateMetadata{}
	}

	valueChanged := svc.planScalars(book, m, opts)

	plannedSets, setsChanged := svc.planSets(book, m, opts)
	valueChanged = valueChanged || setsChanged

	reviewInserts, reviewDeletes := planReviews(book, m, opts)
	valueChanged = valueChanged || len(reviewInserts) > 0 || len(reviewDeletes) > 0

	lockChanged := locksDiffer(book, m)

	thumbnailDue := metadata.CoverAllowed(book.CoverLocked, opts.UpdateThumbnail) &&
		m.ThumbnailURL != nil &&
		strings.TrimSpace(*m.ThumbnailURL) != "" &&
		svc.thumbnails != nil

	if !valueChanged && !lockChanged && !thumbnailDue {
		return false, nil
	}

	// The download happens before the transaction so a slow remote host
	// never holds a write lock. A rejected or failing URL is treated as no
	// thumbnail, not as a merge failure.
	if thumbnailDue {
		if _, err := svc.thumbnails.CreateFromURL(ctx, book.ID, *m.ThumbnailURL); err != nil {
			log := logger.FromContext(ctx)
			log.Warn("skipping candidate thumbnail", logger.Data{"book_id": book.ID, "error": err.Error()})
			thumbnailDue = false
			if !valueChanged && !lockChanged {
				return false, nil
			}
		}
	}
	if thumbnailDue {
		now := time.Now()
		book.CoverUpdatedAt = &now
	}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, planned := range plannedSets {
			if err := svc.applySet(ctx, tx, book, planned); err != nil {
				return err
			}
		}

		if err := svc.applyReviews(ctx, tx, book, reviewInserts, reviewDeletes); err != nil {
			return err
		}

		applyLocks(book, m)

		score := metadata.Score(book, nil)
		book.MetadataMatchScore = &score
		book.UpdatedAt = time.Now()

		columns := append([]string{}, bookMetadataColumns...)
		columns = append(columns, "updated_at")

		_, err := tx.
			NewUpdate().
			Model(book).
			Column(columns...).
			WherePK().
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return false, err
	}

	if valueChanged {
		if err := svc.runFileSideEffects(ctx, book, opts.UserConfig); err != nil {
			return true, err
		}
	}

	return true, nil
}

// UpdateMetadata is the direct single-record path. Unlike the batch path,
// a fully locked record is rejected rather than silently skipped.
func (svc *Service) UpdateMetadata(ctx context.Context, bookID int, opts ApplyMetadataOptions) (*models.Book, error) {
	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &bookID, IncludeRelations: true})
	if err != nil {
		return nil, err
	}

	cm := opts.Metadata
	if cm == nil {
		cm = &metadata.CandidateMetadata{}
	}
	if book.AllFieldsLocked() && !locksDiffer(book, cm) {
		return nil, errcodes.Locked("Book")
	}

	if _, err := svc.ApplyMetadata(ctx, book, opts); err != nil {
		return nil, err
	}

	return svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &bookID, IncludeRelations: true})
}

// planScalars mutates the in-memory record per the field policy and reports
// whether any value actually differs.
func (svc *Service) planScalars(book *models.Book, m *metadata.CandidateMetadata, opts ApplyMetadataOptions) bool {
	changed := false

	for _, def := range metadata.ScalarFields {
		current := def.Current(book)
		candidate := def.Candidate(m)

		action := metadata.DecideScalar(
			def.Locked(book),
			opts.Clear[def.Field],
			opts.Mode,
			metadata.Valid(current),
			metadata.Valid(candidate),
			def.Nullable,
		)

		switch action {
		case metadata.ActionClear:
			if !def.Nullable {
				continue
			}
			def.Set(book, nil)
			changed = true
		case metadata.ActionSet:
			if metadata.Equal(current, candidate) {
				continue
			}
			def.Set(book, candidate)
			changed = true
		}
	}

	return changed
}

// planSets decides the desired membership of each multi-valued set and
// reports whether any differs from the current one.
func (svc *Service) planSets(book *models.Book, m *metadata.CandidateMetadata, opts ApplyMetadataOptions) ([]plannedSet, bool) {
	var planned []plannedSet
	changed := false

	for _, def := range metadata.SetFields {
		candidate := def.Candidate(m)
		current := currentSetNames(book, def.Field)

		action := metadata.DecideSet(
			def.Locked(book),
			opts.Clear[def.Field],
			opts.Mode,
			len(current) == 0,
			len(candidate) > 0,
		)

		var desired []string
		switch action {
		case metadata.ActionSkip:
			continue
		case metadata.ActionClear:
			desired = nil
		case metadata.ActionSet:
			if setMergeFor(def.Field, opts) {
				desired = unionNames(current, candidate)
			} else {
				desired = dedupeNames(candidate)
			}
		}

		if sameNames(current, desired) {
			continue
		}

		planned = append(planned, plannedSet{def: def, names: desired})
		changed = true
	}

	return planned, changed
}

// applySet rewrites one set's join rows to the desired membership and
// refreshes the relation on the record so the score sees it.
func (svc *Service) applySet(ctx context.Context, tx bun.IDB, book *models.Book, planned plannedSet) error {
	kind := kindForField(planned.def.Field)

	if err := svc.replaceEntitySet(ctx, tx, book.ID, kind, planned.names); err != nil {
		return err
	}

	switch planned.def.Field {
	case metadata.FieldAuthors:
		book.Authors = nil
		for _, name := range planned.names {
			book.Authors = append(book.Authors, &models.Author{Name: name})
		}
	case metadata.FieldCategories:
		book.Categories = nil
		for _, name := range planned.names {
			book.Categories = append(book.Categories, &models.Category{Name: name})
		}
	case metadata.FieldMoods:
		book.Moods = nil
		for _, name := range planned.names {
			book.Moods = append(book.Moods, &models.Mood{Name: name})
		}
	case metadata.FieldTags:
		book.Tags = nil
		for _, name := range planned.names {
			book.Tags = append(book.Tags, &models.Tag{Name: name})
		}
	}

	return nil
}

// replaceEntitySet points a book's join rows at exactly the named entities,
// creating them as needed.
func (svc *Service) replaceEntitySet(ctx context.Context, tx bun.IDB, bookID int, kind taxonomy.Kind, names []string) error {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		id, err := svc.taxonomyService.FindOrCreate(ctx, tx, kind, name)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	var deleteModel interface{}
	switch kind {
	case taxonomy.KindAuthors:
		deleteModel = (*models.BookAuthor)(nil)
	case taxonomy.KindCategories:
		deleteModel = (*models.BookCategory)(nil)
	case taxonomy.KindMoods:
		deleteModel = (*models.BookMood)(nil)
	case taxonomy.KindTags:
		deleteModel = (*models.BookTag)(nil)
	default:
		return errors.Errorf("kind %s has no join table", kind)
	}

	_, err := tx.NewDelete().Model(deleteModel).Where("book_id = ?", bookID).Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, id := range ids {
		var join interface{}
		switch kind {
		case taxonomy.KindAuthors:
			join = &models.BookAuthor{BookID: bookID, AuthorID: id}
		case taxonomy.KindCategories:
			join = &models.BookCategory{BookID: bookID, CategoryID: id}
		case taxonomy.KindMoods:
			join = &models.BookMood{BookID: bookID, MoodID: id}
		case taxonomy.KindTags:
			join = &models.BookTag{BookID: bookID, TagID: id}
		}
		if _, err := tx.NewInsert().Model(join).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// planReviews works out which review rows to insert and which existing rows
// the per-provider cap pushes out. The cap is unconditional: it applies on
// every write, whatever the merge mode.
func planReviews(book *models.Book, m *metadata.CandidateMetadata, opts ApplyMetadataOptions) (inserts []*models.Review, deletes []int) {
	if book.ReviewsLocked {
		return nil, nil
	}

	if opts.Clear[metadata.FieldReviews] {
		for _, review := range book.Reviews {
			deletes = append(deletes, review.ID)
		}
		book.Reviews = nil
		return nil, deletes
	}

	if len(m.Reviews) == 0 {
		return nil, nil
	}

	for _, cr := range m.Reviews {
		inserts = append(inserts, &models.Review{
			BookID:   book.ID,
			Provider: cr.Provider,
			Rating:   cr.Rating,
			Title:    cr.Title,
			Body:     cr.Body,
			Reviewer: cr.Reviewer,
			Date:     cr.Date,
		})
	}

	combined := append(append([]*models.Review{}, book.Reviews...), inserts...)
	keep := capReviews(combined)

	kept := make(map[*models.Review]bool, len(keep))
	for _, review := range keep {
		kept[review] = true
	}

	finalInserts := make([]*models.Review, 0, len(inserts))
	for _, review := range inserts {
		if kept[review] {
			finalInserts = append(finalInserts, review)
		}
	}
	for _, review := range book.Reviews {
		if !kept[review] {
			deletes = append(deletes, review.ID)
		}
	}

	book.Reviews = keep
	return finalInserts, deletes
}

// capReviews keeps the 5 most recent reviews per provider, newest first,
// reviews without a date last.
func capReviews(reviews []*models.Review) []*models.Review {
	byProvider := make(map[string][]*models.Review)
	var providerOrder []string
	for _, review := range reviews {
		if _, ok := byProvider[review.Provider]; !ok {
			providerOrder = append(providerOrder, review.Provider)
		}
		byProvider[review.Provider] = append(byProvider[review.Provider], review)
	}

	var keep []*models.Review
	for _, provider := range providerOrder {
		group := byProvider[provider]
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i].Date, group[j].Date
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			return a.After(*b)
		})
		if len(group) > maxReviewsPerProvider {
			group = group[:maxReviewsPerProvider]
		}
		keep = append(keep, group...)
	}

	return keep
}

func (svc *Service) applyReviews(ctx context.Context, tx bun.IDB, book *models.Book, inserts []*models.Review, deletes []int) error {
	if len(deletes) > 0 {
		_, err := tx.NewDelete().
			Model((*models.Review)(nil)).
			Where("id IN (?)", bun.In(deletes)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	now := time.Now()
	for _, review := range inserts {
		review.CreatedAt = now
		review.UpdatedAt = now
		if _, err := tx.NewInsert().Model(review).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}

// locksDiffer reports whether any non-nil incoming lock differs from the
// record's current flag.
func locksDiffer(book *models.Book, cm *metadata.CandidateMetadata) bool {
	for _, def := range metadata.ScalarFields {
		if l := def.CandidateLock(cm); l != nil && *l != def.Locked(book) {
			return true
		}
	}
	for _, def := range metadata.SetFields {
		if l := def.CandidateLock(cm); l != nil && *l != def.Locked(book) {
			return true
		}
	}
	if l := cm.Locks.Reviews; l != nil && *l != book.ReviewsLocked {
		return true
	}
	if l := cm.Locks.Cover; l != nil && *l != book.CoverLocked {
		return true
	}
	return false
}

// applyLocks writes the incoming lock flags last; nil means leave as is.
func applyLocks(book *models.Book, cm *metadata.CandidateMetadata) {
	for _, def := range metadata.ScalarFields {
		if l := def.CandidateLock(cm); l != nil {
			def.SetLock(book, *l)
		}
	}
	for _, def := range metadata.SetFields {
		if l := def.CandidateLock(cm); l != nil {
			def.SetLock(book, *l)
		}
	}
	if l := cm.Locks.Reviews; l != nil {
		book.ReviewsLocked = *l
	}
	if l := cm.Locks.Cover; l != nil {
		book.CoverLocked = *l
	}
}

// runFileSideEffects embeds metadata into the file and relocates it per the
// user config. Only invoked after a value-level change.
func (svc *Service) runFileSideEffects(ctx context.Context, book *models.Book, userConfig *config.UserConfig) error {
	if userConfig == nil {
		loaded, err := config.User()
		if err != nil {
			return err
		}
		userConfig = loaded
	}

	if !userConfig.SaveMetadataToFile && !userConfig.MoveFilesToPattern {
		return nil
	}

	if book.Library == nil {
		library := &models.Library{}
		err := svc.db.NewSelect().Model(library).Where("l.id = ?", book.LibraryID).Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		book.Library = library
	}

	if userConfig.SaveMetadataToFile && book.SupportsEmbeddedMetadata() && svc.writer != nil {
		if err := svc.writer.WriteMetadata(ctx, book); err != nil {
			return err
		}
		hash, err := svc.writer.RegenerateHash(ctx, book)
		if err != nil {
			return err
		}
		book.FileHash = &hash
		if err := svc.UpdateBook(ctx, book, UpdateBookOptions{Columns: []string{"file_hash"}}); err != nil {
			return err
		}
	}

	if userConfig.MoveFilesToPattern && svc.mover != nil {
		moved, newName, newSubPath, err := svc.mover.MoveIfNeeded(ctx, book)
		if err != nil {
			return err
		}
		if moved {
			book.FileName = newName
			book.FileSubPath = newSubPath
			if err := svc.UpdateBook(ctx, book, UpdateBookOptions{Columns: []string{"file_name", "file_sub_path"}}); err != nil {
				return err
			}
		}
	}

	return nil
}

// RewriteBookFiles re-embeds metadata for the given books. Used by the
// consolidation engine after bulk changes; locks are not consulted.
func (svc *Service) RewriteBookFiles(ctx context.Context, bookIDs []int) error {
	log := logger.FromContext(ctx)

	for _, id := range bookIDs {
		book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &id, IncludeRelations: true})
		if err != nil {
			log.Warn("skipping file rewrite for missing book", logger.Data{"book_id": id})
			continue
		}
		if !book.SupportsEmbeddedMetadata() || svc.writer == nil {
			continue
		}

		if book.Library == nil {
			library := &models.Library{}
			err := svc.db.NewSelect().Model(library).Where("l.id = ?", book.LibraryID).Scan(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			book.Library = library
		}

		if err := svc.writer.WriteMetadata(ctx, book); err != nil {
			log.Err(err).Error("failed to rewrite book file")
			continue
		}
		hash, err := svc.writer.RegenerateHash(ctx, book)
		if err != nil {
			continue
		}
		book.FileHash = &hash
		if err := svc.UpdateBook(ctx, book, UpdateBookOptions{Columns: []string{"file_hash"}}); err != nil {
			return err
		}
	}

	return nil
}

func bookAbsolutePath(book *models.Book) string {
	root := ""
	if book.Library != nil {
		root = book.Library.Filepath
	}
	return filepath.Join(root, book.FileSubPath, book.FileName)
}

// sidecarWriter is the default MetadataWriter: it stores the metadata in a
// companion JSON document next to the book file.
type sidecarWriter struct{}

func (w *sidecarWriter) WriteMetadata(_ context.Context, book *models.Book) error {
	return sidecar.Write(bookAbsolutePath(book), sidecar.FromBook(book))
}

func (w *sidecarWriter) RegenerateHash(_ context.Context, book *models.Book) (string, error) {
	return fileutils.HashFile(bookAbsolutePath(book))
}

const defaultOrganizePattern = "{author}/{series}"

// patternMover is the default FileMover: it relocates the file under a
// directory layout derived from the book's metadata.
type patternMover struct{}

func (m *patternMover) MoveIfNeeded(_ context.Context, book *models.Book) (bool, string, string, error) {
	if book.Library == nil {
		return false, "", "", nil
	}

	newSubPath := fileutils.RenderPattern(defaultOrganizePattern, fileutils.PatternDataForBook(book))
	if newSubPath == book.FileSubPath {
		return false, "", "", nil
	}

	oldPath := bookAbsolutePath(book)
	newPath := filepath.Join(book.Library.Filepath, newSubPath, book.FileName)
	newPath = fileutils.GenerateUniqueFilepathIfExists(newPath)

	if err := fileutils.MoveFile(oldPath, newPath); err != nil {
		return false, "", "", err
	}

	// Carry any sidecar along with the file; missing sidecars are fine.
	_ = fileutils.MoveFile(sidecar.Path(oldPath), sidecar.Path(newPath))

	return true, filepath.Base(newPath), newSubPath, nil
}

func currentSetNames(book *models.Book, f metadata.Field) []string {
	switch f {
	case metadata.FieldAuthors:
		return entityNames(book.Authors)
	case metadata.FieldCategories:
		return categoryNames(book.Categories)
	case metadata.FieldMoods:
		return moodNames(book.Moods)
	case metadata.FieldTags:
		return tagNames(book.Tags)
	}
	return nil
}

func kindForField(f metadata.Field) taxonomy.Kind {
	switch f {
	case metadata.FieldAuthors:
		return taxonomy.KindAuthors
	case metadata.FieldCategories:
		return taxonomy.KindCategories
	case metadata.FieldMoods:
		return taxonomy.KindMoods
	case metadata.FieldTags:
		return taxonomy.KindTags
	}
	return ""
}

func setMergeFor(f metadata.Field, opts ApplyMetadataOptions) bool {
	switch f {
	case metadata.FieldCategories:
		return opts.MergeCategories
	case metadata.FieldMoods:
		return opts.MergeMoods
	case metadata.FieldTags:
		return opts.MergeTags
	}
	return false
}

func dedupeNames(names []string) []string {
	var out []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func unionNames(current, candidate []string) []string {
	return dedupeNames(append(append([]string{}, current...), candidate...))
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, name := range a {
		seen[name] = true
	}
	for _, name := range b {
		if !seen[name] {
			return false
		}
	}
	return true
}
