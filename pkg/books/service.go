package books

import (
	"context"
	"database/sql"
	"time"

	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/hondanahq/hondana/pkg/taxonomy"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID        *int
	LibraryID *int

	// IncludeRelations loads authors, categories, moods, tags, and reviews.
	// The merge engine needs them; plain catalog reads usually do too.
	IncludeRelations bool
}

type ListBooksOptions struct {
	Limit     *int
	Offset    *int
	LibraryID *int
	IDs       []int

	IncludeRelations bool

	includeTotal bool
}

type UpdateBookOptions struct {
	Columns []string
}

type Service struct {
	db              *bun.DB
	taxonomyService *taxonomy.Service

	thumbnails ThumbnailCreator
	writer     MetadataWriter
	mover      FileMover
}

func NewService(db *bun.DB) *Service {
	return &Service{
		db:              db,
		taxonomyService: taxonomy.NewService(db),
		writer:          &sidecarWriter{},
		mover:           &patternMover{},
	}
}

// SetThumbnailCreator wires the thumbnail collaborator. Without one,
// candidate thumbnail URLs are ignored.
func (svc *Service) SetThumbnailCreator(tc ThumbnailCreator) {
	svc.thumbnails = tc
}

// SetMetadataWriter overrides the file metadata writer.
func (svc *Service) SetMetadataWriter(w MetadataWriter) {
	svc.writer = w
}

// SetFileMover overrides the file relocation collaborator.
func (svc *Service) SetFileMover(m FileMover) {
	svc.mover = m
}

func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewInsert().
			Model(book).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		if err := svc.replaceEntitySet(ctx, tx, book.ID, taxonomy.KindAuthors, entityNames(book.Authors)); err != nil {
			return err
		}
		if err := svc.replaceEntitySet(ctx, tx, book.ID, taxonomy.KindCategories, categoryNames(book.Categories)); err != nil {
			return err
		}
		if err := svc.replaceEntitySet(ctx, tx, book.ID, taxonomy.KindMoods, moodNames(book.Moods)); err != nil {
			return err
		}
		return svc.replaceEntitySet(ctx, tx, book.ID, taxonomy.KindTags, tagNames(book.Tags))
	})
	return err
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book)

	if opts.IncludeRelations {
		q = q.
			Relation("Authors").
			Relation("Categories").
			Relation("Moods").
			Relation("Tags").
			Relation("Reviews")
	}
	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.LibraryID != nil {
		q = q.Where("b.library_id = ?", *opts.LibraryID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	books, _, err := svc.listBooksWithTotal(ctx, opts)
	return books, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	var books []*models.Book
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&books).
		Order("b.id ASC")

	if opts.IncludeRelations {
		q = q.
			Relation("Authors").
			Relation("Categories").
			Relation("Moods").
			Relation("Tags").
			Relation("Reviews")
	}
	if opts.LibraryID != nil {
		q = q.Where("b.library_id = ?", *opts.LibraryID)
	}
	if len(opts.IDs) > 0 {
		q = q.Where("b.id IN (?)", bun.In(opts.IDs))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

// ListBookIDs resolves the stable, deterministic id order a batch job walks.
func (svc *Service) ListBookIDs(ctx context.Context, libraryID *int, ids []int) ([]int, error) {
	var out []int

	q := svc.db.
		NewSelect().
		Model((*models.Book)(nil)).
		Column("b.id").
		Order("b.id ASC")

	if libraryID != nil {
		q = q.Where("b.library_id = ?", *libraryID)
	}
	if len(ids) > 0 {
		q = q.Where("b.id IN (?)", bun.In(ids))
	}

	err := q.Scan(ctx, &out)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return out, nil
}

func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	book.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Book")
		}
		return errors.WithStack(err)
	}
	return nil
}

func (svc *Service) DeleteBook(ctx context.Context, bookID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []interface{}{
			(*models.BookAuthor)(nil),
			(*models.BookCategory)(nil),
			(*models.BookMood)(nil),
			(*models.BookTag)(nil),
		} {
			_, err := tx.NewDelete().Model(model).Where("book_id = ?", bookID).Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		_, err := tx.NewDelete().Model((*models.Review)(nil)).Where("book_id = ?", bookID).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().Model((*models.Book)(nil)).Where("id = ?", bookID).Exec(ctx)
		return errors.WithStack(err)
	})
}

func entityNames(authors []*models.Author) []string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		names = append(names, a.Name)
	}
	return names
}

func categoryNames(categories []*models.Category) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}

func moodNames(moods []*models.Mood) []string {
	names := make([]string, 0, len(moods))
	for _, m := range moods {
		names = append(names, m.Name)
	}
	return names
}

func tagNames(tags []*models.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}
