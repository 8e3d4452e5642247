package taxonomy

import (
	"context"
	"database/sql"
	"testing"

	"github.com/hondanahq/hondana/pkg/migrations"
	"github.com/hondanahq/hondana/pkg/models"
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

func tagBook(t *testing.T, db *bun.DB, svc *Service, bookID int, name string) int {
	t.Helper()

	ctx := context.Background()
	tagID, err := svc.FindOrCreate(ctx, db, KindTags, name)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&models.BookTag{BookID: bookID, TagID: tagID}).Exec(ctx)
	require.NoError(t, err)
	return tagID
}

func bookTagNames(t *testing.T, db *bun.DB, bookID int) []string {
	t.Helper()

	var names []string
	err := db.NewRaw(
		"SELECT t.name FROM tags t INNER JOIN book_tags bt ON bt.tag_id = t.id WHERE bt.book_id = ? ORDER BY t.name ASC",
		bookID,
	).Scan(context.Background(), &names)
	require.NoError(t, err)
	return names
}

func TestFindOrCreate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	t.Run("creates and reuses by exact name", func(t *testing.T) {
		first, err := svc.FindOrCreate(ctx, db, KindAuthors, "Ursula K. Le Guin")
		require.NoError(t, err)

		second, err := svc.FindOrCreate(ctx, db, KindAuthors, "Ursula K. Le Guin")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("lookup is case sensitive", func(t *testing.T) {
		lower, err := svc.FindOrCreate(ctx, db, KindCategories, "fantasy")
		require.NoError(t, err)

		upper, err := svc.FindOrCreate(ctx, db, KindCategories, "Fantasy")
		require.NoError(t, err)
		assert.NotEqual(t, lower, upper)
	})

	t.Run("rejects blank names", func(t *testing.T) {
		_, err := svc.FindOrCreate(ctx, db, KindMoods, "   ")
		require.Error(t, err)
	})

	t.Run("rejects scalar kinds", func(t *testing.T) {
		_, err := svc.FindOrCreate(ctx, db, KindSeries, "Earthsea")
		require.Error(t, err)
	})
}

func TestConsolidateEntities(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := createTestLibrary(t, db)

	t.Run("merges values into a target and deletes the old entities", func(t *testing.T) {
		book1 := createTestBook(t, db, library.ID, "Book One")
		book2 := createTestBook(t, db, library.ID, "Book Two")

		tagBook(t, db, svc, book1.ID, "Sci-Fi")
		tagBook(t, db, svc, book2.ID, "Sci Fi")
		tagBook(t, db, svc, book2.ID, "Science Fiction")

		result, err := svc.Consolidate(ctx, KindTags, []string{"Science Fiction"}, []string{"Sci-Fi", "Sci Fi"}, ConsolidateOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, result.ValuesRemoved)
		assert.Equal(t, 2, result.BooksAffected)

		assert.Equal(t, []string{"Science Fiction"}, bookTagNames(t, db, book1.ID))
		// book2 already referenced the target; no duplicate join row.
		assert.Equal(t, []string{"Science Fiction"}, bookTagNames(t, db, book2.ID))

		count, err := db.NewSelect().Model((*models.Tag)(nil)).Where("name IN (?)", bun.In([]string{"Sci-Fi", "Sci Fi"})).Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("corrects target casing to the requested one", func(t *testing.T) {
		book := createTestBook(t, db, library.ID, "Cased Book")
		tagBook(t, db, svc, book.ID, "HORROR")
		tagBook(t, db, svc, book.ID, "scary")

		_, err := svc.Consolidate(ctx, KindTags, []string{"Horror"}, []string{"scary"}, ConsolidateOptions{})
		require.NoError(t, err)

		assert.Equal(t, []string{"Horror"}, bookTagNames(t, db, book.ID))
	})

	t.Run("unknown merge values are skipped", func(t *testing.T) {
		result, err := svc.Consolidate(ctx, KindTags, []string{"Science Fiction"}, []string{"No Such Tag"}, ConsolidateOptions{})
		require.NoError(t, err)
		assert.Zero(t, result.ValuesRemoved)
	})
}

func TestConsolidateScalar(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := createTestLibrary(t, db)

	t.Run("requires exactly one target", func(t *testing.T) {
		_, err := svc.Consolidate(ctx, KindSeries, []string{"Earthsea", "Earthsea Cycle"}, []string{"earthsea"}, ConsolidateOptions{})
		require.Error(t, err)

		_, err = svc.Consolidate(ctx, KindPublisher, []string{"A", "B"}, []string{"c"}, ConsolidateOptions{})
		require.Error(t, err)

		_, err = svc.Consolidate(ctx, KindLanguage, []string{"en", "en-US"}, []string{"english"}, ConsolidateOptions{})
		require.Error(t, err)
	})

	t.Run("arity failure touches no record", func(t *testing.T) {
		book := createTestBook(t, db, library.ID, "Untouched")
		_, err := db.NewUpdate().Model(book).Set("series_name = ?", "Old Series").WherePK().Exec(ctx)
		require.NoError(t, err)

		_, err = svc.Consolidate(ctx, KindSeries, []string{"New", "Names"}, []string{"Old Series"}, ConsolidateOptions{})
		require.Error(t, err)

		err = db.NewSelect().Model(book).WherePK().Scan(ctx)
		require.NoError(t, err)
		require.NotNil(t, book.SeriesName)
		assert.Equal(t, "Old Series", *book.SeriesName)
	})

	t.Run("rewrites the scalar column case-insensitively", func(t *testing.T) {
		book1 := createTestBook(t, db, library.ID, "Series Book One")
		book2 := createTestBook(t, db, library.ID, "Series Book Two")
		for _, pair := range []struct {
			id   int
			name string
		}{{book1.ID, "earthsea cycle"}, {book2.ID, "EARTHSEA CYCLE"}} {
			_, err := db.NewUpdate().Model((*models.Book)(nil)).Set("series_name = ?", pair.name).Where("id = ?", pair.id).Exec(ctx)
			require.NoError(t, err)
		}

		result, err := svc.Consolidate(ctx, KindSeries, []string{"Earthsea Cycle"}, []string{"earthsea cycle"}, ConsolidateOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, result.BooksAffected)

		var names []string
		err = db.NewRaw("SELECT series_name FROM books WHERE id IN (?, ?)", book1.ID, book2.ID).Scan(ctx, &names)
		require.NoError(t, err)
		assert.Equal(t, []string{"Earthsea Cycle", "Earthsea Cycle"}, names)
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := createTestLibrary(t, db)

	t.Run("removes entity values with no replacement", func(t *testing.T) {
		book := createTestBook(t, db, library.ID, "Tagged Book")
		tagBook(t, db, svc, book.ID, "Keep")
		tagBook(t, db, svc, book.ID, "Drop")

		result, err := svc.Delete(ctx, KindTags, []string{"drop"}, ConsolidateOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.ValuesRemoved)

		assert.Equal(t, []string{"Keep"}, bookTagNames(t, db, book.ID))
	})

	t.Run("clears scalar values", func(t *testing.T) {
		book := createTestBook(t, db, library.ID, "Published Book")
		_, err := db.NewUpdate().Model(book).Set("publisher = ?", "Defunct Press").WherePK().Exec(ctx)
		require.NoError(t, err)

		_, err = svc.Delete(ctx, KindPublisher, []string{"defunct press"}, ConsolidateOptions{})
		require.NoError(t, err)

		err = db.NewSelect().Model(book).WherePK().Scan(ctx)
		require.NoError(t, err)
		assert.Nil(t, book.Publisher)
	})
}

func TestCleanupOrphans(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.FindOrCreate(ctx, db, KindMoods, "Melancholy")
	require.NoError(t, err)

	removed, err := svc.CleanupOrphans(ctx, db, KindMoods)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"authors", "categories", "moods", "tags", "series", "publisher", "language"} {
		kind, err := ParseKind(valid)
		require.NoError(t, err)
		assert.Equal(t, Kind(valid), kind)
	}

	_, err := ParseKind("narrators")
	require.Error(t, err)

	assert.True(t, KindSeries.SingleTarget())
	assert.False(t, KindTags.SingleTarget())
}
