package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE libraries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				filepath TEXT NOT NULL,
				refresh_options TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				library_id INTEGER REFERENCES libraries (id) NOT NULL,
				file_name TEXT NOT NULL,
				file_sub_path TEXT NOT NULL DEFAULT '',
				file_type TEXT NOT NULL,
				file_hash TEXT,
				title TEXT NOT NULL,
				subtitle TEXT,
				description TEXT,
				publisher TEXT,
				published_date TIMESTAMPTZ,
				series_name TEXT,
				series_number REAL,
				series_total INTEGER,
				isbn13 TEXT,
				isbn10 TEXT,
				asin TEXT,
				page_count INTEGER,
				language TEXT,
				amazon_rating REAL,
				amazon_review_count INTEGER,
				goodreads_rating REAL,
				goodreads_review_count INTEGER,
				hardcover_rating REAL,
				title_locked BOOLEAN NOT NULL DEFAULT FALSE,
				subtitle_locked BOOLEAN NOT NULL DEFAULT FALSE,
				description_locked BOOLEAN NOT NULL DEFAULT FALSE,
				publisher_locked BOOLEAN NOT NULL DEFAULT FALSE,
				published_date_locked BOOLEAN NOT NULL DEFAULT FALSE,
				series_name_locked BOOLEAN NOT NULL DEFAULT FALSE,
				series_number_locked BOOLEAN NOT NULL DEFAULT FALSE,
				series_total_locked BOOLEAN NOT NULL DEFAULT FALSE,
				isbn13_locked BOOLEAN NOT NULL DEFAULT FALSE,
				isbn10_locked BOOLEAN NOT NULL DEFAULT FALSE,
				asin_locked BOOLEAN NOT NULL DEFAULT FALSE,
				page_count_locked BOOLEAN NOT NULL DEFAULT FALSE,
				language_locked BOOLEAN NOT NULL DEFAULT FALSE,
				amazon_rating_locked BOOLEAN NOT NULL DEFAULT FALSE,
				amazon_review_count_locked BOOLEAN NOT NULL DEFAULT FALSE,
				goodreads_rating_locked BOOLEAN NOT NULL DEFAULT FALSE,
				goodreads_review_count_locked BOOLEAN NOT NULL DEFAULT FALSE,
				hardcover_rating_locked BOOLEAN NOT NULL DEFAULT FALSE,
				authors_locked BOOLEAN NOT NULL DEFAULT FALSE,
				categories_locked BOOLEAN NOT NULL DEFAULT FALSE,
				moods_locked BOOLEAN NOT NULL DEFAULT FALSE,
				tags_locked BOOLEAN NOT NULL DEFAULT FALSE,
				reviews_locked BOOLEAN NOT NULL DEFAULT FALSE,
				cover_locked BOOLEAN NOT NULL DEFAULT FALSE,
				metadata_match_score REAL,
				cover_updated_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_library_id ON books (library_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_series_name ON books (series_name)`)
		if err != nil {
			return errors.WithStack(err)
		}

		for _, entityTable := range []string{"authors", "categories", "moods", "tags"} {
			_, err = db.Exec(`
				CREATE TABLE ` + entityTable + ` (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
					name TEXT NOT NULL
				)
`)
			if err != nil {
				return errors.WithStack(err)
			}
			_, err = db.Exec(`CREATE UNIQUE INDEX ux_` + entityTable + `_name ON ` + entityTable + ` (name)`)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		joins := map[string][2]string{
			"book_authors":    {"authors", "author_id"},
			"book_categories": {"categories", "category_id"},
			"book_moods":      {"moods", "mood_id"},
			"book_tags":       {"tags", "tag_id"},
		}
		for joinTable, ref := range joins {
			_, err = db.Exec(`
				CREATE TABLE ` + joinTable + ` (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					book_id INTEGER REFERENCES books (id) NOT NULL,
					` + ref[1] + ` INTEGER REFERENCES ` + ref[0] + ` (id) NOT NULL
				)
`)
			if err != nil {
				return errors.WithStack(err)
			}
			_, err = db.Exec(`CREATE UNIQUE INDEX ux_` + joinTable + `_book_id_` + ref[1] + ` ON ` + joinTable + ` (book_id, ` + ref[1] + `)`)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		_, err = db.Exec(`
			CREATE TABLE reviews (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id INTEGER REFERENCES books (id) NOT NULL,
				provider TEXT NOT NULL,
				rating REAL,
				title TEXT,
				body TEXT,
				reviewer TEXT,
				date TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_reviews_book_id ON reviews (book_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				data TEXT NOT NULL,
				total_items INTEGER NOT NULL DEFAULT 0,
				completed_items INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMPTZ,
				completed_at TIMESTAMPTZ,
				user_id INTEGER,
				library_id INTEGER REFERENCES libraries (id),
				process_id TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_jobs_status ON jobs (status)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE proposals (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				job_id INTEGER REFERENCES jobs (id) NOT NULL,
				book_id INTEGER NOT NULL,
				status TEXT NOT NULL,
				metadata TEXT NOT NULL,
				created_by_id INTEGER,
				reviewed_by_id INTEGER,
				reviewed_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_proposals_job_id ON proposals (job_id)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{
			"proposals", "jobs", "reviews",
			"book_tags", "book_moods", "book_categories", "book_authors",
			"tags", "moods", "categories", "authors",
			"books", "libraries",
		} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
