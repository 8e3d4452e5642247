package models

import (
	"time"

	"github.com/uptrace/bun"
)

// File types that support embedding metadata back into the container.
const (
	FileTypeEPUB = "epub"
	FileTypeCBZ  = "cbz"
	FileTypePDF  = "pdf"
)

// Book is the catalog record for one book. Scalar bibliographic fields carry
// a companion lock flag; a locked field is never altered by automated
// resolution, including explicit clears. Multi-valued sets (authors,
// categories, moods, tags, reviews) and the cover each have one lock flag of
// their own.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LibraryID int       `bun:",nullzero" json:"library_id"`
	Library   *Library  `bun:"rel:belongs-to" json:"library,omitempty"`

	FileName    string  `bun:",nullzero" json:"file_name"`
	FileSubPath string  `json:"file_sub_path"`
	FileType    string  `bun:",nullzero" json:"file_type"`
	FileHash    *string `json:"file_hash,omitempty"`

	Title         string     `bun:",nullzero" json:"title"`
	Subtitle      *string    `json:"subtitle,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Publisher     *string    `json:"publisher,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	SeriesName    *string    `json:"series_name,omitempty"`
	SeriesNumber  *float64   `json:"series_number,omitempty"`
	SeriesTotal   *int       `json:"series_total,omitempty"`
	ISBN13        *string    `json:"isbn13,omitempty"`
	ISBN10        *string    `json:"isbn10,omitempty"`
	ASIN          *string    `json:"asin,omitempty"`
	PageCount     *int       `json:"page_count,omitempty"`
	Language      *string    `json:"language,omitempty"`

	AmazonRating         *float64 `json:"amazon_rating,omitempty"`
	AmazonReviewCount    *int     `json:"amazon_review_count,omitempty"`
	GoodreadsRating      *float64 `json:"goodreads_rating,omitempty"`
	GoodreadsReviewCount *int     `json:"goodreads_review_count,omitempty"`
	HardcoverRating      *float64 `json:"hardcover_rating,omitempty"`

	Authors    []*Author   `bun:"m2m:book_authors,join:Book=Author" json:"authors,omitempty"`
	Categories []*Category `bun:"m2m:book_categories,join:Book=Category" json:"categories,omitempty"`
	Moods      []*Mood     `bun:"m2m:book_moods,join:Book=Mood" json:"moods,omitempty"`
	Tags       []*Tag      `bun:"m2m:book_tags,join:Book=Tag" json:"tags,omitempty"`
	Reviews    []*Review   `bun:"rel:has-many" json:"reviews,omitempty"`

	TitleLocked                bool `json:"title_locked"`
	SubtitleLocked             bool `json:"subtitle_locked"`
	DescriptionLocked          bool `json:"description_locked"`
	PublisherLocked            bool `json:"publisher_locked"`
	PublishedDateLocked        bool `json:"published_date_locked"`
	SeriesNameLocked           bool `json:"series_name_locked"`
	SeriesNumberLocked         bool `json:"series_number_locked"`
	SeriesTotalLocked          bool `json:"series_total_locked"`
	ISBN13Locked               bool `json:"isbn13_locked"`
	ISBN10Locked               bool `json:"isbn10_locked"`
	ASINLocked                 bool `json:"asin_locked"`
	PageCountLocked            bool `json:"page_count_locked"`
	LanguageLocked             bool `json:"language_locked"`
	AmazonRatingLocked         bool `json:"amazon_rating_locked"`
	AmazonReviewCountLocked    bool `json:"amazon_review_count_locked"`
	GoodreadsRatingLocked      bool `json:"goodreads_rating_locked"`
	GoodreadsReviewCountLocked bool `json:"goodreads_review_count_locked"`
	HardcoverRatingLocked      bool `json:"hardcover_rating_locked"`
	AuthorsLocked              bool `json:"authors_locked"`
	CategoriesLocked           bool `json:"categories_locked"`
	MoodsLocked                bool `json:"moods_locked"`
	TagsLocked                 bool `json:"tags_locked"`
	ReviewsLocked              bool `json:"reviews_locked"`
	CoverLocked                bool `json:"cover_locked"`

	MetadataMatchScore *float64   `json:"metadata_match_score,omitempty"`
	CoverUpdatedAt     *time.Time `json:"cover_updated_at,omitempty"`
}

// AllFieldsLocked reports whether every lock flag on the record is set, in
// which case a resolution pass has nothing it is allowed to touch.
func (b *Book) AllFieldsLocked() bool {
	return b.TitleLocked &&
		b.SubtitleLocked &&
		b.DescriptionLocked &&
		b.PublisherLocked &&
		b.PublishedDateLocked &&
		b.SeriesNameLocked &&
		b.SeriesNumberLocked &&
		b.SeriesTotalLocked &&
		b.ISBN13Locked &&
		b.ISBN10Locked &&
		b.ASINLocked &&
		b.PageCountLocked &&
		b.LanguageLocked &&
		b.AmazonRatingLocked &&
		b.AmazonReviewCountLocked &&
		b.GoodreadsRatingLocked &&
		b.GoodreadsReviewCountLocked &&
		b.HardcoverRatingLocked &&
		b.AuthorsLocked &&
		b.CategoriesLocked &&
		b.MoodsLocked &&
		b.TagsLocked &&
		b.ReviewsLocked &&
		b.CoverLocked
}

// SupportsEmbeddedMetadata reports whether the book's container format can
// have metadata written back in place.
func (b *Book) SupportsEmbeddedMetadata() bool {
	switch b.FileType {
	case FileTypeEPUB, FileTypeCBZ:
		return true
	}
	return false
}
