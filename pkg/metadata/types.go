package metadata

import "time"

// Provider identifiers for the bibliographic sources candidates can come
// from. Amazon throttles aggressively, so batch jobs that include it space
// their per-book fetches out with a randomized delay.
const (
	ProviderAmazon      = "amazon"
	ProviderGoodreads   = "goodreads"
	ProviderGoogleBooks = "googlebooks"
	ProviderHardcover   = "hardcover"
)

// RateLimitedProviders are the sources a batch job must pace itself against.
var RateLimitedProviders = map[string]bool{
	ProviderAmazon: true,
}

// Field names one logical metadata field each, scalar or multi-valued. They
// key authority configuration, clear flags, and score weights.
type Field string

const (
	FieldTitle                Field = "title"
	FieldSubtitle             Field = "subtitle"
	FieldDescription          Field = "description"
	FieldPublisher            Field = "publisher"
	FieldPublishedDate        Field = "published_date"
	FieldSeriesName           Field = "series_name"
	FieldSeriesNumber         Field = "series_number"
	FieldSeriesTotal          Field = "series_total"
	FieldISBN13               Field = "isbn13"
	FieldISBN10               Field = "isbn10"
	FieldASIN                 Field = "asin"
	FieldPageCount            Field = "page_count"
	FieldLanguage             Field = "language"
	FieldAmazonRating         Field = "amazon_rating"
	FieldAmazonReviewCount    Field = "amazon_review_count"
	FieldGoodreadsRating      Field = "goodreads_rating"
	FieldGoodreadsReviewCount Field = "goodreads_review_count"
	FieldHardcoverRating      Field = "hardcover_rating"
	FieldAuthors              Field = "authors"
	FieldCategories           Field = "categories"
	FieldMoods                Field = "moods"
	FieldTags                 Field = "tags"
	FieldReviews              Field = "reviews"
	FieldCover                Field = "cover"
)

// ReplaceMode governs whether a resolved value overwrites existing data.
type ReplaceMode string

const (
	// ReplaceModeNone overwrites whenever a valid value was supplied (the
	// direct edit path).
	ReplaceModeNone ReplaceMode = ""
	// ReplaceModeAll overwrites unconditionally, including absent -> null
	// for nullable fields.
	ReplaceModeAll ReplaceMode = "replace_all"
	// ReplaceModeMissing overwrites only when the current value is empty.
	ReplaceModeMissing ReplaceMode = "replace_missing"
)

// FieldAuthority is the priority order of providers for one field, highest
// first. At most MaxAuthorityProviders entries are honored.
type FieldAuthority []string

const MaxAuthorityProviders = 4

// ClearFlags marks fields the user explicitly wants emptied, independent of
// whether a new value was supplied. Distinct from "absent in candidate":
// absent is a no-op unless replace-all forces the overwrite.
type ClearFlags map[Field]bool

// FieldLocks carries tri-state lock updates inside a metadata object. Nil
// means leave the record's lock as is.
type FieldLocks struct {
	Title                *bool `json:"title,omitempty"`
	Subtitle             *bool `json:"subtitle,omitempty"`
	Description          *bool `json:"description,omitempty"`
	Publisher            *bool `json:"publisher,omitempty"`
	PublishedDate        *bool `json:"published_date,omitempty"`
	SeriesName           *bool `json:"series_name,omitempty"`
	SeriesNumber         *bool `json:"series_number,omitempty"`
	SeriesTotal          *bool `json:"series_total,omitempty"`
	ISBN13               *bool `json:"isbn13,omitempty"`
	ISBN10               *bool `json:"isbn10,omitempty"`
	ASIN                 *bool `json:"asin,omitempty"`
	PageCount            *bool `json:"page_count,omitempty"`
	Language             *bool `json:"language,omitempty"`
	AmazonRating         *bool `json:"amazon_rating,omitempty"`
	AmazonReviewCount    *bool `json:"amazon_review_count,omitempty"`
	GoodreadsRating      *bool `json:"goodreads_rating,omitempty"`
	GoodreadsReviewCount *bool `json:"goodreads_review_count,omitempty"`
	HardcoverRating      *bool `json:"hardcover_rating,omitempty"`
	Authors              *bool `json:"authors,omitempty"`
	Categories           *bool `json:"categories,omitempty"`
	Moods                *bool `json:"moods,omitempty"`
	Tags                 *bool `json:"tags,omitempty"`
	Reviews              *bool `json:"reviews,omitempty"`
	Cover                *bool `json:"cover,omitempty"`
}

// CandidateReview is one review supplied by a provider.
type CandidateReview struct {
	Provider string     `json:"provider,omitempty"`
	Rating   *float64   `json:"rating,omitempty"`
	Title    *string    `json:"title,omitempty"`
	Body     *string    `json:"body,omitempty"`
	Reviewer *string    `json:"reviewer,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
}

// CandidateMetadata is the shape one provider returns for one book, and also
// the shape resolution produces after picking winners across providers.
// Immutable once produced; a nil pointer or empty slice means the field is
// absent.
type CandidateMetadata struct {
	Provider string `json:"provider,omitempty"`

	Title         *string    `json:"title,omitempty"`
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

	Authors    []string          `json:"authors,omitempty"`
	Categories []string          `json:"categories,omitempty"`
	Moods      []string          `json:"moods,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Reviews    []CandidateReview `json:"reviews,omitempty"`

	ThumbnailURL *string `json:"thumbnail_url,omitempty"`

	Locks FieldLocks `json:"locks,omitempty"`
}

// RefreshOptions configures one resolution pass: which providers to ask,
// which fields may be touched, the per-field authority order, replace mode,
// merge-vs-replace for the multi-valued sets, whether a human review step is
// required, and whether covers are refreshed.
type RefreshOptions struct {
	Providers        []string                 `json:"providers,omitempty"`
	Fields           map[Field]bool           `json:"fields,omitempty"`
	Authorities      map[Field]FieldAuthority `json:"authorities,omitempty"`
	DefaultAuthority FieldAuthority           `json:"default_authority,omitempty"`
	Mode             ReplaceMode              `json:"mode,omitempty"`
	MergeCategories  bool                     `json:"merge_categories"`
	MergeMoods       bool                     `json:"merge_moods"`
	MergeTags        bool                     `json:"merge_tags"`
	ReviewMode       bool                     `json:"review_mode"`
	RefreshCovers    bool                     `json:"refresh_covers"`
}

// DefaultProviderOrder is the authority order used when neither a per-field
// authority nor a default one is configured.
var DefaultProviderOrder = FieldAuthority{
	ProviderAmazon,
	ProviderGoodreads,
	ProviderGoogleBooks,
	ProviderHardcover,
}

// FieldEnabled reports whether a field may be touched by this pass. An empty
// field set means all fields are enabled.
func (o *RefreshOptions) FieldEnabled(f Field) bool {
	if len(o.Fields) == 0 {
		return true
	}
	return o.Fields[f]
}

// AuthorityFor returns the provider priority order for one field, truncated
// to MaxAuthorityProviders.
func (o *RefreshOptions) AuthorityFor(f Field) FieldAuthority {
	authority := o.Authorities[f]
	if len(authority) == 0 {
		authority = o.DefaultAuthority
	}
	if len(authority) == 0 {
		if len(o.Providers) > 0 {
			authority = FieldAuthority(o.Providers)
		} else {
			authority = DefaultProviderOrder
		}
	}
	if len(authority) > MaxAuthorityProviders {
		authority = authority[:MaxAuthorityProviders]
	}
	return authority
}

// ProviderSet returns the deduplicated list of providers this pass should
// fetch from, in a stable order.
func (o *RefreshOptions) ProviderSet() []string {
	source := o.Providers
	if len(source) == 0 {
		source = DefaultProviderOrder
	}
	seen := make(map[string]bool, len(source))
	out := make([]string, 0, len(source))
	for _, id := range source {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// IncludesRateLimitedProvider reports whether any provider in the fetch set
// is a known throttled source.
func (o *RefreshOptions) IncludesRateLimitedProvider() bool {
	for _, id := range o.ProviderSet() {
		if RateLimitedProviders[id] {
			return true
		}
	}
	return false
}
