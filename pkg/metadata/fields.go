package metadata

import (
	"strings"
	"time"

	"github.com/hondanahq/hondana/pkg/models"
)

// Every field is one row in a declarative table: how to read it from a
// candidate, how to read and write it on the record, and where its lock flag
// lives. Resolution, merging, scoring, and the no-op guard all walk these
// tables rather than dispatching per field.

// ScalarField is one table row for a single-valued field. Values move around
// as `any` holding one of *string, *int, *float64, or *time.Time; a nil
// pointer means absent.
type ScalarField struct {
	Field    Field
	Nullable bool

	Candidate     func(cm *CandidateMetadata) any
	CandidateLock func(cm *CandidateMetadata) *bool
	Current       func(b *models.Book) any
	Set           func(b *models.Book, v any)
	Locked        func(b *models.Book) bool
	SetLock       func(b *models.Book, locked bool)
}

// SetField is one table row for a multi-valued field. Only names travel
// through resolution; the merge engine turns them into shared entities.
type SetField struct {
	Field Field

	Candidate     func(cm *CandidateMetadata) []string
	CandidateLock func(cm *CandidateMetadata) *bool
	Locked        func(b *models.Book) bool
	SetLock       func(b *models.Book, locked bool)
}

func strVal(p *string) any     { return p }
func intVal(p *int) any        { return p }
func floatVal(p *float64) any  { return p }
func timeVal(p *time.Time) any { return p }

// ScalarFields is the full scalar field table, in checklist order.
var ScalarFields = []ScalarField{
	{
		Field: FieldTitle,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.Title) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Title },
		Current: func(b *models.Book) any {
			if b.Title == "" {
				return strVal(nil)
			}
			return strVal(&b.Title)
		},
		Set: func(b *models.Book, v any) {
			if s, ok := v.(*string); ok && s != nil {
				b.Title = *s
			}
		},
		Locked:  func(b *models.Book) bool { return b.TitleLocked },
		SetLock: func(b *models.Book, locked bool) { b.TitleLocked = locked },
	},
	{
		Field:    FieldSubtitle,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.Subtitle) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Subtitle },
		Current: func(b *models.Book) any { return strVal(b.Subtitle) },
		Set: func(b *models.Book, v any) {
			s, _ := v.(*string)
			b.Subtitle = s
		},
		Locked:  func(b *models.Book) bool { return b.SubtitleLocked },
		SetLock: func(b *models.Book, locked bool) { b.SubtitleLocked = locked },
	},
	{
		Field:    FieldDescription,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.Description) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Description },
		Current: func(b *models.Book) any { return strVal(b.Description) },
		Set: func(b *models.Book, v any) {
			s, _ := v.(*string)
			b.Description = s
		},
		Locked:  func(b *models.Book) bool { return b.DescriptionLocked },
		SetLock: func(b *models.Book, locked bool) { b.DescriptionLocked = locked },
	},
	{
		Field:    FieldPublisher,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.Publisher) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Publisher },
		Current: func(b *models.Book) any { return strVal(b.Publisher) },
		Set: func(b *models.Book, v any) {
			s, _ := v.(*string)
			b.Publisher = s
		},
		Locked:  func(b *models.Book) bool { return b.PublisherLocked },
		SetLock: func(b *models.Book, locked bool) { b.PublisherLocked = locked },
	},
	{
		Field:    FieldPublishedDate,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return timeVal(cm.PublishedDate) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.PublishedDate },
		Current: func(b *models.Book) any { return timeVal(b.PublishedDate) },
		Set: func(b *models.Book, v any) {
			t, _ := v.(*time.Time)
			b.PublishedDate = t
		},
		Locked:  func(b *models.Book) bool { return b.PublishedDateLocked },
		SetLock: func(b *models.Book, locked bool) { b.PublishedDateLocked = locked },
	},
	{
		Field:    FieldSeriesName,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.SeriesName) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.SeriesName },
		Current: func(b *models.Book) any { return strVal(b.SeriesName) },
		Set: func(b *models.Book, v any) {
			s, _ := v.(*string)
			b.SeriesName = s
		},
		Locked:  func(b *models.Book) bool { return b.SeriesNameLocked },
		SetLock: func(b *models.Book, locked bool) { b.SeriesNameLocked = locked },
	},
	{
		Field:    FieldSeriesNumber,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return floatVal(cm.SeriesNumber) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.SeriesNumber },
		Current: func(b *models.Book) any { return floatVal(b.SeriesNumber) },
		Set: func(b *models.Book, v any) {
			f, _ := v.(*float64)
			b.SeriesNumber = f
		},
		Locked:  func(b *models.Book) bool { return b.SeriesNumberLocked },
		SetLock: func(b *models.Book, locked bool) { b.SeriesNumberLocked = locked },
	},
	{
		Field:    FieldSeriesTotal,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return intVal(cm.SeriesTotal) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.SeriesTotal },
		Current: func(b *models.Book) any { return intVal(b.SeriesTotal) },
		Set: func(b *models.Book, v any) {
			i, _ := v.(*int)
			b.SeriesTotal = i
		},
		Locked:  func(b *models.Book) bool { return b.SeriesTotalLocked },
		SetLock: func(b *models.Book, locked bool) { b.SeriesTotalLocked = locked },
	},
	{
		Field:    FieldISBN13,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.ISBN13) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.ISBN13 },
		Current: func(b *models.Book) any { return strVal(b.ISBN13) },
		Set: func(b *models.Book, v any) {
			s, _ := v.(*string)
			b.ISBN13 = s
		},
		Locked:  func(b *models.Book) bool { return b.ISBN13Locked },
		SetLock: func(b *models.Book, locked bool) { b.ISBN13Locked = locked },
	},
	{
		Field:    FieldISBN10,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.ISBN10) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.ISBN10 },
		Current: func(b *models.Book) any { return strVal(b.ISBN10) },
		Set: func(b *models.Book, v any) {
			s, _ := v.(*string)
			b.ISBN10 = s
		},
		Locked:  func(b *models.Book) bool { return b.ISBN10Locked },
		SetLock: func(b *models.Book, locked bool) { b.ISBN10Locked = locked },
	},
	{
		Field:    FieldASIN,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.ASIN) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.ASIN },
		Current: func(b *models.Book) any { return strVal(b.ASIN) },
		Set: func(b *models.Book, v any) {
			s, _ := v.(*string)
			b.ASIN = s
		},
		Locked:  func(b *models.Book) bool { return b.ASINLocked },
		SetLock: func(b *models.Book, locked bool) { b.ASINLocked = locked },
	},
	{
		Field:    FieldPageCount,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return intVal(cm.PageCount) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.PageCount },
		Current: func(b *models.Book) any { return intVal(b.PageCount) },
		Set: func(b *models.Book, v any) {
			i, _ := v.(*int)
			b.PageCount = i
		},
		Locked:  func(b *models.Book) bool { return b.PageCountLocked },
		SetLock: func(b *models.Book, locked bool) { b.PageCountLocked = locked },
	},
	{
		Field:    FieldLanguage,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return strVal(cm.Language) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Language },
		Current: func(b *models.Book) any { return strVal(b.Language) },
		Set: func(b *models.Book, v any) {
			s, _ := v.(*string)
			b.Language = s
		},
		Locked:  func(b *models.Book) bool { return b.LanguageLocked },
		SetLock: func(b *models.Book, locked bool) { b.LanguageLocked = locked },
	},
	{
		Field:    FieldAmazonRating,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return floatVal(cm.AmazonRating) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.AmazonRating },
		Current: func(b *models.Book) any { return floatVal(b.AmazonRating) },
		Set: func(b *models.Book, v any) {
			f, _ := v.(*float64)
			b.AmazonRating = f
		},
		Locked:  func(b *models.Book) bool { return b.AmazonRatingLocked },
		SetLock: func(b *models.Book, locked bool) { b.AmazonRatingLocked = locked },
	},
	{
		Field:    FieldAmazonReviewCount,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return intVal(cm.AmazonReviewCount) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.AmazonReviewCount },
		Current: func(b *models.Book) any { return intVal(b.AmazonReviewCount) },
		Set: func(b *models.Book, v any) {
			i, _ := v.(*int)
			b.AmazonReviewCount = i
		},
		Locked:  func(b *models.Book) bool { return b.AmazonReviewCountLocked },
		SetLock: func(b *models.Book, locked bool) { b.AmazonReviewCountLocked = locked },
	},
	{
		Field:    FieldGoodreadsRating,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return floatVal(cm.GoodreadsRating) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.GoodreadsRating },
		Current: func(b *models.Book) any { return floatVal(b.GoodreadsRating) },
		Set: func(b *models.Book, v any) {
			f, _ := v.(*float64)
			b.GoodreadsRating = f
		},
		Locked:  func(b *models.Book) bool { return b.GoodreadsRatingLocked },
		SetLock: func(b *models.Book, locked bool) { b.GoodreadsRatingLocked = locked },
	},
	{
		Field:    FieldGoodreadsReviewCount,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return intVal(cm.GoodreadsReviewCount) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.GoodreadsReviewCount },
		Current: func(b *models.Book) any { return intVal(b.GoodreadsReviewCount) },
		Set: func(b *models.Book, v any) {
			i, _ := v.(*int)
			b.GoodreadsReviewCount = i
		},
		Locked:  func(b *models.Book) bool { return b.GoodreadsReviewCountLocked },
		SetLock: func(b *models.Book, locked bool) { b.GoodreadsReviewCountLocked = locked },
	},
	{
		Field:    FieldHardcoverRating,
		Nullable: true,
		Candidate: func(cm *CandidateMetadata) any { return floatVal(cm.HardcoverRating) },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.HardcoverRating },
		Current: func(b *models.Book) any { return floatVal(b.HardcoverRating) },
		Set: func(b *models.Book, v any) {
			f, _ := v.(*float64)
			b.HardcoverRating = f
		},
		Locked:  func(b *models.Book) bool { return b.HardcoverRatingLocked },
		SetLock: func(b *models.Book, locked bool) { b.HardcoverRatingLocked = locked },
	},
}

// SetFields is the multi-valued field table.
var SetFields = []SetField{
	{
		Field:         FieldAuthors,
		Candidate:     func(cm *CandidateMetadata) []string { return cm.Authors },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Authors },
		Locked:        func(b *models.Book) bool { return b.AuthorsLocked },
		SetLock:       func(b *models.Book, locked bool) { b.AuthorsLocked = locked },
	},
	{
		Field:         FieldCategories,
		Candidate:     func(cm *CandidateMetadata) []string { return cm.Categories },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Categories },
		Locked:        func(b *models.Book) bool { return b.CategoriesLocked },
		SetLock:       func(b *models.Book, locked bool) { b.CategoriesLocked = locked },
	},
	{
		Field:         FieldMoods,
		Candidate:     func(cm *CandidateMetadata) []string { return cm.Moods },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Moods },
		Locked:        func(b *models.Book) bool { return b.MoodsLocked },
		SetLock:       func(b *models.Book, locked bool) { b.MoodsLocked = locked },
	},
	{
		Field:         FieldTags,
		Candidate:     func(cm *CandidateMetadata) []string { return cm.Tags },
		CandidateLock: func(cm *CandidateMetadata) *bool { return cm.Locks.Tags },
		Locked:        func(b *models.Book) bool { return b.TagsLocked },
		SetLock:       func(b *models.Book, locked bool) { b.TagsLocked = locked },
	},
}

// Valid reports whether a scalar value counts as supplied: non-nil, and
// non-blank for strings.
func Valid(v any) bool {
	switch t := v.(type) {
	case *string:
		return t != nil && strings.TrimSpace(*t) != ""
	case *int:
		return t != nil
	case *float64:
		return t != nil
	case *time.Time:
		return t != nil
	}
	return false
}

// Present reports whether a scalar value earns score weight: valid, and
// positive for numbers.
func Present(v any) bool {
	switch t := v.(type) {
	case *string:
		return t != nil && strings.TrimSpace(*t) != ""
	case *int:
		return t != nil && *t > 0
	case *float64:
		return t != nil && *t > 0
	case *time.Time:
		return t != nil && !t.IsZero()
	}
	return false
}

// Equal compares two scalar values by dereferenced content. Two absent
// values compare equal.
func Equal(a, b any) bool {
	switch at := a.(type) {
	case *string:
		bt, ok := b.(*string)
		if !ok {
			return false
		}
		return eqPtr(at, bt)
	case *int:
		bt, ok := b.(*int)
		if !ok {
			return false
		}
		return eqPtr(at, bt)
	case *float64:
		bt, ok := b.(*float64)
		if !ok {
			return false
		}
		return eqPtr(at, bt)
	case *time.Time:
		bt, ok := b.(*time.Time)
		if !ok {
			return false
		}
		if at == nil || bt == nil {
			return at == nil && bt == nil
		}
		return at.Equal(*bt)
	}
	return a == nil && b == nil
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
