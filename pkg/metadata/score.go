package metadata

import "github.com/hondanahq/hondana/pkg/models"

// Weights assigns a score weight to each checklist field. Fields absent from
// the map contribute nothing.
type Weights map[Field]float64

// DefaultWeights is the standard completeness checklist: the scalar
// bibliographic fields plus the author and category sets.
var DefaultWeights = Weights{
	FieldTitle:                4,
	FieldSubtitle:             2,
	FieldDescription:          5,
	FieldAuthors:              5,
	FieldPublisher:            3,
	FieldPublishedDate:        3,
	FieldSeriesName:           3,
	FieldSeriesNumber:         2,
	FieldSeriesTotal:          1,
	FieldISBN13:               4,
	FieldISBN10:               2,
	FieldLanguage:             2,
	FieldPageCount:            2,
	FieldCategories:           4,
	FieldAmazonRating:         1,
	FieldAmazonReviewCount:    1,
	FieldGoodreadsRating:      1,
	FieldGoodreadsReviewCount: 1,
	FieldHardcoverRating:      1,
}

// Score computes a 0-100 completeness score for a record against the
// weighted checklist. A field earns its weight when it holds a present value
// or when it is explicitly locked: a locked field is deliberately curated
// even when empty, and that deliberateness is what the score measures. A
// total configured weight of zero scores 0.
func Score(b *models.Book, weights Weights) float64 {
	if len(weights) == 0 {
		weights = DefaultWeights
	}

	var total, earned float64

	for _, def := range ScalarFields {
		weight, ok := weights[def.Field]
		if !ok || weight <= 0 {
			continue
		}
		total += weight
		if Present(def.Current(b)) || def.Locked(b) {
			earned += weight
		}
	}

	for _, def := range SetFields {
		weight, ok := weights[def.Field]
		if !ok || weight <= 0 {
			continue
		}
		total += weight
		if setPopulated(b, def.Field) || def.Locked(b) {
			earned += weight
		}
	}

	if total == 0 {
		return 0
	}
	return earned / total * 100
}

func setPopulated(b *models.Book, f Field) bool {
	switch f {
	case FieldAuthors:
		return len(b.Authors) > 0
	case FieldCategories:
		return len(b.Categories) > 0
	case FieldMoods:
		return len(b.Moods) > 0
	case FieldTags:
		return len(b.Tags) > 0
	}
	return false
}
