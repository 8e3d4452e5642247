package metadata

import (
	"strings"
	"time"
)

// ResolveScalar walks the authority list from highest to lowest priority and
// returns the first valid value any present provider supplies for the field.
// Returns nil when no provider has one; callers must treat nil as "do not
// overwrite".
func ResolveScalar(def ScalarField, authority FieldAuthority, candidates map[string]*CandidateMetadata) any {
	for _, providerID := range authority {
		cm, ok := candidates[providerID]
		if !ok || cm == nil {
			continue
		}
		v := def.Candidate(cm)
		if Valid(v) {
			return v
		}
	}
	return nil
}

// ResolveSet returns the first non-empty value list in authority order.
func ResolveSet(def SetField, authority FieldAuthority, candidates map[string]*CandidateMetadata) []string {
	for _, providerID := range authority {
		cm, ok := candidates[providerID]
		if !ok || cm == nil {
			continue
		}
		if values := validNames(def.Candidate(cm)); len(values) > 0 {
			return values
		}
	}
	return nil
}

// ResolveSetUnion unions the valid values across all providers in the
// authority list, preserving first-seen order. Used for sets configured as
// "merge" rather than first-match.
func ResolveSetUnion(def SetField, authority FieldAuthority, candidates map[string]*CandidateMetadata) []string {
	var out []string
	seen := make(map[string]bool)
	for _, providerID := range authority {
		cm, ok := candidates[providerID]
		if !ok || cm == nil {
			continue
		}
		for _, name := range validNames(def.Candidate(cm)) {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Resolve combines per-provider candidates into one metadata object using
// the configured authority order for each enabled field. Reviews are
// gathered from every provider in the fetch set; the thumbnail follows
// first-match authority order like a scalar.
func Resolve(opts *RefreshOptions, candidates map[string]*CandidateMetadata) *CandidateMetadata {
	resolved := &CandidateMetadata{}

	for _, def := range ScalarFields {
		if !opts.FieldEnabled(def.Field) {
			continue
		}
		if v := ResolveScalar(def, opts.AuthorityFor(def.Field), candidates); v != nil {
			setCandidateValue(resolved, def.Field, v)
		}
	}

	for _, def := range SetFields {
		if !opts.FieldEnabled(def.Field) {
			continue
		}
		authority := opts.AuthorityFor(def.Field)
		var values []string
		if setMergeEnabled(opts, def.Field) {
			values = ResolveSetUnion(def, authority, candidates)
		} else {
			values = ResolveSet(def, authority, candidates)
		}
		switch def.Field {
		case FieldAuthors:
			resolved.Authors = values
		case FieldCategories:
			resolved.Categories = values
		case FieldMoods:
			resolved.Moods = values
		case FieldTags:
			resolved.Tags = values
		}
	}

	if opts.FieldEnabled(FieldReviews) {
		for _, providerID := range opts.ProviderSet() {
			cm, ok := candidates[providerID]
			if !ok || cm == nil {
				continue
			}
			for _, review := range cm.Reviews {
				if review.Provider == "" {
					review.Provider = cm.Provider
				}
				resolved.Reviews = append(resolved.Reviews, review)
			}
		}
	}

	if opts.RefreshCovers {
		for _, providerID := range opts.AuthorityFor(FieldCover) {
			cm, ok := candidates[providerID]
			if !ok || cm == nil {
				continue
			}
			if cm.ThumbnailURL != nil && strings.TrimSpace(*cm.ThumbnailURL) != "" {
				resolved.ThumbnailURL = cm.ThumbnailURL
				break
			}
		}
	}

	return resolved
}

func setMergeEnabled(opts *RefreshOptions, f Field) bool {
	switch f {
	case FieldCategories:
		return opts.MergeCategories
	case FieldMoods:
		return opts.MergeMoods
	case FieldTags:
		return opts.MergeTags
	}
	return false
}

func setCandidateValue(cm *CandidateMetadata, f Field, v any) {
	switch f {
	case FieldTitle:
		cm.Title, _ = v.(*string)
	case FieldSubtitle:
		cm.Subtitle, _ = v.(*string)
	case FieldDescription:
		cm.Description, _ = v.(*string)
	case FieldPublisher:
		cm.Publisher, _ = v.(*string)
	case FieldPublishedDate:
		cm.PublishedDate, _ = v.(*time.Time)
	case FieldSeriesName:
		cm.SeriesName, _ = v.(*string)
	case FieldSeriesNumber:
		cm.SeriesNumber, _ = v.(*float64)
	case FieldSeriesTotal:
		cm.SeriesTotal, _ = v.(*int)
	case FieldISBN13:
		cm.ISBN13, _ = v.(*string)
	case FieldISBN10:
		cm.ISBN10, _ = v.(*string)
	case FieldASIN:
		cm.ASIN, _ = v.(*string)
	case FieldPageCount:
		cm.PageCount, _ = v.(*int)
	case FieldLanguage:
		cm.Language, _ = v.(*string)
	case FieldAmazonRating:
		cm.AmazonRating, _ = v.(*float64)
	case FieldAmazonReviewCount:
		cm.AmazonReviewCount, _ = v.(*int)
	case FieldGoodreadsRating:
		cm.GoodreadsRating, _ = v.(*float64)
	case FieldGoodreadsReviewCount:
		cm.GoodreadsReviewCount, _ = v.(*int)
	case FieldHardcoverRating:
		cm.HardcoverRating, _ = v.(*float64)
	}
}

func validNames(names []string) []string {
	var out []string
	for _, name := range names {
		if strings.TrimSpace(name) != "" {
			out = append(out, name)
		}
	}
	return out
}
