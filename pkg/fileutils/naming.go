package fileutils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hondanahq/hondana/pkg/models"
)

// PatternData holds the metadata tokens available to file organization
// patterns.
type PatternData struct {
	AuthorNames  []string
	Title        string
	SeriesName   *string
	SeriesNumber *float64
}

var patternTokenRegexp = regexp.MustCompile(`\{(author|title|series|series_number)\}`)

// RenderPattern expands an organization pattern like
// "{author}/{series}/{title}" into a relative path, one directory per
// segment. Tokens with no data collapse, and empty segments are dropped so a
// book without a series does not get an empty directory level.
func RenderPattern(pattern string, data PatternData) string {
	expanded := patternTokenRegexp.ReplaceAllStringFunc(pattern, func(token string) string {
		switch token {
		case "{author}":
			if len(data.AuthorNames) > 0 {
				return sanitizeForFilename(data.AuthorNames[0])
			}
		case "{title}":
			return sanitizeForFilename(data.Title)
		case "{series}":
			if data.SeriesName != nil {
				return sanitizeForFilename(*data.SeriesName)
			}
		case "{series_number}":
			if data.SeriesNumber != nil {
				return formatSeriesNumber(*data.SeriesNumber)
			}
		}
		return ""
	})

	var segments []string
	for _, segment := range strings.Split(expanded, "/") {
		segment = strings.TrimSpace(segment)
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) == 0 {
		return "Unknown"
	}

	return filepath.Join(segments...)
}

// PatternDataForBook extracts pattern tokens from a book record.
func PatternDataForBook(b *models.Book) PatternData {
	data := PatternData{
		Title:        b.Title,
		SeriesName:   b.SeriesName,
		SeriesNumber: b.SeriesNumber,
	}
	for _, author := range b.Authors {
		data.AuthorNames = append(data.AuthorNames, author.Name)
	}
	return data
}

func formatSeriesNumber(n float64) string {
	if n == float64(int(n)) {
		return fmt.Sprintf("%02d", int(n))
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%05.1f", n), "0"), ".")
}

// sanitizeForFilename strips characters that are invalid in file and
// directory names on common filesystems.
func sanitizeForFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", " -",
		"*", "",
		"?", "",
		"\"", "'",
		"<", "(",
		">", ")",
		"|", "-",
	)
	sanitized := strings.TrimSpace(replacer.Replace(name))
	sanitized = strings.Trim(sanitized, ".")
	return strings.Join(strings.Fields(sanitized), " ")
}
