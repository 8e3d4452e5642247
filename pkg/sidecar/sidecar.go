package sidecar

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hondanahq/hondana/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

const Suffix = ".metadata.json"

// BookSidecar is the on-disk companion document for a book file. It carries
// the catalog metadata in a portable shape so a library directory remains
// self-describing even without the database.
type BookSidecar struct {
	Title         string     `json:"title"`
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
	Authors       []string   `json:"authors,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	Moods         []string   `json:"moods,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	CoverPath     *string    `json:"cover_path,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Path returns the sidecar path for a book file.
func Path(bookFilePath string) string {
	dir := filepath.Dir(bookFilePath)
	base := strings.TrimSuffix(filepath.Base(bookFilePath), filepath.Ext(bookFilePath))
	return filepath.Join(dir, base+Suffix)
}

// FromBook builds the sidecar document for a book record. Relations must be
// loaded.
func FromBook(b *models.Book) *BookSidecar {
	s := &BookSidecar{
		Title:         b.Title,
		Subtitle:      b.Subtitle,
		Description:   b.Description,
		Publisher:     b.Publisher,
		PublishedDate: b.PublishedDate,
		SeriesName:    b.SeriesName,
		SeriesNumber:  b.SeriesNumber,
		SeriesTotal:   b.SeriesTotal,
		ISBN13:        b.ISBN13,
		ISBN10:        b.ISBN10,
		ASIN:          b.ASIN,
		PageCount:     b.PageCount,
		Language:      b.Language,
		UpdatedAt:     time.Now(),
	}
	for _, author := range b.Authors {
		s.Authors = append(s.Authors, author.Name)
	}
	for _, category := range b.Categories {
		s.Categories = append(s.Categories, category.Name)
	}
	for _, mood := range b.Moods {
		s.Moods = append(s.Moods, mood.Name)
	}
	for _, tag := range b.Tags {
		s.Tags = append(s.Tags, tag.Name)
	}
	return s
}

// Read parses the sidecar next to a book file. Returns nil, nil when there
// is none.
func Read(bookFilePath string) (*BookSidecar, error) {
	data, err := os.ReadFile(Path(bookFilePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}

	var s BookSidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.WithStack(err)
	}

	return &s, nil
}

// Write stores the sidecar next to a book file.
func Write(bookFilePath string, s *BookSidecar) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(os.WriteFile(Path(bookFilePath), data, 0o644))
}
