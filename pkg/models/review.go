package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Review is one reader review attached to a book, tagged with the provider
// it came from. The merge engine caps storage at the 5 most recent reviews
// per provider.
type Review struct {
	bun.BaseModel `bun:"table:reviews,alias:r"`

	ID        int        `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	BookID    int        `bun:",nullzero" json:"book_id"`
	Provider  string     `bun:",nullzero" json:"provider"`
	Rating    *float64   `json:"rating,omitempty"`
	Title     *string    `json:"title,omitempty"`
	Body      *string    `json:"body,omitempty"`
	Reviewer  *string    `json:"reviewer,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
}
