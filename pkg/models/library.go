package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Library owns books and carries a default refresh configuration. The
// RefreshOptions column is a JSON blob parsed by the refresh package; whole-
// library jobs without inline options fall back to it, and ad-hoc book sets
// fall back to each book's own library default.
type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l"`

	ID             int       `bun:",pk,nullzero" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Name           string    `bun:",nullzero" json:"name"`
	Filepath       string    `bun:",nullzero" json:"filepath"`
	RefreshOptions *string   `json:"refresh_options,omitempty"`
	BookCount      int       `bun:",scanonly" json:"book_count"`
}
