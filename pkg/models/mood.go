package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Mood struct {
	bun.BaseModel `bun:"table:moods,alias:m"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `bun:",nullzero" json:"name"`
	BookCount int       `bun:",scanonly" json:"book_count"`
}

type BookMood struct {
	bun.BaseModel `bun:"table:book_moods,alias:bm"`

	ID     int   `bun:",pk,nullzero" json:"id"`
	BookID int   `bun:",nullzero" json:"book_id"`
	Book   *Book `bun:"rel:belongs-to,join:book_id=id" json:"book,omitempty"`
	MoodID int   `bun:",nullzero" json:"mood_id"`
	Mood   *Mood `bun:"rel:belongs-to,join:mood_id=id" json:"mood,omitempty"`
}
