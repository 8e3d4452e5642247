package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ProposalStatusFetched  = "fetched"
	ProposalStatusAccepted = "accepted"
	ProposalStatusRejected = "rejected"
)

// Proposal is a staged, human-reviewable metadata candidate written by a
// review-mode refresh job instead of an immediate merge. It references its
// book by id only; the book may have been deleted independently. Status only
// moves off fetched through an explicit reviewer action.
type Proposal struct {
	bun.BaseModel `bun:"table:proposals,alias:pr"`

	ID             int         `bun:",pk,nullzero" json:"id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	JobID          int         `bun:",nullzero" json:"job_id"`
	BookID         int         `bun:",nullzero" json:"book_id"`
	Status         string      `bun:",nullzero" json:"status"`
	Metadata       string      `bun:",nullzero" json:"-"`
	MetadataParsed interface{} `bun:"-" json:"metadata,omitempty"`
	CreatedByID    *int        `json:"created_by_id,omitempty"`
	ReviewedByID   *int        `json:"reviewed_by_id,omitempty"`
	ReviewedAt     *time.Time  `json:"reviewed_at,omitempty"`
}
