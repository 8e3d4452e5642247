package refresh

import "github.com/hondanahq/hondana/pkg/metadata"

type CreateRefreshJobPayload struct {
	LibraryID *int                     `json:"library_id,omitempty" validate:"omitempty,min=1"`
	BookIDs   []int                    `json:"book_ids,omitempty" validate:"omitempty,dive,min=1"`
	UserID    *int                     `json:"user_id,omitempty" validate:"omitempty,min=1"`
	Options   *metadata.RefreshOptions `json:"options,omitempty"`
}

type ListProposalsQuery struct {
	Limit  int      `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=200"`
	Offset int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status []string `query:"status" json:"status,omitempty" validate:"dive,oneof=fetched accepted rejected"`
}
