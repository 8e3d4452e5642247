package books

import "github.com/hondanahq/hondana/pkg/metadata"

type ListBooksQuery struct {
	Limit     int  `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset    int  `query:"offset" json:"offset,omitempty" validate:"min=0"`
	LibraryID *int `query:"library_id" json:"library_id,omitempty" validate:"omitempty,min=1"`
}

// UpdateMetadataPayload is the direct edit path for a single record. Values
// omitted from the metadata object are left untouched unless named in clear
// or forced by the replace mode.
type UpdateMetadataPayload struct {
	Metadata        *metadata.CandidateMetadata `json:"metadata,omitempty"`
	Clear           []string                    `json:"clear,omitempty" validate:"omitempty,dive,max=50"`
	Mode            string                      `json:"mode,omitempty" validate:"omitempty,oneof=replace_all replace_missing"`
	MergeCategories bool                        `json:"merge_categories,omitempty"`
	MergeMoods      bool                        `json:"merge_moods,omitempty"`
	MergeTags       bool                        `json:"merge_tags,omitempty"`
	UpdateThumbnail bool                        `json:"update_thumbnail,omitempty"`
}
