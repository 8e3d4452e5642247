package models

import "github.com/uptrace/bun"

// RegisterJoinModels registers the many-to-many join tables with bun. Must be
// called once per DB handle before any relation query.
func RegisterJoinModels(db *bun.DB) {
	db.RegisterModel(
		(*BookAuthor)(nil),
		(*BookCategory)(nil),
		(*BookMood)(nil),
		(*BookTag)(nil),
	)
}
