package taxonomy

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// ConsolidateOptions configures one consolidation or deletion pass.
type ConsolidateOptions struct {
	// RewriteFiles re-embeds metadata into the affected books' files after
	// the database changes commit. Requires a wired FileRewriter.
	RewriteFiles bool
}

// ConsolidateResult reports what a pass touched.
type ConsolidateResult struct {
	BooksAffected  int   `json:"books_affected"`
	ValuesRemoved  int   `json:"values_removed"`
	OrphansRemoved int   `json:"orphans_removed"`
	BookIDs        []int `json:"-"`
}

// Consolidate merges every value in valuesToMerge into the target value(s):
// all records referencing a merged value are re-pointed at the targets, the
// merged entities are deleted, and stored target casing is corrected to the
// requested casing. Series, publisher, and language accept exactly one
// target. This is an administrative bulk operation; per-field locks do not
// apply.
func (svc *Service) Consolidate(ctx context.Context, kind Kind, targets, valuesToMerge []string, opts ConsolidateOptions) (*ConsolidateResult, error) {
	def := kinds[kind]

	targets = cleanValues(targets)
	valuesToMerge = cleanValues(valuesToMerge)

	if len(targets) == 0 {
		return nil, errcodes.ValidationError("At least one target value is required.")
	}
	if kind.SingleTarget() && len(targets) != 1 {
		return nil, errcodes.ValidationError(def.label + " consolidation requires exactly one target value.")
	}
	if len(valuesToMerge) == 0 {
		return nil, errcodes.ValidationError("At least one value to merge is required.")
	}

	result := &ConsolidateResult{}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if def.entityTable != "" {
			return svc.consolidateEntities(ctx, tx, def, targets, valuesToMerge, result)
		}
		return svc.consolidateScalar(ctx, tx, def, targets[0], valuesToMerge, result)
	})
	if err != nil {
		return nil, err
	}

	svc.rewriteFiles(ctx, result, opts)

	return result, nil
}

// Delete removes the named values from every record referencing them, with
// no replacement.
func (svc *Service) Delete(ctx context.Context, kind Kind, values []string, opts ConsolidateOptions) (*ConsolidateResult, error) {
	def := kinds[kind]

	values = cleanValues(values)
	if len(values) == 0 {
		return nil, errcodes.ValidationError("At least one value is required.")
	}

	result := &ConsolidateResult{}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if def.entityTable != "" {
			return svc.deleteEntities(ctx, tx, def, values, result)
		}
		return svc.deleteScalar(ctx, tx, def, values, result)
	})
	if err != nil {
		return nil, err
	}

	svc.rewriteFiles(ctx, result, opts)

	return result, nil
}

func (svc *Service) consolidateEntities(ctx context.Context, tx bun.Tx, def kindDef, targets, valuesToMerge []string, result *ConsolidateResult) error {
	targetIDs := make([]int, 0, len(targets))
	for _, target := range targets {
		id, err := svc.resolveTargetEntity(ctx, tx, def, target)
		if err != nil {
			return err
		}
		targetIDs = append(targetIDs, id)
	}

	affected := make(map[int]bool)

	for _, value := range valuesToMerge {
		source, err := svc.findEntity(ctx, tx, def, value, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return err
		}
		if containsInt(targetIDs, source.ID) {
			// Merging a value into itself is a no-op, not an error.
			continue
		}

		bookIDs, err := svc.bookIDsReferencing(ctx, tx, def, source.ID)
		if err != nil {
			return err
		}
		for _, id := range bookIDs {
			affected[id] = true
		}

		for _, targetID := range targetIDs {
			// Point the source's books at the target, skipping books that
			// already reference it.
			_, err = tx.NewRaw(
				"INSERT INTO "+def.joinTable+" (book_id, "+def.fkColumn+") "+
					"SELECT book_id, ? FROM "+def.joinTable+" WHERE "+def.fkColumn+" = ? "+
					"AND book_id NOT IN (SELECT book_id FROM "+def.joinTable+" WHERE "+def.fkColumn+" = ?)",
				targetID, source.ID, targetID,
			).Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		if err := svc.removeEntity(ctx, tx, def, source.ID); err != nil {
			return err
		}
		result.ValuesRemoved++
	}

	return svc.finishEntityPass(ctx, tx, def, affected, result)
}

func (svc *Service) deleteEntities(ctx context.Context, tx bun.Tx, def kindDef, values []string, result *ConsolidateResult) error {
	affected := make(map[int]bool)

	for _, value := range values {
		source, err := svc.findEntity(ctx, tx, def, value, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return err
		}

		bookIDs, err := svc.bookIDsReferencing(ctx, tx, def, source.ID)
		if err != nil {
			return err
		}
		for _, id := range bookIDs {
			affected[id] = true
		}

		if err := svc.removeEntity(ctx, tx, def, source.ID); err != nil {
			return err
		}
		result.ValuesRemoved++
	}

	return svc.finishEntityPass(ctx, tx, def, affected, result)
}

func (svc *Service) consolidateScalar(ctx context.Context, tx bun.Tx, def kindDef, target string, valuesToMerge []string, result *ConsolidateResult) error {
	for _, value := range valuesToMerge {
		// A casing-only merge still rewrites the stored value; only an exact
		// match is a no-op.
		if value == target {
			continue
		}

		bookIDs, err := svc.updateScalarColumn(ctx, tx, def, &target, value)
		if err != nil {
			return err
		}
		if len(bookIDs) > 0 {
			result.ValuesRemoved++
			result.BookIDs = append(result.BookIDs, bookIDs...)
		}
	}

	result.BooksAffected = len(result.BookIDs)
	return nil
}

func (svc *Service) deleteScalar(ctx context.Context, tx bun.Tx, def kindDef, values []string, result *ConsolidateResult) error {
	for _, value := range values {
		bookIDs, err := svc.updateScalarColumn(ctx, tx, def, nil, value)
		if err != nil {
			return err
		}
		if len(bookIDs) > 0 {
			result.ValuesRemoved++
			result.BookIDs = append(result.BookIDs, bookIDs...)
		}
	}

	result.BooksAffected = len(result.BookIDs)
	return nil
}

// resolveTargetEntity looks a target up case-insensitively, correcting the
// stored casing to the requested one, and creates the entity when absent.
func (svc *Service) resolveTargetEntity(ctx context.Context, tx bun.Tx, def kindDef, name string) (int, error) {
	e, err := svc.findEntity(ctx, tx, def, name, true)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return svc.insertEntity(ctx, tx, def, name)
	}

	if e.Name != name {
		_, err = tx.NewRaw(
			"UPDATE "+def.entityTable+" SET name = ?, updated_at = ? WHERE id = ?",
			name, time.Now(), e.ID,
		).Exec(ctx)
		if err != nil {
			return 0, errors.WithStack(err)
		}
	}

	return e.ID, nil
}

func (svc *Service) bookIDsReferencing(ctx context.Context, tx bun.Tx, def kindDef, entityID int) ([]int, error) {
	var ids []int
	err := tx.NewRaw(
		"SELECT book_id FROM "+def.joinTable+" WHERE "+def.fkColumn+" = ? ORDER BY book_id ASC",
		entityID,
	).Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

func (svc *Service) removeEntity(ctx context.Context, tx bun.Tx, def kindDef, entityID int) error {
	_, err := tx.NewRaw("DELETE FROM "+def.joinTable+" WHERE "+def.fkColumn+" = ?", entityID).Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = tx.NewRaw("DELETE FROM "+def.entityTable+" WHERE id = ?", entityID).Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) finishEntityPass(ctx context.Context, tx bun.Tx, def kindDef, affected map[int]bool, result *ConsolidateResult) error {
	for id := range affected {
		result.BookIDs = append(result.BookIDs, id)
	}
	sort.Ints(result.BookIDs)
	result.BooksAffected = len(result.BookIDs)

	// The merged entities were already removed; this sweeps anything else
	// the pass left unreferenced.
	kind := kindForTable(def.entityTable)
	orphans, err := svc.CleanupOrphans(ctx, tx, kind)
	if err != nil {
		return err
	}
	result.OrphansRemoved = orphans

	return nil
}

// updateScalarColumn points every book holding value at the replacement
// (nil clears the column) and returns the affected book ids.
func (svc *Service) updateScalarColumn(ctx context.Context, tx bun.Tx, def kindDef, replacement *string, value string) ([]int, error) {
	var bookIDs []int
	err := tx.NewRaw(
		"SELECT id FROM books WHERE LOWER("+def.scalarColumn+") = LOWER(?) ORDER BY id ASC",
		value,
	).Scan(ctx, &bookIDs)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(bookIDs) == 0 {
		return nil, nil
	}

	_, err = tx.NewRaw(
		"UPDATE books SET "+def.scalarColumn+" = ?, updated_at = ? WHERE LOWER("+def.scalarColumn+") = LOWER(?)",
		replacement, time.Now(), value,
	).Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return bookIDs, nil
}

func (svc *Service) rewriteFiles(ctx context.Context, result *ConsolidateResult, opts ConsolidateOptions) {
	if !opts.RewriteFiles || svc.rewriter == nil || len(result.BookIDs) == 0 {
		return
	}

	if err := svc.rewriter.RewriteBookFiles(ctx, result.BookIDs); err != nil {
		log := logger.FromContext(ctx)
		log.Err(err).Error("failed to rewrite files after consolidation")
	}
}

func kindForTable(table string) Kind {
	for kind, def := range kinds {
		if def.entityTable == table {
			return kind
		}
	}
	return ""
}

func cleanValues(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
