package taxonomy

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hondanahq/hondana/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Kind names one taxonomy dimension. Authors, categories, moods, and tags
// are shared entities behind join tables; series, publisher, and language
// live as scalar columns on the book row, so consolidation for those kinds
// must name exactly one target value.
type Kind string

const (
	KindAuthors    Kind = "authors"
	KindCategories Kind = "categories"
	KindMoods      Kind = "moods"
	KindTags       Kind = "tags"
	KindSeries     Kind = "series"
	KindPublisher  Kind = "publisher"
	KindLanguage   Kind = "language"
)

type kindDef struct {
	label        string
	entityTable  string
	joinTable    string
	fkColumn     string
	scalarColumn string
}

var kinds = map[Kind]kindDef{
	KindAuthors:    {label: "Author", entityTable: "authors", joinTable: "book_authors", fkColumn: "author_id"},
	KindCategories: {label: "Category", entityTable: "categories", joinTable: "book_categories", fkColumn: "category_id"},
	KindMoods:      {label: "Mood", entityTable: "moods", joinTable: "book_moods", fkColumn: "mood_id"},
	KindTags:       {label: "Tag", entityTable: "tags", joinTable: "book_tags", fkColumn: "tag_id"},
	KindSeries:     {label: "Series", scalarColumn: "series_name"},
	KindPublisher:  {label: "Publisher", scalarColumn: "publisher"},
	KindLanguage:   {label: "Language", scalarColumn: "language"},
}

// ParseKind validates a kind string from a route parameter.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kinds[k]; !ok {
		return "", errcodes.ValidationError("Unknown taxonomy kind " + s + ".")
	}
	return k, nil
}

// SingleTarget reports whether consolidation for this kind requires exactly
// one target value.
func (k Kind) SingleTarget() bool {
	return kinds[k].scalarColumn != ""
}

// FileRewriter re-embeds metadata into the files of the affected books after
// a consolidation pass. Lock flags are not consulted here.
type FileRewriter interface {
	RewriteBookFiles(ctx context.Context, bookIDs []int) error
}

type Service struct {
	db       *bun.DB
	rewriter FileRewriter
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// SetFileRewriter wires the collaborator that rewrites book files. Optional;
// without one, consolidation only touches the database.
func (svc *Service) SetFileRewriter(rewriter FileRewriter) {
	svc.rewriter = rewriter
}

// entity is the common shape of the shared taxonomy entities. All four
// tables carry the same columns, which lets the engine work generically by
// table name.
type entity struct {
	ID   int
	Name string
}

// FindOrCreate resolves a name to an entity id with an exact-match lookup,
// inserting when absent. Two writers racing on the same new name both land
// on one row: the unique index rejects the second insert and the lookup is
// retried.
func (svc *Service) FindOrCreate(ctx context.Context, idb bun.IDB, kind Kind, name string) (int, error) {
	def := kinds[kind]
	if def.entityTable == "" {
		return 0, errors.Errorf("kind %s has no entity table", kind)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.Errorf("%s name cannot be empty", strings.ToLower(def.label))
	}

	e, err := svc.findEntity(ctx, idb, def, name, false)
	if err == nil {
		return e.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	id, err := svc.insertEntity(ctx, idb, def, name)
	if err == nil {
		return id, nil
	}

	// Lost a duplicate-insert race; the row exists now.
	e, lookupErr := svc.findEntity(ctx, idb, def, name, false)
	if lookupErr == nil {
		return e.ID, nil
	}

	return 0, err
}

func (svc *Service) findEntity(ctx context.Context, idb bun.IDB, def kindDef, name string, caseInsensitive bool) (*entity, error) {
	e := &entity{}

	where := "name = ?"
	if caseInsensitive {
		where = "LOWER(name) = LOWER(?)"
	}

	err := idb.NewRaw("SELECT id, name FROM "+def.entityTable+" WHERE "+where+" LIMIT 1", name).Scan(ctx, &e.ID, &e.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.WithStack(err)
	}

	return e, nil
}

func (svc *Service) insertEntity(ctx context.Context, idb bun.IDB, def kindDef, name string) (int, error) {
	now := time.Now()

	var id int
	err := idb.NewRaw(
		"INSERT INTO "+def.entityTable+" (name, created_at, updated_at) VALUES (?, ?, ?) RETURNING id",
		name, now, now,
	).Scan(ctx, &id)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	return id, nil
}

// Value is one taxonomy value with its usage count. Scalar kinds have no
// entity row, so their ID is always zero.
type Value struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	BookCount int    `json:"book_count"`
}

// List returns the values of a kind with their book counts.
func (svc *Service) List(ctx context.Context, kind Kind) ([]*Value, error) {
	def := kinds[kind]

	var values []*Value
	var err error

	if def.entityTable != "" {
		err = svc.db.NewRaw(
			"SELECT e.id, e.name, COUNT(j."+def.fkColumn+") AS book_count FROM "+def.entityTable+" e "+
				"LEFT JOIN "+def.joinTable+" j ON j."+def.fkColumn+" = e.id "+
				"GROUP BY e.id, e.name ORDER BY e.name ASC",
		).Scan(ctx, &values)
	} else {
		err = svc.db.NewRaw(
			"SELECT 0 AS id, "+def.scalarColumn+" AS name, COUNT(*) AS book_count FROM books "+
				"WHERE "+def.scalarColumn+" IS NOT NULL AND "+def.scalarColumn+" != '' "+
				"GROUP BY "+def.scalarColumn+" ORDER BY "+def.scalarColumn+" ASC",
		).Scan(ctx, &values)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return values, nil
}

// CleanupOrphans deletes entities of a join-table kind that no book
// references anymore. Scalar kinds have nothing to clean.
func (svc *Service) CleanupOrphans(ctx context.Context, idb bun.IDB, kind Kind) (int, error) {
	def := kinds[kind]
	if def.entityTable == "" {
		return 0, nil
	}

	result, err := idb.NewRaw(
		"DELETE FROM " + def.entityTable + " WHERE id NOT IN (SELECT DISTINCT " + def.fkColumn + " FROM " + def.joinTable + ")",
	).Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	n, _ := result.RowsAffected()
	return int(n), nil
}
