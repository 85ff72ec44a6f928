package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
)

const (
	curriculaTable = "curricula"
	recordColumns  = "id, name, description, slug, created_by, created_at, updated_at"
)

type (
	curriculumRow struct {
		ID          string      `db:"id"`
		Name        string      `db:"name"`
		Description null.String `db:"description"`
		Slug        string      `db:"slug"`
		CreatedBy   null.String `db:"created_by"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   null.Time   `db:"updated_at"`
	}

	entityRow struct {
		curriculumRow
		ParentID string `db:"parent_id"`
	}
)

func toCurriculumRow(cur curriculum.Curriculum) curriculumRow {
	return curriculumRow{
		ID:          cur.ID,
		Name:        cur.Name,
		Description: null.NewString(cur.Description, cur.Description != ""),
		Slug:        cur.Slug,
		CreatedBy:   null.NewString(cur.CreatedBy, cur.CreatedBy != ""),
		CreatedAt:   cur.CreatedAt.UTC(),
		UpdatedAt:   null.NewTime(cur.UpdatedAt.UTC(), !cur.UpdatedAt.IsZero()),
	}
}

func (r curriculumRow) curriculum() curriculum.Curriculum {
	return curriculum.Curriculum{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Slug:        r.Slug,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.Time.UTC(),
	}
}

func toEntityRow(e curriculum.Entity) entityRow {
	return entityRow{
		curriculumRow: toCurriculumRow(curriculum.Curriculum{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			Slug:        e.Slug,
			CreatedBy:   e.CreatedBy,
			CreatedAt:   e.CreatedAt,
			UpdatedAt:   e.UpdatedAt,
		}),
		ParentID: e.ParentID,
	}
}

func (r entityRow) entity(level curriculum.Level) curriculum.Entity {
	cur := r.curriculum()
	return curriculum.Entity{
		Level:       level,
		ID:          cur.ID,
		Name:        cur.Name,
		Description: cur.Description,
		Slug:        cur.Slug,
		ParentID:    r.ParentID,
		CreatedBy:   cur.CreatedBy,
		CreatedAt:   cur.CreatedAt,
		UpdatedAt:   cur.UpdatedAt,
	}
}

type curriculumRepository struct {
	db core.DB
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db core.DB) *curriculumRepository {
	return &curriculumRepository{db: db}
}

// trapNoRowsErr maps "no rows" err to curriculum.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return curriculum.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapSlugErr maps a violated slug unique constraint to curriculum.ErrSlugExists
func trapSlugErr(err error, msg string) error {
	var (
		liteErr sqlite3.Error
		pgErr   *pq.Error
	)
	switch {
	case errors.As(err, &liteErr):
		if liteErr.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(liteErr.Error(), ".slug") {
			return errors.Wrap(curriculum.ErrSlugExists, msg)
		}
	case errors.As(err, &pgErr):
		if pgErr.Code.Name() == "unique_violation" && strings.HasSuffix(pgErr.Constraint, "_slug_key") {
			return errors.Wrap(curriculum.ErrSlugExists, msg)
		}
	}
	return errors.Wrap(err, msg)
}

// table and parent column names only ever come from curriculum.Level, never from input.
func levelTable(level curriculum.Level) (table, parentKey string, err error) {
	if !level.Valid() {
		return "", "", errors.Errorf("unknown level %d", int(level))
	}
	return level.Resource(), level.ParentKey(), nil
}

func entitySelect(level curriculum.Level) (string, error) {
	table, parentKey, err := levelTable(level)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT %s, %s AS parent_id FROM %s", recordColumns, parentKey, table), nil
}

func (repo curriculumRepository) CreateCurriculum(ctx context.Context, cur curriculum.Curriculum) (curriculum.Curriculum, error) {
	r := toCurriculumRow(cur)
	q := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (:id, :name, :description, :slug, :created_by, :created_at, :updated_at)",
		curriculaTable, recordColumns)
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, r); err != nil {
		return curriculum.Curriculum{}, trapSlugErr(err, "inserting curriculum")
	}
	return r.curriculum(), nil
}

var curriculumOrderings = map[string]bool{"name": true, "slug": true, "created_at": true, "updated_at": true}

func (repo curriculumRepository) QueryCurricula(ctx context.Context, ordering ...core.DBOrdering) ([]curriculum.Curriculum, error) {
	orderBy := make([]string, 0, len(ordering)+2)
	for _, o := range ordering {
		if !curriculumOrderings[o.Field] {
			return nil, errors.Errorf("unsupported ordering field %q", o.Field)
		}
		orderBy = append(orderBy, o.String())
	}
	orderBy = append(orderBy, "created_at ASC", "id ASC")

	var rows []curriculumRow
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", recordColumns, curriculaTable, strings.Join(orderBy, ", "))
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying curricula")
	}
	curricula := make([]curriculum.Curriculum, 0, len(rows))
	for _, r := range rows {
		curricula = append(curricula, r.curriculum())
	}
	return curricula, nil
}

func (repo curriculumRepository) GetCurricula(ctx context.Context, ids ...string) ([]curriculum.Curriculum, error) {
	ids = core.UniqueStrings(ids)
	if len(ids) == 0 {
		return []curriculum.Curriculum{}, nil
	}
	q, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM %s WHERE id IN (?) ORDER BY created_at, id", recordColumns, curriculaTable), ids)
	if err != nil {
		return nil, errors.Wrap(err, "building curricula query")
	}
	var rows []curriculumRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "getting curricula")
	}
	curricula := make([]curriculum.Curriculum, 0, len(rows))
	for _, r := range rows {
		curricula = append(curricula, r.curriculum())
	}
	return curricula, nil
}

func (repo curriculumRepository) GetCurriculumBySlug(ctx context.Context, slug string) (curriculum.Curriculum, error) {
	var r curriculumRow
	q := repo.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE slug = ?", recordColumns, curriculaTable))
	if err := sqlx.GetContext(ctx, repo.db, &r, q, slug); err != nil {
		return curriculum.Curriculum{}, trapNoRowsErr(err, "getting curriculum by slug")
	}
	return r.curriculum(), nil
}

func (repo curriculumRepository) slugExists(ctx context.Context, table, slug string) (bool, error) {
	var n int
	q := repo.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE slug = ?", table))
	if err := sqlx.GetContext(ctx, repo.db, &n, q, slug); err != nil {
		return false, errors.Wrapf(err, "checking %s slug", table)
	}
	return n > 0, nil
}

func (repo curriculumRepository) CurriculumSlugExists(ctx context.Context, slug string) (bool, error) {
	return repo.slugExists(ctx, curriculaTable, slug)
}

func (repo curriculumRepository) UpdateCurriculum(ctx context.Context, cur curriculum.Curriculum) (curriculum.Curriculum, error) {
	r := toCurriculumRow(cur)
	q := fmt.Sprintf(
		"UPDATE %s SET name = :name, description = :description, slug = :slug, updated_at = :updated_at WHERE id = :id",
		curriculaTable)
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, r)
	if err != nil {
		return curriculum.Curriculum{}, trapSlugErr(err, "updating curriculum")
	}
	if err := expectRows(res); err != nil {
		return curriculum.Curriculum{}, err
	}
	return repo.getCurriculum(ctx, cur.ID)
}

func (repo curriculumRepository) getCurriculum(ctx context.Context, id string) (curriculum.Curriculum, error) {
	found, err := repo.GetCurricula(ctx, id)
	if err != nil {
		return curriculum.Curriculum{}, err
	}
	if len(found) == 0 {
		return curriculum.Curriculum{}, curriculum.ErrNotFound
	}
	return found[0], nil
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return curriculum.ErrNotFound
	}
	return nil
}

// inTx runs fn in a transaction, rolled back when fn fails.
func (repo curriculumRepository) inTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// deleteTree deletes the records of level with the given ids and all their descendants, leaf-first.
func deleteTree(ctx context.Context, exec core.DBExecutor, level curriculum.Level, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table, _, err := levelTable(level)
	if err != nil {
		return err
	}

	if child, ok := level.Child(); ok {
		childTable, childKey, _ := levelTable(child)
		q, args, err := sqlx.In(fmt.Sprintf("SELECT id FROM %s WHERE %s IN (?)", childTable, childKey), ids)
		if err != nil {
			return errors.Wrapf(err, "building %s query", childTable)
		}
		var childIDs []string
		if err := sqlx.SelectContext(ctx, exec, &childIDs, exec.Rebind(q), args...); err != nil {
			return errors.Wrapf(err, "querying %s", childTable)
		}
		if err := deleteTree(ctx, exec, child, childIDs); err != nil {
			return err
		}
	}

	q, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE id IN (?)", table), ids)
	if err != nil {
		return errors.Wrapf(err, "building %s delete", table)
	}
	if _, err := exec.ExecContext(ctx, exec.Rebind(q), args...); err != nil {
		return errors.Wrapf(err, "deleting %s", table)
	}
	return nil
}

func (repo curriculumRepository) DeleteCurriculum(ctx context.Context, id string) error {
	return repo.inTx(ctx, func(exec core.DBExecutor) error {
		var subjectIDs []string
		q := exec.Rebind("SELECT id FROM subjects WHERE curriculum_id = ?")
		if err := sqlx.SelectContext(ctx, exec, &subjectIDs, q, id); err != nil {
			return errors.Wrap(err, "querying subjects")
		}
		if err := deleteTree(ctx, exec, curriculum.LevelSubject, subjectIDs); err != nil {
			return err
		}
		res, err := exec.ExecContext(ctx, exec.Rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", curriculaTable)), id)
		if err != nil {
			return errors.Wrap(err, "deleting curriculum")
		}
		return expectRows(res)
	})
}

func (repo curriculumRepository) CreateEntity(ctx context.Context, e curriculum.Entity) (curriculum.Entity, error) {
	table, parentKey, err := levelTable(e.Level)
	if err != nil {
		return curriculum.Entity{}, err
	}
	r := toEntityRow(e)
	q := fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (:id, :name, :description, :slug, :created_by, :created_at, :updated_at, :parent_id)",
		table, recordColumns, parentKey)
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, r); err != nil {
		return curriculum.Entity{}, trapSlugErr(err, "inserting "+e.Level.String())
	}
	return r.entity(e.Level), nil
}

func (repo curriculumRepository) selectEntities(ctx context.Context, level curriculum.Level, where string, args ...interface{}) ([]curriculum.Entity, error) {
	sel, err := entitySelect(level)
	if err != nil {
		return nil, err
	}
	q := sel + " " + where + " ORDER BY created_at, id"
	if len(args) > 0 {
		if q, args, err = sqlx.In(q, args...); err != nil {
			return nil, errors.Wrapf(err, "building %s query", level.Resource())
		}
	}
	var rows []entityRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrapf(err, "querying %s", level.Resource())
	}
	entities := make([]curriculum.Entity, 0, len(rows))
	for _, r := range rows {
		entities = append(entities, r.entity(level))
	}
	return entities, nil
}

func (repo curriculumRepository) GetEntities(ctx context.Context, level curriculum.Level, ids ...string) ([]curriculum.Entity, error) {
	ids = core.UniqueStrings(ids)
	if len(ids) == 0 {
		return []curriculum.Entity{}, nil
	}
	return repo.selectEntities(ctx, level, "WHERE id IN (?)", ids)
}

func (repo curriculumRepository) GetEntityBySlug(ctx context.Context, level curriculum.Level, slug string) (curriculum.Entity, error) {
	entities, err := repo.selectEntities(ctx, level, "WHERE slug = ?", slug)
	if err != nil {
		return curriculum.Entity{}, err
	}
	if len(entities) == 0 {
		return curriculum.Entity{}, curriculum.ErrNotFound
	}
	return entities[0], nil
}

func (repo curriculumRepository) EntitySlugExists(ctx context.Context, level curriculum.Level, slug string) (bool, error) {
	table, _, err := levelTable(level)
	if err != nil {
		return false, err
	}
	return repo.slugExists(ctx, table, slug)
}

func (repo curriculumRepository) QueryEntities(ctx context.Context, level curriculum.Level, parentIDs ...string) ([]curriculum.Entity, error) {
	parentIDs = core.UniqueStrings(parentIDs)
	if len(parentIDs) == 0 {
		return repo.selectEntities(ctx, level, "")
	}
	return repo.selectEntities(ctx, level, fmt.Sprintf("WHERE %s IN (?)", level.ParentKey()), parentIDs)
}

func (repo curriculumRepository) UpdateEntity(ctx context.Context, e curriculum.Entity) (curriculum.Entity, error) {
	table, parentKey, err := levelTable(e.Level)
	if err != nil {
		return curriculum.Entity{}, err
	}
	q := fmt.Sprintf(
		"UPDATE %s SET name = :name, description = :description, slug = :slug, %s = :parent_id, updated_at = :updated_at WHERE id = :id",
		table, parentKey)
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, toEntityRow(e))
	if err != nil {
		return curriculum.Entity{}, trapSlugErr(err, "updating "+e.Level.String())
	}
	if err := expectRows(res); err != nil {
		return curriculum.Entity{}, err
	}
	found, err := repo.GetEntities(ctx, e.Level, e.ID)
	if err != nil {
		return curriculum.Entity{}, err
	}
	if len(found) == 0 {
		return curriculum.Entity{}, curriculum.ErrNotFound
	}
	return found[0], nil
}

func (repo curriculumRepository) DeleteEntity(ctx context.Context, level curriculum.Level, id string) error {
	found, err := repo.GetEntities(ctx, level, id)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return curriculum.ErrNotFound
	}
	return repo.inTx(ctx, func(exec core.DBExecutor) error {
		return deleteTree(ctx, exec, level, []string{id})
	})
}
