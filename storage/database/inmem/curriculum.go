package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
)

type curriculumRepository struct {
	db *DB
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *DB) *curriculumRepository {
	return &curriculumRepository{db: db}
}

func sortRows(rows []*row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
}

// slugTaken reports whether a row other than id already holds slug.
func slugTaken(table map[string]*row, slug, id string, slugOf func(*row) string) bool {
	for rid, r := range table {
		if rid != id && slugOf(r) == slug {
			return true
		}
	}
	return false
}

func curriculumSlug(r *row) string { return r.curriculum.Slug }
func entitySlug(r *row) string     { return r.entity.Slug }

func (repo *curriculumRepository) CreateCurriculum(_ context.Context, cur curriculum.Curriculum) (curriculum.Curriculum, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.curricula[cur.ID]; ok {
		return curriculum.Curriculum{}, errors.Errorf("curriculum %s already exists", cur.ID)
	}
	if slugTaken(repo.db.curricula, cur.Slug, cur.ID, curriculumSlug) {
		return curriculum.Curriculum{}, errors.Wrap(curriculum.ErrSlugExists, "inserting curriculum")
	}
	repo.db.curricula[cur.ID] = &row{seq: repo.db.next(), curriculum: cur}
	return cur, nil
}

var curriculumOrderings = map[string]func(a, b curriculum.Curriculum) int{
	"name":       func(a, b curriculum.Curriculum) int { return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) },
	"slug":       func(a, b curriculum.Curriculum) int { return strings.Compare(a.Slug, b.Slug) },
	"created_at": func(a, b curriculum.Curriculum) int { return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano()) },
	"updated_at": func(a, b curriculum.Curriculum) int { return compareTimes(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano()) },
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (repo *curriculumRepository) QueryCurricula(_ context.Context, ordering ...core.DBOrdering) ([]curriculum.Curriculum, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]*row, 0, len(repo.db.curricula))
	for _, r := range repo.db.curricula {
		rows = append(rows, r)
	}
	sortRows(rows)
	curricula := make([]curriculum.Curriculum, 0, len(rows))
	for _, r := range rows {
		curricula = append(curricula, r.curriculum)
	}

	for _, o := range ordering {
		if _, ok := curriculumOrderings[o.Field]; !ok {
			return nil, errors.Errorf("unsupported ordering field %q", o.Field)
		}
	}
	sort.SliceStable(curricula, func(i, j int) bool {
		for _, o := range ordering {
			c := curriculumOrderings[o.Field](curricula[i], curricula[j])
			if c == 0 {
				continue
			}
			if o.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return curricula, nil
}

func (repo *curriculumRepository) GetCurricula(_ context.Context, ids ...string) ([]curriculum.Curriculum, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	curricula := make([]curriculum.Curriculum, 0, len(ids))
	for _, id := range core.UniqueStrings(ids) {
		if r, ok := repo.db.curricula[id]; ok {
			curricula = append(curricula, r.curriculum)
		}
	}
	return curricula, nil
}

func (repo *curriculumRepository) GetCurriculumBySlug(_ context.Context, slug string) (curriculum.Curriculum, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.curricula {
		if r.curriculum.Slug == slug {
			return r.curriculum, nil
		}
	}
	return curriculum.Curriculum{}, curriculum.ErrNotFound
}

func (repo *curriculumRepository) CurriculumSlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := repo.GetCurriculumBySlug(ctx, slug)
	if err == curriculum.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (repo *curriculumRepository) UpdateCurriculum(_ context.Context, cur curriculum.Curriculum) (curriculum.Curriculum, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.curricula[cur.ID]
	if !ok {
		return curriculum.Curriculum{}, curriculum.ErrNotFound
	}
	if slugTaken(repo.db.curricula, cur.Slug, cur.ID, curriculumSlug) {
		return curriculum.Curriculum{}, errors.Wrap(curriculum.ErrSlugExists, "updating curriculum")
	}
	r.curriculum = cur
	return cur, nil
}

func (repo *curriculumRepository) DeleteCurriculum(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.curricula[id]; !ok {
		return curriculum.ErrNotFound
	}
	repo.deleteChildren(curriculum.LevelSubject, id)
	delete(repo.db.curricula, id)
	return nil
}

// deleteChildren removes, leaf-first, every record of level (and below) hanging off parentID.
func (repo *curriculumRepository) deleteChildren(level curriculum.Level, parentID string) {
	table := repo.db.levels[level]
	for id, r := range table {
		if r.entity.ParentID != parentID {
			continue
		}
		if child, ok := level.Child(); ok {
			repo.deleteChildren(child, id)
		}
		delete(table, id)
	}
}

func (repo *curriculumRepository) table(level curriculum.Level) (map[string]*row, error) {
	table, ok := repo.db.levels[level]
	if !ok {
		return nil, errors.Errorf("unknown level %d", int(level))
	}
	return table, nil
}

func (repo *curriculumRepository) CreateEntity(_ context.Context, e curriculum.Entity) (curriculum.Entity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	table, err := repo.table(e.Level)
	if err != nil {
		return curriculum.Entity{}, err
	}
	if _, ok := table[e.ID]; ok {
		return curriculum.Entity{}, errors.Errorf("%s %s already exists", e.Level, e.ID)
	}
	if slugTaken(table, e.Slug, e.ID, entitySlug) {
		return curriculum.Entity{}, errors.Wrapf(curriculum.ErrSlugExists, "inserting %s", e.Level)
	}
	table[e.ID] = &row{seq: repo.db.next(), entity: e}
	return e, nil
}

func (repo *curriculumRepository) GetEntities(_ context.Context, level curriculum.Level, ids ...string) ([]curriculum.Entity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	table, err := repo.table(level)
	if err != nil {
		return nil, err
	}
	entities := make([]curriculum.Entity, 0, len(ids))
	for _, id := range core.UniqueStrings(ids) {
		if r, ok := table[id]; ok {
			entities = append(entities, r.entity)
		}
	}
	return entities, nil
}

func (repo *curriculumRepository) GetEntityBySlug(_ context.Context, level curriculum.Level, slug string) (curriculum.Entity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	table, err := repo.table(level)
	if err != nil {
		return curriculum.Entity{}, err
	}
	for _, r := range table {
		if r.entity.Slug == slug {
			return r.entity, nil
		}
	}
	return curriculum.Entity{}, curriculum.ErrNotFound
}

func (repo *curriculumRepository) EntitySlugExists(ctx context.Context, level curriculum.Level, slug string) (bool, error) {
	_, err := repo.GetEntityBySlug(ctx, level, slug)
	if err == curriculum.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (repo *curriculumRepository) QueryEntities(_ context.Context, level curriculum.Level, parentIDs ...string) ([]curriculum.Entity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	table, err := repo.table(level)
	if err != nil {
		return nil, err
	}
	parents := make(map[string]bool, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = true
	}
	rows := make([]*row, 0, len(table))
	for _, r := range table {
		if len(parents) == 0 || parents[r.entity.ParentID] {
			rows = append(rows, r)
		}
	}
	sortRows(rows)
	entities := make([]curriculum.Entity, 0, len(rows))
	for _, r := range rows {
		entities = append(entities, r.entity)
	}
	return entities, nil
}

func (repo *curriculumRepository) UpdateEntity(_ context.Context, e curriculum.Entity) (curriculum.Entity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	table, err := repo.table(e.Level)
	if err != nil {
		return curriculum.Entity{}, err
	}
	r, ok := table[e.ID]
	if !ok {
		return curriculum.Entity{}, curriculum.ErrNotFound
	}
	if slugTaken(table, e.Slug, e.ID, entitySlug) {
		return curriculum.Entity{}, errors.Wrapf(curriculum.ErrSlugExists, "updating %s", e.Level)
	}
	r.entity = e
	return e, nil
}

func (repo *curriculumRepository) DeleteEntity(_ context.Context, level curriculum.Level, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	table, err := repo.table(level)
	if err != nil {
		return err
	}
	if _, ok := table[id]; !ok {
		return curriculum.ErrNotFound
	}
	if child, ok := level.Child(); ok {
		repo.deleteChildren(child, id)
	}
	delete(table, id)
	return nil
}
