package curriculum

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"

	"github.com/trezcool/curricula/core"
)

const maxSlugAttempts = 5

var (
	nowFunc   = func() time.Time { return time.Now().UTC() } // mockable
	newIDFunc = uuid.NewString                               // mockable
)

// Repository persists curricula and the four hierarchy levels.
type Repository interface {
	CreateCurriculum(ctx context.Context, cur Curriculum) (Curriculum, error)
	// QueryCurricula defaults to creation order.
	QueryCurricula(ctx context.Context, ordering ...core.DBOrdering) ([]Curriculum, error)
	GetCurricula(ctx context.Context, ids ...string) ([]Curriculum, error)
	GetCurriculumBySlug(ctx context.Context, slug string) (Curriculum, error)
	CurriculumSlugExists(ctx context.Context, slug string) (bool, error)
	UpdateCurriculum(ctx context.Context, cur Curriculum) (Curriculum, error)
	// DeleteCurriculum removes the curriculum and its whole hierarchy.
	DeleteCurriculum(ctx context.Context, id string) error

	CreateEntity(ctx context.Context, e Entity) (Entity, error)
	GetEntities(ctx context.Context, level Level, ids ...string) ([]Entity, error)
	GetEntityBySlug(ctx context.Context, level Level, slug string) (Entity, error)
	EntitySlugExists(ctx context.Context, level Level, slug string) (bool, error)
	// QueryEntities lists the records of a level in creation order, restricted to parentIDs when given.
	QueryEntities(ctx context.Context, level Level, parentIDs ...string) ([]Entity, error)
	UpdateEntity(ctx context.Context, e Entity) (Entity, error)
	// DeleteEntity removes the record and every record below it.
	DeleteEntity(ctx context.Context, level Level, id string) error
}

// Catalog is the backend implemented over a Repository.
// Lookups accept either an id or a slug.
type Catalog struct {
	repo   Repository
	logger core.Logger
}

var _ Backend = (*Catalog)(nil)

func NewCatalog(repo Repository, logger core.Logger) *Catalog {
	return &Catalog{repo: repo, logger: logger}
}

func createdBy(ctx context.Context) string {
	if a, ok := core.ActorFromContext(ctx); ok {
		return a.ID
	}
	return ""
}

// withUniqueSlug derives a slug from name and hands it to save, adding a random
// suffix while the slug is taken, either on lookup or when save reports ErrSlugExists.
func withUniqueSlug(name string, exists func(string) (bool, error), save func(slug string) error) error {
	base := slug.Make(name)
	if base == "" {
		base = "item"
	}
	candidate := base
	for i := 0; i < maxSlugAttempts; i++ {
		taken, err := exists(candidate)
		if err != nil {
			return errors.Wrap(err, "checking slug")
		}
		if !taken {
			if err = save(candidate); errors.Cause(err) != ErrSlugExists {
				return err
			}
		}
		candidate = base + "-" + newIDFunc()[:6]
	}
	return errors.Wrapf(ErrSlugExists, "%q", base)
}

func (c *Catalog) CreateCurriculum(ctx context.Context, nc NewCurriculum) (Curriculum, error) {
	if err := nc.Validate(); err != nil {
		return Curriculum{}, err
	}
	now := nowFunc()
	cur := Curriculum{
		ID:          newIDFunc(),
		Name:        nc.Name,
		Description: nc.Description,
		CreatedBy:   createdBy(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var created Curriculum
	err := withUniqueSlug(nc.Name,
		func(s string) (bool, error) { return c.repo.CurriculumSlugExists(ctx, s) },
		func(s string) (err error) {
			cur.Slug = s
			created, err = c.repo.CreateCurriculum(ctx, cur)
			return err
		})
	return created, err
}

func (c *Catalog) QueryCurricula(ctx context.Context, ordering ...core.DBOrdering) ([]Curriculum, error) {
	return c.repo.QueryCurricula(ctx, ordering...)
}

func (c *Catalog) GetCurriculum(ctx context.Context, idOrSlug string) (Curriculum, error) {
	found, err := c.repo.GetCurricula(ctx, idOrSlug)
	if err != nil {
		return Curriculum{}, err
	}
	if len(found) > 0 {
		return found[0], nil
	}
	return c.repo.GetCurriculumBySlug(ctx, idOrSlug)
}

func (c *Catalog) GetCurricula(ctx context.Context, ids ...string) ([]Curriculum, error) {
	return c.repo.GetCurricula(ctx, ids...)
}

// GetHierarchy assembles the full tree with one query per level.
func (c *Catalog) GetHierarchy(ctx context.Context, idOrSlug string) (Hierarchy, error) {
	cur, err := c.GetCurriculum(ctx, idOrSlug)
	if err != nil {
		return Hierarchy{}, err
	}

	byParent := make(map[Level]map[string][]Entity, len(Levels))
	parentIDs := []string{cur.ID}
	for _, level := range Levels {
		entities, err := c.repo.QueryEntities(ctx, level, parentIDs...)
		if err != nil {
			return Hierarchy{}, errors.Wrapf(err, "querying %s", level.Resource())
		}
		byParent[level] = make(map[string][]Entity)
		parentIDs = parentIDs[:0:0]
		for _, e := range entities {
			byParent[level][e.ParentID] = append(byParent[level][e.ParentID], e)
			parentIDs = append(parentIDs, e.ID)
		}
		if len(parentIDs) == 0 {
			break
		}
	}

	var build func(level Level, parentID string) []HierarchyNode
	build = func(level Level, parentID string) []HierarchyNode {
		var nodes []HierarchyNode
		child, hasChild := level.Child()
		for _, e := range byParent[level][parentID] {
			n := HierarchyNode{Entity: e}
			if hasChild {
				n.Children = build(child, e.ID)
			}
			nodes = append(nodes, n)
		}
		return nodes
	}
	return Hierarchy{Curriculum: cur, Subjects: build(LevelSubject, cur.ID)}, nil
}

func (c *Catalog) UpdateCurriculum(ctx context.Context, idOrSlug string, uc UpdateCurriculum) (Curriculum, error) {
	if err := uc.Validate(); err != nil {
		return Curriculum{}, err
	}
	cur, err := c.GetCurriculum(ctx, idOrSlug)
	if err != nil {
		return Curriculum{}, err
	}
	cur.Description = uc.Description
	cur.UpdatedAt = nowFunc()
	if uc.Name == cur.Name {
		return c.repo.UpdateCurriculum(ctx, cur)
	}

	current := cur.Slug
	cur.Name = uc.Name
	var updated Curriculum
	err = withUniqueSlug(uc.Name,
		func(s string) (bool, error) {
			if s == current {
				return false, nil
			}
			return c.repo.CurriculumSlugExists(ctx, s)
		},
		func(s string) (err error) {
			cur.Slug = s
			updated, err = c.repo.UpdateCurriculum(ctx, cur)
			return err
		})
	return updated, err
}

func (c *Catalog) DeleteCurriculum(ctx context.Context, idOrSlug string) error {
	cur, err := c.GetCurriculum(ctx, idOrSlug)
	if err != nil {
		return err
	}
	return c.repo.DeleteCurriculum(ctx, cur.ID)
}

// parentOf resolves the parent of a record about to be created or moved.
func (c *Catalog) parentOf(ctx context.Context, level Level, idOrSlug string) (string, error) {
	var (
		id  string
		err error
	)
	if parent, ok := level.Parent(); ok {
		var e Entity
		e, err = c.GetEntity(ctx, parent, idOrSlug)
		id = e.ID
	} else {
		var cur Curriculum
		cur, err = c.GetCurriculum(ctx, idOrSlug)
		id = cur.ID
	}
	if errors.Cause(err) == ErrNotFound {
		return "", core.NewValidationError(ErrParentNotFound, core.FieldError{Field: level.ParentKey(), Error: ErrParentNotFound.Error()})
	}
	return id, err
}

// saveEntity stores e under a unique slug derived from its name, through save.
func (c *Catalog) saveEntity(ctx context.Context, e Entity, current string, save func(context.Context, Entity) (Entity, error)) (Entity, error) {
	var saved Entity
	err := withUniqueSlug(e.Name,
		func(s string) (bool, error) {
			if s == current {
				return false, nil
			}
			return c.repo.EntitySlugExists(ctx, e.Level, s)
		},
		func(s string) (err error) {
			e.Slug = s
			saved, err = save(ctx, e)
			return err
		})
	return saved, err
}

type newEntity struct {
	Name string `json:"name" validate:"notblank"`
}

func (c *Catalog) CreateEntity(ctx context.Context, e Entity) (Entity, error) {
	if !e.Level.Valid() {
		return Entity{}, errLevelNotSet
	}
	ne := newEntity{Name: core.CleanString(e.Name)}
	if err := core.Validate.Struct(ne); err != nil {
		return Entity{}, core.TranslateValidationErrors(err)
	}
	if core.CleanString(e.ParentID) == "" {
		return Entity{}, core.NewValidationError(nil, core.FieldError{Field: e.Level.ParentKey(), Error: "this field is required"})
	}
	parentID, err := c.parentOf(ctx, e.Level, core.CleanString(e.ParentID))
	if err != nil {
		return Entity{}, err
	}

	now := nowFunc()
	return c.saveEntity(ctx, Entity{
		Level:       e.Level,
		ID:          newIDFunc(),
		Name:        ne.Name,
		Description: core.CleanString(e.Description),
		ParentID:    parentID,
		CreatedBy:   createdBy(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, "", c.repo.CreateEntity)
}

func (c *Catalog) GetEntity(ctx context.Context, level Level, idOrSlug string) (Entity, error) {
	found, err := c.repo.GetEntities(ctx, level, idOrSlug)
	if err != nil {
		return Entity{}, err
	}
	if len(found) > 0 {
		return found[0], nil
	}
	return c.repo.GetEntityBySlug(ctx, level, idOrSlug)
}

func (c *Catalog) entityByID(ctx context.Context, level Level, id string) (Entity, error) {
	found, err := c.repo.GetEntities(ctx, level, id)
	if err != nil {
		return Entity{}, err
	}
	if len(found) == 0 {
		return Entity{}, ErrNotFound
	}
	return found[0], nil
}

func (c *Catalog) GetEntities(ctx context.Context, level Level, ids ...string) ([]Entity, error) {
	return c.repo.GetEntities(ctx, level, ids...)
}

func (c *Catalog) QueryEntities(ctx context.Context, level Level, parentIDs ...string) ([]Entity, error) {
	return c.repo.QueryEntities(ctx, level, parentIDs...)
}

// UpdateEntity applies the non-empty fields of e to the stored record. A new parent moves the record.
func (c *Catalog) UpdateEntity(ctx context.Context, e Entity) (Entity, error) {
	if !e.Level.Valid() {
		return Entity{}, errLevelNotSet
	}
	cur, err := c.GetEntity(ctx, e.Level, e.ID)
	if err != nil {
		return Entity{}, err
	}
	return c.updateEntity(ctx, cur, e)
}

func (c *Catalog) updateEntity(ctx context.Context, cur, e Entity) (_ Entity, err error) {
	renamed := false
	if name := core.CleanString(e.Name); name != "" && name != cur.Name {
		cur.Name, renamed = name, true
	}
	if desc := core.CleanString(e.Description); desc != "" {
		cur.Description = desc
	}
	if parent := core.CleanString(e.ParentID); parent != "" && parent != cur.ParentID {
		if cur.ParentID, err = c.parentOf(ctx, cur.Level, parent); err != nil {
			return Entity{}, err
		}
	}
	cur.UpdatedAt = nowFunc()
	if !renamed {
		return c.repo.UpdateEntity(ctx, cur)
	}
	return c.saveEntity(ctx, cur, cur.Slug, c.repo.UpdateEntity)
}

func (c *Catalog) DeleteEntity(ctx context.Context, level Level, idOrSlug string) error {
	e, err := c.GetEntity(ctx, level, idOrSlug)
	if err != nil {
		return err
	}
	return c.deleteEntity(ctx, e)
}

func (c *Catalog) deleteEntity(ctx context.Context, e Entity) error {
	if err := c.repo.DeleteEntity(ctx, e.Level, e.ID); err != nil {
		return err
	}
	c.logger.Debug("catalog: deleted "+e.Level.String()+" "+e.ID+" and its descendants", createdBy(ctx))
	return nil
}

// Endpoints exposes the catalog as per-level endpoint sets, for in-process saves.
// Unlike the catalog methods, they address existing records by id only.
func (c *Catalog) Endpoints() Endpoints {
	return Endpoints{
		Subjects: catalogEndpoints{c, LevelSubject},
		Courses:  catalogEndpoints{c, LevelCourse},
		Units:    catalogEndpoints{c, LevelUnit},
		Topics:   catalogEndpoints{c, LevelTopic},
	}
}

type catalogEndpoints struct {
	catalog *Catalog
	level   Level
}

func (ep catalogEndpoints) Create(ctx context.Context, e Entity) (Entity, error) {
	e.Level = ep.level
	return ep.catalog.CreateEntity(ctx, e)
}

func (ep catalogEndpoints) Update(ctx context.Context, e Entity) (Entity, error) {
	cur, err := ep.catalog.entityByID(ctx, ep.level, e.ID)
	if err != nil {
		return Entity{}, err
	}
	return ep.catalog.updateEntity(ctx, cur, e)
}

func (ep catalogEndpoints) Delete(ctx context.Context, id string) error {
	e, err := ep.catalog.entityByID(ctx, ep.level, id)
	if err != nil {
		return err
	}
	return ep.catalog.deleteEntity(ctx, e)
}
