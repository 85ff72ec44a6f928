package curriculum_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
	"github.com/trezcool/curricula/storage/database/inmem"
	"github.com/trezcool/curricula/storage/database/sqlx"
	"github.com/trezcool/curricula/tests"
)

var (
	ctx  = context.Background()
	boom = errors.New("boom")
)

func newCatalog() (*curriculum.Catalog, curriculum.Repository) {
	repo := inmemdb.NewCurriculumRepository(inmemdb.Open())
	return curriculum.NewCatalog(repo, testutil.Logger()), repo
}

// staleSlugRepo never sees a slug as taken, like concurrent creates that all check before any inserts.
type staleSlugRepo struct {
	curriculum.Repository
}

func (staleSlugRepo) CurriculumSlugExists(context.Context, string) (bool, error) { return false, nil }

func (staleSlugRepo) EntitySlugExists(context.Context, curriculum.Level, string) (bool, error) {
	return false, nil
}

// flakyBackend fails selected calls of the backend it wraps and counts hierarchy calls.
type flakyBackend struct {
	curriculum.Backend
	failUpdateCurriculum error
	failCreate           map[string]error // by name
	failUpdate           map[string]error // by id
	calls                int32
}

func (b *flakyBackend) UpdateCurriculum(ctx context.Context, id string, uc curriculum.UpdateCurriculum) (curriculum.Curriculum, error) {
	if b.failUpdateCurriculum != nil {
		return curriculum.Curriculum{}, b.failUpdateCurriculum
	}
	return b.Backend.UpdateCurriculum(ctx, id, uc)
}

func (b *flakyBackend) Endpoints() curriculum.Endpoints {
	ep := b.Backend.Endpoints()
	return curriculum.Endpoints{
		Subjects: flakySet{ep.Subjects, b},
		Courses:  flakySet{ep.Courses, b},
		Units:    flakySet{ep.Units, b},
		Topics:   flakySet{ep.Topics, b},
	}
}

type flakySet struct {
	curriculum.EndpointSet
	b *flakyBackend
}

func (s flakySet) Create(ctx context.Context, e curriculum.Entity) (curriculum.Entity, error) {
	atomic.AddInt32(&s.b.calls, 1)
	if err := s.b.failCreate[e.Name]; err != nil {
		return curriculum.Entity{}, err
	}
	return s.EndpointSet.Create(ctx, e)
}

func (s flakySet) Update(ctx context.Context, e curriculum.Entity) (curriculum.Entity, error) {
	atomic.AddInt32(&s.b.calls, 1)
	if err := s.b.failUpdate[e.ID]; err != nil {
		return curriculum.Entity{}, err
	}
	return s.EndpointSet.Update(ctx, e)
}

func (s flakySet) Delete(ctx context.Context, id string) error {
	atomic.AddInt32(&s.b.calls, 1)
	return s.EndpointSet.Delete(ctx, id)
}

func renameFirstChain(t *testing.T, sess *curriculum.EditingSession, names ...string) {
	t.Helper()
	n := sess.Tree().Subjects[0]
	for i, level := range curriculum.Levels {
		require.NoError(t, sess.Rename(level, n.ID, names[i]))
		if len(n.Children) > 0 {
			n = n.Children[0]
		}
	}
}

func hierarchyNames(t *testing.T, cat *curriculum.Catalog, id string) []string {
	t.Helper()
	h, err := cat.GetHierarchy(ctx, id)
	require.NoError(t, err)
	var names []string
	var walk func(nodes []curriculum.HierarchyNode)
	walk = func(nodes []curriculum.HierarchyNode) {
		for _, n := range nodes {
			names = append(names, n.Level.String()+":"+n.Name)
			walk(n.Children)
		}
	}
	walk(h.Subjects)
	return names
}

func TestService_Save(t *testing.T) {
	cat, _ := newCatalog()
	backend := &flakyBackend{Backend: cat}
	svc := curriculum.NewService(backend, testutil.Logger(), 2)

	cur, err := svc.CreateCurriculum(ctx, curriculum.NewCurriculum{Name: " Grade 9 "})
	require.NoError(t, err)
	assert.Equal(t, "Grade 9 curriculum for generating exam questions.", cur.Description)
	assert.Equal(t, "grade-9", cur.Slug)

	sess, err := svc.Open(ctx, cur.ID)
	require.NoError(t, err)
	renameFirstChain(t, sess, "Math", "Algebra", "Equations", "Linear")

	res, err := svc.Save(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, curriculum.SaveSucceeded, res.Outcome)
	assert.Equal(t, 4, res.Created)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, sess.Dirty())
	sess.Tree().Walk(func(level curriculum.Level, _ curriculum.NodeID, n *curriculum.Node) bool {
		assert.True(t, n.ID.IsPersisted(), "%s %s should be persisted", level, n.Name)
		return true
	})
	assert.Equal(t, []string{"subject:Math", "course:Algebra", "unit:Equations", "topic:Linear"}, hierarchyNames(t, cat, cur.ID))
	assert.Equal(t, int32(4), backend.calls)

	// nothing left to send
	res, err = svc.Save(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, curriculum.SaveSucceeded, res.Outcome)
	assert.Equal(t, int32(4), backend.calls)

	// rename, remove and add in one save
	tree := sess.Tree()
	math := tree.Subjects[0]
	algebra := math.Children[0]
	require.NoError(t, sess.Rename(curriculum.LevelSubject, math.ID, "Mathematics"))
	require.NoError(t, sess.RemoveUnit(algebra.Children[0].ID))
	unit, err := sess.AddUnit(algebra.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Rename(curriculum.LevelUnit, unit, "Functions"))
	sess.SetCurriculum("Grade 9 (2024)", "")

	res, err = svc.Save(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, curriculum.SaveSucceeded, res.Outcome)
	assert.Equal(t, 1, res.Created, "the blank topic under Functions is skipped")
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, res.Deleted)
	assert.Len(t, res.Changes.Skipped, 1)
	assert.Zero(t, sess.Ledger().Len())
	assert.Equal(t, "grade-9-2024", res.Curriculum.Slug)
	assert.Equal(t, []string{"subject:Mathematics", "course:Algebra", "unit:Functions"}, hierarchyNames(t, cat, cur.ID))
}

func TestService_SaveAborted(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(sess *curriculum.EditingSession)
		backend func(b *flakyBackend)
		wantErr func(err error) bool
	}{
		{
			name:    "blank curriculum name",
			edit:    func(sess *curriculum.EditingSession) { sess.SetCurriculum(" ", "") },
			wantErr: core.IsValidationError,
		},
		{
			name:    "curriculum update fails",
			backend: func(b *flakyBackend) { b.failUpdateCurriculum = boom },
			wantErr: func(err error) bool { return errors.Cause(err) == boom },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, repo := newCatalog()
			ch := testutil.SeedChain(t, repo, "Grade 9", "Math", "Algebra", "Equations", "Linear")
			backend := &flakyBackend{Backend: cat}
			svc := curriculum.NewService(backend, testutil.Logger(), 2)

			sess, err := svc.Open(ctx, ch.Curriculum.ID)
			require.NoError(t, err)
			require.NoError(t, sess.RemoveTopic(curriculum.PersistedID(ch.Topic.ID)))
			if tt.edit != nil {
				tt.edit(sess)
			}
			if tt.backend != nil {
				tt.backend(backend)
			}

			res, err := svc.Save(ctx, sess)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
			assert.Equal(t, curriculum.SaveFailed, res.Outcome)
			assert.Zero(t, backend.calls, "no hierarchy call after a fatal error")
			assert.Equal(t, 1, sess.Ledger().Len(), "pending changes are kept")
		})
	}
}

func TestService_SavePartialThenRetry(t *testing.T) {
	cat, repo := newCatalog()
	ch := testutil.SeedChain(t, repo, "Grade 9", "Math", "Algebra", "Equations", "Linear")
	backend := &flakyBackend{
		Backend:    cat,
		failCreate: map[string]error{"Physics": boom},
		failUpdate: map[string]error{ch.Topic.ID: boom},
	}
	svc := curriculum.NewService(backend, testutil.Logger(), 2)

	sess, err := svc.Open(ctx, ch.Curriculum.ID)
	require.NoError(t, err)
	subject := sess.AddSubject()
	require.NoError(t, sess.Rename(curriculum.LevelSubject, subject, "Physics"))
	course := sess.Tree().Subjects[1].Children[0].ID
	require.NoError(t, sess.Rename(curriculum.LevelCourse, course, "Mechanics"))
	require.NoError(t, sess.Rename(curriculum.LevelTopic, curriculum.PersistedID(ch.Topic.ID), "Linear equations"))
	require.NoError(t, sess.Rename(curriculum.LevelUnit, curriculum.PersistedID(ch.Unit.ID), "Equations & inequalities"))

	res, err := svc.Save(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, curriculum.SavePartiallySucceeded, res.Outcome)
	assert.Equal(t, 1, res.Updated)
	assert.Len(t, res.Failures, 3) // Physics, Mechanics (no parent), topic rename
	assert.True(t, sess.Dirty())

	pending := sess.Changes()
	require.Len(t, pending.Creates, 2)
	assert.Equal(t, "Physics", pending.Creates[0].Name)
	require.Len(t, pending.Updates, 1)
	assert.Equal(t, "Linear equations", pending.Updates[0].Name)

	backend.failCreate, backend.failUpdate = nil, nil
	res, err = svc.Save(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, curriculum.SaveSucceeded, res.Outcome)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.False(t, sess.Dirty())

	subjects, err := cat.QueryEntities(ctx, curriculum.LevelSubject, ch.Curriculum.ID)
	require.NoError(t, err)
	assert.Len(t, subjects, 2, "retries must not duplicate created subjects")
}

func TestService_SaveEveryHierarchyCallFailed(t *testing.T) {
	cat, repo := newCatalog()
	ch := testutil.SeedChain(t, repo, "Grade 9", "Math", "Algebra", "Equations", "Linear")
	backend := &flakyBackend{Backend: cat, failUpdate: map[string]error{ch.Subject.ID: boom}}
	svc := curriculum.NewService(backend, testutil.Logger(), 1)

	sess, err := svc.Open(ctx, ch.Curriculum.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Rename(curriculum.LevelSubject, curriculum.PersistedID(ch.Subject.ID), "Mathematics"))
	sess.SetCurriculum("Grade 9 (2024)", "")

	res, err := svc.Save(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, curriculum.SavePartiallySucceeded, res.Outcome, "the curriculum record was saved")
	assert.Zero(t, res.Created+res.Updated+res.Deleted)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, curriculum.OpUpdate, res.Failures[0].Change.Op)
	assert.True(t, sess.Dirty())

	cur, err := cat.GetCurriculum(ctx, ch.Curriculum.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grade 9 (2024)", cur.Name)
}

func TestService_SaveSameNamedSiblings(t *testing.T) {
	tests := []struct {
		name string
		repo func(t *testing.T) curriculum.Repository
	}{
		{name: "inmem", repo: func(*testing.T) curriculum.Repository { return inmemdb.NewCurriculumRepository(inmemdb.Open()) }},
		{name: "sqlite", repo: func(t *testing.T) curriculum.Repository { return sqlxrepos.NewCurriculumRepository(testutil.OpenDB(t)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := tt.repo(t)
			cur := testutil.CreateCurriculum(t, repo, "Grade 9")
			cat := curriculum.NewCatalog(staleSlugRepo{repo}, testutil.Logger())
			svc := curriculum.NewService(cat, testutil.Logger(), 4)

			sess, err := svc.Open(ctx, cur.ID)
			require.NoError(t, err)
			for i := 0; i < 3; i++ {
				sess.AddSubject()
			}
			for _, s := range sess.Tree().Subjects {
				require.NoError(t, sess.Rename(curriculum.LevelSubject, s.ID, "Introduction"))
			}

			res, err := svc.Save(ctx, sess)
			require.NoError(t, err)
			assert.Equal(t, curriculum.SaveSucceeded, res.Outcome, "failures: %v", res.Failures)
			assert.Equal(t, 4, res.Created)

			subjects, err := cat.QueryEntities(ctx, curriculum.LevelSubject, cur.ID)
			require.NoError(t, err)
			require.Len(t, subjects, 4)
			slugs := make(map[string]bool)
			for _, s := range subjects {
				assert.Regexp(t, `^introduction(-[0-9a-f]{6})?$`, s.Slug)
				slugs[s.Slug] = true
			}
			assert.Len(t, slugs, 4)
			assert.True(t, slugs["introduction"])
		})
	}
}

func TestService_Open(t *testing.T) {
	cat, _ := newCatalog()
	svc := curriculum.NewService(cat, testutil.Logger(), 1)

	_, err := svc.Open(ctx, "missing")
	assert.Equal(t, curriculum.ErrNotFound, errors.Cause(err))

	_, err = svc.CreateCurriculum(ctx, curriculum.NewCurriculum{})
	assert.True(t, core.IsValidationError(err))
}
