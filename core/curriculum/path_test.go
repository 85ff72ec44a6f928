package curriculum

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCaches() *Caches {
	c := NewCaches()
	c.AddCurricula(Curriculum{ID: "cur1", Name: "Grade 9"})
	c.Add(
		Entity{Level: LevelSubject, ID: "s1", Name: "Math", ParentID: "cur1"},
		Entity{Level: LevelCourse, ID: "c1", Name: "Algebra", ParentID: "s1"},
		Entity{Level: LevelUnit, ID: "u1", Name: "Equations", ParentID: "c1"},
		Entity{Level: LevelTopic, ID: "t1", Name: "Linear", ParentID: "u1"},
	)
	return c
}

func TestCaches_ResolvePath(t *testing.T) {
	full := HierarchyPath{
		Curriculum: PathNode{ID: "cur1", Name: "Grade 9"},
		Subject:    PathNode{ID: "s1", Name: "Math"},
		Course:     PathNode{ID: "c1", Name: "Algebra"},
		Unit:       PathNode{ID: "u1", Name: "Equations"},
		Topic:      PathNode{ID: "t1", Name: "Linear"},
	}

	tests := []struct {
		name    string
		topicID string
		drop    func(c *Caches)
		want    HierarchyPath
		wantOK  bool
	}{
		{name: "complete", topicID: "t1", want: full, wantOK: true},
		{name: "unknown topic", topicID: "t9"},
		{name: "missing unit", topicID: "t1", drop: func(c *Caches) { delete(c.Units, "u1") }},
		{name: "missing course", topicID: "t1", drop: func(c *Caches) { delete(c.Courses, "c1") }},
		{name: "missing subject", topicID: "t1", drop: func(c *Caches) { delete(c.Subjects, "s1") }},
		{name: "missing curriculum", topicID: "t1", drop: func(c *Caches) { delete(c.Curricula, "cur1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleCaches()
			if tt.drop != nil {
				tt.drop(c)
			}
			got, ok := c.ResolvePath(tt.topicID)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "Grade 9 > Math > Algebra > Equations > Linear", full.String())
}

// fakeReader serves sampleCaches and records the ids asked for each level.
type fakeReader struct {
	caches *Caches
	mu     sync.Mutex
	asked  map[string][]string
	fail   Level
}

func (r *fakeReader) note(key string, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	r.asked[key] = append(r.asked[key], sorted...)
}

func (r *fakeReader) GetCurriculum(_ context.Context, id string) (Curriculum, error) {
	if cur, ok := r.caches.Curricula[id]; ok {
		return cur, nil
	}
	return Curriculum{}, ErrNotFound
}

func (r *fakeReader) GetCurricula(_ context.Context, ids ...string) ([]Curriculum, error) {
	r.note("curricula", ids)
	var out []Curriculum
	for _, id := range ids {
		if cur, ok := r.caches.Curricula[id]; ok {
			out = append(out, cur)
		}
	}
	return out, nil
}

func (r *fakeReader) GetHierarchy(context.Context, string) (Hierarchy, error) {
	return Hierarchy{}, errors.New("not implemented")
}

func (r *fakeReader) GetEntities(_ context.Context, level Level, ids ...string) ([]Entity, error) {
	if level == r.fail {
		return nil, errors.New("unavailable")
	}
	r.note(level.Resource(), ids)
	var out []Entity
	for _, id := range ids {
		if e, ok := r.caches.entities(level)[id]; ok {
			e.Level = 0 // the loader must not rely on readers setting it
			out = append(out, e)
		}
	}
	return out, nil
}

func TestLoader(t *testing.T) {
	caches := sampleCaches()
	caches.Add(
		Entity{Level: LevelTopic, ID: "t2", Name: "Quadratic", ParentID: "u1"},
		Entity{Level: LevelTopic, ID: "t3", Name: "Orphan", ParentID: "u404"},
	)
	reader := &fakeReader{caches: caches, asked: make(map[string][]string)}
	loader := NewLoader(reader, testLogger)

	paths, err := loader.Resolve(ctx, "t1", "t2", "t1", "t3", "t404", "")
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.Equal(t, "Grade 9 > Math > Algebra > Equations > Quadratic", paths["t2"].String())
	assert.NotContains(t, paths, "t3")

	// every level is fetched once, with distinct ids only
	assert.Equal(t, map[string][]string{
		"topics":    {"t1", "t2", "t3", "t404"},
		"units":     {"u1", "u404"},
		"courses":   {"c1"},
		"subjects":  {"s1"},
		"curricula": {"cur1"},
	}, reader.asked)
}

func TestLoader_errors(t *testing.T) {
	reader := &fakeReader{caches: sampleCaches(), asked: make(map[string][]string), fail: LevelCourse}
	_, err := NewLoader(reader, testLogger).Load(ctx, "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading courses")

	caches, err := NewLoader(reader, testLogger).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, caches.Topics)
}
