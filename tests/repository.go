package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
)

var ctx = context.Background()

func entityIDs(entities []curriculum.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return ids
}

// RunRepositoryTests runs the behaviour every curriculum.Repository must share.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) curriculum.Repository) {
	t.Run("curricula", func(t *testing.T) {
		repo := newRepo(t)
		now := time.Now()
		bio := CreateCurriculum(t, repo, "Biology", now)
		alg := CreateCurriculum(t, repo, "Algebra", now.Add(time.Minute))

		found, err := repo.GetCurricula(ctx, alg.ID, "missing", alg.ID)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Algebra", found[0].Name)
		assert.True(t, alg.CreatedAt.Equal(found[0].CreatedAt))

		got, err := repo.GetCurriculumBySlug(ctx, "biology")
		require.NoError(t, err)
		assert.Equal(t, bio.ID, got.ID)
		_, err = repo.GetCurriculumBySlug(ctx, "chemistry")
		assert.Equal(t, curriculum.ErrNotFound, errors.Cause(err))

		exists, err := repo.CurriculumSlugExists(ctx, "algebra")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = repo.CurriculumSlugExists(ctx, "chemistry")
		require.NoError(t, err)
		assert.False(t, exists)

		all, err := repo.QueryCurricula(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Biology", "Algebra"}, []string{all[0].Name, all[1].Name})
		all, err = repo.QueryCurricula(ctx, core.DBOrdering{Field: "name", Ascending: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"Algebra", "Biology"}, []string{all[0].Name, all[1].Name})
		_, err = repo.QueryCurricula(ctx, core.DBOrdering{Field: "password"})
		assert.Error(t, err)

		bio.Name, bio.Description = "Life Sciences", "cells"
		updated, err := repo.UpdateCurriculum(ctx, bio)
		require.NoError(t, err)
		assert.Equal(t, "Life Sciences", updated.Name)
		assert.Equal(t, "cells", updated.Description)

		_, err = repo.UpdateCurriculum(ctx, curriculum.Curriculum{ID: "missing", Name: "x", Slug: "x"})
		assert.Equal(t, curriculum.ErrNotFound, errors.Cause(err))

		_, err = repo.CreateCurriculum(ctx, curriculum.Curriculum{ID: "dup", Name: "Algebra", Slug: "algebra", CreatedAt: now})
		assert.Equal(t, curriculum.ErrSlugExists, errors.Cause(err))
		updated.Slug = "algebra"
		_, err = repo.UpdateCurriculum(ctx, updated)
		assert.Equal(t, curriculum.ErrSlugExists, errors.Cause(err))
	})

	t.Run("entities", func(t *testing.T) {
		repo := newRepo(t)
		ch := SeedChain(t, repo, "Grade 9", "Mathematics", "Algebra I", "Equations", "Linear")
		now := time.Now().Add(time.Hour)
		course2 := CreateEntity(t, repo, curriculum.LevelCourse, ch.Subject.ID, "Geometry", now)

		found, err := repo.GetEntities(ctx, curriculum.LevelCourse, ch.Course.ID, "missing")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, curriculum.LevelCourse, found[0].Level)
		assert.Equal(t, ch.Subject.ID, found[0].ParentID)

		courses, err := repo.QueryEntities(ctx, curriculum.LevelCourse, ch.Subject.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{ch.Course.ID, course2.ID}, entityIDs(courses))
		courses, err = repo.QueryEntities(ctx, curriculum.LevelCourse, "missing")
		require.NoError(t, err)
		assert.Empty(t, courses)
		topics, err := repo.QueryEntities(ctx, curriculum.LevelTopic)
		require.NoError(t, err)
		assert.Equal(t, []string{ch.Topic.ID}, entityIDs(topics))

		got, err := repo.GetEntityBySlug(ctx, curriculum.LevelUnit, "equations")
		require.NoError(t, err)
		assert.Equal(t, ch.Unit.ID, got.ID)
		_, err = repo.GetEntityBySlug(ctx, curriculum.LevelTopic, "equations")
		assert.Equal(t, curriculum.ErrNotFound, errors.Cause(err))

		exists, err := repo.EntitySlugExists(ctx, curriculum.LevelTopic, "linear")
		require.NoError(t, err)
		assert.True(t, exists)

		ch.Topic.Name, ch.Topic.Slug, ch.Topic.ParentID = "Linear equations", "linear-equations", ch.Unit.ID
		updated, err := repo.UpdateEntity(ctx, ch.Topic)
		require.NoError(t, err)
		assert.Equal(t, "Linear equations", updated.Name)
		assert.Equal(t, "linear-equations", updated.Slug)

		_, err = repo.UpdateEntity(ctx, curriculum.Entity{Level: curriculum.LevelTopic, ID: "missing", Name: "x", Slug: "x", ParentID: ch.Unit.ID})
		assert.Equal(t, curriculum.ErrNotFound, errors.Cause(err))

		_, err = repo.CreateEntity(ctx, curriculum.Entity{
			Level: curriculum.LevelTopic, ID: "dup", Name: "Linear", Slug: "linear-equations", ParentID: ch.Unit.ID, CreatedAt: now,
		})
		assert.Equal(t, curriculum.ErrSlugExists, errors.Cause(err))
		course2.Slug = ch.Course.Slug
		_, err = repo.UpdateEntity(ctx, course2)
		assert.Equal(t, curriculum.ErrSlugExists, errors.Cause(err))
		_, err = repo.CreateEntity(ctx, curriculum.Entity{
			Level: curriculum.LevelUnit, ID: "other-level", Name: "Linear", Slug: "linear-equations", ParentID: ch.Course.ID, CreatedAt: now,
		})
		assert.NoError(t, err, "slugs are unique per level")
	})

	t.Run("delete entity cascades", func(t *testing.T) {
		repo := newRepo(t)
		ch := SeedChain(t, repo, "Grade 10", "Physics", "Mechanics", "Kinematics", "Velocity")
		other := CreateEntity(t, repo, curriculum.LevelCourse, ch.Subject.ID, "Optics")

		require.NoError(t, repo.DeleteEntity(ctx, curriculum.LevelCourse, ch.Course.ID))

		courses, err := repo.QueryEntities(ctx, curriculum.LevelCourse)
		require.NoError(t, err)
		assert.Equal(t, []string{other.ID}, entityIDs(courses))
		units, err := repo.QueryEntities(ctx, curriculum.LevelUnit)
		require.NoError(t, err)
		assert.Empty(t, units)
		topics, err := repo.QueryEntities(ctx, curriculum.LevelTopic)
		require.NoError(t, err)
		assert.Empty(t, topics)

		err = repo.DeleteEntity(ctx, curriculum.LevelCourse, ch.Course.ID)
		assert.Equal(t, curriculum.ErrNotFound, errors.Cause(err))
	})

	t.Run("delete curriculum cascades", func(t *testing.T) {
		repo := newRepo(t)
		ch := SeedChain(t, repo, "Grade 11", "Chemistry", "Organic", "Alkanes", "Methane")
		keep := SeedChain(t, repo, "Grade 12", "History", "Modern", "Wars", "WWI")

		require.NoError(t, repo.DeleteCurriculum(ctx, ch.Curriculum.ID))

		found, err := repo.GetCurricula(ctx, ch.Curriculum.ID, keep.Curriculum.ID)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, keep.Curriculum.ID, found[0].ID)
		for _, level := range curriculum.Levels {
			entities, err := repo.QueryEntities(ctx, level)
			require.NoError(t, err)
			assert.Len(t, entities, 1, level.String())
		}

		err = repo.DeleteCurriculum(ctx, ch.Curriculum.ID)
		assert.Equal(t, curriculum.ErrNotFound, errors.Cause(err))
	})
}
