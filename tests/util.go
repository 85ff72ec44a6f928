package testutil

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
	"github.com/trezcool/curricula/services/logger"
	"github.com/trezcool/curricula/storage/database"
)

// Logger discards everything.
func Logger() core.Logger {
	return logsvc.NewConsoleLogger(log.New(io.Discard, "", 0), false)
}

// OpenDB returns a migrated in-memory sqlite database, closed with the test.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(core.DatabaseConfig{Engine: database.EngineSQLite, Name: ":memory:"})
	if err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func timestamp(createdAt []time.Time) time.Time {
	if len(createdAt) > 0 {
		return createdAt[0].UTC().Truncate(time.Microsecond)
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}

func CreateCurriculum(t *testing.T, repo curriculum.Repository, name string, createdAt ...time.Time) curriculum.Curriculum {
	t.Helper()
	tstamp := timestamp(createdAt)
	cur, err := repo.CreateCurriculum(ctx, curriculum.Curriculum{
		ID:          uuid.NewString(),
		Name:        name,
		Description: curriculum.DefaultDescription(name),
		Slug:        slug.Make(name),
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateCurriculum() failed: %v", err)
	}
	return cur
}

func CreateEntity(t *testing.T, repo curriculum.Repository, level curriculum.Level, parentID, name string, createdAt ...time.Time) curriculum.Entity {
	t.Helper()
	tstamp := timestamp(createdAt)
	e, err := repo.CreateEntity(ctx, curriculum.Entity{
		Level:     level,
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug.Make(name),
		ParentID:  parentID,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateEntity() failed: %v", err)
	}
	return e
}

// Chain is one curriculum with a single subject → course → unit → topic path.
type Chain struct {
	Curriculum curriculum.Curriculum
	Subject    curriculum.Entity
	Course     curriculum.Entity
	Unit       curriculum.Entity
	Topic      curriculum.Entity
}

// SeedChain stores a chain named after its arguments. Names must be unique across the database.
func SeedChain(t *testing.T, repo curriculum.Repository, cur, subject, course, unit, topic string) Chain {
	t.Helper()
	var ch Chain
	ch.Curriculum = CreateCurriculum(t, repo, cur)
	ch.Subject = CreateEntity(t, repo, curriculum.LevelSubject, ch.Curriculum.ID, subject)
	ch.Course = CreateEntity(t, repo, curriculum.LevelCourse, ch.Subject.ID, course)
	ch.Unit = CreateEntity(t, repo, curriculum.LevelUnit, ch.Course.ID, unit)
	ch.Topic = CreateEntity(t, repo, curriculum.LevelTopic, ch.Unit.ID, topic)
	return ch
}
