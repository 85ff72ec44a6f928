package curriculum

import (
	"context"
	"errors"
)

var (
	// errors
	ErrNotFound         = errors.New("not found")
	ErrParentNotFound   = errors.New("parent not found")
	ErrParentUnresolved = errors.New("parent was not created")
	ErrSlugExists       = errors.New("slug already exists")
)

type (
	// EndpointSet is the create/update/delete triad the backend exposes for one level.
	EndpointSet interface {
		Create(ctx context.Context, e Entity) (Entity, error)
		Update(ctx context.Context, e Entity) (Entity, error)
		// Delete removes the record and everything below it.
		Delete(ctx context.Context, id string) error
	}

	Endpoints struct {
		Subjects EndpointSet
		Courses  EndpointSet
		Units    EndpointSet
		Topics   EndpointSet
	}

	// Reader is the read side of the backend.
	Reader interface {
		GetCurriculum(ctx context.Context, id string) (Curriculum, error)
		// GetCurricula returns the curricula found among ids; unknown ids are left out.
		GetCurricula(ctx context.Context, ids ...string) ([]Curriculum, error)
		GetHierarchy(ctx context.Context, curriculumID string) (Hierarchy, error)
		// GetEntities returns the records of one level found among ids; unknown ids are left out.
		GetEntities(ctx context.Context, level Level, ids ...string) ([]Entity, error)
	}

	Backend interface {
		Reader
		CreateCurriculum(ctx context.Context, nc NewCurriculum) (Curriculum, error)
		UpdateCurriculum(ctx context.Context, id string, uc UpdateCurriculum) (Curriculum, error)
		Endpoints() Endpoints
	}
)

func (ep Endpoints) For(level Level) EndpointSet {
	switch level {
	case LevelSubject:
		return ep.Subjects
	case LevelCourse:
		return ep.Courses
	case LevelUnit:
		return ep.Units
	case LevelTopic:
		return ep.Topics
	}
	return nil
}

// createPayload maps a create change onto the record sent to the backend.
func createPayload(c Change, parentID string) Entity {
	return Entity{Level: c.Level, Name: c.Name, ParentID: parentID}
}

// updatePayload maps an update change onto the record sent to the backend. Only the name is updated.
func updatePayload(c Change) Entity {
	return Entity{Level: c.Level, ID: c.ID.Ref(), Name: c.Name}
}
