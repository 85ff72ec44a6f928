package curriculum

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/curricula/core"
)

type SaveOutcome int

const (
	SaveSucceeded SaveOutcome = iota + 1
	SavePartiallySucceeded
	SaveFailed
)

func (o SaveOutcome) String() string {
	switch o {
	case SaveSucceeded:
		return "succeeded"
	case SavePartiallySucceeded:
		return "partially succeeded"
	case SaveFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// SaveResult reports what a save did. Failures are listed rather than collapsed into one error.
type SaveResult struct {
	RunID      string
	Outcome    SaveOutcome
	Curriculum Curriculum
	Changes    ChangeSet
	Created    int
	Updated    int
	Deleted    int
	Failures   []FailedOp
}

func (r SaveResult) String() string {
	return fmt.Sprintf("save %s %s: %d created, %d updated, %d deleted, %d skipped, %d failed",
		r.RunID, r.Outcome, r.Created, r.Updated, r.Deleted, len(r.Changes.Skipped), len(r.Failures))
}

type Service struct {
	backend     Backend
	logger      core.Logger
	concurrency int
}

func NewService(backend Backend, logger core.Logger, concurrency int) *Service {
	return &Service{backend: backend, logger: logger, concurrency: concurrency}
}

var newRunID = func() string { return ulid.Make().String() } // mockable

func (svc *Service) CreateCurriculum(ctx context.Context, nc NewCurriculum) (Curriculum, error) {
	if err := nc.Validate(); err != nil {
		return Curriculum{}, err
	}
	return svc.backend.CreateCurriculum(ctx, nc)
}

// Open fetches a curriculum hierarchy and starts an editing session on it.
func (svc *Service) Open(ctx context.Context, curriculumID string) (*EditingSession, error) {
	h, err := svc.backend.GetHierarchy(ctx, curriculumID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading curriculum %s", curriculumID)
	}
	return NewEditingSession(h)
}

// Save updates the curriculum record, then synchronizes the hierarchy.
// A failed curriculum update aborts the save before any hierarchy call is made.
// Otherwise the returned error is nil and, the curriculum record being saved, the outcome
// is SaveSucceeded or SavePartiallySucceeded depending on whether every change was applied.
func (svc *Service) Save(ctx context.Context, sess *EditingSession) (SaveResult, error) {
	res := SaveResult{RunID: newRunID(), Outcome: SaveFailed}

	uc := UpdateCurriculum{Name: sess.tree.Curriculum.Name, Description: sess.tree.Curriculum.Description}
	if err := uc.Validate(); err != nil {
		return res, err
	}
	cur, err := svc.backend.UpdateCurriculum(ctx, sess.CurriculumID(), uc)
	if err != nil {
		svc.logger.Error("curriculum save "+res.RunID+": updating curriculum", err)
		return res, errors.Wrap(err, "save aborted: updating curriculum")
	}
	res.Curriculum = cur

	res.Changes = sess.Changes()
	for _, w := range res.Changes.Warnings {
		svc.logger.Warn("curriculum save "+res.RunID+": "+w.String())
	}

	sync := NewSynchronizer(svc.backend.Endpoints(), svc.logger, svc.concurrency).Sync(ctx, res.Changes)
	if err := sess.commit(cur, res.Changes, sync); err != nil {
		return res, errors.Wrap(err, "applying save result")
	}

	res.Created = len(sync.Created)
	res.Updated = len(sync.Updated)
	res.Deleted = len(sync.Deleted)
	res.Failures = sync.Failures
	res.Outcome = SavePartiallySucceeded
	if sync.Succeeded() {
		res.Outcome = SaveSucceeded
	}
	svc.logger.Info("curriculum " + cur.ID + ": " + res.String())
	return res, nil
}
