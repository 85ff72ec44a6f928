package curriculum

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/curricula/core"
)

const tracerName = "github.com/trezcool/curricula/core/curriculum"

// FailedOp is a change the backend did not apply.
type FailedOp struct {
	Change Change
	Err    error
}

func (f FailedOp) String() string {
	return fmt.Sprintf("%s: %v", f.Change, f.Err)
}

// SyncResult reports what a synchronization run did.
type SyncResult struct {
	// Created maps the local id of every created node to the id the backend assigned.
	Created  map[NodeID]string
	Updated  []Change
	Deleted  []Change
	Failures []FailedOp
}

func (r *SyncResult) Succeeded() bool { return len(r.Failures) == 0 }

// Synchronizer applies a ChangeSet through per-level endpoints.
// Deletes run leaf-first, then creates and updates run root-first.
// Calls of one level run concurrently; a level starts only when the previous one is done.
type Synchronizer struct {
	endpoints   Endpoints
	logger      core.Logger
	concurrency int
	tracer      trace.Tracer
}

func NewSynchronizer(endpoints Endpoints, logger core.Logger, concurrency int) *Synchronizer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Synchronizer{
		endpoints:   endpoints,
		logger:      logger,
		concurrency: concurrency,
		tracer:      otel.Tracer(tracerName),
	}
}

// WithTracerProvider makes s report its spans to tp instead of the global provider.
func (s *Synchronizer) WithTracerProvider(tp trace.TracerProvider) *Synchronizer {
	s.tracer = tp.Tracer(tracerName)
	return s
}

type syncRun struct {
	mu  sync.Mutex
	res *SyncResult
}

func (r *syncRun) persistedParent(ref NodeID) (string, bool) {
	if !ref.IsLocal() {
		return ref.Ref(), ref.IsPersisted()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.res.Created[ref]
	return id, ok
}

func (r *syncRun) failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.res.Failures)
}

func (r *syncRun) record(c Change, created string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.res.Failures = append(r.res.Failures, FailedOp{Change: c, Err: err})
	case c.Op == OpCreate:
		r.res.Created[c.ID] = created
	case c.Op == OpUpdate:
		r.res.Updated = append(r.res.Updated, c)
	case c.Op == OpDelete:
		r.res.Deleted = append(r.res.Deleted, c)
	}
}

// Sync never stops at the first failure: every change that can be attempted is attempted.
func (s *Synchronizer) Sync(ctx context.Context, cs ChangeSet) *SyncResult {
	ctx, span := s.tracer.Start(ctx, "curriculum.Sync")
	defer span.End()

	run := &syncRun{res: &SyncResult{Created: make(map[NodeID]string)}}
	for _, level := range levelsLeafFirst {
		s.runLevel(ctx, run, "delete", level, OfLevel(cs.Deletes, level))
	}
	for _, level := range Levels {
		ops := append(OfLevel(cs.Creates, level), OfLevel(cs.Updates, level)...)
		s.runLevel(ctx, run, "upsert", level, ops)
	}

	span.SetAttributes(
		attribute.Int("created", len(run.res.Created)),
		attribute.Int("updated", len(run.res.Updated)),
		attribute.Int("deleted", len(run.res.Deleted)),
	)
	if n := len(run.res.Failures); n > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d failed operations", n))
	}
	return run.res
}

func (s *Synchronizer) runLevel(ctx context.Context, run *syncRun, phase string, level Level, changes []Change) {
	if len(changes) == 0 {
		return
	}
	ctx, span := s.tracer.Start(ctx, "curriculum.Sync."+phase, trace.WithAttributes(
		attribute.String("level", level.String()),
		attribute.Int("changes", len(changes)),
	))
	defer span.End()

	before := run.failures()
	ep := s.endpoints.For(level)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, c := range changes {
		c := c
		g.Go(func() error {
			created, err := s.apply(ctx, run, ep, c)
			if err != nil {
				s.logger.Warn("curriculum sync: "+c.String()+" failed", err)
				span.RecordError(err, trace.WithAttributes(attribute.String("change", c.String())))
			}
			run.record(c, created, err)
			return nil
		})
	}
	_ = g.Wait()

	if n := run.failures() - before; n > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d failed operations", n))
	}
}

func (s *Synchronizer) apply(ctx context.Context, run *syncRun, ep EndpointSet, c Change) (string, error) {
	if ep == nil {
		return "", errors.Errorf("no endpoint for %s", c.Level.Resource())
	}

	switch c.Op {
	case OpDelete:
		err := ep.Delete(ctx, c.ID.Ref())
		if errors.Cause(err) == ErrNotFound {
			s.logger.Debug("curriculum sync: " + c.String() + ": already gone")
			return "", nil
		}
		return "", errors.Wrapf(err, "deleting %s %s", c.Level, c.ID)

	case OpCreate:
		parentID, ok := run.persistedParent(c.ParentRef)
		if !ok || parentID == "" {
			return "", ErrParentUnresolved
		}
		e, err := ep.Create(ctx, createPayload(c, parentID))
		if err != nil {
			return "", errors.Wrapf(err, "creating %s %q", c.Level, c.Name)
		}
		if e.ID == "" {
			return "", errors.Errorf("creating %s %q: backend returned no id", c.Level, c.Name)
		}
		return e.ID, nil

	case OpUpdate:
		_, err := ep.Update(ctx, updatePayload(c))
		return "", errors.Wrapf(err, "updating %s %s", c.Level, c.ID)
	}
	return "", errors.Errorf("unsupported operation %s", c.Op)
}
