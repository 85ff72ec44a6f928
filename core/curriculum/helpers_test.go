package curriculum

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trezcool/curricula/services/logger"
)

var (
	ctx        = context.Background()
	testLogger = logsvc.NewConsoleLogger(log.New(io.Discard, "", 0), false)
)

// sampleHierarchy is Grade 9 → Math (s1) → Algebra (c1) → Equations (u1) → Linear (t1).
func sampleHierarchy() Hierarchy {
	return Hierarchy{
		Curriculum: Curriculum{ID: "cur1", Name: "Grade 9", Description: "Grade 9 curriculum for generating exam questions."},
		Subjects: []HierarchyNode{{
			Entity: Entity{Level: LevelSubject, ID: "s1", Name: "Math", ParentID: "cur1"},
			Children: []HierarchyNode{{
				Entity: Entity{Level: LevelCourse, ID: "c1", Name: "Algebra", ParentID: "s1"},
				Children: []HierarchyNode{{
					Entity: Entity{Level: LevelUnit, ID: "u1", Name: "Equations", ParentID: "c1"},
					Children: []HierarchyNode{{
						Entity: Entity{Level: LevelTopic, ID: "t1", Name: "Linear", ParentID: "u1"},
					}},
				}},
			}},
		}},
	}
}

func mustSession(t *testing.T, h Hierarchy) *EditingSession {
	t.Helper()
	sess, err := NewEditingSession(h)
	if err != nil {
		t.Fatalf("NewEditingSession(): %v", err)
	}
	return sess
}

type call struct {
	op       Operation
	level    Level
	id       string
	name     string
	parentID string
}

// fakeEndpoints records every call and assigns ids like "subject-1".
type fakeEndpoints struct {
	mu         sync.Mutex
	calls      []call
	seq        int
	failCreate map[string]error // by name
	failUpdate map[string]error // by id
	failDelete map[string]error // by id

	delay    time.Duration
	inFlight int32
	maxInUse int32
}

func (f *fakeEndpoints) endpoints() Endpoints {
	return Endpoints{
		Subjects: fakeSet{f, LevelSubject},
		Courses:  fakeSet{f, LevelCourse},
		Units:    fakeSet{f, LevelUnit},
		Topics:   fakeSet{f, LevelTopic},
	}
}

func (f *fakeEndpoints) enter() func() {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&f.maxInUse)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxInUse, peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { atomic.AddInt32(&f.inFlight, -1) }
}

func (f *fakeEndpoints) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeEndpoints) callsOf(op Operation) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type fakeSet struct {
	f     *fakeEndpoints
	level Level
}

func (s fakeSet) Create(_ context.Context, e Entity) (Entity, error) {
	defer s.f.enter()()
	s.f.record(call{op: OpCreate, level: s.level, name: e.Name, parentID: e.ParentID})
	if err := s.f.failCreate[e.Name]; err != nil {
		return Entity{}, err
	}
	s.f.mu.Lock()
	s.f.seq++
	e.ID = fmt.Sprintf("%s-%d", s.level, s.f.seq)
	s.f.mu.Unlock()
	return e, nil
}

func (s fakeSet) Update(_ context.Context, e Entity) (Entity, error) {
	defer s.f.enter()()
	s.f.record(call{op: OpUpdate, level: s.level, id: e.ID, name: e.Name})
	if err := s.f.failUpdate[e.ID]; err != nil {
		return Entity{}, err
	}
	return e, nil
}

func (s fakeSet) Delete(_ context.Context, id string) error {
	defer s.f.enter()()
	s.f.record(call{op: OpDelete, level: s.level, id: id})
	return s.f.failDelete[id]
}
