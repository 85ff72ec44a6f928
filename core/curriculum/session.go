package curriculum

import "github.com/pkg/errors"

// EditingSession owns the working tree, the snapshot and the deletion ledger of one curriculum.
// It is not safe for concurrent use.
type EditingSession struct {
	tree     *Tree
	snapshot *Snapshot
	ledger   *DeletionLedger
	ids      IDMinter
}

// NewEditingSession starts editing h. An empty hierarchy is seeded with one blank subject → course → unit → topic chain.
func NewEditingSession(h Hierarchy) (*EditingSession, error) {
	tree := TreeFromHierarchy(h)
	snapshot, err := NewSnapshot(tree)
	if err != nil {
		return nil, err
	}
	sess := &EditingSession{tree: tree, snapshot: snapshot, ledger: NewDeletionLedger()}
	if len(tree.Subjects) == 0 {
		sess.AddSubject()
	}
	return sess, nil
}

func (s *EditingSession) CurriculumID() string { return s.tree.Curriculum.ID }

// Tree returns a copy of the working tree.
func (s *EditingSession) Tree() *Tree { return s.tree.Clone() }

func (s *EditingSession) Snapshot() *Snapshot { return s.snapshot }

// Ledger returns a copy of the deletion ledger.
func (s *EditingSession) Ledger() *DeletionLedger { return s.ledger.Clone() }

// Changes computes what a save would send right now.
func (s *EditingSession) Changes() ChangeSet {
	return Diff(s.tree, s.snapshot, s.ledger)
}

// Dirty reports whether a save would send anything. Blank nodes do not count.
func (s *EditingSession) Dirty() bool {
	return !s.Changes().IsEmpty()
}

func (s *EditingSession) SetCurriculum(name, description string) {
	s.tree.Curriculum.Name = name
	s.tree.Curriculum.Description = description
}

// AddSubject appends a blank subject seeded with a blank course → unit → topic chain.
func (s *EditingSession) AddSubject() NodeID {
	id, _ := s.add(LevelSubject, NodeID{}, "", true)
	return id
}

// AddCourse appends a blank course, seeded with a blank unit → topic chain, to a subject.
func (s *EditingSession) AddCourse(subjectID NodeID) (NodeID, error) {
	return s.add(LevelCourse, subjectID, "", true)
}

// AddUnit appends a blank unit, seeded with a blank topic, to a course.
func (s *EditingSession) AddUnit(courseID NodeID) (NodeID, error) {
	return s.add(LevelUnit, courseID, "", true)
}

func (s *EditingSession) AddTopic(unitID NodeID) (NodeID, error) {
	return s.add(LevelTopic, unitID, "", true)
}

func (s *EditingSession) add(level Level, parentID NodeID, name string, seed bool) (NodeID, error) {
	siblings, ok := s.tree.children(level, parentID)
	if !ok {
		return NodeID{}, errors.Wrapf(ErrParentNotFound, "adding %s under %s", level, parentID)
	}
	n := &Node{ID: s.ids.Mint(), Name: name, Expanded: true}
	if seed {
		tail := n
		for l, ok := level.Child(); ok; l, ok = l.Child() {
			child := &Node{ID: s.ids.Mint(), Expanded: true}
			tail.Children = []*Node{child}
			tail = child
		}
	}
	*siblings = append(*siblings, n)
	return n.ID, nil
}

// Rename changes the name of a node. Names are cleaned when diffed.
func (s *EditingSession) Rename(level Level, id NodeID, name string) error {
	loc, ok := s.tree.locate(level, id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "renaming %s %s", level, id)
	}
	loc.node().Name = name
	return nil
}

func (s *EditingSession) SetExpanded(level Level, id NodeID, expanded bool) error {
	loc, ok := s.tree.locate(level, id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "toggling %s %s", level, id)
	}
	loc.node().Expanded = expanded
	return nil
}

func (s *EditingSession) RemoveSubject(id NodeID) error { return s.remove(LevelSubject, id) }
func (s *EditingSession) RemoveCourse(id NodeID) error  { return s.remove(LevelCourse, id) }
func (s *EditingSession) RemoveUnit(id NodeID) error    { return s.remove(LevelUnit, id) }
func (s *EditingSession) RemoveTopic(id NodeID) error   { return s.remove(LevelTopic, id) }

// remove detaches a subtree and records every persisted node in it, in one step.
func (s *EditingSession) remove(level Level, id NodeID) error {
	loc, ok := s.tree.locate(level, id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "removing %s %s", level, id)
	}
	n := loc.node()
	walkNodes(level, NodeID{}, []*Node{n}, func(l Level, _ NodeID, c *Node) bool {
		if c.ID.IsPersisted() {
			s.ledger.Add(l, c.ID.Ref())
		}
		return true
	})
	siblings := *loc.siblings
	*loc.siblings = append(siblings[:loc.index:loc.index], siblings[loc.index+1:]...)
	return nil
}

// commit folds a synchronization result back into the session.
// Created nodes take their persisted ids, applied deletes leave the ledger, and the snapshot
// is rebuilt from what the backend is now known to hold. Failed changes stay pending.
func (s *EditingSession) commit(cur Curriculum, cs ChangeSet, res *SyncResult) error {
	s.tree.Curriculum = cur

	// names the backend now holds, overriding the previous snapshot
	names := make(map[nodeKey]string, len(res.Created)+len(res.Updated))
	for _, c := range cs.Creates {
		if ref, ok := res.Created[c.ID]; ok {
			names[nodeKey{c.Level, ref}] = c.Name
		}
	}
	for _, c := range res.Updated {
		names[nodeKey{c.Level, c.ID.Ref()}] = c.Name
	}

	remapNodes(s.tree.Subjects, res.Created)
	for _, c := range res.Deleted {
		s.ledger.Remove(c.Level, c.ID.Ref())
	}

	known := &Tree{Curriculum: cur}
	known.Subjects = s.knownNodes(LevelSubject, s.tree.Subjects, names)
	snapshot, err := NewSnapshot(known)
	if err != nil {
		return err
	}
	s.snapshot = snapshot
	return nil
}

// remapNodes swaps every created local node for a persisted one carrying the same subtree.
func remapNodes(nodes []*Node, created map[NodeID]string) {
	for i, n := range nodes {
		if ref, ok := created[n.ID]; ok {
			nodes[i] = &Node{ID: PersistedID(ref), Name: n.Name, Expanded: n.Expanded, Children: n.Children}
		}
		remapNodes(nodes[i].Children, created)
	}
}

// knownNodes copies the persisted part of the tree, naming each node as the backend knows it.
func (s *EditingSession) knownNodes(level Level, nodes []*Node, names map[nodeKey]string) []*Node {
	var out []*Node
	child, hasChild := level.Child()
	for _, n := range nodes {
		if !n.ID.IsPersisted() {
			continue
		}
		name, known := names[nodeKey{level, n.ID.Ref()}]
		if !known {
			name, known = s.snapshot.Name(level, n.ID.Ref())
		}
		if !known {
			// persisted but never reported by the backend; keep what the user sees
			name = n.Name
		}
		k := &Node{ID: n.ID, Name: name}
		if hasChild {
			k.Children = s.knownNodes(child, n.Children, names)
		}
		out = append(out, k)
	}
	return out
}
