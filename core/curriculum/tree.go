package curriculum

import "github.com/pkg/errors"

// Node is one editable entry of the hierarchy.
type Node struct {
	ID       NodeID
	Name     string
	Expanded bool
	Children []*Node
}

func (n *Node) clone() *Node {
	c := &Node{ID: n.ID, Name: n.Name, Expanded: n.Expanded}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, 0, len(n.Children))
		for _, child := range n.Children {
			c.Children = append(c.Children, child.clone())
		}
	}
	return c
}

// Tree is the user's working copy of one curriculum hierarchy.
type Tree struct {
	Curriculum Curriculum
	Subjects   []*Node
}

// TreeFromHierarchy builds a tree made only of persisted nodes.
func TreeFromHierarchy(h Hierarchy) *Tree {
	t := &Tree{Curriculum: h.Curriculum}
	for _, s := range h.Subjects {
		t.Subjects = append(t.Subjects, nodeFromHierarchy(s))
	}
	return t
}

func nodeFromHierarchy(hn HierarchyNode) *Node {
	n := &Node{ID: PersistedID(hn.ID), Name: hn.Name}
	for _, child := range hn.Children {
		n.Children = append(n.Children, nodeFromHierarchy(child))
	}
	return n
}

func (t *Tree) Clone() *Tree {
	c := &Tree{Curriculum: t.Curriculum}
	if len(t.Subjects) > 0 {
		c.Subjects = make([]*Node, 0, len(t.Subjects))
		for _, s := range t.Subjects {
			c.Subjects = append(c.Subjects, s.clone())
		}
	}
	return c
}

// Walk visits the tree root-first. Returning false from fn skips the node's children.
func (t *Tree) Walk(fn func(level Level, parent NodeID, n *Node) bool) {
	walkNodes(LevelSubject, PersistedID(t.Curriculum.ID), t.Subjects, fn)
}

func walkNodes(level Level, parent NodeID, nodes []*Node, fn func(Level, NodeID, *Node) bool) {
	child, hasChild := level.Child()
	for _, n := range nodes {
		if fn(level, parent, n) && hasChild {
			walkNodes(child, n.ID, n.Children, fn)
		}
	}
}

// Count returns the number of nodes per level.
func (t *Tree) Count() map[Level]int {
	counts := make(map[Level]int, len(Levels))
	t.Walk(func(level Level, _ NodeID, _ *Node) bool {
		counts[level]++
		return true
	})
	return counts
}

// location points at a node inside the slice that holds it.
type location struct {
	siblings *[]*Node
	index    int
}

func (loc location) node() *Node { return (*loc.siblings)[loc.index] }

func (t *Tree) locate(level Level, id NodeID) (location, bool) {
	if id.IsZero() {
		return location{}, false
	}
	return locateIn(LevelSubject, &t.Subjects, level, id)
}

func locateIn(at Level, siblings *[]*Node, level Level, id NodeID) (location, bool) {
	for i, n := range *siblings {
		if at == level {
			if n.ID == id {
				return location{siblings: siblings, index: i}, true
			}
			continue
		}
		child, ok := at.Child()
		if !ok {
			break
		}
		if loc, found := locateIn(child, &n.Children, level, id); found {
			return loc, true
		}
	}
	return location{}, false
}

// children returns the slice holding the children of parentID, which sits one level above level.
// Subjects hang directly off the tree.
func (t *Tree) children(level Level, parentID NodeID) (*[]*Node, bool) {
	parentLevel, ok := level.Parent()
	if !ok {
		return &t.Subjects, true
	}
	loc, ok := t.locate(parentLevel, parentID)
	if !ok {
		return nil, false
	}
	return &loc.node().Children, true
}

type nodeKey struct {
	level Level
	id    string
}

// Snapshot is the immutable image of the hierarchy as the backend last reported it.
// It only ever holds persisted nodes.
type Snapshot struct {
	tree  *Tree
	nodes map[nodeKey]*Node
}

// NewSnapshot deep-copies t. Trees holding local nodes are rejected.
func NewSnapshot(t *Tree) (*Snapshot, error) {
	s := &Snapshot{tree: t.Clone(), nodes: make(map[nodeKey]*Node)}
	var err error
	s.tree.Walk(func(level Level, _ NodeID, n *Node) bool {
		if !n.ID.IsPersisted() {
			err = errors.Errorf("snapshot cannot hold %s %q: not persisted", level, n.ID)
			return false
		}
		s.nodes[nodeKey{level, n.ID.Ref()}] = n
		return true
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func emptySnapshot() *Snapshot {
	return &Snapshot{tree: &Tree{}, nodes: make(map[nodeKey]*Node)}
}

// Tree returns a copy of the snapshot's hierarchy.
func (s *Snapshot) Tree() *Tree { return s.tree.Clone() }

// Name returns the last known name of a persisted node.
func (s *Snapshot) Name(level Level, id string) (string, bool) {
	n, ok := s.nodes[nodeKey{level, id}]
	if !ok {
		return "", false
	}
	return n.Name, true
}

func (s *Snapshot) Contains(level Level, id string) bool {
	_, ok := s.nodes[nodeKey{level, id}]
	return ok
}

func (s *Snapshot) Len() int { return len(s.nodes) }

// descendants calls fn for every node below (level, id), root-first.
func (s *Snapshot) descendants(level Level, id string, fn func(Level, string)) {
	n, ok := s.nodes[nodeKey{level, id}]
	if !ok {
		return
	}
	child, ok := level.Child()
	if !ok {
		return
	}
	walkNodes(child, n.ID, n.Children, func(l Level, _ NodeID, c *Node) bool {
		fn(l, c.ID.Ref())
		return true
	})
}
