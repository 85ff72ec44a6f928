package curriculum

import (
	"fmt"

	"github.com/trezcool/curricula/core"
)

type Operation int

const (
	OpCreate Operation = iota + 1
	OpUpdate
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

// Change is one backend operation on one node.
type Change struct {
	Level Level
	Op    Operation
	ID    NodeID
	// ParentRef is the parent of a created node. It may be local when the parent is created in the same save.
	// Subjects point at the curriculum.
	ParentRef NodeID
	Name      string
}

func (c Change) String() string {
	if c.Name == "" {
		return fmt.Sprintf("%s %s %s", c.Op, c.Level, c.ID)
	}
	return fmt.Sprintf("%s %s %s %q", c.Op, c.Level, c.ID, c.Name)
}

// Warning reports a node the snapshot knows about that neither the tree nor the ledger accounts for.
type Warning struct {
	Level   Level
	ID      string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Level, w.ID, w.Message)
}

// ChangeSet is the minimal list of operations turning the snapshot into the tree.
type ChangeSet struct {
	Creates  []Change // root-first, parents before children
	Updates  []Change
	Deletes  []Change // grouped by level root-first, cascades included
	Skipped  []Change // blank names, never sent
	Warnings []Warning
}

func (cs ChangeSet) Len() int {
	return len(cs.Creates) + len(cs.Updates) + len(cs.Deletes)
}

func (cs ChangeSet) IsEmpty() bool { return cs.Len() == 0 }

// OfLevel filters changes by level, keeping their order.
func OfLevel(changes []Change, level Level) []Change {
	var out []Change
	for _, c := range changes {
		if c.Level == level {
			out = append(out, c)
		}
	}
	return out
}

// Diff compares the working tree against the snapshot and the deletion ledger.
// A nil snapshot or ledger counts as empty. Diff never mutates its inputs.
func Diff(tree *Tree, snapshot *Snapshot, ledger *DeletionLedger) ChangeSet {
	if snapshot == nil {
		snapshot = emptySnapshot()
	}
	d := &differ{
		snapshot: snapshot,
		deleted:  make(map[nodeKey]struct{}),
		seen:     make(map[nodeKey]struct{}),
	}
	d.collectDeletes(ledger)
	walkNodes(LevelSubject, PersistedID(tree.Curriculum.ID), tree.Subjects, d.visit)
	d.checkSnapshot()
	return d.cs
}

type differ struct {
	snapshot *Snapshot
	deleted  map[nodeKey]struct{}
	seen     map[nodeKey]struct{}
	cs       ChangeSet
}

// collectDeletes expands the ledger with the snapshot descendants of every deleted node.
func (d *differ) collectDeletes(ledger *DeletionLedger) {
	byLevel := make(map[Level][]string, len(Levels))
	add := func(level Level, id string) {
		key := nodeKey{level, id}
		if _, ok := d.deleted[key]; ok {
			return
		}
		d.deleted[key] = struct{}{}
		byLevel[level] = append(byLevel[level], id)
	}
	for _, level := range Levels {
		for _, id := range ledger.IDs(level) {
			add(level, id)
			d.snapshot.descendants(level, id, add)
		}
	}
	for _, level := range Levels {
		for _, id := range byLevel[level] {
			d.cs.Deletes = append(d.cs.Deletes, Change{Level: level, Op: OpDelete, ID: PersistedID(id)})
		}
	}
}

func (d *differ) visit(level Level, parent NodeID, n *Node) bool {
	name := core.CleanString(n.Name)

	switch {
	case n.ID.IsLocal():
		c := Change{Level: level, Op: OpCreate, ID: n.ID, ParentRef: parent, Name: name}
		if name == "" {
			d.skip(level, parent, n)
			return false
		}
		d.cs.Creates = append(d.cs.Creates, c)
		return true

	case n.ID.IsPersisted():
		key := nodeKey{level, n.ID.Ref()}
		d.seen[key] = struct{}{}
		if _, ok := d.deleted[key]; ok {
			// deleted, possibly by cascade; nothing below it survives either
			return false
		}
		prev, ok := d.snapshot.Name(level, n.ID.Ref())
		if !ok {
			d.warn(level, n.ID.Ref(), "persisted node missing from snapshot")
			return true
		}
		if name == prev {
			return true
		}
		c := Change{Level: level, Op: OpUpdate, ID: n.ID, Name: name}
		if name == "" {
			d.cs.Skipped = append(d.cs.Skipped, c)
		} else {
			d.cs.Updates = append(d.cs.Updates, c)
		}
		return true
	}
	return false
}

// skip records a blank-named new node and its whole subtree, which cannot be created without it.
func (d *differ) skip(level Level, parent NodeID, n *Node) {
	d.cs.Skipped = append(d.cs.Skipped, Change{Level: level, Op: OpCreate, ID: n.ID, ParentRef: parent, Name: core.CleanString(n.Name)})
	if child, ok := level.Child(); ok {
		for _, c := range n.Children {
			d.skip(child, n.ID, c)
		}
	}
}

func (d *differ) warn(level Level, id, msg string) {
	d.cs.Warnings = append(d.cs.Warnings, Warning{Level: level, ID: id, Message: msg})
}

func (d *differ) checkSnapshot() {
	d.snapshot.tree.Walk(func(level Level, _ NodeID, n *Node) bool {
		key := nodeKey{level, n.ID.Ref()}
		if _, ok := d.seen[key]; ok {
			return true
		}
		if _, ok := d.deleted[key]; ok {
			return true
		}
		d.warn(level, n.ID.Ref(), "missing from both tree and deletion ledger")
		return false
	})
}
