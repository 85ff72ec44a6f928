package curriculum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deleteChange(level Level, id string) Change {
	return Change{Level: level, Op: OpDelete, ID: PersistedID(id)}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name         string
		edit         func(t *testing.T, s *EditingSession) []Change // returns the expected creates
		wantUpdates  []Change
		wantDeletes  []Change
		wantSkipped  int
		wantWarnings int
	}{
		{
			name: "unchanged",
			edit: func(t *testing.T, s *EditingSession) []Change { return nil },
		},
		{
			name: "rename only",
			edit: func(t *testing.T, s *EditingSession) []Change {
				require.NoError(t, s.Rename(LevelSubject, PersistedID("s1"), "Mathematics"))
				return nil
			},
			wantUpdates: []Change{{Level: LevelSubject, Op: OpUpdate, ID: PersistedID("s1"), Name: "Mathematics"}},
		},
		{
			name: "whitespace is not a change",
			edit: func(t *testing.T, s *EditingSession) []Change {
				require.NoError(t, s.Rename(LevelSubject, PersistedID("s1"), "  Math "))
				return nil
			},
		},
		{
			name: "delete a mid-level node",
			edit: func(t *testing.T, s *EditingSession) []Change {
				require.NoError(t, s.RemoveCourse(PersistedID("c1")))
				return nil
			},
			wantDeletes: []Change{deleteChange(LevelCourse, "c1"), deleteChange(LevelUnit, "u1"), deleteChange(LevelTopic, "t1")},
		},
		{
			name: "new leaf under existing parent",
			edit: func(t *testing.T, s *EditingSession) []Change {
				id, err := s.AddTopic(PersistedID("u1"))
				require.NoError(t, err)
				require.NoError(t, s.Rename(LevelTopic, id, "Quadratic"))
				return []Change{{Level: LevelTopic, Op: OpCreate, ID: id, ParentRef: PersistedID("u1"), Name: "Quadratic"}}
			},
		},
		{
			name: "new chain is created top-down",
			edit: func(t *testing.T, s *EditingSession) []Change {
				subject := s.AddSubject()
				require.NoError(t, s.Rename(LevelSubject, subject, "Physics"))
				var creates []Change
				creates = append(creates, Change{Level: LevelSubject, Op: OpCreate, ID: subject, ParentRef: PersistedID("cur1"), Name: "Physics"})
				parent := subject
				tree := s.Tree()
				loc, _ := tree.locate(LevelSubject, subject)
				node := loc.node()
				for _, level := range Levels[1:] {
					node = node.Children[0]
					require.NoError(t, s.Rename(level, node.ID, level.String()+" one"))
					creates = append(creates, Change{Level: level, Op: OpCreate, ID: node.ID, ParentRef: parent, Name: level.String() + " one"})
					parent = node.ID
				}
				return creates
			},
		},
		{
			name: "blank new nodes are skipped with their subtree",
			edit: func(t *testing.T, s *EditingSession) []Change {
				s.AddSubject()
				return nil
			},
			wantSkipped: 4,
		},
		{
			name: "blank rename is skipped",
			edit: func(t *testing.T, s *EditingSession) []Change {
				require.NoError(t, s.Rename(LevelUnit, PersistedID("u1"), " "))
				return nil
			},
			wantSkipped: 1,
		},
		{
			name: "rename and delete of the same subtree keeps only the delete",
			edit: func(t *testing.T, s *EditingSession) []Change {
				require.NoError(t, s.Rename(LevelTopic, PersistedID("t1"), "Linear equations"))
				require.NoError(t, s.RemoveSubject(PersistedID("s1")))
				return nil
			},
			wantDeletes: []Change{
				deleteChange(LevelSubject, "s1"), deleteChange(LevelCourse, "c1"),
				deleteChange(LevelUnit, "u1"), deleteChange(LevelTopic, "t1"),
			},
		},
		{
			name: "removing a local node costs nothing",
			edit: func(t *testing.T, s *EditingSession) []Change {
				id, err := s.AddCourse(PersistedID("s1"))
				require.NoError(t, err)
				require.NoError(t, s.Rename(LevelCourse, id, "Geometry"))
				require.NoError(t, s.RemoveCourse(id))
				return nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := mustSession(t, sampleHierarchy())
			wantCreates := tt.edit(t, sess)

			cs := sess.Changes()
			assert.Equal(t, wantCreates, cs.Creates)
			assert.Equal(t, tt.wantUpdates, cs.Updates)
			assert.Equal(t, tt.wantDeletes, cs.Deletes)
			assert.Len(t, cs.Skipped, tt.wantSkipped)
			assert.Len(t, cs.Warnings, tt.wantWarnings)
		})
	}
}

func TestDiff_ledgerCascade(t *testing.T) {
	snapshot, err := NewSnapshot(TreeFromHierarchy(sampleHierarchy()))
	require.NoError(t, err)

	// the ledger only names the course; its descendants come from the snapshot
	tree := snapshot.Tree()
	tree.Subjects[0].Children = nil
	ledger := NewDeletionLedger()
	ledger.Add(LevelCourse, "c1")
	ledger.Add(LevelTopic, "gone") // deleted in an earlier, failed, save

	cs := Diff(tree, snapshot, ledger)
	assert.Equal(t, []Change{
		deleteChange(LevelCourse, "c1"),
		deleteChange(LevelUnit, "u1"),
		deleteChange(LevelTopic, "t1"),
		deleteChange(LevelTopic, "gone"),
	}, cs.Deletes)
	assert.Empty(t, cs.Warnings)
	assert.Equal(t, 2, ledger.Len(), "Diff must not touch the ledger")
}

func TestDiff_warnings(t *testing.T) {
	snapshot, err := NewSnapshot(TreeFromHierarchy(sampleHierarchy()))
	require.NoError(t, err)

	tree := snapshot.Tree()
	tree.Subjects[0].Children[0].Children = nil // u1 vanished without a ledger entry
	tree.Subjects[0].Children = append(tree.Subjects[0].Children, &Node{ID: PersistedID("c9"), Name: "Unknown"})

	cs := Diff(tree, snapshot, nil)
	assert.True(t, cs.IsEmpty())
	assert.Equal(t, []Warning{
		{Level: LevelCourse, ID: "c9", Message: "persisted node missing from snapshot"},
		{Level: LevelUnit, ID: "u1", Message: "missing from both tree and deletion ledger"},
	}, cs.Warnings)
}

func TestDiff_nilSnapshot(t *testing.T) {
	var m IDMinter
	tree := &Tree{Curriculum: Curriculum{ID: "cur1"}}
	tree.Subjects = []*Node{{ID: m.Mint(), Name: "Art"}}

	cs := Diff(tree, nil, nil)
	require.Len(t, cs.Creates, 1)
	assert.Equal(t, PersistedID("cur1"), cs.Creates[0].ParentRef)
}

func TestNewSnapshot_rejectsLocalIDs(t *testing.T) {
	var m IDMinter
	tree := TreeFromHierarchy(sampleHierarchy())
	tree.Subjects = append(tree.Subjects, &Node{ID: m.Mint(), Name: "Art"})

	_, err := NewSnapshot(tree)
	assert.Error(t, err)
}
