package curriculum

import (
	"fmt"

	"github.com/pkg/errors"
)

// Level is one tier of the hierarchy below the curriculum root.
type Level int

const (
	LevelSubject Level = iota + 1
	LevelCourse
	LevelUnit
	LevelTopic
)

// Levels lists the hierarchy levels root-first.
var Levels = []Level{LevelSubject, LevelCourse, LevelUnit, LevelTopic}

// levelsLeafFirst is the only order in which deletes are safe.
var levelsLeafFirst = []Level{LevelTopic, LevelUnit, LevelCourse, LevelSubject}

// subjectsKey nests subjects in full curriculum documents.
const subjectsKey = "subjects"

type levelInfo struct {
	name        string
	resource    string // backend collection
	parentKey   string // foreign key to the parent record
	childrenKey string // nested children in full hierarchy documents
}

// levelInfos is the one mapping between hierarchy levels and backend field names.
var levelInfos = map[Level]levelInfo{
	LevelSubject: {name: "subject", resource: "subjects", parentKey: "curriculum_id", childrenKey: "courses"},
	LevelCourse:  {name: "course", resource: "courses", parentKey: "subject_id", childrenKey: "units"},
	LevelUnit:    {name: "unit", resource: "units", parentKey: "course_id", childrenKey: "topics"},
	LevelTopic:   {name: "topic", resource: "topics", parentKey: "unit_id"},
}

func (l Level) Valid() bool {
	_, ok := levelInfos[l]
	return ok
}

func (l Level) String() string {
	if info, ok := levelInfos[l]; ok {
		return info.name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Resource is the name of the backend collection holding records of this level.
func (l Level) Resource() string { return levelInfos[l].resource }

// ParentKey is the name of the foreign key pointing at the parent record.
func (l Level) ParentKey() string { return levelInfos[l].parentKey }

// ChildrenKey is the name of the nested child list in full hierarchy documents. Empty for topics.
func (l Level) ChildrenKey() string { return levelInfos[l].childrenKey }

// Child returns the level below l.
func (l Level) Child() (Level, bool) {
	if l < LevelSubject || l >= LevelTopic {
		return 0, false
	}
	return l + 1, true
}

// Parent returns the level above l. Subjects have no parent level, their parent is the curriculum.
func (l Level) Parent() (Level, bool) {
	if l <= LevelSubject || l > LevelTopic {
		return 0, false
	}
	return l - 1, true
}

// ParseLevel accepts a level name ("subject") or its resource name ("subjects").
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if info := levelInfos[l]; s == info.name || s == info.resource {
			return l, nil
		}
	}
	return 0, errors.Errorf("unknown hierarchy level %q", s)
}
