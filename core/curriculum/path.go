package curriculum

import "strings"

type PathNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HierarchyPath is the full ancestry of a topic.
type HierarchyPath struct {
	Curriculum PathNode `json:"curriculum"`
	Subject    PathNode `json:"subject"`
	Course     PathNode `json:"course"`
	Unit       PathNode `json:"unit"`
	Topic      PathNode `json:"topic"`
}

// Names lists the path root-first.
func (p HierarchyPath) Names() []string {
	return []string{p.Curriculum.Name, p.Subject.Name, p.Course.Name, p.Unit.Name, p.Topic.Name}
}

func (p HierarchyPath) String() string {
	return strings.Join(p.Names(), " > ")
}

// Caches holds records keyed by id, one map per level.
type Caches struct {
	Topics    map[string]Entity
	Units     map[string]Entity
	Courses   map[string]Entity
	Subjects  map[string]Entity
	Curricula map[string]Curriculum
}

func NewCaches() *Caches {
	return &Caches{
		Topics:    make(map[string]Entity),
		Units:     make(map[string]Entity),
		Courses:   make(map[string]Entity),
		Subjects:  make(map[string]Entity),
		Curricula: make(map[string]Curriculum),
	}
}

func (c *Caches) entities(level Level) map[string]Entity {
	switch level {
	case LevelSubject:
		return c.Subjects
	case LevelCourse:
		return c.Courses
	case LevelUnit:
		return c.Units
	case LevelTopic:
		return c.Topics
	}
	return nil
}

// Add stores entities under their own level.
func (c *Caches) Add(entities ...Entity) {
	for _, e := range entities {
		if m := c.entities(e.Level); m != nil {
			m[e.ID] = e
		}
	}
}

func (c *Caches) AddCurricula(curricula ...Curriculum) {
	for _, cur := range curricula {
		c.Curricula[cur.ID] = cur
	}
}

// ResolvePath walks topic → unit → course → subject → curriculum through the caches.
// It reports false as soon as any link is missing; there are no partial paths.
func (c *Caches) ResolvePath(topicID string) (HierarchyPath, bool) {
	topic, ok := c.Topics[topicID]
	if !ok {
		return HierarchyPath{}, false
	}
	unit, ok := c.Units[topic.ParentID]
	if !ok {
		return HierarchyPath{}, false
	}
	course, ok := c.Courses[unit.ParentID]
	if !ok {
		return HierarchyPath{}, false
	}
	subject, ok := c.Subjects[course.ParentID]
	if !ok {
		return HierarchyPath{}, false
	}
	cur, ok := c.Curricula[subject.ParentID]
	if !ok {
		return HierarchyPath{}, false
	}
	return HierarchyPath{
		Curriculum: PathNode{ID: cur.ID, Name: cur.Name},
		Subject:    PathNode{ID: subject.ID, Name: subject.Name},
		Course:     PathNode{ID: course.ID, Name: course.Name},
		Unit:       PathNode{ID: unit.ID, Name: unit.Name},
		Topic:      PathNode{ID: topic.ID, Name: topic.Name},
	}, true
}
