package curriculum

import (
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/curricula/core"
)

// Outline is a hand-written hierarchy, e.g.
//
//	[[subject]]
//	name = "Mathematics"
//	  [[subject.course]]
//	  name = "Algebra"
//	    [[subject.course.unit]]
//	    name = "Equations"
//	    topics = ["Linear", "Quadratic"]
type Outline struct {
	Subjects []OutlineEntry `toml:"subject"`
}

type OutlineEntry struct {
	Name    string         `toml:"name"`
	Courses []OutlineEntry `toml:"course"`
	Units   []OutlineEntry `toml:"unit"`
	Topics  []string       `toml:"topics"`
}

func DecodeOutline(r io.Reader) (Outline, error) {
	var o Outline
	md, err := toml.NewDecoder(r).Decode(&o)
	if err != nil {
		return Outline{}, errors.Wrap(err, "decoding outline")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Outline{}, errors.Errorf("decoding outline: unknown keys %v", undecoded)
	}
	return o, nil
}

func (e OutlineEntry) children(level Level) []OutlineEntry {
	switch level {
	case LevelCourse:
		return e.Courses
	case LevelUnit:
		return e.Units
	case LevelTopic:
		topics := make([]OutlineEntry, 0, len(e.Topics))
		for _, name := range e.Topics {
			topics = append(topics, OutlineEntry{Name: name})
		}
		return topics
	}
	return nil
}

// ApplyOutline merges o into the working tree. Nodes are matched by case-insensitive name per parent;
// missing ones are added. With prune, nodes the outline does not list are removed.
func (s *EditingSession) ApplyOutline(o Outline, prune bool) error {
	return s.mergeOutline(LevelSubject, NodeID{}, o.Subjects, prune)
}

func (s *EditingSession) mergeOutline(level Level, parentID NodeID, entries []OutlineEntry, prune bool) error {
	siblings, ok := s.tree.children(level, parentID)
	if !ok {
		return errors.Wrapf(ErrParentNotFound, "merging %s under %s", level.Resource(), parentID)
	}
	byName := make(map[string]NodeID, len(*siblings))
	for _, n := range *siblings {
		if key := core.CleanString(n.Name, true); key != "" {
			if _, dup := byName[key]; !dup {
				byName[key] = n.ID
			}
		}
	}

	listed := make(map[NodeID]bool, len(entries))
	for _, entry := range entries {
		name := core.CleanString(entry.Name)
		if name == "" {
			continue
		}
		id, ok := byName[strings.ToLower(name)]
		if !ok {
			var err error
			if id, err = s.add(level, parentID, name, false); err != nil {
				return err
			}
			byName[strings.ToLower(name)] = id
		}
		listed[id] = true

		if child, ok := level.Child(); ok {
			if err := s.mergeOutline(child, id, entry.children(child), prune); err != nil {
				return err
			}
		}
	}

	if prune {
		siblings, _ = s.tree.children(level, parentID)
		var unlisted []NodeID
		for _, n := range *siblings {
			if !listed[n.ID] {
				unlisted = append(unlisted, n.ID)
			}
		}
		for _, id := range unlisted {
			if err := s.remove(level, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderOutline prints a tree as an indented list, one node per line.
func RenderOutline(t *Tree) string {
	var b strings.Builder
	b.WriteString("curriculum: " + t.Curriculum.Name + "\n")
	t.Walk(func(level Level, _ NodeID, n *Node) bool {
		b.WriteString(strings.Repeat("  ", int(level)))
		b.WriteString(level.String() + ": " + core.CleanString(n.Name) + "\n")
		return true
	})
	return b.String()
}

// Preview returns a unified diff between the snapshot and the working tree outlines.
// It is empty when there is nothing to show.
func (s *EditingSession) Preview() (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(RenderOutline(s.snapshot.tree)),
		B:        difflib.SplitLines(RenderOutline(s.tree)),
		FromFile: "saved",
		ToFile:   "edited",
		Context:  2,
	}
	return difflib.GetUnifiedDiffString(diff)
}
