package curriculum

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/curricula/core"
)

// Loader fills Caches for a set of topics, one level at a time.
type Loader struct {
	reader Reader
	logger core.Logger
}

func NewLoader(reader Reader, logger core.Logger) *Loader {
	return &Loader{reader: reader, logger: logger}
}

// Load fetches the topics, then their units, courses, subjects and curricula.
// Each level only asks for the distinct parents of the level below. Unknown ids are skipped.
func (l *Loader) Load(ctx context.Context, topicIDs ...string) (*Caches, error) {
	caches := NewCaches()
	ids := core.UniqueStrings(topicIDs)
	for _, level := range levelsLeafFirst {
		if len(ids) == 0 {
			return caches, nil
		}
		entities, err := l.reader.GetEntities(ctx, level, ids...)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", level.Resource())
		}
		if missing := len(ids) - len(entities); missing > 0 {
			l.logger.Debug("path loader: some records were not found", level.Resource(), missing)
		}
		parents := make([]string, 0, len(entities))
		for _, e := range entities {
			e.Level = level
			caches.Add(e)
			parents = append(parents, e.ParentID)
		}
		ids = core.UniqueStrings(parents)
	}
	if len(ids) > 0 {
		curricula, err := l.reader.GetCurricula(ctx, ids...)
		if err != nil {
			return nil, errors.Wrap(err, "loading curricula")
		}
		caches.AddCurricula(curricula...)
	}
	return caches, nil
}

// Resolve loads and resolves paths for topicIDs. Topics without a complete path are left out.
func (l *Loader) Resolve(ctx context.Context, topicIDs ...string) (map[string]HierarchyPath, error) {
	caches, err := l.Load(ctx, topicIDs...)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]HierarchyPath, len(topicIDs))
	for _, id := range topicIDs {
		if p, ok := caches.ResolvePath(id); ok {
			paths[id] = p
		}
	}
	return paths, nil
}
