package curriculum

// DeletionLedger records the persisted nodes removed from the tree since the last save.
// The zero value is ready to use.
type DeletionLedger struct {
	ids map[Level][]string
	set map[nodeKey]struct{}
}

func NewDeletionLedger() *DeletionLedger {
	return &DeletionLedger{}
}

// Add records (level, id). Empty ids and duplicates are ignored.
func (l *DeletionLedger) Add(level Level, id string) bool {
	if id == "" || l.Contains(level, id) {
		return false
	}
	if l.set == nil {
		l.ids = make(map[Level][]string)
		l.set = make(map[nodeKey]struct{})
	}
	l.set[nodeKey{level, id}] = struct{}{}
	l.ids[level] = append(l.ids[level], id)
	return true
}

func (l *DeletionLedger) Contains(level Level, id string) bool {
	if l == nil {
		return false
	}
	_, ok := l.set[nodeKey{level, id}]
	return ok
}

func (l *DeletionLedger) Remove(level Level, id string) {
	if !l.Contains(level, id) {
		return
	}
	delete(l.set, nodeKey{level, id})
	ids := l.ids[level]
	for i := range ids {
		if ids[i] == id {
			l.ids[level] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// IDs returns the recorded ids of one level in insertion order.
func (l *DeletionLedger) IDs(level Level) []string {
	if l == nil || len(l.ids[level]) == 0 {
		return nil
	}
	return append([]string(nil), l.ids[level]...)
}

func (l *DeletionLedger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.set)
}

func (l *DeletionLedger) Clear() {
	l.ids = nil
	l.set = nil
}

func (l *DeletionLedger) Clone() *DeletionLedger {
	c := NewDeletionLedger()
	for _, level := range Levels {
		for _, id := range l.IDs(level) {
			c.Add(level, id)
		}
	}
	return c
}
