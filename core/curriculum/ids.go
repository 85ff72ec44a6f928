package curriculum

import "strconv"

// localPrefix is only used to render local ids; it is never parsed back.
const localPrefix = "new-"

// NodeID identifies a node of the editing tree.
// It is either local (minted by an editing session for a node the backend does not know yet)
// or persisted (assigned by the backend). The tag is fixed at construction.
// The zero NodeID is neither and never identifies a node.
type NodeID struct {
	seq uint64 // local ids only
	ref string // persisted ids only
}

// PersistedID wraps an identifier assigned by the backend.
func PersistedID(ref string) NodeID {
	return NodeID{ref: ref}
}

func (id NodeID) IsLocal() bool     { return id.seq != 0 }
func (id NodeID) IsPersisted() bool { return id.seq == 0 && id.ref != "" }
func (id NodeID) IsZero() bool      { return id.seq == 0 && id.ref == "" }

// Ref returns the backend identifier, or "" for local ids.
func (id NodeID) Ref() string {
	if id.IsLocal() {
		return ""
	}
	return id.ref
}

func (id NodeID) String() string {
	if id.IsLocal() {
		return localPrefix + strconv.FormatUint(id.seq, 10)
	}
	return id.ref
}

// IDMinter mints local ids, unique within one editing session.
type IDMinter struct {
	last uint64
}

func (m *IDMinter) Mint() NodeID {
	m.last++
	return NodeID{seq: m.last}
}
