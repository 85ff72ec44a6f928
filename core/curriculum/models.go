package curriculum

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/curricula/core"
)

// Curriculum is the root record of a hierarchy.
type Curriculum struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Slug        string    `json:"slug"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// DefaultDescription is used when a curriculum is saved without a description.
func DefaultDescription(name string) string {
	return name + " curriculum for generating exam questions."
}

// NewCurriculum contains information needed to create a new Curriculum.
type NewCurriculum struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description"`
}

func (nc *NewCurriculum) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	if err := core.Validate.Struct(nc); err != nil {
		return core.TranslateValidationErrors(err)
	}
	if nc.Description == "" {
		nc.Description = DefaultDescription(nc.Name)
	}
	return nil
}

// UpdateCurriculum defines what information may be provided to modify an existing Curriculum.
type UpdateCurriculum struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description"`
}

func (uc *UpdateCurriculum) Validate() error {
	uc.Name = core.CleanString(uc.Name)
	uc.Description = core.CleanString(uc.Description)
	if err := core.Validate.Struct(uc); err != nil {
		return core.TranslateValidationErrors(err)
	}
	if uc.Description == "" {
		uc.Description = DefaultDescription(uc.Name)
	}
	return nil
}

// Entity is a subject, course, unit or topic record as the backend stores it.
// Its JSON form names the parent reference after the level (curriculum_id, subject_id...),
// so Level must be set before decoding.
type Entity struct {
	Level       Level     `json:"-"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Slug        string    `json:"slug"`
	ParentID    string    `json:"-"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

var errLevelNotSet = errors.New("entity level not set")

func (e Entity) document() map[string]interface{} {
	doc := map[string]interface{}{"name": e.Name}
	if e.ID != "" {
		doc["id"] = e.ID
	}
	if e.Description != "" {
		doc["description"] = e.Description
	}
	if e.Slug != "" {
		doc["slug"] = e.Slug
	}
	if e.CreatedBy != "" {
		doc["created_by"] = e.CreatedBy
	}
	if !e.CreatedAt.IsZero() {
		doc["created_at"] = e.CreatedAt
	}
	if !e.UpdatedAt.IsZero() {
		doc["updated_at"] = e.UpdatedAt
	}
	if key := e.Level.ParentKey(); key != "" && e.ParentID != "" {
		doc[key] = e.ParentID
	}
	return doc
}

func (e Entity) MarshalJSON() ([]byte, error) {
	if !e.Level.Valid() {
		return nil, errLevelNotSet
	}
	return json.Marshal(e.document())
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	if !e.Level.Valid() {
		return errLevelNotSet
	}

	var doc struct {
		ID          string     `json:"id"`
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Slug        string     `json:"slug"`
		CreatedBy   string     `json:"created_by"`
		CreatedAt   *time.Time `json:"created_at"`
		UpdatedAt   *time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*e = Entity{
		Level:       e.Level,
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Slug:        doc.Slug,
		CreatedBy:   doc.CreatedBy,
	}
	if doc.CreatedAt != nil {
		e.CreatedAt = *doc.CreatedAt
	}
	if doc.UpdatedAt != nil {
		e.UpdatedAt = *doc.UpdatedAt
	}
	if raw, ok := fields[e.Level.ParentKey()]; ok {
		var parent *string
		if err := json.Unmarshal(raw, &parent); err != nil {
			return errors.Wrapf(err, "decoding %s", e.Level.ParentKey())
		}
		if parent != nil {
			e.ParentID = *parent
		}
	}
	return nil
}

// HierarchyNode is an Entity with its nested children, as found in full curriculum documents.
type HierarchyNode struct {
	Entity
	Children []HierarchyNode
}

func (n HierarchyNode) MarshalJSON() ([]byte, error) {
	if !n.Level.Valid() {
		return nil, errLevelNotSet
	}
	doc := n.Entity.document()
	if key := n.Level.ChildrenKey(); key != "" {
		children := n.Children
		if children == nil {
			children = []HierarchyNode{}
		}
		doc[key] = children
	}
	return json.Marshal(doc)
}

func (n *HierarchyNode) UnmarshalJSON(data []byte) error {
	if err := n.Entity.UnmarshalJSON(data); err != nil {
		return err
	}
	n.Children = nil

	child, ok := n.Level.Child()
	if !ok {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	children, err := decodeHierarchyNodes(fields[n.Level.ChildrenKey()], child, n.ID)
	if err != nil {
		return err
	}
	n.Children = children
	return nil
}

func decodeHierarchyNodes(raw json.RawMessage, level Level, parentID string) ([]HierarchyNode, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", level.Resource())
	}
	nodes := make([]HierarchyNode, 0, len(items))
	for _, item := range items {
		node := HierarchyNode{Entity: Entity{Level: level}}
		if err := node.UnmarshalJSON(item); err != nil {
			return nil, err
		}
		if node.ParentID == "" {
			node.ParentID = parentID
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Hierarchy is a curriculum with its full subject tree.
type Hierarchy struct {
	Curriculum
	Subjects []HierarchyNode `json:"subjects"`
}

func (h Hierarchy) MarshalJSON() ([]byte, error) {
	subjects := h.Subjects
	if subjects == nil {
		subjects = []HierarchyNode{}
	}
	return json.Marshal(struct {
		Curriculum
		Subjects []HierarchyNode `json:"subjects"`
	}{h.Curriculum, subjects})
}

func (h *Hierarchy) UnmarshalJSON(data []byte) error {
	var doc struct {
		Curriculum
		Subjects json.RawMessage `json:"subjects"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	subjects, err := decodeHierarchyNodes(doc.Subjects, LevelSubject, doc.ID)
	if err != nil {
		return err
	}
	h.Curriculum = doc.Curriculum
	h.Subjects = subjects
	return nil
}
