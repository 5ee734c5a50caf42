package scene

import (
	"encoding/json"
)

// LabelOffset is the height of an annotation's text label above its marker.
const LabelOffset = 0.2

// Anchor is where the renderer places an annotation's marker and label.
type Anchor struct {
	Marker Vector3
	Label  Vector3
}

// Anchor is derived from the position on every call and never stored.
func (a Annotation) Anchor() Anchor {
	return Anchor{
		Marker: a.Position,
		Label:  a.Position.Add(Vector3{Y: LabelOffset}),
	}
}

// Registry holds annotations keyed by id in insertion order. It never holds
// two entries with the same id. Not safe for concurrent use.
type Registry struct {
	annotations []Annotation
	indexes     map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		indexes: map[string]int{},
	}
}

// Add inserts the annotation unless its id is already present, in which case
// the existing entry wins and Add returns false.
func (r *Registry) Add(annotation Annotation) bool {
	if r.indexes == nil {
		r.indexes = map[string]int{}
	}
	if _, ok := r.indexes[annotation.Id]; ok {
		return false
	}
	r.indexes[annotation.Id] = len(r.annotations)
	r.annotations = append(r.annotations, annotation)
	return true
}

// Remove deletes by id. Removing an absent id is a no-op and returns false.
func (r *Registry) Remove(id string) bool {
	i, ok := r.indexes[id]
	if !ok {
		return false
	}
	delete(r.indexes, id)
	r.annotations = append(r.annotations[:i], r.annotations[i+1:]...)
	for j := i; j < len(r.annotations); j += 1 {
		r.indexes[r.annotations[j].Id] = j
	}
	return true
}

// Merge adds every annotation not already present and returns how many
// were added.
func (r *Registry) Merge(annotations []Annotation) int {
	added := 0
	for _, annotation := range annotations {
		if r.Add(annotation) {
			added += 1
		}
	}
	return added
}

// Reset clears the registry then merges the given annotations.
func (r *Registry) Reset(annotations []Annotation) {
	r.annotations = nil
	r.indexes = map[string]int{}
	r.Merge(annotations)
}

func (r *Registry) Get(id string) (Annotation, bool) {
	i, ok := r.indexes[id]
	if !ok {
		return Annotation{}, false
	}
	return r.annotations[i], true
}

func (r *Registry) Has(id string) bool {
	_, ok := r.indexes[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.annotations)
}

// List returns a copy in insertion order.
func (r *Registry) List() []Annotation {
	annotations := make([]Annotation, len(r.annotations))
	copy(annotations, r.annotations)
	return annotations
}

func (r *Registry) Clone() *Registry {
	clone := NewRegistry()
	clone.Merge(r.annotations)
	return clone
}

func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.List())
}

func (r *Registry) UnmarshalJSON(data []byte) error {
	var annotations []Annotation
	if err := json.Unmarshal(data, &annotations); err != nil {
		return err
	}
	r.Reset(annotations)
	return nil
}
