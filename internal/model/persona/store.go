package persona

import "slices"

// Store exposes persona retrieval for services and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store over a fixed slice. The persona set never changes at runtime.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	copied := make([]Persona, len(items))
	for i, item := range items {
		copied[i] = item.clone()
	}
	return &MemoryStore{items: copied}
}

// List returns the personas in display order.
func (s *MemoryStore) List() []Persona {
	out := make([]Persona, len(s.items))
	for i, item := range s.items {
		out[i] = item.clone()
	}
	return out
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item.clone(), true
		}
	}
	return Persona{}, false
}

func (p Persona) clone() Persona {
	p.Topics = slices.Clone(p.Topics)
	return p
}
