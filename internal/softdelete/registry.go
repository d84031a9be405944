package softdelete

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps type tags to their stores. It is built once at startup and
// read-only afterwards.
type Registry struct {
	byType map[EntityType]Store
	bySlug map[string]Store
}

func NewRegistry(stores ...Store) (*Registry, error) {
	r := &Registry{
		byType: make(map[EntityType]Store, len(stores)),
		bySlug: make(map[string]Store, len(stores)),
	}

	for _, store := range stores {
		d := store.Descriptor()
		if d.Type == "" || strings.TrimSpace(d.Slug) == "" {
			return nil, fmt.Errorf("register store: type and slug are required")
		}
		if d.KeyKind != KeyInt && d.KeyKind != KeyUUID {
			return nil, fmt.Errorf("register %s: unsupported key kind %s", d.Type, d.KeyKind)
		}
		if _, exists := r.byType[d.Type]; exists {
			return nil, fmt.Errorf("register %s: type already registered", d.Type)
		}
		if _, exists := r.bySlug[d.Slug]; exists {
			return nil, fmt.Errorf("register %s: slug %q already registered", d.Type, d.Slug)
		}
		r.byType[d.Type] = store
		r.bySlug[d.Slug] = store
	}

	return r, nil
}

func (r *Registry) Lookup(entityType EntityType) (Store, error) {
	store, exists := r.byType[entityType]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	return store, nil
}

func (r *Registry) LookupSlug(slug string) (Store, error) {
	store, exists := r.bySlug[slug]
	if !exists {
		return nil, fmt.Errorf("%w: slug %q", ErrUnknownEntityType, slug)
	}
	return store, nil
}

// ParseRef parses raw as a key of entityType using that type's key kind.
func (r *Registry) ParseRef(entityType EntityType, raw string) (EntityRef, error) {
	store, err := r.Lookup(entityType)
	if err != nil {
		return EntityRef{}, err
	}
	return ParseRef(entityType, store.Descriptor().KeyKind, raw)
}

// Descriptors lists registered types sorted by tag.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.byType))
	for _, store := range r.byType {
		out = append(out, store.Descriptor())
	}
	sort.Slice(out, func(i int, j int) bool { return out[i].Type < out[j].Type })
	return out
}
