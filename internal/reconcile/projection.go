package reconcile

import "slices"

// Projection is an ordered id → value map. Order is insertion order unless
// the adapter supplies one.
type Projection[V any] struct {
	order  []string
	values map[string]V
}

// NewProjection returns an empty projection.
func NewProjection[V any]() Projection[V] {
	return Projection[V]{values: make(map[string]V)}
}

// Get returns the value for id.
func (p Projection[V]) Get(id string) (V, bool) {
	v, ok := p.values[id]
	return v, ok
}

// Has reports whether id is present.
func (p Projection[V]) Has(id string) bool {
	_, ok := p.values[id]
	return ok
}

// Set inserts or replaces id. New ids are appended to the order.
func (p *Projection[V]) Set(id string, v V) {
	if p.values == nil {
		p.values = make(map[string]V)
	}
	if _, ok := p.values[id]; !ok {
		p.order = append(p.order, id)
	}
	p.values[id] = v
}

// Remove deletes id.
func (p *Projection[V]) Remove(id string) {
	if _, ok := p.values[id]; !ok {
		return
	}
	delete(p.values, id)
	if i := slices.Index(p.order, id); i >= 0 {
		p.order = slices.Delete(p.order, i, i+1)
	}
}

// IDs returns the ids in order.
func (p Projection[V]) IDs() []string {
	return slices.Clone(p.order)
}

// Values returns the values in order.
func (p Projection[V]) Values() []V {
	out := make([]V, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.values[id])
	}
	return out
}

// Len returns the number of entries.
func (p Projection[V]) Len() int { return len(p.order) }

// Clone returns a copy that shares no mutable state with p. Values are
// copied shallowly.
func (p Projection[V]) Clone() Projection[V] {
	c := Projection[V]{
		order:  slices.Clone(p.order),
		values: make(map[string]V, len(p.values)),
	}
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}

// equalProjections compares ids, order and values.
func equalProjections[V any](a, b Projection[V], eq func(V, V) bool) bool {
	if !slices.Equal(a.order, b.order) {
		return false
	}
	for _, id := range a.order {
		if !eq(a.values[id], b.values[id]) {
			return false
		}
	}
	return true
}
