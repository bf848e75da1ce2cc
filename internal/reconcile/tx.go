package reconcile

import (
	"slices"
	"sort"
)

// Tx stages changes to a projection. Reads see staged values first.
type Tx[V any] struct {
	base   Projection[V]
	staged map[string]staged[V]
	order  []string
}

type staged[V any] struct {
	value   V
	deleted bool
}

func newTx[V any](base Projection[V]) *Tx[V] {
	return &Tx[V]{
		base:   base,
		staged: make(map[string]staged[V]),
	}
}

// Get returns the value of id as seen by the transaction.
func (tx *Tx[V]) Get(id string) (V, bool) {
	if st, ok := tx.staged[id]; ok {
		var zero V
		if st.deleted {
			return zero, false
		}
		return st.value, true
	}
	return tx.base.Get(id)
}

// IDs returns the ids visible to the transaction, existing ones first.
func (tx *Tx[V]) IDs() []string {
	var ids []string
	for _, id := range tx.base.IDs() {
		if _, ok := tx.Get(id); ok {
			ids = append(ids, id)
		}
	}
	for _, id := range tx.order {
		if tx.base.Has(id) {
			continue
		}
		if _, ok := tx.Get(id); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Put stages id = v.
func (tx *Tx[V]) Put(id string, v V) {
	tx.stage(id, staged[V]{value: v})
}

// Delete stages removal of id.
func (tx *Tx[V]) Delete(id string) {
	tx.stage(id, staged[V]{deleted: true})
}

// Tombstone stages removal of id and hands v to the adapter's Writes as the
// desired value, so a deletion can carry what the remote must clean up.
func (tx *Tx[V]) Tombstone(id string, v V) {
	tx.stage(id, staged[V]{value: v, deleted: true})
}

func (tx *Tx[V]) stage(id string, st staged[V]) {
	if _, ok := tx.staged[id]; !ok {
		tx.order = append(tx.order, id)
	}
	tx.staged[id] = st
}

// Changed returns the ids staged so far.
func (tx *Tx[V]) Changed() []string {
	return slices.Clone(tx.order)
}

func sortPending(p []PendingInfo) {
	sort.Slice(p, func(i, j int) bool { return p[i].Seq < p[j].Seq })
}
