package reconcile

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/futurelex/lexsync/internal/cache"
)

// pendingMutation is the queued intent for one target. At most one exists
// per target; a newer local change replaces Value and bumps Seq.
type pendingMutation[V any] struct {
	id         string
	value      V
	deleted    bool
	seq        uint64
	enqueuedAt time.Time
	attempts   int
	lastError  string
	exhausted  bool

	// base is the remote value known when the mutation was first queued.
	// It is persisted so writes can be planned after a restart.
	base    V
	hasBase bool

	inFlight bool
	retry    *time.Timer
}

// PendingInfo describes a queued mutation for display.
type PendingInfo struct {
	Scope      string
	ID         string
	Deleted    bool
	Seq        uint64
	EnqueuedAt time.Time
	Attempts   int
	LastError  string
	Exhausted  bool
	InFlight   bool
}

// pendingPayload is the CBOR body of a persisted pending mutation.
type pendingPayload[V any] struct {
	ID      string `cbor:"1,keyasint"`
	Value   V      `cbor:"2,keyasint"`
	Deleted bool   `cbor:"3,keyasint"`
	Base    V      `cbor:"4,keyasint"`
	HasBase bool   `cbor:"5,keyasint"`
}

// pendingEncMode keeps nanosecond timestamps; the default mode truncates
// time.Time to whole seconds.
var pendingEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func targetKey(scope Scope, id string) string {
	return scope.Name + "/" + id
}

func encodePending[V any](scope Scope, p *pendingMutation[V]) (cache.PendingRecord, error) {
	payload, err := pendingEncMode.Marshal(pendingPayload[V]{
		ID:      p.id,
		Value:   p.value,
		Deleted: p.deleted,
		Base:    p.base,
		HasBase: p.hasBase,
	})
	if err != nil {
		return cache.PendingRecord{}, fmt.Errorf("failed to encode pending mutation %s: %w", p.id, err)
	}

	return cache.PendingRecord{
		Target:     targetKey(scope, p.id),
		Scope:      scope.Name,
		Seq:        p.seq,
		EnqueuedAt: p.enqueuedAt,
		Attempts:   p.attempts,
		Exhausted:  p.exhausted,
		Payload:    payload,
		LastError:  p.lastError,
	}, nil
}

func decodePending[V any](rec cache.PendingRecord) (*pendingMutation[V], error) {
	var body pendingPayload[V]
	if err := cbor.Unmarshal(rec.Payload, &body); err != nil {
		return nil, fmt.Errorf("failed to decode pending mutation %s: %w", rec.Target, err)
	}
	if body.ID == "" {
		return nil, fmt.Errorf("pending mutation %s has no id", rec.Target)
	}

	return &pendingMutation[V]{
		id:         body.ID,
		value:      body.Value,
		deleted:    body.Deleted,
		seq:        rec.Seq,
		enqueuedAt: rec.EnqueuedAt,
		attempts:   rec.Attempts,
		lastError:  rec.LastError,
		exhausted:  rec.Exhausted,
		base:       body.Base,
		hasBase:    body.HasBase,
	}, nil
}
