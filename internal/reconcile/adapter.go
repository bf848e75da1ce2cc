package reconcile

import (
	"context"
	"time"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/remote"
)

// Scope identifies the set of entities one engine owns.
type Scope struct {
	Actor string

	// Name is unique per actor, e.g. "plans" or "plan:plan_123".
	Name string
}

func (s Scope) String() string { return s.Actor + "/" + s.Name }

// Adapter binds an engine to one entity type: how it is cached, how the
// remote copy is read, and which remote writes move the remote from one
// value to another.
type Adapter[V any] interface {
	// Hydrate reads the cached projection. found is false when the scope
	// has never been cached.
	Hydrate(ctx context.Context, c cache.Cache) (p Projection[V], freshness time.Time, found bool, err error)

	// Persist overwrites the cached projection.
	Persist(ctx context.Context, c cache.Cache, p Projection[V]) error

	// Purge removes the scope's cached entries.
	Purge(ctx context.Context, c cache.Cache) error

	// Fetch reads the authoritative remote state of the scope.
	Fetch(ctx context.Context, rs remote.Store) (Projection[V], error)

	// Writes returns the remote operations that turn the acknowledged
	// remote value into the desired one. A missing value means the entity
	// does not exist. Returning no writes means nothing has to be sent.
	Writes(id string, acked V, hasAcked bool, desired V, hasDesired bool) []remote.Write

	// Equal reports whether two values are the same for sync purposes.
	Equal(a, b V) bool
}
