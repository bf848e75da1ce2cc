package words

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
)

// ScopeName returns the engine scope name of a plan's word state.
func ScopeName(planID string) string {
	return "plan:" + planID
}

// Store holds the saved and completed words of one plan.
type Store struct {
	owner  string
	planID string
	engine *reconcile.Engine[Mark]
	now    func() time.Time

	mu            sync.Mutex
	lastCompleted int
	onCompleted   []func(planID string, count int)
}

// New creates the word store of a plan. Call Start before use.
func New(owner, planID string, cfg reconcile.Config, c cache.Cache, rs remote.Store) *Store {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[words] ", log.LstdFlags)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		owner:         owner,
		planID:        planID,
		now:           now,
		lastCompleted: -1,
	}
	scope := reconcile.Scope{Actor: owner, Name: ScopeName(planID)}
	s.engine = reconcile.New[Mark](cfg, scope, adapter{owner: owner, planID: planID}, c, rs)
	s.engine.Subscribe(s.checkCompleted)
	return s
}

// PlanID returns the plan the store belongs to.
func (s *Store) PlanID() string { return s.planID }

// Engine exposes the underlying engine for session-level control.
func (s *Store) Engine() *reconcile.Engine[Mark] { return s.engine }

// Start hydrates from the cache and refreshes in the background.
func (s *Store) Start(ctx context.Context) error { return s.engine.Start(ctx) }

// Hydrate loads the cache without starting a fetch.
func (s *Store) Hydrate(ctx context.Context) error { return s.engine.Hydrate(ctx) }

// Refresh fetches both remote word sets and merges them.
func (s *Store) Refresh(ctx context.Context) error { return s.engine.Refresh(ctx) }

// Flush sends pending word mutations now.
func (s *Store) Flush(ctx context.Context) error { return s.engine.Flush(ctx) }

// Close stops background work.
func (s *Store) Close() { s.engine.Close() }

// Discard closes the store and drops its cache entries and pending
// mutations. Used when the plan is deleted.
func (s *Store) Discard(ctx context.Context) error { return s.engine.Discard(ctx) }

// Snapshot returns the saved and completed ids.
func (s *Store) Snapshot() Sets {
	return split(s.engine.Snapshot())
}

// Membership returns the state of word id.
func (s *Store) Membership(id string) Membership {
	m, ok := s.engine.Get(id)
	if !ok {
		return None
	}
	return m.Tag
}

// RemotePaths returns both set documents of every word the remote is
// known to hold for this plan.
func (s *Store) RemotePaths() []remote.Path {
	a := adapter{owner: s.owner, planID: s.planID}
	ids := s.engine.AckedIDs()
	paths := make([]remote.Path, 0, 2*len(ids))
	for _, id := range ids {
		paths = append(paths, a.path(id, Saved), a.path(id, Completed))
	}
	return paths
}

// Subscribe registers fn to run after every change of the word sets.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) { return s.engine.Subscribe(fn) }

// SyncStatus returns the user-facing sync status of the word sets.
func (s *Store) SyncStatus() reconcile.Status { return s.engine.SyncStatus() }

// LastError returns the last rejection or exhausted-retry error.
func (s *Store) LastError() error { return s.engine.LastError() }

// OnCompletedChange registers fn to run whenever the number of completed
// words changes, including changes merged from the remote.
func (s *Store) OnCompletedChange(fn func(planID string, count int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCompleted = append(s.onCompleted, fn)
}

// Save marks id saved. A completed word moves to saved.
func (s *Store) Save(id string) error { return s.set(id, Saved) }

// Complete marks id completed. A saved word moves to completed.
func (s *Store) Complete(id string) error { return s.set(id, Completed) }

// Unsave clears id when it is saved.
func (s *Store) Unsave(id string) error { return s.clear(id, Saved) }

// Uncomplete clears id when it is completed.
func (s *Store) Uncomplete(id string) error { return s.clear(id, Completed) }

// ToggleSave saves id, or unsaves it when already saved. It returns the
// resulting membership.
func (s *Store) ToggleSave(id string) (Membership, error) { return s.toggle(id, Saved) }

// ToggleComplete completes id, or uncompletes it when already completed.
func (s *Store) ToggleComplete(id string) (Membership, error) { return s.toggle(id, Completed) }

func (s *Store) set(id string, tag Membership) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.engine.Mutate(func(tx *reconcile.Tx[Mark]) error {
		tx.Put(id, Mark{Tag: tag, At: s.now().UTC()})
		return nil
	})
}

func (s *Store) clear(id string, tag Membership) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.engine.Mutate(func(tx *reconcile.Tx[Mark]) error {
		if m, ok := tx.Get(id); ok && m.Tag == tag {
			tx.Delete(id)
		}
		return nil
	})
}

func (s *Store) toggle(id string, tag Membership) (Membership, error) {
	if err := ValidateID(id); err != nil {
		return None, err
	}
	result := None
	err := s.engine.Mutate(func(tx *reconcile.Tx[Mark]) error {
		if m, ok := tx.Get(id); ok && m.Tag == tag {
			tx.Delete(id)
			return nil
		}
		tx.Put(id, Mark{Tag: tag, At: s.now().UTC()})
		result = tag
		return nil
	})
	if err != nil {
		return None, err
	}
	return result, nil
}

func (s *Store) checkCompleted() {
	count := len(s.Snapshot().Completed)

	s.mu.Lock()
	if count == s.lastCompleted {
		s.mu.Unlock()
		return
	}
	first := s.lastCompleted < 0
	s.lastCompleted = count
	hooks := append([]func(string, int){}, s.onCompleted...)
	s.mu.Unlock()

	// The first notification reports the hydrated count, which is not a change.
	if first {
		return
	}
	for _, fn := range hooks {
		fn(s.planID, count)
	}
}
