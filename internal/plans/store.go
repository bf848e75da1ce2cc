package plans

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/lang"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
)

// ScopeName is the engine scope name of an owner's plan list.
const ScopeName = "plans"

var (
	// ErrNotFound is returned for operations on an unknown plan id.
	ErrNotFound = errors.New("plan not found")

	// ErrDuplicatePair is returned when the owner already has a plan for
	// the language pair.
	ErrDuplicatePair = errors.New("plan for language pair already exists")
)

// ProgressUpdate changes selected progress counters. Nil fields are kept.
type ProgressUpdate struct {
	WordsLearned *int
	CurrentLevel *int
	TotalWords   *int
}

// Store is the plan list of one owner.
type Store struct {
	owner  string
	engine *reconcile.Engine[Plan]
	now    func() time.Time
	newID  func() string
	logger *log.Logger

	mu       sync.Mutex
	onDelete []func(planID string)
	cascade  func(planID string) []remote.Path
}

// New creates the plan store of owner. Call Start before use.
func New(owner string, cfg reconcile.Config, c cache.Cache, rs remote.Store) *Store {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[plans] ", log.LstdFlags)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	a := adapter{owner: owner, logger: cfg.Logger}
	return &Store{
		owner:  owner,
		engine: reconcile.New[Plan](cfg, reconcile.Scope{Actor: owner, Name: ScopeName}, a, c, rs),
		now:    now,
		newID:  NewID,
		logger: cfg.Logger,
	}
}

// Engine exposes the underlying engine for session-level control.
func (s *Store) Engine() *reconcile.Engine[Plan] { return s.engine }

// Owner returns the owning actor id.
func (s *Store) Owner() string { return s.owner }

// Start hydrates from the cache and refreshes in the background.
func (s *Store) Start(ctx context.Context) error { return s.engine.Start(ctx) }

// Hydrate loads the cache without starting a fetch.
func (s *Store) Hydrate(ctx context.Context) error { return s.engine.Hydrate(ctx) }

// Refresh fetches the remote plan list and merges it.
func (s *Store) Refresh(ctx context.Context) error { return s.engine.Refresh(ctx) }

// Flush sends pending plan mutations now.
func (s *Store) Flush(ctx context.Context) error { return s.engine.Flush(ctx) }

// Close stops background work.
func (s *Store) Close() { s.engine.Close() }

// Snapshot returns all plans in display order.
func (s *Store) Snapshot() []Plan {
	return s.engine.Snapshot().Values()
}

// Get returns the plan with id.
func (s *Store) Get(id string) (Plan, bool) {
	return s.engine.Get(id)
}

// Active returns the active plan.
func (s *Store) Active() (Plan, bool) {
	for _, p := range s.Snapshot() {
		if p.IsActive {
			return p, true
		}
	}
	return Plan{}, false
}

// FindPair returns the plan for a language pair.
func (s *Store) FindPair(source, target string) (Plan, bool) {
	for _, p := range s.Snapshot() {
		if p.SourceLanguage == source && p.TargetLanguage == target {
			return p, true
		}
	}
	return Plan{}, false
}

// Subscribe registers fn to run after every change of the plan list.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) { return s.engine.Subscribe(fn) }

// SyncStatus returns the user-facing sync status of the plan list.
func (s *Store) SyncStatus() reconcile.Status { return s.engine.SyncStatus() }

// LastError returns the last rejection or exhausted-retry error.
func (s *Store) LastError() error { return s.engine.LastError() }

// OnDelete registers fn to run after a plan is deleted locally.
func (s *Store) OnDelete(fn func(planID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

// SetCascade registers the source of word documents to delete with a
// plan. It is called before the plan is removed locally.
func (s *Store) SetCascade(fn func(planID string) []remote.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cascade = fn
}

// Create adds a plan for the language pair and makes it the active plan.
// An empty name falls back to the pair's default name.
func (s *Store) Create(source, target, name string) (Plan, error) {
	if err := lang.ValidatePair(source, target); err != nil {
		return Plan{}, reconcile.Invalid("languages", "%v", err)
	}
	if name == "" {
		name = lang.PlanName(source, target)
	}

	plan := Plan{
		ID:             s.newID(),
		OwnerID:        s.owner,
		SourceLanguage: source,
		TargetLanguage: target,
		Name:           name,
		CreatedAt:      s.now().UTC(),
		IsActive:       true,
		Progress:       Progress{CurrentLevel: 1},
	}
	if err := plan.Validate(); err != nil {
		return Plan{}, err
	}

	err := s.engine.Mutate(func(tx *reconcile.Tx[Plan]) error {
		for _, id := range tx.IDs() {
			p, _ := tx.Get(id)
			if p.SourceLanguage == source && p.TargetLanguage == target {
				return reconcile.ValidationError{
					Field:  "languages",
					Reason: fmt.Sprintf("%v: %s (plan %s)", ErrDuplicatePair, p.Pair(), p.ID),
					Err:    ErrDuplicatePair,
				}
			}
		}
		for _, id := range tx.IDs() {
			p, _ := tx.Get(id)
			if p.IsActive {
				p.IsActive = false
				tx.Put(id, p)
			}
		}
		tx.Put(plan.ID, plan)
		return nil
	})
	if err != nil {
		return Plan{}, err
	}

	s.logger.Printf("created plan %s (%s)", plan.ID, plan.Pair())
	return plan, nil
}

// SetActive makes id the only active plan.
func (s *Store) SetActive(id string) error {
	return s.engine.Mutate(func(tx *reconcile.Tx[Plan]) error {
		if _, ok := tx.Get(id); !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		for _, other := range tx.IDs() {
			p, _ := tx.Get(other)
			want := other == id
			if p.IsActive != want {
				p.IsActive = want
				tx.Put(other, p)
			}
		}
		return nil
	})
}

// Delete removes a plan. When it was active, the first remaining plan
// becomes active. OnDelete hooks run after the local change.
func (s *Store) Delete(id string) error {
	if _, ok := s.engine.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.mu.Lock()
	cascade := s.cascade
	s.mu.Unlock()
	var docs []remote.Path
	if cascade != nil {
		docs = cascade(id)
	}

	err := s.engine.Mutate(func(tx *reconcile.Tx[Plan]) error {
		p, ok := tx.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		tombstone := p
		tombstone.Cascade = docs
		tx.Tombstone(id, tombstone)

		if p.IsActive {
			if remaining := tx.IDs(); len(remaining) > 0 {
				next, _ := tx.Get(remaining[0])
				next.IsActive = true
				tx.Put(next.ID, next)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	hooks := append([]func(string){}, s.onDelete...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

// UpdateProgress changes progress counters of plan id. Unchanged values
// produce no remote write.
func (s *Store) UpdateProgress(id string, u ProgressUpdate) error {
	return s.engine.Mutate(func(tx *reconcile.Tx[Plan]) error {
		p, ok := tx.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if u.WordsLearned != nil {
			p.Progress.WordsLearned = *u.WordsLearned
		}
		if u.CurrentLevel != nil {
			p.Progress.CurrentLevel = *u.CurrentLevel
		}
		if u.TotalWords != nil {
			p.Progress.TotalWords = *u.TotalWords
		}
		if err := p.Progress.Validate(); err != nil {
			return err
		}
		tx.Put(id, p)
		return nil
	})
}
