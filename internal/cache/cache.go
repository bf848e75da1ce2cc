// Package cache provides the device-local persistence layer for lexsync.
//
// The cache holds the last known projection of every scope an actor has
// loaded (plan lists and per-plan word sets), the actor's pending mutation
// queue, and small metadata values such as the device id. Reads are served
// from the cache immediately; the reconcile engine refreshes entries from the
// remote store in the background.
//
// Key layout:
//   - cache:{actor}:plans                         plan snapshot
//   - cache:{actor}:plan:{planId}:savedWords      id set
//   - cache:{actor}:plan:{planId}:completedWords  id set
//   - pendingMutations:{actor}                    pending mutation queue
//   - meta:deviceId                               device identity
//
// Two implementations exist: DB (SQLite via ncruces/go-sqlite3) and Memory.
// OpenOrMemory degrades to Memory when the SQLite file cannot be opened.
package cache

import (
	"context"
	"errors"
	"log"
	"os"
	"time"
)

// ErrStorageUnavailable is returned when the underlying storage cannot be used.
var ErrStorageUnavailable = errors.New("local storage unavailable")

// DefaultTTL is the freshness window for cached entries.
const DefaultTTL = 5 * time.Minute

// Word set names used under a plan prefix.
const (
	SavedWords     = "savedWords"
	CompletedWords = "completedWords"
)

// DeviceIDKey is the meta key holding the persisted device id.
const DeviceIDKey = "meta:deviceId"

// PlansKey returns the snapshot key for an actor's plan list.
func PlansKey(actor string) string {
	return "cache:" + actor + ":plans"
}

// PlanPrefix returns the key prefix shared by all entries of one plan.
func PlanPrefix(actor, planID string) string {
	return "cache:" + actor + ":plan:" + planID + ":"
}

// WordSetKey returns the id set key for one of a plan's word sets.
func WordSetKey(actor, planID, set string) string {
	return PlanPrefix(actor, planID) + set
}

// PendingKey returns the queue key of an actor's pending mutations.
func PendingKey(actor string) string {
	return "pendingMutations:" + actor
}

// IDSet is a cached set of entity ids plus the time it was last written.
type IDSet struct {
	IDs       []string
	Freshness time.Time
}

// Stale reports whether the set is older than ttl at now.
// Stale data is still returned to readers.
func (s IDSet) Stale(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.Freshness) > ttl
}

// PendingRecord is the persisted form of one pending mutation.
// Target is unique within an actor's queue.
type PendingRecord struct {
	Target     string
	Scope      string
	Seq        uint64
	EnqueuedAt time.Time
	Attempts   int
	Exhausted  bool
	Payload    []byte
	LastError  string
}

// Cache is the local persistence contract used by the reconcile engine.
//
// A missing key is reported with found == false and a nil error, so callers
// can tell "never fetched" apart from "fetched and empty".
type Cache interface {
	ReadIDSet(ctx context.Context, key string) (IDSet, bool, error)
	WriteIDSet(ctx context.Context, key string, ids []string) error

	// ReadSnapshot decodes the JSON value stored under key into into.
	ReadSnapshot(ctx context.Context, key string, into any) (time.Time, bool, error)
	WriteSnapshot(ctx context.Context, key string, value any) error

	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error

	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error

	PutPending(ctx context.Context, actor string, rec PendingRecord) error
	DeletePending(ctx context.Context, actor, target string) error
	ListPending(ctx context.Context, actor string) ([]PendingRecord, error)
	DeletePendingScope(ctx context.Context, actor, scope string) error

	Close() error
}

// Option configures a cache implementation.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp freshness.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OpenOrMemory opens the SQLite cache at path and initializes its schema.
// If that fails the error is logged and an in-memory cache is returned, so
// the session keeps working for the lifetime of the process.
func OpenOrMemory(path string, logger *log.Logger, opts ...Option) Cache {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}

	db, err := Open(path, opts...)
	if err == nil {
		if err = db.InitSchema(); err == nil {
			return db
		}
		_ = db.Close()
	}

	logger.Printf("WARNING: %v: %v; continuing with in-memory cache", ErrStorageUnavailable, err)
	return NewMemory(opts...)
}
