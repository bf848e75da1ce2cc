// Package identity resolves the actor id every cache key and remote path
// is scoped by.
package identity

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Authenticator yields the signed-in user id, if any. The authentication
// flow itself lives outside lexsync.
type Authenticator interface {
	UserID() (string, bool)
}

// AuthFunc adapts a function to Authenticator.
type AuthFunc func() (string, bool)

// UserID implements Authenticator.
func (f AuthFunc) UserID() (string, bool) { return f() }

// Static is an Authenticator that always returns the same id. An empty id
// means signed out.
type Static string

// UserID implements Authenticator.
func (s Static) UserID() (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}

// MetaStore persists the device id. cache.Cache satisfies it.
type MetaStore interface {
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// DeviceIDKey matches cache.DeviceIDKey.
const DeviceIDKey = "meta:deviceId"

// Resolver produces the actor id: the authenticated user id when present,
// otherwise a device id persisted on first use.
type Resolver struct {
	auth   Authenticator
	store  MetaStore
	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	tempID string
}

// NewResolver creates a Resolver. auth may be nil for anonymous use.
func NewResolver(auth Authenticator, store MetaStore, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(os.Stderr, "[identity] ", log.LstdFlags)
	}
	return &Resolver{
		auth:   auth,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ResolveActorID never fails. When the device id cannot be read or
// persisted it returns a temporary id that is stable for the process
// lifetime and logs a warning.
func (r *Resolver) ResolveActorID(ctx context.Context) string {
	if r.auth != nil {
		if id, ok := r.auth.UserID(); ok {
			return id
		}
	}
	return r.DeviceID(ctx)
}

// DeviceID returns the persisted device id, creating it on first call.
func (r *Resolver) DeviceID(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tempID != "" {
		return r.tempID
	}
	if r.store == nil {
		return r.fallback(fmt.Errorf("no device storage configured"))
	}

	id, found, err := r.store.GetMeta(ctx, DeviceIDKey)
	if err != nil {
		return r.fallback(err)
	}
	if found && id != "" {
		return id
	}

	id = fmt.Sprintf("device_%d_%s", r.now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	if err := r.store.SetMeta(ctx, DeviceIDKey, id); err != nil {
		return r.fallback(err)
	}
	r.logger.Printf("created device id %s", id)
	return id
}

// IsTemporary reports whether the resolver fell back to a process-only id.
func (r *Resolver) IsTemporary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tempID != ""
}

func (r *Resolver) fallback(err error) string {
	r.tempID = "temp_" + uuid.NewString()
	r.logger.Printf("WARNING: device id storage unavailable (%v); using temporary id %s", err, r.tempID)
	return r.tempID
}
