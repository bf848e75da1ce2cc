package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/remote"
)

// Config holds engine settings.
type Config struct {
	// Debounce is the quiet period after the last mutation before a
	// flush pass starts. Each mutation rearms it.
	Debounce time.Duration

	// TTL is the cache freshness window.
	TTL time.Duration

	// MaxAttempts is the retry budget of one pending mutation.
	MaxAttempts int

	// Backoff schedules retries of failed flushes and fetches.
	Backoff Backoff

	// FlushConcurrency bounds parallel writes to distinct targets.
	FlushConcurrency int

	// Now is the clock; nil means time.Now.
	Now func() time.Time

	// Logger for warnings and sync events. If nil, logs to stderr.
	Logger *log.Logger
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Debounce:         3 * time.Second,
		TTL:              cache.DefaultTTL,
		MaxAttempts:      5,
		Backoff:          DefaultBackoff(),
		FlushConcurrency: 8,
	}
}

// Engine owns one scope: its projection, acknowledged remote state,
// pending queue, timers and subscribers.
type Engine[V any] struct {
	cfg     Config
	scope   Scope
	adapter Adapter[V]
	cache   cache.Cache
	remote  remote.Store
	logger  *log.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	local      Projection[V]
	acked      Projection[V]
	pending    map[string]*pendingMutation[V]
	touched    map[string]uint64 // id -> fetchGen at last local change
	fetchGen   uint64
	lastFetch  time.Time
	freshness  time.Time
	seq        uint64
	fetching   int
	inFlight   int
	online     bool
	offline    bool
	failure    error
	debounce   *time.Timer
	fetchRetry *time.Timer
	fetchTries int
	closed     bool

	subs       []subscriber
	watchers   []statusWatcher
	nextSub    int
	lastStatus Status
}

type subscriber struct {
	id int
	fn func()
}

type statusWatcher struct {
	id int
	fn func(Status)
}

// New creates an engine for scope. Call Start before reading or mutating.
func New[V any](cfg Config, scope Scope, adapter Adapter[V], c cache.Cache, rs remote.Store) *Engine[V] {
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.FlushConcurrency <= 0 {
		cfg.FlushConcurrency = def.FlushConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine[V]{
		cfg:        cfg,
		scope:      scope,
		adapter:    adapter,
		cache:      c,
		remote:     rs,
		logger:     logger,
		now:        now,
		ctx:        ctx,
		cancel:     cancel,
		local:      NewProjection[V](),
		acked:      NewProjection[V](),
		pending:    make(map[string]*pendingMutation[V]),
		touched:    make(map[string]uint64),
		online:     true,
		lastStatus: StatusIdle,
	}
}

// Scope returns the engine's scope.
func (e *Engine[V]) Scope() Scope { return e.scope }

// Start hydrates the projection from the cache and begins a background
// fetch. Reads are available as soon as Start returns.
func (e *Engine[V]) Start(ctx context.Context) error {
	if err := e.Hydrate(ctx); err != nil {
		return err
	}
	e.spawn(func() { e.backgroundRefresh() })
	return nil
}

// Hydrate loads the cached projection and the persisted pending queue
// without touching the network. Calling it again is a no-op.
func (e *Engine[V]) Hydrate(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state != Unloaded {
		e.mu.Unlock()
		return nil
	}

	proj, freshness, found, err := e.adapter.Hydrate(ctx, e.cache)
	if err != nil {
		e.logger.Printf("WARNING: %s: cache read failed, starting empty: %v", e.scope, err)
		proj, found = NewProjection[V](), false
	}
	if !found {
		proj = NewProjection[V]()
	}
	e.local = proj
	e.acked = proj.Clone()
	e.freshness = freshness

	e.restorePendingLocked(ctx)

	e.state = CacheHydrated
	if e.hasFlushableLocked() {
		e.armDebounceLocked()
	}
	e.mu.Unlock()

	e.publish(true)
	return nil
}

func (e *Engine[V]) restorePendingLocked(ctx context.Context) {
	records, err := e.cache.ListPending(ctx, e.scope.Actor)
	if err != nil {
		e.logger.Printf("WARNING: %s: cannot read pending queue: %v", e.scope, err)
		return
	}

	for _, rec := range records {
		if rec.Scope != e.scope.Name {
			continue
		}
		p, err := decodePending[V](rec)
		if err != nil {
			e.logger.Printf("WARNING: %s: dropping unreadable pending mutation: %v", e.scope, err)
			_ = e.cache.DeletePending(ctx, e.scope.Actor, rec.Target)
			continue
		}

		if p.deleted {
			e.local.Remove(p.id)
		} else {
			e.local.Set(p.id, p.value)
		}
		if p.hasBase {
			e.acked.Set(p.id, p.base)
		} else {
			e.acked.Remove(p.id)
		}
		if p.seq > e.seq {
			e.seq = p.seq
		}
		e.touched[p.id] = e.fetchGen
		e.pending[p.id] = p
	}
}

// State returns the load state.
func (e *Engine[V]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HasPending reports whether any mutation awaits acknowledgment.
func (e *Engine[V]) HasPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending) > 0
}

// Get returns the local value for id.
func (e *Engine[V]) Get(id string) (V, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local.Get(id)
}

// AckedIDs returns the ids the remote is known to hold, including those
// with local changes not yet acknowledged.
func (e *Engine[V]) AckedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acked.IDs()
}

// Snapshot returns a copy of the local projection.
func (e *Engine[V]) Snapshot() Projection[V] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local.Clone()
}

// Freshness returns when the projection was last confirmed by the remote
// or written to the cache.
func (e *Engine[V]) Freshness() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.freshness
}

// Stale reports whether the projection is older than the TTL.
func (e *Engine[V]) Stale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now().Sub(e.freshness) > e.cfg.TTL
}

// SyncStatus returns the user-facing status.
func (e *Engine[V]) SyncStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// LastError returns the most recent rejection or exhausted-retry error.
func (e *Engine[V]) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// Pending lists queued mutations in enqueue order.
func (e *Engine[V]) Pending() []PendingInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]PendingInfo, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, PendingInfo{
			Scope:      e.scope.Name,
			ID:         p.id,
			Deleted:    p.deleted,
			Seq:        p.seq,
			EnqueuedAt: p.enqueuedAt,
			Attempts:   p.attempts,
			LastError:  p.lastError,
			Exhausted:  p.exhausted,
			InFlight:   p.inFlight,
		})
	}
	sortPending(out)
	return out
}

// Subscribe registers fn to run after every change of the projection.
// It returns a function that removes the subscription.
func (e *Engine[V]) Subscribe(fn func()) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// WatchStatus registers fn to run whenever SyncStatus changes.
func (e *Engine[V]) WatchStatus(fn func(Status)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.watchers = append(e.watchers, statusWatcher{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, w := range e.watchers {
			if w.id == id {
				e.watchers = append(e.watchers[:i], e.watchers[i+1:]...)
				return
			}
		}
	}
}

// Mutate runs fn against a transaction over the projection. If fn returns
// an error nothing is applied. Otherwise every staged change is applied to
// the projection and the cache, queued for the remote, and Mutate returns
// without waiting for the network.
func (e *Engine[V]) Mutate(fn func(tx *Tx[V]) error) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == Unloaded {
		e.mu.Unlock()
		return ErrNotLoaded
	}

	tx := newTx(e.local)
	if err := fn(tx); err != nil {
		e.mu.Unlock()
		return err
	}

	changed := false
	now := e.now()
	for _, id := range tx.order {
		st := tx.staged[id]
		cur, had := e.local.Get(id)
		if st.deleted && !had {
			continue
		}
		if !st.deleted && had && e.adapter.Equal(cur, st.value) {
			continue
		}

		if st.deleted {
			e.local.Remove(id)
		} else {
			e.local.Set(id, st.value)
		}
		e.touched[id] = e.fetchGen
		e.enqueueLocked(id, st.value, st.deleted, now)
		changed = true
	}

	if changed {
		e.persistLocked()
		if e.hasFlushableLocked() {
			e.armDebounceLocked()
		}
	}
	e.mu.Unlock()

	if changed {
		e.publish(true)
	}
	return nil
}

// enqueueLocked records the desired final state of id, coalescing with
// any queued mutation for the same target.
func (e *Engine[V]) enqueueLocked(id string, value V, deleted bool, now time.Time) {
	p, exists := e.pending[id]
	if !exists {
		base, hasBase := e.acked.Get(id)
		p = &pendingMutation[V]{id: id, base: base, hasBase: hasBase}
		e.pending[id] = p
	}

	p.value = value
	p.deleted = deleted
	p.seq = e.nextSeqLocked(now)
	p.enqueuedAt = now
	p.attempts = 0
	p.exhausted = false
	p.lastError = ""
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}

	// Net no-op against the remote: nothing to send.
	if !p.inFlight && e.matchesAckedLocked(id, value, deleted) {
		delete(e.pending, id)
		e.dropPendingRecordLocked(id)
		return
	}

	e.savePendingRecordLocked(p)
}

// matchesAckedLocked reports whether the adapter has nothing to send for
// the desired state of id.
func (e *Engine[V]) matchesAckedLocked(id string, value V, deleted bool) bool {
	acked, has := e.acked.Get(id)
	return len(e.adapter.Writes(id, acked, has, value, !deleted)) == 0
}

// nextSeqLocked returns a sequence number that is unique and increasing
// across restarts for this engine.
func (e *Engine[V]) nextSeqLocked(now time.Time) uint64 {
	next := uint64(now.UnixNano())
	if next <= e.seq {
		next = e.seq + 1
	}
	e.seq = next
	return next
}

func (e *Engine[V]) savePendingRecordLocked(p *pendingMutation[V]) {
	rec, err := encodePending(e.scope, p)
	if err == nil {
		err = e.cache.PutPending(e.ctx, e.scope.Actor, rec)
	}
	if err != nil {
		e.logger.Printf("WARNING: %s: pending mutation %s kept in memory only: %v", e.scope, p.id, err)
	}
}

func (e *Engine[V]) dropPendingRecordLocked(id string) {
	if err := e.cache.DeletePending(e.ctx, e.scope.Actor, targetKey(e.scope, id)); err != nil {
		e.logger.Printf("WARNING: %s: failed to remove pending record %s: %v", e.scope, id, err)
	}
}

func (e *Engine[V]) persistLocked() {
	if err := e.adapter.Persist(e.ctx, e.cache, e.local); err != nil {
		e.logger.Printf("WARNING: %s: cache write failed, continuing in memory: %v", e.scope, err)
		return
	}
	e.freshness = e.now()
}

func (e *Engine[V]) hasFlushableLocked() bool {
	for _, p := range e.pending {
		if !p.exhausted && !p.inFlight {
			return true
		}
	}
	return false
}

func (e *Engine[V]) armDebounceLocked() {
	if e.closed {
		return
	}
	if e.debounce == nil {
		e.debounce = time.AfterFunc(e.cfg.Debounce, e.debouncedFlush)
		return
	}
	e.debounce.Reset(e.cfg.Debounce)
}

func (e *Engine[V]) debouncedFlush() {
	if err := e.flush(e.ctx, false); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Printf("%s: flush incomplete: %v", e.scope, err)
	}
}

// Flush sends every pending mutation now and waits for the attempts to
// finish. Exhausted mutations get a fresh retry budget. It returns the
// first failure; failed targets stay queued.
func (e *Engine[V]) Flush(ctx context.Context) error {
	return e.flush(ctx, true)
}

func (e *Engine[V]) flush(ctx context.Context, includeExhausted bool) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if !e.online {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", e.scope, remote.ErrUnavailable)
	}

	var ids []string
	for id, p := range e.pending {
		if p.inFlight {
			continue
		}
		if p.exhausted {
			if !includeExhausted {
				continue
			}
			p.exhausted = false
			p.attempts = 0
		}
		ids = append(ids, id)
	}
	e.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(e.cfg.FlushConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			return e.flushTarget(ctx, id)
		})
	}
	return g.Wait()
}

// flushTarget sends the current payload of one target. Only one attempt
// per target is in flight at a time.
func (e *Engine[V]) flushTarget(ctx context.Context, id string) error {
	e.mu.Lock()
	p := e.pending[id]
	if e.closed || p == nil || p.inFlight || !e.online {
		e.mu.Unlock()
		return nil
	}
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}

	p.inFlight = true
	e.inFlight++
	seq := p.seq
	desired, deleted := p.value, p.deleted
	acked, hasAcked := e.acked.Get(id)
	writes := e.adapter.Writes(id, acked, hasAcked, desired, !deleted)
	e.mu.Unlock()
	e.publish(false)

	var err error
	for _, w := range writes {
		if err = remote.Apply(ctx, e.remote, w); err != nil {
			break
		}
	}

	e.mu.Lock()
	p.inFlight = false
	e.inFlight--

	// Closed, or the target was dropped while the write was in flight.
	if e.closed || e.pending[id] != p {
		e.mu.Unlock()
		e.publish(false)
		return nil
	}

	superseded := p.seq != seq
	dataChanged := false

	switch {
	case err == nil:
		if deleted {
			e.acked.Remove(id)
		} else {
			e.acked.Set(id, desired)
		}
		e.offline = false
		e.failure = nil
		if superseded {
			p.base, p.hasBase = desired, !deleted
			e.savePendingRecordLocked(p)
			e.spawnLocked(func() { _ = e.flushTarget(e.ctx, id) })
		} else {
			delete(e.pending, id)
			e.dropPendingRecordLocked(id)
		}

	case remote.IsRejected(err):
		e.failure = err
		e.logger.Printf("WARNING: %s: %s rejected, reverting local change: %v", e.scope, id, err)
		if superseded {
			// The newer payload is sent on its own; it gets its own verdict.
			e.spawnLocked(func() { _ = e.flushTarget(e.ctx, id) })
			break
		}
		if hasAcked {
			e.local.Set(id, acked)
		} else {
			e.local.Remove(id)
		}
		delete(e.pending, id)
		e.dropPendingRecordLocked(id)
		e.persistLocked()
		dataChanged = true

	case errors.Is(err, context.Canceled):
		// Shutdown or caller cancellation; the mutation stays queued.

	case superseded:
		e.spawnLocked(func() { _ = e.flushTarget(e.ctx, id) })

	default:
		p.attempts++
		p.lastError = err.Error()
		e.offline = remote.IsOffline(err)
		if p.attempts >= e.cfg.MaxAttempts || !remote.IsTransient(err) {
			p.exhausted = true
			e.failure = fmt.Errorf("%s: %s: giving up after %d attempts: %w", e.scope, id, p.attempts, err)
			e.logger.Printf("WARNING: %v", e.failure)
		} else {
			delay := e.cfg.Backoff.Delay(p.attempts - 1)
			p.retry = time.AfterFunc(delay, func() { e.retryTarget(id) })
		}
		e.savePendingRecordLocked(p)
	}
	e.mu.Unlock()

	e.publish(dataChanged)
	if superseded && !remote.IsRejected(err) {
		return nil
	}
	return err
}

func (e *Engine[V]) retryTarget(id string) {
	e.spawn(func() { _ = e.flushTarget(e.ctx, id) })
}

// Refresh fetches the remote state, merges it into the projection and
// writes the result to the cache.
func (e *Engine[V]) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == Unloaded {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	e.state = Reconciling
	e.fetching++
	e.mu.Unlock()
	e.publish(false)

	fetched, err := e.adapter.Fetch(ctx, e.remote)

	e.mu.Lock()
	e.fetching--
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		e.offline = remote.IsOffline(err)
		e.mu.Unlock()
		e.publish(false)
		return fmt.Errorf("failed to fetch %s: %w", e.scope, err)
	}

	changed := e.mergeLocked(fetched)
	e.lastFetch = e.now()
	e.offline = false
	e.fetchTries = 0
	e.state = Settled
	e.persistLocked()
	e.mu.Unlock()

	e.publish(changed)
	return nil
}

// RefreshIfStale refreshes in the background when the TTL has passed.
func (e *Engine[V]) RefreshIfStale() bool {
	if !e.Stale() {
		return false
	}
	e.spawn(func() { e.backgroundRefresh() })
	return true
}

// backgroundRefresh fetches and, on failure, keeps serving the cache and
// retries with backoff until it succeeds or the engine closes.
func (e *Engine[V]) backgroundRefresh() {
	err := e.Refresh(e.ctx)
	if err == nil || errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	delay := e.cfg.Backoff.Delay(e.fetchTries)
	e.fetchTries++
	e.logger.Printf("%s: fetch failed, retrying in %v: %v", e.scope, delay.Round(time.Millisecond), err)
	if e.fetchRetry != nil {
		e.fetchRetry.Stop()
	}
	e.fetchRetry = time.AfterFunc(delay, func() {
		e.spawn(func() { e.backgroundRefresh() })
	})
}

// mergeLocked applies the remote-authoritative merge rule and reports
// whether the projection changed.
func (e *Engine[V]) mergeLocked(fetched Projection[V]) bool {
	keepLocal := func(id string) bool {
		if _, ok := e.pending[id]; ok {
			return true
		}
		gen, ok := e.touched[id]
		return ok && gen == e.fetchGen
	}

	merged := NewProjection[V]()
	for _, id := range fetched.IDs() {
		rv, _ := fetched.Get(id)
		if keepLocal(id) {
			if lv, ok := e.local.Get(id); ok {
				merged.Set(id, lv)
			}
			continue
		}
		merged.Set(id, rv)
		e.acked.Set(id, rv)
	}
	for _, id := range e.local.IDs() {
		if fetched.Has(id) {
			continue
		}
		if keepLocal(id) {
			lv, _ := e.local.Get(id)
			merged.Set(id, lv)
			continue
		}
		e.acked.Remove(id)
	}

	// Ids only in acked (neither local nor remote) are gone remotely.
	for _, id := range e.acked.IDs() {
		if !fetched.Has(id) && !keepLocal(id) {
			e.acked.Remove(id)
		}
	}

	// Local changes made before this fetch completed are now covered by
	// the next fetch; only pending targets stay protected.
	e.fetchGen++
	for id := range e.touched {
		if _, ok := e.pending[id]; !ok {
			delete(e.touched, id)
		}
	}

	changed := !equalProjections(e.local, merged, e.adapter.Equal)
	e.local = merged
	return changed
}

// SetOnline switches connectivity. Going online flushes every pending
// mutation, including exhausted ones, and refreshes the scope.
func (e *Engine[V]) SetOnline(online bool) {
	e.mu.Lock()
	was := e.online
	e.online = online
	if !online {
		for _, p := range e.pending {
			if p.retry != nil {
				p.retry.Stop()
				p.retry = nil
			}
		}
	}
	closed := e.closed
	e.mu.Unlock()
	e.publish(false)

	if closed || !online || was {
		return
	}
	e.spawn(func() {
		if err := e.Flush(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Printf("%s: flush after reconnect incomplete: %v", e.scope, err)
		}
		e.backgroundRefresh()
	})
}

// Close stops timers and background work. Results of writes still in
// flight are discarded; their mutations stay persisted.
func (e *Engine[V]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.debounce != nil {
		e.debounce.Stop()
	}
	if e.fetchRetry != nil {
		e.fetchRetry.Stop()
	}
	for _, p := range e.pending {
		if p.retry != nil {
			p.retry.Stop()
		}
	}
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
}

// Discard closes the engine and removes the scope's cache entries and
// pending mutations, which are then never sent.
func (e *Engine[V]) Discard(ctx context.Context) error {
	e.Close()

	e.mu.Lock()
	dropped := len(e.pending)
	e.pending = make(map[string]*pendingMutation[V])
	e.mu.Unlock()

	if err := e.cache.DeletePendingScope(ctx, e.scope.Actor, e.scope.Name); err != nil {
		return fmt.Errorf("failed to drop pending mutations of %s: %w", e.scope, err)
	}
	if err := e.adapter.Purge(ctx, e.cache); err != nil {
		return fmt.Errorf("failed to purge cache of %s: %w", e.scope, err)
	}
	if dropped > 0 {
		e.logger.Printf("%s: discarded %d pending mutation(s)", e.scope, dropped)
	}
	return nil
}

func (e *Engine[V]) spawn(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spawnLocked(fn)
}

func (e *Engine[V]) spawnLocked(fn func()) {
	if e.closed {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

func (e *Engine[V]) anyExhaustedLocked() bool {
	for _, p := range e.pending {
		if p.exhausted {
			return true
		}
	}
	return false
}

func (e *Engine[V]) statusLocked() Status {
	switch {
	case e.failure != nil || e.anyExhaustedLocked():
		return StatusError
	case !e.online || e.offline:
		return StatusOffline
	case e.fetching > 0 || e.inFlight > 0 || len(e.pending) > 0:
		return StatusSyncing
	case !e.lastFetch.IsZero():
		return StatusSynced
	default:
		return StatusIdle
	}
}

// publish notifies subscribers (when data changed) and status watchers
// (when the status changed). Callbacks run without the lock held.
func (e *Engine[V]) publish(dataChanged bool) {
	e.mu.Lock()
	status := e.statusLocked()
	statusChanged := status != e.lastStatus
	e.lastStatus = status

	var subs []func()
	if dataChanged {
		for _, s := range e.subs {
			subs = append(subs, s.fn)
		}
	}
	var watchers []func(Status)
	if statusChanged {
		for _, w := range e.watchers {
			watchers = append(watchers, w.fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
	for _, fn := range watchers {
		fn(status)
	}
}
