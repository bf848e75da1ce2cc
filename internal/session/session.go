// Package session ties together the stores of one actor.
//
// A Session owns:
// 1. The actor's plan list
// 2. One word store per plan, opened on first use
// 3. Study pools built from the vocabulary corpus
// 4. A scheduler that refreshes stale scopes in the background
//
// Plan deletion drops the plan's word scope with its pending mutations, and
// completed-word counts flow back into plan progress.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/plans"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
	"github.com/futurelex/lexsync/internal/vocab"
	"github.com/futurelex/lexsync/internal/words"
)

// ErrNoActivePlan is returned when an operation needs an active plan and
// the actor has none.
var ErrNoActivePlan = errors.New("no active plan")

// Config holds configuration for a session.
type Config struct {
	// Engine is passed to every store.
	Engine reconcile.Config

	// PoolSize is the study pool size per plan.
	PoolSize int

	// RefreshInterval is how often stale scopes are refreshed.
	// Zero disables the scheduler.
	RefreshInterval time.Duration

	// Logger for session activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine:          reconcile.DefaultConfig(),
		PoolSize:        words.DefaultPoolSize,
		RefreshInterval: time.Minute,
		Logger:          log.New(os.Stderr, "[session] ", log.LstdFlags),
	}
}

// Session is the data layer of one signed-in actor or device.
type Session struct {
	actor   string
	cfg     *Config
	cache   cache.Cache
	remote  remote.Store
	library *vocab.Library
	plans   *plans.Store

	scheduler *gocron.Scheduler

	mu        sync.Mutex
	words     map[string]*words.Store
	pools     map[string]*words.Pool
	listeners map[int]func()
	nextID    int
	online    bool
	closed    bool
}

// New creates a session for actor. Use Start to load data.
func New(actor string, c cache.Cache, rs remote.Store, library *vocab.Library, cfg *Config) (*Session, error) {
	if actor == "" {
		return nil, fmt.Errorf("actor cannot be empty")
	}
	if c == nil || rs == nil {
		return nil, fmt.Errorf("cache and remote store are required")
	}
	if library == nil {
		library = vocab.NewLibrary(vocab.Default())
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = words.DefaultPoolSize
	}

	s := &Session{
		actor:     actor,
		cfg:       cfg,
		cache:     c,
		remote:    rs,
		library:   library,
		words:     make(map[string]*words.Store),
		pools:     make(map[string]*words.Pool),
		listeners: make(map[int]func()),
		online:    true,
	}

	s.plans = plans.New(actor, cfg.Engine, c, rs)
	s.plans.OnDelete(s.dropPlan)
	s.plans.SetCascade(s.wordPaths)
	s.watch(s.plans.Engine())
	return s, nil
}

// Start hydrates the plan list, reopens word scopes that still have
// pending mutations and starts the refresh scheduler.
func (s *Session) Start(ctx context.Context) error {
	s.cfg.Logger.Printf("Starting session for %s", s.actor)

	if err := s.plans.Start(ctx); err != nil {
		return fmt.Errorf("failed to load plans: %w", err)
	}
	if err := s.resumePending(ctx); err != nil {
		s.cfg.Logger.Printf("WARNING: cannot resume pending word mutations: %v", err)
	}

	if s.cfg.RefreshInterval > 0 {
		sched := gocron.NewScheduler(time.UTC)
		sched.SingletonModeAll()
		if _, err := sched.Every(s.cfg.RefreshInterval).Do(s.refreshStale); err != nil {
			return fmt.Errorf("failed to schedule refresh: %w", err)
		}
		sched.StartAsync()

		s.mu.Lock()
		s.scheduler = sched
		s.mu.Unlock()
	}
	return nil
}

// resumePending opens the word stores whose scopes have queued mutations,
// so that work from a previous run is flushed without the user revisiting
// the plan.
func (s *Session) resumePending(ctx context.Context) error {
	records, err := s.cache.ListPending(ctx, s.actor)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, rec := range records {
		planID, ok := strings.CutPrefix(rec.Scope, words.ScopeName(""))
		if !ok || planID == "" || seen[planID] {
			continue
		}
		seen[planID] = true
		if _, err := s.openWords(ctx, planID); err != nil {
			s.cfg.Logger.Printf("WARNING: cannot reopen words of %s: %v", planID, err)
		}
	}
	if len(seen) > 0 {
		s.cfg.Logger.Printf("Resumed %d word scope(s) with pending mutations", len(seen))
	}
	return nil
}

// Actor returns the actor id.
func (s *Session) Actor() string { return s.actor }

// Plans returns the plan store.
func (s *Session) Plans() *plans.Store { return s.plans }

// Library returns the vocabulary library.
func (s *Session) Library() *vocab.Library { return s.library }

// CreatePlan creates a plan and records the corpus size of its pair.
func (s *Session) CreatePlan(source, target, name string) (plans.Plan, error) {
	p, err := s.plans.Create(source, target, name)
	if err != nil {
		return plans.Plan{}, err
	}

	total := s.library.Corpus().Count(source, target)
	if err := s.plans.UpdateProgress(p.ID, plans.ProgressUpdate{TotalWords: &total}); err != nil {
		return plans.Plan{}, err
	}
	p.Progress.TotalWords = total
	return p, nil
}

// Words returns the word store of planID, starting it on first use.
func (s *Session) Words(ctx context.Context, planID string) (*words.Store, error) {
	if _, ok := s.plans.Get(planID); !ok {
		return nil, fmt.Errorf("%w: %s", plans.ErrNotFound, planID)
	}
	return s.openWords(ctx, planID)
}

// ActiveWords returns the active plan and its word store.
func (s *Session) ActiveWords(ctx context.Context) (plans.Plan, *words.Store, error) {
	p, ok := s.plans.Active()
	if !ok {
		return plans.Plan{}, nil, ErrNoActivePlan
	}
	ws, err := s.openWords(ctx, p.ID)
	if err != nil {
		return plans.Plan{}, nil, err
	}
	return p, ws, nil
}

func (s *Session) openWords(ctx context.Context, planID string) (*words.Store, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, reconcile.ErrClosed
	}
	if ws, ok := s.words[planID]; ok {
		s.mu.Unlock()
		return ws, nil
	}
	ws := words.New(s.actor, planID, s.cfg.Engine, s.cache, s.remote)
	s.words[planID] = ws
	online := s.online
	s.mu.Unlock()

	ws.OnCompletedChange(s.recordProgress)
	s.watch(ws.Engine())
	if !online {
		ws.Engine().SetOnline(false)
	}
	if err := ws.Start(ctx); err != nil {
		s.mu.Lock()
		delete(s.words, planID)
		s.mu.Unlock()
		ws.Close()
		return nil, fmt.Errorf("failed to load words of %s: %w", planID, err)
	}
	return ws, nil
}

// wordPaths lists the word documents the remote holds for planID, as far
// as the word scope knows. A scope not open in this session is read from
// the cache.
func (s *Session) wordPaths(planID string) []remote.Path {
	s.mu.Lock()
	ws, ok := s.words[planID]
	s.mu.Unlock()

	if !ok {
		ws = words.New(s.actor, planID, s.cfg.Engine, s.cache, s.remote)
		defer ws.Close()
		if err := ws.Hydrate(context.Background()); err != nil {
			s.cfg.Logger.Printf("WARNING: cannot read words of %s for cascade: %v", planID, err)
			return nil
		}
	}
	return ws.RemotePaths()
}

// dropPlan discards the word scope of a deleted plan, including mutations
// not yet sent. The remote cascade is part of the plan deletion itself;
// see wordPaths.
func (s *Session) dropPlan(planID string) {
	s.mu.Lock()
	ws, ok := s.words[planID]
	delete(s.words, planID)
	delete(s.pools, planID)
	s.mu.Unlock()

	if !ok {
		ws = words.New(s.actor, planID, s.cfg.Engine, s.cache, s.remote)
	}
	if err := ws.Discard(context.Background()); err != nil {
		s.cfg.Logger.Printf("WARNING: failed to discard words of %s: %v", planID, err)
	}
	s.notify()
}

func (s *Session) recordProgress(planID string, completed int) {
	err := s.plans.UpdateProgress(planID, plans.ProgressUpdate{WordsLearned: &completed})
	if err != nil && !errors.Is(err, plans.ErrNotFound) {
		s.cfg.Logger.Printf("WARNING: failed to record progress of %s: %v", planID, err)
	}
}

// Pool returns the study pool of planID.
func (s *Session) Pool(ctx context.Context, planID string) (*words.Pool, error) {
	ws, err := s.Words(ctx, planID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[planID]; ok {
		return p, nil
	}

	candidates := func() []string {
		p, ok := s.plans.Get(planID)
		if !ok {
			return nil
		}
		return s.library.Corpus().IDs(p.SourceLanguage, p.TargetLanguage)
	}
	isCompleted := func(id string) bool { return ws.Membership(id) == words.Completed }

	p := words.NewPool(s.cfg.PoolSize, candidates, isCompleted)
	s.pools[planID] = p
	return p, nil
}

// Complete marks a word completed and takes it out of the plan's pool.
func (s *Session) Complete(ctx context.Context, planID, wordID string) error {
	ws, err := s.Words(ctx, planID)
	if err != nil {
		return err
	}
	if err := ws.Complete(wordID); err != nil {
		return err
	}
	if p := s.openPool(planID); p != nil {
		p.Remove(wordID)
	}
	return nil
}

// Uncomplete clears a completed word and returns it to the plan's pool.
func (s *Session) Uncomplete(ctx context.Context, planID, wordID string) error {
	ws, err := s.Words(ctx, planID)
	if err != nil {
		return err
	}
	if err := ws.Uncomplete(wordID); err != nil {
		return err
	}
	if p := s.openPool(planID); p != nil {
		p.Return(wordID)
	}
	return nil
}

// RefillPools tops up every open study pool, for example after the corpus
// was reloaded.
func (s *Session) RefillPools() {
	s.mu.Lock()
	pools := make([]*words.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.Unlock()

	for _, p := range pools {
		p.Refill()
	}
	s.notify()
}

func (s *Session) openPool(planID string) *words.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pools[planID]
}

func (s *Session) wordStores() []*words.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*words.Store, 0, len(s.words))
	for _, ws := range s.words {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanID() < out[j].PlanID() })
	return out
}

// Sync flushes every open scope and then refreshes it. Each scope is
// synced even when another fails; the errors are joined.
func (s *Session) Sync(ctx context.Context) error {
	var errs []error
	if err := s.plans.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.plans.Refresh(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, ws := range s.wordStores() {
		if err := ws.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := ws.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush sends pending mutations of every open scope without refreshing.
func (s *Session) Flush(ctx context.Context) error {
	errs := []error{s.plans.Flush(ctx)}
	for _, ws := range s.wordStores() {
		errs = append(errs, ws.Flush(ctx))
	}
	return errors.Join(errs...)
}

// SetOnline switches connectivity for every scope. Coming back online
// flushes pending mutations.
func (s *Session) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()
	if !changed {
		return
	}

	s.cfg.Logger.Printf("Connectivity changed: online=%v", online)
	s.plans.Engine().SetOnline(online)
	for _, ws := range s.wordStores() {
		ws.Engine().SetOnline(online)
	}
}

// Online reports the connectivity switch.
func (s *Session) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Status returns the most severe sync status across open scopes.
func (s *Session) Status() reconcile.Status {
	statuses := []reconcile.Status{s.plans.SyncStatus()}
	for _, ws := range s.wordStores() {
		statuses = append(statuses, ws.SyncStatus())
	}
	return reconcile.Worst(statuses...)
}

// LastError returns the first scope failure, if any.
func (s *Session) LastError() error {
	if err := s.plans.LastError(); err != nil {
		return err
	}
	for _, ws := range s.wordStores() {
		if err := ws.LastError(); err != nil {
			return fmt.Errorf("plan %s: %w", ws.PlanID(), err)
		}
	}
	return nil
}

// Pending lists queued mutations of every open scope in enqueue order.
func (s *Session) Pending() []reconcile.PendingInfo {
	out := s.plans.Engine().Pending()
	for _, ws := range s.wordStores() {
		out = append(out, ws.Engine().Pending()...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Subscribe registers fn for data and status changes of any scope.
func (s *Session) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

type watchable interface {
	Subscribe(fn func()) func()
	WatchStatus(fn func(reconcile.Status)) func()
}

func (s *Session) watch(e watchable) {
	e.Subscribe(s.notify)
	e.WatchStatus(func(reconcile.Status) { s.notify() })
}

func (s *Session) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// refreshStale is the scheduled job.
func (s *Session) refreshStale() {
	n := 0
	if s.plans.Engine().RefreshIfStale() {
		n++
	}
	for _, ws := range s.wordStores() {
		if ws.Engine().RefreshIfStale() {
			n++
		}
	}
	if n > 0 {
		s.cfg.Logger.Printf("Refreshing %d stale scope(s)", n)
	}
}

// Close stops the scheduler and every store. Pending mutations stay in
// the cache for the next session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sched := s.scheduler
	stores := make([]*words.Store, 0, len(s.words))
	for _, ws := range s.words {
		stores = append(stores, ws)
	}
	s.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	for _, ws := range stores {
		ws.Close()
	}
	s.plans.Close()
	s.cfg.Logger.Println("Session closed")
}
