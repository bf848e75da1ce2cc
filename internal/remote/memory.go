package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. It can model eventual consistency (List
// lags behind writes by a configurable delay) and inject failures, which
// makes it the backend for tests and for the "memory" backend of the CLI.
type Memory struct {
	mu        sync.Mutex
	now       func() time.Time
	listDelay time.Duration

	docs map[Path]*memRecord

	offline  bool
	failures []error
	rejects  map[Path]string
	gate     chan struct{}
	writes   []Write
	reads    int
}

type memRecord struct {
	doc       Doc
	deleted   bool
	writtenAt time.Time
	prev      *memRecord
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithListDelay makes writes invisible to List for d.
func WithListDelay(d time.Duration) MemoryOption {
	return func(m *Memory) { m.listDelay = d }
}

// WithMemoryClock overrides the clock used for list visibility.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:     time.Now,
		docs:    make(map[Path]*memRecord),
		rejects: make(map[Path]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetOffline makes every operation fail with ErrUnavailable while on.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// FailNextWrites makes the next len(errs) writes fail with the given errors.
func (m *Memory) FailNextWrites(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Reject makes every write at or below prefix fail with a RejectionError.
func (m *Memory) Reject(prefix Path, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejects[prefix] = reason
}

// ClearRejections removes all rejection rules.
func (m *Memory) ClearRejections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejects = make(map[Path]string)
}

// Hold blocks every write until the returned release func is called.
func (m *Memory) Hold() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gate == gate {
				m.gate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Writes returns the successful writes in the order they were applied.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// ResetWrites clears the write log.
func (m *Memory) ResetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}

// Reads returns the number of List and Get calls served.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Seed writes documents directly, bypassing failure injection and the
// write log. Seeded documents are immediately visible.
func (m *Memory) Seed(path Path, doc Doc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = &memRecord{doc: cloneDoc(doc)}
}

// List implements Store.
func (m *Memory) List(ctx context.Context, collection Path) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, fmt.Errorf("list %s: %w", collection, ErrUnavailable)
	}
	m.reads++

	now := m.now()
	var out []Document
	for path, rec := range m.docs {
		if path.Parent() != collection {
			continue
		}
		visible := rec
		for visible != nil && m.listDelay > 0 && now.Sub(visible.writtenAt) < m.listDelay {
			visible = visible.prev
		}
		if visible == nil || visible.deleted {
			continue
		}
		out = append(out, Document{Path: path, Data: cloneDoc(visible.doc)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Get implements Store. Reads by path are strongly consistent.
func (m *Memory) Get(ctx context.Context, path Path) (Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, fmt.Errorf("get %s: %w", path, ErrUnavailable)
	}
	m.reads++

	rec, ok := m.docs[path]
	if !ok || rec.deleted {
		return nil, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return cloneDoc(rec.doc), nil
}

// Upsert implements Store.
func (m *Memory) Upsert(ctx context.Context, path Path, doc Doc, merge bool) error {
	return m.write(ctx, Write{Op: OpUpsert, Path: path, Doc: doc, Merge: merge})
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, path Path) error {
	return m.write(ctx, Write{Op: OpDelete, Path: path})
}

func (m *Memory) write(ctx context.Context, w Write) error {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return fmt.Errorf("%s: %w", w, ErrUnavailable)
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return fmt.Errorf("%s: %w", w, err)
	}
	for prefix, reason := range m.rejects {
		if w.Path == prefix || strings.HasPrefix(string(w.Path), string(prefix)+"/") {
			return &RejectionError{Path: w.Path, Reason: reason}
		}
	}

	prev := m.docs[w.Path]
	rec := &memRecord{writtenAt: m.now(), prev: prev}
	switch w.Op {
	case OpUpsert:
		if w.Merge && prev != nil && !prev.deleted {
			rec.doc = cloneDoc(prev.doc)
			for k, v := range w.Doc {
				rec.doc[k] = v
			}
		} else {
			rec.doc = cloneDoc(w.Doc)
		}
	case OpDelete:
		if prev == nil || prev.deleted {
			m.writes = append(m.writes, Write{Op: w.Op, Path: w.Path})
			return nil
		}
		rec.deleted = true
	}

	// Only one superseded state is kept; List never lags more than a write.
	if prev != nil {
		prev.prev = nil
	}
	m.docs[w.Path] = rec
	m.writes = append(m.writes, Write{Op: w.Op, Path: w.Path, Doc: cloneDoc(w.Doc), Merge: w.Merge})
	return nil
}

func cloneDoc(d Doc) Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
