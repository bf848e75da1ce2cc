package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is a process-local Cache. It backs tests and is the fallback when
// the SQLite file is unavailable; nothing survives a restart.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memEntry
	meta    map[string]string
	pending map[string]map[string]PendingRecord // queue -> target -> record
	closed  bool
}

type memEntry struct {
	value     []byte
	updatedAt time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory returns an empty in-memory cache.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		now:     o.now,
		entries: make(map[string]memEntry),
		meta:    make(map[string]string),
		pending: make(map[string]map[string]PendingRecord),
	}
}

func (m *Memory) check() error {
	if m.closed {
		return ErrStorageUnavailable
	}
	return nil
}

func (m *Memory) ReadIDSet(_ context.Context, key string) (IDSet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return IDSet{}, false, err
	}

	e, ok := m.entries[key]
	if !ok {
		return IDSet{}, false, nil
	}
	ids := []string{}
	if err := json.Unmarshal(e.value, &ids); err != nil {
		return IDSet{}, false, fmt.Errorf("failed to decode id set %s: %w", key, err)
	}
	return IDSet{IDs: ids, Freshness: e.updatedAt}, true, nil
}

func (m *Memory) WriteIDSet(ctx context.Context, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return m.WriteSnapshot(ctx, key, ids)
}

func (m *Memory) ReadSnapshot(_ context.Context, key string, into any) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return time.Time{}, false, err
	}

	e, ok := m.entries[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if err := json.Unmarshal(e.value, into); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return e.updatedAt, true, nil
}

func (m *Memory) WriteSnapshot(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.entries[key] = memEntry{value: data, updatedAt: m.now()}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.entries, key)
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *Memory) GetMeta(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return "", false, err
	}
	v, ok := m.meta[key]
	return v, ok, nil
}

func (m *Memory) SetMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.meta[key] = value
	return nil
}

func (m *Memory) PutPending(_ context.Context, actor string, rec PendingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	q := m.pending[PendingKey(actor)]
	if q == nil {
		q = make(map[string]PendingRecord)
		m.pending[PendingKey(actor)] = q
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	q[rec.Target] = rec
	return nil
}

func (m *Memory) DeletePending(_ context.Context, actor, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.pending[PendingKey(actor)], target)
	return nil
}

func (m *Memory) ListPending(_ context.Context, actor string) ([]PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	q := m.pending[PendingKey(actor)]
	out := make([]PendingRecord, 0, len(q))
	for _, rec := range q {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Memory) DeletePendingScope(_ context.Context, actor, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	for target, rec := range m.pending[PendingKey(actor)] {
		if rec.Scope == scope {
			delete(m.pending[PendingKey(actor)], target)
		}
	}
	return nil
}

// Close marks the cache unusable. Later calls return ErrStorageUnavailable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
