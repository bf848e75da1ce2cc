package words

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// DefaultPoolSize is the working-set size of a study session.
const DefaultPoolSize = 100

// Pool is the bounded working set of words still to study. Completing a
// word removes it; once fewer than half the slots are filled the pool is
// topped up from the candidates.
type Pool struct {
	mu          sync.Mutex
	size        int
	ids         []string
	candidates  func() []string
	isCompleted func(id string) bool
	rng         *rand.Rand
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithSeed makes shuffling deterministic.
func WithSeed(seed uint64) PoolOption {
	return func(p *Pool) { p.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// NewPool creates a pool and fills it. candidates lists every word of the
// plan; isCompleted reports the current completion state of a word.
func NewPool(size int, candidates func() []string, isCompleted func(string) bool, opts ...PoolOption) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{
		size:        size,
		candidates:  candidates,
		isCompleted: isCompleted,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.mu.Lock()
	p.refillLocked()
	p.mu.Unlock()
	return p
}

// IDs returns the pooled ids in study order.
func (p *Pool) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.ids)
}

// Len returns the number of pooled ids.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// Size returns the configured capacity.
func (p *Pool) Size() int { return p.size }

// Contains reports whether id is pooled.
func (p *Pool) Contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.ids, id)
}

// Remove takes a completed word out of the pool and refills when the pool
// dropped below half its size.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.Index(p.ids, id); i >= 0 {
		p.ids = slices.Delete(p.ids, i, i+1)
	}
	if len(p.ids) < p.size/2 {
		p.refillLocked()
	}
}

// Return puts an uncompleted word back at the end of the pool.
func (p *Pool) Return(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.ids, id) {
		p.ids = append(p.ids, id)
	}
}

// Refill tops the pool up to its size.
func (p *Pool) Refill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refillLocked()
}

func (p *Pool) refillLocked() {
	need := p.size - len(p.ids)
	if need <= 0 {
		return
	}

	pooled := make(map[string]bool, len(p.ids))
	for _, id := range p.ids {
		pooled[id] = true
	}
	var fresh []string
	for _, id := range p.candidates() {
		if pooled[id] || p.isCompleted(id) {
			continue
		}
		pooled[id] = true
		fresh = append(fresh, id)
	}

	p.rng.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	if len(fresh) > need {
		fresh = fresh[:need]
	}
	p.ids = append(p.ids, fresh...)
}
