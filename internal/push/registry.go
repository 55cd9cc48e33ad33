package push

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRegistryFull is returned by Register when a subscriber cap is set and
// already reached.
var ErrRegistryFull = errors.New("push: subscriber limit reached")

// Subscription is the handle for one registered sink.
type Subscription struct {
	ID    uuid.UUID
	Since time.Time

	sink Sink
}

// Registry is the set of sinks believed to be live.
type Registry struct {
	mu   sync.Mutex
	max  int
	subs map[*Subscription]struct{}
}

// NewRegistry returns an empty registry. max <= 0 means no limit.
func NewRegistry(max int) *Registry {
	return &Registry{max: max, subs: make(map[*Subscription]struct{})}
}

func (r *Registry) Register(s Sink) (*Subscription, error) {
	sub := &Subscription{ID: uuid.New(), Since: time.Now(), sink: s}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.subs) >= r.max {
		return nil, ErrRegistryFull
	}
	r.subs[sub] = struct{}{}
	return sub, nil
}

// Unregister removes sub and reports whether it was still registered.
// Calling it again, or with nil, is a no-op.
func (r *Registry) Unregister(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub]; !ok {
		return false
	}
	delete(r.subs, sub)
	return true
}

// Snapshot copies the current membership. The lock is released before the
// caller starts writing.
func (r *Registry) Snapshot() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, 0, len(r.subs))
	for sub := range r.subs {
		out = append(out, sub)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Contains reports whether sub is currently registered.
func (r *Registry) Contains(sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[sub]
	return ok
}

// drain empties the registry and returns what it held.
func (r *Registry) drain() []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscription, 0, len(r.subs))
	for sub := range r.subs {
		out = append(out, sub)
		delete(r.subs, sub)
	}
	return out
}
