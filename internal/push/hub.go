package push

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("push: hub closed")

const (
	// DefaultWriteTimeout bounds a single frame write to one stream.
	DefaultWriteTimeout = 10 * time.Second

	openingComment = "connected"
)

// Hub broadcasts envelopes to every registered sink.
type Hub struct {
	name string
	log  *slog.Logger
	reg  *Registry

	writeTimeout time.Duration
	heartbeat    time.Duration

	// serializes publish passes so each sink sees publish order
	pubMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMaxSubscribers caps the registry. n <= 0 keeps it unbounded.
func WithMaxSubscribers(n int) Option {
	return func(h *Hub) { h.reg = NewRegistry(n) }
}

// WithWriteTimeout sets the per-write deadline applied by ServeHTTP.
// Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) { h.writeTimeout = d }
}

// WithHeartbeat makes ServeHTTP send a comment frame every d. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Hub) { h.heartbeat = d }
}

func NewHub(name string, opts ...Option) *Hub {
	h := &Hub{
		name:         name,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		reg:          NewRegistry(0),
		writeTimeout: DefaultWriteTimeout,
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.log = h.log.With("hub", name)
	return h
}

func (h *Hub) Name() string { return h.name }

// Registry exposes the hub's subscriber set.
func (h *Hub) Registry() *Registry { return h.reg }

// Subscribe registers s for every frame published from now on.
func (h *Hub) Subscribe(s Sink) (*Subscription, error) {
	select {
	case <-h.done:
		return nil, ErrHubClosed
	default:
	}
	sub, err := h.reg.Register(s)
	if err != nil {
		return nil, err
	}
	h.log.Debug("push: subscribed", "sub", sub.ID, "subscribers", h.reg.Len())
	return sub, nil
}

// Unsubscribe is idempotent and safe to race with the publish failure path.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if h.reg.Unregister(sub) {
		h.log.Debug("push: unsubscribed", "sub", sub.ID, "subscribers", h.reg.Len())
	}
}

// Publish encodes e once and delivers it to every current subscriber.
// The only error is an encoding failure; delivery problems stay inside the hub.
func (h *Hub) Publish(e Envelope) error {
	frame, err := Encode(e)
	if err != nil {
		h.log.Error("push: refusing to publish", "target", e.Target, "err", err)
		return fmt.Errorf("publish to %s: %w", h.name, err)
	}
	h.log.Debug("push: broadcast", "target", e.Target, "swap", e.Swap, "bytes", len(frame))
	h.PublishFrame(frame)
	return nil
}

// PublishFrame delivers an already encoded frame.
func (h *Hub) PublishFrame(frame []byte) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.published.Add(1)
	for _, sub := range h.reg.Snapshot() {
		if err := sub.sink.Write(frame); err != nil {
			if h.reg.Unregister(sub) {
				h.dropped.Add(1)
				h.log.Info("push: dropped subscriber", "sub", sub.ID, "err", err)
			}
			continue
		}
		h.delivered.Add(1)
	}
}

// Done is closed once Close has been called.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Close unregisters every subscriber and wakes their stream handlers.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		n := len(h.reg.drain())
		h.log.Info("push: hub closed", "released", n)
	})
}

// Stats is a point-in-time view of hub counters.
type Stats struct {
	Subscribers int
	Published   uint64
	Delivered   uint64
	Dropped     uint64
}

func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers: h.reg.Len(),
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}
