package push_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jsherman999/fixihub/internal/push"
)

// recorder is a sink that keeps every frame it receives.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (r *recorder) Write(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("connection reset")
	}
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return nil
}

func (r *recorder) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *recorder) envelopes(t *testing.T) []push.Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []push.Envelope
	for _, b := range r.frames {
		e, err := push.Decode(b)
		if err != nil {
			t.Fatalf("decode frame %q: %v", b, err)
		}
		out = append(out, e)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func subscribe(t *testing.T, h *push.Hub, s push.Sink) *push.Subscription {
	t.Helper()
	sub, err := h.Subscribe(s)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return sub
}

func publish(t *testing.T, h *push.Hub, e push.Envelope) {
	t.Helper()
	if err := h.Publish(e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
