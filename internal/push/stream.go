package push

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// streamSink writes frames to one SSE response. Writes come from publishers
// on other goroutines, so access to the ResponseWriter is serialized and
// refused once the handler has returned.
type streamSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	closed  bool

	dead     chan struct{}
	deadOnce sync.Once
}

func newStreamSink(w http.ResponseWriter, timeout time.Duration) *streamSink {
	return &streamSink{
		w:       w,
		rc:      http.NewResponseController(w),
		timeout: timeout,
		dead:    make(chan struct{}),
	}
}

func (s *streamSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(frame)
}

func (s *streamSink) writeLocked(frame []byte) error {
	if s.closed {
		return ErrSinkClosed
	}
	if s.timeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return s.fail(fmt.Errorf("set write deadline: %w", err))
		}
		defer func() { _ = s.rc.SetWriteDeadline(time.Time{}) }()
	}
	if _, err := s.w.Write(frame); err != nil {
		return s.fail(err)
	}
	if err := s.rc.Flush(); err != nil {
		return s.fail(fmt.Errorf("flush: %w", err))
	}
	return nil
}

func (s *streamSink) fail(err error) error {
	s.closed = true
	s.deadOnce.Do(func() { close(s.dead) })
	return err
}

// close waits for an in-flight write and refuses any later ones.
func (s *streamSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// ServeHTTP holds an event stream open and registers it with the hub until
// the client disconnects, a write fails or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sink := newStreamSink(w, h.writeTimeout)

	// hold the sink so no broadcast can land before the opening comment
	sink.mu.Lock()
	sub, err := h.Subscribe(sink)
	if err != nil {
		sink.closed = true
		sink.mu.Unlock()
		h.log.Warn("push: stream rejected", "remote", r.RemoteAddr, "err", err)
		switch {
		case errors.Is(err, ErrRegistryFull):
			http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		case errors.Is(err, ErrHubClosed):
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	openErr := sink.writeLocked(Comment(openingComment))
	sink.mu.Unlock()

	defer func() {
		h.Unsubscribe(sub)
		sink.close()
	}()
	if openErr != nil {
		h.log.Info("push: stream failed on open", "sub", sub.ID, "err", openErr)
		return
	}
	h.log.Info("push: stream opened", "sub", sub.ID, "remote", r.RemoteAddr, "subscribers", h.reg.Len())

	var beat <-chan time.Time
	if h.heartbeat > 0 {
		t := time.NewTicker(h.heartbeat)
		defer t.Stop()
		beat = t.C
	}

	reason := "client gone"
loop:
	for {
		select {
		case <-r.Context().Done():
			break loop
		case <-h.done:
			reason = "hub closed"
			break loop
		case <-sink.dead:
			reason = "write failed"
			break loop
		case <-beat:
			if err := sink.Write(Comment("keep-alive")); err != nil {
				reason = "heartbeat failed"
				break loop
			}
		}
	}
	h.log.Info("push: stream closed", "sub", sub.ID, "reason", reason, "open_for", time.Since(sub.Since).Round(time.Millisecond))
}
