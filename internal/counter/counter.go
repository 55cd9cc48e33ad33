// Package counter is the producer behind the counter button: it bumps the
// stored count and pushes the new event-log line to every open page.
package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsherman999/fixihub/internal/push"
	"github.com/jsherman999/fixihub/internal/store"
	"github.com/jsherman999/fixihub/internal/views"
)

// ErrNotBroadcast wraps failures that happen after the click was stored.
var ErrNotBroadcast = errors.New("counter: increment stored but not broadcast")

type Service struct {
	st  store.Store
	hub *push.Hub
	log *slog.Logger
	now func() time.Time
}

func New(st store.Store, hub *push.Hub, log *slog.Logger) *Service {
	return &Service{st: st, hub: hub, log: log, now: time.Now}
}

// Describe is the event-log text recorded for reaching count.
func Describe(count int64, at time.Time) string {
	return fmt.Sprintf("Incremented to <b>%d</b> @ %s", count, at.Format("3:04:05 PM"))
}

// Increment records one click and broadcasts it. When only the broadcast
// fails the count and event are still returned, with an error wrapping
// ErrNotBroadcast.
func (s *Service) Increment(ctx context.Context) (int64, store.Event, error) {
	count, ev, err := s.st.Increment(ctx, func(n int64) string { return Describe(n, s.now()) })
	if err != nil {
		return 0, store.Event{}, fmt.Errorf("increment: %w", err)
	}
	line, err := views.EventLine(ev)
	if err != nil {
		return count, ev, fmt.Errorf("%w: render event %d: %w", ErrNotBroadcast, ev.ID, err)
	}
	if err := s.hub.Publish(push.Envelope{Target: views.EventLogTarget, Swap: views.SwapBeforeEnd, Text: line}); err != nil {
		return count, ev, fmt.Errorf("%w: %w", ErrNotBroadcast, err)
	}
	s.log.Debug("counter: incremented", "count", count, "event", ev.ID)
	return count, ev, nil
}

// State is what a full page render shows.
func (s *Service) State(ctx context.Context, maxEvents int) (int64, []store.Event, error) {
	count, err := s.st.Count(ctx)
	if err != nil {
		return 0, nil, err
	}
	events, err := s.st.ListEvents(ctx, maxEvents)
	if err != nil {
		return 0, nil, err
	}
	return count, events, nil
}
