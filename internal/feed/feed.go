// Package feed turns timeline changes into pushes on the timeline hub. It
// runs as its own goroutine, independent of the request handlers that cause
// the changes.
package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jsherman999/fixihub/internal/push"
	"github.com/jsherman999/fixihub/internal/store"
	"github.com/jsherman999/fixihub/internal/views"
)

type Listener struct {
	st  store.Store
	hub *push.Hub
	log *slog.Logger
}

func New(st store.Store, hub *push.Hub, log *slog.Logger) *Listener {
	return &Listener{st: st, hub: hub, log: log}
}

// Start subscribes to store changes before returning and publishes them in
// the background. The returned channel is closed once ctx is done and the
// change stream has drained.
func (l *Listener) Start(ctx context.Context) <-chan struct{} {
	changes := l.st.Changes(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.consume(changes)
	}()
	return done
}

// Run blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) {
	<-l.Start(ctx)
}

func (l *Listener) consume(changes <-chan store.Change) {
	l.log.Info("feed: listening for timeline changes", "hub", l.hub.Name())
	for c := range changes {
		env, err := EnvelopeFor(c)
		if err != nil {
			l.log.Error("feed: cannot render change", "kind", c.Kind, "note", c.Note.ID, "err", err)
			continue
		}
		if err := l.hub.Publish(env); err != nil {
			l.log.Error("feed: publish failed", "kind", c.Kind, "note", c.Note.ID, "err", err)
		}
	}
	l.log.Info("feed: stopped")
}

// EnvelopeFor maps a change to its client update. A removal is an empty
// outerHTML swap on the note itself.
func EnvelopeFor(c store.Change) (push.Envelope, error) {
	switch c.Kind {
	case store.NoteAdded:
		text, err := views.Note(c.Note)
		if err != nil {
			return push.Envelope{}, err
		}
		return push.Envelope{Target: views.TimelineTarget, Swap: views.SwapAfterBegin, Text: text}, nil
	case store.NoteRemoved:
		return push.Envelope{Target: views.NoteTarget(c.Note.ID), Swap: views.SwapOuter, Text: ""}, nil
	default:
		return push.Envelope{}, fmt.Errorf("unknown change kind %q", c.Kind)
	}
}
