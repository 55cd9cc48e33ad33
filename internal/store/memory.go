package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const changeBuffer = 64

// Memory is a process-local Store.
type Memory struct {
	mu        sync.Mutex
	count     int64
	nextEvent int64
	nextNote  int64
	events    []Event
	maxEvents int
	notes     []Note // oldest first
	listeners map[chan Change]struct{}
	now       func() time.Time
}

// NewMemory returns an empty store. maxEvents > 0 keeps only that many of
// the newest log entries.
func NewMemory(maxEvents int) *Memory {
	return &Memory{
		nextEvent: 1,
		nextNote:  1,
		maxEvents: maxEvents,
		listeners: make(map[chan Change]struct{}),
		now:       time.Now,
	}
}

func (m *Memory) Increment(ctx context.Context, describe func(int64) string) (int64, Event, error) {
	if err := ctx.Err(); err != nil {
		return 0, Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	ev := Event{ID: m.nextEvent, Text: describe(m.count), CreatedAt: m.now()}
	m.nextEvent++
	m.events = append(m.events, ev)
	if m.maxEvents > 0 && len(m.events) > m.maxEvents {
		m.events = append([]Event(nil), m.events[len(m.events)-m.maxEvents:]...)
	}
	return m.count, ev, nil
}

func (m *Memory) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, nil
}

func (m *Memory) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.events
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	return append([]Event(nil), src...), nil
}

func (m *Memory) AddNote(ctx context.Context, author, text string) (Note, error) {
	if err := ctx.Err(); err != nil {
		return Note{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := Note{ID: m.nextNote, Author: author, Text: text, CreatedAt: m.now()}
	m.nextNote++
	m.notes = append(m.notes, n)
	m.notifyLocked(Change{Kind: NoteAdded, Note: n})
	return n, nil
}

func (m *Memory) GetNote(ctx context.Context, id int64) (Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.ID == id {
			return n, nil
		}
	}
	return Note{}, fmt.Errorf("note %d: %w", id, ErrNotFound)
}

func (m *Memory) DeleteNote(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notes {
		if n.ID == id {
			m.notes = append(m.notes[:i], m.notes[i+1:]...)
			m.notifyLocked(Change{Kind: NoteRemoved, Note: Note{ID: id}})
			return nil
		}
	}
	return fmt.Errorf("note %d: %w", id, ErrNotFound)
}

func (m *Memory) ListNotes(ctx context.Context, limit int) ([]Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Note, 0, len(m.notes))
	for i := len(m.notes) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.notes[i])
	}
	return out, nil
}

func (m *Memory) Changes(ctx context.Context) <-chan Change {
	ch := make(chan Change, changeBuffer)
	m.mu.Lock()
	m.listeners[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.listeners, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

// notifyLocked never blocks a writer on a slow listener; a full listener
// misses the change.
func (m *Memory) notifyLocked(c Change) {
	for ch := range m.listeners {
		select {
		case ch <- c:
		default:
		}
	}
}
