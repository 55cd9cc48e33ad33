// Package store holds the producer-side state: the counter, its event log
// and the timeline notes. The daemon picks the in-memory implementation when
// no database is configured and Postgres otherwise.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

type Event struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Note struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type ChangeKind string

const (
	NoteAdded   ChangeKind = "note_added"
	NoteRemoved ChangeKind = "note_removed"
)

// Change reports a timeline mutation. For NoteRemoved only Note.ID is set.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Note Note       `json:"note"`
}

type Store interface {
	// Increment bumps the counter and appends describe(newValue) to the
	// event log in one step.
	Increment(ctx context.Context, describe func(count int64) string) (int64, Event, error)
	Count(ctx context.Context) (int64, error)
	// ListEvents returns up to limit of the most recent events, oldest first.
	// limit <= 0 returns all of them.
	ListEvents(ctx context.Context, limit int) ([]Event, error)

	AddNote(ctx context.Context, author, text string) (Note, error)
	GetNote(ctx context.Context, id int64) (Note, error)
	DeleteNote(ctx context.Context, id int64) error
	// ListNotes returns up to limit notes, newest first.
	ListNotes(ctx context.Context, limit int) ([]Note, error)

	// Changes streams timeline mutations until ctx is done, then closes the
	// channel. Mutations made before the call are not replayed.
	Changes(ctx context.Context) <-chan Change
}
