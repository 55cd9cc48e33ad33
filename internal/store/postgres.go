package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jsherman999/fixihub/internal/db"
)

// NotifyChannel is the Postgres channel timeline mutations are announced on.
const NotifyChannel = "fixihub_notes"

const relistenDelay = 2 * time.Second

// Postgres is a Store backed by pgxpool. Note mutations are announced with
// pg_notify inside the writing transaction, so any process sharing the
// database sees them through Changes.
type Postgres struct {
	db  *db.DB
	log *slog.Logger
}

func NewPostgres(d *db.DB, log *slog.Logger) *Postgres {
	return &Postgres{db: d, log: log}
}

// notification is the pg_notify payload. It carries only the id so it stays
// far below the payload size limit whatever the note length.
type notification struct {
	Kind ChangeKind `json:"kind"`
	ID   int64      `json:"id"`
}

func (s *Postgres) Increment(ctx context.Context, describe func(int64) string) (int64, Event, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return 0, Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var count int64
	if err := tx.QueryRow(ctx, `UPDATE counter SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&count); err != nil {
		return 0, Event{}, fmt.Errorf("increment counter: %w", err)
	}
	var ev Event
	err = tx.QueryRow(ctx, `
INSERT INTO counter_events(text) VALUES ($1)
RETURNING id, text, created_at;
`, describe(count)).Scan(&ev.ID, &ev.Text, &ev.CreatedAt)
	if err != nil {
		return 0, Event{}, fmt.Errorf("insert counter_event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, Event{}, fmt.Errorf("commit increment: %w", err)
	}
	return count, ev, nil
}

func (s *Postgres) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.Pool.QueryRow(ctx, `SELECT value FROM counter WHERE id = 1`).Scan(&count); err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return count, nil
}

func (s *Postgres) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.Pool.Query(ctx, `
SELECT id, text, created_at FROM (
  SELECT id, text, created_at FROM counter_events ORDER BY id DESC LIMIT $1
) recent
ORDER BY id ASC
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list counter_events: %w", err)
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Text, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Postgres) AddNote(ctx context.Context, author, text string) (Note, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return Note{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var n Note
	err = tx.QueryRow(ctx, `
INSERT INTO notes(author, text) VALUES ($1, $2)
RETURNING id, author, text, created_at;
`, author, text).Scan(&n.ID, &n.Author, &n.Text, &n.CreatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	if err := notify(ctx, tx, NoteAdded, n.ID); err != nil {
		return Note{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Note{}, fmt.Errorf("commit note: %w", err)
	}
	return n, nil
}

func (s *Postgres) GetNote(ctx context.Context, id int64) (Note, error) {
	var n Note
	err := s.db.Pool.QueryRow(ctx, `SELECT id, author, text, created_at FROM notes WHERE id = $1`, id).
		Scan(&n.ID, &n.Author, &n.Text, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Note{}, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

func (s *Postgres) DeleteNote(ctx context.Context, id int64) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	if err := notify(ctx, tx, NoteRemoved, id); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (s *Postgres) ListNotes(ctx context.Context, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.Pool.Query(ctx, `SELECT id, author, text, created_at FROM notes ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Author, &n.Text, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func notify(ctx context.Context, tx pgx.Tx, kind ChangeKind, id int64) error {
	payload, err := json.Marshal(notification{Kind: kind, ID: id})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", kind, err)
	}
	return nil
}

// Changes holds one pooled connection on LISTEN and re-establishes it after
// connection errors until ctx is done.
func (s *Postgres) Changes(ctx context.Context) <-chan Change {
	out := make(chan Change, changeBuffer)
	go func() {
		defer close(out)
		for {
			err := s.listen(ctx, out)
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("store: listen interrupted, retrying", "channel", NotifyChannel, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(relistenDelay):
			}
		}
	}()
	return out
}

func (s *Postgres) listen(ctx context.Context, out chan<- Change) error {
	conn, err := s.db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	// the connection goes back to the pool, so stop listening on it first
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.Exec(unlistenCtx, "UNLISTEN "+NotifyChannel)
	}()
	s.log.Info("store: listening for timeline changes", "channel", NotifyChannel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var msg notification
		if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil {
			s.log.Warn("store: bad notification payload", "payload", n.Payload, "err", err)
			continue
		}
		c := Change{Kind: msg.Kind, Note: Note{ID: msg.ID}}
		if msg.Kind == NoteAdded {
			note, err := s.GetNote(ctx, msg.ID)
			if errors.Is(err, ErrNotFound) {
				// removed again before we got to it
				continue
			}
			if err != nil {
				return err
			}
			c.Note = note
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
