package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jsherman999/fixihub/internal/store"
)

type Export struct {
	Count  int64         `json:"count"`
	Events []store.Event `json:"events"`
	Notes  []store.Note  `json:"notes"`
}

func collect(ctx context.Context, st store.Store, limit int) (*Export, error) {
	count, err := st.Count(ctx)
	if err != nil {
		return nil, err
	}
	events, err := st.ListEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	notes, err := st.ListNotes(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &Export{Count: count, Events: events, Notes: notes}, nil
}

func ExportJSON(ctx context.Context, st store.Store, limit int) ([]byte, string, error) {
	ex, err := collect(ctx, st, limit)
	if err != nil {
		return nil, "", err
	}
	b, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return b, "application/json", nil
}

// ExportCSV writes events and notes as one table; the kind column tells
// them apart and author is empty for events.
func ExportCSV(ctx context.Context, st store.Store, limit int) ([]byte, string, error) {
	ex, err := collect(ctx, st, limit)
	if err != nil {
		return nil, "", err
	}
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"kind", "id", "author", "text", "created_at"})
	for _, e := range ex.Events {
		_ = w.Write([]string{"event", strconv.FormatInt(e.ID, 10), "", e.Text, e.CreatedAt.Format(time.RFC3339)})
	}
	for _, n := range ex.Notes {
		_ = w.Write([]string{"note", strconv.FormatInt(n.ID, 10), n.Author, n.Text, n.CreatedAt.Format(time.RFC3339)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "text/csv", nil
}
