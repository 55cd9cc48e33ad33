package api_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jsherman999/fixihub/internal/api"
	"github.com/jsherman999/fixihub/internal/config"
	"github.com/jsherman999/fixihub/internal/feed"
	"github.com/jsherman999/fixihub/internal/push"
	"github.com/jsherman999/fixihub/internal/store"
)

type harness struct {
	url         string
	st          store.Store
	counterHub  *push.Hub
	timelineHub *push.Hub
}

// noRedirect lets tests observe the 303 of the no-JS fallback.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("PORT", "")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory(0)
	counterHub := push.NewHub("counter", push.WithLogger(log))
	timelineHub := push.NewHub("timeline", push.WithLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	done := feed.New(st, timelineHub, log).Start(ctx)

	srv := httptest.NewServer(api.New(cfg, log, st, counterHub, timelineHub).Router())
	t.Cleanup(func() {
		cancel()
		<-done
		counterHub.Close()
		timelineHub.Close()
		srv.Close()
	})
	return &harness{url: srv.URL, st: st, counterHub: counterHub, timelineHub: timelineHub}
}

func (h *harness) do(t *testing.T, method, path string, form url.Values, fixi bool) (*http.Response, string) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, h.url+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if fixi {
		req.Header.Set("FX-Request", "true")
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

// stream opens an event stream and consumes the opening comment.
func (h *harness) stream(t *testing.T, path string) *push.Parser {
	t.Helper()
	resp, err := http.Get(h.url + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	p := push.NewParser(resp.Body)
	if f, err := p.Next(); err != nil || len(f.Comments) == 0 {
		t.Fatalf("opening frame: %+v, %v", f, err)
	}
	return p
}

func nextEnvelope(t *testing.T, p *push.Parser) push.Envelope {
	t.Helper()
	type result struct {
		e   push.Envelope
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := p.Next()
		if err != nil {
			ch <- result{err: err}
			return
		}
		e, err := f.Envelope()
		ch <- result{e, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("next envelope: %v", r.err)
		}
		return r.e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return push.Envelope{}
}

func TestIndex_RendersPage(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, http.MethodGet, "/", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type: got %q", ct)
	}
	for _, want := range []string{"<html", "Count: 0", `id="event-log"`, `id="timeline"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestCounter_FixiIncrementReturnsFragmentAndBroadcasts(t *testing.T) {
	h := newHarness(t)
	events := h.stream(t, "/events")

	resp, body := h.do(t, http.MethodPost, "/counter", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if strings.Contains(body, "<html") || !strings.Contains(body, "Count: 1") {
		t.Errorf("fragment: got %q", body)
	}

	e := nextEnvelope(t, events)
	if e.Target != "#event-log" || e.Swap != "beforeend" || !strings.Contains(e.Text, "Incremented to <b>1</b>") {
		t.Errorf("broadcast: got %+v", e)
	}
}

func TestCounter_PlainPostRedirects(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/counter", nil, false)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Errorf("got %d Location=%q, want 303 /", resp.StatusCode, resp.Header.Get("Location"))
	}
	if _, body := h.do(t, http.MethodGet, "/counter", nil, false); !strings.Contains(body, "<html") || !strings.Contains(body, "Count: 1") {
		t.Errorf("GET /counter: want full page with count 1")
	}
}

func TestCounter_GetFragmentAcceptsOne(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodGet, h.url+"/counter", nil)
	req.Header.Set("fx-request", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(b), "<html") || !strings.Contains(string(b), `id="counter"`) {
		t.Errorf("fragment: got %q", b)
	}
}

func TestCounter_BroadcastReachesOtherStreamsOnly(t *testing.T) {
	h := newHarness(t)
	counterStream := h.stream(t, "/events")
	h.stream(t, "/timeline/events")

	h.do(t, http.MethodPost, "/counter", nil, true)
	nextEnvelope(t, counterStream)

	st := h.timelineHub.Stats()
	if st.Subscribers != 1 {
		t.Errorf("timeline subscribers: got %d, want 1", st.Subscribers)
	}
	if st.Published != 0 {
		t.Errorf("timeline hub published %d frames for a counter click", st.Published)
	}
}

func TestNotes_PostAndDeleteStreamToTimeline(t *testing.T) {
	h := newHarness(t)
	timeline := h.stream(t, "/timeline/events")

	resp, body := h.do(t, http.MethodPost, "/notes", url.Values{"author": {"ana"}, "text": {"<b>bold</b> claim"}}, true)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `id="note-form"`) {
		t.Fatalf("post: %d %q", resp.StatusCode, body)
	}

	added := nextEnvelope(t, timeline)
	if added.Target != "#timeline" || added.Swap != "afterbegin" {
		t.Errorf("added addressing: %+v", added)
	}
	if strings.Contains(added.Text, "<b>bold</b>") || !strings.Contains(added.Text, "&lt;b&gt;bold") {
		t.Errorf("note text not escaped: %q", added.Text)
	}

	resp, body = h.do(t, http.MethodPost, "/notes/1/delete", nil, true)
	if resp.StatusCode != http.StatusOK || body != "" {
		t.Fatalf("delete: %d %q", resp.StatusCode, body)
	}
	removed := nextEnvelope(t, timeline)
	if removed != (push.Envelope{Target: "#note-1", Swap: "outerHTML", Text: ""}) {
		t.Errorf("removed: got %+v", removed)
	}

	resp, _ = h.do(t, http.MethodDelete, "/notes/1", nil, false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", resp.StatusCode)
	}
}

func TestNotes_Validation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		form url.Values
	}{
		{"empty text", url.Values{"text": {"   "}}},
		{"text too long", url.Values{"text": {strings.Repeat("x", 501)}}},
		{"author too long", url.Values{"author": {strings.Repeat("a", 41)}, "text": {"hi"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := h.do(t, http.MethodPost, "/notes", tc.form, true)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", resp.StatusCode)
			}
		})
	}
	if resp, _ := h.do(t, http.MethodPost, "/notes/abc/delete", nil, true); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want 400", resp.StatusCode)
	}
}

func TestNotes_PlainPostDefaultsAuthorAndRedirects(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/notes", url.Values{"text": {"hello"}}, false)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", resp.StatusCode)
	}
	notes, _ := h.st.ListNotes(context.Background(), 0)
	if len(notes) != 1 || notes[0].Author != "anonymous" {
		t.Errorf("notes: got %+v", notes)
	}
	_, body := h.do(t, http.MethodGet, "/timeline", nil, true)
	if !strings.Contains(body, "hello") || !strings.Contains(body, `id="timeline"`) {
		t.Errorf("timeline fragment: %q", body)
	}
}

func TestAncillaryEndpoints(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/counter", nil, true)

	cases := []struct {
		path   string
		status int
		want   string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/metrics", http.StatusOK, `fixihub_published_total{hub="counter"} 1`},
		{"/static/fixi/extensions.js", http.StatusOK, "EventSource"},
		{"/export?format=csv", http.StatusOK, "kind,id,author,text,created_at"},
		{"/export", http.StatusOK, `"count": 1`},
		{"/export?format=xml", http.StatusBadRequest, "unknown format"},
		{"/nope", http.StatusNotFound, "Not Found"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, body := h.do(t, http.MethodGet, tc.path, nil, false)
			if resp.StatusCode != tc.status {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tc.status)
			}
			if !strings.Contains(body, tc.want) {
				t.Errorf("body missing %q: %q", tc.want, body)
			}
		})
	}
}
