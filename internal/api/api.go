package api

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jsherman999/fixihub/internal/config"
	"github.com/jsherman999/fixihub/internal/counter"
	"github.com/jsherman999/fixihub/internal/exporter"
	"github.com/jsherman999/fixihub/internal/metrics"
	"github.com/jsherman999/fixihub/internal/push"
	"github.com/jsherman999/fixihub/internal/store"
	"github.com/jsherman999/fixihub/internal/views"
	"github.com/jsherman999/fixihub/internal/webui"
)

const (
	maxAuthorLen  = 40
	defaultAuthor = "anonymous"
)

type API struct {
	cfg         *config.Config
	log         *slog.Logger
	store       store.Store
	counter     *counter.Service
	counterHub  *push.Hub
	timelineHub *push.Hub
}

func New(cfg *config.Config, log *slog.Logger, st store.Store, counterHub, timelineHub *push.Hub) *API {
	return &API{
		cfg:         cfg,
		log:         log,
		store:       st,
		counter:     counter.New(st, counterHub, log),
		counterHub:  counterHub,
		timelineHub: timelineHub,
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/", a.page)

	// GET /counter renders the counter block for fixi requests, the page otherwise.
	r.Get("/counter", func(w http.ResponseWriter, r *http.Request) {
		if !isFixi(r) {
			a.page(w, r)
			return
		}
		count, err := a.store.Count(r.Context())
		if err != nil {
			a.serverError(w, "read counter", err)
			return
		}
		body, err := views.Counter(count)
		a.fragment(w, body, err)
	})

	r.Post("/counter", func(w http.ResponseWriter, r *http.Request) {
		count, _, err := a.counter.Increment(r.Context())
		switch {
		case errors.Is(err, counter.ErrNotBroadcast):
			// the click is recorded; only the broadcast failed
			a.log.Error("api: increment broadcast failed", "count", count, "err", err)
		case err != nil:
			a.serverError(w, "increment", err)
			return
		}
		if isFixi(r) {
			body, err := views.Counter(count)
			a.fragment(w, body, err)
			return
		}
		// no-JS fallback: post/redirect/get
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	// Event streams. Each hub is its own http.Handler.
	r.Get("/events", a.counterHub.ServeHTTP)
	r.Get("/timeline/events", a.timelineHub.ServeHTTP)

	r.Get("/timeline", func(w http.ResponseWriter, r *http.Request) {
		notes, err := a.store.ListNotes(r.Context(), a.cfg.Timeline.PageSize)
		if err != nil {
			a.serverError(w, "list notes", err)
			return
		}
		body, err := views.Timeline(notes)
		a.fragment(w, body, err)
	})

	// POST /notes author=...&text=...
	// The note itself reaches every page, this one included, through the
	// timeline stream; the response only resets the form.
	r.Post("/notes", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		author := strings.TrimSpace(r.PostForm.Get("author"))
		text := strings.TrimSpace(r.PostForm.Get("text"))
		if author == "" {
			author = defaultAuthor
		}
		switch {
		case text == "":
			http.Error(w, "text required", http.StatusBadRequest)
			return
		case utf8.RuneCountInString(text) > a.cfg.Timeline.MaxNoteLen:
			http.Error(w, "text too long", http.StatusBadRequest)
			return
		case utf8.RuneCountInString(author) > maxAuthorLen:
			http.Error(w, "author too long", http.StatusBadRequest)
			return
		}
		n, err := a.store.AddNote(r.Context(), author, text)
		if err != nil {
			a.serverError(w, "add note", err)
			return
		}
		a.log.Info("api: note posted", "note", n.ID, "author", n.Author)
		if isFixi(r) {
			body, err := views.NoteForm(a.cfg.Timeline.MaxNoteLen)
			a.fragment(w, body, err)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	r.Post("/notes/{id}/delete", a.deleteNote)
	r.Delete("/notes/{id}", a.deleteNote)

	// GET /export?format=json|csv&limit=N
	r.Get("/export", func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "json"
		}
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil {
				limit = v
			}
		}

		var (
			b   []byte
			ct  string
			err error
		)
		switch format {
		case "json":
			b, ct, err = exporter.ExportJSON(r.Context(), a.store, limit)
		case "csv":
			b, ct, err = exporter.ExportCSV(r.Context(), a.store, limit)
		default:
			http.Error(w, "unknown format", http.StatusBadRequest)
			return
		}
		if err != nil {
			a.serverError(w, "export", err)
			return
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	})

	r.Handle("/metrics", metrics.Handler(a.counterHub, a.timelineHub))

	ui, uiErr := webui.Handler(a.cfg.Static.Dir)
	if uiErr == nil {
		r.Handle("/static/*", http.StripPrefix("/static", ui))
	} else {
		a.log.Warn("api: static assets disabled", "dir", a.cfg.Static.Dir, "err", uiErr)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.log.Info("api: unmatched", "method", r.Method, "path", r.URL.RequestURI())
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	return r
}

func (a *API) page(w http.ResponseWriter, r *http.Request) {
	count, events, err := a.counter.State(r.Context(), a.cfg.Events.MaxLog)
	if err != nil {
		a.serverError(w, "load counter", err)
		return
	}
	notes, err := a.store.ListNotes(r.Context(), a.cfg.Timeline.PageSize)
	if err != nil {
		a.serverError(w, "list notes", err)
		return
	}
	var buf bytes.Buffer
	err = views.RenderPage(&buf, views.Page{
		Count:      count,
		Events:     events,
		Notes:      notes,
		MaxNoteLen: a.cfg.Timeline.MaxNoteLen,
	})
	if err != nil {
		a.serverError(w, "render page", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (a *API) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	if err := a.store.DeleteNote(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "note not found", http.StatusNotFound)
			return
		}
		a.serverError(w, "delete note", err)
		return
	}
	a.log.Info("api: note removed", "note", id)
	if isFixi(r) || r.Method == http.MethodDelete {
		// an empty outerHTML swap removes the note from the requesting page
		a.fragment(w, "", nil)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
