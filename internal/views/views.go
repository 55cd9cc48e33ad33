// Package views renders the page and the HTML fragments pushed to clients.
package views

import (
	"html/template"
	"io"
	"strings"

	"github.com/jsherman999/fixihub/internal/store"
)

// DOM targets and swap strategies shared by the page and the producers.
const (
	CounterTarget  = "#counter"
	EventLogTarget = "#event-log"
	TimelineTarget = "#timeline"

	SwapOuter      = "outerHTML"
	SwapBeforeEnd  = "beforeend"
	SwapAfterBegin = "afterbegin"
)

const defaultTitle = "Hypermedia Counter"

// NoteTarget addresses one rendered note.
func NoteTarget(id int64) string {
	return "#" + noteID(id)
}

func noteID(id int64) string {
	return "note-" + itoa(id)
}

var tmpl = template.Must(template.New("views").Funcs(template.FuncMap{
	"noteID": noteID,
	// event text is produced by the counter service and carries markup
	"trusted": func(s string) template.HTML { return template.HTML(s) },
	"clock":   clock,
}).Parse(templates))

// Page is everything the full-page render needs.
type Page struct {
	Title      string
	Count      int64
	Events     []store.Event
	Notes      []store.Note
	MaxNoteLen int
}

func RenderPage(w io.Writer, p Page) error {
	if p.Title == "" {
		p.Title = defaultTitle
	}
	return tmpl.ExecuteTemplate(w, "layout", p)
}

func Counter(count int64) (string, error) {
	return render("counter", count)
}

func EventLine(ev store.Event) (string, error) {
	return render("event", ev)
}

func Note(n store.Note) (string, error) {
	return render("note", n)
}

// Timeline renders the whole note list, newest first as given.
func Timeline(notes []store.Note) (string, error) {
	return render("timeline-list", notes)
}

func NoteForm(maxLen int) (string, error) {
	return render("note-form", maxLen)
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
