package views

import (
	"strconv"
	"time"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func clock(t time.Time) string { return t.Format("15:04:05") }

const templates = `
{{define "layout"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="/static/app.css">
<script src="/static/fixi/fixi.js"></script>
<script src="/static/fixi/extensions.js"></script>
</head>
<body>
<h1>{{.Title}}</h1>
<p>The button POSTs to the server, which answers with an HTML fragment swapped into <code>#counter</code>.
Every increment is also pushed to all open pages over Server-Sent Events.</p>
{{template "counter" .Count}}
{{template "eventlog" .}}
{{template "timeline" .}}
</body>
</html>
{{end}}

{{define "counter"}}<div id="counter" class="counter">
<form fx-action="/counter" fx-method="post" fx-target="#counter" fx-swap="outerHTML" action="/counter" method="post">
<span>Count: {{.}}</span>
<button type="submit">Increment</button>
</form>
</div>{{end}}

{{define "eventlog"}}<section class="log">
<div ext-fx-sse-autostart="/events" data-target="#event-log" data-swap="beforeend"></div>
<h2>Log</h2>
<div id="event-log">
{{range .Events}}{{template "event" .}}
{{end}}</div>
</section>{{end}}

{{define "event"}}<div>{{trusted .Text}}</div>{{end}}

{{define "timeline"}}<section class="timeline">
<div ext-fx-sse-autostart="/timeline/events" data-target="#timeline" data-swap="afterbegin"></div>
<h2>Timeline</h2>
{{template "note-form" .MaxNoteLen}}
{{template "timeline-list" .Notes}}
</section>{{end}}

{{define "timeline-list"}}<div id="timeline">
{{range .}}{{template "note" .}}
{{end}}</div>{{end}}

{{define "note-form"}}<form id="note-form" fx-action="/notes" fx-method="post" fx-target="#note-form" fx-swap="outerHTML" action="/notes" method="post">
<input name="author" placeholder="name" maxlength="40">
<input name="text" placeholder="say something" required maxlength="{{.}}">
<button type="submit">Post</button>
</form>{{end}}

{{define "note"}}<article id="{{noteID .ID}}" class="note">
<header><b>{{.Author}}</b> <time datetime="{{.CreatedAt.UTC.Format "2006-01-02T15:04:05Z07:00"}}">{{clock .CreatedAt}}</time></header>
<p>{{.Text}}</p>
<form fx-action="/notes/{{.ID}}/delete" fx-method="post" fx-target="#{{noteID .ID}}" fx-swap="outerHTML" action="/notes/{{.ID}}/delete" method="post">
<button type="submit">Remove</button>
</form>
</article>{{end}}
`
