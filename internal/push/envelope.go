package push

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// EventName is the SSE event type every envelope frame carries.
const EventName = "fixi"

// Envelope is one update instruction for connected clients. The hub never
// looks inside it.
type Envelope struct {
	Target string `json:"target"`
	Swap   string `json:"swap"`
	Text   string `json:"text"`
}

// Encode renders e as a complete SSE frame, terminator included. Fields
// must be valid UTF-8; json would otherwise rewrite them with U+FFFD.
func Encode(e Envelope) ([]byte, error) {
	for _, f := range [...]struct{ name, val string }{
		{"target", e.Target}, {"swap", e.Swap}, {"text", e.Text},
	} {
		if !utf8.ValidString(f.val) {
			return nil, fmt.Errorf("encode envelope: %s is not valid UTF-8", f.name)
		}
	}
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	// markup fragments stay readable on the wire
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	data := bytes.TrimRight(payload.Bytes(), "\n")
	if bytes.ContainsAny(data, "\r\n") {
		return nil, fmt.Errorf("encode envelope: payload for %q is not single-line", e.Target)
	}

	buf := make([]byte, 0, len(data)+len(EventName)+16)
	buf = append(buf, "event: "...)
	buf = append(buf, EventName...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	return buf, nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Comment renders a comment-only frame. Line breaks in text are flattened
// so the result is always exactly one frame.
func Comment(text string) []byte {
	return []byte(": " + lineBreaks.Replace(text) + "\n\n")
}
