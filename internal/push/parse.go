package push

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Frame is one dispatched block of an event stream.
type Frame struct {
	Event    string
	Data     string
	Comments []string
}

// Envelope decodes the frame's data line as an Envelope.
func (f Frame) Envelope() (Envelope, error) {
	if f.Event != EventName {
		return Envelope{}, fmt.Errorf("frame event %q is not %q", f.Event, EventName)
	}
	var e Envelope
	if err := json.Unmarshal([]byte(f.Data), &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// Parser reads frames off an event stream. Lines may end in LF, CRLF or a
// bare CR. Unlike a browser it also yields comment-only frames, so callers
// can observe keep-alives.
type Parser struct {
	r *bufio.Reader

	// last line ended in CR; a directly following LF belongs to it
	skipLF bool
}

func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReader(r)}
}

// Next returns the next frame. io.EOF is returned once the stream ends
// without a pending frame.
func (p *Parser) Next() (Frame, error) {
	var (
		f       Frame
		data    []string
		started bool
	)
	for {
		line, err := p.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && started {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}

		if line == "" {
			if !started {
				continue
			}
			f.Data = strings.Join(data, "\n")
			return f, nil
		}
		started = true

		if strings.HasPrefix(line, ":") {
			f.Comments = append(f.Comments, strings.TrimPrefix(line[1:], " "))
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
		}
	}
}

// readLine returns one line without its terminator. A final line cut off by
// EOF is still returned; io.EOF comes only when nothing was read.
func (p *Parser) readLine() (string, error) {
	var b strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && b.Len() > 0 {
				return b.String(), nil
			}
			return "", err
		}
		if p.skipLF {
			p.skipLF = false
			if c == '\n' {
				continue
			}
		}
		switch c {
		case '\n':
			return b.String(), nil
		case '\r':
			p.skipLF = true
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}

// ParseFrames reads every frame from r until EOF.
func ParseFrames(r io.Reader) ([]Frame, error) {
	p := NewParser(r)
	var out []Frame
	for {
		f, err := p.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

// Decode parses a single encoded frame back into its Envelope.
func Decode(frame []byte) (Envelope, error) {
	f, err := NewParser(strings.NewReader(string(frame))).Next()
	if err != nil {
		return Envelope{}, fmt.Errorf("parse frame: %w", err)
	}
	return f.Envelope()
}
