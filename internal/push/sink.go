package push

import "errors"

// ErrSinkClosed is returned by a sink whose connection has already ended.
var ErrSinkClosed = errors.New("push: sink closed")

// Sink accepts encoded frames for one live connection. A non-nil error
// means the connection is no longer usable.
type Sink interface {
	Write(frame []byte) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(frame []byte) error

func (f SinkFunc) Write(frame []byte) error { return f(frame) }
