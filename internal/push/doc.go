// Package push fans discrete UI update instructions out to every browser
// currently holding a Server-Sent Events stream open.
//
// An Envelope names a DOM target, a swap strategy and a markup fragment.
// Encode turns it into one self-delimited SSE frame:
//
//	event: fixi
//	data: {"target":"#event-log","swap":"beforeend","text":"<div>hi</div>"}
//
// The three fields travel as a single JSON document on one data line, so a
// payload containing newlines or blank lines can never split the frame.
//
// A Hub owns a Registry of Sinks. Hub.Publish encodes once, snapshots the
// registry and writes to every sink; a sink whose write fails is dropped and
// the remaining sinks still get the frame. Hub.ServeHTTP is the connection
// adapter: it registers the response stream as a sink, sends an opening
// comment, then idles until the client leaves or the hub is closed.
//
// Delivery is live-only. A sink never sees frames published before it
// registered, and nothing is buffered for clients that are gone.
package push
