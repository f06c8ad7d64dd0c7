// Package stream serves change notifications as Server-Sent Events for
// clients that cannot hold a websocket open.
package stream

import (
	"fmt"
	"net/http"
	"strings"
)

// Event is a single Server-Sent Event
type Event struct {
	ID    string
	Name  string
	Data  string
	Retry int
}

// Streamer writes events to a flushing response
type Streamer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSE prepares w for an event stream. It fails when w cannot flush.
func NewSSE(w http.ResponseWriter) (*Streamer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Streamer{w: w, flusher: flusher}, nil
}

// WriteEvent writes e and flushes. Multi-line data is split over several
// data fields.
func (s *Streamer) WriteEvent(e Event) error {
	var b strings.Builder
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Name)
	}
	if e.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", e.Retry)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	return s.write(b.String())
}

// Comment writes a comment line, which clients ignore. Used as a heartbeat.
func (s *Streamer) Comment(text string) error {
	return s.write(": " + text + "\n\n")
}

func (s *Streamer) write(str string) error {
	if _, err := s.w.Write([]byte(str)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
