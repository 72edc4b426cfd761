// Package stream serializes pipeline events onto the outbound wire.
//
// The wire protocol is newline-delimited JSON: one {"type","data"}
// record per event, in exact emission order. Each record is flushed
// individually so generation fragments reach the consumer with their
// original granularity — no batching or coalescing across records.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// Emitter is the single primitive the pipeline writes through.
// Implementations must preserve emission order.
type Emitter interface {
	Emit(ev model.Event) error
}

// Writer emits events as NDJSON records onto an io.Writer. If the
// writer implements http.Flusher, every record is flushed as it is
// written. Safe for use from one goroutine at a time per event; the
// mutex guards against a keepalive or late writer racing a record.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewWriter creates a Writer. Flushing is enabled when w implements
// http.Flusher (as http.ResponseWriter does).
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Emit writes one event as a single newline-terminated JSON record.
// Returns the transport error, if any; the caller treats a failed
// write as a disconnected consumer.
func (s *Writer) Emit(ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("stream: marshal event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("stream: write event: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Collector is an Emitter that records events in memory. Used by the
// MCP tools (which have no streaming transport) and by tests.
type Collector struct {
	mu     sync.Mutex
	events []model.Event
}

// Emit appends the event.
func (c *Collector) Emit(ev model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns the events emitted so far, in order.
func (c *Collector) Events() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}
