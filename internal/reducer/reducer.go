// Package reducer reconstructs pipeline state from the raw event
// stream on the consuming side.
//
// The transport delivers arbitrary byte chunks: a JSON record may be
// split across chunks or several records may arrive in one chunk. The
// Decoder reassembles complete lines with a carry-over buffer and
// applies each event to a State. State is a pure reduction over the
// event sequence — feeding the same events in the same order always
// yields the same state, which makes replay from a persisted record
// and live consumption identical code paths.
package reducer

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// State is the reconstructed view of one run: step progress, retrieved
// sources, and the answer text accumulated from delta fragments.
type State struct {
	Steps   []model.Step
	Sources []model.SourceMatch
	Answer  string
	Errors  []string

	index map[string]int // step key -> position in Steps
}

// NewState creates an empty State.
func NewState() *State {
	return &State{index: make(map[string]int)}
}

// Apply folds one event into the state. Unknown event types are
// ignored so protocol additions don't break old consumers.
func (s *State) Apply(ev model.Event) {
	switch ev.Type {
	case model.EventStep:
		if step, ok := ev.Data.(model.Step); ok {
			s.upsertStep(step)
		}
	case model.EventSources:
		if matches, ok := ev.Data.([]model.SourceMatch); ok {
			s.Sources = matches
		}
	case model.EventDelta:
		if frag, ok := ev.Data.(string); ok {
			s.Answer += frag
		}
	case model.EventError:
		if msg, ok := ev.Data.(string); ok {
			s.Errors = append(s.Errors, msg)
		}
	}
}

// upsertStep mirrors the ledger's merge semantics: non-empty incoming
// fields overwrite, empty fields keep the prior value.
func (s *State) upsertStep(step model.Step) {
	if i, ok := s.index[step.Key]; ok {
		prev := s.Steps[i]
		if step.Title == "" {
			step.Title = prev.Title
		}
		if step.Status == "" {
			step.Status = prev.Status
		}
		if step.Detail == "" {
			step.Detail = prev.Detail
		}
		s.Steps[i] = step
		return
	}
	s.index[step.Key] = len(s.Steps)
	s.Steps = append(s.Steps, step)
}

// Decoder incrementally parses the NDJSON wire protocol and drives a
// State. Malformed lines are logged and skipped without aborting.
type Decoder struct {
	state  *State
	carry  []byte
	logger *slog.Logger
}

// NewDecoder creates a Decoder with a fresh State.
func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{state: NewState(), logger: logger}
}

// State returns the state reconstructed so far.
func (d *Decoder) State() *State { return d.state }

// Feed consumes one transport chunk. Complete lines are decoded and
// applied; the trailing incomplete fragment (if any) is retained as
// the carry-over for the next chunk.
func (d *Decoder) Feed(chunk []byte) {
	d.carry = append(d.carry, chunk...)

	for {
		i := bytes.IndexByte(d.carry, '\n')
		if i < 0 {
			return
		}
		line := d.carry[:i]
		d.carry = d.carry[i+1:]
		d.decodeLine(line)
	}
}

// Close flushes any leftover carry-over as a best-effort final record.
// Call when the transport closes.
func (d *Decoder) Close() {
	if len(bytes.TrimSpace(d.carry)) > 0 {
		d.decodeLine(d.carry)
	}
	d.carry = nil
}

// rawEvent defers payload decoding until the type is known.
type rawEvent struct {
	Type model.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (d *Decoder) decodeLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		d.logger.Warn("reducer: skipping malformed record", "error", err, "bytes", len(line))
		return
	}

	switch raw.Type {
	case model.EventStep:
		var step model.Step
		if err := json.Unmarshal(raw.Data, &step); err != nil {
			d.logger.Warn("reducer: bad step payload", "error", err)
			return
		}
		d.state.Apply(model.StepEvent(step))
	case model.EventSources:
		// SourceMatch.UnmarshalJSON normalizes similarity/score here,
		// so everything downstream sees one canonical field.
		var matches []model.SourceMatch
		if err := json.Unmarshal(raw.Data, &matches); err != nil {
			d.logger.Warn("reducer: bad sources payload", "error", err)
			return
		}
		d.state.Apply(model.SourcesEvent(matches))
	case model.EventDelta:
		var frag string
		if err := json.Unmarshal(raw.Data, &frag); err != nil {
			d.logger.Warn("reducer: bad delta payload", "error", err)
			return
		}
		d.state.Apply(model.DeltaEvent(frag))
	case model.EventError:
		var msg string
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			d.logger.Warn("reducer: bad error payload", "error", err)
			return
		}
		// Errors are recorded, not terminal: the transport closing is
		// the termination signal.
		d.state.Apply(model.ErrorEvent(msg))
	default:
		d.logger.Warn("reducer: unknown event type", "type", string(raw.Type))
	}
}
