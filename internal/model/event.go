package model

// EventType discriminates the records of the outbound wire protocol.
type EventType string

const (
	// EventStep carries a Step after every stage transition.
	EventStep EventType = "step"
	// EventSources carries all retrieved matches, once, after a
	// successful retrieval with at least one match.
	EventSources EventType = "sources"
	// EventDelta carries one generated text fragment (never cumulative).
	EventDelta EventType = "delta"
	// EventError carries a message on any fatal stage failure.
	EventError EventType = "error"
)

// Event is one record of the outbound stream. Data holds the payload
// matching the type: Step, []SourceMatch, or string.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// StepEvent wraps a step update for emission.
func StepEvent(s Step) Event { return Event{Type: EventStep, Data: s} }

// SourcesEvent wraps the retrieved matches for emission.
func SourcesEvent(matches []SourceMatch) Event { return Event{Type: EventSources, Data: matches} }

// DeltaEvent wraps one generated fragment for emission.
func DeltaEvent(fragment string) Event { return Event{Type: EventDelta, Data: fragment} }

// ErrorEvent wraps a fatal failure message for emission.
func ErrorEvent(msg string) Event { return Event{Type: EventError, Data: msg} }
