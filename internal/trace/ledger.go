// Package trace maintains per-run execution state: the ordered ledger
// of pipeline steps that becomes both the live event feed and the
// persisted audit trail.
package trace

import (
	"sync"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// Ledger is an ordered, de-duplicated collection of steps keyed by
// step key. A run's stages write sequentially; reads may come from a
// different goroutine (the emitter, the recorder), so access is
// guarded by an RWMutex. There is no removal operation.
type Ledger struct {
	mu    sync.RWMutex
	order []string
	steps map[string]model.Step
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{steps: make(map[string]model.Step)}
}

// Upsert appends the step if its key is new, otherwise merges the
// update into the existing entry: non-empty fields overwrite, empty
// fields keep the prior value. Returns the merged step.
func (l *Ledger) Upsert(s model.Step) model.Step {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.steps[s.Key]
	if !ok {
		l.order = append(l.order, s.Key)
		l.steps[s.Key] = s
		return s
	}

	if s.Title == "" {
		s.Title = prev.Title
	}
	if s.Status == "" {
		s.Status = prev.Status
	}
	if s.Detail == "" {
		s.Detail = prev.Detail
	}
	l.steps[s.Key] = s
	return s
}

// Snapshot returns the steps in insertion order. The returned slice is
// a copy and safe to retain.
func (l *Ledger) Snapshot() []model.Step {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Step, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, l.steps[key])
	}
	return out
}

// Len returns the number of distinct steps recorded.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}
