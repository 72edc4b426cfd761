// Package model defines the core domain types for Glassbox.
//
// Types correspond directly to wire protocol payloads and the runs table.
// They use strong typing (UUIDs, time.Time, enums) and avoid interface{}
// wherever possible.
package model

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus represents the lifecycle state of one pipeline step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepError   StepStatus = "error"
)

// Step is the observable record of one pipeline stage's progress.
// Steps are identified by a stable key and updated in place as the
// stage advances.
type Step struct {
	Key    string     `json:"key"`
	Title  string     `json:"title"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// RunRecord is the durable audit artifact for one pipeline execution.
// Exactly one is produced per request that reaches pipeline start,
// regardless of outcome. Immutable once persisted.
type RunRecord struct {
	ID           uuid.UUID     `json:"id"`
	Question     string        `json:"question"`
	Answer       *string       `json:"answer"`
	TopK         *int          `json:"topk"`
	Threshold    *float64      `json:"threshold"`
	MatchedCount int           `json:"matched_count"`
	DurationMs   int64         `json:"duration_ms"`
	Steps        []Step        `json:"steps"`
	Sources      []SourceMatch `json:"sources"`
	CreatedAt    time.Time     `json:"created_at"`
}

// HistoryItem is one prior conversation turn supplied by the caller.
// The pipeline treats history as read-only input; it is fed to the
// generation collaborator and never persisted verbatim.
type HistoryItem struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
