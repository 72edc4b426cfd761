// Package pipeline orchestrates one question-answering run.
//
// A run moves through a fixed sequence of stages — receive, embed,
// retrieve, tool, generate — emitting a trace event after every stage
// transition and persisting exactly one run record at termination,
// whatever the outcome. Stages within one run execute strictly
// sequentially; concurrent runs share nothing but the durable store.
package pipeline

import (
	"context"

	"github.com/glassbox-ai/glassbox/internal/model"
	"github.com/glassbox-ai/glassbox/internal/service/generation"
)

// Embedder turns the question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns document chunks for a query vector. Result order
// is callee-defined and preserved as-is through the trace and record.
type Retriever interface {
	Search(ctx context.Context, embedding []float32, threshold float64, limit int) ([]model.SourceMatch, error)
}

// Generator streams answer fragments for an assembled conversation.
type Generator interface {
	Stream(ctx context.Context, messages []generation.Message, onDelta func(delta string) error) error
}

// Tool is the non-critical post-retrieval stage. A failing Tool marks
// its step as errored but never aborts the run.
type Tool interface {
	Invoke(ctx context.Context, question string, matches []model.SourceMatch) error
}

// Recorder persists the final run record. Implementations swallow
// failures; the pipeline only guarantees it is called exactly once.
type Recorder interface {
	Persist(rec model.RunRecord)
}

// Clamping bounds for caller-supplied retrieval parameters. Values
// outside the valid range fall back to the default rather than erroring.
const (
	DefaultTopK      = 5
	MaxTopK          = 20
	DefaultThreshold = 0.4
)

// ClampTopK returns a topk in (0, MaxTopK], defaulting when absent or invalid.
func ClampTopK(v *int) int {
	if v == nil || *v <= 0 || *v > MaxTopK {
		return DefaultTopK
	}
	return *v
}

// ClampThreshold returns a threshold in [0, 1], defaulting when absent or invalid.
func ClampThreshold(v *float64) float64 {
	if v == nil || *v < 0 || *v > 1 {
		return DefaultThreshold
	}
	return *v
}
