package pipeline

import (
	"context"
	"time"

	"github.com/glassbox-ai/glassbox/internal/model"
)

// RerankTool is a fixed-latency placeholder for post-retrieval
// processing. It exists to exercise the non-critical stage path until a
// real re-ranker lands; swapping it out only requires implementing Tool.
type RerankTool struct {
	Delay time.Duration
}

// Invoke waits for the configured delay, honoring cancellation.
func (t *RerankTool) Invoke(ctx context.Context, _ string, _ []model.SourceMatch) error {
	delay := t.Delay
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
