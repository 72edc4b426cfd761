package trace

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassbox-ai/glassbox/internal/model"
)

func TestLedgerUpsert_AppendsNewKeysInOrder(t *testing.T) {
	l := NewLedger()
	l.Upsert(model.Step{Key: "received", Title: "Question received", Status: model.StepDone})
	l.Upsert(model.Step{Key: "embedding", Title: "Embedding question", Status: model.StepRunning})

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "received", snap[0].Key)
	assert.Equal(t, "embedding", snap[1].Key)
}

func TestLedgerUpsert_MergesPartialUpdate(t *testing.T) {
	l := NewLedger()
	l.Upsert(model.Step{Key: "retrieving", Title: "Retrieving context", Status: model.StepRunning})

	// Status-only update keeps the prior title.
	merged := l.Upsert(model.Step{Key: "retrieving", Status: model.StepDone, Detail: "2 fragments"})
	assert.Equal(t, "Retrieving context", merged.Title)
	assert.Equal(t, model.StepDone, merged.Status)
	assert.Equal(t, "2 fragments", merged.Detail)

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, merged, snap[0])
}

func TestLedgerUpsert_EmptyDetailKeepsPrior(t *testing.T) {
	l := NewLedger()
	l.Upsert(model.Step{Key: "tool_invoking", Title: "Post-processing", Status: model.StepRunning, Detail: "re-ranking"})
	merged := l.Upsert(model.Step{Key: "tool_invoking", Status: model.StepDone})
	assert.Equal(t, "re-ranking", merged.Detail)
}

func TestLedgerUpsert_IdempotentUnderRepeatedIdenticalUpdates(t *testing.T) {
	l := NewLedger()
	s := model.Step{Key: "generating", Title: "Generating answer", Status: model.StepRunning}
	l.Upsert(s)
	once := l.Snapshot()

	l.Upsert(s)
	twice := l.Snapshot()

	assert.Equal(t, once, twice)
}

func TestLedgerSnapshot_IsACopy(t *testing.T) {
	l := NewLedger()
	l.Upsert(model.Step{Key: "received", Status: model.StepDone})
	snap := l.Snapshot()
	snap[0].Status = model.StepError

	assert.Equal(t, model.StepDone, l.Snapshot()[0].Status)
}

func TestLedger_ConcurrentReaderDoesNotRace(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			l.Upsert(model.Step{Key: fmt.Sprintf("step-%d", i%5), Status: model.StepRunning})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = l.Snapshot()
			_ = l.Len()
		}
	}()
	wg.Wait()

	assert.Equal(t, 5, l.Len())
}
