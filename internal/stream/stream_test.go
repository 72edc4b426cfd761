package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassbox-ai/glassbox/internal/model"
)

func TestWriterEmit_OneRecordPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Emit(model.StepEvent(model.Step{Key: "received", Status: model.StepDone})))
	require.NoError(t, w.Emit(model.DeltaEvent("hello ")))
	require.NoError(t, w.Emit(model.DeltaEvent("world")))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	var first struct {
		Type string     `json:"type"`
		Data model.Step `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "step", first.Type)
	assert.Equal(t, "received", first.Data.Key)

	var second struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "delta", second.Type)
	assert.Equal(t, "hello ", second.Data)
}

func TestWriterEmit_PreservesDeltaGranularity(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	fragments := []string{"The ", "refund ", "policy ", "is..."}
	for _, f := range fragments {
		require.NoError(t, w.Emit(model.DeltaEvent(f)))
	}

	// One record per fragment, never merged.
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, len(fragments))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriterEmit_SurfacesTransportError(t *testing.T) {
	w := NewWriter(failingWriter{})
	err := w.Emit(model.DeltaEvent("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write event")
}

func TestCollector_RecordsInOrder(t *testing.T) {
	var c Collector
	require.NoError(t, c.Emit(model.DeltaEvent("a")))
	require.NoError(t, c.Emit(model.ErrorEvent("boom")))

	evs := c.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, model.EventDelta, evs[0].Type)
	assert.Equal(t, model.EventError, evs[1].Type)
}
