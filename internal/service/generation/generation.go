// Package generation streams answer text from a chat model.
//
// Providers push tokens through a callback as they arrive so the
// caller can forward each fragment without re-buffering.
package generation

import (
	"context"
	"net/http"
	"time"
)

// Message is one turn of a chat conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider streams a model response token by token.
type Provider interface {
	// Stream sends the conversation to the model and invokes onDelta
	// for every text fragment, in arrival order. A non-nil error from
	// onDelta aborts the stream and is returned unchanged.
	Stream(ctx context.Context, messages []Message, onDelta func(delta string) error) error
}

// Generation calls can legitimately run long; the client timeout only
// guards against a hung connection, not a slow model.
const streamTimeout = 5 * time.Minute

func newStreamClient() *http.Client {
	return &http.Client{Timeout: streamTimeout}
}
