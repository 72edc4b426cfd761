package pipeline

import (
	"strings"

	"github.com/glassbox-ai/glassbox/internal/model"
	"github.com/glassbox-ai/glassbox/internal/service/generation"
)

const systemPrompt = "You are a helpful assistant that answers questions using only the provided context. " +
	"If the context does not contain the answer, say so instead of guessing. " +
	"Answer concisely and cite the context where relevant."

// chunkSeparator joins retrieved chunk contents inside the prompt.
const chunkSeparator = "\n\n---\n\n"

// buildMessages assembles the conversation sent to the generator:
// a fixed system instruction, the caller's prior turns verbatim, and
// the current question augmented with the retrieved context.
func buildMessages(question string, history []model.HistoryItem, matches []model.SourceMatch) []generation.Message {
	msgs := make([]generation.Message, 0, len(history)+2)
	msgs = append(msgs, generation.Message{Role: "system", Content: systemPrompt})

	for _, h := range history {
		msgs = append(msgs, generation.Message{Role: h.Role, Content: h.Content})
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for i, m := range matches {
		if i > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(m.Content)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)

	msgs = append(msgs, generation.Message{Role: "user", Content: b.String()})
	return msgs
}
