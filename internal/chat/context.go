// Package chat implements the conversation turn lifecycle: building the
// model context from stored history, running generation, and committing the
// exchange back to storage exactly once per turn.
package chat

import (
	"errors"

	"github.com/firebase/genkit/go/ai"

	"github.com/parleychat/parley/internal/session"
)

// ErrEmptyMessage indicates the user message was empty or whitespace-only.
var ErrEmptyMessage = errors.New("message must not be empty")

// BuildContext assembles the message sequence for a generation request:
// exactly one system message first, the most recent window entries of
// history, then the new user message. The system message is emitted even
// when systemPrompt is empty so the shape of the context never depends on
// prompt resource loading.
//
// History entries with roles other than user or assistant are skipped;
// they would confuse providers that only accept alternating chat roles.
// The function is pure and does not modify history.
func BuildContext(systemPrompt string, history []session.Message, userMessage string, window int) []*ai.Message {
	msgs := make([]*ai.Message, 0, window+2)

	msgs = append(msgs, &ai.Message{
		Role:    ai.RoleSystem,
		Content: []*ai.Part{ai.NewTextPart(systemPrompt)},
	})

	recent := history
	if window >= 0 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	for _, m := range recent {
		switch m.Role {
		case session.RoleUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case session.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		}
	}

	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(userMessage)))
	return msgs
}
