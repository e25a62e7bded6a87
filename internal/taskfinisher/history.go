package taskfinisher

import (
	"encoding/json"
	"fmt"

	"github.com/nhle/deepseek-json/internal/model"
)

// History is the ordered message sequence of one dialogue. Messages are
// never trimmed: the service needs the whole exchange to finalize.
type History struct {
	messages []model.Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{messages: make([]model.Message, 0, 8)}
}

// Append adds a message to the end of the history.
func (h *History) Append(role model.Role, content string) {
	h.messages = append(h.messages, model.Message{Role: role, Content: content})
}

// AppendJSON encodes v and appends it as a message.
func (h *History) AppendJSON(role model.Role, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", role, err)
	}
	h.Append(role, string(data))
	return nil
}

// Messages returns a copy of the history.
func (h *History) Messages() []model.Message {
	result := make([]model.Message, len(h.messages))
	copy(result, h.messages)
	return result
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Last returns the most recent message, or false when empty.
func (h *History) Last() (model.Message, bool) {
	if len(h.messages) == 0 {
		return model.Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}
