package model

// Role identifies the sender of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single (role, content) pair sent to the chat-completion endpoint.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes one logical chat-completion call. Messages are in
// chronological order: system first, then alternating user/assistant turns.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int

	// ForceJSON asks the service for a syntactically valid JSON object.
	ForceJSON bool

	// Label is a short description recorded in the session journal.
	Label string
}

// LastUserContent returns the content of the most recent user message, or
// an empty string when there is none.
func (r ChatRequest) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}
