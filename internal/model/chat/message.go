package chat

// Roles a history entry can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a session's history. Immutable once appended.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
