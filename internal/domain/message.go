package domain

// Role identifies who authored a conversation message.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleAgent   Role = "agent"
)

// Message is one entry in a conversation history, ordered oldest first.
type Message struct {
	Role    Role
	Content string
}

// LastVisitorMessage returns the content of the most recent visitor message,
// or "" if the history contains none.
func LastVisitorMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleVisitor {
			return history[i].Content
		}
	}
	return ""
}
