package domain

import "fmt"

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single turn of the dialogue transcript.
// Messages are values: once appended to a transcript they are never mutated.
type Message struct {
	Role    Role   `json:"role" msgpack:"role" yaml:"role"`
	Content string `json:"content" msgpack:"content" yaml:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.Role, m.Content)
}

// CloneMessages returns an independent copy of msgs.
// A nil input yields an empty, non-nil slice so that encoders never emit null.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
