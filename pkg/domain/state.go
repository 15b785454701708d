package domain

// ScratchToolResult is the scratch key the tool node writes its output to.
const ScratchToolResult = "tool_result"

// State is the execution-scoped data threaded through every node of a turn.
type State struct {
	// ThreadID identifies the conversation this execution belongs to.
	ThreadID string

	// Messages is the dialogue transcript. Nodes may only append to it.
	Messages []Message

	// Scratch holds inter-node handoff data for the current execution only.
	// It is never persisted and starts empty on every turn.
	Scratch map[string]string

	// Route is the branch chosen by the router for this execution.
	Route Route

	// Path records the nodes visited, in order (useful for debugging and hooks).
	Path []NodeID
}

// NewState creates a fresh execution state seeded with a copy of the prior transcript.
func NewState(threadID string, history []Message) *State {
	return &State{
		ThreadID: threadID,
		Messages: CloneMessages(history),
		Scratch:  make(map[string]string),
	}
}

// Append adds messages to the end of the transcript.
func (s *State) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Last returns the most recent message, if any.
func (s *State) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastUser returns the most recent user message, if any.
func (s *State) LastUser() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}
