package models

// Role identifies who produced a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. Values are never mutated after
// being appended; identity is the position in the sequence.
type Message struct {
	Role Role
	Text string
	// Audio is the inline base64 payload returned by the backend, empty when
	// the reply carried none.
	Audio string
	// MoodScore is the sentiment score the backend attached to the reply
	MoodScore *float64
}

// UserMessage builds a user message
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage builds an assistant message from a check-in reply
func AssistantMessage(resp *CheckInResponse) Message {
	return Message{
		Role:      RoleAssistant,
		Text:      resp.Response,
		Audio:     resp.Audio,
		MoodScore: resp.MoodScore,
	}
}

// FallbackMessage builds the fixed apology shown when a check-in fails
func FallbackMessage() Message {
	return Message{Role: RoleAssistant, Text: FallbackReply}
}

// HasAudio reports whether the message carries an audio payload
func (m Message) HasAudio() bool {
	return m.Audio != ""
}

// IsFallback reports whether m is the failure apology
func (m Message) IsFallback() bool {
	return m.Role == RoleAssistant && m.Text == FallbackReply && m.Audio == ""
}
