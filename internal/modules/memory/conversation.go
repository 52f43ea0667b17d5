package memory

import (
	"strings"
	"time"
)

// Turn is a single message in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is one exported chat thread, turns in chronological order.
type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Turns []Turn `json:"turns"`
}

func (c Conversation) IsUserTurn(t Turn) bool {
	return strings.EqualFold(t.Role, "user")
}

// LastActivity returns the newest turn timestamp, or the zero time for an
// empty conversation.
func (c Conversation) LastActivity() time.Time {
	var last time.Time
	for _, t := range c.Turns {
		if t.Timestamp.After(last) {
			last = t.Timestamp
		}
	}
	return last
}

// EstimateTokens is the cheap token proxy used throughout the pipeline:
// character count divided by four. Precision does not matter, only monotonic
// consistency.
func EstimateTokens(s string) int {
	return len(s) / 4
}
