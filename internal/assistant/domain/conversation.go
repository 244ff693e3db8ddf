package domain

import (
	"time"

	"aria/internal/shared/tokenutil"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a conversation. Insertion order is significant.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingTask holds partially collected parameters for an intent awaiting
// completion across turns. It exists iff the previous turn's gate judged an
// above-floor intent incomplete.
type PendingTask struct {
	Action    Action         `json:"action"`
	Params    map[string]any `json:"collectedParameters"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Conversation is the per-(user, session) state the core owns: ordered
// messages plus optional pending-task residue.
type Conversation struct {
	UserID    string       `json:"userId"`
	SessionID string       `json:"sessionId"`
	Messages  []Message    `json:"messages"`
	Pending   *PendingTask `json:"pendingTask,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// NewConversation creates an empty conversation for the key.
func NewConversation(userID, sessionID string) *Conversation {
	return &Conversation{
		UserID:    userID,
		SessionID: sessionID,
		Messages:  []Message{},
		UpdatedAt: time.Now(),
	}
}

// Append adds a message, stamping it if the caller did not.
func (c *Conversation) Append(role, content string) {
	c.AppendMessage(Message{Role: role, Content: content})
}

// AppendMessage adds a prepared message in arrival order.
func (c *Conversation) AppendMessage(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
}

// Trim caps the conversation at maxMessages entries. The system message (if
// present) always survives, then the most recent maxMessages-1 others, with
// relative order preserved among survivors.
func (c *Conversation) Trim(maxMessages int) {
	if maxMessages <= 0 || len(c.Messages) <= maxMessages {
		return
	}

	var system *Message
	rest := make([]Message, 0, len(c.Messages))
	for i := range c.Messages {
		if system == nil && c.Messages[i].Role == RoleSystem {
			system = &c.Messages[i]
			continue
		}
		rest = append(rest, c.Messages[i])
	}

	if system == nil {
		c.Messages = rest[len(rest)-maxMessages:]
		return
	}

	keep := maxMessages - 1
	if keep < 0 {
		keep = 0
	}
	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}
	trimmed := make([]Message, 0, len(rest)+1)
	trimmed = append(trimmed, *system)
	trimmed = append(trimmed, rest...)
	c.Messages = trimmed
}

// TrimToTokenBudget drops oldest non-system messages until the conversation
// fits the token budget. The system message is never dropped even when it
// alone exceeds the budget.
func (c *Conversation) TrimToTokenBudget(budget int) {
	if budget <= 0 {
		return
	}
	for c.TokenCount() > budget {
		idx := -1
		for i := range c.Messages {
			if c.Messages[i].Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		c.Messages = append(c.Messages[:idx], c.Messages[idx+1:]...)
	}
}

// TokenCount estimates the token footprint of the conversation.
func (c *Conversation) TokenCount() int {
	total := 0
	for _, msg := range c.Messages {
		total += tokenutil.CountTokens(msg.Content)
	}
	return total
}

// Recent returns up to n of the most recent messages, excluding the system
// message, in chronological order.
func (c *Conversation) Recent(n int) []Message {
	if n <= 0 {
		return nil
	}
	rest := make([]Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			continue
		}
		rest = append(rest, msg)
	}
	if len(rest) > n {
		rest = rest[len(rest)-n:]
	}
	return rest
}

// SetPending stores pending-task residue for the next turn.
func (c *Conversation) SetPending(action Action, params map[string]any) {
	c.Pending = &PendingTask{Action: action, Params: params, UpdatedAt: time.Now()}
}

// ClearPending removes any pending task. Safe to call when none exists.
func (c *Conversation) ClearPending() {
	c.Pending = nil
}
