package context

import (
	"github.com/izukaai/izuka/message"
)

// TokenCounter reports the token footprint of a piece of text.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// Context manages the conversation context including message history
type Context struct {
	messages    []*message.Message
	maxSize     int // Maximum number of messages to keep
	counter     TokenCounter
	tokenBudget int
}

// New creates a new context with default settings
func New() *Context {
	return &Context{
		messages: make([]*message.Message, 0),
		maxSize:  100, // Default max size
	}
}

// NewWithMaxSize creates a new context with specified max size
func NewWithMaxSize(maxSize int) *Context {
	return &Context{
		messages: make([]*message.Message, 0),
		maxSize:  maxSize,
	}
}

// SetTokenBudget enables token-based trimming on top of the message count
// limit. Oldest non-system messages are dropped once the transcript exceeds
// the budget.
func (c *Context) SetTokenBudget(counter TokenCounter, budget int) {
	c.counter = counter
	c.tokenBudget = budget
}

// AddMessage adds a message to the context
func (c *Context) AddMessage(msg *message.Message) {
	c.messages = append(c.messages, msg)

	// Trim old messages if exceeds max size
	if len(c.messages) > c.maxSize {
		// Keep system messages and recent messages
		systemMsgs := make([]*message.Message, 0)
		for _, m := range c.messages {
			if m.Role == message.RoleSystem {
				systemMsgs = append(systemMsgs, m)
			}
		}

		// Calculate how many non-system messages to keep
		keepCount := c.maxSize - len(systemMsgs)
		recentMsgs := c.messages[len(c.messages)-keepCount:]

		// Rebuild messages: system messages + recent messages
		newMessages := make([]*message.Message, 0, c.maxSize)
		newMessages = append(newMessages, systemMsgs...)
		for _, m := range recentMsgs {
			if m.Role != message.RoleSystem {
				newMessages = append(newMessages, m)
			}
		}
		c.messages = newMessages
	}

	c.trimToTokenBudget()
}

// SetMessages replaces the transcript wholesale, e.g. when restoring a
// thread from a checkpoint.
func (c *Context) SetMessages(msgs []*message.Message) {
	c.messages = make([]*message.Message, 0, len(msgs))
	c.messages = append(c.messages, msgs...)
}

// GetMessages returns all messages in the context
func (c *Context) GetMessages() []*message.Message {
	return c.messages
}

// GetLastMessage returns the last message or nil if empty
func (c *Context) GetLastMessage() *message.Message {
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

// GetMessagesByRole returns all messages with the specified role
func (c *Context) GetMessagesByRole(role message.Role) []*message.Message {
	result := make([]*message.Message, 0)
	for _, msg := range c.messages {
		if msg.Role == role {
			result = append(result, msg)
		}
	}
	return result
}

// TokenCount sums the token footprint of every message using the configured
// counter. Returns 0 when no counter is set.
func (c *Context) TokenCount() int {
	if c.counter == nil {
		return 0
	}
	total := 0
	for _, msg := range c.messages {
		n, err := c.counter.CountTokens(msg.Content)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

// Clear removes all messages from the context
func (c *Context) Clear() {
	c.messages = make([]*message.Message, 0)
}

// Size returns the current number of messages
func (c *Context) Size() int {
	return len(c.messages)
}

func (c *Context) trimToTokenBudget() {
	if c.counter == nil || c.tokenBudget <= 0 {
		return
	}
	for c.TokenCount() > c.tokenBudget {
		dropped := false
		for i, m := range c.messages {
			if m.Role != message.RoleSystem {
				c.messages = append(c.messages[:i], c.messages[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
	}
}
