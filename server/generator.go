package server

import (
	"unicode/utf8"

	"github.com/izukaai/izuka/prompt"
)

// Reply templates. The completion endpoint performs no inference; it renders
// one of these two templates against the most recent user message.
const (
	greetingTemplate = "chat.greeting"
	replyTemplate    = "chat.reply"

	greetingText = "Hello! How can I help you today?"
	replyText    = "This is a simulated reply to your question: '{{.question}}'."
)

// Generator produces deterministic assistant replies for the facade.
type Generator struct {
	prompts *prompt.Manager
}

// NewGenerator builds a generator with the stock reply templates registered.
func NewGenerator() *Generator {
	m := prompt.NewManager()
	m.MustRegisterString(greetingTemplate, greetingText)
	m.MustRegisterString(replyTemplate, replyText)
	return &Generator{prompts: m}
}

// Reply scans the messages from the end for the most recent user entry and
// renders the reply template around its content. Without any user entry the
// fixed greeting is returned.
func (g *Generator) Reply(messages []ChatMessage) (string, error) {
	var lastUser string
	found := false
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUser = messages[i].Content
			found = true
			break
		}
	}

	if !found || lastUser == "" {
		return g.prompts.Render(greetingTemplate, nil)
	}
	return g.prompts.Render(replyTemplate, map[string]interface{}{"question": lastUser})
}

// CountUsage derives the usage counters for a request/reply pair. Counts are
// characters (runes), not tokens.
func CountUsage(messages []ChatMessage, reply string) Usage {
	promptChars := 0
	for _, msg := range messages {
		promptChars += utf8.RuneCountInString(msg.Content)
	}
	completionChars := utf8.RuneCountInString(reply)
	return Usage{
		PromptTokens:     promptChars,
		CompletionTokens: completionChars,
		TotalTokens:      promptChars + completionChars,
	}
}
