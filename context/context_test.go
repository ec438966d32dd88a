package context

import (
	"fmt"
	"testing"

	"github.com/izukaai/izuka/message"
)

func TestAddMessageTrimsToMaxSize(t *testing.T) {
	ctx := NewWithMaxSize(3)
	ctx.AddMessage(message.NewMessage(message.RoleSystem, "sys"))
	for i := 0; i < 5; i++ {
		ctx.AddMessage(message.NewMessage(message.RoleUser, fmt.Sprintf("msg-%d", i)))
	}

	if ctx.Size() != 3 {
		t.Fatalf("Expected 3 messages after trim, got %d", ctx.Size())
	}

	msgs := ctx.GetMessages()
	if msgs[0].Role != message.RoleSystem {
		t.Error("Expected system message to survive trimming")
	}
	if last := ctx.GetLastMessage(); last == nil || last.Content != "msg-4" {
		t.Errorf("Expected most recent message to survive, got %+v", last)
	}
}

func TestGetMessagesByRole(t *testing.T) {
	ctx := New()
	ctx.AddMessage(message.NewMessage(message.RoleSystem, "sys"))
	ctx.AddMessage(message.NewMessage(message.RoleUser, "question"))
	ctx.AddMessage(message.NewMessage(message.RoleAssistant, "answer"))
	ctx.AddMessage(message.NewMessage(message.RoleUser, "followup"))

	users := ctx.GetMessagesByRole(message.RoleUser)
	if len(users) != 2 {
		t.Fatalf("Expected 2 user messages, got %d", len(users))
	}
	if users[1].Content != "followup" {
		t.Errorf("Expected 'followup', got %q", users[1].Content)
	}
}

func TestSetMessagesReplacesTranscript(t *testing.T) {
	ctx := New()
	ctx.AddMessage(message.NewMessage(message.RoleUser, "old"))

	restored := []*message.Message{
		message.NewMessage(message.RoleSystem, "sys"),
		message.NewMessage(message.RoleUser, "restored"),
	}
	ctx.SetMessages(restored)

	if ctx.Size() != 2 {
		t.Fatalf("Expected 2 messages after restore, got %d", ctx.Size())
	}
	if ctx.GetLastMessage().Content != "restored" {
		t.Errorf("Expected restored transcript, got %q", ctx.GetLastMessage().Content)
	}
}

type wordCounter struct{}

func (wordCounter) CountTokens(text string) (int, error) {
	return len(text), nil
}

func TestTokenBudgetTrimming(t *testing.T) {
	ctx := New()
	ctx.SetTokenBudget(wordCounter{}, 10)

	ctx.AddMessage(message.NewMessage(message.RoleSystem, "sys"))
	ctx.AddMessage(message.NewMessage(message.RoleUser, "aaaaa"))
	ctx.AddMessage(message.NewMessage(message.RoleUser, "bbbbb"))

	if ctx.TokenCount() > 10 {
		t.Errorf("Expected token count within budget, got %d", ctx.TokenCount())
	}
	for _, m := range ctx.GetMessages() {
		if m.Role == message.RoleSystem && m.Content != "sys" {
			t.Error("System message should not be altered by trimming")
		}
	}
	if ctx.GetLastMessage().Content != "bbbbb" {
		t.Errorf("Expected newest message to survive, got %q", ctx.GetLastMessage().Content)
	}
}

func TestClear(t *testing.T) {
	ctx := New()
	ctx.AddMessage(message.NewMessage(message.RoleUser, "hello"))
	ctx.Clear()

	if ctx.Size() != 0 {
		t.Errorf("Expected empty context, got %d messages", ctx.Size())
	}
	if ctx.GetLastMessage() != nil {
		t.Error("Expected nil last message after clear")
	}
}
