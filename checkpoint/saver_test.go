package checkpoint

import (
	"context"
	"fmt"
	"testing"

	errorskg "github.com/izukaai/izuka/errors"
	"github.com/izukaai/izuka/graph"
	"github.com/izukaai/izuka/message"
)

type fakeStore struct {
	records map[string]*Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*Record)}
}

func (f *fakeStore) Save(ctx context.Context, rec *Record) error {
	f.records[rec.ThreadID] = rec
	return nil
}

func (f *fakeStore) Load(ctx context.Context, threadID string) (*Record, error) {
	rec, ok := f.records[threadID]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeStore) Delete(ctx context.Context, threadID string) error { return nil }

func (f *fakeStore) List(ctx context.Context) ([]*Record, error) { return nil, nil }

func (f *fakeStore) Exists(ctx context.Context, threadID string) (bool, error) {
	_, ok := f.records[threadID]
	return ok, nil
}

func TestStoreSaverRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	saver := NewStoreSaver(store)

	state := graph.State{
		MessagesKey: []*message.Message{
			message.NewMessage(message.RoleUser, "question"),
			message.NewToolCallMessage([]message.ToolCall{
				{ID: "call1", Name: "search", Args: map[string]any{"query": "go"}},
			}),
		},
	}

	if err := saver.Save(ctx, "t1", &graph.Checkpoint{State: state, Next: "tools"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cp, err := saver.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp.Next != "tools" {
		t.Errorf("Expected next tools, got %q", cp.Next)
	}

	msgs := MessagesFromState(cp.State)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].ToolCalls[0].Name != "search" {
		t.Errorf("Tool calls not preserved: %+v", msgs[1].ToolCalls)
	}
}

func TestStoreSaverClonesMessages(t *testing.T) {
	ctx := context.Background()
	saver := NewStoreSaver(newFakeStore())

	msg := message.NewMessage(message.RoleUser, "original")
	state := graph.State{MessagesKey: []*message.Message{msg}}

	if err := saver.Save(ctx, "t1", &graph.Checkpoint{State: state, Next: graph.End}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	msg.Content = "mutated"

	cp, err := saver.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if MessagesFromState(cp.State)[0].Content != "original" {
		t.Error("Saved transcript shares pointers with the caller")
	}
}

func TestMessagesFromState(t *testing.T) {
	if MessagesFromState(graph.State{}) != nil {
		t.Error("Expected nil for missing key")
	}
	if MessagesFromState(graph.State{MessagesKey: "wrong type"}) != nil {
		t.Error("Expected nil for mistyped value")
	}

	msgs := []*message.Message{message.NewMessage(message.RoleUser, "hi")}
	got := MessagesFromState(graph.State{MessagesKey: msgs})
	if len(got) != 1 || got[0].Content != "hi" {
		t.Errorf("Expected transcript back, got %+v", got)
	}
}
