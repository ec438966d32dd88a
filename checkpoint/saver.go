package checkpoint

import (
	"context"
	"fmt"

	"github.com/izukaai/izuka/graph"
	"github.com/izukaai/izuka/message"
)

// MessagesKey is the graph state key under which the transcript lives.
const MessagesKey = "messages"

// MessagesFromState extracts the transcript from graph state. Returns nil
// when the key is absent or holds a different type.
func MessagesFromState(state graph.State) []*message.Message {
	raw, ok := state[MessagesKey]
	if !ok {
		return nil
	}
	msgs, ok := raw.([]*message.Message)
	if !ok {
		return nil
	}
	return msgs
}

// StoreSaver adapts a durable Store to the graph.Checkpointer interface,
// translating between graph state and checkpoint records.
type StoreSaver struct {
	store Store
}

// NewStoreSaver wraps a Store for use as a graph checkpointer.
func NewStoreSaver(store Store) *StoreSaver {
	return &StoreSaver{store: store}
}

// Save persists the checkpoint's transcript and pending node.
func (s *StoreSaver) Save(ctx context.Context, threadID string, cp *graph.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	rec := &Record{
		ThreadID:    threadID,
		Messages:    message.CloneMessages(MessagesFromState(cp.State)),
		PendingNode: cp.Next,
	}
	return s.store.Save(ctx, rec)
}

// Load rebuilds a graph checkpoint from the stored record.
func (s *StoreSaver) Load(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	rec, err := s.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	state := graph.State{
		MessagesKey: message.CloneMessages(rec.Messages),
	}
	return &graph.Checkpoint{State: state, Next: rec.PendingNode}, nil
}
