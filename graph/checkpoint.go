package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	errorskg "github.com/izukaai/izuka/errors"
)

// ErrInterrupted marks executions paused ahead of an interrupt-before node.
var ErrInterrupted = errors.New("graph execution interrupted")

// InterruptError reports which node the execution paused before.
// It matches ErrInterrupted under errors.Is.
type InterruptError struct {
	Node string
}

func (e *InterruptError) Error() string {
	return fmt.Sprintf("graph execution interrupted before node %s", e.Node)
}

func (e *InterruptError) Unwrap() error {
	return ErrInterrupted
}

// Checkpoint captures a thread's state between steps together with the node
// scheduled to run next. Next is End once the walk finished.
type Checkpoint struct {
	State State
	Next  string
}

// Checkpointer persists checkpoints keyed by thread ID.
type Checkpointer interface {
	Save(ctx context.Context, threadID string, cp *Checkpoint) error
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
}

// MemorySaver is an in-process Checkpointer for tests and single-process use.
type MemorySaver struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
}

// NewMemorySaver creates an empty MemorySaver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{
		checkpoints: make(map[string]*Checkpoint),
	}
}

// Save stores a copy of the checkpoint under the thread ID.
func (m *MemorySaver) Save(ctx context.Context, threadID string, cp *Checkpoint) error {
	if threadID == "" {
		return fmt.Errorf("thread ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[threadID] = &Checkpoint{State: cp.State.Clone(), Next: cp.Next}
	return nil
}

// Load returns the latest checkpoint for the thread.
func (m *MemorySaver) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, errorskg.ErrNotFound)
	}
	return &Checkpoint{State: cp.State.Clone(), Next: cp.Next}, nil
}
