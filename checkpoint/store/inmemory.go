package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/izukaai/izuka/checkpoint"
	errorskg "github.com/izukaai/izuka/errors"
	"github.com/izukaai/izuka/message"
)

// InMemoryStore implements checkpoint.Store using in-process storage
type InMemoryStore struct {
	records map[string]*checkpoint.Record
	mu      sync.RWMutex
}

// NewInMemoryStore creates a new in-memory checkpoint store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*checkpoint.Record),
	}
}

// Save upserts the record for its thread
func (s *InMemoryStore) Save(ctx context.Context, rec *checkpoint.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ThreadID == "" {
		return fmt.Errorf("thread ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	stored := &checkpoint.Record{
		ThreadID:    rec.ThreadID,
		Messages:    message.CloneMessages(rec.Messages),
		PendingNode: rec.PendingNode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prev, ok := s.records[rec.ThreadID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	s.records[rec.ThreadID] = stored
	return nil
}

// Load returns the record for the thread
func (s *InMemoryStore) Load(ctx context.Context, threadID string) (*checkpoint.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[threadID]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
	}
	return copyRecord(rec), nil
}

// Delete removes the thread's record
func (s *InMemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[threadID]; !ok {
		return fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
	}
	delete(s.records, threadID)
	return nil
}

// List returns all records, most recently updated first
func (s *InMemoryStore) List(ctx context.Context) ([]*checkpoint.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*checkpoint.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, copyRecord(rec))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

// Exists reports whether a record is stored for the thread
func (s *InMemoryStore) Exists(ctx context.Context, threadID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[threadID]
	return ok, nil
}

func copyRecord(rec *checkpoint.Record) *checkpoint.Record {
	return &checkpoint.Record{
		ThreadID:    rec.ThreadID,
		Messages:    message.CloneMessages(rec.Messages),
		PendingNode: rec.PendingNode,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}
