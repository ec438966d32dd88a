package checkpoint

import (
	"context"
	"time"

	"github.com/izukaai/izuka/message"
)

// Record is the durable form of a thread checkpoint: the conversation
// transcript so far plus the node scheduled to run next.
type Record struct {
	ThreadID    string             `json:"thread_id"`
	Messages    []*message.Message `json:"messages"`
	PendingNode string             `json:"pending_node"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Store persists checkpoint records keyed by thread ID.
type Store interface {
	// Save upserts the record for its thread.
	Save(ctx context.Context, rec *Record) error
	// Load returns the record for the thread, or ErrNotFound.
	Load(ctx context.Context, threadID string) (*Record, error)
	// Delete removes the thread's record, or ErrNotFound.
	Delete(ctx context.Context, threadID string) error
	// List returns all records, most recently updated first.
	List(ctx context.Context) ([]*Record, error)
	// Exists reports whether a record is stored for the thread.
	Exists(ctx context.Context, threadID string) (bool, error)
}
