package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/izukaai/izuka/checkpoint"
	errorskg "github.com/izukaai/izuka/errors"
	"github.com/izukaai/izuka/message"
	_ "github.com/lib/pq"
)

// PostgresStore implements checkpoint.Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration. When URL is set
// it is used as the DSN directly and the individual fields are ignored.
type PostgresConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "izuka",
		SSLMode:  "disable",
	}
}

func (c *PostgresConfig) dsn() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewPostgresStore creates a new PostgreSQL-based checkpoint store
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}

	if err := store.createTable(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return store, nil
}

// createTable creates the checkpoints table if it doesn't exist
func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id VARCHAR(255) PRIMARY KEY,
		messages JSONB NOT NULL,
		pending_node VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_updated_at ON checkpoints(updated_at);
	`

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save upserts the record for its thread
func (s *PostgresStore) Save(ctx context.Context, rec *checkpoint.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ThreadID == "" {
		return fmt.Errorf("thread ID cannot be empty")
	}

	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	now := time.Now()
	query := `
	INSERT INTO checkpoints (thread_id, messages, pending_node, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (thread_id) DO UPDATE SET
		messages = EXCLUDED.messages,
		pending_node = EXCLUDED.pending_node,
		updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ThreadID,
		string(messagesJSON),
		rec.PendingNode,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint to PostgreSQL: %w", err)
	}

	return nil
}

// Load returns the record for the thread
func (s *PostgresStore) Load(ctx context.Context, threadID string) (*checkpoint.Record, error) {
	rec := &checkpoint.Record{}
	var messagesJSON string

	query := `SELECT thread_id, messages, pending_node, created_at, updated_at FROM checkpoints WHERE thread_id = $1`
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&rec.ThreadID, &messagesJSON, &rec.PendingNode, &rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return rec, nil
}

// Delete removes the thread's record
func (s *PostgresStore) Delete(ctx context.Context, threadID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = $1", threadID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("checkpoint %s: %w", threadID, errorskg.ErrNotFound)
	}
	return nil
}

// List returns all records, most recently updated first
func (s *PostgresStore) List(ctx context.Context) ([]*checkpoint.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, messages, pending_node, created_at, updated_at
		 FROM checkpoints
		 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	records := make([]*checkpoint.Record, 0)
	for rows.Next() {
		rec := &checkpoint.Record{}
		var messagesJSON string

		if err := rows.Scan(&rec.ThreadID, &messagesJSON, &rec.PendingNode, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}

		rec.Messages = make([]*message.Message, 0)
		if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}

		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}

	return records, nil
}

// Exists reports whether a record is stored for the thread
func (s *PostgresStore) Exists(ctx context.Context, threadID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM checkpoints WHERE thread_id = $1)", threadID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	return exists, nil
}

// Close closes the PostgreSQL connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks if PostgreSQL connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
