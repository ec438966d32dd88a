// Package config loads process settings from the environment and validates
// them with typed errors before anything starts running.
package config

import (
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Checkpoint backend names selected by the configured connection settings.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
	BackendInMemory = "inmemory"
)

const defaultAddr = ":8080"

// Settings is the declared configuration surface. Vector and S3 settings are
// declared but not consumed by any component; they document the deployment
// contour the service expects around it.
type Settings struct {
	// LLM backend (OpenAI-compatible).
	LLMEndpoint string
	LLMToken    string

	// Web search tool.
	SearchAPIKey string

	// Checkpoint stores.
	SQLDBURL  string
	MongoURL  string
	RedisAddr string

	// Declared-only.
	VectorURL   string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	// Facade listen address.
	Addr string
}

// Load reads settings from the environment, with a .env file applied first
// when present. Missing .env is not an error.
func Load() *Settings {
	_ = godotenv.Load()

	s := &Settings{
		LLMEndpoint:  os.Getenv("LLM_ENDPOINT"),
		LLMToken:     os.Getenv("LLM_TOKEN"),
		SearchAPIKey: os.Getenv("SEARCH_API_KEY"),
		SQLDBURL:     os.Getenv("SQL_DB_URL"),
		MongoURL:     os.Getenv("MONGO_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		VectorURL:    os.Getenv("VECTOR_URL"),
		S3Endpoint:   os.Getenv("S3_ENDPOINT"),
		S3AccessKey:  os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:  os.Getenv("S3_SECRET_KEY"),
		Addr:         os.Getenv("IZUKA_ADDR"),
	}
	if s.Addr == "" {
		s.Addr = defaultAddr
	}
	return s
}

// ValidateServe checks the settings consumed by the facade server. Numeric
// ports are range-checked; named ports pass through to the listener.
func (s *Settings) ValidateServe() error {
	v := NewValidator()
	v.RequireNonEmpty("IZUKA_ADDR", s.Addr)
	if _, portStr, err := net.SplitHostPort(s.Addr); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil {
			v.ValidatePort("IZUKA_ADDR", port)
		}
	}
	return v.Error()
}

// ValidateAgent checks the settings consumed by an agent run: the model
// backend credentials and the search tool key.
func (s *Settings) ValidateAgent() error {
	v := NewValidator()
	v.RequireNonEmpty("LLM_ENDPOINT", s.LLMEndpoint)
	v.RequireNonEmpty("LLM_TOKEN", s.LLMToken)
	v.RequireNonEmpty("SEARCH_API_KEY", s.SearchAPIKey)
	return v.Error()
}

// CheckpointBackend selects the checkpoint store implied by the configured
// connection settings. SQL wins over Mongo, Mongo over Redis; with none
// configured checkpoints stay in memory.
func (s *Settings) CheckpointBackend() string {
	switch {
	case s.SQLDBURL != "":
		return BackendPostgres
	case s.MongoURL != "":
		return BackendMongo
	case s.RedisAddr != "":
		return BackendRedis
	default:
		return BackendInMemory
	}
}
