// Package server implements an OpenAI-compatible chat-completion facade. It
// serves a fixed model listing and deterministic template-generated replies;
// no real inference happens behind it.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errorskg "github.com/izukaai/izuka/errors"
	"github.com/izukaai/izuka/pkg/logging"
	"github.com/izukaai/izuka/pkg/telemetry"
)

const tracerName = "github.com/izukaai/izuka/server"

const maxRequestBodySize = 1 << 20 // 1MB

// supportedModels is the fixed set accepted by the completion endpoint and
// returned by the model listing.
var supportedModels = []string{"gpt-3.5-turbo", "gpt-4", "custom-local-model"}

// Server hosts the facade endpoints.
type Server struct {
	server    *http.Server
	router    chi.Router
	generator *Generator
	logger    *slog.Logger
	tracer    trace.Tracer

	// created is captured once so the model listing stays constant for the
	// lifetime of the process.
	created int64
}

// New builds a facade server listening on addr.
func New(addr string) *Server {
	s := &Server{
		generator: NewGenerator(),
		logger:    logging.WithComponent("server"),
		tracer:    otel.Tracer(tracerName),
		created:   time.Now().Unix(),
	}

	r := chi.NewRouter()
	r.Use(s.observe)
	r.Get("/v1/models", s.handleListModels)
	r.Post("/v1/chat/completions", s.handleChatCompletion)
	r.Get("/model", s.handleModelRedirect)
	r.Get("/v1/model", s.handleModelRedirect)
	s.router = r

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info("facade listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// observe opens one span per request and records the outcome.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), "server.request",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		var err error
		if rec.status >= http.StatusInternalServerError {
			err = fmt.Errorf("http %d", rec.status)
		}
		telemetry.End(span, err)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := make([]ModelInfo, 0, len(supportedModels))
	for _, id := range supportedModels {
		models = append(models, ModelInfo{
			ID:      id,
			Object:  "model",
			Created: s.created,
			OwnedBy: "local-api",
		})
	}
	s.writeJSON(w, http.StatusOK, ModelList{Object: "list", Data: models})
}

func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err), "invalid_request_error")
		return
	}

	if err := validateModel(req.Model); err != nil {
		s.logger.Warn("rejected completion request", "error", err)
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Model '%s' not found.", req.Model), "invalid_request_error")
		return
	}

	req.applyDefaults()

	reply, err := s.generator.Reply(req.Messages)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Reply generation failed: %v", err), "internal_error")
		return
	}

	resp := ChatCompletionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: reply},
			FinishReason: "stop",
		}},
		Usage: CountUsage(req.Messages, reply),
	}

	s.logger.Debug("generated completion",
		"id", resp.ID,
		"model", resp.Model,
		"content", reply,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModelRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/v1/models", http.StatusTemporaryRedirect)
}

func validateModel(model string) error {
	for _, id := range supportedModels {
		if model == id {
			return nil
		}
	}
	return fmt.Errorf("model %q: %w", model, errorskg.ErrUnsupportedModel)
}

// completionID mirrors the upstream identifier shape: "chatcmpl-" plus
// 32 hex characters.
func completionID() string {
	u := uuid.New()
	return "chatcmpl-" + hex.EncodeToString(u[:])
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message, errType string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: ErrorDetail{
		Message: message,
		Type:    errType,
	}})
}
