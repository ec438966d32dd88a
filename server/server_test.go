package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	errorskg "github.com/izukaai/izuka/errors"
)

func postCompletion(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeCompletion(t *testing.T, rec *httptest.ResponseRecorder) ChatCompletionResponse {
	t.Helper()
	var resp ChatCompletionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestListModels(t *testing.T) {
	srv := New(":0")

	var listings []ModelList
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var list ModelList
		if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
			t.Fatalf("failed to decode model list: %v", err)
		}
		listings = append(listings, list)
	}

	list := listings[0]
	if list.Object != "list" {
		t.Errorf("expected object 'list', got %q", list.Object)
	}
	if len(list.Data) != 3 {
		t.Fatalf("expected exactly 3 models, got %d", len(list.Data))
	}

	wantIDs := []string{"gpt-3.5-turbo", "gpt-4", "custom-local-model"}
	for i, want := range wantIDs {
		got := list.Data[i]
		if got.ID != want {
			t.Errorf("model %d: expected id %q, got %q", i, want, got.ID)
		}
		if got.Object != "model" {
			t.Errorf("model %d: expected object 'model', got %q", i, got.Object)
		}
		if got.OwnedBy != "local-api" {
			t.Errorf("model %d: expected owned_by 'local-api', got %q", i, got.OwnedBy)
		}
		if got.Created == 0 {
			t.Errorf("model %d: expected non-zero created timestamp", i)
		}
	}

	// The listing is fixed for the process lifetime.
	for i, m := range listings[1].Data {
		if m != list.Data[i] {
			t.Errorf("model %d changed between requests: %+v vs %+v", i, list.Data[i], m)
		}
	}
}

func TestChatCompletionEchoesLastUserMessage(t *testing.T) {
	srv := New(":0")

	body := `{
		"model": "gpt-4",
		"messages": [
			{"role": "system", "content": "You are terse."},
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
			{"role": "user", "content": "what time is it?"}
		]
	}`
	rec := postCompletion(t, srv, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeCompletion(t, rec)
	if resp.Object != "chat.completion" {
		t.Errorf("expected object 'chat.completion', got %q", resp.Object)
	}
	if resp.Model != "gpt-4" {
		t.Errorf("expected echoed model 'gpt-4', got %q", resp.Model)
	}
	if resp.Created == 0 {
		t.Errorf("expected non-zero created timestamp")
	}
	if !regexp.MustCompile(`^chatcmpl-[0-9a-f]{32}$`).MatchString(resp.ID) {
		t.Errorf("expected id like chatcmpl-<32 hex>, got %q", resp.ID)
	}

	if len(resp.Choices) != 1 {
		t.Fatalf("expected exactly 1 choice, got %d", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Index != 0 {
		t.Errorf("expected choice index 0, got %d", choice.Index)
	}
	if choice.FinishReason != "stop" {
		t.Errorf("expected finish_reason 'stop', got %q", choice.FinishReason)
	}
	if choice.Message.Role != "assistant" {
		t.Errorf("expected assistant role, got %q", choice.Message.Role)
	}

	want := "This is a simulated reply to your question: 'what time is it?'."
	if choice.Message.Content != want {
		t.Errorf("expected reply %q, got %q", want, choice.Message.Content)
	}
}

func TestChatCompletionGreetsWithoutUserMessage(t *testing.T) {
	srv := New(":0")

	cases := []struct {
		name string
		body string
	}{
		{"only other roles", `{"model":"gpt-3.5-turbo","messages":[{"role":"system","content":"be nice"},{"role":"assistant","content":"ok"}]}`},
		{"empty message list", `{"model":"gpt-3.5-turbo","messages":[]}`},
		{"empty user content", `{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":""}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postCompletion(t, srv, tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}
			resp := decodeCompletion(t, rec)
			if len(resp.Choices) != 1 {
				t.Fatalf("expected exactly 1 choice, got %d", len(resp.Choices))
			}
			if got := resp.Choices[0].Message.Content; got != "Hello! How can I help you today?" {
				t.Errorf("expected greeting, got %q", got)
			}
		})
	}
}

func TestChatCompletionRejectsUnknownModel(t *testing.T) {
	srv := New(":0")

	rec := postCompletion(t, srv, `{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if _, ok := body["choices"]; ok {
		t.Errorf("error response must not carry a completion body")
	}

	var envelope ErrorResponse
	if err := json.Unmarshal(body["error"], &envelope.Error); err != nil {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	if envelope.Error.Message != "Model 'gpt-5' not found." {
		t.Errorf("expected message naming the model, got %q", envelope.Error.Message)
	}
	if envelope.Error.Type != "invalid_request_error" {
		t.Errorf("expected type 'invalid_request_error', got %q", envelope.Error.Type)
	}
}

func TestValidateModel(t *testing.T) {
	for _, id := range supportedModels {
		if err := validateModel(id); err != nil {
			t.Errorf("validateModel(%q) = %v, want nil", id, err)
		}
	}
	if err := validateModel("gpt-5"); !errors.Is(err, errorskg.ErrUnsupportedModel) {
		t.Errorf("validateModel(\"gpt-5\") = %v, want ErrUnsupportedModel", err)
	}
}

func TestChatCompletionUsageCountsRunes(t *testing.T) {
	srv := New(":0")

	// Multi-byte content: counters must count characters, not bytes.
	userContent := "héllo 世界"
	body := `{"model":"custom-local-model","messages":[{"role":"system","content":"sys"},{"role":"user","content":"` + userContent + `"}]}`
	rec := postCompletion(t, srv, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeCompletion(t, rec)
	wantPrompt := utf8.RuneCountInString("sys") + utf8.RuneCountInString(userContent)
	if resp.Usage.PromptTokens != wantPrompt {
		t.Errorf("expected prompt_tokens %d, got %d", wantPrompt, resp.Usage.PromptTokens)
	}

	wantCompletion := utf8.RuneCountInString(resp.Choices[0].Message.Content)
	if resp.Usage.CompletionTokens != wantCompletion {
		t.Errorf("expected completion_tokens %d, got %d", wantCompletion, resp.Usage.CompletionTokens)
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Errorf("expected total %d, got %d",
			resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}
}

func TestChatCompletionInvalidJSON(t *testing.T) {
	srv := New(":0")

	rec := postCompletion(t, srv, `{"model": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid JSON") {
		t.Errorf("expected invalid JSON error, got %s", rec.Body.String())
	}
}

func TestModelRedirect(t *testing.T) {
	srv := New(":0")

	for _, path := range []string{"/model", "/v1/model"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusTemporaryRedirect {
			t.Errorf("%s: expected status 307, got %d", path, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "/v1/models" {
			t.Errorf("%s: expected redirect to /v1/models, got %q", path, loc)
		}
	}
}

func TestRequestDefaults(t *testing.T) {
	req := ChatCompletionRequest{Model: "gpt-4"}
	req.applyDefaults()
	if req.Temperature == nil || *req.Temperature != 0.7 {
		t.Errorf("expected default temperature 0.7, got %v", req.Temperature)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 1024 {
		t.Errorf("expected default max_tokens 1024, got %v", req.MaxTokens)
	}

	temp := 0.1
	tokens := 5
	req = ChatCompletionRequest{Model: "gpt-4", Temperature: &temp, MaxTokens: &tokens}
	req.applyDefaults()
	if *req.Temperature != 0.1 || *req.MaxTokens != 5 {
		t.Errorf("explicit parameters must be preserved, got %v/%v", *req.Temperature, *req.MaxTokens)
	}
}

func TestGeneratorPicksLastUserMessage(t *testing.T) {
	g := NewGenerator()

	reply, err := g.Reply([]ChatMessage{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "ack"},
		{Role: "user", Content: "second"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "This is a simulated reply to your question: 'second'."; reply != want {
		t.Errorf("expected %q, got %q", want, reply)
	}
}
