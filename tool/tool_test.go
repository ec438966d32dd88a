package tool

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestToolExecution(t *testing.T) {
	ctx := context.Background()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: []Parameter{
			{Name: "input", Type: "string", Description: "Test input", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return args["input"].(string) + "_processed", nil
		},
	}

	result, err := tool.Execute(ctx, map[string]interface{}{"input": "test"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result != "test_processed" {
		t.Errorf("Expected 'test_processed', got '%s'", result)
	}
}

func TestToolValidation(t *testing.T) {
	ctx := context.Background()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: []Parameter{
			{Name: "required_param", Type: "string", Description: "Required parameter", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "ok", nil
		},
	}

	// Test with missing required parameter
	_, err := tool.Execute(ctx, map[string]interface{}{})
	if err == nil {
		t.Error("Expected error for missing required parameter, got nil")
	}

	// Test with required parameter
	_, err = tool.Execute(ctx, map[string]interface{}{"required_param": "value"})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestValidateArgsTypeChecks(t *testing.T) {
	tool := &Tool{
		Name: "typed_tool",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Required: true},
			{Name: "limit", Type: "integer"},
			{Name: "strict", Type: "boolean"},
			{Name: "filters", Type: "object"},
			{Name: "tags", Type: "array"},
		},
	}

	valid := map[string]interface{}{
		"query":   "golang",
		"limit":   float64(5),
		"strict":  true,
		"filters": map[string]interface{}{"lang": "en"},
		"tags":    []interface{}{"a", "b"},
	}
	if err := tool.ValidateArgs(valid); err != nil {
		t.Fatalf("Expected valid args to pass, got %v", err)
	}

	badCases := []map[string]interface{}{
		{"query": 42},
		{"query": "ok", "limit": "five"},
		{"query": "ok", "strict": "yes"},
		{"query": "ok", "filters": []interface{}{"x"}},
		{"query": "ok", "tags": map[string]interface{}{}},
	}
	for i, args := range badCases {
		if err := tool.ValidateArgs(args); err == nil {
			t.Errorf("Case %d: expected type error for args %v", i, args)
		}
	}
}

func TestValidateArgsEnum(t *testing.T) {
	tool := &Tool{
		Name: "enum_tool",
		Parameters: []Parameter{
			{Name: "mode", Type: "string", Required: true, Enum: []string{"fast", "thorough"}},
		},
	}

	if err := tool.ValidateArgs(map[string]interface{}{"mode": "fast"}); err != nil {
		t.Errorf("Expected enum member to pass, got %v", err)
	}
	if err := tool.ValidateArgs(map[string]interface{}{"mode": "lazy"}); err == nil {
		t.Error("Expected error for value outside enum")
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	tool1 := &Tool{Name: "tool1", Description: "First tool"}
	tool2 := &Tool{Name: "tool2", Description: "Second tool"}

	// Register tools
	if err := registry.Register(tool1); err != nil {
		t.Fatalf("Failed to register tool1: %v", err)
	}

	if err := registry.Register(tool2); err != nil {
		t.Fatalf("Failed to register tool2: %v", err)
	}

	// Test duplicate registration
	if err := registry.Register(tool1); err == nil {
		t.Error("Expected error for duplicate registration, got nil")
	}

	// Test Get
	retrieved, err := registry.Get("tool1")
	if err != nil {
		t.Fatalf("Failed to get tool1: %v", err)
	}

	if retrieved.Name != "tool1" {
		t.Errorf("Expected tool name 'tool1', got '%s'", retrieved.Name)
	}

	// Test List
	tools := registry.List()
	if len(tools) != 2 {
		t.Errorf("Expected 2 tools, got %d", len(tools))
	}
}

func TestBatchPreservesOrder(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&Tool{
		Name: "echo",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return args["text"].(string), nil
		},
	}); err != nil {
		t.Fatalf("Failed to register echo: %v", err)
	}

	batch := NewBatch(registry, 4)
	calls := make([]Invocation, 8)
	for i := range calls {
		calls[i] = Invocation{
			ID:   fmt.Sprintf("call-%d", i),
			Name: "echo",
			Args: map[string]interface{}{"text": fmt.Sprintf("out-%d", i)},
		}
	}

	outcomes := batch.Run(context.Background(), calls)
	if len(outcomes) != len(calls) {
		t.Fatalf("Expected %d outcomes, got %d", len(calls), len(outcomes))
	}
	for i, outcome := range outcomes {
		if outcome.ID != calls[i].ID {
			t.Errorf("Outcome %d has ID %s, expected %s", i, outcome.ID, calls[i].ID)
		}
		if outcome.Output != fmt.Sprintf("out-%d", i) {
			t.Errorf("Outcome %d has output %q", i, outcome.Output)
		}
	}
}

func TestBatchIsolatesFailures(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&Tool{
		Name: "flaky",
		Parameters: []Parameter{
			{Name: "fail", Type: "boolean", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if args["fail"].(bool) {
				return "", fmt.Errorf("boom")
			}
			return "ok", nil
		},
	}); err != nil {
		t.Fatalf("Failed to register flaky: %v", err)
	}

	batch := NewBatch(registry, 2)
	outcomes := batch.Run(context.Background(), []Invocation{
		{ID: "a", Name: "flaky", Args: map[string]interface{}{"fail": false}},
		{ID: "b", Name: "flaky", Args: map[string]interface{}{"fail": true}},
		{ID: "c", Name: "flaky", Args: map[string]interface{}{"fail": false}},
	})

	if outcomes[0].Err != nil || outcomes[0].Output != "ok" {
		t.Errorf("Outcome a should succeed, got %+v", outcomes[0])
	}
	if outcomes[1].Err == nil {
		t.Error("Outcome b should carry the failure")
	}
	if outcomes[1].ID != "b" {
		t.Errorf("Failure attributed to %s, expected b", outcomes[1].ID)
	}
	if outcomes[2].Err != nil || outcomes[2].Output != "ok" {
		t.Errorf("Outcome c should succeed, got %+v", outcomes[2])
	}
}

func TestBatchRecoversPanics(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&Tool{
		Name: "panicky",
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			panic("unexpected")
		},
	}); err != nil {
		t.Fatalf("Failed to register panicky: %v", err)
	}

	batch := NewBatch(registry, 1)
	outcomes := batch.Run(context.Background(), []Invocation{
		{ID: "p1", Name: "panicky", Args: map[string]interface{}{}},
	})

	if outcomes[0].Err == nil {
		t.Fatal("Expected error from recovered panic")
	}
	if !strings.Contains(outcomes[0].Err.Error(), "panic in tool panicky") {
		t.Errorf("Unexpected panic error: %v", outcomes[0].Err)
	}
}
