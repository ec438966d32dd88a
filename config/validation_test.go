package config

import (
	"strings"
	"testing"
)

func TestValidatorRequireNonEmpty(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{"non-empty value", "valid", false},
		{"empty value", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequireNonEmpty("test_field", tt.value)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorRequirePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"zero value", 0, true},
		{"negative value", -5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequirePositive("test_field", tt.value)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorValidateRange(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"value in range", 50, false},
		{"value below minimum", -1, true},
		{"value above maximum", 101, true},
		{"value at minimum boundary", 0, false},
		{"value at maximum boundary", 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.ValidateRange("test_field", tt.value, 0, 100)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorValidateFloatRange(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		wantError bool
	}{
		{"value in range", 0.7, false},
		{"value at lower boundary", 0.0, false},
		{"value below minimum", -0.1, true},
		{"value above maximum", 2.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.ValidateFloatRange("test_field", tt.value, 0.0, 2.0)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorValidatePort(t *testing.T) {
	tests := []struct {
		name      string
		port      int
		wantError bool
	}{
		{"valid port", 8080, false},
		{"minimum valid port", 1, false},
		{"maximum valid port", 65535, false},
		{"port too low", 0, true},
		{"port too high", 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.ValidatePort("port", tt.port)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorValidateDBNumber(t *testing.T) {
	tests := []struct {
		name      string
		db        int
		wantError bool
	}{
		{"valid db number", 5, false},
		{"minimum valid db", 0, false},
		{"maximum valid db", 15, false},
		{"db too high", 16, true},
		{"negative db", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.ValidateDBNumber("db", tt.db)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorValidateOneOf(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		allowed   []string
		wantError bool
	}{
		{"value is allowed", "disable", []string{"disable", "require"}, false},
		{"value not allowed", "invalid", []string{"disable", "require"}, true},
		{"empty allowed list", "any", []string{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.ValidateOneOf("field", tt.value, tt.allowed...)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidateProviderBackend(t *testing.T) {
	allowed := []string{"openai", "claude", "gemini"}
	for _, backend := range allowed {
		if err := ValidateProviderBackend(backend, allowed...); err != nil {
			t.Errorf("ValidateProviderBackend(%q) = %v, want nil", backend, err)
		}
	}
	if err := ValidateProviderBackend("ollama", allowed...); err == nil {
		t.Error("ValidateProviderBackend(\"ollama\") = nil, want error")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError{Field: "LLM_TOKEN", Message: "value cannot be empty"}
	want := `config validation failed for field "LLM_TOKEN": value cannot be empty`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidatorMultipleErrors(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("field1", "")
	v.RequirePositive("field2", 0)
	v.ValidatePort("field3", 99999)

	if !v.HasErrors() {
		t.Fatalf("HasErrors() = false, want true")
	}

	errs := v.Errors()
	if len(errs) != 3 {
		t.Errorf("Errors() count = %d, want 3", len(errs))
	}

	err := v.Error()
	if err == nil {
		t.Fatalf("Error() = nil, want non-nil error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "configuration validation failed:\n") {
		t.Errorf("Error() missing header: %q", msg)
	}
	for _, field := range []string{"field1", "field2", "field3"} {
		if !strings.Contains(msg, "  - "+field+": ") {
			t.Errorf("Error() missing entry for %s: %q", field, msg)
		}
	}
}

func TestValidatorNoErrors(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("field", "ok").RequirePositive("count", 1)

	if v.HasErrors() {
		t.Errorf("HasErrors() = true, want false")
	}
	if err := v.Error(); err != nil {
		t.Errorf("Error() = %v, want nil", err)
	}
}

func TestValidateRedisConfig(t *testing.T) {
	tests := []struct {
		name      string
		addr      string
		db        int
		prefix    string
		wantError bool
	}{
		{"valid config", "localhost:6379", 0, "izuka:checkpoint:", false},
		{"missing addr", "", 0, "izuka:checkpoint:", true},
		{"invalid db number", "localhost:6379", 16, "izuka:checkpoint:", true},
		{"missing prefix", "localhost:6379", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRedisConfig(tt.addr, tt.db, tt.prefix)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateRedisConfig() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateMongoConfig(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		database   string
		collection string
		wantError  bool
	}{
		{"valid config", "mongodb://localhost:27017", "izuka", "checkpoints", false},
		{"missing uri", "", "izuka", "checkpoints", true},
		{"missing database", "mongodb://localhost:27017", "", "checkpoints", true},
		{"missing collection", "mongodb://localhost:27017", "izuka", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMongoConfig(tt.uri, tt.database, tt.collection)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateMongoConfig() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateLLMConfig(t *testing.T) {
	tests := []struct {
		name        string
		model       string
		temperature float64
		maxTokens   int
		wantError   bool
	}{
		{"valid config", "gpt-4o", 0.0, 2000, false},
		{"missing model", "", 0.7, 2000, true},
		{"temperature too high", "gpt-4o", 2.5, 2000, true},
		{"non-positive max tokens", "gpt-4o", 0.7, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLLMConfig(tt.model, tt.temperature, tt.maxTokens)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateLLMConfig() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateRateLimiterConfig(t *testing.T) {
	if err := ValidateRateLimiterConfig(100); err != nil {
		t.Errorf("ValidateRateLimiterConfig(100) = %v, want nil", err)
	}
	if err := ValidateRateLimiterConfig(0); err == nil {
		t.Errorf("ValidateRateLimiterConfig(0) = nil, want error")
	}
}
