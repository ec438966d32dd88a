package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/izukaai/izuka/tool"
)

const defaultSearchEndpoint = "https://api.tavily.com/search"

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	HTTPClient *http.Client
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// NewSearchTool builds a tool that queries a Tavily-style search API and
// renders the hits as a numbered list.
func NewSearchTool(cfg *SearchConfig) *tool.Tool {
	if cfg == nil {
		cfg = &SearchConfig{}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultSearchEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &tool.Tool{
		Name:        "web_search",
		Description: "Searches the web and returns the most relevant results for a query.",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: "The search query", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("query cannot be empty")
			}
			return runSearch(ctx, cfg, query)
		},
	}
}

func runSearch(ctx context.Context, cfg *SearchConfig, query string) (string, error) {
	payload, err := json.Marshal(searchRequest{
		APIKey:     cfg.APIKey,
		Query:      query,
		MaxResults: cfg.MaxResults,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal search response: %w", err)
	}

	if len(parsed.Results) == 0 {
		return "No results found.", nil
	}

	var out strings.Builder
	for i, result := range parsed.Results {
		if i > 0 {
			out.WriteString("\n\n")
		}
		fmt.Fprintf(&out, "%d. %s\n%s\n%s", i+1, result.Title, result.URL, strings.TrimSpace(result.Content))
	}
	return out.String(), nil
}
