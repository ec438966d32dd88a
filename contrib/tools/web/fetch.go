package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/izukaai/izuka/tool"
)

const maxPageBytes = 2 << 20

// FetchConfig configures the fetch_page tool.
type FetchConfig struct {
	HTTPClient *http.Client
	MaxChars   int
}

// NewFetchPageTool builds a tool that downloads a page and extracts its
// readable content, keeping headings, paragraphs, lists, code and tables.
func NewFetchPageTool(cfg *FetchConfig) *tool.Tool {
	if cfg == nil {
		cfg = &FetchConfig{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 8000
	}

	return &tool.Tool{
		Name:        "fetch_page",
		Description: "Fetches a web page and returns its readable text content.",
		Parameters: []tool.Parameter{
			{Name: "url", Type: "string", Description: "The URL to fetch", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			url, _ := args["url"].(string)
			if strings.TrimSpace(url) == "" {
				return "", fmt.Errorf("url cannot be empty")
			}
			return fetchPage(ctx, cfg, url)
		},
	}
}

func fetchPage(ctx context.Context, cfg *FetchConfig, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch error (status %d) for %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	text := extractText(doc)
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", url)
	}
	if len(text) > cfg.MaxChars {
		text = text[:cfg.MaxChars]
	}
	return text, nil
}

// extractText keeps headings and paragraphs, rendering lists, code blocks
// and tables in a plain-text form the model can quote from.
func extractText(doc *goquery.Document) string {
	doc.Find("script,style,noscript").Remove()

	var out []string
	doc.Find("h1,h2,h3,h4,p,li,pre,table").Each(func(i int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+strings.TrimSpace(s.Text()))
		case "h2":
			out = append(out, "## "+strings.TrimSpace(s.Text()))
		case "h3":
			out = append(out, "### "+strings.TrimSpace(s.Text()))
		case "h4":
			out = append(out, "#### "+strings.TrimSpace(s.Text()))
		case "p":
			if t := strings.TrimSpace(s.Text()); t != "" {
				out = append(out, t)
			}
		case "li":
			out = append(out, "- "+strings.TrimSpace(s.Text()))
		case "pre":
			out = append(out, "```\n"+strings.TrimSpace(s.Text())+"\n```")
		case "table":
			if t := renderTable(s); t != "" {
				out = append(out, t)
			}
		}
	})
	return strings.Join(out, "\n\n")
}

func renderTable(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(j int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}
