package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"otto/internal/ports"
)

const maxFetchBytes = 2 * 1024 * 1024

type webFetch struct {
	client *http.Client
}

// NewWebFetch fetches a page and reduces it to readable text with goquery.
func NewWebFetch(cfg Config) ports.Tool {
	return &webFetch{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

func (t *webFetch) Describe() ports.ToolDescriptor {
	return ports.ToolDescriptor{
		Name:        "web_fetch",
		Description: "Fetch a web page and extract its readable text",
		Params: map[string]ports.ToolParam{
			"url": {Type: "string", Description: "HTTP or HTTPS URL to fetch", Required: true},
		},
		SideEffect: ports.SideEffectReadOnly,
		Idempotent: true,
		MaxTimeout: 45 * time.Second,
	}
}

func (t *webFetch) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	rawURL, _ := call.Params["url"].(string)
	if rawURL == "" {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "missing 'url'"}, nil
	}
	parsed, err := neturl.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: "url must be http or https"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
	}
	req.Header.Set("User-Agent", "otto/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("fetch failed: %v", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ports.ToolResult{
			CallID:  call.ID,
			Success: false,
			Error:   fmt.Sprintf("fetch returned status %d", resp.StatusCode),
		}, nil
	}

	body := io.LimitReader(resp.Body, maxFetchBytes)
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return &ports.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}, nil
		}
		return &ports.ToolResult{
			CallID:   call.ID,
			Success:  true,
			Output:   string(raw),
			Metadata: map[string]any{"url": rawURL, "content_type": contentType},
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("parse html: %v", err)}, nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := extractText(doc)

	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	b.WriteString(text)

	return &ports.ToolResult{
		CallID:   call.ID,
		Success:  true,
		Output:   strings.TrimSpace(b.String()),
		Metadata: map[string]any{"url": rawURL, "title": title, "content_type": contentType},
	}, nil
}

// extractText pulls headings, paragraphs, and list items in document order,
// skipping script and style noise.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, noscript").Remove()

	var parts []string
	doc.Find("h1, h2, h3, h4, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			text = "# " + text
		case "h2":
			text = "## " + text
		case "h3":
			text = "### " + text
		case "h4":
			text = "#### " + text
		case "li":
			text = "- " + text
		}
		parts = append(parts, text)
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Find("body").Text())
	}
	return strings.Join(parts, "\n")
}
