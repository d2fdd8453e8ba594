// Package webfetch fetches a URL and extracts readable text from the
// response so it can be fed to a language model as context.
package webfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const maxBodyBytes = 2 << 20 // 2 MiB

type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch downloads the URL and returns its readable text. HTML is
// stripped down to visible text, PDF is extracted page by page,
// anything else is treated as plain text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "personaforge/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/pdf"):
		return extractPDF(body)
	case strings.Contains(contentType, "text/html"), looksLikeHTML(body):
		return extractHTML(body), nil
	default:
		return strings.TrimSpace(string(body)), nil
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	return strings.TrimSpace(buf.String()), nil
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

// extractHTML strips markup and collapses whitespace. Script and
// style bodies are dropped entirely.
func extractHTML(body []byte) string {
	text := dropElement(string(body), "script")
	text = dropElement(text, "style")

	var result strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			result.WriteRune(' ')
		case !inTag:
			result.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(result.String()), " ")
}

func dropElement(s, name string) string {
	lower := strings.ToLower(s)
	open := "<" + name
	close := "</" + name + ">"

	var buf strings.Builder
	for {
		start := strings.Index(lower, open)
		if start < 0 {
			buf.WriteString(s)
			return buf.String()
		}
		end := strings.Index(lower[start:], close)
		if end < 0 {
			buf.WriteString(s[:start])
			return buf.String()
		}
		buf.WriteString(s[:start])
		cut := start + end + len(close)
		s = s[cut:]
		lower = lower[cut:]
	}
}
