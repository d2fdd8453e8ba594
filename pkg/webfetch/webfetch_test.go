package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
  <title>Acme</title>
  <style>body { color: red; }</style>
  <script>console.log("tracking");</script>
</head>
<body>
  <h1>Acme Industrial</h1>
  <p>We sell   glue and
  tape.</p>
</body>
</html>`))
	}))
	defer srv.Close()

	text, err := NewFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !strings.Contains(text, "Acme Industrial") {
		t.Fatalf("visible text missing: %q", text)
	}
	if !strings.Contains(text, "We sell glue and tape.") {
		t.Fatalf("whitespace not collapsed: %q", text)
	}
	if strings.Contains(text, "color: red") || strings.Contains(text, "tracking") {
		t.Fatalf("style/script bodies leaked: %q", text)
	}
	if strings.Contains(text, "<") {
		t.Fatalf("markup leaked: %q", text)
	}
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("  just some text\n"))
	}))
	defer srv.Close()

	text, err := NewFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "just some text" {
		t.Fatalf("text = %q", text)
	}
}

func TestFetchSniffsHTMLWithoutContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("<html><body><p>sniffed</p></body></html>"))
	}))
	defer srv.Close()

	text, err := NewFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "sniffed" {
		t.Fatalf("text = %q", text)
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewFetcher().Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestExtractHTMLUnclosedScript(t *testing.T) {
	text := extractHTML([]byte("<p>before</p><script>var x = 1;"))
	if text != "before" {
		t.Fatalf("text = %q", text)
	}
}
