package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateValidationErrors(t *testing.T) {
	// Validation runs before any service is touched, so a bare handler
	// is enough.
	h := NewGenerateHandler(nil, nil, nil, nil)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "missing prompt",
			body:    `{"url": "https://acme.example"}`,
			wantMsg: "Prompt",
		},
		{
			name:    "malformed url",
			body:    `{"prompt": "a barista persona", "url": "not a url"}`,
			wantMsg: "URL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/generate-schema", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Generate(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Fatalf("body %q does not name the failing field %q", rec.Body.String(), tt.wantMsg)
			}
		})
	}
}
