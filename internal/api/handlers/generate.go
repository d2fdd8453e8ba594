package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/personaforge/personaforge/internal/audit"
	"github.com/personaforge/personaforge/internal/embedding"
	"github.com/personaforge/personaforge/internal/generator"
	"github.com/personaforge/personaforge/internal/template"
)

type GenerateHandler struct {
	gen      *generator.Service
	svc      *template.Service
	audit    *audit.Service
	indexer  *embedding.Indexer
	validate *validator.Validate
}

func NewGenerateHandler(gen *generator.Service, svc *template.Service, auditSvc *audit.Service, indexer *embedding.Indexer) *GenerateHandler {
	return &GenerateHandler{
		gen:      gen,
		svc:      svc,
		audit:    auditSvc,
		indexer:  indexer,
		validate: validator.New(),
	}
}

type optimizeRequest struct {
	CustomOptimization string `json:"custom_optimization" validate:"required"`
}

// Optimize runs a natural-language optimization request against a
// stored template. Nothing persists unless the model response
// normalizes cleanly.
func (h *GenerateHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	var req optimizeRequest
	if err := decodeJSON(r, &req); err != nil || req.CustomOptimization == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no optimization request provided"})
		return
	}

	slog.Info("optimization request", "template_id", id, "request", req.CustomOptimization)

	if _, err := h.gen.Optimize(r.Context(), id, req.CustomOptimization); err != nil {
		h.failLLM(w, r, id, "optimize", err)
		return
	}

	h.record(r, "template.optimized", &id)
	if t, err := h.svc.GetByID(r.Context(), id); err == nil {
		h.indexer.Index(r.Context(), t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type generateRequest struct {
	Prompt string `json:"prompt" validate:"required"`
	URL    string `json:"url,omitempty" validate:"omitempty,url"`
}

// Generate produces a complete field set from a prompt. The result is
// returned for preview, not persisted; use-generated-schema saves it.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	fields, err := h.gen.Generate(r.Context(), req.Prompt, req.URL)
	if err != nil {
		h.failLLM(w, r, 0, "generate", err)
		return
	}

	h.record(r, "template.generated", nil)
	writeJSON(w, http.StatusOK, fields)
}

// UseGenerated persists a previously generated field set as a new
// template. The body is coerced with the same tolerance as the
// normalizer, so a persona arriving as a JSON string still lands.
func (h *GenerateHandler) UseGenerated(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	fields, err := template.UpdatesFromJSON(body)
	if err != nil || fields.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no schema data provided"})
		return
	}

	req := template.CreateRequest{
		Name:            "Generated Template " + time.Now().UTC().Format("2006-01-02 15:04"),
		Persona:         fields.Persona,
		Rules:           fields.Rules,
		Instructions:    fields.Instructions,
		ExampleDialogue: fields.ExampleDialogue,
	}
	if fields.Name != nil {
		req.Name = *fields.Name
	}
	if fields.Bio != nil {
		req.Bio = *fields.Bio
	}
	if fields.VoiceStyle != nil {
		req.VoiceStyle = *fields.VoiceStyle
	}

	t, err := h.svc.Create(r.Context(), req)
	if err != nil {
		slog.Error("save generated schema failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.record(r, "template.created_from_generation", &t.ID)
	h.indexer.Index(r.Context(), t)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"redirect_url": previewURL(t.ID),
	})
}

// failLLM maps the optimize/generate failure modes: unknown id 404,
// LLM failure or timeout 502, unusable model output 500. No partial
// update is ever visible.
func (h *GenerateHandler) failLLM(w http.ResponseWriter, r *http.Request, id int64, op string, err error) {
	slog.Error("llm operation failed", "op", op, "template_id", id, "error", err)

	var missing *template.MissingFieldsError
	switch {
	case errors.Is(err, template.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "message not found"})
	case errors.Is(err, generator.ErrUpstream):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "language model request failed"})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": missing.Error()})
	case errors.Is(err, template.ErrUnparseable):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to parse model response"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *GenerateHandler) record(r *http.Request, action string, id *int64) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), audit.Entry{
		Action:     action,
		TemplateID: id,
		IPAddress:  r.RemoteAddr,
	}); err != nil {
		slog.Warn("audit log failed", "action", action, "error", err)
	}
}
