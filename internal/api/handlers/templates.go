package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/personaforge/personaforge/internal/audit"
	"github.com/personaforge/personaforge/internal/embedding"
	"github.com/personaforge/personaforge/internal/generator"
	"github.com/personaforge/personaforge/internal/template"
	"github.com/personaforge/personaforge/internal/vectorstore"
)

type TemplateHandler struct {
	svc      *template.Service
	audit    *audit.Service
	indexer  *embedding.Indexer
	vectors  *vectorstore.Store
	validate *validator.Validate
}

func NewTemplateHandler(svc *template.Service, auditSvc *audit.Service, indexer *embedding.Indexer, vectors *vectorstore.Store) *TemplateHandler {
	return &TemplateHandler{
		svc:      svc,
		audit:    auditSvc,
		indexer:  indexer,
		vectors:  vectors,
		validate: validator.New(),
	}
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, r, 0, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": templates, "count": len(templates)})
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req template.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	t, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, 0, "create", err)
		return
	}

	h.record(r, "template.created", t.ID, nil)
	h.indexer.Index(r.Context(), t)
	writeJSON(w, http.StatusCreated, t)
}

// Edit applies a partial update. Only fields present in the body
// change; persona keys are merged into the stored mapping, the list
// fields replace it outright.
func (h *TemplateHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	updates, err := template.UpdatesFromJSON(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if updates.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no update data provided"})
		return
	}

	t, err := h.svc.Update(r.Context(), id, updates, true)
	if err != nil {
		h.fail(w, r, id, "edit", err)
		return
	}

	h.record(r, "template.edited", id, nil)
	h.indexer.Index(r.Context(), t)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"redirect_url": previewURL(id),
	})
}

func (h *TemplateHandler) Copy(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	copied, err := h.svc.Copy(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, "copy", err)
		return
	}

	h.record(r, "template.copied", copied.ID, map[string]interface{}{"source_id": id})
	h.indexer.Index(r.Context(), copied)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"redirect_url": previewURL(copied.ID),
		"message":      copied,
	})
}

func (h *TemplateHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, true)
}

func (h *TemplateHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, false)
}

func (h *TemplateHandler) setPublished(w http.ResponseWriter, r *http.Request, published bool) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	var err error
	action := "template.published"
	if published {
		_, err = h.svc.Publish(r.Context(), id)
	} else {
		_, err = h.svc.Unpublish(r.Context(), id)
		action = "template.unpublished"
	}
	if err != nil {
		h.fail(w, r, id, action, err)
		return
	}

	h.record(r, action, id, nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"redirect_url": previewURL(id),
	})
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, r, id, "delete", err)
		return
	}

	h.record(r, "template.deleted", id, nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *TemplateHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	history, err := h.svc.VersionHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, "versions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": history, "count": len(history)})
}

func (h *TemplateHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	topK, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.vectors.Similar(r.Context(), id, topK)
	if err != nil {
		h.fail(w, r, id, "similar", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"similar": results})
}

func (h *TemplateHandler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, "export", err)
		return
	}

	data, err := template.ExportJSON(t)
	if err != nil {
		h.fail(w, r, id, "export", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *TemplateHandler) ExportXML(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, "export", err)
		return
	}

	data, err := template.ExportXML(t)
	if err != nil {
		h.fail(w, r, id, "export", err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type setCategoryRequest struct {
	CategoryID *int64 `json:"category_id"`
}

func (h *TemplateHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	var req setCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.svc.SetCategory(r.Context(), id, req.CategoryID); err != nil {
		h.fail(w, r, id, "set_category", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type setTagsRequest struct {
	TagIDs []int64 `json:"tag_ids"`
}

func (h *TemplateHandler) SetTags(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(w, r)
	if !ok {
		return
	}

	var req setTagsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.svc.SetTags(r.Context(), id, req.TagIDs); err != nil {
		h.fail(w, r, id, "set_tags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// fail logs the error with context and maps it onto the response
// taxonomy: validation 400, unknown id 404, copy conflict 409,
// upstream LLM 502, everything else 500.
func (h *TemplateHandler) fail(w http.ResponseWriter, r *http.Request, id int64, op string, err error) {
	slog.Error("template operation failed", "op", op, "template_id", id, "error", err)

	switch {
	case errors.Is(err, template.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "message not found"})
	case errors.Is(err, template.ErrHasCopies):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "message has copies and cannot be deleted"})
	case errors.Is(err, generator.ErrUpstream):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *TemplateHandler) record(r *http.Request, action string, id int64, details map[string]interface{}) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), audit.Entry{
		Action:     action,
		TemplateID: &id,
		Details:    details,
		IPAddress:  r.RemoteAddr,
	}); err != nil {
		slog.Warn("audit log failed", "action", action, "template_id", id, "error", err)
	}
}

func templateID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message ID"})
		return 0, false
	}
	return id, true
}

func previewURL(id int64) string {
	return fmt.Sprintf("/messages/%d", id)
}
