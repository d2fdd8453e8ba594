package embedding

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/personaforge/personaforge/internal/llm"
	"github.com/personaforge/personaforge/internal/models"
	"github.com/personaforge/personaforge/internal/vectorstore"
)

// Indexer maintains the per-template embedding used by the
// similar-templates query. Indexing is best-effort and bounded by its
// own short deadline; a failure is logged and never fails the
// mutation that triggered it.
type Indexer struct {
	gateway llm.Gateway
	store   *vectorstore.Store
	model   string
}

func NewIndexer(gw llm.Gateway, store *vectorstore.Store, model string) *Indexer {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Indexer{gateway: gw, store: store, model: model}
}

// Index embeds the template's descriptive text and upserts it.
func (i *Indexer) Index(ctx context.Context, t *models.Template) {
	if i == nil || i.gateway == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := i.gateway.Embed(ctx, llm.EmbeddingRequest{
		Model: i.model,
		Input: []string{embeddingText(t)},
	})
	if err != nil {
		slog.Warn("embedding skipped", "template_id", t.ID, "error", err)
		return
	}
	if len(resp.Embeddings) == 0 {
		slog.Warn("embedding skipped, empty response", "template_id", t.ID)
		return
	}

	if err := i.store.Upsert(ctx, t.ID, resp.Embeddings[0]); err != nil {
		slog.Warn("embedding upsert failed", "template_id", t.ID, "error", err)
	}
}

func embeddingText(t *models.Template) string {
	parts := []string{t.Name, t.Bio, t.VoiceStyle}
	if len(t.Rules) > 0 {
		parts = append(parts, strings.Join(t.Rules, "\n"))
	}
	return strings.Join(parts, "\n\n")
}
