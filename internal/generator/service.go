// Package generator drives LLM-assisted template authoring: applying
// a natural-language optimization request to an existing template and
// generating a complete field set from a prompt.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/personaforge/personaforge/internal/llm"
	"github.com/personaforge/personaforge/internal/models"
	"github.com/personaforge/personaforge/internal/template"
)

// ErrUpstream marks a failed or timed-out language model call. No
// record is mutated when it is returned.
var ErrUpstream = errors.New("language model request failed")

const llmTimeout = 30 * time.Second

const optimizeSystemPrompt = `You are an expert in optimizing message templates. Return only valid JSON with the exact fields that need updating. You can add new rules, modify dialogue, or update any part of the template.`

const generateSystemPrompt = `You are an expert in creating system message templates. Return only valid JSON in this format: {"bio": "...", "voice_style": "...", "persona": {...}, "rules": ["..."], "instructions": ["..."], "example_dialogue": ["Agent: Hello! How can I help you today?", "Customer: I would like to place an order."]}`

type Store interface {
	GetByID(ctx context.Context, id int64) (*models.Template, error)
	Update(ctx context.Context, id int64, u template.FieldUpdates, mergePersona bool) (*models.Template, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Service struct {
	gateway llm.Gateway
	store   Store
	fetcher Fetcher
	model   string
}

func NewService(gw llm.Gateway, store Store, fetcher Fetcher, model string) *Service {
	return &Service{gateway: gw, store: store, fetcher: fetcher, model: model}
}

// Optimize sends the template plus the user's request to the model,
// normalizes the response into partial field updates, and applies
// them in one transaction. Any failure leaves the record untouched.
func (s *Service) Optimize(ctx context.Context, id int64, customRequest string) (*models.Template, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	prompt, err := optimizePrompt(t, customRequest)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	resp, err := s.gateway.Chat(callCtx, llm.ChatRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: "system", Content: optimizeSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	updates, err := template.Normalize(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("normalize optimization response: %w", err)
	}

	// Optimize replaces persona wholesale when the model returns one.
	return s.store.Update(ctx, id, updates, false)
}

// Generate produces a complete field set from a prompt, optionally
// prepending readable text fetched from contextURL. The URL fetch is
// best-effort: on failure the generation proceeds without context.
// Nothing is persisted here; the caller previews the result first.
func (s *Service) Generate(ctx context.Context, prompt, contextURL string) (template.FieldUpdates, error) {
	if contextURL != "" && s.fetcher != nil {
		content, err := s.fetcher.Fetch(ctx, contextURL)
		if err != nil {
			slog.Warn("failed to fetch URL context", "url", contextURL, "error", err)
		} else if content != "" {
			prompt = fmt.Sprintf("Based on this website content:\n%s\n\n%s", content, prompt)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	resp, err := s.gateway.Chat(callCtx, llm.ChatRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: "system", Content: generateSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return template.FieldUpdates{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	updates, err := template.NormalizeComplete(resp.Content)
	if err != nil {
		return template.FieldUpdates{}, fmt.Errorf("normalize generated schema: %w", err)
	}
	return updates, nil
}

func optimizePrompt(t *models.Template, customRequest string) (string, error) {
	persona, err := json.MarshalIndent(t.Persona, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal persona: %w", err)
	}
	rules, err := json.MarshalIndent(t.Rules, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal rules: %w", err)
	}
	instructions, err := json.MarshalIndent(t.Instructions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal instructions: %w", err)
	}
	dialogue, err := json.MarshalIndent(t.ExampleDialogue, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal example dialogue: %w", err)
	}

	return fmt.Sprintf(`Analyze and modify this template based on the following request:
%s

Current Template:
Bio: %s
Voice Style: %s
Persona: %s
Rules: %s
Instructions: %s
Example Dialogue: %s

Return a JSON object containing ONLY the fields that need to be updated:
{
    "rules": ["list of all rules including any new ones"],
    "bio": "only if it needs updating",
    "voice_style": "only if it needs updating",
    "persona": {},
    "instructions": [],
    "example_dialogue": []
}

Important:
- Return valid JSON only
- For rules, include ALL existing rules plus any new ones
- Only include fields that actually need updating
- Keep existing content for fields not mentioned in request`,
		customRequest, t.Bio, t.VoiceStyle, persona, rules, instructions, dialogue), nil
}
