// Package vectorstore keeps one embedding per template and answers
// "which templates feel similar to this one".
package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type SimilarTemplate struct {
	TemplateID int64   `json:"template_id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Upsert(ctx context.Context, templateID int64, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := s.db.Exec(ctx,
		`INSERT INTO template_embeddings (template_id, embedding, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (template_id) DO UPDATE SET embedding = $2, updated_at = now()`,
		templateID, vec,
	)
	if err != nil {
		return fmt.Errorf("upsert embedding for %d: %w", templateID, err)
	}
	return nil
}

// Similar returns the closest other templates by cosine distance.
// Templates without an embedding yet simply never appear.
func (s *Store) Similar(ctx context.Context, templateID int64, topK int) ([]SimilarTemplate, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.Query(ctx,
		`SELECT t.id, t.name, 1 - (e.embedding <=> ref.embedding) AS score
		 FROM template_embeddings e
		 JOIN templates t ON t.id = e.template_id
		 JOIN template_embeddings ref ON ref.template_id = $1
		 WHERE e.template_id <> $1
		 ORDER BY e.embedding <=> ref.embedding
		 LIMIT $2`,
		templateID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similar templates for %d: %w", templateID, err)
	}
	defer rows.Close()

	var results []SimilarTemplate
	for rows.Next() {
		var r SimilarTemplate
		if err := rows.Scan(&r.TemplateID, &r.Name, &r.Score); err != nil {
			return nil, fmt.Errorf("scan similar template: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
