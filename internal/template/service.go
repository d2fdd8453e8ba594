package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/personaforge/personaforge/internal/cache"
	"github.com/personaforge/personaforge/internal/models"
)

var (
	ErrNotFound = errors.New("template not found")
	// ErrHasCopies blocks deletion of an original that still has
	// dependent copies.
	ErrHasCopies = errors.New("template has copies and cannot be deleted")
)

const templateColumns = `id, name, bio, voice_style, persona, rules, instructions,
	example_dialogue, published, published_at, created_at, updated_at,
	original_id, version_number, version_note, category_id`

type Service struct {
	db    *pgxpool.Pool
	cache *cache.Cache
}

// NewService builds the template store. The cache may be nil, in
// which case every read goes to Postgres.
func NewService(db *pgxpool.Pool, c *cache.Cache) *Service {
	return &Service{db: db, cache: c}
}

type CreateRequest struct {
	Name            string            `json:"name" validate:"required,max=100"`
	Bio             string            `json:"bio" validate:"required"`
	VoiceStyle      string            `json:"voice_style" validate:"required"`
	Persona         map[string]string `json:"persona"`
	Rules           []string          `json:"rules"`
	Instructions    []string          `json:"instructions"`
	ExampleDialogue []string          `json:"example_dialogue"`
	CategoryID      *int64            `json:"category_id,omitempty"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Template, error) {
	if req.Persona == nil {
		req.Persona = map[string]string{}
	}
	if req.Rules == nil {
		req.Rules = []string{}
	}
	if req.Instructions == nil {
		req.Instructions = []string{}
	}
	if req.ExampleDialogue == nil {
		req.ExampleDialogue = []string{}
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO templates (name, bio, voice_style, persona, rules, instructions, example_dialogue, category_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+templateColumns,
		req.Name, req.Bio, req.VoiceStyle, req.Persona, req.Rules,
		req.Instructions, req.ExampleDialogue, req.CategoryID,
	)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	return t, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*models.Template, error) {
	if s.cache != nil {
		var cached models.Template
		if err := s.cache.Get(ctx, cacheKey(id), &cached); err == nil {
			return &cached, nil
		}
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %d: %w", id, err)
	}

	tags, err := s.tagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Tags = tags

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey(id), t, 10*time.Minute)
	}
	return t, nil
}

// List returns all templates, newest first. Tags are loaded per
// record on GetByID, not here.
func (s *Service) List(ctx context.Context) ([]models.Template, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	return collectTemplates(rows)
}

// Update applies a partial update inside a single transaction. The
// row is locked for the read-modify-write so concurrent edits
// serialize into last-writer-wins at field granularity.
func (s *Service) Update(ctx context.Context, id int64, u FieldUpdates, mergePersona bool) (*models.Template, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock template %d: %w", id, err)
	}

	u.Apply(t, mergePersona)

	row = tx.QueryRow(ctx,
		`UPDATE templates
		 SET name = $2, bio = $3, voice_style = $4, persona = $5, rules = $6,
		     instructions = $7, example_dialogue = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING `+templateColumns,
		id, t.Name, t.Bio, t.VoiceStyle, t.Persona, t.Rules, t.Instructions, t.ExampleDialogue,
	)
	t, err = scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("update template %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.invalidate(ctx, id)
	return t, nil
}

// Copy creates a new version of the template. The lineage root row is
// locked before computing max+1 so concurrent copies of the same
// lineage cannot allocate the same version number. The copy always
// points at the true original and starts unpublished.
func (s *Service) Copy(ctx context.Context, id int64) (*models.Template, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1 FOR UPDATE`, id)
	source, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock template %d: %w", id, err)
	}

	rootID := source.ID
	if !source.IsOriginal() {
		rootID = *source.OriginalID
		// Serialize version allocation on the root. A dangling root is
		// tolerated: the source row lock above still covers us.
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM templates WHERE id = $1 FOR UPDATE`, rootID).Scan(&locked)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lock original %d: %w", rootID, err)
		}
	}

	var maxVersion int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_number), 1) FROM templates WHERE id = $1 OR original_id = $1`,
		rootID,
	).Scan(&maxVersion)
	if err != nil {
		return nil, fmt.Errorf("max version for %d: %w", rootID, err)
	}
	if source.VersionNumber > maxVersion {
		maxVersion = source.VersionNumber
	}

	note := fmt.Sprintf("Copied from version %d", source.VersionNumber)
	row = tx.QueryRow(ctx,
		`INSERT INTO templates (name, bio, voice_style, persona, rules, instructions,
		                        example_dialogue, published, published_at, original_id,
		                        version_number, version_note, category_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, NULL, $8, $9, $10, $11)
		 RETURNING `+templateColumns,
		source.Name+" (Copy)", source.Bio, source.VoiceStyle,
		clonePersona(source.Persona), cloneStrings(source.Rules),
		cloneStrings(source.Instructions), cloneStrings(source.ExampleDialogue),
		rootID, maxVersion+1, note, source.CategoryID,
	)
	copied, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("insert copy of %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return copied, nil
}

// VersionHistory resolves the full lineage of a template, ordered by
// version number ascending (created_at breaks ties). For a copy, the
// walk goes through the original exactly once; a copy whose original
// no longer exists degrades to a singleton history.
func (s *Service) VersionHistory(ctx context.Context, id int64) ([]models.Template, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rootID := t.ID
	if !t.IsOriginal() {
		rootID = *t.OriginalID
		var exists bool
		err := s.db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM templates WHERE id = $1)`, rootID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check original %d: %w", rootID, err)
		}
		if !exists {
			return []models.Template{*t}, nil
		}
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+templateColumns+` FROM templates
		 WHERE id = $1 OR original_id = $1
		 ORDER BY version_number ASC, created_at ASC`,
		rootID,
	)
	if err != nil {
		return nil, fmt.Errorf("version history for %d: %w", rootID, err)
	}
	defer rows.Close()

	return collectTemplates(rows)
}

// Publish marks the template published. published_at is only stamped
// on the false→true transition; republishing keeps the first time.
func (s *Service) Publish(ctx context.Context, id int64) (*models.Template, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE templates
		 SET published = true, published_at = COALESCE(published_at, now()), updated_at = now()
		 WHERE id = $1
		 RETURNING `+templateColumns, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("publish template %d: %w", id, err)
	}
	s.invalidate(ctx, id)
	return t, nil
}

func (s *Service) Unpublish(ctx context.Context, id int64) (*models.Template, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE templates
		 SET published = false, published_at = NULL, updated_at = now()
		 WHERE id = $1
		 RETURNING `+templateColumns, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unpublish template %d: %w", id, err)
	}
	s.invalidate(ctx, id)
	return t, nil
}

// Delete removes a template. Deleting an original that still has
// copies is refused so no copy is ever left with a dangling lineage.
func (s *Service) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var copies int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM templates WHERE original_id = $1`, id).Scan(&copies); err != nil {
		return fmt.Errorf("count copies of %d: %w", id, err)
	}
	if copies > 0 {
		return ErrHasCopies
	}

	tag, err := tx.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.invalidate(ctx, id)
	return nil
}

func (s *Service) SetCategory(ctx context.Context, id int64, categoryID *int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE templates SET category_id = $2, updated_at = now() WHERE id = $1`,
		id, categoryID)
	if err != nil {
		return fmt.Errorf("set category on %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) SetTags(ctx context.Context, id int64, tagIDs []int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM template_tags WHERE template_id = $1`, id); err != nil {
		return fmt.Errorf("clear tags on %d: %w", id, err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO template_tags (template_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, tagID); err != nil {
			return fmt.Errorf("tag %d on %d: %w", tagID, id, err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE templates SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch template %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.invalidate(ctx, id)
	return nil
}

func (s *Service) tagsFor(ctx context.Context, id int64) ([]models.Tag, error) {
	rows, err := s.db.Query(ctx,
		`SELECT t.id, t.name, t.created_at FROM tags t
		 JOIN template_tags tt ON tt.tag_id = t.id
		 WHERE tt.template_id = $1 ORDER BY t.name`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("tags for %d: %w", id, err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, cacheKey(id))
	}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("template:%d", id)
}

func scanTemplate(row pgx.Row) (*models.Template, error) {
	var t models.Template
	err := row.Scan(
		&t.ID, &t.Name, &t.Bio, &t.VoiceStyle, &t.Persona, &t.Rules,
		&t.Instructions, &t.ExampleDialogue, &t.Published, &t.PublishedAt,
		&t.CreatedAt, &t.UpdatedAt, &t.OriginalID, &t.VersionNumber,
		&t.VersionNote, &t.CategoryID,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTemplates(rows pgx.Rows) ([]models.Template, error) {
	var out []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
