package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"

	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/project"
)

var (
	_ profile.Store = (*LearnerStore)(nil)
	_ project.Store = (*ProjectStore)(nil)
)

// ProjectStore implements project.Store using PostgreSQL
type ProjectStore struct {
	pool *pgxpool.Pool
}

// NewProjectStore creates a PostgreSQL project store
func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

const projectColumns = `id, owner_id, title, description, markup, style, script,
	public, likes, views, meta, created_at, updated_at`

// CreateProject inserts a project
func (s *ProjectStore) CreateProject(ctx context.Context, p *project.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.OwnerID, p.Title, p.Description, p.Markup, p.Style, p.Script,
		p.Public, p.Likes, p.Views, metaParam(p.Meta), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID
func (s *ProjectStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	p, err := scanProject(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, project.ErrNotFound
	}
	return p, err
}

// UpdateProject writes the editable fields; counters are left alone
func (s *ProjectStore) UpdateProject(ctx context.Context, p *project.Project) error {
	query := `
		UPDATE projects SET
			title = $2, description = $3, markup = $4, style = $5, script = $6,
			public = $7, meta = $8, updated_at = $9
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Title, p.Description, p.Markup, p.Style, p.Script,
		p.Public, metaParam(p.Meta), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrNotFound
	}
	return nil
}

// IncrementViews bumps the view counter
func (s *ProjectStore) IncrementViews(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE projects SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrNotFound
	}
	return nil
}

// SetLike adds or removes a like and keeps the counter in step
func (s *ProjectStore) SetLike(ctx context.Context, projectID, learnerID string, liked bool) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin like: %w", err)
	}
	defer tx.Rollback(ctx)

	delta := 1
	var query string
	args := []any{projectID, learnerID}
	if liked {
		query = `
			INSERT INTO project_likes (project_id, learner_id, created_at) VALUES ($1, $2, $3)
			ON CONFLICT (project_id, learner_id) DO NOTHING
		`
		args = append(args, time.Now().UTC())
	} else {
		delta = -1
		query = `DELETE FROM project_likes WHERE project_id = $1 AND learner_id = $2`
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("write like: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE projects SET likes = GREATEST(0, likes + $2) WHERE id = $1`, projectID, delta); err != nil {
		return false, fmt.Errorf("update like count: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit like: %w", err)
	}
	return true, nil
}

// ListPublicProjects returns one page of public projects and the total
func (s *ProjectStore) ListPublicProjects(ctx context.Context, sort project.Sort, limit, offset int) ([]project.Project, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects WHERE public`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE public
		ORDER BY ` + orderBy(sort) + ` LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects, err := collectProjects(rows)
	return projects, total, err
}

// ListProjectsByOwner returns a learner's projects, newest first
func (s *ProjectStore) ListProjectsByOwner(ctx context.Context, ownerID string) ([]project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner projects: %w", err)
	}
	defer rows.Close()
	return collectProjects(rows)
}

func orderBy(sort project.Sort) string {
	switch sort {
	case project.SortMostLiked:
		return "likes DESC, created_at DESC"
	case project.SortMostViewed:
		return "views DESC, created_at DESC"
	}
	return "created_at DESC"
}

func collectProjects(rows pgx.Rows) ([]project.Project, error) {
	var out []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanProject(row pgx.Row) (*project.Project, error) {
	var p project.Project
	var meta []byte
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Markup, &p.Style, &p.Script,
		&p.Public, &p.Likes, &p.Views, &meta, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Meta = metaValue(pqtype.NullRawMessage{RawMessage: meta, Valid: meta != nil})
	return &p, nil
}

// metaParam maps empty metadata to SQL NULL
func metaParam(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

func metaValue(n pqtype.NullRawMessage) json.RawMessage {
	if !n.Valid || len(n.RawMessage) == 0 {
		return nil
	}
	return n.RawMessage
}
