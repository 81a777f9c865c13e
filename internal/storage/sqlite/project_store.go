package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gamecodelab/gamecode/internal/project"
)

// ProjectStore implements project.Store backed by SQLite.
type ProjectStore struct {
	db *DB
}

// NewProjectStore creates a SQLite-backed project store.
func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

const projectColumns = `id, owner_id, title, description, markup, style, script,
	public, likes, views, meta, created_at, updated_at`

// CreateProject inserts a project.
func (s *ProjectStore) CreateProject(ctx context.Context, p *project.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Title, p.Description, p.Markup, p.Style, p.Script,
		boolInt(p.Public), p.Likes, p.Views, nullJSON(p.Meta), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *ProjectStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, project.ErrNotFound
	}
	return p, err
}

// UpdateProject writes the editable project fields. Counters are left alone.
func (s *ProjectStore) UpdateProject(ctx context.Context, p *project.Project) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET
			title = ?, description = ?, markup = ?, style = ?, script = ?,
			public = ?, meta = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Description, p.Markup, p.Style, p.Script,
		boolInt(p.Public), nullJSON(p.Meta), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return project.ErrNotFound
	}
	return nil
}

// IncrementViews bumps the view counter.
func (s *ProjectStore) IncrementViews(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE projects SET views = views + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return project.ErrNotFound
	}
	return nil
}

// SetLike adds or removes a like and keeps the counter in step.
func (s *ProjectStore) SetLike(ctx context.Context, projectID, learnerID string, liked bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin like: %w", err)
	}
	defer tx.Rollback()

	var result sql.Result
	delta := 1
	if liked {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO project_likes (project_id, learner_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT(project_id, learner_id) DO NOTHING`, projectID, learnerID, time.Now().UTC())
	} else {
		delta = -1
		result, err = tx.ExecContext(ctx,
			"DELETE FROM project_likes WHERE project_id = ? AND learner_id = ?", projectID, learnerID)
	}
	if err != nil {
		return false, fmt.Errorf("write like: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE projects SET likes = MAX(0, likes + ?) WHERE id = ?", delta, projectID); err != nil {
		return false, fmt.Errorf("update like count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit like: %w", err)
	}
	return true, nil
}

// ListPublicProjects returns one page of public projects and the total.
func (s *ProjectStore) ListPublicProjects(ctx context.Context, sort project.Sort, limit, offset int) ([]project.Project, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects WHERE public = 1").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects
		WHERE public = 1 ORDER BY `+orderBy(sort)+` LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects, err := collectProjects(rows)
	return projects, total, err
}

// ListProjectsByOwner returns a learner's projects, newest first.
func (s *ProjectStore) ListProjectsByOwner(ctx context.Context, ownerID string) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects
		WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
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

func collectProjects(rows *sql.Rows) ([]project.Project, error) {
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

func scanProject(row scanner) (*project.Project, error) {
	var p project.Project
	var public int
	var meta sql.NullString
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Markup, &p.Style, &p.Script,
		&public, &p.Likes, &p.Views, &meta, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Public = public != 0
	if meta.Valid && meta.String != "" {
		p.Meta = json.RawMessage(meta.String)
	}
	return &p, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
