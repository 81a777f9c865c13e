package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/progression"
)

// LearnerStore implements profile.Store using PostgreSQL
type LearnerStore struct {
	pool *pgxpool.Pool
}

// NewLearnerStore creates a PostgreSQL learner store
func NewLearnerStore(pool *pgxpool.Pool) *LearnerStore {
	return &LearnerStore{pool: pool}
}

const learnerColumns = `id, username, display_name, role, xp, level, coins, streak_days,
	preview_runs, help_count, last_login_at, trial_started_at, trial_expires_at,
	created_at, updated_at`

// CreateProfile inserts a new learner
func (s *LearnerStore) CreateProfile(ctx context.Context, p *profile.Profile) error {
	query := `
		INSERT INTO learners (` + learnerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Username, p.DisplayName, string(p.Role), p.XP, p.Level, p.Coins, p.StreakDays,
		p.PreviewRuns, p.HelpCount, p.LastLoginAt, p.TrialStartedAt, p.TrialExpiresAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", profile.ErrAlreadyExists, p.Username)
		}
		return fmt.Errorf("insert learner: %w", err)
	}
	return nil
}

// GetProfile retrieves a learner by ID
func (s *LearnerStore) GetProfile(ctx context.Context, id string) (*profile.Profile, error) {
	query := `SELECT ` + learnerColumns + ` FROM learners WHERE id = $1`

	var p profile.Profile
	var role string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Username, &p.DisplayName, &role, &p.XP, &p.Level, &p.Coins, &p.StreakDays,
		&p.PreviewRuns, &p.HelpCount, &p.LastLoginAt, &p.TrialStartedAt, &p.TrialExpiresAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, profile.ErrNotFound
		}
		return nil, fmt.Errorf("scan learner: %w", err)
	}
	p.Role = profile.Role(role)
	return &p, nil
}

// UpdateProfile writes every mutable learner field
func (s *LearnerStore) UpdateProfile(ctx context.Context, p *profile.Profile) error {
	query := `
		UPDATE learners SET
			username = $2, display_name = $3, role = $4, xp = $5, level = $6, coins = $7,
			streak_days = $8, preview_runs = $9, help_count = $10, last_login_at = $11,
			trial_started_at = $12, trial_expires_at = $13, updated_at = $14
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Username, p.DisplayName, string(p.Role), p.XP, p.Level, p.Coins,
		p.StreakDays, p.PreviewRuns, p.HelpCount, p.LastLoginAt,
		p.TrialStartedAt, p.TrialExpiresAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update learner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// DeleteProfile removes a learner and everything that cascades from it
func (s *LearnerStore) DeleteProfile(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM learners WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete learner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

const lessonColumns = `learner_id, lesson_id, course_level, difficulty, status, score, attempts,
	error_free, level_complete, code, completed_at, updated_at`

// GetLesson retrieves one lesson record
func (s *LearnerStore) GetLesson(ctx context.Context, learnerID, lessonID string) (*profile.LessonRecord, error) {
	query := `SELECT ` + lessonColumns + ` FROM lesson_progress WHERE learner_id = $1 AND lesson_id = $2`
	rec, err := scanLesson(s.pool.QueryRow(ctx, query, learnerID, lessonID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	return rec, err
}

// SaveLesson upserts a lesson record
func (s *LearnerStore) SaveLesson(ctx context.Context, rec *profile.LessonRecord) error {
	query := `
		INSERT INTO lesson_progress (` + lessonColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (learner_id, lesson_id) DO UPDATE SET
			course_level = EXCLUDED.course_level,
			difficulty = EXCLUDED.difficulty,
			status = EXCLUDED.status,
			score = EXCLUDED.score,
			attempts = EXCLUDED.attempts,
			error_free = EXCLUDED.error_free,
			level_complete = EXCLUDED.level_complete,
			code = EXCLUDED.code,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query,
		rec.LearnerID, rec.LessonID, rec.CourseLevel, string(rec.Difficulty), string(rec.Status),
		rec.Score, rec.Attempts, rec.ErrorFree, rec.LevelComplete, rec.Code,
		rec.CompletedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert lesson progress: %w", err)
	}
	return nil
}

// ListLessons returns every lesson record of a learner
func (s *LearnerStore) ListLessons(ctx context.Context, learnerID string) ([]profile.LessonRecord, error) {
	query := `SELECT ` + lessonColumns + ` FROM lesson_progress WHERE learner_id = $1 ORDER BY updated_at`
	rows, err := s.pool.Query(ctx, query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	var out []profile.LessonRecord
	for rows.Next() {
		rec, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ListAchievements returns a learner's unlocked achievements, oldest first
func (s *LearnerStore) ListAchievements(ctx context.Context, learnerID string) ([]profile.UnlockedAchievement, error) {
	query := `
		SELECT code, unlocked_at FROM learner_achievements
		WHERE learner_id = $1 ORDER BY unlocked_at, code
	`
	rows, err := s.pool.Query(ctx, query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var out []profile.UnlockedAchievement
	for rows.Next() {
		var a profile.UnlockedAchievement
		if err := rows.Scan(&a.Code, &a.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GrantAchievement records an unlock; granting twice is a no-op
func (s *LearnerStore) GrantAchievement(ctx context.Context, learnerID, code string, at time.Time) error {
	query := `
		INSERT INTO learner_achievements (learner_id, code, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (learner_id, code) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, learnerID, code, at); err != nil {
		return fmt.Errorf("grant achievement: %w", err)
	}
	return nil
}

// ProjectTotals counts a learner's projects and the likes they received
func (s *LearnerStore) ProjectTotals(ctx context.Context, learnerID string) (profile.ProjectTotals, error) {
	var t profile.ProjectTotals
	query := `SELECT COUNT(*), COALESCE(SUM(likes), 0) FROM projects WHERE owner_id = $1`
	if err := s.pool.QueryRow(ctx, query, learnerID).Scan(&t.Projects, &t.Likes); err != nil {
		return t, fmt.Errorf("project totals: %w", err)
	}
	return t, nil
}

// TransferLearnerData moves progress, achievements and projects between
// learners in one transaction
func (s *LearnerStore) TransferLearnerData(ctx context.Context, fromID, toID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM lesson_progress WHERE learner_id = $1`, toID)
	batch.Queue(`UPDATE lesson_progress SET learner_id = $1 WHERE learner_id = $2`, toID, fromID)
	batch.Queue(`DELETE FROM learner_achievements WHERE learner_id = $1`, toID)
	batch.Queue(`UPDATE learner_achievements SET learner_id = $1 WHERE learner_id = $2`, toID, fromID)
	batch.Queue(`UPDATE projects SET owner_id = $1 WHERE owner_id = $2`, toID, fromID)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("transfer learner data: %w", err)
	}
	return tx.Commit(ctx)
}

func scanLesson(row pgx.Row) (*profile.LessonRecord, error) {
	var rec profile.LessonRecord
	var difficulty, status string
	err := row.Scan(
		&rec.LearnerID, &rec.LessonID, &rec.CourseLevel, &difficulty, &status, &rec.Score,
		&rec.Attempts, &rec.ErrorFree, &rec.LevelComplete, &rec.Code, &rec.CompletedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan lesson progress: %w", err)
	}
	rec.Difficulty = progression.Difficulty(difficulty)
	rec.Status = profile.LessonStatus(status)
	return &rec, nil
}
