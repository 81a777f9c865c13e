package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/progression"
)

// LearnerStore implements profile.Store backed by SQLite.
type LearnerStore struct {
	db *DB
}

// NewLearnerStore creates a SQLite-backed learner store.
func NewLearnerStore(db *DB) *LearnerStore {
	return &LearnerStore{db: db}
}

const learnerColumns = `id, username, display_name, role, xp, level, coins, streak_days,
	preview_runs, help_count, last_login_at, trial_started_at, trial_expires_at,
	created_at, updated_at`

// CreateProfile inserts a new learner.
func (s *LearnerStore) CreateProfile(ctx context.Context, p *profile.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learners (`+learnerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, p.DisplayName, string(p.Role), p.XP, p.Level, p.Coins, p.StreakDays,
		p.PreviewRuns, p.HelpCount, toNullTime(p.LastLoginAt), toNullTime(p.TrialStartedAt),
		toNullTime(p.TrialExpiresAt), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", profile.ErrAlreadyExists, p.Username)
		}
		return fmt.Errorf("insert learner: %w", err)
	}
	return nil
}

// GetProfile retrieves a learner by ID.
func (s *LearnerStore) GetProfile(ctx context.Context, id string) (*profile.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+learnerColumns+` FROM learners WHERE id = ?`, id)

	var p profile.Profile
	var role string
	var lastLogin, trialStart, trialEnd sql.NullTime
	err := row.Scan(
		&p.ID, &p.Username, &p.DisplayName, &role, &p.XP, &p.Level, &p.Coins, &p.StreakDays,
		&p.PreviewRuns, &p.HelpCount, &lastLogin, &trialStart, &trialEnd,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, profile.ErrNotFound
		}
		return nil, fmt.Errorf("scan learner: %w", err)
	}
	p.Role = profile.Role(role)
	p.LastLoginAt = fromNullTime(lastLogin)
	p.TrialStartedAt = fromNullTime(trialStart)
	p.TrialExpiresAt = fromNullTime(trialEnd)
	return &p, nil
}

// UpdateProfile writes every mutable learner field.
func (s *LearnerStore) UpdateProfile(ctx context.Context, p *profile.Profile) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE learners SET
			username = ?, display_name = ?, role = ?, xp = ?, level = ?, coins = ?,
			streak_days = ?, preview_runs = ?, help_count = ?, last_login_at = ?,
			trial_started_at = ?, trial_expires_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Username, p.DisplayName, string(p.Role), p.XP, p.Level, p.Coins,
		p.StreakDays, p.PreviewRuns, p.HelpCount, toNullTime(p.LastLoginAt),
		toNullTime(p.TrialStartedAt), toNullTime(p.TrialExpiresAt), p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update learner: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// DeleteProfile removes a learner; progress, achievements and projects
// cascade.
func (s *LearnerStore) DeleteProfile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM learners WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete learner: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return profile.ErrNotFound
	}
	return nil
}

const lessonColumns = `learner_id, lesson_id, course_level, difficulty, status, score, attempts,
	error_free, level_complete, code, completed_at, updated_at`

// GetLesson retrieves one lesson record.
func (s *LearnerStore) GetLesson(ctx context.Context, learnerID, lessonID string) (*profile.LessonRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lessonColumns+`
		FROM lesson_progress WHERE learner_id = ? AND lesson_id = ?`, learnerID, lessonID)

	rec, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	return rec, err
}

// SaveLesson upserts a lesson record.
func (s *LearnerStore) SaveLesson(ctx context.Context, rec *profile.LessonRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lesson_progress (`+lessonColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(learner_id, lesson_id) DO UPDATE SET
			course_level=excluded.course_level,
			difficulty=excluded.difficulty,
			status=excluded.status,
			score=excluded.score,
			attempts=excluded.attempts,
			error_free=excluded.error_free,
			level_complete=excluded.level_complete,
			code=excluded.code,
			completed_at=excluded.completed_at,
			updated_at=excluded.updated_at`,
		rec.LearnerID, rec.LessonID, rec.CourseLevel, string(rec.Difficulty), string(rec.Status),
		rec.Score, rec.Attempts, boolInt(rec.ErrorFree), boolInt(rec.LevelComplete), rec.Code,
		toNullTime(rec.CompletedAt), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert lesson progress: %w", err)
	}
	return nil
}

// ListLessons returns every lesson record of a learner.
func (s *LearnerStore) ListLessons(ctx context.Context, learnerID string) ([]profile.LessonRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+lessonColumns+`
		FROM lesson_progress WHERE learner_id = ? ORDER BY updated_at`, learnerID)
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

// ListAchievements returns a learner's unlocked achievements, oldest first.
func (s *LearnerStore) ListAchievements(ctx context.Context, learnerID string) ([]profile.UnlockedAchievement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, unlocked_at FROM learner_achievements
		WHERE learner_id = ? ORDER BY unlocked_at, code`, learnerID)
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

// GrantAchievement records an unlock. Granting twice is a no-op.
func (s *LearnerStore) GrantAchievement(ctx context.Context, learnerID, code string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learner_achievements (learner_id, code, unlocked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(learner_id, code) DO NOTHING`, learnerID, code, at)
	if err != nil {
		return fmt.Errorf("grant achievement: %w", err)
	}
	return nil
}

// ProjectTotals counts a learner's projects and the likes they received.
func (s *LearnerStore) ProjectTotals(ctx context.Context, learnerID string) (profile.ProjectTotals, error) {
	var t profile.ProjectTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(likes), 0) FROM projects WHERE owner_id = ?`, learnerID,
	).Scan(&t.Projects, &t.Likes)
	if err != nil {
		return t, fmt.Errorf("project totals: %w", err)
	}
	return t, nil
}

// TransferLearnerData moves progress, achievements and projects from one
// learner to another in a single transaction.
func (s *LearnerStore) TransferLearnerData(ctx context.Context, fromID, toID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []any
	}{
		{"DELETE FROM lesson_progress WHERE learner_id = ?", []any{toID}},
		{"UPDATE lesson_progress SET learner_id = ? WHERE learner_id = ?", []any{toID, fromID}},
		{"DELETE FROM learner_achievements WHERE learner_id = ?", []any{toID}},
		{"UPDATE learner_achievements SET learner_id = ? WHERE learner_id = ?", []any{toID, fromID}},
		{"UPDATE projects SET owner_id = ? WHERE owner_id = ?", []any{toID, fromID}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("transfer learner data: %w", err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLesson(row scanner) (*profile.LessonRecord, error) {
	var (
		rec                      profile.LessonRecord
		difficulty, status       string
		errorFree, levelComplete int
		completedAt              sql.NullTime
	)
	err := row.Scan(
		&rec.LearnerID, &rec.LessonID, &rec.CourseLevel, &difficulty, &status, &rec.Score,
		&rec.Attempts, &errorFree, &levelComplete, &rec.Code, &completedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan lesson progress: %w", err)
	}
	rec.Difficulty = progression.Difficulty(difficulty)
	rec.Status = profile.LessonStatus(status)
	rec.ErrorFree = errorFree != 0
	rec.LevelComplete = levelComplete != 0
	rec.CompletedAt = fromNullTime(completedAt)
	return &rec, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
