// Package profile owns learner state. Service is the single writer of XP,
// level and coins; everything else reads profiles through it.
package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/gamecodelab/gamecode/internal/progression"
	"github.com/gamecodelab/gamecode/internal/trial"
)

var (
	ErrNotFound          = errors.New("profile not found")
	ErrAlreadyExists     = errors.New("profile already exists")
	ErrInvalidRole       = errors.New("invalid role")
	ErrNotGuest          = errors.New("profile is not a guest")
	ErrTrialExpired      = errors.New("trial expired")
	ErrAlreadyUnlocked   = errors.New("achievement already unlocked")
	ErrInvalidScore      = errors.New("score must be between 0 and 100")
	ErrInvalidCompletion = errors.New("invalid lesson completion")
	ErrUsernameRequired  = errors.New("username is required")
)

// Role of a learner account
type Role string

const (
	RoleGuest   Role = "guest"
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role name
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleGuest, RoleStudent, RoleTeacher, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Profile is the persisted learner record
type Profile struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	DisplayName    string     `json:"display_name"`
	Role           Role       `json:"role"`
	XP             int        `json:"xp"`
	Level          int        `json:"level"`
	Coins          int        `json:"coins"`
	StreakDays     int        `json:"streak_days"`
	PreviewRuns    int        `json:"preview_runs"`
	HelpCount      int        `json:"help_count"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Progression resolves the stored XP total
func (p *Profile) Progression() progression.Progression {
	return progression.Resolve(p.XP)
}

// Trial returns the guest trial window
func (p *Profile) Trial() trial.Window {
	return trial.Window{StartedAt: p.TrialStartedAt, ExpiresAt: p.TrialExpiresAt}
}

// LessonStatus is the state of one lesson for one learner
type LessonStatus string

const (
	LessonLocked     LessonStatus = "locked"
	LessonInProgress LessonStatus = "in_progress"
	LessonCompleted  LessonStatus = "completed"
)

// LessonRecord is a learner's progress on one lesson
type LessonRecord struct {
	LearnerID     string                 `json:"learner_id"`
	LessonID      string                 `json:"lesson_id"`
	CourseLevel   int                    `json:"course_level"`
	Difficulty    progression.Difficulty `json:"difficulty"`
	Status        LessonStatus           `json:"status"`
	Score         int                    `json:"score"`
	Attempts      int                    `json:"attempts"`
	ErrorFree     bool                   `json:"error_free"`
	LevelComplete bool                   `json:"level_complete"`
	Code          string                 `json:"code,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// LessonCompletion is what a client reports when a lesson is passed.
// LevelComplete marks the final lesson of its course level.
type LessonCompletion struct {
	LessonID      string                 `json:"lesson_id"`
	CourseLevel   int                    `json:"course_level"`
	Difficulty    progression.Difficulty `json:"difficulty"`
	Score         int                    `json:"score"`
	ErrorFree     bool                   `json:"error_free"`
	LevelComplete bool                   `json:"level_complete"`
	Code          string                 `json:"code,omitempty"`
}

// Validate checks the completion fields
func (c LessonCompletion) Validate() error {
	if c.LessonID == "" {
		return fmt.Errorf("%w: lesson_id is required", ErrInvalidCompletion)
	}
	if c.Score < 0 || c.Score > 100 {
		return ErrInvalidScore
	}
	if c.CourseLevel < 0 || c.CourseLevel > progression.CourseLevels {
		return fmt.Errorf("%w: course_level %d", ErrInvalidCompletion, c.CourseLevel)
	}
	if _, err := progression.LessonReward(c.Difficulty); err != nil {
		return err
	}
	return nil
}

// UnlockedAchievement is an achievement owned by a learner
type UnlockedAchievement struct {
	Code       string    `json:"code"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ProjectTotals summarizes a learner's published work
type ProjectTotals struct {
	Projects int `json:"projects"`
	Likes    int `json:"likes"`
}
