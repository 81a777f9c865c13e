package profile

import (
	"context"
	"time"
)

// Store is the persistence interface for learner state. The sqlite,
// postgres and local JSON stores implement it.
type Store interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	UpdateProfile(ctx context.Context, p *Profile) error
	DeleteProfile(ctx context.Context, id string) error

	GetLesson(ctx context.Context, learnerID, lessonID string) (*LessonRecord, error)
	SaveLesson(ctx context.Context, rec *LessonRecord) error
	ListLessons(ctx context.Context, learnerID string) ([]LessonRecord, error)

	ListAchievements(ctx context.Context, learnerID string) ([]UnlockedAchievement, error)
	GrantAchievement(ctx context.Context, learnerID, code string, at time.Time) error

	ProjectTotals(ctx context.Context, learnerID string) (ProjectTotals, error)

	// TransferLearnerData replaces the lesson progress and achievements of
	// toID with those of fromID and reassigns fromID's projects.
	TransferLearnerData(ctx context.Context, fromID, toID string) error
}
