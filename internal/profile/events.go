package profile

import (
	"context"
	"time"
)

// EventType names a learner event
type EventType string

const (
	EventXPAwarded           EventType = "xp_awarded"
	EventLevelUp             EventType = "level_up"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventGuestMigrated       EventType = "guest_migrated"
	EventProfileDeleted      EventType = "profile_deleted"
)

// Event is published after a learner's state changes
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	LearnerID   string    `json:"learner_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	XP          int       `json:"xp"`
	TotalXP     int       `json:"total_xp"`
	Level       int       `json:"level"`
	Coins       int       `json:"coins,omitempty"`
	Achievement string    `json:"achievement,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher delivers learner events. Publish failures never roll back the
// state change that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event Event) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Publishers fans an event out to several publishers
type Publishers []Publisher

// Publish delivers to every publisher and returns the first error
func (ps Publishers) Publish(ctx context.Context, event Event) error {
	var first error
	for _, p := range ps {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
