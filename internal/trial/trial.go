// Package trial implements the guest trial window.
package trial

import (
	"fmt"
	"math"
	"time"
)

// DefaultDuration is the length of a guest trial.
const DefaultDuration = 30 * 24 * time.Hour

// ReminderDays are the remaining-day counts on which a reminder is shown.
var ReminderDays = []int{7, 3, 1, 0}

// Window is a trial period. A zero Window is not a trial.
type Window struct {
	StartedAt *time.Time `json:"started_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Start opens a trial beginning at now.
func Start(now time.Time, duration time.Duration) Window {
	if duration <= 0 {
		duration = DefaultDuration
	}
	started := now.UTC()
	expires := started.Add(duration)
	return Window{StartedAt: &started, ExpiresAt: &expires}
}

// Active reports whether the window holds trial dates at all.
func (w Window) Active() bool {
	return w.StartedAt != nil && w.ExpiresAt != nil
}

// Valid reports whether the trial is still running at now.
func (w Window) Valid(now time.Time) bool {
	if !w.Active() {
		return false
	}
	return now.Before(*w.ExpiresAt)
}

// DaysRemaining rounds the time left up to whole days, never below zero.
func (w Window) DaysRemaining(now time.Time) int {
	if w.ExpiresAt == nil {
		return 0
	}
	left := w.ExpiresAt.Sub(now)
	days := int(math.Ceil(left.Hours() / 24))
	return max(0, days)
}

// ShouldRemind reports whether a reminder is due with days remaining.
func ShouldRemind(days int) bool {
	for _, d := range ReminderDays {
		if d == days {
			return true
		}
	}
	return false
}

// ReminderMessage returns the learner-facing reminder, empty outside the
// last week.
func ReminderMessage(days int) string {
	switch {
	case days <= 0:
		return "Your trial ends today. Register an account to keep learning."
	case days == 1:
		return "Your trial has 1 day left. Register now to keep all of your progress!"
	case days <= 3:
		return fmt.Sprintf("Your trial has %d days left. Register to save your learning data for good.", days)
	case days <= 7:
		return fmt.Sprintf("Your trial has %d days left. Register soon to keep your progress.", days)
	}
	return ""
}

// Status is the trial summary served to clients.
type Status struct {
	Trial         bool       `json:"trial"`
	Valid         bool       `json:"valid"`
	DaysRemaining int        `json:"days_remaining"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Remind        bool       `json:"remind"`
	Message       string     `json:"message,omitempty"`
}

// Describe summarizes w at now.
func (w Window) Describe(now time.Time) Status {
	if !w.Active() {
		return Status{}
	}
	days := w.DaysRemaining(now)
	st := Status{
		Trial:         true,
		Valid:         w.Valid(now),
		DaysRemaining: days,
		ExpiresAt:     w.ExpiresAt,
		Remind:        ShouldRemind(days),
	}
	if st.Remind {
		st.Message = ReminderMessage(days)
	}
	return st
}
