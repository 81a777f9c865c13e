// Package appreciation turns awards into short celebration messages, so a
// level-up or a rare achievement gets noticed without flooding the learner.
package appreciation

import (
	"time"

	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/progression"
)

// Moment represents an appreciation-worthy event
type Moment struct {
	Type      MomentType
	Evidence  Evidence
	Triggered time.Time
}

// MomentType categorizes appreciation moments
type MomentType string

const (
	MomentMaxLevel        MomentType = "max_level"
	MomentLevelUp         MomentType = "level_up"
	MomentRareAchievement MomentType = "rare_achievement"
	MomentAchievement     MomentType = "achievement"
	MomentProject         MomentType = "project_published"
	MomentStreak          MomentType = "streak"
	MomentHighGrade       MomentType = "high_grade"
	MomentAlmostLevelUp   MomentType = "almost_level_up"
	MomentXPEarned        MomentType = "xp_earned"
)

// Evidence provides the data backing an appreciation moment
type Evidence struct {
	Level       int    `json:"level,omitempty"`
	Title       string `json:"title,omitempty"`
	Achievement string `json:"achievement,omitempty"`
	Rarity      string `json:"rarity,omitempty"`
	StreakDays  int    `json:"streak_days,omitempty"`
	XP          int    `json:"xp,omitempty"`
	XPRemaining int    `json:"xp_remaining,omitempty"`
}

// priority orders moments; higher is more significant
var priority = map[MomentType]int{
	MomentMaxLevel:        10,
	MomentLevelUp:         9,
	MomentRareAchievement: 8,
	MomentProject:         6,
	MomentAchievement:     5,
	MomentStreak:          5,
	MomentHighGrade:       4,
	MomentAlmostLevelUp:   3,
	MomentXPEarned:        1,
}

// Priority returns the significance of a moment type
func Priority(t MomentType) int {
	return priority[t]
}

// streakWorthy is the shortest login streak worth mentioning
const streakWorthy = 3

// almostThreshold is how close to the next level counts as almost there
const almostThreshold = 0.9

// Detector identifies appreciation-worthy moments
type Detector struct {
	now func() time.Time
}

// NewDetector creates a new appreciation detector
func NewDetector() *Detector {
	return &Detector{now: time.Now}
}

// Detect finds the moments in one award
func (d *Detector) Detect(a *profile.Award) []Moment {
	if a == nil {
		return nil
	}
	var moments []Moment
	add := func(t MomentType, e Evidence) {
		moments = append(moments, Moment{Type: t, Evidence: e, Triggered: d.now()})
	}

	if a.After.IsMaxLevel() && !a.Before.IsMaxLevel() {
		add(MomentMaxLevel, Evidence{Level: a.After.Level, Title: progression.Title(a.After.Level)})
	} else if a.LevelledUp {
		add(MomentLevelUp, Evidence{Level: a.After.Level, Title: progression.Title(a.After.Level)})
	}

	for _, ach := range a.Unlocked {
		e := Evidence{Achievement: ach.Title, Rarity: string(ach.Rarity)}
		switch ach.Rarity {
		case progression.RarityEpic, progression.RarityLegendary:
			add(MomentRareAchievement, e)
		default:
			add(MomentAchievement, e)
		}
	}

	switch a.Reason {
	case profile.ReasonProject:
		add(MomentProject, Evidence{XP: a.XP})
	case profile.ReasonDailyLogin:
		if a.Profile != nil && a.Profile.StreakDays >= streakWorthy {
			add(MomentStreak, Evidence{StreakDays: a.Profile.StreakDays})
		}
	case profile.ReasonGradeBonus:
		add(MomentHighGrade, Evidence{XP: a.XP})
	}

	if !a.LevelledUp && !a.After.IsMaxLevel() && a.XP > 0 && a.After.ProgressFraction >= almostThreshold {
		add(MomentAlmostLevelUp, Evidence{
			Level:       a.After.Level + 1,
			XPRemaining: a.After.XPToNextLevel - a.After.XPIntoLevel,
		})
	}
	if len(moments) == 0 && a.XP > 0 {
		add(MomentXPEarned, Evidence{XP: a.XP})
	}
	return moments
}

// SelectBest picks the most significant moment; the first wins ties
func (d *Detector) SelectBest(moments []Moment) *Moment {
	if len(moments) == 0 {
		return nil
	}

	best := moments[0]
	for _, m := range moments[1:] {
		if priority[m.Type] > priority[best.Type] {
			best = m
		}
	}
	return &best
}
