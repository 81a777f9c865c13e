package appreciation

import (
	"fmt"
	"math/rand/v2"
)

// Message represents an appreciation message
type Message struct {
	Text     string     `json:"text"`
	Type     MomentType `json:"type"`
	Evidence Evidence   `json:"evidence"`
}

// Generator creates appreciation messages from moments
type Generator struct {
	templates map[MomentType][]string
	pick      func(n int) int
}

// NewGenerator creates a new message generator with default templates
func NewGenerator() *Generator {
	return &Generator{
		templates: defaultTemplates(),
		pick:      rand.IntN,
	}
}

// Generate creates an appreciation message for a moment
func (g *Generator) Generate(moment *Moment) *Message {
	if moment == nil {
		return nil
	}

	templates, ok := g.templates[moment.Type]
	if !ok || len(templates) == 0 {
		return nil
	}

	// Select a template randomly for variety
	template := templates[g.pick(len(templates))]

	return &Message{
		Text:     g.formatTemplate(template, moment),
		Type:     moment.Type,
		Evidence: moment.Evidence,
	}
}

func (g *Generator) formatTemplate(template string, moment *Moment) string {
	e := moment.Evidence

	switch moment.Type {
	case MomentMaxLevel, MomentLevelUp:
		return fmt.Sprintf(template, e.Level, e.Title)
	case MomentRareAchievement, MomentAchievement:
		return fmt.Sprintf(template, e.Achievement)
	case MomentStreak:
		return fmt.Sprintf(template, e.StreakDays)
	case MomentAlmostLevelUp:
		return fmt.Sprintf(template, e.XPRemaining, e.Level)
	case MomentProject, MomentHighGrade, MomentXPEarned:
		return fmt.Sprintf(template, e.XP)
	default:
		return template
	}
}

func defaultTemplates() map[MomentType][]string {
	return map[MomentType][]string{
		MomentMaxLevel: {
			"Level %d: %s. You reached the top of the ladder.",
			"Level %d, %s. Nothing left to unlock but bigger projects.",
		},

		MomentLevelUp: {
			"Level up! You are now level %d, %s.",
			"Welcome to level %d. The title %s is yours.",
			"Level %d reached. Say hello to %s.",
		},

		MomentRareAchievement: {
			"Rare achievement unlocked: %s. Few learners get this one.",
			"%s unlocked. That one takes real persistence.",
		},

		MomentAchievement: {
			"Achievement unlocked: %s.",
			"New badge: %s.",
		},

		MomentProject: {
			"Project published for %d XP. Share it with the community.",
			"Your project is live and earned %d XP.",
		},

		MomentStreak: {
			"%d days in a row. Habits like this compound.",
			"A %d-day streak. Keep showing up.",
		},

		MomentHighGrade: {
			"Great grade! %d bonus XP for clean work.",
			"The tutor liked that one: %d bonus XP.",
		},

		MomentAlmostLevelUp: {
			"Only %d XP until level %d.",
			"%d XP to go before level %d.",
		},

		MomentXPEarned: {
			"+%d XP.",
			"Nice, %d XP earned.",
		},
	}
}

// ShouldAppreciate determines if a moment is worth showing given how long
// ago the learner last saw one
func ShouldAppreciate(lastAppreciationMinutes int, momentPriority int) bool {
	switch {
	case momentPriority >= 8:
		return true
	case momentPriority >= 4:
		return lastAppreciationMinutes >= 5
	default:
		return lastAppreciationMinutes >= 30
	}
}
