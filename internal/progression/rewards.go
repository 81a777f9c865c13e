package progression

import (
	"errors"
	"fmt"
)

var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Difficulty grades a lesson
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Reward is an XP and coin grant
type Reward struct {
	XP    int `json:"xp"`
	Coins int `json:"coins"`
}

// Add returns the sum of two rewards
func (r Reward) Add(other Reward) Reward {
	return Reward{XP: r.XP + other.XP, Coins: r.Coins + other.Coins}
}

var (
	ProjectReward          = Reward{XP: 150, Coins: 100}
	DailyLoginReward       = Reward{XP: 5, Coins: 10}
	FirstAchievementReward = Reward{XP: 20}
	HelpOthersReward       = Reward{XP: 10}
	WeekStreakReward       = Reward{Coins: 50}
)

var lessonRewards = map[Difficulty]Reward{
	DifficultyEasy:   {XP: 10, Coins: 5},
	DifficultyMedium: {XP: 30, Coins: 15},
	DifficultyHard:   {XP: 80, Coins: 40},
}

// ParseDifficulty validates a difficulty name
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if _, ok := lessonRewards[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
	return d, nil
}

// LessonReward returns the grant for completing a lesson of the given difficulty
func LessonReward(d Difficulty) (Reward, error) {
	r, ok := lessonRewards[d]
	if !ok {
		return Reward{}, fmt.Errorf("%w: %q", ErrUnknownDifficulty, d)
	}
	return r, nil
}

// GradeBonusThreshold is the lowest AI grade that earns bonus XP.
const GradeBonusThreshold = 80

// GradeBonusXP returns the XP earned for an AI-graded submission:
// five XP per full ten points, only at or above the threshold.
func GradeBonusXP(score int) int {
	if score < GradeBonusThreshold {
		return 0
	}
	if score > 100 {
		score = 100
	}
	return (score / 10) * 5
}
