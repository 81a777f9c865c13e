// Package progression maps cumulative experience points to levels.
//
// Every function here is pure: callers pass the learner's total XP explicitly
// and receive derived facts. Nothing is stored or mutated.
package progression

const (
	// MaxLevel is the highest level a learner can reach.
	MaxLevel = 10

	// CostFactor is k in the cost curve level*(level+1)*k.
	CostFactor = 50
)

// Progression holds the facts derived from a total XP value
type Progression struct {
	Level            int     `json:"level"`
	XPIntoLevel      int     `json:"xp_into_level"`
	XPToNextLevel    int     `json:"xp_to_next_level"`
	ProgressFraction float64 `json:"progress_fraction"`
}

// IsMaxLevel reports whether the progression sits at the level ceiling
func (p Progression) IsMaxLevel() bool {
	return p.Level >= MaxLevel
}

// XPRequiredForLevel returns the cost of advancing from level to level+1.
// Levels below 1 are treated as level 1.
func XPRequiredForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return level * (level + 1) * CostFactor
}

// CumulativeXP returns the total XP needed to reach level from zero.
// Level 1 costs nothing; levels above MaxLevel are capped.
func CumulativeXP(level int) int {
	if level > MaxLevel {
		level = MaxLevel
	}
	total := 0
	for l := 1; l < level; l++ {
		total += XPRequiredForLevel(l)
	}
	return total
}

// Resolve converts a total XP value into level and progress facts.
// Negative input is treated as zero.
func Resolve(totalXP int) Progression {
	if totalXP < 0 {
		totalXP = 0
	}

	level := 1
	cumulative := 0
	for level < MaxLevel && cumulative+XPRequiredForLevel(level) <= totalXP {
		cumulative += XPRequiredForLevel(level)
		level++
	}

	into := totalXP - cumulative
	toNext := XPRequiredForLevel(level)

	fraction := float64(into) / float64(toNext)
	if fraction > 1.0 {
		fraction = 1.0
	}

	return Progression{
		Level:            level,
		XPIntoLevel:      into,
		XPToNextLevel:    toNext,
		ProgressFraction: fraction,
	}
}

// LevelledUp reports whether a freshly resolved progression is above the
// level the caller had stored before the award.
func LevelledUp(storedLevel int, resolved Progression) bool {
	return resolved.Level > storedLevel
}
