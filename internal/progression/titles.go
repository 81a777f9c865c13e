package progression

var titles = [MaxLevel]string{
	"Novice",
	"Apprentice",
	"Trainee",
	"Developer",
	"Engineer",
	"Expert",
	"Master",
	"Grandmaster",
	"Legend",
	"Web Wizard",
}

// Title returns the display title for a level, clamped to [1, MaxLevel]
func Title(level int) string {
	if level < 1 {
		level = 1
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return titles[level-1]
}
