package progression

import (
	"math"
	"testing"
)

func TestXPRequiredForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{0, 100},
		{1, 100},
		{2, 300},
		{3, 600},
		{9, 4500},
		{10, 5500},
	}

	for _, tt := range tests {
		if got := XPRequiredForLevel(tt.level); got != tt.want {
			t.Errorf("XPRequiredForLevel(%d) = %d; want %d", tt.level, got, tt.want)
		}
	}
}

func TestXPRequiredForLevel_StrictlyIncreasing(t *testing.T) {
	for level := 1; level < MaxLevel+5; level++ {
		if XPRequiredForLevel(level+1) <= XPRequiredForLevel(level) {
			t.Fatalf("cost for level %d is not above level %d", level+1, level)
		}
	}
}

func TestCumulativeXP(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{1, 0},
		{2, 100},
		{3, 400},
		{4, 1000},
		{8, 8400},
		{10, 16500},
		{12, 16500},
	}

	for _, tt := range tests {
		if got := CumulativeXP(tt.level); got != tt.want {
			t.Errorf("CumulativeXP(%d) = %d; want %d", tt.level, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		xp       int
		level    int
		into     int
		toNext   int
		fraction float64
	}{
		{"zero", 0, 1, 0, 100, 0},
		{"half of first level", 50, 1, 50, 100, 0.5},
		{"just below threshold", 99, 1, 99, 100, 0.99},
		{"exact threshold", 100, 2, 0, 300, 0},
		{"mid level two", 250, 2, 150, 300, 0.5},
		{"level three", 400, 3, 0, 600, 0},
		{"level four", 1000, 4, 0, 1000, 0},
		{"ten thousand", 10000, 8, 1600, 3600, 1600.0 / 3600.0},
		{"reach max", 16500, 10, 0, 5500, 0},
		{"max level full", 22000, 10, 5500, 5500, 1},
		{"far beyond max", 1_000_000, 10, 983500, 5500, 1},
		{"negative", -100, 1, 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Resolve(tt.xp)
			if p.Level != tt.level {
				t.Errorf("Level = %d; want %d", p.Level, tt.level)
			}
			if p.XPIntoLevel != tt.into {
				t.Errorf("XPIntoLevel = %d; want %d", p.XPIntoLevel, tt.into)
			}
			if p.XPToNextLevel != tt.toNext {
				t.Errorf("XPToNextLevel = %d; want %d", p.XPToNextLevel, tt.toNext)
			}
			if math.Abs(p.ProgressFraction-tt.fraction) > 1e-9 {
				t.Errorf("ProgressFraction = %f; want %f", p.ProgressFraction, tt.fraction)
			}
		})
	}
}

func TestResolve_NegativeMatchesZero(t *testing.T) {
	if Resolve(-100) != Resolve(0) {
		t.Errorf("Resolve(-100) = %+v; want %+v", Resolve(-100), Resolve(0))
	}
}

func TestResolve_FirstThresholdLevelsUp(t *testing.T) {
	p := Resolve(XPRequiredForLevel(1))
	if p.Level != 2 || p.XPIntoLevel != 0 {
		t.Errorf("Resolve(threshold) = %+v; want level 2 with 0 into level", p)
	}
}

func TestResolve_Bounds(t *testing.T) {
	for xp := 0; xp <= 30000; xp += 37 {
		p := Resolve(xp)
		if p.Level < 1 || p.Level > MaxLevel {
			t.Fatalf("Resolve(%d).Level = %d; out of range", xp, p.Level)
		}
		if p.ProgressFraction < 0 || p.ProgressFraction > 1 {
			t.Fatalf("Resolve(%d).ProgressFraction = %f; out of range", xp, p.ProgressFraction)
		}
		if p.XPToNextLevel <= 0 {
			t.Fatalf("Resolve(%d).XPToNextLevel = %d; want positive", xp, p.XPToNextLevel)
		}
	}
}

func TestResolve_Monotonic(t *testing.T) {
	prev := Resolve(0).Level
	for xp := 1; xp <= 25000; xp++ {
		level := Resolve(xp).Level
		if level < prev {
			t.Fatalf("level dropped from %d to %d at xp %d", prev, level, xp)
		}
		prev = level
	}
}

func TestResolve_Idempotent(t *testing.T) {
	if Resolve(777) != Resolve(777) {
		t.Error("Resolve should return identical results for identical input")
	}
}

func TestLevelledUp(t *testing.T) {
	if !LevelledUp(1, Resolve(100)) {
		t.Error("LevelledUp(1, level 2) = false; want true")
	}
	if LevelledUp(2, Resolve(150)) {
		t.Error("LevelledUp(2, level 2) = true; want false")
	}
	if LevelledUp(5, Resolve(0)) {
		t.Error("LevelledUp(5, level 1) = true; want false")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		level int
		want  string
	}{
		{-1, "Novice"},
		{1, "Novice"},
		{4, "Developer"},
		{10, "Web Wizard"},
		{42, "Web Wizard"},
	}

	for _, tt := range tests {
		if got := Title(tt.level); got != tt.want {
			t.Errorf("Title(%d) = %q; want %q", tt.level, got, tt.want)
		}
	}
}

func TestProgression_IsMaxLevel(t *testing.T) {
	if Resolve(0).IsMaxLevel() {
		t.Error("level 1 should not be max level")
	}
	if !Resolve(50000).IsMaxLevel() {
		t.Error("50000 XP should be max level")
	}
}
