package progression

import (
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownAchievement = errors.New("unknown achievement")

// Rarity classifies how hard an achievement is to earn
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Achievement codes
const (
	AchievementHelloWorld     = "hello_world"
	AchievementFirstLesson    = "first_lesson"
	AchievementFirstProject   = "first_project"
	AchievementCompleteLevel1 = "complete_level_1"
	AchievementCompleteLevel2 = "complete_level_2"
	AchievementCompleteLevel3 = "complete_level_3"
	AchievementCompleteLevel4 = "complete_level_4"
	AchievementCompleteLevel5 = "complete_level_5"
	AchievementPerfectScore   = "perfect_score"
	AchievementSpeedDemon     = "speed_demon"
	AchievementNoErrors       = "no_errors"
	AchievementHelpful        = "helpful"
	AchievementPopular        = "popular"
	AchievementCommunityStar  = "community_star"
	AchievementWeekStreak     = "week_streak"
	AchievementMonthStreak    = "month_streak"
	AchievementYearStreak     = "year_streak"
	AchievementBossKiller     = "boss_killer"
	AchievementGraduate       = "graduate"
	AchievementLegend         = "legend"
)

// CourseLevels is the number of course tiers (HTML basics through projects)
const CourseLevels = 5

// Achievement describes an unlockable badge
type Achievement struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Rarity      Rarity `json:"rarity"`
	XPReward    int    `json:"xp_reward"`
}

// Stats are the learner counters achievement rules look at
type Stats struct {
	PreviewRuns          int   `json:"preview_runs"`
	CompletedLessons     int   `json:"completed_lessons"`
	LessonsToday         int   `json:"lessons_today"`
	CompletedProjects    int   `json:"completed_projects"`
	PerfectScores        int   `json:"perfect_scores"`
	ErrorFreeLessons     int   `json:"error_free_lessons"`
	HardLessons          int   `json:"hard_lessons"`
	HelpCount            int   `json:"help_count"`
	ProjectLikes         int   `json:"project_likes"`
	StreakDays           int   `json:"streak_days"`
	Level                int   `json:"level"`
	CourseLevelsComplete []int `json:"course_levels_complete"`
}

type rule struct {
	achievement Achievement
	met         func(Stats) bool
}

func courseLevelDone(n int) func(Stats) bool {
	return func(s Stats) bool {
		return slices.Contains(s.CourseLevelsComplete, n)
	}
}

var catalog = []rule{
	{Achievement{AchievementHelloWorld, "Hello, World", "Run your first preview", RarityCommon, 20},
		func(s Stats) bool { return s.PreviewRuns >= 1 }},
	{Achievement{AchievementFirstLesson, "First Steps", "Complete your first lesson", RarityCommon, 20},
		func(s Stats) bool { return s.CompletedLessons >= 1 }},
	{Achievement{AchievementFirstProject, "Maker", "Publish your first project", RarityCommon, 30},
		func(s Stats) bool { return s.CompletedProjects >= 1 }},
	{Achievement{AchievementCompleteLevel1, "HTML Basics", "Finish the HTML basics course", RarityCommon, 50},
		courseLevelDone(1)},
	{Achievement{AchievementCompleteLevel2, "Stylist", "Finish the CSS styling course", RarityRare, 80},
		courseLevelDone(2)},
	{Achievement{AchievementCompleteLevel3, "Scripter", "Finish the JavaScript fundamentals course", RarityRare, 100},
		courseLevelDone(3)},
	{Achievement{AchievementCompleteLevel4, "DOM Tamer", "Finish the DOM manipulation course", RarityEpic, 150},
		courseLevelDone(4)},
	{Achievement{AchievementCompleteLevel5, "Builder", "Finish the projects course", RarityEpic, 200},
		courseLevelDone(5)},
	{Achievement{AchievementPerfectScore, "Flawless", "Score 100 on a lesson", RarityRare, 50},
		func(s Stats) bool { return s.PerfectScores >= 1 }},
	{Achievement{AchievementSpeedDemon, "Speed Demon", "Complete 5 lessons in one day", RarityRare, 50},
		func(s Stats) bool { return s.LessonsToday >= 5 }},
	{Achievement{AchievementNoErrors, "Clean Run", "Complete 10 lessons without errors", RarityRare, 60},
		func(s Stats) bool { return s.ErrorFreeLessons >= 10 }},
	{Achievement{AchievementHelpful, "Helpful", "Help 5 other learners", RarityCommon, 30},
		func(s Stats) bool { return s.HelpCount >= 5 }},
	{Achievement{AchievementPopular, "Popular", "Receive 10 likes on your projects", RarityRare, 50},
		func(s Stats) bool { return s.ProjectLikes >= 10 }},
	{Achievement{AchievementCommunityStar, "Community Star", "Receive 100 likes on your projects", RarityEpic, 150},
		func(s Stats) bool { return s.ProjectLikes >= 100 }},
	{Achievement{AchievementWeekStreak, "Week Streak", "Learn 7 days in a row", RarityCommon, 30},
		func(s Stats) bool { return s.StreakDays >= 7 }},
	{Achievement{AchievementMonthStreak, "Month Streak", "Learn 30 days in a row", RarityEpic, 150},
		func(s Stats) bool { return s.StreakDays >= 30 }},
	{Achievement{AchievementYearStreak, "Year Streak", "Learn 365 days in a row", RarityLegendary, 500},
		func(s Stats) bool { return s.StreakDays >= 365 }},
	{Achievement{AchievementBossKiller, "Boss Killer", "Complete 10 hard lessons", RarityEpic, 120},
		func(s Stats) bool { return s.HardLessons >= 10 }},
	{Achievement{AchievementGraduate, "Graduate", "Finish every course level", RarityLegendary, 300},
		func(s Stats) bool {
			for n := 1; n <= CourseLevels; n++ {
				if !slices.Contains(s.CourseLevelsComplete, n) {
					return false
				}
			}
			return true
		}},
	{Achievement{AchievementLegend, "Legend", "Reach the maximum level", RarityLegendary, 500},
		func(s Stats) bool { return s.Level >= MaxLevel }},
}

// Achievements returns the full catalog in display order
func Achievements() []Achievement {
	out := make([]Achievement, len(catalog))
	for i, r := range catalog {
		out[i] = r.achievement
	}
	return out
}

// LookupAchievement finds a catalog entry by code
func LookupAchievement(code string) (Achievement, error) {
	for _, r := range catalog {
		if r.achievement.Code == code {
			return r.achievement, nil
		}
	}
	return Achievement{}, fmt.Errorf("%w: %s", ErrUnknownAchievement, code)
}

// Evaluate returns the achievements whose rules are met by stats and that
// are not already in owned.
func Evaluate(stats Stats, owned []string) []Achievement {
	var earned []Achievement
	for _, r := range catalog {
		if slices.Contains(owned, r.achievement.Code) {
			continue
		}
		if r.met(stats) {
			earned = append(earned, r.achievement)
		}
	}
	return earned
}
