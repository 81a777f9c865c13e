package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gamecodelab/gamecode/internal/catalog"
	"github.com/gamecodelab/gamecode/internal/config"
	"github.com/gamecodelab/gamecode/internal/daemon"
	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/progression"
)

// cmdLevel resolves an XP total locally; no daemon needed
func cmdLevel(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: gamecode level <xp>")
	}
	xp, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("xp must be an integer: %w", err)
	}

	fmt.Print(formatLevel(xp))
	return nil
}

func formatLevel(xp int) string {
	p := progression.Resolve(xp)

	var b strings.Builder
	fmt.Fprintf(&b, "Level %d - %s\n", p.Level, progression.Title(p.Level))
	if p.IsMaxLevel() {
		fmt.Fprintf(&b, "%s max level (%d XP)\n", renderProgressBar(1, 30), max(xp, 0))
		return b.String()
	}
	fmt.Fprintf(&b, "%s %d/%d XP to level %d\n",
		renderProgressBar(p.ProgressFraction, 30), p.XPIntoLevel, p.XPToNextLevel, p.Level+1)
	return b.String()
}

// cmdCourses lists the course catalog, or one lesson when given an id
func cmdCourses(args []string) error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	courses, err := daemon.OpenCatalog(cfg)
	if err != nil {
		return fmt.Errorf("load courses: %w", err)
	}

	if len(args) > 0 {
		lesson, err := courses.Lesson(args[0])
		if err != nil {
			return err
		}
		fmt.Print(formatLesson(lesson))
		return nil
	}
	fmt.Print(formatCourses(courses.Courses()))
	return nil
}

func formatCourses(courses []*catalog.Course) string {
	var b strings.Builder
	for _, c := range courses {
		fmt.Fprintf(&b, "Level %d: %s\n", c.Level, c.Title)
		for _, l := range c.Lessons {
			fmt.Fprintf(&b, "  %-34s %-7s %3d XP  %s\n", l.ID, l.Difficulty, l.Reward.XP, l.Title)
		}
	}
	return b.String()
}

func formatLesson(l *catalog.Lesson) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %d XP)\n\n", l.Title, l.Difficulty, l.Reward.XP)
	b.WriteString(strings.TrimSpace(l.Instructions))
	b.WriteString("\n")
	if len(l.Hints) > 0 {
		b.WriteString("\nHints\n")
		for i, h := range l.Hints {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, h)
		}
	}
	return b.String()
}

// cmdLearner shows a learner's profile and achievements
func cmdLearner(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: gamecode learner <id>")
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'gamecode start' first)")
	}
	id := url.PathEscape(args[0])

	var view struct {
		Profile struct {
			Username    string `json:"username"`
			DisplayName string `json:"display_name"`
			Role        string `json:"role"`
			XP          int    `json:"xp"`
			Coins       int    `json:"coins"`
			StreakDays  int    `json:"streak_days"`
			PreviewRuns int    `json:"preview_runs"`
		} `json:"profile"`
		Title string `json:"title"`
	}
	if err := getJSON("/v1/learners/"+id, &view); err != nil {
		return fmt.Errorf("get learner: %w", err)
	}

	var unlocked struct {
		Achievements []struct {
			Code       string    `json:"code"`
			UnlockedAt time.Time `json:"unlocked_at"`
		} `json:"achievements"`
	}
	if err := getJSON("/v1/learners/"+id+"/achievements", &unlocked); err != nil {
		return fmt.Errorf("get achievements: %w", err)
	}

	p := view.Profile
	name := p.DisplayName
	if name == "" {
		name = p.Username
	}
	fmt.Printf("%s (%s)\n", name, p.Role)
	fmt.Println(strings.Repeat("=", len(name)+len(p.Role)+3))
	fmt.Print(formatLevel(p.XP))
	fmt.Printf("Coins:    %d\n", p.Coins)
	fmt.Printf("Streak:   %d days\n", p.StreakDays)
	fmt.Printf("Previews: %d\n", p.PreviewRuns)

	if len(unlocked.Achievements) == 0 {
		fmt.Println("\nNo achievements yet.")
		return nil
	}
	fmt.Println("\nAchievements")
	fmt.Println("------------")
	for _, u := range unlocked.Achievements {
		a, err := progression.LookupAchievement(u.Code)
		if err != nil {
			fmt.Printf("  %-20s %s\n", u.Code, u.UnlockedAt.Format("2006-01-02"))
			continue
		}
		fmt.Printf("  %-20s %-10s %s\n", a.Title, a.Rarity, u.UnlockedAt.Format("2006-01-02"))
	}
	return nil
}

// cmdTrial shows a guest's trial window
func cmdTrial(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: gamecode trial <id>")
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'gamecode start' first)")
	}

	var status struct {
		Trial         bool       `json:"trial"`
		Valid         bool       `json:"valid"`
		DaysRemaining int        `json:"days_remaining"`
		ExpiresAt     *time.Time `json:"expires_at"`
		Message       string     `json:"message"`
	}
	if err := getJSON("/v1/learners/"+url.PathEscape(args[0])+"/trial", &status); err != nil {
		return fmt.Errorf("get trial: %w", err)
	}

	switch {
	case !status.Trial:
		fmt.Println("No trial: this is a registered account.")
	case !status.Valid:
		fmt.Println("Trial expired. Register to keep your progress.")
	default:
		fmt.Printf("Trial active: %d days remaining", status.DaysRemaining)
		if status.ExpiresAt != nil {
			fmt.Printf(" (until %s)", status.ExpiresAt.Format("2006-01-02"))
		}
		fmt.Println()
	}
	if status.Message != "" {
		fmt.Println(status.Message)
	}
	return nil
}

// cmdLeaderboard prints one page of the ranking
func cmdLeaderboard(args []string) error {
	page := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("page must be an integer: %w", err)
		}
		page = n
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'gamecode start' first)")
	}

	var result struct {
		Entries []struct {
			DisplayName string `json:"display_name"`
			LearnerID   string `json:"learner_id"`
			XP          int    `json:"xp"`
			Level       int    `json:"level"`
			Title       string `json:"title"`
			Rank        int64  `json:"rank"`
		} `json:"entries"`
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	}
	if err := getJSON(fmt.Sprintf("/v1/leaderboard?page=%d&size=20", page), &result); err != nil {
		return fmt.Errorf("get leaderboard: %w", err)
	}

	fmt.Println("Leaderboard")
	fmt.Println("===========")
	if len(result.Entries) == 0 {
		fmt.Println("Nobody ranked yet.")
		return nil
	}
	for _, e := range result.Entries {
		name := e.DisplayName
		if name == "" {
			name = e.LearnerID
		}
		fmt.Printf("%4d. %-20s L%-2d %-12s %7d XP\n", e.Rank, name, e.Level, e.Title, e.XP)
	}
	fmt.Printf("\nPage %d of %d\n", result.Page, result.TotalPages)
	return nil
}

// cmdPreview assembles local files into one sandboxed page
func cmdPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	cssPath := fs.String("css", "", "stylesheet to inline")
	jsPath := fs.String("js", "", "script to inline")
	out := fs.String("o", "", "output file (default stdout)")

	// the markup file may come before the flags
	var markupPath string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		markupPath, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if markupPath == "" && fs.NArg() > 0 {
		markupPath = fs.Arg(0)
	}
	if markupPath == "" && *cssPath == "" && *jsPath == "" {
		return fmt.Errorf("usage: gamecode preview <file.html> [-css file] [-js file] [-o output]")
	}

	src, err := readSource(markupPath, *cssPath, *jsPath)
	if err != nil {
		return err
	}
	if err := src.Validate(); err != nil {
		return err
	}
	doc := preview.Assemble(src, 1, preview.AssembleOptions{})

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := io.WriteString(w, doc.HTML); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	if *out != "" {
		fmt.Fprintf(os.Stderr, "✓ Preview written to %s (open it in an iframe with sandbox=%q)\n",
			*out, preview.SandboxAttribute())
	}
	return nil
}

// readSource loads the three fragments; empty paths stay empty
func readSource(markupPath, stylePath, scriptPath string) (preview.Source, error) {
	var src preview.Source
	for _, f := range []struct {
		path string
		dst  *string
	}{
		{markupPath, &src.Markup},
		{stylePath, &src.Style},
		{scriptPath, &src.Script},
	} {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return preview.Source{}, fmt.Errorf("read %s: %w", f.path, err)
		}
		*f.dst = string(data)
	}
	return src, nil
}
