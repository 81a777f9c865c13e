package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamecodelab/gamecode/internal/progression"
	"github.com/gamecodelab/gamecode/internal/trial"
)

// Reasons attached to awards and events
const (
	ReasonLesson      = "lesson_completed"
	ReasonProject     = "project_completed"
	ReasonDailyLogin  = "daily_login"
	ReasonAchievement = "achievement_unlocked"
	ReasonGradeBonus  = "grade_bonus"
	ReasonHelpOthers  = "help_others"
	ReasonPreviewRun  = "preview_run"
	ReasonSync        = "achievement_sync"
)

// Award describes one state change made by the service
type Award struct {
	LearnerID  string                    `json:"learner_id"`
	Reason     string                    `json:"reason"`
	XP         int                       `json:"xp"`
	Coins      int                       `json:"coins"`
	Before     progression.Progression   `json:"before"`
	After      progression.Progression   `json:"after"`
	LevelledUp bool                      `json:"levelled_up"`
	Title      string                    `json:"title"`
	Unlocked   []progression.Achievement `json:"unlocked,omitempty"`
	Profile    *Profile                  `json:"profile"`

	storedLevel int
}

// Config holds service settings
type Config struct {
	TrialDuration time.Duration
	Publisher     Publisher
	Logger        *slog.Logger
	Now           func() time.Time
}

// Service is the single writer of learner state. Every mutation runs under
// one lock, so the read-modify-write of a profile never interleaves.
type Service struct {
	mu sync.Mutex

	store         Store
	events        Publisher
	trialDuration time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a profile service
func NewService(store Store, cfg Config) *Service {
	if cfg.TrialDuration <= 0 {
		cfg.TrialDuration = trial.DefaultDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:         store,
		events:        cfg.Publisher,
		trialDuration: cfg.TrialDuration,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
}

// CreateRequest describes a new learner account
type CreateRequest struct {
	ID          string `json:"id,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// Create registers a learner. Guests get a trial window and a generated
// username.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Profile, error) {
	if req.Role == "" {
		req.Role = RoleStudent
	}
	if _, err := ParseRole(string(req.Role)); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := s.now().UTC()
	p := &Profile{
		ID:          id,
		Username:    strings.TrimSpace(req.Username),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        req.Role,
		Level:       1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if p.Role == RoleGuest {
		if p.Username == "" {
			p.Username = "guest_" + shortID(id)
		}
		if p.DisplayName == "" {
			p.DisplayName = "Guest"
		}
		w := trial.Start(now, s.trialDuration)
		p.TrialStartedAt = w.StartedAt
		p.TrialExpiresAt = w.ExpiresAt
	}
	if p.Username == "" {
		return nil, ErrUsernameRequired
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Username
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.CreateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	s.logger.Info("learner created", "learner_id", p.ID, "role", p.Role)
	return p, nil
}

// Get returns a learner profile
func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// Achievements returns the achievements a learner owns
func (s *Service) Achievements(ctx context.Context, id string) ([]UnlockedAchievement, error) {
	if _, err := s.store.GetProfile(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAchievements(ctx, id)
}

// Lessons returns a learner's lesson progress
func (s *Service) Lessons(ctx context.Context, id string) ([]LessonRecord, error) {
	if _, err := s.store.GetProfile(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListLessons(ctx, id)
}

// TrialStatus summarizes a learner's trial
func (s *Service) TrialStatus(ctx context.Context, id string) (trial.Status, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return trial.Status{}, err
	}
	return p.Trial().Describe(s.now()), nil
}

// CompleteLesson records a passed lesson. Only the first completion of a
// lesson is rewarded; repeats keep the best score.
func (s *Service) CompleteLesson(ctx context.Context, id string, c LessonCompletion) (*Award, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	reward, _ := progression.LessonReward(c.Difficulty)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadWritable(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec, err := s.store.GetLesson(ctx, id, c.LessonID)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &LessonRecord{LearnerID: id, LessonID: c.LessonID}
	case err != nil:
		return nil, fmt.Errorf("get lesson: %w", err)
	}

	first := rec.Status != LessonCompleted
	rec.Attempts++
	rec.CourseLevel = c.CourseLevel
	rec.Difficulty = c.Difficulty
	rec.Score = max(rec.Score, c.Score)
	rec.ErrorFree = rec.ErrorFree || c.ErrorFree
	rec.LevelComplete = rec.LevelComplete || c.LevelComplete
	if c.Code != "" {
		rec.Code = c.Code
	}
	rec.UpdatedAt = now
	if first {
		rec.Status = LessonCompleted
		rec.CompletedAt = &now
	}

	if err := s.store.SaveLesson(ctx, rec); err != nil {
		return nil, fmt.Errorf("save lesson: %w", err)
	}

	if !first {
		reward = progression.Reward{}
	}
	return s.grantLocked(ctx, p, ReasonLesson, reward)
}

// CompleteProject rewards a finished project. The project must already be
// stored so it counts toward achievements.
func (s *Service) CompleteProject(ctx context.Context, id string) (*Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadWritable(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.grantLocked(ctx, p, ReasonProject, progression.ProjectReward)
}

// DailyLogin grants the login reward once per UTC day and maintains the
// streak. A week streak adds a coin bonus.
func (s *Service) DailyLogin(ctx context.Context, id string) (*Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadWritable(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := truncateDay(now)

	reward := progression.DailyLoginReward
	if p.LastLoginAt != nil {
		last := truncateDay(p.LastLoginAt.UTC())
		switch {
		case !last.Before(today):
			return s.unchanged(p, ReasonDailyLogin), nil
		case last.Equal(today.AddDate(0, 0, -1)):
			p.StreakDays++
		default:
			p.StreakDays = 1
		}
	} else {
		p.StreakDays = 1
	}
	if p.StreakDays%7 == 0 {
		reward = reward.Add(progression.WeekStreakReward)
	}
	p.LastLoginAt = &now

	return s.grantLocked(ctx, p, ReasonDailyLogin, reward)
}

// UnlockAchievement grants a catalog achievement directly
func (s *Service) UnlockAchievement(ctx context.Context, id, code string) (*Award, error) {
	a, err := progression.LookupAchievement(code)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadWritable(ctx, id)
	if err != nil {
		return nil, err
	}

	owned, err := s.ownedCodes(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, c := range owned {
		if c == code {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyUnlocked, code)
		}
	}

	award := s.begin(p, ReasonAchievement)
	if err := s.unlockLocked(ctx, p, award, a, len(owned) == 0); err != nil {
		return nil, err
	}
	return s.finishLocked(ctx, p, award)
}

// AwardGradeBonus grants bonus XP for a high AI grade
func (s *Service) AwardGradeBonus(ctx context.Context, id string, score int) (*Award, error) {
	if score < 0 || score > 100 {
		return nil, ErrInvalidScore
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadWritable(ctx, id)
	if err != nil {
		return nil, err
	}

	xp := progression.GradeBonusXP(score)
	if xp == 0 {
		return s.unchanged(p, ReasonGradeBonus), nil
	}
	return s.grantLocked(ctx, p, ReasonGradeBonus, progression.Reward{XP: xp})
}

// HelpOthers rewards answering another learner
func (s *Service) HelpOthers(ctx context.Context, id string) (*Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loadWritable(ctx, id)
	if err != nil {
		return nil, err
	}
	p.HelpCount++
	return s.grantLocked(ctx, p, ReasonHelpOthers, progression.HelpOthersReward)
}

// RecordPreviewRun counts a rendered preview
func (s *Service) RecordPreviewRun(ctx context.Context, id string) (*Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	p.PreviewRuns++
	return s.grantLocked(ctx, p, ReasonPreviewRun, progression.Reward{})
}

// SyncAchievements re-evaluates achievement rules, for changes made
// outside the service such as project likes.
func (s *Service) SyncAchievements(ctx context.Context, id string) (*Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.grantLocked(ctx, p, ReasonSync, progression.Reward{})
}

// MigrateGuest moves a guest's progress onto a registered account: XP,
// coins and level, lesson progress, achievements and projects. The
// account's trial fields are cleared and the guest is removed.
func (s *Service) MigrateGuest(ctx context.Context, guestID, userID string) (*Profile, error) {
	if guestID == userID {
		return nil, fmt.Errorf("migrate guest: source and target are the same account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	guest, err := s.store.GetProfile(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("load guest: %w", err)
	}
	if guest.Role != RoleGuest {
		return nil, ErrNotGuest
	}
	user, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	user.XP = guest.XP
	user.Coins = guest.Coins
	user.Level = guest.Level
	user.StreakDays = guest.StreakDays
	user.PreviewRuns = guest.PreviewRuns
	user.HelpCount = guest.HelpCount
	user.TrialStartedAt = nil
	user.TrialExpiresAt = nil
	user.UpdatedAt = s.now().UTC()

	if err := s.store.TransferLearnerData(ctx, guestID, userID); err != nil {
		return nil, fmt.Errorf("transfer learner data: %w", err)
	}
	if err := s.store.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	if err := s.store.DeleteProfile(ctx, guestID); err != nil {
		return nil, fmt.Errorf("delete guest: %w", err)
	}

	s.logger.Info("guest migrated", "guest_id", guestID, "learner_id", userID, "xp", user.XP)

	s.publish(ctx, s.event(EventProfileDeleted, guest, 0))
	s.publish(ctx, s.event(EventGuestMigrated, user, 0))
	return user, nil
}

// DeleteGuest removes a guest account and everything it owns
func (s *Service) DeleteGuest(ctx context.Context, guestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	guest, err := s.store.GetProfile(ctx, guestID)
	if err != nil {
		return err
	}
	if guest.Role != RoleGuest {
		return ErrNotGuest
	}
	if err := s.store.DeleteProfile(ctx, guestID); err != nil {
		return fmt.Errorf("delete guest: %w", err)
	}

	s.logger.Info("guest deleted", "guest_id", guestID)
	s.publish(ctx, s.event(EventProfileDeleted, guest, 0))
	return nil
}

// loadWritable loads a profile that may earn rewards. Guests whose trial
// has ended are read-only.
func (s *Service) loadWritable(ctx context.Context, id string) (*Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role == RoleGuest && p.Trial().Active() && !p.Trial().Valid(s.now()) {
		return nil, ErrTrialExpired
	}
	return p, nil
}

func (s *Service) begin(p *Profile, reason string) *Award {
	return &Award{
		LearnerID:   p.ID,
		Reason:      reason,
		Before:      p.Progression(),
		storedLevel: p.Level,
	}
}

func (s *Service) unchanged(p *Profile, reason string) *Award {
	a := s.begin(p, reason)
	a.After = a.Before
	a.Title = progression.Title(p.Level)
	a.Profile = p
	return a
}

// grantLocked adds reward to p, unlocks any newly earned achievements and
// persists the result.
func (s *Service) grantLocked(ctx context.Context, p *Profile, reason string, reward progression.Reward) (*Award, error) {
	award := s.begin(p, reason)
	s.applyReward(p, award, reward)
	return s.finishLocked(ctx, p, award)
}

func (s *Service) applyReward(p *Profile, award *Award, reward progression.Reward) {
	p.XP = max(0, p.XP+reward.XP)
	p.Coins = max(0, p.Coins+reward.Coins)
	award.XP += reward.XP
	award.Coins += reward.Coins
}

// finishLocked evaluates achievement rules until nothing new unlocks,
// raises the stored level and writes the profile.
func (s *Service) finishLocked(ctx context.Context, p *Profile, award *Award) (*Award, error) {
	for range len(progression.Achievements()) {
		p.Level = max(p.Level, progression.Resolve(p.XP).Level)

		stats, err := s.stats(ctx, p)
		if err != nil {
			return nil, err
		}
		owned, err := s.ownedCodes(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		earned := progression.Evaluate(stats, owned)
		if len(earned) == 0 {
			break
		}
		for i, a := range earned {
			if err := s.unlockLocked(ctx, p, award, a, len(owned) == 0 && i == 0); err != nil {
				return nil, err
			}
		}
	}

	after := progression.Resolve(p.XP)
	award.After = after
	award.LevelledUp = progression.LevelledUp(award.storedLevel, after)
	p.Level = max(p.Level, after.Level)
	award.Title = progression.Title(p.Level)
	p.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	award.Profile = p

	if award.XP != 0 || award.Coins != 0 {
		s.logger.Info("xp awarded",
			"learner_id", p.ID,
			"reason", award.Reason,
			"xp", award.XP,
			"coins", award.Coins,
			"total_xp", p.XP,
			"level", p.Level)
		ev := s.event(EventXPAwarded, p, award.XP)
		ev.Reason = award.Reason
		ev.Coins = award.Coins
		s.publish(ctx, ev)
	}
	for _, a := range award.Unlocked {
		ev := s.event(EventAchievementUnlocked, p, a.XPReward)
		ev.Achievement = a.Code
		s.publish(ctx, ev)
	}
	if award.LevelledUp {
		s.logger.Info("level up", "learner_id", p.ID, "from", award.storedLevel, "to", after.Level)
		s.publish(ctx, s.event(EventLevelUp, p, 0))
	}

	return award, nil
}

func (s *Service) unlockLocked(ctx context.Context, p *Profile, award *Award, a progression.Achievement, first bool) error {
	if err := s.store.GrantAchievement(ctx, p.ID, a.Code, s.now().UTC()); err != nil {
		return fmt.Errorf("grant achievement %s: %w", a.Code, err)
	}
	reward := progression.Reward{XP: a.XPReward}
	if first {
		reward = reward.Add(progression.FirstAchievementReward)
	}
	s.applyReward(p, award, reward)
	award.Unlocked = append(award.Unlocked, a)
	return nil
}

func (s *Service) stats(ctx context.Context, p *Profile) (progression.Stats, error) {
	lessons, err := s.store.ListLessons(ctx, p.ID)
	if err != nil {
		return progression.Stats{}, fmt.Errorf("list lessons: %w", err)
	}
	totals, err := s.store.ProjectTotals(ctx, p.ID)
	if err != nil {
		return progression.Stats{}, fmt.Errorf("project totals: %w", err)
	}
	return buildStats(p, lessons, totals, s.now()), nil
}

func buildStats(p *Profile, lessons []LessonRecord, totals ProjectTotals, now time.Time) progression.Stats {
	st := progression.Stats{
		PreviewRuns:       p.PreviewRuns,
		CompletedProjects: totals.Projects,
		HelpCount:         p.HelpCount,
		ProjectLikes:      totals.Likes,
		StreakDays:        p.StreakDays,
		Level:             max(p.Level, progression.Resolve(p.XP).Level),
	}

	today := truncateDay(now.UTC())
	levels := map[int]bool{}
	for _, l := range lessons {
		if l.Status != LessonCompleted {
			continue
		}
		st.CompletedLessons++
		if l.CompletedAt != nil && truncateDay(l.CompletedAt.UTC()).Equal(today) {
			st.LessonsToday++
		}
		if l.Score == 100 {
			st.PerfectScores++
		}
		if l.ErrorFree {
			st.ErrorFreeLessons++
		}
		if l.Difficulty == progression.DifficultyHard {
			st.HardLessons++
		}
		if l.LevelComplete && l.CourseLevel > 0 && !levels[l.CourseLevel] {
			levels[l.CourseLevel] = true
			st.CourseLevelsComplete = append(st.CourseLevelsComplete, l.CourseLevel)
		}
	}
	return st
}

func (s *Service) ownedCodes(ctx context.Context, id string) ([]string, error) {
	owned, err := s.store.ListAchievements(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	codes := make([]string, len(owned))
	for i, a := range owned {
		codes[i] = a.Code
	}
	return codes, nil
}

func (s *Service) event(t EventType, p *Profile, xp int) Event {
	return Event{
		ID:          uuid.New().String(),
		Type:        t,
		LearnerID:   p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		XP:          xp,
		TotalXP:     p.XP,
		Level:       p.Level,
		OccurredAt:  s.now().UTC(),
	}
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish learner event",
			"type", ev.Type,
			"learner_id", ev.LearnerID,
			"error", err)
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
