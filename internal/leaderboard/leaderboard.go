// Package leaderboard ranks learners by total XP on Redis sorted sets.
//
// Keys per cohort:
//   - leaderboard:xp:{cohort}   sorted set, member = learner id, score = XP
//   - leaderboard:info:{cohort} hash, learner id -> Entry JSON
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/progression"
)

const (
	keyXP         = "leaderboard:xp:"
	keyInfo       = "leaderboard:info:"
	DefaultCohort = "all"
	MaxPageSize   = 100
)

var (
	ErrNotRanked      = errors.New("learner not on leaderboard")
	ErrInvalidPage    = errors.New("invalid page parameters")
	ErrLearnerIDEmpty = errors.New("learner id is empty")
)

// Entry is one ranked learner
type Entry struct {
	LearnerID   string    `json:"learner_id"`
	DisplayName string    `json:"display_name"`
	XP          int       `json:"xp"`
	Level       int       `json:"level"`
	Title       string    `json:"title"`
	Rank        int64     `json:"rank,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Page is one slice of the ranking
type Page struct {
	Entries    []Entry `json:"entries"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalPages int     `json:"total_pages"`
	HasNext    bool    `json:"has_next"`
}

// Config holds Redis connection settings
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Connect opens a client and pings it
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Board reads and writes one cohort's ranking
type Board struct {
	client redis.Cmdable
	cohort string
	logger *slog.Logger
}

var _ profile.Publisher = (*Board)(nil)

// New creates a board for cohort (DefaultCohort when empty)
func New(client redis.Cmdable, cohort string, logger *slog.Logger) *Board {
	if cohort == "" {
		cohort = DefaultCohort
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{client: client, cohort: cohort, logger: logger}
}

func (b *Board) xpKey() string   { return keyXP + b.cohort }
func (b *Board) infoKey() string { return keyInfo + b.cohort }

// Update sets a learner's score and details in one pipeline
func (b *Board) Update(ctx context.Context, e Entry) error {
	if e.LearnerID == "" {
		return ErrLearnerIDEmpty
	}
	e.Rank = 0
	if e.Title == "" {
		e.Title = progression.Title(e.Level)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.ZAdd(ctx, b.xpKey(), redis.Z{Score: float64(e.XP), Member: e.LearnerID})
	pipe.HSet(ctx, b.infoKey(), e.LearnerID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}
	return nil
}

// Remove drops a learner from the ranking
func (b *Board) Remove(ctx context.Context, learnerID string) error {
	if learnerID == "" {
		return ErrLearnerIDEmpty
	}
	pipe := b.client.Pipeline()
	pipe.ZRem(ctx, b.xpKey(), learnerID)
	pipe.HDel(ctx, b.infoKey(), learnerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove from leaderboard: %w", err)
	}
	return nil
}

// Top returns the n highest-XP learners
func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > MaxPageSize {
		return nil, ErrInvalidPage
	}
	ids, err := b.client.ZRevRange(ctx, b.xpKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read top: %w", err)
	}
	return b.entries(ctx, ids, 1)
}

// Page returns one 1-based page of the ranking
func (b *Board) Page(ctx context.Context, page, size int) (*Page, error) {
	if page < 1 || size < 1 || size > MaxPageSize {
		return nil, ErrInvalidPage
	}

	total, err := b.client.ZCard(ctx, b.xpKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("count leaderboard: %w", err)
	}

	start, stop := pageBounds(page, size)
	ids, err := b.client.ZRevRange(ctx, b.xpKey(), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	entries, err := b.entries(ctx, ids, start+1)
	if err != nil {
		return nil, err
	}

	pages := totalPages(total, size)
	return &Page{
		Entries:    entries,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: pages,
		HasNext:    page < pages,
	}, nil
}

// Rank returns a learner's entry with their 1-based position
func (b *Board) Rank(ctx context.Context, learnerID string) (*Entry, error) {
	if learnerID == "" {
		return nil, ErrLearnerIDEmpty
	}
	pos, err := b.client.ZRevRank(ctx, b.xpKey(), learnerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotRanked
		}
		return nil, fmt.Errorf("read rank: %w", err)
	}
	entries, err := b.entries(ctx, []string{learnerID}, pos+1)
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// Publish keeps the ranking in step with learner events
func (b *Board) Publish(ctx context.Context, ev profile.Event) error {
	switch ev.Type {
	case profile.EventProfileDeleted:
		return b.Remove(ctx, ev.LearnerID)
	case profile.EventXPAwarded, profile.EventLevelUp, profile.EventAchievementUnlocked, profile.EventGuestMigrated:
		return b.Update(ctx, EntryFromEvent(ev))
	}
	b.logger.Debug("leaderboard ignoring event", "type", ev.Type)
	return nil
}

// EntryFromEvent builds the ranking entry an event implies
func EntryFromEvent(ev profile.Event) Entry {
	name := ev.DisplayName
	if name == "" {
		name = ev.Username
	}
	return Entry{
		LearnerID:   ev.LearnerID,
		DisplayName: name,
		XP:          ev.TotalXP,
		Level:       ev.Level,
		Title:       progression.Title(ev.Level),
		UpdatedAt:   ev.OccurredAt,
	}
}

// entries loads details for ids, assigning consecutive ranks from firstRank
func (b *Board) entries(ctx context.Context, ids []string, firstRank int64) ([]Entry, error) {
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	infos, err := b.client.HMGet(ctx, b.infoKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}

	out := make([]Entry, 0, len(ids))
	for i, id := range ids {
		e := Entry{LearnerID: id}
		if raw, ok := infos[i].(string); ok {
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				b.logger.Warn("corrupt leaderboard entry", "learner_id", id, "error", err)
				e = Entry{LearnerID: id}
			}
		}
		e.Rank = firstRank + int64(i)
		out = append(out, e)
	}
	return out, nil
}

func pageBounds(page, size int) (start, stop int64) {
	start = int64((page - 1) * size)
	return start, start + int64(size) - 1
}

func totalPages(total int64, size int) int {
	pages := int((total + int64(size) - 1) / int64(size))
	return max(pages, 1)
}
