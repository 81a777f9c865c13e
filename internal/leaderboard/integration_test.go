//go:build integration

package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gamecodelab/gamecode/internal/profile"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	addr, err := container.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	client, err := Connect(ctx, Config{Addr: addr})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_Ranking(t *testing.T) {
	client := setupRedis(t)
	board := New(client, "test", nil)
	ctx := context.Background()

	learners := []Entry{
		{LearnerID: "a", DisplayName: "Ada", XP: 450, Level: 3},
		{LearnerID: "b", DisplayName: "Grace", XP: 1200, Level: 4},
		{LearnerID: "c", DisplayName: "Linus", XP: 90, Level: 1},
	}
	for _, e := range learners {
		if err := board.Update(ctx, e); err != nil {
			t.Fatalf("Update(%s) error = %v", e.LearnerID, err)
		}
	}

	top, err := board.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if len(top) != 2 || top[0].LearnerID != "b" || top[0].Rank != 1 || top[1].LearnerID != "a" {
		t.Errorf("Top() = %+v", top)
	}
	if top[0].Title != "Developer" {
		t.Errorf("Title = %q; want Developer", top[0].Title)
	}

	rank, err := board.Rank(ctx, "c")
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if rank.Rank != 3 || rank.DisplayName != "Linus" {
		t.Errorf("Rank() = %+v", rank)
	}

	page, err := board.Page(ctx, 2, 2)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || page.HasNext || len(page.Entries) != 1 || page.Entries[0].Rank != 3 {
		t.Errorf("Page() = %+v", page)
	}
}

func TestIntegration_PublishEvents(t *testing.T) {
	client := setupRedis(t)
	board := New(client, "events", nil)
	ctx := context.Background()

	ev := profile.Event{Type: profile.EventXPAwarded, LearnerID: "u1", Username: "ada", TotalXP: 150, Level: 2}
	if err := board.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	entry, err := board.Rank(ctx, "u1")
	if err != nil || entry.XP != 150 {
		t.Fatalf("Rank() = %+v, %v", entry, err)
	}

	ev.Type = profile.EventProfileDeleted
	if err := board.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish(deleted) error = %v", err)
	}
	if _, err := board.Rank(ctx, "u1"); !errors.Is(err, ErrNotRanked) {
		t.Errorf("Rank() error = %v; want ErrNotRanked", err)
	}
}
