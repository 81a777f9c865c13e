package daemon

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/storage/local"
)

func TestLearnerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.createLearner(t, "ada", profile.RoleStudent)

	w := env.do(t, http.MethodGet, "/v1/learners/"+id, nil)
	expectStatus(t, w, http.StatusOK)
	var view struct {
		Profile profile.Profile `json:"profile"`
		Title   string          `json:"title"`
	}
	decode(t, w, &view)
	if view.Profile.Username != "ada" || view.Title != "Novice" {
		t.Errorf("learner = %q, %q; want ada, Novice", view.Profile.Username, view.Title)
	}

	w = env.do(t, http.MethodPost, "/v1/learners/"+id+"/lessons", profile.LessonCompletion{
		LessonID:    "html-basics-1",
		CourseLevel: 1,
		Difficulty:  "easy",
		Score:       85,
	})
	expectStatus(t, w, http.StatusOK)
	var award profile.Award
	decode(t, w, &award)
	if award.XP <= 0 {
		t.Errorf("award.XP = %d; want > 0", award.XP)
	}
	if award.Profile == nil || award.Profile.XP != award.After.XPIntoLevel+cumulativeBefore(award.After.Level) {
		t.Errorf("award progression does not match profile XP: %+v", award)
	}

	w = env.do(t, http.MethodGet, "/v1/learners/"+id+"/lessons", nil)
	expectStatus(t, w, http.StatusOK)
	var lessons struct {
		Lessons []profile.LessonRecord `json:"lessons"`
	}
	decode(t, w, &lessons)
	if len(lessons.Lessons) != 1 || lessons.Lessons[0].LessonID != "html-basics-1" {
		t.Errorf("lessons = %+v; want html-basics-1", lessons.Lessons)
	}

	w = env.do(t, http.MethodGet, "/v1/learners/"+id+"/achievements", nil)
	expectStatus(t, w, http.StatusOK)
}

func cumulativeBefore(level int) int {
	total := 0
	for l := 1; l < level; l++ {
		total += l * (l + 1) * 50
	}
	return total
}

func TestCreateLearner_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.createLearner(t, "grace", profile.RoleStudent)

	w := env.do(t, http.MethodPost, "/v1/learners", profile.CreateRequest{Username: "grace", Role: profile.RoleStudent})
	expectStatus(t, w, http.StatusConflict)
}

func TestLearnerErrors(t *testing.T) {
	env := newTestEnv(t)
	id := env.createLearner(t, "linus", profile.RoleStudent)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown learner", http.MethodGet, "/v1/learners/nobody", nil, http.StatusNotFound},
		{"bad role", http.MethodPost, "/v1/learners", profile.CreateRequest{Username: "x", Role: "wizard"}, http.StatusBadRequest},
		{"bad difficulty", http.MethodPost, "/v1/learners/" + id + "/lessons",
			profile.LessonCompletion{LessonID: "l1", CourseLevel: 1, Difficulty: "brutal", Score: 50}, http.StatusBadRequest},
		{"unknown achievement", http.MethodPost, "/v1/learners/" + id + "/achievements",
			map[string]string{"code": "moon_landing"}, http.StatusNotFound},
		{"delete non guest", http.MethodDelete, "/v1/learners/" + id, nil, http.StatusBadRequest},
		{"migrate without user", http.MethodPost, "/v1/learners/" + id + "/migrate", map[string]string{}, http.StatusBadRequest},
		{"rank without board", http.MethodGet, "/v1/learners/" + id + "/rank", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			expectStatus(t, w, tt.want)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := strings.NewReader("{not json")
	w := env.doRaw(t, http.MethodPost, "/v1/learners", req)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestGuestTrialAndMigration(t *testing.T) {
	env := newTestEnv(t)
	guest := env.createLearner(t, "", profile.RoleGuest)

	w := env.do(t, http.MethodGet, "/v1/learners/"+guest+"/trial", nil)
	expectStatus(t, w, http.StatusOK)
	var status struct {
		Trial         bool `json:"trial"`
		Valid         bool `json:"valid"`
		DaysRemaining int  `json:"days_remaining"`
	}
	decode(t, w, &status)
	if !status.Trial || !status.Valid {
		t.Errorf("trial = %+v; want active and valid", status)
	}
	if status.DaysRemaining != 30 {
		t.Errorf("DaysRemaining = %d; want 30", status.DaysRemaining)
	}

	w = env.do(t, http.MethodPut, "/v1/learners/"+guest+"/drafts/lesson-1", preview.Source{Markup: "<p>draft</p>"})
	expectStatus(t, w, http.StatusOK)

	user := env.createLearner(t, "hopper", profile.RoleStudent)
	w = env.do(t, http.MethodPost, "/v1/learners/"+guest+"/migrate", map[string]string{"user_id": user})
	expectStatus(t, w, http.StatusOK)

	d, err := env.drafts.Load(user, "lesson-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Source.Markup != "<p>draft</p>" {
		t.Errorf("moved draft markup = %q", d.Source.Markup)
	}
	if _, err := env.drafts.Load(guest, "lesson-1"); err == nil {
		t.Error("guest draft should be gone after migration")
	}
}

func TestDeleteGuest_RemovesDrafts(t *testing.T) {
	env := newTestEnv(t)
	guest := env.createLearner(t, "", profile.RoleGuest)

	w := env.do(t, http.MethodPut, "/v1/learners/"+guest+"/drafts/lesson-2", preview.Source{Style: "p{}"})
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodDelete, "/v1/learners/"+guest, nil)
	expectStatus(t, w, http.StatusNoContent)

	w = env.do(t, http.MethodGet, "/v1/learners/"+guest, nil)
	expectStatus(t, w, http.StatusNotFound)

	drafts, err := env.drafts.List(guest)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("drafts after delete = %d; want 0", len(drafts))
	}
}

func TestDrafts(t *testing.T) {
	env := newTestEnv(t)
	id := env.createLearner(t, "margaret", profile.RoleStudent)
	base := "/v1/learners/" + id + "/drafts"

	w := env.do(t, http.MethodGet, base+"/lesson-3", nil)
	expectStatus(t, w, http.StatusNotFound)

	w = env.do(t, http.MethodPut, base+"/lesson-3", preview.Source{Markup: "<h1>x</h1>", Script: "1+1"})
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodGet, base+"/lesson-3", nil)
	expectStatus(t, w, http.StatusOK)
	var d local.Draft
	decode(t, w, &d)
	if d.Source.Script != "1+1" {
		t.Errorf("Script = %q; want 1+1", d.Source.Script)
	}

	w = env.do(t, http.MethodGet, base, nil)
	expectStatus(t, w, http.StatusOK)
	var list struct {
		Drafts []local.Draft `json:"drafts"`
	}
	decode(t, w, &list)
	if len(list.Drafts) != 1 {
		t.Errorf("drafts = %d; want 1", len(list.Drafts))
	}

	// completing the lesson clears its draft
	w = env.do(t, http.MethodPost, "/v1/learners/"+id+"/lessons", profile.LessonCompletion{
		LessonID: "lesson-3", CourseLevel: 1, Difficulty: "medium", Score: 70,
	})
	expectStatus(t, w, http.StatusOK)
	w = env.do(t, http.MethodGet, base+"/lesson-3", nil)
	expectStatus(t, w, http.StatusNotFound)

	w = env.do(t, http.MethodPut, "/v1/learners/ghost/drafts/lesson-1", preview.Source{})
	expectStatus(t, w, http.StatusNotFound)
}

func TestDailyLoginAndHelp(t *testing.T) {
	env := newTestEnv(t)
	id := env.createLearner(t, "barbara", profile.RoleStudent)

	w := env.do(t, http.MethodPost, "/v1/learners/"+id+"/login", nil)
	expectStatus(t, w, http.StatusOK)
	var award profile.Award
	decode(t, w, &award)
	if award.Profile == nil || award.Profile.StreakDays != 1 {
		t.Errorf("streak after first login = %+v", award.Profile)
	}

	w = env.do(t, http.MethodPost, "/v1/learners/"+id+"/help", nil)
	expectStatus(t, w, http.StatusOK)

	p, err := env.profiles.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.HelpCount != 1 {
		t.Errorf("HelpCount = %d; want 1", p.HelpCount)
	}
}

func TestAward_CarriesCelebration(t *testing.T) {
	env := newTestEnv(t)
	id := env.createLearner(t, "ada", profile.RoleStudent)

	w := env.do(t, http.MethodPost, "/v1/learners/"+id+"/projects", nil)
	expectStatus(t, w, http.StatusOK)
	var resp struct {
		LevelledUp bool `json:"levelled_up"`
		Message    *struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"message"`
	}
	decode(t, w, &resp)
	if !resp.LevelledUp {
		t.Fatal("a first project should level up a new learner")
	}
	if resp.Message == nil || resp.Message.Type != "level_up" || resp.Message.Text == "" {
		t.Errorf("message = %+v; want a level up celebration", resp.Message)
	}
}
