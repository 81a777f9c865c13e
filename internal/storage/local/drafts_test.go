package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gamecodelab/gamecode/internal/preview"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *DraftStore {
	t.Helper()
	store, err := NewDraftStore(filepath.Join(t.TempDir(), "drafts"))
	if err != nil {
		t.Fatalf("NewDraftStore() error = %v", err)
	}
	return store
}

func TestNewDraftStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if _, err := NewDraftStore(dir); err != nil {
		t.Fatalf("NewDraftStore() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestDraftStore_SaveLoad(t *testing.T) {
	store := newTestStore(t)

	d := &Draft{
		LearnerID: "ada",
		LessonID:  "html-1",
		Source:    preview.Source{Markup: "<h1>Hi</h1>", Style: "h1{}", Script: "alert(1)"},
		SavedAt:   base,
	}
	if err := store.Save(d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load("ada", "html-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Source != d.Source {
		t.Errorf("Source = %+v; want %+v", got.Source, d.Source)
	}
	if !got.SavedAt.Equal(base) {
		t.Errorf("SavedAt = %v; want %v", got.SavedAt, base)
	}

	d.Source.Markup = "<h2>Changed</h2>"
	if err := store.Save(d); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	got, _ = store.Load("ada", "html-1")
	if got.Source.Markup != "<h2>Changed</h2>" {
		t.Errorf("Markup = %q; want the overwrite", got.Source.Markup)
	}
}

func TestDraftStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load("ada", "nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v; want ErrNotFound", err)
	}
	if err := store.Delete("ada", "nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v; want ErrNotFound", err)
	}
}

func TestDraftStore_RejectsBadKeys(t *testing.T) {
	store := newTestStore(t)
	for _, key := range []string{"", ".", "..", "../etc", `a\b`, "a/b"} {
		err := store.Save(&Draft{LearnerID: key, LessonID: "x"})
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Save(learner %q) error = %v; want ErrInvalidKey", key, err)
		}
		if _, err := store.Load("ada", key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Load(lesson %q) error = %v; want ErrInvalidKey", key, err)
		}
	}
}

func TestDraftStore_RejectsOversizedSource(t *testing.T) {
	store := newTestStore(t)
	d := &Draft{LearnerID: "ada", LessonID: "x", Source: preview.Source{Script: strings.Repeat("a", preview.MaxSourceLength+1)}}
	if err := store.Save(d); !errors.Is(err, preview.ErrSourceTooLong) {
		t.Errorf("Save() error = %v; want ErrSourceTooLong", err)
	}
}

func TestDraftStore_List(t *testing.T) {
	store := newTestStore(t)

	empty, err := store.List("ada")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("List() = %d drafts; want 0", len(empty))
	}

	for i := range 3 {
		d := &Draft{LearnerID: "ada", LessonID: fmt.Sprintf("l%d", i), SavedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Save(d); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	drafts, _ := store.List("ada")
	if len(drafts) != 3 {
		t.Fatalf("List() = %d drafts; want 3", len(drafts))
	}
	if drafts[0].LessonID != "l2" || drafts[2].LessonID != "l0" {
		t.Errorf("List() order = %s..%s; want newest first", drafts[0].LessonID, drafts[2].LessonID)
	}
}

func TestDraftStore_Move(t *testing.T) {
	store := newTestStore(t)
	_ = store.Save(&Draft{LearnerID: "guest_1", LessonID: "l1", Source: preview.Source{Markup: "guest"}, SavedAt: base})
	_ = store.Save(&Draft{LearnerID: "ada", LessonID: "l1", Source: preview.Source{Markup: "old"}, SavedAt: base})

	if err := store.Move("guest_1", "ada"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	got, err := store.Load("ada", "l1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Source.Markup != "guest" || got.LearnerID != "ada" {
		t.Errorf("moved draft = %+v", got)
	}
	if drafts, _ := store.List("guest_1"); len(drafts) != 0 {
		t.Errorf("guest still has %d drafts", len(drafts))
	}

	if err := store.Move("nobody", "ada"); err != nil {
		t.Errorf("Move() from empty learner error = %v", err)
	}
}

func TestDraftStore_DeleteLearner(t *testing.T) {
	store := newTestStore(t)
	_ = store.Save(&Draft{LearnerID: "ada", LessonID: "l1", SavedAt: base})

	if err := store.DeleteLearner("ada"); err != nil {
		t.Fatalf("DeleteLearner() error = %v", err)
	}
	if _, err := store.Load("ada", "l1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v; want ErrNotFound", err)
	}
}

func TestDraftStore_ConcurrentSaves(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := &Draft{LearnerID: "ada", LessonID: fmt.Sprintf("l%d", i%4), SavedAt: base}
			if err := store.Save(d); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	drafts, err := store.List("ada")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(drafts) != 4 {
		t.Errorf("List() = %d drafts; want 4", len(drafts))
	}
}
