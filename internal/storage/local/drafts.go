// Package local keeps editor drafts on disk as JSON files, one directory
// per learner and one file per lesson.
package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gamecodelab/gamecode/internal/preview"
)

// Draft is the unsaved editor state of one lesson
type Draft struct {
	LearnerID string         `json:"learner_id"`
	LessonID  string         `json:"lesson_id"`
	Source    preview.Source `json:"source"`
	SavedAt   time.Time      `json:"saved_at"`
}

// DraftStore provides thread-safe JSON file storage for drafts
type DraftStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewDraftStore creates the base directory if needed
func NewDraftStore(basePath string) (*DraftStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create draft directory: %w", err)
	}
	return &DraftStore{basePath: basePath}, nil
}

// Save writes a draft, replacing any previous one for the same lesson.
// The file is written to a temp name and renamed so readers never see a partial draft.
func (s *DraftStore) Save(d *Draft) error {
	if err := checkKey(d.LearnerID); err != nil {
		return err
	}
	if err := checkKey(d.LessonID); err != nil {
		return err
	}
	if err := d.Source.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.basePath, d.LearnerID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create learner directory: %w", err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	path := filepath.Join(dir, d.LessonID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace draft: %w", err)
	}
	return nil
}

// Load reads the draft for one lesson
func (s *DraftStore) Load(learnerID, lessonID string) (*Draft, error) {
	if err := checkKey(learnerID); err != nil {
		return nil, err
	}
	if err := checkKey(lessonID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return readDraft(filepath.Join(s.basePath, learnerID, lessonID+".json"))
}

// Delete removes the draft for one lesson
func (s *DraftStore) Delete(learnerID, lessonID string) error {
	if err := checkKey(learnerID); err != nil {
		return err
	}
	if err := checkKey(lessonID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.basePath, learnerID, lessonID+".json")); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove draft: %w", err)
	}
	return nil
}

// List returns a learner's drafts, most recently saved first
func (s *DraftStore) List(learnerID string) ([]Draft, error) {
	if err := checkKey(learnerID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.basePath, learnerID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Draft{}, nil
		}
		return nil, fmt.Errorf("read learner directory: %w", err)
	}

	drafts := make([]Draft, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		d, err := readDraft(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *d)
	}

	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].SavedAt.After(drafts[j].SavedAt)
	})
	return drafts, nil
}

// Move reassigns every draft of one learner to another, overwriting
// drafts the target already has for the same lessons.
func (s *DraftStore) Move(fromID, toID string) error {
	if err := checkKey(fromID); err != nil {
		return err
	}
	if err := checkKey(toID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := filepath.Join(s.basePath, fromID)
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read learner directory: %w", err)
	}

	dst := filepath.Join(s.basePath, toID)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("create learner directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		d, err := readDraft(filepath.Join(src, entry.Name()))
		if err != nil {
			return err
		}
		d.LearnerID = toID
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return fmt.Errorf("encode draft: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), data, 0644); err != nil {
			return fmt.Errorf("write draft: %w", err)
		}
	}

	return os.RemoveAll(src)
}

// DeleteLearner removes every draft of one learner
func (s *DraftStore) DeleteLearner(learnerID string) error {
	if err := checkKey(learnerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return os.RemoveAll(filepath.Join(s.basePath, learnerID))
}

func readDraft(path string) (*Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open draft: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}

func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
