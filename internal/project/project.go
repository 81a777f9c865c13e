// Package project stores learner projects: saved snapshots of the three
// preview fragments, optionally shared with the community.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gamecodelab/gamecode/internal/preview"
)

// PageSize is the number of projects per community page
const PageSize = 12

// MaxTitleLength bounds project titles in characters
const MaxTitleLength = 120

var (
	ErrNotFound     = errors.New("project not found")
	ErrTitleMissing = errors.New("project title is required")
	ErrTitleTooLong = errors.New("project title too long")
	ErrInvalidSort  = errors.New("invalid sort order")
	ErrNotOwner     = errors.New("not the project owner")
	ErrNotPublic    = errors.New("project is not public")
	ErrInvalidMeta  = errors.New("project meta is not valid JSON")
)

// Sort orders the community feed
type Sort string

const (
	SortLatest     Sort = "latest"
	SortMostLiked  Sort = "most_liked"
	SortMostViewed Sort = "most_viewed"
)

// ParseSort validates a sort name; empty means latest
func ParseSort(s string) (Sort, error) {
	switch v := Sort(s); v {
	case "":
		return SortLatest, nil
	case SortLatest, SortMostLiked, SortMostViewed:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSort, s)
}

// Project is a saved preview snapshot
type Project struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Markup      string          `json:"markup"`
	Style       string          `json:"style"`
	Script      string          `json:"script"`
	Public      bool            `json:"public"`
	Likes       int             `json:"likes"`
	Views       int             `json:"views"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Source returns the preview fragments of the project
func (p *Project) Source() preview.Source {
	return preview.Source{Markup: p.Markup, Style: p.Style, Script: p.Script}
}

// Page is one page of the community feed
type Page struct {
	Projects []Project `json:"projects"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
}

// Store is the persistence interface for projects
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	IncrementViews(ctx context.Context, id string) error
	// SetLike records or removes a learner's like and reports whether
	// anything changed.
	SetLike(ctx context.Context, projectID, learnerID string, liked bool) (bool, error)
	ListPublicProjects(ctx context.Context, sort Sort, limit, offset int) ([]Project, int, error)
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error)
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleMissing
	}
	if len([]rune(title)) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}
