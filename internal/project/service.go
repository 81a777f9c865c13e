package project

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gamecodelab/gamecode/internal/preview"
)

// Service manages projects and the community feed
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a project service
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// SaveRequest creates or updates a project
type SaveRequest struct {
	ID          string          `json:"id,omitempty"`
	OwnerID     string          `json:"owner_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Source      preview.Source  `json:"source"`
	Public      bool            `json:"public"`
	Meta        json.RawMessage `json:"meta,omitempty"`
}

// Save stores a project. It reports whether the project is new.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*Project, bool, error) {
	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, false, err
	}
	if err := req.Source.Validate(); err != nil {
		return nil, false, err
	}
	if len(req.Meta) > 0 && !json.Valid(req.Meta) {
		return nil, false, ErrInvalidMeta
	}

	now := s.now().UTC()

	if req.ID != "" {
		p, err := s.store.GetProject(ctx, req.ID)
		if err != nil {
			return nil, false, err
		}
		if p.OwnerID != req.OwnerID {
			return nil, false, ErrNotOwner
		}
		p.Title = title
		p.Description = req.Description
		p.Markup, p.Style, p.Script = req.Source.Markup, req.Source.Style, req.Source.Script
		p.Public = req.Public
		p.Meta = req.Meta
		p.UpdatedAt = now
		if err := s.store.UpdateProject(ctx, p); err != nil {
			return nil, false, fmt.Errorf("update project: %w", err)
		}
		return p, false, nil
	}

	p := &Project{
		ID:          uuid.New().String(),
		OwnerID:     req.OwnerID,
		Title:       title,
		Description: req.Description,
		Markup:      req.Source.Markup,
		Style:       req.Source.Style,
		Script:      req.Source.Script,
		Public:      req.Public,
		Meta:        req.Meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, false, fmt.Errorf("create project: %w", err)
	}

	s.logger.Info("project created", "project_id", p.ID, "owner_id", p.OwnerID, "public", p.Public)
	return p, true, nil
}

// View returns a project and counts the view. Private projects are only
// visible to their owner, whose views are not counted.
func (s *Service) View(ctx context.Context, id, viewerID string) (*Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == viewerID {
		return p, nil
	}
	if !p.Public {
		return nil, ErrNotPublic
	}
	if err := s.store.IncrementViews(ctx, id); err != nil {
		s.logger.Warn("failed to count project view", "project_id", id, "error", err)
	} else {
		p.Views++
	}
	return p, nil
}

// Document assembles a project into a preview document
func (s *Service) Document(ctx context.Context, id, viewerID string) (preview.Document, error) {
	p, err := s.View(ctx, id, viewerID)
	if err != nil {
		return preview.Document{}, err
	}
	return preview.Assemble(p.Source(), 1, preview.AssembleOptions{}), nil
}

// SetLike likes or unlikes a public project and returns it with the new
// like count.
func (s *Service) SetLike(ctx context.Context, id, learnerID string, liked bool) (*Project, bool, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !p.Public {
		return nil, false, ErrNotPublic
	}

	changed, err := s.store.SetLike(ctx, id, learnerID, liked)
	if err != nil {
		return nil, false, fmt.Errorf("set like: %w", err)
	}

	p, err = s.store.GetProject(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}

// ListPublic returns one page of the community feed. Pages start at 1.
func (s *Service) ListPublic(ctx context.Context, sort Sort, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * PageSize

	projects, total, err := s.store.ListPublicProjects(ctx, sort, PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if projects == nil {
		projects = []Project{}
	}

	return &Page{
		Projects: projects,
		Page:     page,
		PageSize: PageSize,
		Total:    total,
		HasMore:  offset+len(projects) < total,
	}, nil
}

// ByOwner returns every project of one learner
func (s *Service) ByOwner(ctx context.Context, ownerID string) ([]Project, error) {
	return s.store.ListProjectsByOwner(ctx, ownerID)
}
