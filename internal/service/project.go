package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/refinery-dev/refinery/internal/domain"
)

// ProjectStore is the data access consumed by ProjectService.
type ProjectStore interface {
	Create(ctx context.Context, project *domain.Project) error
	FindByID(ctx context.Context, id string) (*domain.Project, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error)
}

// ProjectService manages the projects that group a user's jobs.
type ProjectService struct {
	store ProjectStore
}

// NewProjectService creates a ProjectService.
func NewProjectService(store ProjectStore) *ProjectService {
	return &ProjectService{store: store}
}

// CreateProjectParams carries the accepted fields of a project creation.
type CreateProjectParams struct {
	Name          string
	RepositoryURL *string
	DefaultBranch string
}

// Create registers a project for the user.
func (s *ProjectService) Create(ctx context.Context, userID string, p CreateProjectParams) (*domain.Project, error) {
	branch := p.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	project := &domain.Project{
		ID:            uuid.NewString(),
		OwnerID:       userID,
		Name:          p.Name,
		RepositoryURL: p.RepositoryURL,
		DefaultBranch: branch,
	}
	if err := s.store.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// Get returns a project after verifying ownership.
func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	project, err := s.store.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	return project, nil
}

// List returns the user's projects.
func (s *ProjectService) List(ctx context.Context, userID string) ([]domain.Project, error) {
	return s.store.ListByOwner(ctx, userID)
}
