package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/refinery-dev/refinery/internal/domain"
)

// ProjectRepository handles project persistence.
type ProjectRepository struct {
	store *Store
}

// NewProjectRepository creates a ProjectRepository.
func NewProjectRepository(store *Store) *ProjectRepository {
	return &ProjectRepository{store: store}
}

const projectColumns = `id, owner_id, name, repository_url, default_branch, created_at, updated_at`

// Create inserts a project, filling in generated timestamps.
func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	err := r.store.db.GetContext(ctx, project,
		`INSERT INTO projects (id, owner_id, name, repository_url, default_branch)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+projectColumns,
		project.ID, project.OwnerID, project.Name, project.RepositoryURL, project.DefaultBranch)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// FindByID retrieves a project by id.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	err := r.store.db.GetContext(ctx, &project,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find project %s: %w", id, err)
	}
	return &project, nil
}

// ListByOwner returns a user's projects, newest first.
func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error) {
	projects := []domain.Project{}
	err := r.store.db.SelectContext(ctx, &projects,
		`SELECT `+projectColumns+` FROM projects WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects for user %s: %w", ownerID, err)
	}
	return projects, nil
}
