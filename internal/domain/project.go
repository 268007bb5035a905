package domain

import "time"

// Project groups a user's refactor jobs around one codebase.
type Project struct {
	ID            string    `json:"id" db:"id"`
	OwnerID       string    `json:"owner_id" db:"owner_id"`
	Name          string    `json:"name" db:"name"`
	RepositoryURL *string   `json:"repository_url,omitempty" db:"repository_url"`
	DefaultBranch string    `json:"default_branch" db:"default_branch"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
