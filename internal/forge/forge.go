// Package forge abstracts read access to git hosting providers.
package forge

import (
	"context"
	"time"
)

// Repository describes a hosted repository.
type Repository struct {
	Owner         string
	Name          string
	Description   string
	DefaultBranch string
	Private       bool
	URL           string
}

// Issue is a provider-neutral issue. Pull/merge requests are excluded.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string
	Author    string
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time
	URL       string
}

// Provider reads repository metadata and issues from a hosting service.
type Provider interface {
	// GetRepository fetches repository metadata.
	GetRepository(ctx context.Context, owner, name string) (*Repository, error)

	// ListIssues returns open issues for the repository, excluding
	// pull/merge requests.
	ListIssues(ctx context.Context, owner, name string) ([]Issue, error)
}
