// Package github implements the forge.Provider interface on the GitHub API.
package github

import (
	"context"
	"fmt"

	gogh "github.com/google/go-github/v68/github"

	"github.com/dimpleworks/dimple/internal/forge"
)

// Provider reads repositories and issues from GitHub.
type Provider struct {
	client *gogh.Client
}

// New creates a GitHub provider. An empty token yields unauthenticated
// access with GitHub's lower rate limits.
func New(token string) *Provider {
	client := gogh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Provider{client: client}
}

// NewWithClient wraps an existing GitHub client. Used by tests to point
// the provider at a local server.
func NewWithClient(client *gogh.Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) GetRepository(ctx context.Context, owner, name string) (*forge.Repository, error) {
	repo, _, err := p.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, name, err)
	}

	return &forge.Repository{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		URL:           repo.GetHTMLURL(),
	}, nil
}

func (p *Provider) ListIssues(ctx context.Context, owner, name string) ([]forge.Issue, error) {
	opts := &gogh.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gogh.ListOptions{PerPage: 100},
	}

	var issues []forge.Issue
	for {
		page, resp, err := p.client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing issues for %s/%s: %w", owner, name, err)
		}

		for _, gi := range page {
			// GitHub returns pull requests from the issues endpoint.
			if gi.IsPullRequest() {
				continue
			}
			issues = append(issues, convertIssue(gi))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return issues, nil
}

func convertIssue(gi *gogh.Issue) forge.Issue {
	labels := make([]string, 0, len(gi.Labels))
	for _, l := range gi.Labels {
		labels = append(labels, l.GetName())
	}

	return forge.Issue{
		Number:    gi.GetNumber(),
		Title:     gi.GetTitle(),
		Body:      gi.GetBody(),
		State:     gi.GetState(),
		Author:    gi.GetUser().GetLogin(),
		Labels:    labels,
		CreatedAt: gi.GetCreatedAt().Time,
		UpdatedAt: gi.GetUpdatedAt().Time,
		URL:       gi.GetHTMLURL(),
	}
}
