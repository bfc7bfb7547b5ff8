// Package gitlab implements the forge.Provider interface on the GitLab
// REST API (v4). It speaks plain HTTP; project paths are URL-encoded as
// "owner%2Fname" per the GitLab convention.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dimpleworks/dimple/internal/forge"
)

const defaultBaseURL = "https://gitlab.com"

// Provider reads projects and issues from GitLab.
type Provider struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// New creates a GitLab provider. baseURL may be empty for gitlab.com.
func New(baseURL, token string) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type project struct {
	Path          string `json:"path"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Visibility    string `json:"visibility"`
	WebURL        string `json:"web_url"`
	Namespace     struct {
		Path string `json:"path"`
	} `json:"namespace"`
}

type issue struct {
	IID       int       `json:"iid"`
	Title     string    `json:"title"`
	Body      string    `json:"description"`
	State     string    `json:"state"`
	Labels    []string  `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	WebURL    string    `json:"web_url"`
	Author    struct {
		Username string `json:"username"`
	} `json:"author"`
}

func (p *Provider) GetRepository(ctx context.Context, owner, name string) (*forge.Repository, error) {
	var proj project
	if err := p.get(ctx, "/api/v4/projects/"+projectID(owner, name), &proj); err != nil {
		return nil, fmt.Errorf("fetching project %s/%s: %w", owner, name, err)
	}

	return &forge.Repository{
		Owner:         proj.Namespace.Path,
		Name:          proj.Path,
		Description:   proj.Description,
		DefaultBranch: proj.DefaultBranch,
		Private:       proj.Visibility == "private",
		URL:           proj.WebURL,
	}, nil
}

func (p *Provider) ListIssues(ctx context.Context, owner, name string) ([]forge.Issue, error) {
	// GitLab keeps merge requests on a separate endpoint, so no
	// filtering is needed here.
	var raw []issue
	path := "/api/v4/projects/" + projectID(owner, name) + "/issues?state=opened&per_page=100"
	if err := p.get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("listing issues for %s/%s: %w", owner, name, err)
	}

	issues := make([]forge.Issue, 0, len(raw))
	for _, gi := range raw {
		issues = append(issues, forge.Issue{
			Number:    gi.IID,
			Title:     gi.Title,
			Body:      gi.Body,
			State:     gi.State,
			Author:    gi.Author.Username,
			Labels:    gi.Labels,
			CreatedAt: gi.CreatedAt,
			UpdatedAt: gi.UpdatedAt,
			URL:       gi.WebURL,
		})
	}
	return issues, nil
}

// MergeRequest is a GitLab merge request summary. Merge requests live on
// their own endpoint and are not part of the forge.Provider surface.
type MergeRequest struct {
	IID          int
	Title        string
	State        string
	Author       string
	SourceBranch string
	TargetBranch string
	URL          string
}

// ListMergeRequests returns open merge requests for the project.
func (p *Provider) ListMergeRequests(ctx context.Context, owner, name string) ([]MergeRequest, error) {
	var raw []struct {
		IID          int    `json:"iid"`
		Title        string `json:"title"`
		State        string `json:"state"`
		SourceBranch string `json:"source_branch"`
		TargetBranch string `json:"target_branch"`
		WebURL       string `json:"web_url"`
		Author       struct {
			Username string `json:"username"`
		} `json:"author"`
	}
	path := "/api/v4/projects/" + projectID(owner, name) + "/merge_requests?state=opened&per_page=100"
	if err := p.get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("listing merge requests for %s/%s: %w", owner, name, err)
	}

	mrs := make([]MergeRequest, 0, len(raw))
	for _, m := range raw {
		mrs = append(mrs, MergeRequest{
			IID:          m.IID,
			Title:        m.Title,
			State:        m.State,
			Author:       m.Author.Username,
			SourceBranch: m.SourceBranch,
			TargetBranch: m.TargetBranch,
			URL:          m.WebURL,
		})
	}
	return mrs, nil
}

func (p *Provider) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if p.token != "" {
		req.Header.Set("PRIVATE-TOKEN", p.token)
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gitlab API error (status %d): %s", resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

func projectID(owner, name string) string {
	return url.PathEscape(owner + "/" + name)
}
