package taskapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Defaults for the upstream task API.
const (
	DefaultBaseURL  = "https://api.clickup.com/api/v2"
	DefaultTimeout  = 20 * time.Second
	DefaultPageSize = 100
	DefaultMaxPages = 100
)

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("task api: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client fetches workspaces and tasks from the upstream task-tracking API
// on behalf of one credential. It is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	pageSize int
	maxPages int
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL overrides the upstream base URL (used by tests and relays).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = trimSlash(u) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithPageLimits overrides the page-size hint and the absolute page cap.
func WithPageLimits(pageSize, maxPages int) Option {
	return func(c *Client) {
		if pageSize > 0 {
			c.pageSize = pageSize
		}
		if maxPages > 0 {
			c.maxPages = maxPages
		}
	}
}

// authRoundTripper injects the integration credential into every request.
type authRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", t.token)
	req.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(req)
}

// NewClient creates a Client authenticated with the given credential token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, token: token},
			Timeout:   DefaultTimeout,
		},
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTeams returns the workspaces visible to the credential.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var resp teamsResponse
	if err := c.getJSON(ctx, "/team", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Teams, nil
}

// ResolveTeam performs the workspace handshake: it lists teams and picks the
// preferred id when it is still valid, otherwise the first team. An error is
// returned when the credential has no workspaces at all.
func (c *Client) ResolveTeam(ctx context.Context, preferred string) ([]Team, string, error) {
	teams, err := c.ListTeams(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(teams) == 0 {
		return nil, "", fmt.Errorf("task api: credential has no workspaces available")
	}
	if preferred != "" {
		for _, t := range teams {
			if t.ID == preferred {
				return teams, t.ID, nil
			}
		}
	}
	return teams, teams[0].ID, nil
}

// ListAllTasks returns every task (open and closed, subtasks included) in the
// workspace, paging until the upstream signals the last page: explicit
// last_page flag, page-count reached, or a short/empty page. An absolute cap
// of maxPages guards against pagination bugs upstream. Any transport error or
// non-2xx status aborts the whole fetch — callers never see partial results.
func (c *Client) ListAllTasks(ctx context.Context, teamID string) ([]Task, error) {
	var all []Task
	for page := 0; page < c.maxPages; page++ {
		q := url.Values{}
		q.Set("page", fmt.Sprintf("%d", page))
		q.Set("include_closed", "true")
		q.Set("subtasks", "true")

		var resp taskPage
		if err := c.getJSON(ctx, "/team/"+teamID+"/task", q, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Tasks...)

		if resp.LastPage != nil && *resp.LastPage {
			break
		}
		if resp.Pages != nil && page >= *resp.Pages-1 {
			break
		}
		if len(resp.Tasks) == 0 || len(resp.Tasks) < c.pageSize {
			break
		}
	}
	return all, nil
}

// getJSON performs one GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("task api: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("task api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("task api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 300)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("task api: decode response: %w", err)
	}
	return nil
}

func trimSlash(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
