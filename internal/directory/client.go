// Package directory is the authorization collaborator: it answers whether an
// actor belongs to a departmental group. Group storage lives in an external
// identity service; this package only queries it.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/reqflow/internal/approval"
)

// Authorizer answers role-membership questions for actors.
type Authorizer interface {
	HasRole(ctx context.Context, actorID string, role approval.Role) (bool, error)
}

// Client queries the identity service's REST API for group membership.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a client targeting the provided base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// HasRole reports whether the actor is a member of the given group. An
// unknown actor is simply not a member.
func (c *Client) HasRole(ctx context.Context, actorID string, role approval.Role) (bool, error) {
	endpoint := fmt.Sprintf("%s/members/%s/roles/%s",
		c.baseURL, url.PathEscape(actorID), url.PathEscape(string(role)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("role lookup failed: %s", resp.Status)
	}

	var result struct {
		Member bool `json:"member"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}
	return result.Member, nil
}
