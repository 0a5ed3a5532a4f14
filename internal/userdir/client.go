// README: HTTP client for the external user directory (identity resolution by email or user id).
package userdir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"taxi/internal/apperr"
)

type User struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
	Phone  string `json:"phoneNumber"`
	Email  string `json:"email"`
}

type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, httpc: &http.Client{Timeout: timeout}}
}

func (c *Client) UserByEmail(ctx context.Context, email string) (User, error) {
	u, err := c.get(ctx, "/api/auth/email/"+url.PathEscape(email))
	if err != nil {
		return User{}, err
	}
	if u.Email == "" {
		u.Email = email
	}
	return u, nil
}

func (c *Client) UserByID(ctx context.Context, id int64) (User, error) {
	return c.get(ctx, "/api/auth/id/"+strconv.FormatInt(id, 10))
}

// get classifies every failure as internal: the lifecycle cannot proceed without identity.
func (c *Client) get(ctx context.Context, path string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return User{}, apperr.Internal("build user directory request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return User{}, apperr.Internal("user directory unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, apperr.Internal("user directory lookup failed",
			fmt.Errorf("GET %s: status %d", path, resp.StatusCode))
	}
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, apperr.Internal("decode user directory response", err)
	}
	return u, nil
}
