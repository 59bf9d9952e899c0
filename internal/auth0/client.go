// Package auth0 reads rider profiles from the Auth0 /userinfo endpoint.
package auth0

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var ErrProfileUnavailable = errors.New("failed to fetch rider profile")

// Profile is the subset of the /userinfo response used to open an account.
type Profile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
}

// DisplayName prefers the full name, then the nickname, then the email.
func (p Profile) DisplayName() string {
	for _, s := range []string{p.Name, p.Nickname, p.Email} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return p.Subject
}

type Client interface {
	Profile(ctx context.Context, accessToken string) (Profile, error)
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(domain string) *HTTPClient {
	domain = strings.TrimSuffix(strings.TrimPrefix(domain, "https://"), "/")
	return &HTTPClient{
		baseURL:    "https://" + domain,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) Profile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/userinfo", nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: status %d", ErrProfileUnavailable, resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	return p, nil
}
