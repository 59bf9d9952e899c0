package auth0

import (
	"context"
	"sync"
)

// FakeClient serves profiles keyed by access token.
type FakeClient struct {
	mu       sync.Mutex
	profiles map[string]Profile
}

func NewFakeClient() *FakeClient {
	return &FakeClient{profiles: map[string]Profile{}}
}

func (c *FakeClient) Profile(_ context.Context, accessToken string) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.profiles[accessToken]; ok {
		return p, nil
	}
	return Profile{}, ErrProfileUnavailable
}

func (c *FakeClient) AddProfile(accessToken string, p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[accessToken] = p
}
