package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mind-engage/ieltsprep/internal/session"
)

// HTTPIdentityChecker asks GET {BaseURL}/api/checkLogin, forwarding the
// auth cookie.
type HTTPIdentityChecker struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPIdentityChecker(baseURL string, timeout time.Duration) *HTTPIdentityChecker {
	return &HTTPIdentityChecker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPIdentityChecker) CheckLogin(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/checkLogin", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: credential})

	res, err := c.Client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("check login: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusUnauthorized {
		return Identity{}, nil
	}
	if res.StatusCode/100 != 2 {
		return Identity{}, fmt.Errorf("check login: %s", res.Status)
	}
	var id Identity
	if err := json.NewDecoder(res.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decode check login: %w", err)
	}
	return id, nil
}

// JWTIdentityChecker verifies the auth cookie in-process.
type JWTIdentityChecker struct {
	Verify func(token string) (session.User, error)
}

func (c JWTIdentityChecker) CheckLogin(_ context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, nil
	}
	u, err := c.Verify(credential)
	if err != nil {
		// an invalid or expired token is a logged-out user, not a failure
		return Identity{}, nil
	}
	return Identity{LoggedIn: true, User: &u}, nil
}
