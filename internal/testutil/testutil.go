// Package testutil provides testing fixtures and helpers for the OAuth
// library.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/embedauth/oauth2-server/model"
)

// TestClient creates a confidential test client registered for every
// built-in grant.
func TestClient() *model.Client {
	return &model.Client{
		ID: "test-client-id",
		Grants: []string{
			"authorization_code",
			"client_credentials",
			"password",
			"refresh_token",
		},
		RedirectURIs: []string{"https://example.com/callback"},
	}
}

// TestUser creates a test resource owner.
func TestUser() model.User {
	return map[string]any{
		"id":       "test-user-123",
		"username": "test@example.com",
	}
}

// TestToken creates a valid test token for the given client and user.
func TestToken(client *model.Client, user model.User) *model.Token {
	return &model.Token{
		AccessToken:           "test-access-token",
		AccessTokenExpiresAt:  time.Now().Add(time.Hour),
		RefreshToken:          "test-refresh-token",
		RefreshTokenExpiresAt: time.Now().Add(24 * time.Hour),
		Scope:                 "read write",
		Client:                client,
		User:                  user,
	}
}

// TestAuthorizationCode creates a valid test authorization code bound to
// the client's first redirect URI.
func TestAuthorizationCode(client *model.Client, user model.User) *model.AuthorizationCode {
	return &model.AuthorizationCode{
		Code:        "test-authorization-code",
		ExpiresAt:   time.Now().Add(5 * time.Minute),
		RedirectURI: client.RedirectURIs[0],
		Scope:       "read",
		Client:      client,
		User:        user,
	}
}

// FormRequest builds a POST request with a form-encoded body, the shape the
// token endpoint consumes.
func FormRequest(target string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}
