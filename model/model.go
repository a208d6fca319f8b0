package model

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// User is the resource owner as supplied by the model. The library treats it
// as opaque: it is carried from model call to model call and only checked for
// presence, never inspected.
type User any

// Client represents a registered OAuth client.
type Client struct {
	// ID is the unique client identifier
	ID string

	// Grants lists the grant type names this client may use
	Grants []string

	// RedirectURIs lists the registered absolute redirection URIs.
	// Must be non-empty when Grants contains "authorization_code".
	RedirectURIs []string

	// AccessTokenLifetime overrides the handler's access token lifetime
	// for this client. Zero means use the handler default.
	AccessTokenLifetime time.Duration

	// RefreshTokenLifetime overrides the handler's refresh token lifetime
	// for this client. Zero means use the handler default.
	RefreshTokenLifetime time.Duration
}

// AllowsGrant reports whether the client is registered for the named grant.
func (c *Client) AllowsGrant(grant string) bool {
	for _, g := range c.Grants {
		if g == grant {
			return true
		}
	}
	return false
}

// Token represents an issued access token, optionally paired with a refresh
// token. It is a value object: constructed from model results, used to build
// one response, and discarded.
type Token struct {
	// AccessToken is the access token string (opaque to the library)
	AccessToken string

	// AccessTokenExpiresAt is when the access token expires. The
	// authenticate handler rejects a token whose AccessTokenExpiresAt is
	// zero with server_error.
	AccessTokenExpiresAt time.Time

	// RefreshToken is the refresh token string, empty if none was issued
	RefreshToken string

	// RefreshTokenExpiresAt is when the refresh token expires
	RefreshTokenExpiresAt time.Time

	// Scope is the space-delimited scope granted to the token
	Scope string

	// AuthorizationCode records the code this token was exchanged for,
	// when issued by the authorization_code grant
	AuthorizationCode string

	// Client is the client the token was issued to
	Client *Client

	// User is the resource owner the token was issued for
	User User

	// Extra carries extended token attributes the model attached in
	// SaveToken. They are echoed in the token response only when the
	// handler allows extended attributes, and reserved response keys
	// are never overridden.
	Extra map[string]any
}

// ExpiresIn returns the remaining access token lifetime in whole seconds at
// the given instant, for the expires_in response field.
func (t *Token) ExpiresIn(now time.Time) int64 {
	if t.AccessTokenExpiresAt.IsZero() {
		return 0
	}
	return int64(t.AccessTokenExpiresAt.Sub(now) / time.Second)
}

// OAuth2Token converts the token to a golang.org/x/oauth2 Token for interop
// with clients built on that package.
func (t *Token) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.AccessTokenExpiresAt,
	}
}

// AuthorizationCode represents an issued authorization code. Codes are
// single-use: the authorization_code grant revokes a code on first exchange
// whether or not token issuance subsequently succeeds.
type AuthorizationCode struct {
	// Code is the authorization code string
	Code string

	// ExpiresAt is the absolute expiry instant
	ExpiresAt time.Time

	// RedirectURI is the redirection URI the code was bound to, if any
	RedirectURI string

	// Scope is the space-delimited scope the code was bound to
	Scope string

	// Client is the client the code was issued to
	Client *Client

	// User is the resource owner who authorized the client
	User User
}

// RefreshToken represents a persisted refresh token resolving to a
// (client, user, scope) triple.
type RefreshToken struct {
	// RefreshToken is the refresh token string
	RefreshToken string

	// ExpiresAt is when the refresh token expires.
	// Zero means the token does not expire.
	ExpiresAt time.Time

	// Scope is the space-delimited scope of the original grant
	Scope string

	// Client is the client the token was issued to
	Client *Client

	// User is the resource owner the token was issued for
	User User
}

// Model is the marker interface for a persistence adapter. Client lookup is
// the one capability every pipeline needs; everything beyond it is asserted
// per handler at construction time.
type Model interface {
	ClientGetter
}

// ClientGetter looks up clients and verifies their credentials.
type ClientGetter interface {
	// GetClient retrieves a client by ID, verifying clientSecret when it is
	// non-empty. The secret is passed as presented; hashing and
	// constant-time comparison are the implementation's job.
	// Returns nil (with a nil error) when the client is unknown or the
	// secret does not match.
	GetClient(ctx context.Context, clientID, clientSecret string) (*Client, error)
}

// TokenSaver persists issued tokens.
type TokenSaver interface {
	// SaveToken persists a token for a client and user, atomically.
	// The returned token is what the handler serializes; implementations
	// may attach extended attributes via Token.Extra.
	SaveToken(ctx context.Context, token *Token, client *Client, user User) (*Token, error)
}

// AccessTokenGetter resolves bearer token strings to persisted tokens.
type AccessTokenGetter interface {
	// GetAccessToken retrieves a persisted token by its access token
	// string. Returns nil (with a nil error) when unknown.
	GetAccessToken(ctx context.Context, accessToken string) (*Token, error)
}

// ScopeVerifier checks a token against a required scope.
type ScopeVerifier interface {
	// VerifyScope reports whether the token's granted scope satisfies the
	// required scope.
	VerifyScope(ctx context.Context, token *Token, scope string) (bool, error)
}

// AuthorizationCodeGetter looks up issued authorization codes.
type AuthorizationCodeGetter interface {
	// GetAuthorizationCode retrieves an authorization code. Returns nil
	// (with a nil error) when unknown.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// AuthorizationCodeSaver persists issued authorization codes.
type AuthorizationCodeSaver interface {
	// SaveAuthorizationCode persists an authorization code bound to a
	// client and user. The returned code is what the handler redirects
	// with.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode, client *Client, user User) (*AuthorizationCode, error)
}

// AuthorizationCodeRevoker revokes authorization codes on use.
type AuthorizationCodeRevoker interface {
	// RevokeAuthorizationCode irreversibly revokes a code. Returns false
	// when the code was not found or could not be revoked, which the
	// grant surfaces as invalid_grant.
	RevokeAuthorizationCode(ctx context.Context, code *AuthorizationCode) (bool, error)
}

// UserGetter authenticates resource owners by credentials, for the password
// grant.
type UserGetter interface {
	// GetUser authenticates a resource owner. Returns nil (with a nil
	// error) when the credentials are wrong.
	GetUser(ctx context.Context, username, password string) (User, error)
}

// ClientUserGetter resolves the client-as-user identity, for the
// client_credentials grant.
type ClientUserGetter interface {
	// GetUserFromClient returns the user the client acts as. Returns nil
	// (with a nil error) when the client has no such identity.
	GetUserFromClient(ctx context.Context, client *Client) (User, error)
}

// RefreshTokenGetter looks up refresh tokens.
type RefreshTokenGetter interface {
	// GetRefreshToken retrieves a persisted refresh token. Returns nil
	// (with a nil error) when unknown.
	GetRefreshToken(ctx context.Context, refreshToken string) (*RefreshToken, error)
}

// TokenRevoker revokes refresh tokens on rotation.
type TokenRevoker interface {
	// RevokeToken revokes a refresh token. Returns false when the token
	// was not found or could not be revoked.
	RevokeToken(ctx context.Context, token *RefreshToken) (bool, error)
}

// AccessTokenGenerator optionally overrides access token generation.
type AccessTokenGenerator interface {
	// GenerateAccessToken returns the access token string to issue.
	// Returning an empty string falls back to the library's random
	// generator.
	GenerateAccessToken(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// RefreshTokenGenerator optionally overrides refresh token generation.
type RefreshTokenGenerator interface {
	// GenerateRefreshToken returns the refresh token string to issue.
	// Returning an empty string falls back to the library's random
	// generator.
	GenerateRefreshToken(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// AuthorizationCodeGenerator optionally overrides authorization code
// generation.
type AuthorizationCodeGenerator interface {
	// GenerateAuthorizationCode returns the code string to issue.
	// Returning an empty string falls back to the library's random
	// generator.
	GenerateAuthorizationCode(ctx context.Context, client *Client, user User, scope string) (string, error)
}

// ScopeValidator optionally applies scope policy when tokens are issued.
type ScopeValidator interface {
	// ValidateScope returns the scope to grant, possibly narrowed from the
	// requested scope. ok is false when the requested scope is not
	// grantable, which the caller surfaces as invalid_scope.
	ValidateScope(ctx context.Context, user User, client *Client, scope string) (validated string, ok bool, err error)
}
