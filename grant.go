package oauth

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/embedauth/oauth2-server/model"
)

// Grant names of the built-in grant types
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
)

// Grant handles one token-endpoint grant type: it consumes a validated
// request from an authenticated client and yields the token to issue.
type Grant interface {
	Handle(ctx context.Context, req *Request, client *model.Client) (*model.Token, error)
}

// GrantOptions carries the shared configuration every grant is constructed
// with.
type GrantOptions struct {
	// Model is the persistence adapter
	Model model.Model

	// AccessTokenLifetime is the default access token lifetime, overridable
	// per client
	AccessTokenLifetime time.Duration

	// RefreshTokenLifetime is the default refresh token lifetime,
	// overridable per client
	RefreshTokenLifetime time.Duration

	// AlwaysIssueNewRefreshToken controls refresh token rotation
	AlwaysIssueNewRefreshToken bool
}

// GrantFactory constructs a grant from shared options. Factories verify the
// model implements the capabilities the grant needs and fail with
// invalid_argument otherwise.
type GrantFactory func(GrantOptions) (Grant, error)

// builtinGrants maps the standard grant names to their factories.
var builtinGrants = map[string]GrantFactory{
	GrantAuthorizationCode: NewAuthorizationCodeGrant,
	GrantClientCredentials: NewClientCredentialsGrant,
	GrantPassword:          NewPasswordGrant,
	GrantRefreshToken:      NewRefreshTokenGrant,
}

// baseGrant carries the state and helpers shared by all grant types.
type baseGrant struct {
	model                      model.Model
	saver                      model.TokenSaver
	accessTokenLifetime        time.Duration
	refreshTokenLifetime       time.Duration
	alwaysIssueNewRefreshToken bool
}

func newBaseGrant(opts GrantOptions, grantName string) (baseGrant, error) {
	if opts.Model == nil {
		return baseGrant{}, ErrInvalidArgument("model is required")
	}
	saver, ok := opts.Model.(model.TokenSaver)
	if !ok {
		return baseGrant{}, ErrInvalidArgument("model does not implement SaveToken, required by the " + grantName + " grant")
	}
	return baseGrant{
		model:                      opts.Model,
		saver:                      saver,
		accessTokenLifetime:        opts.AccessTokenLifetime,
		refreshTokenLifetime:       opts.RefreshTokenLifetime,
		alwaysIssueNewRefreshToken: opts.AlwaysIssueNewRefreshToken,
	}, nil
}

// generateAccessToken returns the model's access token if it supplies a
// generator and the generator returns a value, otherwise a random opaque
// token.
func (g *baseGrant) generateAccessToken(ctx context.Context, client *model.Client, user model.User, scope string) (string, error) {
	if gen, ok := g.model.(model.AccessTokenGenerator); ok {
		token, err := gen.GenerateAccessToken(ctx, client, user, scope)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return generateRandomToken(), nil
}

// generateRefreshToken mirrors generateAccessToken for refresh tokens.
func (g *baseGrant) generateRefreshToken(ctx context.Context, client *model.Client, user model.User, scope string) (string, error) {
	if gen, ok := g.model.(model.RefreshTokenGenerator); ok {
		token, err := gen.GenerateRefreshToken(ctx, client, user, scope)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return generateRandomToken(), nil
}

// accessTokenExpiresAt computes the access token expiry, honoring the
// client's lifetime override.
func (g *baseGrant) accessTokenExpiresAt(client *model.Client, now time.Time) time.Time {
	lifetime := g.accessTokenLifetime
	if client.AccessTokenLifetime > 0 {
		lifetime = client.AccessTokenLifetime
	}
	return now.Add(lifetime)
}

// refreshTokenExpiresAt computes the refresh token expiry, honoring the
// client's lifetime override.
func (g *baseGrant) refreshTokenExpiresAt(client *model.Client, now time.Time) time.Time {
	lifetime := g.refreshTokenLifetime
	if client.RefreshTokenLifetime > 0 {
		lifetime = client.RefreshTokenLifetime
	}
	return now.Add(lifetime)
}

// requestedScope extracts and syntactically validates the scope parameter.
func requestedScope(req *Request) (string, *OAuthError) {
	scope, oerr := req.param("scope")
	if oerr != nil {
		return "", oerr
	}
	if scope != "" && !isNQSChar(scope) {
		return "", ErrInvalidScope("invalid parameter: `scope`")
	}
	return scope, nil
}

// validateScope applies the model's scope policy when it supplies one; the
// requested scope passes through unchanged otherwise.
func (g *baseGrant) validateScope(ctx context.Context, user model.User, client *model.Client, scope string) (string, error) {
	validator, ok := g.model.(model.ScopeValidator)
	if !ok {
		return scope, nil
	}
	validated, ok, err := validator.ValidateScope(ctx, user, client, scope)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidScope("requested scope is invalid")
	}
	return validated, nil
}

// issueSpec describes the token a grant wants issued.
type issueSpec struct {
	client *model.Client
	user   model.User

	// scope to grant. When validateScope is set the model's scope policy
	// is applied first; grants leave it unset when the scope comes from
	// previously validated state (an authorization code, a refresh token).
	scope         string
	validateScope bool

	includeRefresh    bool
	authorizationCode string
}

// issueToken generates token material and persists the result. Scope
// validation and token generation are independent model calls and run
// concurrently; the first failure cancels the rest.
func (g *baseGrant) issueToken(ctx context.Context, spec issueSpec) (*model.Token, error) {
	now := time.Now()
	token := &model.Token{
		AccessTokenExpiresAt: g.accessTokenExpiresAt(spec.client, now),
		Scope:                spec.scope,
		AuthorizationCode:    spec.authorizationCode,
		Client:               spec.client,
		User:                 spec.user,
	}

	eg, gctx := errgroup.WithContext(ctx)
	if spec.validateScope {
		eg.Go(func() error {
			validated, err := g.validateScope(gctx, spec.user, spec.client, spec.scope)
			if err != nil {
				return err
			}
			token.Scope = validated
			return nil
		})
	}
	eg.Go(func() error {
		accessToken, err := g.generateAccessToken(gctx, spec.client, spec.user, spec.scope)
		if err != nil {
			return err
		}
		token.AccessToken = accessToken
		return nil
	})
	if spec.includeRefresh {
		token.RefreshTokenExpiresAt = g.refreshTokenExpiresAt(spec.client, now)
		eg.Go(func() error {
			refreshToken, err := g.generateRefreshToken(gctx, spec.client, spec.user, spec.scope)
			if err != nil {
				return err
			}
			token.RefreshToken = refreshToken
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	saved, err := g.saver.SaveToken(ctx, token, spec.client, spec.user)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, ErrServerError("model SaveToken returned no token")
	}
	return saved, nil
}
