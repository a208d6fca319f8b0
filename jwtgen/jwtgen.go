// Package jwtgen upgrades a model to self-encoded JWT access tokens.
//
// The library treats access tokens as opaque strings; the model decides what
// they look like. Wrapping a model with this package makes issued access
// tokens signed JWTs and makes bearer validation stateless: GetAccessToken
// verifies the signature and claims instead of looking the token up in
// storage; only the client named by the client_id claim is loaded from the
// wrapped model.
package jwtgen

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/embedauth/oauth2-server/model"
)

// Contract is the capability set a wrapped model must provide; the wrapper
// re-exposes it, so anything outside it (a ValidateScope policy, other
// generator overrides) is hidden. The bundled model implementations
// (model/memory, model/redis) satisfy the contract.
type Contract interface {
	model.ClientGetter
	model.TokenSaver
	model.AccessTokenGetter
	model.ScopeVerifier
	model.AuthorizationCodeGetter
	model.AuthorizationCodeSaver
	model.AuthorizationCodeRevoker
	model.UserGetter
	model.ClientUserGetter
	model.RefreshTokenGetter
	model.TokenRevoker
}

// Config configures JWT generation and verification.
type Config struct {
	// Issuer is the value of the iss claim (required)
	Issuer string

	// SigningMethod defaults to HS256
	SigningMethod jwt.SigningMethod

	// SigningKey signs issued tokens: []byte for HMAC methods, a private
	// key for RSA/ECDSA (required)
	SigningKey any

	// VerificationKey verifies tokens. Defaults to SigningKey, which is
	// correct for HMAC; asymmetric methods pass the public key here.
	VerificationKey any

	// AccessTokenLifetime sets the exp claim. It should match the token
	// handler's access token lifetime. Default: 1 hour.
	AccessTokenLifetime time.Duration
}

// claims is the JWT payload of an issued access token.
type claims struct {
	jwt.RegisteredClaims
	ClientID string     `json:"client_id"`
	Scope    string     `json:"scope,omitempty"`
	User     model.User `json:"user"`
}

// Model wraps a storage-backed model with JWT access tokens. It implements
// model.AccessTokenGenerator and overrides GetAccessToken with stateless
// verification; every other capability is the wrapped model's.
type Model struct {
	Contract
	config Config
}

// New wraps a model with JWT access token generation and verification.
func New(wrapped Contract, config Config) (*Model, error) {
	if wrapped == nil {
		return nil, fmt.Errorf("wrapped model is required")
	}
	if config.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if config.SigningKey == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if config.SigningMethod == nil {
		config.SigningMethod = jwt.SigningMethodHS256
	}
	if config.VerificationKey == nil {
		config.VerificationKey = config.SigningKey
	}
	if config.AccessTokenLifetime == 0 {
		config.AccessTokenLifetime = time.Hour
	}
	return &Model{Contract: wrapped, config: config}, nil
}

// GenerateAccessToken implements model.AccessTokenGenerator: a signed JWT
// carrying the client, user, and scope, with a fresh jti.
func (m *Model) GenerateAccessToken(_ context.Context, client *model.Client, user model.User, scope string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(m.config.SigningMethod, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTokenLifetime)),
		},
		ClientID: client.ID,
		Scope:    scope,
		User:     user,
	})
	signed, err := token.SignedString(m.config.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// GetAccessToken verifies the JWT and reconstructs the token from its
// claims, without looking the token up in storage; the client is loaded from
// the wrapped model by the client_id claim. Invalid or expired tokens, and
// tokens whose client is unknown, return nil, matching the model contract
// for unknown tokens.
func (m *Model) GetAccessToken(ctx context.Context, accessToken string) (*model.Token, error) {
	parsed, err := jwt.ParseWithClaims(accessToken, &claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != m.config.SigningMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.config.VerificationKey, nil
	}, jwt.WithIssuer(m.config.Issuer))
	if err != nil {
		return nil, nil
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, nil
	}

	client, err := m.Contract.GetClient(ctx, c.ClientID, "")
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}

	return &model.Token{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: c.ExpiresAt.Time,
		Scope:                c.Scope,
		Client:               client,
		User:                 c.User,
	}, nil
}
