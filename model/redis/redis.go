// Package redis provides a Redis-backed model implementation for
// multi-instance deployments. Records are stored as JSON with TTLs derived
// from their expiry instants; authorization codes are consumed atomically
// with GETDEL, which keeps them single-use across instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/embedauth/oauth2-server/model"
)

const (
	keyKindClient  = "client:"
	keyKindUser    = "user:"
	keyKindToken   = "token:"
	keyKindRefresh = "refresh:"
	keyKindCode    = "code:"
)

// Store is a Redis-backed implementation of the full model contract.
type Store struct {
	client rdb.UniversalClient
	prefix string
}

// New creates a store over an existing Redis client with the default
// "oauth:" key prefix.
func New(client rdb.UniversalClient) *Store {
	return NewWithPrefix(client, "oauth:")
}

// NewWithPrefix creates a store whose keys all share the given prefix.
// Distinct prefixes isolate multiple stores on one Redis instance.
func NewWithPrefix(client rdb.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(kind, id string) string {
	return s.prefix + kind + id
}

// clientRecord is the stored form of a client registration.
type clientRecord struct {
	Client     *model.Client  `json:"client"`
	SecretHash []byte         `json:"secret_hash,omitempty"`
	User       map[string]any `json:"user,omitempty"`
}

// userRecord is the stored form of a resource owner.
type userRecord struct {
	User         map[string]any `json:"user"`
	PasswordHash []byte         `json:"password_hash"`
}

// tokenRecord is the stored form of an issued token. Client and user are
// denormalized so lookups need a single round trip.
type tokenRecord struct {
	AccessToken           string         `json:"access_token"`
	AccessTokenExpiresAt  time.Time      `json:"access_token_expires_at,omitempty"`
	RefreshToken          string         `json:"refresh_token,omitempty"`
	RefreshTokenExpiresAt time.Time      `json:"refresh_token_expires_at,omitempty"`
	Scope                 string         `json:"scope,omitempty"`
	AuthorizationCode     string         `json:"authorization_code,omitempty"`
	Client                *model.Client  `json:"client"`
	User                  map[string]any `json:"user"`
	Extra                 map[string]any `json:"extra,omitempty"`
}

// codeRecord is the stored form of an authorization code.
type codeRecord struct {
	Code        string         `json:"code"`
	ExpiresAt   time.Time      `json:"expires_at"`
	RedirectURI string         `json:"redirect_uri,omitempty"`
	Scope       string         `json:"scope,omitempty"`
	Client      *model.Client  `json:"client"`
	User        map[string]any `json:"user"`
}

// AddClient registers a client. The secret is stored as a bcrypt hash; an
// empty secret registers a public client.
func (s *Store) AddClient(ctx context.Context, client *model.Client, secret string) error {
	if client == nil || client.ID == "" {
		return fmt.Errorf("client with an ID is required")
	}
	rec := &clientRecord{Client: client}
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash client secret: %w", err)
		}
		rec.SecretHash = hash
	}
	return s.setJSON(ctx, s.key(keyKindClient, client.ID), rec, 0)
}

// AddUser registers a resource owner under the given username.
func (s *Store) AddUser(ctx context.Context, username, password string, user map[string]any) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.setJSON(ctx, s.key(keyKindUser, username), &userRecord{User: user, PasswordHash: hash}, 0)
}

// SetClientUser binds the identity the client acts as in the
// client_credentials grant.
func (s *Store) SetClientUser(ctx context.Context, clientID string, user map[string]any) error {
	var rec clientRecord
	found, err := s.getJSON(ctx, s.key(keyKindClient, clientID), &rec)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("unknown client %q", clientID)
	}
	rec.User = user
	return s.setJSON(ctx, s.key(keyKindClient, clientID), &rec, 0)
}

// GetClient implements model.ClientGetter.
func (s *Store) GetClient(ctx context.Context, clientID, clientSecret string) (*model.Client, error) {
	var rec clientRecord
	found, err := s.getJSON(ctx, s.key(keyKindClient, clientID), &rec)
	if err != nil || !found {
		return nil, err
	}
	if clientSecret != "" {
		if rec.SecretHash == nil {
			return nil, nil
		}
		if bcrypt.CompareHashAndPassword(rec.SecretHash, []byte(clientSecret)) != nil {
			return nil, nil
		}
	}
	return rec.Client, nil
}

// SaveToken implements model.TokenSaver.
func (s *Store) SaveToken(ctx context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
	rec := &tokenRecord{
		AccessToken:           token.AccessToken,
		AccessTokenExpiresAt:  token.AccessTokenExpiresAt,
		RefreshToken:          token.RefreshToken,
		RefreshTokenExpiresAt: token.RefreshTokenExpiresAt,
		Scope:                 token.Scope,
		AuthorizationCode:     token.AuthorizationCode,
		Client:                client,
		User:                  asMap(user),
		Extra:                 token.Extra,
	}
	if err := s.setJSON(ctx, s.key(keyKindToken, token.AccessToken), rec, ttlUntil(token.AccessTokenExpiresAt)); err != nil {
		return nil, err
	}
	if token.RefreshToken != "" {
		if err := s.setJSON(ctx, s.key(keyKindRefresh, token.RefreshToken), rec, ttlUntil(token.RefreshTokenExpiresAt)); err != nil {
			return nil, err
		}
	}
	return rec.asToken(), nil
}

// GetAccessToken implements model.AccessTokenGetter.
func (s *Store) GetAccessToken(ctx context.Context, accessToken string) (*model.Token, error) {
	var rec tokenRecord
	found, err := s.getJSON(ctx, s.key(keyKindToken, accessToken), &rec)
	if err != nil || !found {
		return nil, err
	}
	return rec.asToken(), nil
}

// GetRefreshToken implements model.RefreshTokenGetter.
func (s *Store) GetRefreshToken(ctx context.Context, refreshToken string) (*model.RefreshToken, error) {
	var rec tokenRecord
	found, err := s.getJSON(ctx, s.key(keyKindRefresh, refreshToken), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &model.RefreshToken{
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    rec.RefreshTokenExpiresAt,
		Scope:        rec.Scope,
		Client:       rec.Client,
		User:         model.User(rec.User),
	}, nil
}

// RevokeToken implements model.TokenRevoker.
func (s *Store) RevokeToken(ctx context.Context, token *model.RefreshToken) (bool, error) {
	deleted, err := s.client.Del(ctx, s.key(keyKindRefresh, token.RefreshToken)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return deleted > 0, nil
}

// SaveAuthorizationCode implements model.AuthorizationCodeSaver.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *model.AuthorizationCode, client *model.Client, user model.User) (*model.AuthorizationCode, error) {
	rec := &codeRecord{
		Code:        code.Code,
		ExpiresAt:   code.ExpiresAt,
		RedirectURI: code.RedirectURI,
		Scope:       code.Scope,
		Client:      client,
		User:        asMap(user),
	}
	if err := s.setJSON(ctx, s.key(keyKindCode, code.Code), rec, ttlUntil(code.ExpiresAt)); err != nil {
		return nil, err
	}
	return rec.asCode(), nil
}

// GetAuthorizationCode implements model.AuthorizationCodeGetter.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*model.AuthorizationCode, error) {
	var rec codeRecord
	found, err := s.getJSON(ctx, s.key(keyKindCode, code), &rec)
	if err != nil || !found {
		return nil, err
	}
	return rec.asCode(), nil
}

// RevokeAuthorizationCode implements model.AuthorizationCodeRevoker. GETDEL
// makes consumption atomic, so only one of two concurrent exchanges of the
// same code can win.
func (s *Store) RevokeAuthorizationCode(ctx context.Context, code *model.AuthorizationCode) (bool, error) {
	_, err := s.client.GetDel(ctx, s.key(keyKindCode, code.Code)).Result()
	if errors.Is(err, rdb.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis getdel: %w", err)
	}
	return true, nil
}

// GetUser implements model.UserGetter.
func (s *Store) GetUser(ctx context.Context, username, password string) (model.User, error) {
	var rec userRecord
	found, err := s.getJSON(ctx, s.key(keyKindUser, username), &rec)
	if err != nil || !found {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return nil, nil
	}
	return model.User(rec.User), nil
}

// GetUserFromClient implements model.ClientUserGetter.
func (s *Store) GetUserFromClient(ctx context.Context, client *model.Client) (model.User, error) {
	var rec clientRecord
	found, err := s.getJSON(ctx, s.key(keyKindClient, client.ID), &rec)
	if err != nil || !found {
		return nil, err
	}
	if rec.User == nil {
		return nil, nil
	}
	return model.User(rec.User), nil
}

// VerifyScope implements model.ScopeVerifier.
func (s *Store) VerifyScope(_ context.Context, token *model.Token, scope string) (bool, error) {
	granted := strings.Fields(token.Scope)
	for _, required := range strings.Fields(scope) {
		found := false
		for _, g := range granted {
			if g == required {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

func (r *tokenRecord) asToken() *model.Token {
	return &model.Token{
		AccessToken:           r.AccessToken,
		AccessTokenExpiresAt:  r.AccessTokenExpiresAt,
		RefreshToken:          r.RefreshToken,
		RefreshTokenExpiresAt: r.RefreshTokenExpiresAt,
		Scope:                 r.Scope,
		AuthorizationCode:     r.AuthorizationCode,
		Client:                r.Client,
		User:                  model.User(r.User),
		Extra:                 r.Extra,
	}
}

func (r *codeRecord) asCode() *model.AuthorizationCode {
	return &model.AuthorizationCode{
		Code:        r.Code,
		ExpiresAt:   r.ExpiresAt,
		RedirectURI: r.RedirectURI,
		Scope:       r.Scope,
		Client:      r.Client,
		User:        model.User(r.User),
	}
}

func (s *Store) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, rdb.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// ttlUntil converts an absolute expiry to a Redis TTL; zero expiry means no
// TTL.
func ttlUntil(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

// asMap coerces the opaque user to its stored JSON form.
func asMap(user model.User) map[string]any {
	if m, ok := user.(map[string]any); ok {
		return m
	}
	if user == nil {
		return nil
	}
	// Round-trip arbitrary user types through JSON.
	data, err := json.Marshal(user)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}
