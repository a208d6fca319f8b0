// Package memory provides an in-memory model implementation. It is suitable
// for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/embedauth/oauth2-server/model"
)

const cleanupInterval = 5 * time.Minute

type clientRecord struct {
	client     *model.Client
	secretHash []byte // bcrypt; nil for public clients
	user       model.User
}

type userRecord struct {
	user         model.User
	passwordHash []byte
}

type tokenRecord struct {
	token *model.Token
}

type refreshRecord struct {
	refreshToken string
	expiresAt    time.Time
	scope        string
	clientID     string
	user         model.User
}

// Store is an in-memory implementation of the full model contract. Client
// secrets and user passwords are kept as bcrypt hashes so credential
// comparison is constant-time, as the model contract requires. Expiring
// records (tokens, codes) live in TTL caches and vanish on their own.
type Store struct {
	mu sync.Mutex

	clients map[string]*clientRecord
	users   map[string]*userRecord

	tokens        *gocache.Cache // access token -> *tokenRecord
	refreshTokens *gocache.Cache // refresh token -> *refreshRecord
	codes         *gocache.Cache // code -> *model.AuthorizationCode

	// supportedScopes gates ValidateScope; empty allows everything
	supportedScopes []string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		clients:       make(map[string]*clientRecord),
		users:         make(map[string]*userRecord),
		tokens:        gocache.New(gocache.NoExpiration, cleanupInterval),
		refreshTokens: gocache.New(gocache.NoExpiration, cleanupInterval),
		codes:         gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// AddClient registers a client. The secret is stored as a bcrypt hash; an
// empty secret registers a public client.
func (s *Store) AddClient(client *model.Client, secret string) error {
	if client == nil || client.ID == "" {
		return fmt.Errorf("client with an ID is required")
	}
	rec := &clientRecord{client: client}
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash client secret: %w", err)
		}
		rec.secretHash = hash
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = rec
	return nil
}

// AddUser registers a resource owner and returns the stored user object,
// a map carrying at least an "id" and the username.
func (s *Store) AddUser(username, password string) (model.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := map[string]any{
		"id":       uuid.NewString(),
		"username": username,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &userRecord{user: user, passwordHash: hash}
	return user, nil
}

// SetClientUser binds the identity the client acts as in the
// client_credentials grant.
func (s *Store) SetClientUser(clientID string, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[clientID]
	if !ok {
		return fmt.Errorf("unknown client %q", clientID)
	}
	rec.user = user
	return nil
}

// SetSupportedScopes restricts the scopes ValidateScope will grant. An empty
// list allows all scopes.
func (s *Store) SetSupportedScopes(scopes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supportedScopes = scopes
}

// GetClient implements model.ClientGetter.
func (s *Store) GetClient(_ context.Context, clientID, clientSecret string) (*model.Client, error) {
	s.mu.Lock()
	rec, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if clientSecret != "" {
		if rec.secretHash == nil {
			return nil, nil
		}
		if bcrypt.CompareHashAndPassword(rec.secretHash, []byte(clientSecret)) != nil {
			return nil, nil
		}
	}
	return rec.client, nil
}

// SaveToken implements model.TokenSaver.
func (s *Store) SaveToken(_ context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
	saved := *token
	saved.Client = client
	saved.User = user

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens.Set(saved.AccessToken, &tokenRecord{token: &saved}, ttlUntil(saved.AccessTokenExpiresAt))
	if saved.RefreshToken != "" {
		s.refreshTokens.Set(saved.RefreshToken, &refreshRecord{
			refreshToken: saved.RefreshToken,
			expiresAt:    saved.RefreshTokenExpiresAt,
			scope:        saved.Scope,
			clientID:     client.ID,
			user:         user,
		}, ttlUntil(saved.RefreshTokenExpiresAt))
	}
	return &saved, nil
}

// GetAccessToken implements model.AccessTokenGetter.
func (s *Store) GetAccessToken(_ context.Context, accessToken string) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tokens.Get(accessToken)
	if !ok {
		return nil, nil
	}
	return v.(*tokenRecord).token, nil
}

// GetRefreshToken implements model.RefreshTokenGetter.
func (s *Store) GetRefreshToken(_ context.Context, refreshToken string) (*model.RefreshToken, error) {
	s.mu.Lock()
	rec, ok := s.getRefreshLocked(refreshToken)
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	client, hasClient := s.clients[rec.clientID]
	s.mu.Unlock()
	if !hasClient {
		return nil, nil
	}
	return &model.RefreshToken{
		RefreshToken: rec.refreshToken,
		ExpiresAt:    rec.expiresAt,
		Scope:        rec.scope,
		Client:       client.client,
		User:         rec.user,
	}, nil
}

// RevokeToken implements model.TokenRevoker.
func (s *Store) RevokeToken(_ context.Context, token *model.RefreshToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.getRefreshLocked(token.RefreshToken); !ok {
		return false, nil
	}
	s.refreshTokens.Delete(token.RefreshToken)
	return true, nil
}

func (s *Store) getRefreshLocked(refreshToken string) (*refreshRecord, bool) {
	v, ok := s.refreshTokens.Get(refreshToken)
	if !ok {
		return nil, false
	}
	return v.(*refreshRecord), true
}

// SaveAuthorizationCode implements model.AuthorizationCodeSaver.
func (s *Store) SaveAuthorizationCode(_ context.Context, code *model.AuthorizationCode, client *model.Client, user model.User) (*model.AuthorizationCode, error) {
	saved := *code
	saved.Client = client
	saved.User = user

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes.Set(saved.Code, &saved, ttlUntil(saved.ExpiresAt))
	return &saved, nil
}

// GetAuthorizationCode implements model.AuthorizationCodeGetter.
func (s *Store) GetAuthorizationCode(_ context.Context, code string) (*model.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.codes.Get(code)
	if !ok {
		return nil, nil
	}
	return v.(*model.AuthorizationCode), nil
}

// RevokeAuthorizationCode implements model.AuthorizationCodeRevoker. The
// check-and-delete runs under the store lock, which is what makes the code
// single-use under concurrent exchanges.
func (s *Store) RevokeAuthorizationCode(_ context.Context, code *model.AuthorizationCode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes.Get(code.Code); !ok {
		return false, nil
	}
	s.codes.Delete(code.Code)
	return true, nil
}

// GetUser implements model.UserGetter.
func (s *Store) GetUser(_ context.Context, username, password string) (model.User, error) {
	s.mu.Lock()
	rec, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) != nil {
		return nil, nil
	}
	return rec.user, nil
}

// GetUserFromClient implements model.ClientUserGetter.
func (s *Store) GetUserFromClient(_ context.Context, client *model.Client) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[client.ID]
	if !ok || rec.user == nil {
		return nil, nil
	}
	return rec.user, nil
}

// VerifyScope implements model.ScopeVerifier: every required scope must be
// present in the token's granted scope.
func (s *Store) VerifyScope(_ context.Context, token *model.Token, scope string) (bool, error) {
	granted := strings.Fields(token.Scope)
	for _, required := range strings.Fields(scope) {
		if !contains(granted, required) {
			return false, nil
		}
	}
	return true, nil
}

// ValidateScope implements model.ScopeValidator: when a supported-scope list
// is configured, every requested scope must be on it.
func (s *Store) ValidateScope(_ context.Context, _ model.User, _ *model.Client, scope string) (string, bool, error) {
	s.mu.Lock()
	supported := s.supportedScopes
	s.mu.Unlock()
	if len(supported) == 0 {
		return scope, true, nil
	}
	for _, requested := range strings.Fields(scope) {
		if !contains(supported, requested) {
			return "", false, nil
		}
	}
	return scope, true, nil
}

// ttlUntil converts an absolute expiry into a go-cache TTL. Records without
// an expiry never age out.
func ttlUntil(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return gocache.NoExpiration
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already expired; keep it for a beat so lookups can report an
		// expired record rather than a missing one.
		return time.Second
	}
	return ttl
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
