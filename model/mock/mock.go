// Package mock provides a scriptable model implementation for testing.
// Every capability is a swappable function field with a sane in-memory
// default, and every call is counted.
package mock

import (
	"context"
	"sync"

	"github.com/embedauth/oauth2-server/model"
)

// Model is a mock implementation of the full model contract.
type Model struct {
	mu         sync.Mutex
	CallCounts map[string]int

	GetClientFunc               func(ctx context.Context, clientID, clientSecret string) (*model.Client, error)
	SaveTokenFunc               func(ctx context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error)
	GetAccessTokenFunc          func(ctx context.Context, accessToken string) (*model.Token, error)
	VerifyScopeFunc             func(ctx context.Context, token *model.Token, scope string) (bool, error)
	GetAuthorizationCodeFunc    func(ctx context.Context, code string) (*model.AuthorizationCode, error)
	SaveAuthorizationCodeFunc   func(ctx context.Context, code *model.AuthorizationCode, client *model.Client, user model.User) (*model.AuthorizationCode, error)
	RevokeAuthorizationCodeFunc func(ctx context.Context, code *model.AuthorizationCode) (bool, error)
	GetUserFunc                 func(ctx context.Context, username, password string) (model.User, error)
	GetUserFromClientFunc       func(ctx context.Context, client *model.Client) (model.User, error)
	GetRefreshTokenFunc         func(ctx context.Context, refreshToken string) (*model.RefreshToken, error)
	RevokeTokenFunc             func(ctx context.Context, token *model.RefreshToken) (bool, error)
}

// New creates a mock whose defaults behave like a tiny in-memory model:
// SaveToken and SaveAuthorizationCode echo their input bound to the given
// client and user, lookups return nil.
func New() *Model {
	m := &Model{CallCounts: make(map[string]int)}

	m.SaveTokenFunc = func(_ context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
		saved := *token
		saved.Client = client
		saved.User = user
		return &saved, nil
	}
	m.SaveAuthorizationCodeFunc = func(_ context.Context, code *model.AuthorizationCode, client *model.Client, user model.User) (*model.AuthorizationCode, error) {
		saved := *code
		saved.Client = client
		saved.User = user
		return &saved, nil
	}
	m.RevokeAuthorizationCodeFunc = func(context.Context, *model.AuthorizationCode) (bool, error) {
		return true, nil
	}
	m.RevokeTokenFunc = func(context.Context, *model.RefreshToken) (bool, error) {
		return true, nil
	}
	m.VerifyScopeFunc = func(context.Context, *model.Token, string) (bool, error) {
		return true, nil
	}

	return m
}

func (m *Model) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// Calls returns how many times the named method was invoked.
func (m *Model) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[method]
}

func (m *Model) GetClient(ctx context.Context, clientID, clientSecret string) (*model.Client, error) {
	m.count("GetClient")
	if m.GetClientFunc == nil {
		return nil, nil
	}
	return m.GetClientFunc(ctx, clientID, clientSecret)
}

func (m *Model) SaveToken(ctx context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
	m.count("SaveToken")
	return m.SaveTokenFunc(ctx, token, client, user)
}

func (m *Model) GetAccessToken(ctx context.Context, accessToken string) (*model.Token, error) {
	m.count("GetAccessToken")
	if m.GetAccessTokenFunc == nil {
		return nil, nil
	}
	return m.GetAccessTokenFunc(ctx, accessToken)
}

func (m *Model) VerifyScope(ctx context.Context, token *model.Token, scope string) (bool, error) {
	m.count("VerifyScope")
	return m.VerifyScopeFunc(ctx, token, scope)
}

func (m *Model) GetAuthorizationCode(ctx context.Context, code string) (*model.AuthorizationCode, error) {
	m.count("GetAuthorizationCode")
	if m.GetAuthorizationCodeFunc == nil {
		return nil, nil
	}
	return m.GetAuthorizationCodeFunc(ctx, code)
}

func (m *Model) SaveAuthorizationCode(ctx context.Context, code *model.AuthorizationCode, client *model.Client, user model.User) (*model.AuthorizationCode, error) {
	m.count("SaveAuthorizationCode")
	return m.SaveAuthorizationCodeFunc(ctx, code, client, user)
}

func (m *Model) RevokeAuthorizationCode(ctx context.Context, code *model.AuthorizationCode) (bool, error) {
	m.count("RevokeAuthorizationCode")
	return m.RevokeAuthorizationCodeFunc(ctx, code)
}

func (m *Model) GetUser(ctx context.Context, username, password string) (model.User, error) {
	m.count("GetUser")
	if m.GetUserFunc == nil {
		return nil, nil
	}
	return m.GetUserFunc(ctx, username, password)
}

func (m *Model) GetUserFromClient(ctx context.Context, client *model.Client) (model.User, error) {
	m.count("GetUserFromClient")
	if m.GetUserFromClientFunc == nil {
		return nil, nil
	}
	return m.GetUserFromClientFunc(ctx, client)
}

func (m *Model) GetRefreshToken(ctx context.Context, refreshToken string) (*model.RefreshToken, error) {
	m.count("GetRefreshToken")
	if m.GetRefreshTokenFunc == nil {
		return nil, nil
	}
	return m.GetRefreshTokenFunc(ctx, refreshToken)
}

func (m *Model) RevokeToken(ctx context.Context, token *model.RefreshToken) (bool, error) {
	m.count("RevokeToken")
	return m.RevokeTokenFunc(ctx, token)
}
