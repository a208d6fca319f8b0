package oauth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/embedauth/oauth2-server/internal/testutil"
	"github.com/embedauth/oauth2-server/model"
	"github.com/embedauth/oauth2-server/model/mock"
)

// newCodeExchangeModel builds a mock model holding one client (c1/s1 with
// the authorization_code and refresh_token grants) and one single-use
// authorization code "abc" bound to https://x.test/cb.
func newCodeExchangeModel(t *testing.T) (*mock.Model, *model.Client) {
	t.Helper()

	client := &model.Client{
		ID:           "c1",
		Grants:       []string{"authorization_code", "refresh_token"},
		RedirectURIs: []string{"https://x.test/cb"},
	}
	user := map[string]any{"id": "u1"}

	codes := map[string]*model.AuthorizationCode{
		"abc": {
			Code:        "abc",
			ExpiresAt:   time.Now().Add(60 * time.Second),
			RedirectURI: "https://x.test/cb",
			Client:      client,
			User:        user,
		},
	}

	m := mock.New()
	m.GetClientFunc = func(_ context.Context, clientID, clientSecret string) (*model.Client, error) {
		if clientID == "c1" && (clientSecret == "" || clientSecret == "s1") {
			return client, nil
		}
		return nil, nil
	}
	m.GetAuthorizationCodeFunc = func(_ context.Context, code string) (*model.AuthorizationCode, error) {
		return codes[code], nil
	}
	m.RevokeAuthorizationCodeFunc = func(_ context.Context, code *model.AuthorizationCode) (bool, error) {
		if _, ok := codes[code.Code]; !ok {
			return false, nil
		}
		delete(codes, code.Code)
		return true, nil
	}
	return m, client
}

func newTokenRequest(t *testing.T, form url.Values, edit func(*http.Request)) *Request {
	t.Helper()
	r := testutil.FormRequest("/token", form)
	if edit != nil {
		edit(r)
	}
	req, err := NewRequest(r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return req
}

func TestTokenAuthorizationCodeHappyPath(t *testing.T) {
	m, _ := newCodeExchangeModel(t)
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "abc")
	form.Set("redirect_uri", "https://x.test/cb")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	token, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if resp.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", resp.Header().Get("Cache-Control"))
	}
	if resp.Header().Get("Pragma") != "no-cache" {
		t.Errorf("Pragma = %q, want no-cache", resp.Header().Get("Pragma"))
	}
	if s, ok := resp.Body["access_token"].(string); !ok || s == "" {
		t.Error("response is missing access_token")
	}
	if s, ok := resp.Body["refresh_token"].(string); !ok || s == "" {
		t.Error("response is missing refresh_token")
	}
	if resp.Body["token_type"] != "Bearer" {
		t.Errorf("token_type = %v, want Bearer", resp.Body["token_type"])
	}
	expiresIn, ok := resp.Body["expires_in"].(int64)
	if !ok || expiresIn < 3599 || expiresIn > 3600 {
		t.Errorf("expires_in = %v, want about 3600", resp.Body["expires_in"])
	}
	if token.AuthorizationCode != "abc" {
		t.Errorf("AuthorizationCode = %q, want abc", token.AuthorizationCode)
	}
	if got := m.Calls("RevokeAuthorizationCode"); got != 1 {
		t.Errorf("RevokeAuthorizationCode called %d times, want 1", got)
	}
	if got := m.Calls("SaveToken"); got != 1 {
		t.Errorf("SaveToken called %d times, want 1", got)
	}
}

func TestTokenAuthorizationCodeReplay(t *testing.T) {
	m, _ := newCodeExchangeModel(t)
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "abc")
	form.Set("redirect_uri", "https://x.test/cb")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	if _, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), NewResponse()); err != nil {
		t.Fatalf("first exchange error = %v", err)
	}

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("second exchange succeeded, want invalid_grant")
	}
	if resp.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.Status)
	}
	if resp.Body["error"] != ErrorCodeInvalidGrant {
		t.Errorf("error = %v, want invalid_grant", resp.Body["error"])
	}
	if got := m.Calls("SaveToken"); got != 1 {
		t.Errorf("SaveToken called %d times after replay, want 1", got)
	}
}

func TestTokenExpiredCode(t *testing.T) {
	m, client := newCodeExchangeModel(t)
	m.GetAuthorizationCodeFunc = func(context.Context, string) (*model.AuthorizationCode, error) {
		return &model.AuthorizationCode{
			Code:      "abc",
			ExpiresAt: time.Now().Add(-time.Second),
			Client:    client,
			User:      map[string]any{"id": "u1"},
		}, nil
	}
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "abc")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("Handle() succeeded with an expired code")
	}
	if resp.Body["error"] != ErrorCodeInvalidGrant {
		t.Errorf("error = %v, want invalid_grant", resp.Body["error"])
	}
	if got := m.Calls("SaveToken"); got != 0 {
		t.Errorf("SaveToken called %d times for an expired code, want 0", got)
	}
}

func TestTokenRedirectURIMismatch(t *testing.T) {
	m, _ := newCodeExchangeModel(t)
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "abc")
	form.Set("redirect_uri", "https://x.test/cB") // one character off
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("Handle() succeeded with a mismatched redirect_uri")
	}
	if resp.Body["error"] != ErrorCodeInvalidRequest {
		t.Errorf("error = %v, want invalid_request", resp.Body["error"])
	}
}

func TestTokenRefreshWithoutRotation(t *testing.T) {
	client := &model.Client{ID: "c1", Grants: []string{"refresh_token"}}
	user := map[string]any{"id": "u1"}

	m := mock.New()
	m.GetClientFunc = func(_ context.Context, clientID, clientSecret string) (*model.Client, error) {
		if clientID == "c1" && clientSecret == "s1" {
			return client, nil
		}
		return nil, nil
	}
	m.GetRefreshTokenFunc = func(_ context.Context, refreshToken string) (*model.RefreshToken, error) {
		if refreshToken != "r1" {
			return nil, nil
		}
		return &model.RefreshToken{
			RefreshToken: "r1",
			ExpiresAt:    time.Now().Add(time.Hour),
			Scope:        "read",
			Client:       client,
			User:         user,
		}, nil
	}

	rotate := false
	handler, err := NewTokenHandler(TokenConfig{Model: m, AlwaysIssueNewRefreshToken: &rotate})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", "r1")

	req := newTokenRequest(t, form, func(r *http.Request) {
		r.SetBasicAuth("c1", "s1")
	})
	resp := NewResponse()
	token, err := handler.Handle(context.Background(), req, resp)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if s, ok := resp.Body["access_token"].(string); !ok || s == "" {
		t.Error("response is missing access_token")
	}
	if _, present := resp.Body["refresh_token"]; present {
		t.Error("response contains refresh_token, want it absent without rotation")
	}
	if token.RefreshToken != "" {
		t.Errorf("token.RefreshToken = %q, want empty", token.RefreshToken)
	}
	if got := m.Calls("RevokeToken"); got != 0 {
		t.Errorf("RevokeToken called %d times, want 0", got)
	}
	if token.Scope != "read" {
		t.Errorf("Scope = %q, want the original scope", token.Scope)
	}
}

func TestTokenRefreshWithRotation(t *testing.T) {
	client := &model.Client{ID: "c1", Grants: []string{"refresh_token"}}
	m := mock.New()
	m.GetClientFunc = func(context.Context, string, string) (*model.Client, error) {
		return client, nil
	}
	m.GetRefreshTokenFunc = func(context.Context, string) (*model.RefreshToken, error) {
		return &model.RefreshToken{
			RefreshToken: "r1",
			ExpiresAt:    time.Now().Add(time.Hour),
			Client:       client,
			User:         map[string]any{"id": "u1"},
		}, nil
	}

	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", "r1")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	token, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if token.RefreshToken == "" {
		t.Error("token.RefreshToken empty, want a rotated refresh token")
	}
	if got := m.Calls("RevokeToken"); got != 1 {
		t.Errorf("RevokeToken called %d times, want 1", got)
	}
}

func TestTokenExpiredRefreshToken(t *testing.T) {
	client := &model.Client{ID: "c1", Grants: []string{"refresh_token"}}
	m := mock.New()
	m.GetClientFunc = func(context.Context, string, string) (*model.Client, error) {
		return client, nil
	}
	m.GetRefreshTokenFunc = func(context.Context, string) (*model.RefreshToken, error) {
		return &model.RefreshToken{
			RefreshToken: "r1",
			ExpiresAt:    time.Now().Add(-time.Minute),
			Client:       client,
			User:         map[string]any{"id": "u1"},
		}, nil
	}

	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", "r1")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("Handle() succeeded with an expired refresh token")
	}
	if resp.Body["error"] != ErrorCodeInvalidGrant {
		t.Errorf("error = %v, want invalid_grant", resp.Body["error"])
	}
	if got := m.Calls("SaveToken"); got != 0 {
		t.Errorf("SaveToken called %d times, want 0", got)
	}
}

func TestTokenUnsupportedGrantType(t *testing.T) {
	m, _ := newCodeExchangeModel(t)
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "foo")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("Handle() succeeded with an unknown grant type")
	}
	if resp.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.Status)
	}
	if resp.Body["error"] != ErrorCodeUnsupportedGrantType {
		t.Errorf("error = %v, want unsupported_grant_type", resp.Body["error"])
	}
}

func TestTokenGrantNotAllowedForClient(t *testing.T) {
	client := &model.Client{ID: "c1", Grants: []string{"authorization_code"}}
	m := mock.New()
	m.GetClientFunc = func(context.Context, string, string) (*model.Client, error) {
		return client, nil
	}

	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", "alice")
	form.Set("password", "secret")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("Handle() succeeded for a grant the client is not registered for")
	}
	if resp.Body["error"] != ErrorCodeUnauthorizedClient {
		t.Errorf("error = %v, want unauthorized_client", resp.Body["error"])
	}
}

func TestTokenInvalidClientViaBasicAuthGets401(t *testing.T) {
	m := mock.New() // GetClient returns nil
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", "alice")
	form.Set("password", "secret")

	req := newTokenRequest(t, form, func(r *http.Request) {
		r.SetBasicAuth("nope", "wrong")
	})
	resp := NewResponse()
	_, err = handler.Handle(context.Background(), req, resp)
	if err == nil {
		t.Fatal("Handle() succeeded with bad credentials")
	}
	if resp.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", resp.Status)
	}
	if got := resp.Header().Get("WWW-Authenticate"); got != `Basic realm="Service"` {
		t.Errorf("WWW-Authenticate = %q, want Basic challenge", got)
	}
	if resp.Body["error"] != ErrorCodeInvalidClient {
		t.Errorf("error = %v, want invalid_client", resp.Body["error"])
	}
}

func TestTokenInvalidClientViaFormGets400(t *testing.T) {
	m := mock.New()
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", "alice")
	form.Set("password", "secret")
	form.Set("client_id", "nope")
	form.Set("client_secret", "wrong")

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("Handle() succeeded with bad credentials")
	}
	if resp.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.Status)
	}
	if resp.Header().Get("WWW-Authenticate") != "" {
		t.Error("WWW-Authenticate set for form credentials, want unset")
	}
}

func TestTokenRejectsNonPostAndNonForm(t *testing.T) {
	m, _ := newCodeExchangeModel(t)
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	get := &Request{Method: http.MethodGet, Header: http.Header{}, Query: url.Values{}, Body: url.Values{}}
	resp := NewResponse()
	if _, err := handler.Handle(context.Background(), get, resp); err == nil {
		t.Error("Handle() accepted a GET request")
	} else if resp.Body["error"] != ErrorCodeInvalidRequest {
		t.Errorf("error = %v, want invalid_request", resp.Body["error"])
	}

	post := &Request{Method: http.MethodPost, Header: http.Header{}, Query: url.Values{}, Body: url.Values{}}
	resp = NewResponse()
	if _, err := handler.Handle(context.Background(), post, resp); err == nil {
		t.Error("Handle() accepted a request without a form content type")
	}
}

func TestTokenClientIDOutsideVSChar(t *testing.T) {
	m, _ := newCodeExchangeModel(t)
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", "café")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("Handle() accepted a client_id outside VSCHAR")
	}
	if resp.Body["error"] != ErrorCodeInvalidRequest {
		t.Errorf("error = %v, want invalid_request", resp.Body["error"])
	}
}

func TestTokenPasswordGrant(t *testing.T) {
	client := &model.Client{ID: "c1", Grants: []string{"password"}}
	user := map[string]any{"id": "u1"}
	m := mock.New()
	m.GetClientFunc = func(context.Context, string, string) (*model.Client, error) {
		return client, nil
	}
	m.GetUserFunc = func(_ context.Context, username, password string) (model.User, error) {
		if username == "alice" && password == "hunter2" {
			return user, nil
		}
		return nil, nil
	}

	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", "alice")
	form.Set("password", "hunter2")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	token, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if token.RefreshToken == "" {
		t.Error("password grant should issue a refresh token")
	}

	// Wrong password authenticates nobody.
	form.Set("password", "wrong")
	resp = NewResponse()
	if _, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp); err == nil {
		t.Fatal("Handle() succeeded with a wrong password")
	}
	if resp.Body["error"] != ErrorCodeInvalidGrant {
		t.Errorf("error = %v, want invalid_grant", resp.Body["error"])
	}
}

func TestTokenClientCredentialsGrantOmitsRefreshToken(t *testing.T) {
	client := &model.Client{ID: "c1", Grants: []string{"client_credentials"}}
	m := mock.New()
	m.GetClientFunc = func(context.Context, string, string) (*model.Client, error) {
		return client, nil
	}
	m.GetUserFromClientFunc = func(context.Context, *model.Client) (model.User, error) {
		return map[string]any{"id": "svc"}, nil
	}

	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	token, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if token.RefreshToken != "" {
		t.Errorf("client_credentials issued a refresh token %q, want none", token.RefreshToken)
	}
	if _, present := resp.Body["refresh_token"]; present {
		t.Error("response contains refresh_token, want it absent")
	}
}

func TestTokenExtendedAttributes(t *testing.T) {
	m, _ := newCodeExchangeModel(t)
	m.SaveTokenFunc = func(_ context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
		saved := *token
		saved.Client = client
		saved.User = user
		saved.Extra = map[string]any{
			"issuer":       "test",
			"access_token": "must-not-override",
		}
		return &saved, nil
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "abc")
	form.Set("redirect_uri", "https://x.test/cb")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	handler, err := NewTokenHandler(TokenConfig{Model: m, AllowExtendedTokenAttributes: true})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}
	resp := NewResponse()
	token, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.Body["issuer"] != "test" {
		t.Errorf("issuer = %v, want extended attribute passed through", resp.Body["issuer"])
	}
	if resp.Body["access_token"] == "must-not-override" {
		t.Error("extended attribute overrode the reserved access_token key")
	}
	if resp.Body["access_token"] != token.AccessToken {
		t.Errorf("access_token = %v, want %q", resp.Body["access_token"], token.AccessToken)
	}
}

func TestTokenExtendedAttributesSuppressedByDefault(t *testing.T) {
	m, _ := newCodeExchangeModel(t)
	m.SaveTokenFunc = func(_ context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
		saved := *token
		saved.Client = client
		saved.User = user
		saved.Extra = map[string]any{"issuer": "test"}
		return &saved, nil
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", "abc")
	form.Set("redirect_uri", "https://x.test/cb")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}
	resp := NewResponse()
	if _, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if _, present := resp.Body["issuer"]; present {
		t.Error("extended attribute leaked with AllowExtendedTokenAttributes unset")
	}
}

// clientOnlyModel implements just enough of the model for the token handler
// itself, but nothing any grant needs beyond SaveToken.
type clientOnlyModel struct {
	client *model.Client
}

func (m *clientOnlyModel) GetClient(context.Context, string, string) (*model.Client, error) {
	return m.client, nil
}

func (m *clientOnlyModel) SaveToken(_ context.Context, token *model.Token, client *model.Client, user model.User) (*model.Token, error) {
	saved := *token
	saved.Client = client
	saved.User = user
	return &saved, nil
}

func TestTokenMissingGrantCapabilityIsInvalidArgument(t *testing.T) {
	m := &clientOnlyModel{client: &model.Client{ID: "c1", Grants: []string{"password"}}}
	handler, err := NewTokenHandler(TokenConfig{Model: m})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", "alice")
	form.Set("password", "secret")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	_, err = handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err == nil {
		t.Fatal("Handle() succeeded without the GetUser capability")
	}
	if resp.Body["error"] != ErrorCodeInvalidArgument {
		t.Errorf("error = %v, want invalid_argument", resp.Body["error"])
	}
	if resp.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", resp.Status)
	}
}

func TestTokenExtensionGrant(t *testing.T) {
	client := &model.Client{ID: "c1", Grants: []string{"urn:example:apikey"}}
	m := mock.New()
	m.GetClientFunc = func(context.Context, string, string) (*model.Client, error) {
		return client, nil
	}

	factory := func(opts GrantOptions) (Grant, error) {
		base, err := newBaseGrant(opts, "urn:example:apikey")
		if err != nil {
			return nil, err
		}
		return extensionGrantFunc(func(ctx context.Context, req *Request, client *model.Client) (*model.Token, error) {
			return base.issueToken(ctx, issueSpec{
				client: client,
				user:   map[string]any{"id": "api"},
			})
		}), nil
	}

	handler, err := NewTokenHandler(TokenConfig{
		Model:           m,
		ExtensionGrants: map[string]GrantFactory{"urn:example:apikey": factory},
	})
	if err != nil {
		t.Fatalf("NewTokenHandler() error = %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:example:apikey")
	form.Set("client_id", "c1")
	form.Set("client_secret", "s1")

	resp := NewResponse()
	token, err := handler.Handle(context.Background(), newTokenRequest(t, form, nil), resp)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if token.AccessToken == "" {
		t.Error("extension grant issued no access token")
	}
}

// extensionGrantFunc adapts a function to the Grant interface.
type extensionGrantFunc func(ctx context.Context, req *Request, client *model.Client) (*model.Token, error)

func (f extensionGrantFunc) Handle(ctx context.Context, req *Request, client *model.Client) (*model.Token, error) {
	return f(ctx, req, client)
}
