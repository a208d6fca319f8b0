package oauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/embedauth/oauth2-server/instrumentation"
	"github.com/embedauth/oauth2-server/model"
	"github.com/embedauth/oauth2-server/security"
)

// Default lifetimes for the token endpoint
const (
	DefaultAccessTokenLifetime  = time.Hour
	DefaultRefreshTokenLifetime = 14 * 24 * time.Hour
)

// TokenConfig configures a TokenHandler. The zero value plus a model is a
// working configuration.
type TokenConfig struct {
	// Model is the persistence adapter (required)
	Model model.Model

	// AccessTokenLifetime is the default access token lifetime.
	// Default: 1 hour.
	AccessTokenLifetime time.Duration

	// RefreshTokenLifetime is the default refresh token lifetime.
	// Default: 14 days.
	RefreshTokenLifetime time.Duration

	// AllowExtendedTokenAttributes lets attributes the model attached in
	// SaveToken flow through to the response body
	AllowExtendedTokenAttributes bool

	// RequireClientAuthentication exempts individual grants from client
	// authentication when set to an explicit false. An empty map means
	// every grant requires authentication.
	RequireClientAuthentication map[string]bool

	// AlwaysIssueNewRefreshToken controls refresh token rotation.
	// Nil means rotate (the secure default); only an explicit false
	// disables rotation.
	AlwaysIssueNewRefreshToken *bool

	// ExtensionGrants registers additional grant types by name or
	// absolute URI
	ExtensionGrants map[string]GrantFactory

	// Logger receives handler logs. Default: slog.Default().
	Logger *slog.Logger

	// Auditor receives security audit events (optional)
	Auditor *security.Auditor

	// RateLimiter limits token requests per client ID (optional)
	RateLimiter *security.RateLimiter

	// Instrumentation provides OpenTelemetry metrics and traces
	// (optional; noop when nil)
	Instrumentation *instrumentation.Instrumentation
}

// TokenHandler implements the token endpoint pipeline: client
// authentication, grant dispatch, and Bearer token serialization.
type TokenHandler struct {
	config    TokenConfig
	grants    map[string]GrantFactory
	grantOpts GrantOptions
	logger    *slog.Logger
	auditor   *security.Auditor
}

// NewTokenHandler constructs a token handler. The capabilities every token
// grant needs (GetClient, SaveToken) are asserted here; capabilities of an
// individual grant are asserted when that grant is dispatched, so a model
// serving only some grants stays valid.
func NewTokenHandler(config TokenConfig) (*TokenHandler, error) {
	if config.Model == nil {
		return nil, ErrInvalidArgument("model is required")
	}
	if _, ok := config.Model.(model.TokenSaver); !ok {
		return nil, ErrInvalidArgument("model does not implement SaveToken, required to issue tokens")
	}
	if config.AccessTokenLifetime == 0 {
		config.AccessTokenLifetime = DefaultAccessTokenLifetime
	}
	if config.RefreshTokenLifetime == 0 {
		config.RefreshTokenLifetime = DefaultRefreshTokenLifetime
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	rotate := true
	if config.AlwaysIssueNewRefreshToken != nil {
		rotate = *config.AlwaysIssueNewRefreshToken
	}

	grants := make(map[string]GrantFactory, len(builtinGrants)+len(config.ExtensionGrants))
	for name, factory := range builtinGrants {
		grants[name] = factory
	}
	for name, factory := range config.ExtensionGrants {
		if !isValidGrantType(name) {
			return nil, ErrInvalidArgument(fmt.Sprintf("invalid extension grant name: %q", name))
		}
		grants[name] = factory
	}

	return &TokenHandler{
		config: config,
		grants: grants,
		grantOpts: GrantOptions{
			Model:                      config.Model,
			AccessTokenLifetime:        config.AccessTokenLifetime,
			RefreshTokenLifetime:       config.RefreshTokenLifetime,
			AlwaysIssueNewRefreshToken: rotate,
		},
		logger:  config.Logger,
		auditor: config.Auditor,
	}, nil
}

// Handle runs the token endpoint pipeline on a decoded request and fills in
// the response. On failure the response carries the OAuth error body and
// status, and the error is also returned.
func (h *TokenHandler) Handle(ctx context.Context, req *Request, resp *Response) (*model.Token, error) {
	token, err := h.handle(ctx, req, resp)
	if err != nil {
		oerr := wrapError(err)
		if oerr.Code == ErrorCodeServerError {
			h.logger.Error("token endpoint failure", "error", err)
		}
		resp.setError(oerr)
		return nil, oerr
	}

	resp.Body = bearerTokenBody(token, h.config.AllowExtendedTokenAttributes)
	resp.SetHeader("Cache-Control", "no-store")
	resp.SetHeader("Pragma", "no-cache")
	resp.Status = http.StatusOK
	return token, nil
}

func (h *TokenHandler) handle(ctx context.Context, req *Request, resp *Response) (*model.Token, error) {
	if req.Method != http.MethodPost {
		return nil, ErrInvalidRequest("invalid request: method must be POST")
	}
	if !req.IsForm() {
		return nil, ErrInvalidRequest("invalid request: content must be application/x-www-form-urlencoded")
	}

	grantType, oerr := req.param("grant_type")
	if oerr != nil {
		return nil, oerr
	}

	client, err := h.authenticateClient(ctx, req, resp, grantType)
	if err != nil {
		return nil, err
	}

	if h.config.RateLimiter != nil && !h.config.RateLimiter.Allow(client.ID) {
		if h.auditor != nil {
			h.auditor.LogRateLimitExceeded(client.ID, "")
		}
		return nil, ErrInvalidRequest("rate limit exceeded, try again later")
	}

	if len(client.Grants) == 0 {
		return nil, ErrServerError("server error: `grants` must be a non-empty list")
	}

	grant, err := h.resolveGrant(grantType, client)
	if err != nil {
		return nil, err
	}

	token, err := grant.Handle(ctx, req, client)
	if err != nil {
		if h.auditor != nil {
			h.auditor.LogAuthFailure("", client.ID, grantType, wrapError(err).Code)
		}
		return nil, err
	}

	if err := validateIssuedToken(token); err != nil {
		return nil, err
	}

	if h.auditor != nil {
		h.auditor.LogTokenIssued(client.ID, grantType, token.Scope)
	}
	if h.config.Instrumentation != nil {
		h.config.Instrumentation.Metrics().RecordTokenIssued(ctx, grantType)
	}
	h.logger.Debug("token issued", "client_id", client.ID, "grant_type", grantType)

	return token, nil
}

// authenticateClient resolves and verifies client credentials: HTTP Basic
// first, then form fields. A grant exempted from client authentication may
// present a bare client_id.
func (h *TokenHandler) authenticateClient(ctx context.Context, req *Request, resp *Response, grantType string) (*model.Client, error) {
	creds, fromHeader, err := h.clientCredentials(req, grantType)
	if err != nil {
		return nil, err
	}

	if creds.id == "" {
		return nil, ErrInvalidRequest("missing parameter: `client_id`")
	}
	if !isVSChar(creds.id) {
		return nil, ErrInvalidRequest("invalid parameter: `client_id`")
	}
	if creds.secret != "" && !isVSChar(creds.secret) {
		return nil, ErrInvalidRequest("invalid parameter: `client_secret`")
	}
	if creds.secret == "" && h.requiresAuthentication(grantType) {
		return nil, ErrInvalidRequest("missing parameter: `client_secret`")
	}

	client, err := h.config.Model.GetClient(ctx, creds.id, creds.secret)
	if err != nil {
		return nil, err
	}
	if client == nil {
		if h.auditor != nil {
			h.auditor.LogAuthFailure("", creds.id, grantType, ErrorCodeInvalidClient)
		}
		oerr := ErrInvalidClient("invalid client: client is invalid")
		if fromHeader {
			// RFC 6749 Section 5.2: echo the challenge when the client
			// authenticated via the Authorization header.
			resp.SetHeader("WWW-Authenticate", `Basic realm="Service"`)
			oerr.Status = http.StatusUnauthorized
		}
		return nil, oerr
	}
	return client, nil
}

type clientCredentials struct {
	id     string
	secret string
}

// clientCredentials extracts client credentials, preferring the
// Authorization header over form fields.
func (h *TokenHandler) clientCredentials(req *Request, grantType string) (clientCredentials, bool, error) {
	if header := req.Header.Get("Authorization"); header != "" {
		creds, err := decodeBasicAuth(header)
		if err != nil {
			return clientCredentials{}, true, err
		}
		if creds.id != "" {
			return creds, true, nil
		}
	}

	id, oerr := req.bodyValue("client_id")
	if oerr != nil {
		return clientCredentials{}, false, oerr
	}
	secret, oerr := req.bodyValue("client_secret")
	if oerr != nil {
		return clientCredentials{}, false, oerr
	}

	if id != "" && secret != "" {
		return clientCredentials{id: id, secret: secret}, false, nil
	}
	if id != "" && !h.requiresAuthentication(grantType) {
		return clientCredentials{id: id}, false, nil
	}
	return clientCredentials{}, false, ErrInvalidClient("invalid client: cannot retrieve client credentials")
}

// decodeBasicAuth decodes an HTTP Basic Authorization header value into
// client credentials.
func decodeBasicAuth(header string) (clientCredentials, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
		return clientCredentials{}, ErrInvalidRequest("invalid request: malformed authorization header")
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return clientCredentials{}, ErrInvalidRequest("invalid request: malformed authorization header")
	}
	id, secret, found := strings.Cut(string(decoded), ":")
	if !found {
		return clientCredentials{}, ErrInvalidRequest("invalid request: malformed authorization header")
	}
	return clientCredentials{id: id, secret: secret}, nil
}

// requiresAuthentication reports whether the grant requires a client secret.
// An empty map means every grant does; only an explicit false exempts one.
func (h *TokenHandler) requiresAuthentication(grantType string) bool {
	if grantType == "" {
		return true
	}
	required, present := h.config.RequireClientAuthentication[grantType]
	if !present {
		return true
	}
	return required
}

// resolveGrant validates the grant_type parameter and constructs the
// registered grant for it.
func (h *TokenHandler) resolveGrant(grantType string, client *model.Client) (Grant, error) {
	if grantType == "" {
		return nil, ErrInvalidRequest("missing parameter: `grant_type`")
	}
	if !isValidGrantType(grantType) {
		return nil, ErrInvalidRequest("invalid parameter: `grant_type`")
	}
	factory, ok := h.grants[grantType]
	if !ok {
		return nil, ErrUnsupportedGrantType("unsupported grant type: `grant_type` is invalid")
	}
	if !client.AllowsGrant(grantType) {
		return nil, ErrUnauthorizedClient("unauthorized client: `grant_type` is invalid")
	}
	return factory(h.grantOpts)
}

// validateIssuedToken rejects malformed grant results before serialization.
func validateIssuedToken(token *model.Token) error {
	if token == nil || token.AccessToken == "" {
		return ErrServerError("server error: grant returned no access token")
	}
	if token.Client == nil {
		return ErrServerError("server error: grant returned no client")
	}
	if token.User == nil {
		return ErrServerError("server error: grant returned no user")
	}
	return nil
}
