package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/embedauth/oauth2-server/model"
	"github.com/embedauth/oauth2-server/security"
)

// AuthenticateConfig configures an AuthenticateHandler.
type AuthenticateConfig struct {
	// Model is the persistence adapter (required). It must implement
	// GetAccessToken, plus VerifyScope when Scope is set.
	Model model.Model

	// Scope is the scope the resource requires. Empty means any valid
	// token is accepted.
	Scope string

	// AddAcceptedScopesHeader controls the X-Accepted-OAuth-Scopes
	// response header. Nil means true.
	AddAcceptedScopesHeader *bool

	// AddAuthorizedScopesHeader controls the X-OAuth-Scopes response
	// header. Nil means true.
	AddAuthorizedScopesHeader *bool

	// AllowBearerTokensInQueryString accepts access_token as a query
	// parameter, which RFC 6750 discourages. Default: false.
	AllowBearerTokensInQueryString bool

	// Logger receives handler logs. Default: slog.Default().
	Logger *slog.Logger

	// Auditor receives security audit events (optional)
	Auditor *security.Auditor
}

// AuthenticateHandler implements resource-server-side bearer token
// validation: extraction, lookup, expiry and scope enforcement, and response
// decoration per RFC 6750.
type AuthenticateHandler struct {
	config AuthenticateConfig
	tokens model.AccessTokenGetter
	scopes model.ScopeVerifier
	logger *slog.Logger
}

// NewAuthenticateHandler constructs an authenticate handler, failing with
// invalid_argument when the model lacks a required capability.
func NewAuthenticateHandler(config AuthenticateConfig) (*AuthenticateHandler, error) {
	if config.Model == nil {
		return nil, ErrInvalidArgument("model is required")
	}
	tokens, ok := config.Model.(model.AccessTokenGetter)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetAccessToken, required to authenticate requests")
	}
	var scopes model.ScopeVerifier
	if config.Scope != "" {
		if scopes, ok = config.Model.(model.ScopeVerifier); !ok {
			return nil, ErrInvalidArgument("model does not implement VerifyScope, required to enforce scopes")
		}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &AuthenticateHandler{
		config: config,
		tokens: tokens,
		scopes: scopes,
		logger: config.Logger,
	}, nil
}

// Handle validates the bearer token on the request. On success the response
// is decorated with the scope headers; on failure it carries the OAuth error
// body plus a WWW-Authenticate challenge.
func (h *AuthenticateHandler) Handle(ctx context.Context, req *Request, resp *Response) (*model.Token, error) {
	token, err := h.handle(ctx, req)
	if err != nil {
		oerr := wrapError(err)
		if oerr.Code == ErrorCodeServerError {
			h.logger.Error("authenticate failure", "error", err)
		}
		resp.SetHeader("WWW-Authenticate", bearerChallenge(oerr))
		resp.setError(oerr)
		return nil, oerr
	}

	if boolOrTrue(h.config.AddAcceptedScopesHeader) {
		resp.SetHeader("X-Accepted-OAuth-Scopes", h.config.Scope)
	}
	if boolOrTrue(h.config.AddAuthorizedScopesHeader) {
		resp.SetHeader("X-OAuth-Scopes", token.Scope)
	}
	return token, nil
}

func (h *AuthenticateHandler) handle(ctx context.Context, req *Request) (*model.Token, error) {
	tokenValue, err := h.tokenFromRequest(req)
	if err != nil {
		return nil, err
	}

	token, err := h.tokens.GetAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrInvalidToken("invalid token: access token is invalid")
	}
	if token.User == nil {
		return nil, ErrServerError("server error: `getAccessToken()` did not return a `user` object")
	}
	if token.AccessTokenExpiresAt.IsZero() {
		return nil, ErrServerError("server error: `accessTokenExpiresAt` must be set")
	}
	if !token.AccessTokenExpiresAt.After(time.Now()) {
		return nil, ErrInvalidToken("invalid token: access token has expired")
	}

	if h.config.Scope != "" {
		ok, err := h.scopes.VerifyScope(ctx, token, h.config.Scope)
		if err != nil {
			return nil, err
		}
		if !ok {
			if h.config.Auditor != nil {
				h.config.Auditor.LogInsufficientScope(token.Client, h.config.Scope, token.Scope)
			}
			return nil, ErrInsufficientScope("insufficient scope: authorized scope is insufficient")
		}
	}

	return token, nil
}

// tokenFromRequest extracts the bearer token. The Authorization header is
// authoritative; query and form fallbacks exist for clients that cannot set
// headers. Presenting the token through more than one mechanism is a
// protocol violation (RFC 6750 Section 2).
func (h *AuthenticateHandler) tokenFromRequest(req *Request) (string, error) {
	headerValue := req.Header.Get("Authorization")
	queryValue, oerr := req.queryValue("access_token")
	if oerr != nil {
		return "", oerr
	}
	bodyValue, oerr := req.bodyValue("access_token")
	if oerr != nil {
		return "", oerr
	}

	sources := 0
	for _, v := range []string{headerValue, queryValue, bodyValue} {
		if v != "" {
			sources++
		}
	}
	if sources > 1 {
		return "", ErrInvalidRequest("invalid request: only one authentication method is allowed")
	}

	switch {
	case headerValue != "":
		scheme, token, found := strings.Cut(headerValue, " ")
		if !found || !strings.EqualFold(scheme, tokenTypeBearer) || token == "" {
			return "", ErrInvalidRequest("invalid request: malformed authorization header")
		}
		return token, nil
	case queryValue != "":
		if !h.config.AllowBearerTokensInQueryString {
			return "", ErrInvalidRequest("invalid request: do not send bearer tokens in query URLs")
		}
		return queryValue, nil
	case bodyValue != "":
		if req.Method == http.MethodGet {
			return "", ErrInvalidRequest("invalid request: token may not be passed in the body when using the GET verb")
		}
		if !req.IsForm() {
			return "", ErrInvalidRequest("invalid request: content must be application/x-www-form-urlencoded")
		}
		return bodyValue, nil
	default:
		return "", ErrUnauthorizedRequest("unauthorized request: no authentication given")
	}
}

// bearerChallenge formats the WWW-Authenticate header per RFC 6750
// Section 3.
func bearerChallenge(err *OAuthError) string {
	if err.Code == ErrorCodeUnauthorizedRequest {
		return `Bearer realm="Service"`
	}
	return fmt.Sprintf(`Bearer realm="Service", error=%q`, err.Code)
}

func boolOrTrue(v *bool) bool {
	return v == nil || *v
}
