package oauth

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/embedauth/oauth2-server/instrumentation"
	"github.com/embedauth/oauth2-server/model"
	"github.com/embedauth/oauth2-server/security"
)

// DefaultAuthorizationCodeLifetime is how long issued authorization codes
// stay valid.
const DefaultAuthorizationCodeLifetime = 5 * time.Minute

// UserAuthenticator resolves the authenticated end user for an authorization
// request. AuthenticateHandler satisfies it; hosts with their own session
// layer plug in anything else.
type UserAuthenticator interface {
	AuthenticateUser(ctx context.Context, req *Request, resp *Response) (model.User, error)
}

// AuthenticateUser lets an AuthenticateHandler act as the authorization
// endpoint's user authenticator: the bearer token's user is the end user.
func (h *AuthenticateHandler) AuthenticateUser(ctx context.Context, req *Request, resp *Response) (model.User, error) {
	token, err := h.Handle(ctx, req, resp)
	if err != nil {
		return nil, err
	}
	return token.User, nil
}

// AuthorizeConfig configures an AuthorizeHandler.
type AuthorizeConfig struct {
	// Model is the persistence adapter (required). It must implement
	// GetClient and SaveAuthorizationCode.
	Model model.Model

	// AuthorizationCodeLifetime is how long issued codes are valid.
	// Default: 5 minutes.
	AuthorizationCodeLifetime time.Duration

	// AllowEmptyState permits authorization requests without a state
	// parameter. Default: false.
	AllowEmptyState bool

	// Authenticator resolves the end user. Defaults to an
	// AuthenticateHandler over the same model.
	Authenticator UserAuthenticator

	// Logger receives handler logs. Default: slog.Default().
	Logger *slog.Logger

	// Auditor receives security audit events (optional)
	Auditor *security.Auditor

	// Instrumentation provides OpenTelemetry metrics and traces
	// (optional; noop when nil)
	Instrumentation *instrumentation.Instrumentation
}

// AuthorizeHandler implements the authorization endpoint pipeline:
// client and user resolution, authorization code issuance, and redirect
// construction for both success and error outcomes.
type AuthorizeHandler struct {
	config AuthorizeConfig
	saver  model.AuthorizationCodeSaver
	logger *slog.Logger
}

// NewAuthorizeHandler constructs an authorize handler, failing with
// invalid_argument when the model lacks a required capability.
func NewAuthorizeHandler(config AuthorizeConfig) (*AuthorizeHandler, error) {
	if config.Model == nil {
		return nil, ErrInvalidArgument("model is required")
	}
	saver, ok := config.Model.(model.AuthorizationCodeSaver)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement SaveAuthorizationCode, required to authorize requests")
	}
	if config.AuthorizationCodeLifetime == 0 {
		config.AuthorizationCodeLifetime = DefaultAuthorizationCodeLifetime
	}
	if config.Authenticator == nil {
		authenticator, err := NewAuthenticateHandler(AuthenticateConfig{
			Model:   config.Model,
			Logger:  config.Logger,
			Auditor: config.Auditor,
		})
		if err != nil {
			return nil, err
		}
		config.Authenticator = authenticator
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &AuthorizeHandler{
		config: config,
		saver:  saver,
		logger: config.Logger,
	}, nil
}

// authorizeState tracks what the pipeline has resolved so far, so the error
// path knows whether it may redirect and with which state parameter.
type authorizeState struct {
	redirectURI *url.URL
	state       string
}

// Handle runs the authorization pipeline. On success the response is a 302
// to the client's redirect URI carrying the code and state. Errors raised
// after the redirect URI was resolved redirect with error parameters
// (except programmer errors, which never leak through redirects); earlier
// errors surface as a JSON body with the error's status.
func (h *AuthorizeHandler) Handle(ctx context.Context, req *Request, resp *Response) (*model.AuthorizationCode, error) {
	var st authorizeState
	code, err := h.handle(ctx, req, resp, &st)
	if err != nil {
		oerr := wrapError(err)
		if oerr.Code == ErrorCodeServerError {
			h.logger.Error("authorize failure", "error", err)
		}
		if st.redirectURI != nil && oerr.Status < 500 {
			resp.Redirect(errorRedirectURI(st.redirectURI, oerr, st.state).String())
		} else {
			resp.setError(oerr)
		}
		return nil, oerr
	}
	return code, nil
}

func (h *AuthorizeHandler) handle(ctx context.Context, req *Request, resp *Response, st *authorizeState) (*model.AuthorizationCode, error) {
	// Client resolution and user authentication are independent model
	// calls; run them concurrently with the expiry computation and let the
	// first failure cancel the other.
	expiresAt := time.Now().Add(h.config.AuthorizationCodeLifetime)
	var (
		client *model.Client
		user   model.User
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		c, err := h.getClient(gctx, req)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	eg.Go(func() error {
		u, err := h.config.Authenticator.AuthenticateUser(gctx, req, resp)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrServerError("server error: no user authenticated")
	}

	redirectURI, err := h.selectRedirectURI(req, client)
	if err != nil {
		return nil, err
	}
	// From here on errors redirect back to the client.
	st.redirectURI = redirectURI

	state, oerr := req.param("state")
	if oerr != nil {
		return nil, oerr
	}
	if state == "" && !h.config.AllowEmptyState {
		return nil, ErrInvalidRequest("missing parameter: `state`")
	}
	if state != "" && !isVSChar(state) {
		return nil, ErrInvalidRequest("invalid parameter: `state`")
	}
	st.state = state

	allowed, oerr := req.param("allowed")
	if oerr != nil {
		return nil, oerr
	}
	if allowed == "false" {
		return nil, ErrAccessDenied("access denied: user denied access to application")
	}

	scope, oerr := requestedScope(req)
	if oerr != nil {
		return nil, oerr
	}

	if err := h.checkResponseType(req); err != nil {
		return nil, err
	}

	codeValue, err := h.generateAuthorizationCode(ctx, client, user, scope)
	if err != nil {
		return nil, err
	}

	code := &model.AuthorizationCode{
		Code:        codeValue,
		ExpiresAt:   expiresAt,
		RedirectURI: redirectURI.String(),
		Scope:       scope,
		Client:      client,
		User:        user,
	}
	saved, err := h.saver.SaveAuthorizationCode(ctx, code, client, user)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, ErrServerError("model SaveAuthorizationCode returned no code")
	}

	if h.config.Auditor != nil {
		h.config.Auditor.LogAuthorizationCodeIssued(client.ID, scope)
	}
	if h.config.Instrumentation != nil {
		h.config.Instrumentation.Metrics().RecordCodeIssued(ctx)
	}

	redirect := codeResponseType{code: saved.Code}.buildRedirect(redirectURI)
	if state != "" {
		query := redirect.Query()
		query.Set("state", state)
		redirect.RawQuery = query.Encode()
	}
	resp.Redirect(redirect.String())
	return saved, nil
}

// getClient resolves and validates the requesting client.
func (h *AuthorizeHandler) getClient(ctx context.Context, req *Request) (*model.Client, error) {
	clientID, oerr := req.param("client_id")
	if oerr != nil {
		return nil, oerr
	}
	if clientID == "" {
		return nil, ErrInvalidRequest("missing parameter: `client_id`")
	}
	if !isVSChar(clientID) {
		return nil, ErrInvalidRequest("invalid parameter: `client_id`")
	}

	redirectURI, oerr := req.param("redirect_uri")
	if oerr != nil {
		return nil, oerr
	}
	if redirectURI != "" && !isValidURI(redirectURI) {
		return nil, ErrInvalidRequest("invalid request: `redirect_uri` is not a valid URI")
	}

	client, err := h.config.Model.GetClient(ctx, clientID, "")
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrInvalidClient("invalid client: client credentials are invalid")
	}
	if !client.AllowsGrant(GrantAuthorizationCode) {
		return nil, ErrUnauthorizedClient("unauthorized client: `grant_type` is invalid")
	}
	if len(client.RedirectURIs) == 0 {
		return nil, ErrInvalidClient("invalid client: missing client `redirectUri`")
	}
	if redirectURI != "" && !containsString(client.RedirectURIs, redirectURI) {
		return nil, ErrInvalidClient("invalid client: `redirect_uri` does not match client value")
	}
	return client, nil
}

// selectRedirectURI picks the redirect target: the request's redirect_uri
// (body preferred over query) or the client's first registered URI.
func (h *AuthorizeHandler) selectRedirectURI(req *Request, client *model.Client) (*url.URL, error) {
	redirectURI, oerr := req.param("redirect_uri")
	if oerr != nil {
		return nil, oerr
	}
	if redirectURI == "" {
		redirectURI = client.RedirectURIs[0]
	}
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return nil, ErrInvalidRequest("invalid request: `redirect_uri` is not a valid URI")
	}
	return parsed, nil
}

// checkResponseType enforces RFC 6749 Section 3.1.1: response_type is
// required, and only the authorization code flow is implemented.
func (h *AuthorizeHandler) checkResponseType(req *Request) error {
	responseTypeValue, oerr := req.param("response_type")
	if oerr != nil {
		return oerr
	}
	if responseTypeValue == "" {
		return ErrInvalidRequest("missing parameter: `response_type`")
	}
	if responseTypeValue != ResponseTypeCode {
		return ErrUnsupportedResponseType("unsupported response type: `response_type` is not supported")
	}
	return nil
}

// generateAuthorizationCode prefers the model's generator, falling back to a
// random opaque code.
func (h *AuthorizeHandler) generateAuthorizationCode(ctx context.Context, client *model.Client, user model.User, scope string) (string, error) {
	if gen, ok := h.config.Model.(model.AuthorizationCodeGenerator); ok {
		code, err := gen.GenerateAuthorizationCode(ctx, client, user, scope)
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
	}
	return generateRandomToken(), nil
}

// errorRedirectURI encodes an OAuth error into the redirect URI per RFC 6749
// Section 4.1.2.1.
func errorRedirectURI(base *url.URL, oerr *OAuthError, state string) *url.URL {
	redirect := *base
	query := redirect.Query()
	query.Set("error", oerr.Code)
	if oerr.Description != "" {
		query.Set("error_description", oerr.Description)
	}
	if state != "" {
		query.Set("state", state)
	}
	redirect.RawQuery = query.Encode()
	return &redirect
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
