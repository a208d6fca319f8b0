package oauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/embedauth/oauth2-server/instrumentation"
	"github.com/embedauth/oauth2-server/model"
	"github.com/embedauth/oauth2-server/security"
)

// ServerConfig holds server-wide configuration. Model is the single
// mandatory option; everything else defaults per handler. Per-call options
// passed to Authenticate/Authorize/Token override these, which override the
// library defaults.
type ServerConfig struct {
	// Model is the persistence adapter (required)
	Model model.Model

	// Token is the server-level token endpoint configuration
	Token TokenConfig

	// Authorize is the server-level authorization endpoint configuration
	Authorize AuthorizeConfig

	// Authenticate is the server-level bearer validation configuration
	Authenticate AuthenticateConfig

	// Logger receives library logs. Default: slog.Default().
	Logger *slog.Logger

	// Auditor receives security audit events (optional)
	Auditor *security.Auditor

	// RateLimiter limits token requests per client ID (optional)
	RateLimiter *security.RateLimiter

	// Instrumentation provides OpenTelemetry metrics and traces
	// (optional; noop when nil)
	Instrumentation *instrumentation.Instrumentation
}

// Server is a thin dispatcher binding configuration to handler instances.
// It is stateless across requests; every entry point may be invoked
// concurrently.
type Server struct {
	config ServerConfig
	logger *slog.Logger
}

// NewServer creates a new OAuth server over the given model.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Model == nil {
		return nil, ErrInvalidArgument("model is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{
		config: config,
		logger: config.Logger,
	}, nil
}

// Token runs the token endpoint pipeline. Fields set in a non-nil opts
// override the server-level token configuration for this call; unset fields
// fall back to it.
func (s *Server) Token(ctx context.Context, req *Request, resp *Response, opts *TokenConfig) (*model.Token, error) {
	config := s.mergeTokenConfig(opts)

	handler, err := NewTokenHandler(config)
	if err != nil {
		oerr := wrapError(err)
		resp.setError(oerr)
		return nil, oerr
	}

	start := time.Now()
	token, err := handler.Handle(ctx, req, resp)
	s.record(ctx, "token", start, err)
	return token, err
}

// Authorize runs the authorization endpoint pipeline. Fields set in a
// non-nil opts override the server-level authorize configuration for this
// call; unset fields fall back to it.
func (s *Server) Authorize(ctx context.Context, req *Request, resp *Response, opts *AuthorizeConfig) (*model.AuthorizationCode, error) {
	config := s.mergeAuthorizeConfig(opts)

	handler, err := NewAuthorizeHandler(config)
	if err != nil {
		oerr := wrapError(err)
		resp.setError(oerr)
		return nil, oerr
	}

	start := time.Now()
	code, err := handler.Handle(ctx, req, resp)
	s.record(ctx, "authorize", start, err)
	return code, err
}

// Authenticate validates the bearer token on a request against a required
// scope (empty scope accepts any valid token). Fields set in a non-nil opts
// override the server-level authenticate configuration for this call; its
// Scope wins over the scope argument, and a non-empty scope argument wins
// over the server-level Scope.
func (s *Server) Authenticate(ctx context.Context, req *Request, resp *Response, scope string, opts *AuthenticateConfig) (*model.Token, error) {
	config := s.mergeAuthenticateConfig(opts)
	if scope != "" && (opts == nil || opts.Scope == "") {
		config.Scope = scope
	}

	handler, err := NewAuthenticateHandler(config)
	if err != nil {
		oerr := wrapError(err)
		resp.setError(oerr)
		return nil, oerr
	}

	start := time.Now()
	token, err := handler.Handle(ctx, req, resp)
	s.record(ctx, "authenticate", start, err)
	return token, err
}

// mergeTokenConfig applies the spec'd option precedence field by field:
// per-call opts win where set, then the server-level token configuration,
// then the server-wide model/logger/auditor, then the handler defaults.
func (s *Server) mergeTokenConfig(opts *TokenConfig) TokenConfig {
	config := s.config.Token
	if opts != nil {
		if opts.Model != nil {
			config.Model = opts.Model
		}
		if opts.AccessTokenLifetime != 0 {
			config.AccessTokenLifetime = opts.AccessTokenLifetime
		}
		if opts.RefreshTokenLifetime != 0 {
			config.RefreshTokenLifetime = opts.RefreshTokenLifetime
		}
		if opts.AllowExtendedTokenAttributes {
			config.AllowExtendedTokenAttributes = true
		}
		if opts.RequireClientAuthentication != nil {
			config.RequireClientAuthentication = opts.RequireClientAuthentication
		}
		if opts.AlwaysIssueNewRefreshToken != nil {
			config.AlwaysIssueNewRefreshToken = opts.AlwaysIssueNewRefreshToken
		}
		if opts.ExtensionGrants != nil {
			config.ExtensionGrants = opts.ExtensionGrants
		}
		if opts.Logger != nil {
			config.Logger = opts.Logger
		}
		if opts.Auditor != nil {
			config.Auditor = opts.Auditor
		}
		if opts.RateLimiter != nil {
			config.RateLimiter = opts.RateLimiter
		}
		if opts.Instrumentation != nil {
			config.Instrumentation = opts.Instrumentation
		}
	}
	if config.Model == nil {
		config.Model = s.config.Model
	}
	if config.Logger == nil {
		config.Logger = s.logger
	}
	if config.Auditor == nil {
		config.Auditor = s.config.Auditor
	}
	if config.RateLimiter == nil {
		config.RateLimiter = s.config.RateLimiter
	}
	if config.Instrumentation == nil {
		config.Instrumentation = s.config.Instrumentation
	}
	return config
}

// mergeAuthorizeConfig mirrors mergeTokenConfig for the authorize pipeline.
func (s *Server) mergeAuthorizeConfig(opts *AuthorizeConfig) AuthorizeConfig {
	config := s.config.Authorize
	if opts != nil {
		if opts.Model != nil {
			config.Model = opts.Model
		}
		if opts.AuthorizationCodeLifetime != 0 {
			config.AuthorizationCodeLifetime = opts.AuthorizationCodeLifetime
		}
		if opts.AllowEmptyState {
			config.AllowEmptyState = true
		}
		if opts.Authenticator != nil {
			config.Authenticator = opts.Authenticator
		}
		if opts.Logger != nil {
			config.Logger = opts.Logger
		}
		if opts.Auditor != nil {
			config.Auditor = opts.Auditor
		}
		if opts.Instrumentation != nil {
			config.Instrumentation = opts.Instrumentation
		}
	}
	if config.Model == nil {
		config.Model = s.config.Model
	}
	if config.Logger == nil {
		config.Logger = s.logger
	}
	if config.Auditor == nil {
		config.Auditor = s.config.Auditor
	}
	if config.Instrumentation == nil {
		config.Instrumentation = s.config.Instrumentation
	}
	return config
}

// mergeAuthenticateConfig mirrors mergeTokenConfig for bearer validation.
func (s *Server) mergeAuthenticateConfig(opts *AuthenticateConfig) AuthenticateConfig {
	config := s.config.Authenticate
	if opts != nil {
		if opts.Model != nil {
			config.Model = opts.Model
		}
		if opts.Scope != "" {
			config.Scope = opts.Scope
		}
		if opts.AddAcceptedScopesHeader != nil {
			config.AddAcceptedScopesHeader = opts.AddAcceptedScopesHeader
		}
		if opts.AddAuthorizedScopesHeader != nil {
			config.AddAuthorizedScopesHeader = opts.AddAuthorizedScopesHeader
		}
		if opts.AllowBearerTokensInQueryString {
			config.AllowBearerTokensInQueryString = true
		}
		if opts.Logger != nil {
			config.Logger = opts.Logger
		}
		if opts.Auditor != nil {
			config.Auditor = opts.Auditor
		}
	}
	if config.Model == nil {
		config.Model = s.config.Model
	}
	if config.Logger == nil {
		config.Logger = s.logger
	}
	if config.Auditor == nil {
		config.Auditor = s.config.Auditor
	}
	return config
}

// record emits per-endpoint metrics when instrumentation is configured.
func (s *Server) record(ctx context.Context, endpoint string, start time.Time, err error) {
	inst := s.config.Instrumentation
	if inst == nil {
		return
	}
	errorCode := ""
	if err != nil {
		errorCode = wrapError(err).Code
	}
	inst.Metrics().RecordRequest(ctx, endpoint, errorCode, time.Since(start))
}
