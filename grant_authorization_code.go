package oauth

import (
	"context"
	"time"

	"github.com/embedauth/oauth2-server/model"
)

// authorizationCodeGrant exchanges a single-use authorization code for an
// access token and refresh token (RFC 6749 Section 4.1.3).
type authorizationCodeGrant struct {
	baseGrant
	codes   model.AuthorizationCodeGetter
	revoker model.AuthorizationCodeRevoker
}

// NewAuthorizationCodeGrant constructs the authorization_code grant. The
// model must implement GetAuthorizationCode, RevokeAuthorizationCode, and
// SaveToken.
func NewAuthorizationCodeGrant(opts GrantOptions) (Grant, error) {
	base, err := newBaseGrant(opts, GrantAuthorizationCode)
	if err != nil {
		return nil, err
	}
	codes, ok := opts.Model.(model.AuthorizationCodeGetter)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetAuthorizationCode, required by the authorization_code grant")
	}
	revoker, ok := opts.Model.(model.AuthorizationCodeRevoker)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement RevokeAuthorizationCode, required by the authorization_code grant")
	}
	return &authorizationCodeGrant{baseGrant: base, codes: codes, revoker: revoker}, nil
}

func (g *authorizationCodeGrant) Handle(ctx context.Context, req *Request, client *model.Client) (*model.Token, error) {
	code, err := g.getAuthorizationCode(ctx, req, client)
	if err != nil {
		return nil, err
	}
	if err := g.validateRedirectURI(req, code); err != nil {
		return nil, err
	}

	// Revocation precedes SaveToken: a partial failure must still leave
	// the code single-use.
	revoked, rerr := g.revoker.RevokeAuthorizationCode(ctx, code)
	if rerr != nil {
		return nil, rerr
	}
	if !revoked {
		return nil, ErrInvalidGrant("invalid grant: authorization code is invalid")
	}

	return g.issueToken(ctx, issueSpec{
		client:            client,
		user:              code.User,
		scope:             code.Scope,
		includeRefresh:    true,
		authorizationCode: code.Code,
	})
}

func (g *authorizationCodeGrant) getAuthorizationCode(ctx context.Context, req *Request, client *model.Client) (*model.AuthorizationCode, error) {
	codeValue, oerr := req.param("code")
	if oerr != nil {
		return nil, oerr
	}
	if codeValue == "" {
		return nil, ErrInvalidRequest("missing parameter: `code`")
	}
	if !isVSChar(codeValue) {
		return nil, ErrInvalidRequest("invalid parameter: `code`")
	}

	code, err := g.codes.GetAuthorizationCode(ctx, codeValue)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, ErrInvalidGrant("invalid grant: authorization code is invalid")
	}
	if code.Client == nil {
		return nil, ErrServerError("model GetAuthorizationCode returned a code without a client")
	}
	if code.User == nil {
		return nil, ErrServerError("model GetAuthorizationCode returned a code without a user")
	}
	if code.Client.ID != client.ID {
		return nil, ErrInvalidGrant("invalid grant: authorization code is invalid")
	}
	if code.ExpiresAt.IsZero() {
		return nil, ErrServerError("model GetAuthorizationCode returned a code without an expiry")
	}
	if !code.ExpiresAt.After(time.Now()) {
		return nil, ErrInvalidGrant("invalid grant: authorization code has expired")
	}
	return code, nil
}

// validateRedirectURI enforces RFC 6749 Section 4.1.3: when the code was
// bound to a redirect URI, the exchange must present the identical URI.
func (g *authorizationCodeGrant) validateRedirectURI(req *Request, code *model.AuthorizationCode) error {
	if code.RedirectURI == "" {
		return nil
	}
	redirectURI, oerr := req.param("redirect_uri")
	if oerr != nil {
		return oerr
	}
	if redirectURI == "" || !isValidURI(redirectURI) {
		return ErrInvalidRequest("invalid request: `redirect_uri` is not a valid URI")
	}
	if redirectURI != code.RedirectURI {
		return ErrInvalidRequest("invalid request: `redirect_uri` is invalid")
	}
	return nil
}
