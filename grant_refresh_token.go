package oauth

import (
	"context"
	"time"

	"github.com/embedauth/oauth2-server/model"
)

// refreshTokenGrant exchanges a refresh token for a new access token
// (RFC 6749 Section 6), optionally rotating the refresh token.
type refreshTokenGrant struct {
	baseGrant
	tokens  model.RefreshTokenGetter
	revoker model.TokenRevoker
}

// NewRefreshTokenGrant constructs the refresh_token grant. The model must
// implement GetRefreshToken, RevokeToken, and SaveToken.
func NewRefreshTokenGrant(opts GrantOptions) (Grant, error) {
	base, err := newBaseGrant(opts, GrantRefreshToken)
	if err != nil {
		return nil, err
	}
	tokens, ok := opts.Model.(model.RefreshTokenGetter)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetRefreshToken, required by the refresh_token grant")
	}
	revoker, ok := opts.Model.(model.TokenRevoker)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement RevokeToken, required by the refresh_token grant")
	}
	return &refreshTokenGrant{baseGrant: base, tokens: tokens, revoker: revoker}, nil
}

func (g *refreshTokenGrant) Handle(ctx context.Context, req *Request, client *model.Client) (*model.Token, error) {
	token, err := g.getRefreshToken(ctx, req, client)
	if err != nil {
		return nil, err
	}

	// Rotation: revoke first, then save, so a partial failure cannot leave
	// both the old and the new refresh token valid. With rotation disabled
	// the original refresh token stays untouched and the new token carries
	// no refresh token at all.
	if g.alwaysIssueNewRefreshToken {
		revoked, rerr := g.revoker.RevokeToken(ctx, token)
		if rerr != nil {
			return nil, rerr
		}
		if !revoked {
			return nil, ErrInvalidGrant("invalid grant: refresh token is invalid")
		}
	}

	return g.issueToken(ctx, issueSpec{
		client:         client,
		user:           token.User,
		scope:          token.Scope,
		includeRefresh: g.alwaysIssueNewRefreshToken,
	})
}

func (g *refreshTokenGrant) getRefreshToken(ctx context.Context, req *Request, client *model.Client) (*model.RefreshToken, error) {
	tokenValue, oerr := req.param("refresh_token")
	if oerr != nil {
		return nil, oerr
	}
	if tokenValue == "" {
		return nil, ErrInvalidRequest("missing parameter: `refresh_token`")
	}
	if !isVSChar(tokenValue) {
		return nil, ErrInvalidRequest("invalid parameter: `refresh_token`")
	}

	token, err := g.tokens.GetRefreshToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrInvalidGrant("invalid grant: refresh token is invalid")
	}
	if token.Client == nil {
		return nil, ErrServerError("model GetRefreshToken returned a token without a client")
	}
	if token.User == nil {
		return nil, ErrServerError("model GetRefreshToken returned a token without a user")
	}
	if token.Client.ID != client.ID {
		return nil, ErrInvalidGrant("invalid grant: refresh token is invalid")
	}
	if !token.ExpiresAt.IsZero() && !token.ExpiresAt.After(time.Now()) {
		return nil, ErrInvalidGrant("invalid grant: refresh token has expired")
	}
	return token, nil
}
