package oauth

import (
	"context"

	"github.com/embedauth/oauth2-server/model"
)

// passwordGrant exchanges resource owner credentials for access and refresh
// tokens (RFC 6749 Section 4.3). The model is the sole authority on the
// credentials.
type passwordGrant struct {
	baseGrant
	users model.UserGetter
}

// NewPasswordGrant constructs the password grant. The model must implement
// GetUser and SaveToken.
func NewPasswordGrant(opts GrantOptions) (Grant, error) {
	base, err := newBaseGrant(opts, GrantPassword)
	if err != nil {
		return nil, err
	}
	users, ok := opts.Model.(model.UserGetter)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetUser, required by the password grant")
	}
	return &passwordGrant{baseGrant: base, users: users}, nil
}

func (g *passwordGrant) Handle(ctx context.Context, req *Request, client *model.Client) (*model.Token, error) {
	scope, oerr := requestedScope(req)
	if oerr != nil {
		return nil, oerr
	}

	user, err := g.getUser(ctx, req)
	if err != nil {
		return nil, err
	}

	return g.issueToken(ctx, issueSpec{
		client:         client,
		user:           user,
		scope:          scope,
		validateScope:  true,
		includeRefresh: true,
	})
}

func (g *passwordGrant) getUser(ctx context.Context, req *Request) (model.User, error) {
	username, oerr := req.param("username")
	if oerr != nil {
		return nil, oerr
	}
	password, oerr := req.param("password")
	if oerr != nil {
		return nil, oerr
	}
	if username == "" {
		return nil, ErrInvalidRequest("missing parameter: `username`")
	}
	if password == "" {
		return nil, ErrInvalidRequest("missing parameter: `password`")
	}
	if !isUnicodeCharNoCRLF(username) {
		return nil, ErrInvalidRequest("invalid parameter: `username`")
	}
	if !isUnicodeCharNoCRLF(password) {
		return nil, ErrInvalidRequest("invalid parameter: `password`")
	}

	user, err := g.users.GetUser(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidGrant("invalid grant: user credentials are invalid")
	}
	return user, nil
}
