package oauth

import (
	"context"

	"github.com/embedauth/oauth2-server/model"
)

// clientCredentialsGrant issues an access token for the client's own
// identity (RFC 6749 Section 4.4). No refresh token is issued, per
// Section 4.4.3.
type clientCredentialsGrant struct {
	baseGrant
	users model.ClientUserGetter
}

// NewClientCredentialsGrant constructs the client_credentials grant. The
// model must implement GetUserFromClient and SaveToken.
func NewClientCredentialsGrant(opts GrantOptions) (Grant, error) {
	base, err := newBaseGrant(opts, GrantClientCredentials)
	if err != nil {
		return nil, err
	}
	users, ok := opts.Model.(model.ClientUserGetter)
	if !ok {
		return nil, ErrInvalidArgument("model does not implement GetUserFromClient, required by the client_credentials grant")
	}
	return &clientCredentialsGrant{baseGrant: base, users: users}, nil
}

func (g *clientCredentialsGrant) Handle(ctx context.Context, req *Request, client *model.Client) (*model.Token, error) {
	scope, oerr := requestedScope(req)
	if oerr != nil {
		return nil, oerr
	}

	user, err := g.users.GetUserFromClient(ctx, client)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidGrant("invalid grant: user credentials are invalid")
	}

	return g.issueToken(ctx, issueSpec{
		client:        client,
		user:          user,
		scope:         scope,
		validateScope: true,
	})
}
