package oauth

import (
	"time"

	"github.com/embedauth/oauth2-server/model"
)

const tokenTypeBearer = "Bearer"

// reservedTokenAttributes are the response keys owned by the Bearer
// serialization; extended token attributes never override them.
var reservedTokenAttributes = map[string]struct{}{
	"access_token":  {},
	"token_type":    {},
	"expires_in":    {},
	"refresh_token": {},
	"scope":         {},
}

// bearerTokenBody encodes a token as an RFC 6750 Bearer token response body.
// refresh_token and scope are omitted when absent; extended attributes are
// included only when allowExtended is set and the key is not reserved.
func bearerTokenBody(token *model.Token, allowExtended bool) map[string]any {
	body := map[string]any{
		"access_token": token.AccessToken,
		"token_type":   tokenTypeBearer,
	}
	if !token.AccessTokenExpiresAt.IsZero() {
		body["expires_in"] = token.ExpiresIn(time.Now())
	}
	if token.RefreshToken != "" {
		body["refresh_token"] = token.RefreshToken
	}
	if token.Scope != "" {
		body["scope"] = token.Scope
	}
	if allowExtended {
		for key, value := range token.Extra {
			if _, reserved := reservedTokenAttributes[key]; reserved {
				continue
			}
			body[key] = value
		}
	}
	return body
}
