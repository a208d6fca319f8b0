package oauth

import "net/url"

// Response type names of the authorization endpoint
const (
	ResponseTypeCode = "code"
	// ResponseTypeToken is reserved for the implicit grant and not
	// implemented.
	ResponseTypeToken = "token"
)

// responseType encodes an authorization result into the redirect URI.
type responseType interface {
	// buildRedirect returns the redirect target with the result encoded
	// into the query, preserving parameters already on the base URI.
	buildRedirect(base *url.URL) *url.URL
}

// codeResponseType encodes an authorization code (RFC 6749 Section 4.1.2).
type codeResponseType struct {
	code string
}

func (rt codeResponseType) buildRedirect(base *url.URL) *url.URL {
	redirect := *base
	query := redirect.Query()
	query.Set("code", rt.code)
	redirect.RawQuery = query.Encode()
	return &redirect
}
