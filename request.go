package oauth

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const contentTypeForm = "application/x-www-form-urlencoded"

// Request is an immutable view of a decoded HTTP request. Handlers consume
// it instead of *http.Request so the library stays independent of the host's
// transport; NewRequest adapts the common case.
type Request struct {
	// Method is the HTTP method, uppercased
	Method string

	// Header carries the request headers
	Header http.Header

	// Query carries the decoded query parameters
	Query url.Values

	// Body carries the decoded form body. Empty unless the request had an
	// application/x-www-form-urlencoded body.
	Body url.Values
}

// NewRequest builds a Request from a *http.Request, decoding the form body
// when the content type is application/x-www-form-urlencoded.
func NewRequest(r *http.Request) (*Request, error) {
	req := &Request{
		Method: strings.ToUpper(r.Method),
		Header: r.Header,
		Query:  r.URL.Query(),
		Body:   url.Values{},
	}

	if r.Body != nil && isFormContentType(r.Header.Get("Content-Type")) {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("failed to parse form body: %w", err)
		}
		req.Body = r.PostForm
	}

	return req, nil
}

// IsForm reports whether the request declares a form-encoded body.
func (r *Request) IsForm() bool {
	return isFormContentType(r.Header.Get("Content-Type"))
}

// bodyValue returns the single value of a body field. A duplicated field is
// a protocol violation per RFC 6749 Section 3.2.1.
func (r *Request) bodyValue(key string) (string, *OAuthError) {
	return uniqueValue(r.Body, key)
}

// queryValue returns the single value of a query parameter.
func (r *Request) queryValue(key string) (string, *OAuthError) {
	return uniqueValue(r.Query, key)
}

// param returns a parameter from the body or, failing that, the query.
// The body wins when both carry the parameter.
func (r *Request) param(key string) (string, *OAuthError) {
	if v, err := r.bodyValue(key); err != nil || v != "" {
		return v, err
	}
	return r.queryValue(key)
}

func uniqueValue(values url.Values, key string) (string, *OAuthError) {
	vs := values[key]
	switch len(vs) {
	case 0:
		return "", nil
	case 1:
		return vs[0], nil
	default:
		return "", ErrInvalidRequest(fmt.Sprintf("parameter `%s` must not be included more than once", key))
	}
}

func isFormContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == contentTypeForm
}
