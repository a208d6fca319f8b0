package oauth

import (
	"context"
	"net/http"

	"github.com/embedauth/oauth2-server/model"
)

// net/http glue. The pipelines consume only Request/Response value objects;
// these adapters let a host mount the endpoints without writing the
// translation itself.

// TokenHTTPHandler returns an http.HandlerFunc serving the token endpoint.
func (s *Server) TokenHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, resp, ok := s.adapt(w, r)
		if !ok {
			return
		}
		_, _ = s.Token(r.Context(), req, resp, nil)
		s.write(w, resp)
	}
}

// AuthorizeHTTPHandler returns an http.HandlerFunc serving the
// authorization endpoint.
func (s *Server) AuthorizeHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, resp, ok := s.adapt(w, r)
		if !ok {
			return
		}
		_, _ = s.Authorize(r.Context(), req, resp, nil)
		s.write(w, resp)
	}
}

// AuthenticateHTTPMiddleware wraps a handler with bearer token validation
// for the given scope. The validated token is attached to the request
// context and retrievable with TokenFromContext.
func (s *Server) AuthenticateHTTPMiddleware(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, resp, ok := s.adapt(w, r)
		if !ok {
			return
		}
		token, err := s.Authenticate(r.Context(), req, resp, scope, nil)
		if err != nil {
			s.write(w, resp)
			return
		}
		// Propagate the success decoration (scope headers) alongside
		// the wrapped handler's own response.
		for key, values := range resp.Header() {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		next.ServeHTTP(w, r.WithContext(withToken(r.Context(), token)))
	})
}

func (s *Server) adapt(w http.ResponseWriter, r *http.Request) (*Request, *Response, bool) {
	req, err := NewRequest(r)
	if err != nil {
		resp := NewResponse()
		resp.setError(ErrInvalidRequest("malformed request body"))
		s.write(w, resp)
		return nil, nil, false
	}
	return req, NewResponse(), true
}

func (s *Server) write(w http.ResponseWriter, resp *Response) {
	if err := resp.WriteTo(w); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

type tokenContextKey struct{}

func withToken(ctx context.Context, token *model.Token) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the token attached by AuthenticateHTTPMiddleware,
// or nil when the request was not authenticated through it.
func TokenFromContext(ctx context.Context) *model.Token {
	token, _ := ctx.Value(tokenContextKey{}).(*model.Token)
	return token
}
