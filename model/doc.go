// Package model defines the persistence and policy contract between the
// OAuth handlers and the host application.
//
// A model is an adapter over the host's storage (SQL, KV, document DB, ...)
// that implements some subset of the capability interfaces defined here:
//   - ClientGetter: client lookup and credential verification
//   - TokenSaver / AccessTokenGetter: token persistence and lookup
//   - AuthorizationCodeGetter / AuthorizationCodeSaver / AuthorizationCodeRevoker
//   - RefreshTokenGetter / TokenRevoker
//   - UserGetter / ClientUserGetter: resource-owner resolution
//   - ScopeVerifier / ScopeValidator: scope policy
//   - AccessTokenGenerator / RefreshTokenGenerator / AuthorizationCodeGenerator:
//     optional overrides for token material generation
//
// Handlers assert the capabilities they need at construction time and fail
// fast when one is missing; the token handler asserts a grant's own
// capabilities when it constructs that grant for a request. Which
// capabilities are required depends on the handler and the grants it
// serves; see the handler constructors in the root package.
//
// Implementations are provided in subpackages:
//   - model/memory: in-memory model for development and testing
//   - model/redis: Redis-backed model for production deployments
//   - model/mock: scriptable mock model for unit testing
//
// Secret and token comparison is the model's obligation and MUST be
// constant-time (bcrypt or crypto/subtle); the library passes credentials
// through verbatim and never compares them itself.
package model
