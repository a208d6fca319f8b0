// Package oauth implements the core of an OAuth 2.0 authorization server
// per RFC 6749, with Bearer token usage per RFC 6750.
//
// The library is embedded in a host HTTP application: it owns neither the
// transport nor the storage. Three pipelines turn a decoded request into a
// protocol outcome:
//
//   - TokenHandler (POST /token): client authentication, grant dispatch, and
//     token issuance for the authorization_code, client_credentials,
//     password, and refresh_token grants plus registered extension grants.
//   - AuthorizeHandler (GET|POST /authorize): end-user authentication
//     delegation, authorization code issuance, and redirect construction.
//   - AuthenticateHandler: resource-server-side bearer token validation and
//     scope enforcement.
//
// Persistence and policy live behind the model contract (package model);
// the handlers assert the capabilities they need at construction and treat
// model answers as authoritative. Ready-made models are provided in
// model/memory and model/redis, and package jwtgen upgrades any model to
// self-encoded JWT access tokens.
//
// The Server type binds configuration to the three pipelines and offers
// net/http adapters; hosts on other frameworks construct Request values
// themselves and write the Response out however they like.
package oauth
