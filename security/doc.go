// Package security provides the security side-channels of the OAuth
// library: structured audit logging with PII protection and per-client
// rate limiting for the token endpoint.
package security
