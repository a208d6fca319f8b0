package oauth

import "golang.org/x/oauth2"

// generateRandomToken generates a cryptographically secure random opaque
// token. It is the fallback whenever the model does not supply its own
// generator (or the generator returns an empty string).
func generateRandomToken() string {
	// Same generation quality as PKCE verifiers: 32 bytes of
	// crypto/rand, base64url without padding.
	return oauth2.GenerateVerifier()
}
