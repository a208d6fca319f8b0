package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/embedauth/oauth2-server/model"
)

// Auditor handles security event logging with PII protection. User
// identifiers are hashed before they reach the log stream; client IDs and
// grant names pass through as-is.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	ClientID  string
	GrantType string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"client_id", event.ClientID,
		"grant_type", event.GrantType,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs a successful token issuance
func (a *Auditor) LogTokenIssued(clientID, grantType, scope string) {
	a.LogEvent(Event{
		Type:      "token_issued",
		ClientID:  clientID,
		GrantType: grantType,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogAuthorizationCodeIssued logs a successful authorization code issuance
func (a *Auditor) LogAuthorizationCodeIssued(clientID, scope string) {
	a.LogEvent(Event{
		Type:     "authorization_code_issued",
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogAuthFailure logs a failed authentication or grant attempt
func (a *Auditor) LogAuthFailure(userID, clientID, grantType, reason string) {
	a.LogEvent(Event{
		Type:      "auth_failure",
		ClientID:  clientID,
		GrantType: grantType,
		Details: map[string]any{
			"user_id_hash": hashForLogging(userID),
			"reason":       reason,
		},
	})
}

// LogInsufficientScope logs a scope check failure on a protected resource
func (a *Auditor) LogInsufficientScope(client *model.Client, required, granted string) {
	clientID := ""
	if client != nil {
		clientID = client.ID
	}
	a.LogEvent(Event{
		Type:     "insufficient_scope",
		ClientID: clientID,
		Details: map[string]any{
			"required_scope": required,
			"granted_scope":  granted,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(clientID, userID string) {
	a.LogEvent(Event{
		Type:     "rate_limit_exceeded",
		ClientID: clientID,
		Details: map[string]any{
			"user_id_hash": hashForLogging(userID),
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
