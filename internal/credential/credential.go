// Package credential is the boundary to the external credential issuer.
// Credential cryptography (issuance, signing, revocation registries) is
// entirely the issuer's concern; this package only consumes the results.
package credential

import (
	"context"
	"time"
)

// TypeModeration is the credential type that carries moderation roles.
const TypeModeration = "ModerationCredential"

// Credential statuses as reported by the issuer.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
	StatusExpired = "expired"
)

// Credential is a verifiable credential as seen by this service.
type Credential struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	HolderDID   string         `json:"holder_did"`
	Role        string         `json:"role"`
	Level       int            `json:"level"`
	Communities []string       `json:"communities"`
	Status      string         `json:"status"`
	IssuedAt    time.Time      `json:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Data        map[string]any `json:"data,omitempty"`
}

// Usable reports whether the credential can grant authority now.
func (c Credential) Usable(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// CoversCommunity reports whether the credential is scoped to the
// community.
func (c Credential) CoversCommunity(communityID string) bool {
	for _, id := range c.Communities {
		if id == communityID {
			return true
		}
	}
	return false
}

// Issuer is the consumed credential-issuer interface.
type Issuer interface {
	CredentialsByHolder(ctx context.Context, did string) ([]Credential, error)
	Issue(ctx context.Context, issuerDID, holderDID, credType string, data map[string]any) (Credential, error)
	Revoke(ctx context.Context, credentialID, reason string) error
	DIDFor(ctx context.Context, userID string) (string, error)
}
