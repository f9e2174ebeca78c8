package refresh

import (
	"context"
	"time"
)

// TokenRecord is the issuer-side record of one refresh token and its place in a rotation chain.
// Records are never deleted while the chain is alive, so a replay of any earlier hop is detectable.
type TokenRecord struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"` // The signed refresh token handed to the client
	Subject   string    `json:"sub"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	Revoked   bool      `json:"revoked"`
	ParentID  string    `json:"parent_id,omitempty"` // Empty for the record minted by the code exchange
}

func (r *TokenRecord) clone() *TokenRecord {
	c := *r
	c.Scopes = append([]string(nil), r.Scopes...)
	return &c
}

// Repo stores refresh token records keyed by token value.
type Repo interface {
	// Create stores the root record of a new chain
	Create(ctx context.Context, record *TokenRecord) error

	// Get returns a copy of the record or errors.ErrNotFound
	Get(ctx context.Context, token string) (*TokenRecord, error)

	// Rotate revokes the presented record and stores next as its child in one atomic step.
	// It fails with errors.ErrTokenReuseDetected if the presented record is already revoked.
	Rotate(ctx context.Context, presented string, next *TokenRecord) error

	// Extend moves the expiry of a live record, used when rotation is disabled
	Extend(ctx context.Context, token string, expiresAt time.Time) error

	// RevokeChain revokes the record and every record descending from it,
	// returning how many records changed state.
	RevokeChain(ctx context.Context, token string) (int, error)
}
