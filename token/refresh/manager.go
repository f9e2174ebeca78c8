package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/token/jwt"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo    Repo
	creator *jwt.Creator
	config  config.OAuthConfig
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, creator *jwt.Creator, cfg config.OAuthConfig) *Manager {
	return &Manager{
		repo:    repo,
		creator: creator,
		config:  cfg,
	}
}

// Create mints the root refresh token of a new chain and stores its record
func (m *Manager) Create(ctx context.Context, subject, clientID string, scopes []string) (*TokenRecord, error) {
	record, err := m.mint(subject, clientID, scopes)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return record, nil
}

// Get retrieves a refresh token record from storage
func (m *Manager) Get(ctx context.Context, token string) (*TokenRecord, error) {
	return m.repo.Get(ctx, token)
}

// Rotate consumes the presented record and returns its successor.
// Two concurrent rotations of the same record cannot both succeed; the loser gets ErrTokenReuseDetected.
func (m *Manager) Rotate(ctx context.Context, presented *TokenRecord) (*TokenRecord, error) {
	next, err := m.mint(presented.Subject, presented.ClientID, presented.Scopes)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Rotate(ctx, presented.Token, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Extend keeps the presented token alive for another full lifetime. Used when rotation is disabled.
func (m *Manager) Extend(ctx context.Context, presented *TokenRecord) (*TokenRecord, error) {
	expiresAt := NowTimeFunc().Add(m.config.GetRefreshTokenExpiry())
	if err := m.repo.Extend(ctx, presented.Token, expiresAt); err != nil {
		return nil, err
	}
	extended := presented.clone()
	extended.ExpiresAt = expiresAt
	return extended, nil
}

// RevokeChain revokes the token and everything issued after it in the chain
func (m *Manager) RevokeChain(ctx context.Context, token string) (int, error) {
	return m.repo.RevokeChain(ctx, token)
}

// IsExpired checks the record's server-side expiry
func (m *Manager) IsExpired(record *TokenRecord) bool {
	return NowTimeFunc().After(record.ExpiresAt)
}

// IsRevoked reports whether a refresh token is unknown or revoked
func (m *Manager) IsRevoked(token string) bool {
	record, err := m.repo.Get(context.Background(), token)
	if err != nil {
		return true
	}
	return record.Revoked
}

func (m *Manager) mint(subject, clientID string, scopes []string) (*TokenRecord, error) {
	signed, err := m.creator.CreateRefreshToken(subject, clientID, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return &TokenRecord{
		ID:        uuid.New().String(),
		Token:     signed.Raw,
		Subject:   subject,
		ClientID:  clientID,
		Scopes:    append([]string(nil), scopes...),
		IssuedAt:  signed.IssuedAt,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}
