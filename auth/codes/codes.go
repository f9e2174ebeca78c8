// Package codes stores single-use authorization codes between /authorize and /token.
package codes

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"sync"
	"time"

	"github.com/jrsteele09/go-token-broker/internal/errors"
)

// Code is an authorization code bound to the user and client it was issued for
type Code struct {
	Value     string
	ClientID  string
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
	Used      bool
}

type Repo interface {
	Store(code *Code) error
	// Consume marks the code used and returns it. Unknown, used, expired and
	// foreign-client codes all fail with errors.ErrInvalidAuthorizationCode.
	Consume(value, clientID string, now time.Time) (*Code, error)
	// PurgeExpired drops codes past their expiry and returns how many went
	PurgeExpired(now time.Time) int
}

// Generate returns a URL-safe random code built from n random bytes
func Generate(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

var _ Repo = (*InMemoryRepo)(nil)

type InMemoryRepo struct {
	mu    sync.Mutex
	codes map[string]*Code
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		codes: make(map[string]*Code),
	}
}

func (r *InMemoryRepo) Store(code *Code) error {
	if code == nil || code.Value == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "code value is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codes[code.Value]; exists {
		return errors.Wrapf(errors.ErrInvalidRequest, "code already issued")
	}
	c := *code
	c.Scopes = slices.Clone(code.Scopes)
	r.codes[code.Value] = &c
	return nil
}

func (r *InMemoryRepo) Consume(value, clientID string, now time.Time) (*Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.codes[value]
	switch {
	case !ok:
		return nil, errors.Wrapf(errors.ErrInvalidAuthorizationCode, "unknown code")
	case code.Used:
		return nil, errors.Wrapf(errors.ErrInvalidAuthorizationCode, "code already used")
	case now.After(code.ExpiresAt):
		return nil, errors.Wrapf(errors.ErrInvalidAuthorizationCode, "code expired")
	case code.ClientID != clientID:
		return nil, errors.Wrapf(errors.ErrInvalidAuthorizationCode, "code issued to another client")
	}

	code.Used = true
	c := *code
	c.Scopes = slices.Clone(code.Scopes)
	return &c, nil
}

func (r *InMemoryRepo) PurgeExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for value, code := range r.codes {
		if now.After(code.ExpiresAt) {
			delete(r.codes, value)
			purged++
		}
	}
	return purged
}
