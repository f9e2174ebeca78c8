package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"sync"
	"time"

	"github.com/jrsteele09/go-token-broker/internal/errors"
)

const sessionIDBytes = 32

// NewSession carries the tokens handed over once at session creation
type NewSession struct {
	UserID       string
	Scopes       []string
	AccessToken  string
	AccessTTL    time.Duration
	RefreshToken string
	RefreshTTL   time.Duration
}

// Refresh is the result of one successful refresh grant. An empty RefreshToken
// means the issuer did not rotate, so the stored refresh token and its expiry stay.
type Refresh struct {
	AccessToken  string
	AccessTTL    time.Duration
	RefreshToken string
	RefreshTTL   time.Duration
}

type entry struct {
	mu      sync.RWMutex
	session Session
}

// Store is the in-memory session registry. The map lock guards membership and each
// entry lock guards one session, so readers never see a half-applied refresh.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	activeID string
	closed   bool
	now      func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source (primarily for testing)
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's clock reading
func (s *Store) Now() time.Time {
	return s.now()
}

// Create stores a new session and returns its id
func (s *Store) Create(ns NewSession) (string, error) {
	if ns.AccessToken == "" || ns.RefreshToken == "" || ns.UserID == "" {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "access_token, refresh_token and user_id are required")
	}

	id, err := newSessionID()
	if err != nil {
		return "", errors.Wrapf(err, "failed to generate session id")
	}

	now := s.now()
	e := &entry{session: Session{
		ID:                    id,
		UserID:                ns.UserID,
		Scopes:                dedupe(ns.Scopes),
		AccessToken:           ns.AccessToken,
		AccessTokenExpiresAt:  now.Add(ns.AccessTTL),
		RefreshToken:          ns.RefreshToken,
		RefreshTokenExpiresAt: now.Add(ns.RefreshTTL),
		CreatedAt:             now,
	}}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.Wrapf(errors.ErrInternal, "session store closed")
	}
	if _, exists := s.entries[id]; exists {
		return "", errors.Wrapf(errors.ErrInternal, "session id collision")
	}
	s.entries[id] = e
	return id, nil
}

// Get returns a copy of the session or ErrSessionNotFound
func (s *Store) Get(id string) (Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Session{}, errors.ErrSessionNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.clone(), nil
}

// Delete removes the session and reports whether it existed
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	if s.activeID == id {
		s.activeID = ""
	}
	return true
}

// ApplyRefresh swaps in a new token pair and bumps the refresh count in one step
func (s *Store) ApplyRefresh(id string, r Refresh) (Session, error) {
	if r.AccessToken == "" {
		return Session{}, errors.Wrapf(errors.ErrInvalidRequest, "refresh result has no access token")
	}
	e, ok := s.lookup(id)
	if !ok {
		return Session{}, errors.ErrSessionNotFound
	}

	now := s.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.AccessToken = r.AccessToken
	e.session.AccessTokenExpiresAt = now.Add(r.AccessTTL)
	if r.RefreshToken != "" {
		e.session.RefreshToken = r.RefreshToken
		e.session.RefreshTokenExpiresAt = now.Add(r.RefreshTTL)
	}
	e.session.RefreshCount++
	e.session.LastRefreshedAt = now
	return e.session.clone(), nil
}

// List returns a snapshot of every session
func (s *Store) List() []Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, e.session.clone())
		e.mu.RUnlock()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// PurgeExpired deletes sessions whose refresh token expired before now and returns their ids
func (s *Store) PurgeExpired(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []string
	for id, e := range s.entries {
		e.mu.RLock()
		expired := !e.session.RefreshTokenExpiresAt.After(now)
		e.mu.RUnlock()
		if expired {
			delete(s.entries, id)
			purged = append(purged, id)
			if s.activeID == id {
				s.activeID = ""
			}
		}
	}
	return purged
}

// SetActive makes id the session used when a caller names none
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return errors.ErrSessionNotFound
	}
	s.activeID = id
	return nil
}

// Active returns the active session or ErrNoActiveSession
func (s *Store) Active() (Session, error) {
	s.mu.RLock()
	id := s.activeID
	s.mu.RUnlock()
	if id == "" {
		return Session{}, errors.ErrNoActiveSession
	}
	session, err := s.Get(id)
	if errors.Is(err, errors.ErrSessionNotFound) {
		return Session{}, errors.ErrNoActiveSession
	}
	return session, err
}

// Close empties the store and refuses further sessions
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.activeID = ""
	s.closed = true
	return nil
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func dedupe(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
