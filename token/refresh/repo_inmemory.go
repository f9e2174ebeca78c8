package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-token-broker/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// One mutex covers every map so revoke-and-mint is a single critical section.
type InMemoryRepo struct {
	mu       sync.RWMutex
	records  map[string]*TokenRecord // token -> record
	ids      map[string]string       // record id -> token
	children map[string][]string     // parent id -> child ids
}

// NewInMemoryRepo creates a new in-memory refresh token repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		records:  make(map[string]*TokenRecord),
		ids:      make(map[string]string),
		children: make(map[string][]string),
	}
}

func (r *InMemoryRepo) Create(_ context.Context, record *TokenRecord) error {
	if record == nil || record.Token == "" || record.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "record requires an id and a token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.Token]; exists {
		return errors.Wrapf(errors.ErrInvalidRequest, "record %s already exists", record.ID)
	}
	r.insert(record.clone())
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, token string) (*TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[token]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return record.clone(), nil
}

func (r *InMemoryRepo) Rotate(_ context.Context, presented string, next *TokenRecord) error {
	if next == nil || next.Token == "" || next.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "successor requires an id and a token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[presented]
	if !ok {
		return errors.ErrNotFound
	}
	if current.Revoked {
		return errors.ErrTokenReuseDetected
	}

	current.Revoked = true
	successor := next.clone()
	successor.ParentID = current.ID
	r.insert(successor)
	next.ParentID = current.ID
	return nil
}

func (r *InMemoryRepo) Extend(_ context.Context, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[token]
	if !ok {
		return errors.ErrNotFound
	}
	if record.Revoked {
		return errors.ErrTokenReuseDetected
	}
	record.ExpiresAt = expiresAt
	return nil
}

func (r *InMemoryRepo) RevokeChain(_ context.Context, token string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	root, ok := r.records[token]
	if !ok {
		return 0, errors.ErrNotFound
	}

	revoked := 0
	queue := []string{root.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		record := r.records[r.ids[id]]
		if record == nil {
			continue
		}
		if !record.Revoked {
			record.Revoked = true
			revoked++
		}
		queue = append(queue, r.children[id]...)
	}
	return revoked, nil
}

// Len returns the number of records held, revoked ones included
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *InMemoryRepo) insert(record *TokenRecord) {
	r.records[record.Token] = record
	r.ids[record.ID] = record.Token
	if record.ParentID != "" {
		r.children[record.ParentID] = append(r.children[record.ParentID], record.ID)
	}
}
