// Package refreshtest holds behaviour checks shared by every refresh.Repo implementation.
package refreshtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/token/refresh"
	"github.com/stretchr/testify/require"
)

// NewRecord builds a live record with random id and token values
func NewRecord(subject string) *refresh.TokenRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &refresh.TokenRecord{
		ID:        uuid.New().String(),
		Token:     "rt-" + uuid.New().String(),
		Subject:   subject,
		ClientID:  "test-client",
		Scopes:    []string{"assets:read"},
		IssuedAt:  now,
		ExpiresAt: now.Add(30 * time.Second),
	}
}

// RunRepoContract exercises a refresh.Repo against the behaviour the issuer relies on
func RunRepoContract(t *testing.T, newRepo func(t *testing.T) refresh.Repo) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get returns a copy", func(t *testing.T) {
		repo := newRepo(t)
		record := NewRecord("alice")
		require.NoError(t, repo.Create(ctx, record))

		got, err := repo.Get(ctx, record.Token)
		require.NoError(t, err)
		require.Equal(t, record.ID, got.ID)
		require.Equal(t, record.Scopes, got.Scopes)
		require.False(t, got.Revoked)
		require.Empty(t, got.ParentID)

		got.Scopes[0] = "mutated"
		again, err := repo.Get(ctx, record.Token)
		require.NoError(t, err)
		require.Equal(t, "assets:read", again.Scopes[0])
	})

	t.Run("get unknown token", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "nope")
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("rotate revokes parent and links child", func(t *testing.T) {
		repo := newRepo(t)
		parent := NewRecord("alice")
		require.NoError(t, repo.Create(ctx, parent))

		child := NewRecord("alice")
		require.NoError(t, repo.Rotate(ctx, parent.Token, child))
		require.Equal(t, parent.ID, child.ParentID)

		gotParent, err := repo.Get(ctx, parent.Token)
		require.NoError(t, err)
		require.True(t, gotParent.Revoked)

		gotChild, err := repo.Get(ctx, child.Token)
		require.NoError(t, err)
		require.False(t, gotChild.Revoked)
		require.Equal(t, parent.ID, gotChild.ParentID)
	})

	t.Run("rotate revoked token reports reuse", func(t *testing.T) {
		repo := newRepo(t)
		parent := NewRecord("alice")
		require.NoError(t, repo.Create(ctx, parent))
		require.NoError(t, repo.Rotate(ctx, parent.Token, NewRecord("alice")))

		err := repo.Rotate(ctx, parent.Token, NewRecord("alice"))
		require.ErrorIs(t, err, errors.ErrTokenReuseDetected)
	})

	t.Run("rotate unknown token", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.Rotate(ctx, "nope", NewRecord("alice"))
		require.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("concurrent rotation has one winner", func(t *testing.T) {
		repo := newRepo(t)
		parent := NewRecord("alice")
		require.NoError(t, repo.Create(ctx, parent))

		const racers = 8
		var wg sync.WaitGroup
		results := make(chan error, racers)
		for range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- repo.Rotate(ctx, parent.Token, NewRecord("alice"))
			}()
		}
		wg.Wait()
		close(results)

		wins, reuses := 0, 0
		for err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, errors.ErrTokenReuseDetected):
				reuses++
			default:
				t.Fatalf("unexpected rotate error: %v", err)
			}
		}
		require.Equal(t, 1, wins)
		require.Equal(t, racers-1, reuses)
	})

	t.Run("extend moves expiry", func(t *testing.T) {
		repo := newRepo(t)
		record := NewRecord("alice")
		require.NoError(t, repo.Create(ctx, record))

		later := record.ExpiresAt.Add(time.Hour)
		require.NoError(t, repo.Extend(ctx, record.Token, later))

		got, err := repo.Get(ctx, record.Token)
		require.NoError(t, err)
		require.True(t, later.Equal(got.ExpiresAt))
	})

	t.Run("extend revoked token reports reuse", func(t *testing.T) {
		repo := newRepo(t)
		record := NewRecord("alice")
		require.NoError(t, repo.Create(ctx, record))
		require.NoError(t, repo.Rotate(ctx, record.Token, NewRecord("alice")))

		err := repo.Extend(ctx, record.Token, time.Now().Add(time.Hour))
		require.ErrorIs(t, err, errors.ErrTokenReuseDetected)
	})

	t.Run("revoke chain reaches every descendant", func(t *testing.T) {
		repo := newRepo(t)
		root := NewRecord("alice")
		require.NoError(t, repo.Create(ctx, root))
		second := NewRecord("alice")
		require.NoError(t, repo.Rotate(ctx, root.Token, second))
		third := NewRecord("alice")
		require.NoError(t, repo.Rotate(ctx, second.Token, third))

		// root and second are already revoked by rotation, only third changes
		n, err := repo.RevokeChain(ctx, root.Token)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		for _, token := range []string{root.Token, second.Token, third.Token} {
			got, err := repo.Get(ctx, token)
			require.NoError(t, err)
			require.True(t, got.Revoked)
		}
	})

	t.Run("revoke chain leaves other chains alone", func(t *testing.T) {
		repo := newRepo(t)
		mine := NewRecord("alice")
		other := NewRecord("bob")
		require.NoError(t, repo.Create(ctx, mine))
		require.NoError(t, repo.Create(ctx, other))

		n, err := repo.RevokeChain(ctx, mine.Token)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		got, err := repo.Get(ctx, other.Token)
		require.NoError(t, err)
		require.False(t, got.Revoked)
	})
}
