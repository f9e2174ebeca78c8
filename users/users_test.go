package users_test

import (
	"testing"

	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/users"
	"github.com/stretchr/testify/require"
)

func TestSeedAndLookup(t *testing.T) {
	repo := users.NewInMemoryRepo()
	require.NoError(t, users.Seed(repo, users.DemoAccounts))

	t.Run("admin has every scope", func(t *testing.T) {
		u, err := repo.GetByUsername("admin_user")
		require.NoError(t, err)
		require.Equal(t, "admin_user", u.ID)
		require.True(t, u.CheckPassword("admin_pass"))
		require.False(t, u.CheckPassword("wrong"))
		require.True(t, u.HasScope("investments:write"))
	})

	t.Run("limited user only reads assets", func(t *testing.T) {
		u, err := repo.GetByID("limited_user")
		require.NoError(t, err)
		require.Equal(t, []string{"assets:read"}, u.Scopes)
		require.False(t, u.HasScope("risk:analyze"))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := repo.GetByUsername("nobody")
		require.ErrorIs(t, err, errors.ErrUserNotFound)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		u, err := repo.GetByID("admin_user")
		require.NoError(t, err)
		u.Scopes[0] = "mutated"

		again, err := repo.GetByID("admin_user")
		require.NoError(t, err)
		require.Equal(t, "assets:read", again.Scopes[0])
	})

	t.Run("username required", func(t *testing.T) {
		require.ErrorIs(t, repo.Upsert(&users.User{}), errors.ErrInvalidRequest)
	})
}
