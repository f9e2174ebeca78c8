package clients_test

import (
	"testing"

	"github.com/jrsteele09/go-token-broker/clients"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	confidential := &clients.Client{
		ID:     "capital-planning-client",
		Type:   clients.ClientTypeConfidential,
		Secret: "s3cret",
		Scopes: []string{"assets:read", "risk:analyze"},
	}

	t.Run("authenticate", func(t *testing.T) {
		require.NoError(t, confidential.Authenticate("s3cret"))
		require.ErrorIs(t, confidential.Authenticate("nope"), errors.ErrInvalidClient)
		require.ErrorIs(t, confidential.Authenticate(""), errors.ErrInvalidClient)

		public := &clients.Client{ID: "cli", Type: clients.ClientTypePublic}
		require.NoError(t, public.Authenticate(""))
	})

	t.Run("scopes", func(t *testing.T) {
		require.NoError(t, confidential.ValidateScopes("assets:read  risk:analyze"))
		require.ErrorIs(t, confidential.ValidateScopes("investments:write"), errors.ErrInvalidScope)
		require.Equal(t, []string{"assets:read"}, confidential.FilterScopes([]string{"assets:read", "investments:write"}))

		open := &clients.Client{ID: "open"}
		require.True(t, open.HasScope("anything"))
	})

	t.Run("repo", func(t *testing.T) {
		repo := clients.NewInMemoryRepo(confidential)
		got, err := repo.Get("capital-planning-client")
		require.NoError(t, err)
		require.Equal(t, "s3cret", got.Secret)

		_, err = repo.Get("missing")
		require.ErrorIs(t, err, errors.ErrInvalidClient)
		require.ErrorIs(t, repo.Upsert(&clients.Client{}), errors.ErrInvalidRequest)
	})
}
