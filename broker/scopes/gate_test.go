package scopes_test

import (
	"testing"

	"github.com/jrsteele09/go-token-broker/broker/scopes"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestGateCheck(t *testing.T) {
	gate := scopes.NewGate(scopes.CapitalPlanning)
	all := []string{scopes.AssetsRead, scopes.RiskAnalyze, scopes.InvestmentsWrite}

	tests := []struct {
		name      string
		operation string
		granted   []string
		missing   []string
	}{
		{"read with read scope", "capital_get_assets", []string{scopes.AssetsRead}, nil},
		{"admin can optimize", "capital_optimize_investments", all, nil},
		{"limited cannot optimize", "capital_optimize_investments", []string{scopes.AssetsRead}, []string{scopes.InvestmentsWrite}},
		{"limited cannot analyze", "capital_analyze_risk", []string{scopes.AssetsRead}, []string{scopes.RiskAnalyze}},
		{"no scopes at all", "capital_get_asset", nil, []string{scopes.AssetsRead}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Check(tt.operation, tt.granted)
			if tt.missing == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errors.ErrAuthorization)
			var authErr *errors.AuthorizationError
			require.True(t, errors.As(err, &authErr))
			require.Equal(t, tt.missing, authErr.Missing)
			require.Equal(t, tt.operation, authErr.Operation)
		})
	}

	t.Run("unknown operation is denied", func(t *testing.T) {
		require.ErrorIs(t, gate.Check("capital_drop_tables", all), errors.ErrAuthorization)
	})
}

func TestGateIsImmutable(t *testing.T) {
	table := map[string][]string{"op": {"a"}}
	gate := scopes.NewGate(table)
	table["op"][0] = "b"

	required, ok := gate.Required("op")
	require.True(t, ok)
	require.Equal(t, []string{"a"}, required)

	required[0] = "c"
	again, _ := gate.Required("op")
	require.Equal(t, []string{"a"}, again)
	require.Equal(t, []string{"op"}, gate.Operations())
}
