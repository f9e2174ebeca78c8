package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-broker/broker/apiclient"
	"github.com/jrsteele09/go-token-broker/broker/issuerclient"
	"github.com/jrsteele09/go-token-broker/broker/scopes"
	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/server/servertest"
	"github.com/jrsteele09/go-token-broker/services/capital"
	"github.com/jrsteele09/go-token-broker/services/resourceauth"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	store  *sessions.Store
	issuer *issuerclient.Client
	api    *apiclient.Client

	mu         sync.Mutex
	seenTokens []string
	calls      atomic.Int32
}

// setupTestFixture runs an issuer and the capital services, recording every bearer token the services see
func setupTestFixture(t *testing.T, opts servertest.Options) *testFixture {
	t.Helper()
	ctx := context.Background()
	iss := servertest.NewIssuer(t, opts)
	auth := resourceauth.New(ctx, iss.URL, iss.URL+"/jwks", iss.Config.GetAudience())
	services := capital.New(iss.Config, auth)

	f := &testFixture{store: sessions.NewStore(), issuer: issuerclient.New(iss.Config)}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.mu.Lock()
		f.seenTokens = append(f.seenTokens, r.Header.Get("Authorization"))
		f.mu.Unlock()
		services.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	f.api = apiclient.New(config.New(), f.store, scopes.NewGate(scopes.CapitalPlanning), apiclient.WithBaseURL(ts.URL))
	return f
}

func (f *testFixture) session(t *testing.T, username, password string, accessTTL time.Duration) (string, *issuerclient.Grant) {
	t.Helper()
	g, err := f.issuer.Login(context.Background(), username, password)
	require.NoError(t, err)
	id, err := f.store.Create(sessions.NewSession{
		UserID:       username,
		Scopes:       g.Scopes,
		AccessToken:  g.AccessToken,
		AccessTTL:    accessTTL,
		RefreshToken: g.RefreshToken,
		RefreshTTL:   time.Hour,
	})
	require.NoError(t, err)
	return id, g
}

func (f *testFixture) lastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seenTokens) == 0 {
		return ""
	}
	return f.seenTokens[len(f.seenTokens)-1]
}

func TestAuthorizedCalls(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, servertest.Options{})
	admin, grant := f.session(t, "admin_user", "admin_pass", 10*time.Second)

	t.Run("get assets", func(t *testing.T) {
		assets, err := f.api.GetAssets(ctx, admin, "")
		require.NoError(t, err)
		require.Len(t, assets, 30)
		require.Equal(t, "Bearer "+grant.AccessToken, f.lastToken())
	})

	t.Run("get asset", func(t *testing.T) {
		asset, err := f.api.GetAsset(ctx, admin, "asset-003")
		require.NoError(t, err)
		require.Equal(t, "asset-003", asset.ID)
	})

	t.Run("unknown asset is an API error", func(t *testing.T) {
		_, err := f.api.GetAsset(ctx, admin, "asset-999")
		var apiErr *errors.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})

	t.Run("analyze risk", func(t *testing.T) {
		resp, err := f.api.AnalyzeRisk(ctx, admin, capital.RiskAnalysisRequest{AssetIDs: []string{"asset-001"}, HorizonMonths: 24})
		require.NoError(t, err)
		require.Len(t, resp.Risks, 1)
		require.Equal(t, 24, resp.HorizonMonths)
	})

	t.Run("optimize investments", func(t *testing.T) {
		resp, err := f.api.OptimizeInvestments(ctx, admin, capital.InvestmentOptimizationRequest{
			Candidates:    []capital.InvestmentCandidate{{AssetID: "asset-001", InterventionType: "repair", Cost: 10, ExpectedRiskReduction: 0.1}},
			Budget:        100,
			HorizonMonths: 12,
		})
		require.NoError(t, err)
		require.Len(t, resp.SelectedInvestments, 1)
	})

	t.Run("calls never refresh the session", func(t *testing.T) {
		session, err := f.store.Get(admin)
		require.NoError(t, err)
		require.Zero(t, session.RefreshCount)
		require.Equal(t, grant.RefreshToken, session.RefreshToken)
	})
}

func TestScopeCheckRunsBeforeTheCall(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, servertest.Options{})
	limited, _ := f.session(t, "limited_user", "limited_pass", 10*time.Second)

	_, err := f.api.OptimizeInvestments(ctx, limited, capital.InvestmentOptimizationRequest{
		Candidates:    []capital.InvestmentCandidate{{AssetID: "asset-001", Cost: 1}},
		Budget:        10,
		HorizonMonths: 12,
	})
	require.ErrorIs(t, err, errors.ErrAuthorization)

	var authzErr *errors.AuthorizationError
	require.True(t, errors.As(err, &authzErr))
	require.Equal(t, []string{"investments:write"}, authzErr.Missing)
	require.Equal(t, []string{"assets:read"}, authzErr.Granted)
	require.Zero(t, f.calls.Load())

	t.Run("allowed operation still works", func(t *testing.T) {
		_, err := f.api.GetAssets(ctx, limited, "default")
		require.NoError(t, err)
		require.EqualValues(t, 1, f.calls.Load())
	})
}

func TestUnknownSession(t *testing.T) {
	f := setupTestFixture(t, servertest.Options{})
	_, err := f.api.GetAssets(context.Background(), "no-such-session", "")
	require.ErrorIs(t, err, errors.ErrAuthentication)
	require.Zero(t, f.calls.Load())
}

func TestExpiredTokenIsSentVerbatim(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a token to expire")
	}
	ctx := context.Background()
	f := setupTestFixture(t, servertest.Options{AccessTTL: time.Second})
	id, grant := f.session(t, "admin_user", "admin_pass", time.Second)

	// no heartbeat runs, so nothing replaces the token
	time.Sleep(2 * time.Second)

	_, err := f.api.GetAssets(ctx, id, "")
	require.ErrorIs(t, err, errors.ErrAuthentication)
	require.Equal(t, "Bearer "+grant.AccessToken, f.lastToken())

	session, err := f.store.Get(id)
	require.NoError(t, err)
	require.Zero(t, session.RefreshCount)
}

func TestDownstreamStatusMapping(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewStore()
	id, err := store.Create(sessions.NewSession{
		UserID:       "admin_user",
		Scopes:       []string{scopes.AssetsRead},
		AccessToken:  "at",
		AccessTTL:    time.Minute,
		RefreshToken: "rt",
		RefreshTTL:   time.Hour,
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"401", http.StatusUnauthorized, func(t *testing.T, err error) {
			require.ErrorIs(t, err, errors.ErrAuthentication)
		}},
		{"403", http.StatusForbidden, func(t *testing.T, err error) {
			require.ErrorIs(t, err, errors.ErrAuthorization)
		}},
		{"404", http.StatusNotFound, func(t *testing.T, err error) {
			var apiErr *errors.APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		}},
		{"500", http.StatusInternalServerError, func(t *testing.T, err error) {
			var apiErr *errors.APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
			require.Contains(t, apiErr.Message, "boom")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen atomic.Value
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen.Store(r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail":"boom"}`))
			}))
			t.Cleanup(ts.Close)

			api := apiclient.New(config.New(), store, scopes.NewGate(scopes.CapitalPlanning), apiclient.WithBaseURL(ts.URL))
			_, err := api.GetAssets(ctx, id, "")
			tt.check(t, err)
			require.Equal(t, "Bearer at", seen.Load())
		})
	}

	t.Run("network error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		api := apiclient.New(config.New(), store, scopes.NewGate(scopes.CapitalPlanning), apiclient.WithBaseURL(ts.URL))
		_, err := api.GetAssets(ctx, id, "")
		require.ErrorIs(t, err, errors.ErrNetwork)
	})
}
