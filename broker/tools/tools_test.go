package tools_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-broker/broker/apiclient"
	"github.com/jrsteele09/go-token-broker/broker/issuerclient"
	"github.com/jrsteele09/go-token-broker/broker/scopes"
	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/broker/tools"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/server/servertest"
	"github.com/jrsteele09/go-token-broker/services/capital"
	"github.com/jrsteele09/go-token-broker/services/resourceauth"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	tools   *tools.Tools
	store   *sessions.Store
	admin   string
	limited string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()
	iss := servertest.NewIssuer(t, servertest.Options{})
	auth := resourceauth.New(ctx, iss.URL, iss.URL+"/jwks", iss.Config.GetAudience())
	services := httptest.NewServer(capital.New(iss.Config, auth))
	t.Cleanup(services.Close)

	store := sessions.NewStore()
	gate := scopes.NewGate(scopes.CapitalPlanning)
	api := apiclient.New(config.New(), store, gate, apiclient.WithBaseURL(services.URL))
	f := &testFixture{tools: tools.New(api, store, gate), store: store}

	client := issuerclient.New(iss.Config)
	login := func(username, password string) string {
		g, err := client.Login(ctx, username, password)
		require.NoError(t, err)
		id, err := store.Create(sessions.NewSession{
			UserID:       username,
			Scopes:       g.Scopes,
			AccessToken:  g.AccessToken,
			AccessTTL:    g.AccessTTL,
			RefreshToken: g.RefreshToken,
			RefreshTTL:   g.RefreshTTL,
		})
		require.NoError(t, err)
		return id
	}
	f.admin = login("admin_user", "admin_pass")
	f.limited = login("limited_user", "limited_pass")
	return f
}

func (f *testFixture) call(t *testing.T, name, sessionID, input string) string {
	t.Helper()
	text, err := f.tools.Call(context.Background(), name, sessionID, json.RawMessage(input))
	require.NoError(t, err)
	return text
}

func TestToolCalls(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("assets as markdown", func(t *testing.T) {
		text := f.call(t, apiclient.OpGetAssets, f.admin, `{}`)
		require.True(t, strings.HasPrefix(text, "## Assets (30 total)"))
		require.Contains(t, text, "- **ID**: asset-001")
	})

	t.Run("assets as json", func(t *testing.T) {
		text := f.call(t, apiclient.OpGetAssets, f.admin, `{"response_format":"json"}`)
		var assets []capital.Asset
		require.NoError(t, json.Unmarshal([]byte(text), &assets))
		require.Len(t, assets, 30)
	})

	t.Run("asset details", func(t *testing.T) {
		text := f.call(t, apiclient.OpGetAsset, f.limited, `{"asset_id":"asset-002"}`)
		require.True(t, strings.HasPrefix(text, "## Asset Details"))
	})

	t.Run("missing asset", func(t *testing.T) {
		text := f.call(t, apiclient.OpGetAsset, f.admin, `{"asset_id":"asset-999"}`)
		require.True(t, strings.HasPrefix(text, "**Not Found**"))
	})

	t.Run("risk analysis defaults the horizon", func(t *testing.T) {
		text := f.call(t, apiclient.OpAnalyzeRisk, f.admin, `{"asset_ids":["asset-001","asset-002"]}`)
		require.Contains(t, text, "**Horizon**: 12 months")
		require.Contains(t, text, "### Risk Assessments (2 assets)")
	})

	t.Run("optimize", func(t *testing.T) {
		text := f.call(t, apiclient.OpOptimizeInvestments, f.admin,
			`{"candidates":[{"asset_id":"asset-001","intervention_type":"full_replacement","cost":1500.5,"expected_risk_reduction":0.4}],"budget":2000}`)
		require.Contains(t, text, "- **Total Budget**: $2,000.00")
		require.Contains(t, text, "- **Intervention**: Full Replacement")
	})

	t.Run("limited user cannot optimize", func(t *testing.T) {
		text := f.call(t, apiclient.OpOptimizeInvestments, f.limited,
			`{"candidates":[{"asset_id":"asset-001","intervention_type":"repair","cost":1,"expected_risk_reduction":0.1}],"budget":10}`)
		require.True(t, strings.HasPrefix(text, "**Authorization Error**"))
		require.Contains(t, text, "investments:write")
		require.Contains(t, text, "The user does not have permission for this operation.")
	})

	t.Run("unknown session", func(t *testing.T) {
		text := f.call(t, apiclient.OpGetAssets, "gone", `{}`)
		require.True(t, strings.HasPrefix(text, "**Authentication Error**"))
		require.Contains(t, text, "Please re-authenticate.")
	})

	t.Run("session info", func(t *testing.T) {
		text := f.call(t, tools.SessionInfo, f.admin, "")
		require.Contains(t, text, "- **User ID**: admin_user")
		require.Contains(t, text, "- **Token Refresh Count**: 0")
		require.Contains(t, text, "- **Last Refreshed**: Never")
		require.NotContains(t, text, f.admin)
	})

	t.Run("session info for a missing session", func(t *testing.T) {
		require.Contains(t, f.call(t, tools.SessionInfo, "gone", ""), "**Error**: Session gone not found")
	})
}

func TestMalformedCalls(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		tool  string
		input string
		want  error
	}{
		{"unknown tool", "capital_delete_everything", `{}`, errors.ErrNotFound},
		{"unknown field", apiclient.OpGetAssets, `{"portfolio":"x"}`, errors.ErrInvalidRequest},
		{"bad format", apiclient.OpGetAssets, `{"response_format":"xml"}`, errors.ErrInvalidRequest},
		{"missing asset id", apiclient.OpGetAsset, `{}`, errors.ErrInvalidRequest},
		{"horizon out of range", apiclient.OpAnalyzeRisk, `{"asset_ids":["asset-001"],"horizon_months":121}`, errors.ErrInvalidRequest},
		{"no candidates", apiclient.OpOptimizeInvestments, `{"candidates":[],"budget":10}`, errors.ErrInvalidRequest},
		{"not json", apiclient.OpGetAssets, `{`, errors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tools.Call(ctx, tt.tool, f.admin, json.RawMessage(tt.input))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDefinitions(t *testing.T) {
	store := sessions.NewStore()
	gate := scopes.NewGate(scopes.CapitalPlanning)
	defs := tools.New(apiclient.New(config.New(), store, gate), store, gate).Definitions()

	require.Len(t, defs, 5)
	byName := map[string]tools.Definition{}
	for _, d := range defs {
		require.NotEmpty(t, d.Description, d.Name)
		byName[d.Name] = d
	}
	require.Equal(t, []string{"investments:write"}, byName[apiclient.OpOptimizeInvestments].Scopes)
	require.Empty(t, byName[tools.SessionInfo].Scopes)
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		err    error
		prefix string
	}{
		{fmt.Errorf("%w: token revoked", errors.ErrAuthentication), "**Authentication Error**"},
		{&errors.AuthorizationError{Operation: "op", Missing: []string{"a"}}, "**Authorization Error**"},
		{&errors.APIError{StatusCode: 404, Message: "Resource not found"}, "**Not Found**"},
		{&errors.APIError{StatusCode: 502, Message: "bad gateway"}, "**API Error**"},
		{&errors.APIError{Message: "network error: refused", Err: errors.ErrNetwork}, "**API Error**"},
		{errors.New("boom"), "**Unexpected Error**"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			require.True(t, strings.HasPrefix(tools.ErrorText(tt.err), tt.prefix))
		})
	}
}

func TestSessionInfoAfterRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := sessions.NewStore(sessions.WithClock(func() time.Time { return now }))
	gate := scopes.NewGate(scopes.CapitalPlanning)
	tl := tools.New(apiclient.New(config.New(), store, gate), store, gate)

	id, err := store.Create(sessions.NewSession{
		UserID: "admin_user", AccessToken: "a", AccessTTL: 10 * time.Second,
		RefreshToken: "r", RefreshTTL: 30 * time.Second,
	})
	require.NoError(t, err)
	_, err = store.ApplyRefresh(id, sessions.Refresh{AccessToken: "b", AccessTTL: 10 * time.Second})
	require.NoError(t, err)

	text, err := tl.Call(context.Background(), tools.SessionInfo, id, nil)
	require.NoError(t, err)
	require.Contains(t, text, "- **Token Refresh Count**: 1")
	require.Contains(t, text, "- **Access Token Expires In**: 10 seconds")
	require.Contains(t, text, "- **Last Refreshed**: 2026-03-01T09:00:00Z")
}
