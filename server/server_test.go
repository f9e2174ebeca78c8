package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/oauth2"
	"github.com/jrsteele09/go-token-broker/server"
	"github.com/stretchr/testify/require"
)

const testClientID = "capital-planning-client"

type testConfig struct {
	config.Config
	noRotation bool
}

func (c testConfig) GetEnv() string { return "TEST" }
func (c testConfig) GetRotateRefreshTokens() bool { return !c.noRotation }
func (c testConfig) GetRevokeChainOnReuse() bool { return true }

type tokenBody struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func setupServer(t *testing.T, cfg testConfig) *httptest.Server {
	t.Helper()
	if cfg.Config == nil {
		cfg.Config = config.New()
	}
	deps, err := server.NewInMemoryDependencies(cfg, nil)
	require.NoError(t, err)
	s, err := server.New(cfg, deps)
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts
}

func authorize(t *testing.T, ts *httptest.Server, username, password string) (*http.Response, map[string]string) {
	t.Helper()
	q := url.Values{
		"username":      {username},
		"password":      {password},
		"client_id":     {testClientID},
		"response_type": {"code"},
		"state":         {"demo_state"},
	}
	resp, err := http.Get(ts.URL + server.RouteAuthorize + "?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]string{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func postToken(t *testing.T, ts *httptest.Server, form url.Values) (*http.Response, tokenBody) {
	t.Helper()
	resp, err := http.PostForm(ts.URL+server.RouteToken, form)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body tokenBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func login(t *testing.T, ts *httptest.Server) tokenBody {
	t.Helper()
	resp, body := authorize(t, ts, "admin_user", "admin_pass")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tokResp, tokens := postToken(t, ts, url.Values{
		"grant_type": {string(oauth2.AuthorizationCodeGrant)},
		"code":       {body["code"]},
		"client_id":  {testClientID},
	})
	require.Equal(t, http.StatusOK, tokResp.StatusCode)
	require.Equal(t, "no-store", tokResp.Header.Get("Cache-Control"))
	return tokens
}

func refreshForm(token string) url.Values {
	return url.Values{
		"grant_type":    {string(oauth2.RefreshTokenCodeGrant)},
		"refresh_token": {token},
		"client_id":     {testClientID},
	}
}

func TestAuthorizeEndpoint(t *testing.T) {
	ts := setupServer(t, testConfig{})

	t.Run("returns code and state", func(t *testing.T) {
		resp, body := authorize(t, ts, "admin_user", "admin_pass")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, body["code"])
		require.Equal(t, "demo_state", body["state"])
	})

	t.Run("bad credentials", func(t *testing.T) {
		resp, body := authorize(t, ts, "admin_user", "wrong")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, oauth2.ErrorCodeAccessDenied, body["error"])
	})
}

func TestTokenEndpoint(t *testing.T) {
	t.Run("code exchange and rotation", func(t *testing.T) {
		ts := setupServer(t, testConfig{})
		first := login(t, ts)
		require.Equal(t, "Bearer", first.TokenType)
		require.Equal(t, 10, first.ExpiresIn)
		require.Equal(t, 30, first.RefreshExpiresIn)

		resp, second := postToken(t, ts, refreshForm(first.RefreshToken))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEqual(t, first.RefreshToken, second.RefreshToken)

		resp, replay := postToken(t, ts, refreshForm(first.RefreshToken))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, oauth2.ErrorCodeInvalidGrant, replay.Error)
		require.Equal(t, oauth2.DescriptionTokenReuseDetected, replay.ErrorDescription)

		resp, head := postToken(t, ts, refreshForm(second.RefreshToken))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, oauth2.DescriptionTokenReuseDetected, head.ErrorDescription)
	})

	t.Run("rotation disabled keeps the refresh token", func(t *testing.T) {
		ts := setupServer(t, testConfig{noRotation: true})
		first := login(t, ts)

		resp, second := postToken(t, ts, refreshForm(first.RefreshToken))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, first.RefreshToken, second.RefreshToken)
		require.NotEqual(t, first.AccessToken, second.AccessToken)
	})

	t.Run("code cannot be reused", func(t *testing.T) {
		ts := setupServer(t, testConfig{})
		_, body := authorize(t, ts, "limited_user", "limited_pass")
		form := url.Values{
			"grant_type": {string(oauth2.AuthorizationCodeGrant)},
			"code":       {body["code"]},
			"client_id":  {testClientID},
		}
		resp, tokens := postToken(t, ts, form)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "assets:read", tokens.Scope)

		resp, again := postToken(t, ts, form)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, oauth2.ErrorCodeInvalidGrant, again.Error)
	})

	t.Run("errors", func(t *testing.T) {
		ts := setupServer(t, testConfig{})
		tests := []struct {
			name string
			form url.Values
			code string
		}{
			{"unsupported grant", url.Values{"grant_type": {"password"}, "client_id": {testClientID}}, oauth2.ErrorCodeUnsupportedGrantType},
			{"unknown client", url.Values{"grant_type": {"authorization_code"}, "client_id": {"x"}, "code": {"c"}}, oauth2.ErrorCodeInvalidClient},
			{"unknown code", url.Values{"grant_type": {"authorization_code"}, "client_id": {testClientID}, "code": {"c"}}, oauth2.ErrorCodeInvalidGrant},
			{"garbage refresh token", refreshForm("garbage"), oauth2.ErrorCodeInvalidGrant},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, body := postToken(t, ts, tt.form)
				require.Equal(t, http.StatusBadRequest, resp.StatusCode)
				require.Equal(t, tt.code, body.Error)
			})
		}
	})
}

func TestKeyMaterialAndDiscovery(t *testing.T) {
	ts := setupServer(t, testConfig{})

	for _, path := range []string{server.RouteJWKS, server.RouteWellKnownJWKS} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var set struct {
				Keys []map[string]any `json:"keys"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&set))
			require.Len(t, set.Keys, 1)
			require.Equal(t, "RS256", set.Keys[0]["alg"])
			require.NotEmpty(t, set.Keys[0]["kid"])
			require.NotContains(t, set.Keys[0], "d")
		})
	}

	t.Run("discovery", func(t *testing.T) {
		resp, err := http.Get(ts.URL + server.RouteWellKnownOpenIDConfig)
		require.NoError(t, err)
		defer resp.Body.Close()

		doc := map[string]any{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
		require.Equal(t, "http://localhost:8000", doc["issuer"])
		require.True(t, strings.HasSuffix(doc["jwks_uri"].(string), server.RouteWellKnownJWKS))
	})

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + server.RouteHealth)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestUserInfoIntrospectRevoke(t *testing.T) {
	ts := setupServer(t, testConfig{})
	tokens := login(t, ts)

	t.Run("userinfo", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+server.RouteUserInfo, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		info := map[string]any{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		require.Equal(t, "admin_user", info["sub"])
	})

	t.Run("userinfo without token", func(t *testing.T) {
		resp, err := http.Get(ts.URL + server.RouteUserInfo)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	introspect := func(t *testing.T, token string) bool {
		t.Helper()
		resp, err := http.PostForm(ts.URL+server.RouteOAuth2Introspect, url.Values{"token": {token}})
		require.NoError(t, err)
		defer resp.Body.Close()
		var body struct {
			Active bool `json:"active"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body.Active
	}

	t.Run("revoke deactivates the refresh token", func(t *testing.T) {
		require.True(t, introspect(t, tokens.RefreshToken))

		resp, err := http.PostForm(ts.URL+server.RouteOAuth2Revoke, url.Values{
			"token":     {tokens.RefreshToken},
			"client_id": {testClientID},
		})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.False(t, introspect(t, tokens.RefreshToken))

		resp, err = http.PostForm(ts.URL+server.RouteOAuth2Revoke, url.Values{
			"token":     {"unknown"},
			"client_id": {testClientID},
		})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}
