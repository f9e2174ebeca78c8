// Package servertest runs a seeded in-memory issuer for tests of the broker side.
package servertest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/server"
	"github.com/stretchr/testify/require"
)

// Options tune the issuer. Zero values keep the configured defaults.
type Options struct {
	Config     config.Config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	NoRotation bool
}

// Config points every issuer-facing getter at the running test server
type Config struct {
	config.Config
	url     string
	options Options
}

func (c Config) GetEnv() string { return "TEST" }

func (c Config) GetIssuer() string { return c.url }

func (c Config) GetIssuerURL() string { return c.url }

func (c Config) GetRotateRefreshTokens() bool { return !c.options.NoRotation }

func (c Config) GetAccessTokenExpiry() time.Duration {
	if c.options.AccessTTL > 0 {
		return c.options.AccessTTL
	}
	return c.Config.GetAccessTokenExpiry()
}

func (c Config) GetRefreshTokenExpiry() time.Duration {
	if c.options.RefreshTTL > 0 {
		return c.options.RefreshTTL
	}
	return c.Config.GetRefreshTokenExpiry()
}

// Issuer is a running test issuer
type Issuer struct {
	*httptest.Server
	Config Config
}

// NewIssuer starts an issuer whose iss claim and discovery document use the test server's URL
func NewIssuer(t *testing.T, opts Options) *Issuer {
	t.Helper()
	if opts.Config == nil {
		opts.Config = config.New()
	}

	var (
		mu      sync.RWMutex
		handler http.Handler = http.NotFoundHandler()
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		h := handler
		mu.RUnlock()
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	cfg := Config{Config: opts.Config, url: ts.URL, options: opts}
	deps, err := server.NewInMemoryDependencies(cfg, nil)
	require.NoError(t, err)
	s, err := server.New(cfg, deps)
	require.NoError(t, err)

	mu.Lock()
	handler = s
	mu.Unlock()
	return &Issuer{Server: ts, Config: cfg}
}

// RevokeChain revokes refreshToken and every token issued after it
func (i *Issuer) RevokeChain(t *testing.T, refreshToken string) {
	t.Helper()
	resp, err := http.PostForm(i.URL+server.RouteOAuth2Revoke, url.Values{
		"token":     {refreshToken},
		"client_id": {i.Config.GetClientID()},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
