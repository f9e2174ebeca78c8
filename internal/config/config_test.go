package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()

	require.Equal(t, "http://localhost:8000", c.GetIssuer())
	require.Equal(t, "capital-planning-api", c.GetAudience())
	require.Equal(t, 10*time.Second, c.GetAccessTokenExpiry())
	require.Equal(t, 30*time.Second, c.GetRefreshTokenExpiry())
	require.Equal(t, 60*time.Second, c.GetAuthCodeTimeout())
	require.True(t, c.GetRotateRefreshTokens())
	require.Less(t, c.GetHeartbeatInterval(), c.GetAccessTokenExpiry())
}

func TestGetEnvDuration(t *testing.T) {
	t.Run("go duration", func(t *testing.T) {
		t.Setenv("TEST_DURATION", "250ms")
		require.Equal(t, 250*time.Millisecond, config.GetEnvDuration("TEST_DURATION", time.Second))
	})

	t.Run("bare seconds", func(t *testing.T) {
		t.Setenv("TEST_DURATION", "12")
		require.Equal(t, 12*time.Second, config.GetEnvDuration("TEST_DURATION", time.Second))
	})

	t.Run("garbage falls back", func(t *testing.T) {
		t.Setenv("TEST_DURATION", "soon")
		require.Equal(t, time.Second, config.GetEnvDuration("TEST_DURATION", time.Second))
	})
}

func TestPortAlwaysHasColon(t *testing.T) {
	t.Setenv("PORT", "9090")
	require.Equal(t, ":9090", config.New().GetPort())

	t.Setenv("PORT", ":9091")
	require.Equal(t, ":9091", config.New().GetPort())
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	origins := config.New().GetAllowedOrigins()

	require.True(t, origins.IsAllowedOrigin("http://a.test"))
	require.True(t, origins.IsAllowedOrigin("http://b.test"))
	require.False(t, origins.IsAllowedOrigin("*"))
}
