package keys_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-broker/token/keys"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T, kid string) *keys.KeyPairSigner {
	t.Helper()
	kp, err := keys.GenerateRSAKeyPair(kid, 2048)
	require.NoError(t, err)
	return keys.NewKeyPairSigner(kp)
}

func TestSignAndVerify(t *testing.T) {
	signer := newSigner(t, "kid-1")

	raw, err := signer.Sign(jwt.MapClaims{
		"sub": "admin_user",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	require.NoError(t, err)

	parsed, err := jwt.Parse(raw, signer.GetVerificationKey)
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	require.Equal(t, "kid-1", parsed.Header["kid"])
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	signer := newSigner(t, "kid-1")
	other := newSigner(t, "kid-2")

	raw, err := other.Sign(jwt.MapClaims{"sub": "x"})
	require.NoError(t, err)

	_, err = jwt.Parse(raw, signer.GetVerificationKey)
	require.Error(t, err)
}

func TestGeneratedKeyIDWhenEmpty(t *testing.T) {
	signer := newSigner(t, "")
	require.NotEmpty(t, signer.KeyID())
}

func TestGetJWKS(t *testing.T) {
	signer := newSigner(t, "kid-1")

	set, err := signer.GetJWKS()
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	body, err := json.Marshal(set)
	require.NoError(t, err)

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	require.Len(t, doc.Keys, 1)

	key := doc.Keys[0]
	require.Equal(t, "RSA", key["kty"])
	require.Equal(t, "kid-1", key["kid"])
	require.Equal(t, "RS256", key["alg"])
	require.Equal(t, "sig", key["use"])
	require.NotEmpty(t, key["n"])
	require.Equal(t, "AQAB", key["e"])
	require.NotContains(t, key, "d", "private exponent must never be published")
}
