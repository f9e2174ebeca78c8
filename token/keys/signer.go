package keys

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.Claims) (string, error)

	// GetVerificationKey is a jwt.Keyfunc returning the key that verifies token
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod

	// GetJWKS returns the public verification material as a key set
	GetJWKS() (jwk.Set, error)
}

// KeyPairSigner implements Signer using RSA with RS256
type KeyPairSigner struct {
	keyPair *KeyPair
}

var _ Signer = (*KeyPairSigner)(nil)

// NewKeyPairSigner creates a new key pair signer with the given key pair
func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(a.keyPair.GetSigningMethod(), claims)
	token.Header["kid"] = a.keyPair.KeyID

	signedToken, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with asymmetric key: %w", err)
	}
	return signedToken, nil
}

func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if kid, ok := token.Header["kid"].(string); ok && kid != a.keyPair.KeyID {
		return nil, fmt.Errorf("unknown key id: %s", kid)
	}
	return a.keyPair.PublicKey, nil
}

func (a *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return a.keyPair.GetSigningMethod()
}

func (a *KeyPairSigner) KeyID() string {
	return a.keyPair.KeyID
}

// GetJWKS returns the JSON Web Key Set holding the public half of the key pair
func (a *KeyPairSigner) GetJWKS() (jwk.Set, error) {
	key, err := jwk.Import(a.keyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert key to JWK: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, a.keyPair.KeyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to add key to set: %w", err)
	}
	return set, nil
}
