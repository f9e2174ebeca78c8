package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-broker/internal/config"
	apperrors "github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/oauth2"
	"github.com/jrsteele09/go-token-broker/token/keys"
)

// Verifier validates tokens minted by Creator
type Verifier struct {
	config config.OAuthConfig
	signer keys.Signer
}

func NewVerifier(cfg config.OAuthConfig, signer keys.Signer) *Verifier {
	return &Verifier{
		config: cfg,
		signer: signer,
	}
}

func (v *Verifier) parser() *jwtlib.Parser {
	return jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{v.signer.GetSigningMethod().Alg()}),
		jwtlib.WithIssuer(v.config.GetIssuer()),
		jwtlib.WithAudience(v.config.GetAudience()),
		jwtlib.WithLeeway(v.config.GetClockSkewLeeway()),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(func() time.Time { return NowTimeFunc() }),
	)
}

// Verify checks signature, issuer, audience and expiry, then the token type.
// An empty expected type accepts either kind.
//
// A token whose only fault is being past its expiry returns its claims together with
// ErrTokenExpired, so callers can still look up what the token refers to.
func (v *Verifier) Verify(raw string, expected oauth2.TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser().ParseWithClaims(raw, claims, v.signer.GetVerificationKey)
	switch {
	case err == nil:
	case errors.Is(err, jwtlib.ErrTokenExpired) && v.onlyExpired(claims):
		if typeErr := checkType(claims, expected); typeErr != nil {
			return nil, typeErr
		}
		return claims, apperrors.Wrapf(apperrors.ErrTokenExpired, "token expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339))
	default:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%s", err.Error())
	}

	if err := checkType(claims, expected); err != nil {
		return nil, err
	}
	return claims, nil
}

// onlyExpired repeats the issuer and audience checks for an expired token, since
// the parser reports every failed claim together.
func (v *Verifier) onlyExpired(claims *Claims) bool {
	return claims.ExpiresAt != nil &&
		claims.Issuer == v.config.GetIssuer() &&
		claims.HasAudience(v.config.GetAudience())
}

func checkType(claims *Claims, expected oauth2.TokenType) error {
	if expected == "" || claims.TokenType == expected {
		return nil
	}
	return apperrors.Wrapf(apperrors.ErrInvalidToken, "expected %s token, got %q", expected, claims.TokenType)
}
