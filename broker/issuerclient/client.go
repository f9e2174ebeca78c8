// Package issuerclient talks to the issuer's authorize and token endpoints on behalf of the broker.
package issuerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	issuer "github.com/jrsteele09/go-token-broker/oauth2"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

// Grant is the broker's view of one token response
type Grant struct {
	AccessToken  string
	AccessTTL    time.Duration
	RefreshToken string
	RefreshTTL   time.Duration
	// Rotated is true when the issuer returned a refresh token different from the one presented
	Rotated bool
	Scopes  []string
}

type Client struct {
	oauth       *oauth2.Config
	httpClient  *http.Client
	issuerURL   string
	fallbackTTL time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func New(cfg config.BrokerConfig, options ...Option) *Client {
	issuerURL := strings.TrimSuffix(cfg.GetIssuerURL(), "/")
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   issuerURL + "/authorize",
				TokenURL:  issuerURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:  &http.Client{Timeout: defaultTimeout},
		issuerURL:   issuerURL,
		fallbackTTL: cfg.GetFallbackRefreshTTL(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Discover replaces the configured endpoints with the ones published in the issuer's discovery document
func (c *Client) Discover(ctx context.Context) error {
	provider, err := oidc.NewProvider(c.context(ctx), c.issuerURL)
	if err != nil {
		return fmt.Errorf("[Client Discover] %w: %w", errors.ErrNetwork, err)
	}
	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	c.oauth.Endpoint = endpoint
	log.Info().Str("token_url", endpoint.TokenURL).Msg("issuer endpoints discovered")
	return nil
}

// Login authenticates a user at /authorize and exchanges the returned code for a token pair
func (c *Client) Login(ctx context.Context, username, password string) (*Grant, error) {
	state := fmt.Sprintf("broker-%d", time.Now().UnixNano())
	authURL := c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("username", username),
		oauth2.SetAuthURLParam("password", password),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client Login] failed to build authorize request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[Client Login] %w: %w", errors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	var body struct {
		issuer.AuthorizationResponse
		issuer.ErrorResponse
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrapf(err, "[Client Login] failed to decode authorize response (status %d)", resp.StatusCode)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.ErrInvalidCredentials
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("[Client Login] %w: authorize returned %d", errors.ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("[Client Login] %w: %s", mapErrorCode(body.Error, body.ErrorDescription), body.ErrorDescription)
	case body.State != state:
		return nil, fmt.Errorf("[Client Login] %w: state mismatch", errors.ErrInvalidRequest)
	}

	tok, err := c.oauth.Exchange(c.context(ctx), body.Code)
	if err != nil {
		return nil, mapTokenError("[Client Login]", err)
	}
	return c.grant(tok, ""), nil
}

// Refresh presents refreshToken to the issuer's refresh grant
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("[Client Refresh] %w: empty refresh token", errors.ErrInvalidRequest)
	}
	tok, err := c.oauth.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, mapTokenError("[Client Refresh]", err)
	}
	return c.grant(tok, refreshToken), nil
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) grant(tok *oauth2.Token, presented string) *Grant {
	g := &Grant{
		AccessToken:  tok.AccessToken,
		AccessTTL:    seconds(tok.Extra("expires_in")),
		RefreshToken: tok.RefreshToken,
		RefreshTTL:   seconds(tok.Extra("refresh_expires_in")),
		Rotated:      tok.RefreshToken != presented,
	}
	if g.AccessTTL == 0 && !tok.Expiry.IsZero() {
		g.AccessTTL = time.Until(tok.Expiry).Round(time.Second)
	}
	if g.Rotated && g.RefreshTTL == 0 {
		g.RefreshTTL = c.fallbackTTL
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		g.Scopes = strings.Fields(scope)
	}
	return g
}

func seconds(v any) time.Duration {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second))
	case json.Number:
		f, _ := n.Float64()
		return time.Duration(f * float64(time.Second))
	case string:
		d, _ := time.ParseDuration(n + "s")
		return d
	}
	return 0
}

func mapTokenError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		if notDialed(err) {
			return fmt.Errorf("%s %w: %w: %w", op, errors.ErrNetwork, errors.ErrIssuerUnavailable, err)
		}
		// the issuer may have rotated before the response was lost
		return fmt.Errorf("%s %w: %w", op, errors.ErrNetwork, err)
	}
	if rErr.Response != nil && rErr.Response.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s %w: %w: token endpoint returned %d", op, errors.ErrNetwork, errors.ErrIssuerUnavailable, rErr.Response.StatusCode)
	}
	return fmt.Errorf("%s %w: %s", op, mapErrorCode(rErr.ErrorCode, rErr.ErrorDescription), rErr.ErrorDescription)
}

// notDialed reports whether err happened before a connection to the issuer existed
func notDialed(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func mapErrorCode(code, description string) error {
	switch code {
	case issuer.ErrorCodeInvalidGrant:
		switch description {
		case issuer.DescriptionTokenReuseDetected:
			return errors.ErrTokenReuseDetected
		case issuer.DescriptionTokenExpired:
			return errors.ErrTokenExpired
		}
		return errors.ErrInvalidGrant
	case issuer.ErrorCodeInvalidClient:
		return errors.ErrInvalidClient
	case issuer.ErrorCodeUnsupportedGrantType, issuer.ErrorCodeUnsupportedResponseType, issuer.ErrorCodeInvalidRequest:
		return errors.ErrInvalidRequest
	case issuer.ErrorCodeAccessDenied:
		return errors.ErrInvalidCredentials
	}
	return errors.ErrInternal
}
