// Package apiclient calls the capital planning services with a session's current access token.
// It checks scopes before reading the token and never refreshes; the heartbeat keeps tokens fresh.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-token-broker/broker/scopes"
	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/internal/logging"
	"github.com/jrsteele09/go-token-broker/services/capital"
	"github.com/rs/zerolog/log"
)

// Operation names, matching the scope table
const (
	OpGetAssets           = "capital_get_assets"
	OpGetAsset            = "capital_get_asset"
	OpAnalyzeRisk         = "capital_analyze_risk"
	OpOptimizeInvestments = "capital_optimize_investments"
)

const defaultTimeout = 60 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *sessions.Store
	gate       *scopes.Gate
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimSuffix(u, "/")
	}
}

func New(cfg config.BrokerConfig, store *sessions.Store, gate *scopes.Gate, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.GetServicesURL(), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      store,
		gate:       gate,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) GetAssets(ctx context.Context, sessionID, portfolioID string) ([]capital.Asset, error) {
	if portfolioID == "" {
		portfolioID = "default"
	}
	var assets []capital.Asset
	err := c.call(ctx, sessionID, OpGetAssets, http.MethodGet, "/assets", url.Values{"portfolio_id": {portfolioID}}, nil, &assets)
	return assets, err
}

func (c *Client) GetAsset(ctx context.Context, sessionID, assetID string) (*capital.Asset, error) {
	var asset capital.Asset
	if err := c.call(ctx, sessionID, OpGetAsset, http.MethodGet, "/assets/"+url.PathEscape(assetID), nil, nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (c *Client) AnalyzeRisk(ctx context.Context, sessionID string, req capital.RiskAnalysisRequest) (*capital.RiskAnalysisResponse, error) {
	var resp capital.RiskAnalysisResponse
	if err := c.call(ctx, sessionID, OpAnalyzeRisk, http.MethodPost, "/risk/analyze", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) OptimizeInvestments(ctx context.Context, sessionID string, req capital.InvestmentOptimizationRequest) (*capital.InvestmentOptimizationResponse, error) {
	var resp capital.InvestmentOptimizationResponse
	if err := c.call(ctx, sessionID, OpOptimizeInvestments, http.MethodPost, "/investments/optimize", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AccessToken runs the scope check for operation and then returns the session's current access token as stored
func (c *Client) AccessToken(sessionID, operation string) (string, error) {
	session, err := c.store.Get(sessionID)
	if err != nil {
		if errors.Is(err, errors.ErrSessionNotFound) {
			return "", fmt.Errorf("%w: no session %s, authenticate first", errors.ErrAuthentication, logging.ShortID(sessionID))
		}
		return "", err
	}
	if err := c.gate.Check(operation, session.Scopes); err != nil {
		return "", err
	}
	return session.AccessToken, nil
}

func (c *Client) call(ctx context.Context, sessionID, operation, method, path string, query url.Values, body, out any) error {
	token, err := c.AccessToken(sessionID, operation)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[Client call] failed to encode %s request", operation)
		}
		reader = bytes.NewReader(buf)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrapf(err, "[Client call] failed to build %s request", operation)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("method", method).Str("path", path).Str("session_id", logging.ShortID(sessionID)).Msg("downstream call")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("downstream network error")
		return &errors.APIError{Message: fmt.Sprintf("network error: %v", err), Err: errors.ErrNetwork}
	}
	defer resp.Body.Close()

	if err := statusError(operation, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "[Client call] failed to decode %s response", operation)
	}
	return nil
}

func statusError(operation string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: API returned 401 Unauthorized. Token may have been revoked", errors.ErrAuthentication)
	case resp.StatusCode == http.StatusForbidden:
		return &errors.AuthorizationError{Operation: operation}
	case resp.StatusCode == http.StatusNotFound:
		return &errors.APIError{StatusCode: http.StatusNotFound, Message: "Resource not found"}
	case resp.StatusCode >= http.StatusBadRequest:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &errors.APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(detail))}
	}
	return nil
}
