// Package tools exposes the capital planning operations as named tools that return user-facing text.
// Tool failures become text too, so the caller never sees a token or a raw error chain.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-token-broker/broker/apiclient"
	"github.com/jrsteele09/go-token-broker/broker/scopes"
	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/internal/logging"
	"github.com/jrsteele09/go-token-broker/services/capital"
	"github.com/rs/zerolog/log"
)

const SessionInfo = "capital_session_info"

type ResponseFormat string

const (
	FormatMarkdown ResponseFormat = "markdown"
	FormatJSON     ResponseFormat = "json"
)

type GetAssetsInput struct {
	PortfolioID    string         `json:"portfolio_id"`
	ResponseFormat ResponseFormat `json:"response_format"`
}

type GetAssetInput struct {
	AssetID        string         `json:"asset_id"`
	ResponseFormat ResponseFormat `json:"response_format"`
}

type AnalyzeRiskInput struct {
	AssetIDs       []string       `json:"asset_ids"`
	HorizonMonths  int            `json:"horizon_months"`
	ResponseFormat ResponseFormat `json:"response_format"`
}

type OptimizeInvestmentsInput struct {
	Candidates     []capital.InvestmentCandidate `json:"candidates"`
	Budget         float64                       `json:"budget"`
	HorizonMonths  int                           `json:"horizon_months"`
	ResponseFormat ResponseFormat                `json:"response_format"`
}

// Definition describes a tool to callers
type Definition struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Scopes      []string `json:"required_scopes"`
}

type Tools struct {
	api   *apiclient.Client
	store *sessions.Store
	gate  *scopes.Gate
}

func New(api *apiclient.Client, store *sessions.Store, gate *scopes.Gate) *Tools {
	return &Tools{api: api, store: store, gate: gate}
}

func (t *Tools) Definitions() []Definition {
	descriptions := map[string]string{
		apiclient.OpGetAssets:           "Fetch all assets in a portfolio with condition, age, location and replacement cost.",
		apiclient.OpGetAsset:            "Fetch details for a single asset.",
		apiclient.OpAnalyzeRisk:         "Analyze failure risk for the given assets over a horizon in months.",
		apiclient.OpOptimizeInvestments: "Select the investments that maximise risk reduction within a budget.",
	}
	defs := make([]Definition, 0, len(descriptions)+1)
	for _, op := range t.gate.Operations() {
		required, _ := t.gate.Required(op)
		defs = append(defs, Definition{Name: op, Description: descriptions[op], Scopes: required})
	}
	return append(defs, Definition{
		Name:        SessionInfo,
		Description: "Report the current session's user, scopes, token expiries and refresh count.",
		Scopes:      []string{},
	})
}

// Call runs the named tool. A returned error means the call itself was malformed;
// failures of the operation are reported in the text.
func (t *Tools) Call(ctx context.Context, name, sessionID string, input json.RawMessage) (string, error) {
	var (
		text string
		err  error
	)
	switch name {
	case apiclient.OpGetAssets:
		var in GetAssetsInput
		if err := decode(input, &in); err != nil {
			return "", err
		}
		text, err = t.getAssets(ctx, sessionID, in)
	case apiclient.OpGetAsset:
		var in GetAssetInput
		if err := decode(input, &in); err != nil {
			return "", err
		}
		text, err = t.getAsset(ctx, sessionID, in)
	case apiclient.OpAnalyzeRisk:
		var in AnalyzeRiskInput
		if err := decode(input, &in); err != nil {
			return "", err
		}
		text, err = t.analyzeRisk(ctx, sessionID, in)
	case apiclient.OpOptimizeInvestments:
		var in OptimizeInvestmentsInput
		if err := decode(input, &in); err != nil {
			return "", err
		}
		text, err = t.optimizeInvestments(ctx, sessionID, in)
	case SessionInfo:
		text, err = t.sessionInfo(sessionID)
	default:
		return "", fmt.Errorf("%w: unknown tool %q", errors.ErrNotFound, name)
	}

	if errors.Is(err, errors.ErrInvalidRequest) {
		return "", err
	}
	if err != nil {
		log.Error().Err(err).Str("tool", name).Str("session_id", logging.ShortID(sessionID)).Msg("tool call failed")
		return ErrorText(err), nil
	}
	return text, nil
}

func (t *Tools) getAssets(ctx context.Context, sessionID string, in GetAssetsInput) (string, error) {
	if len(in.PortfolioID) > 100 {
		return "", invalid("portfolio_id must be at most 100 characters")
	}
	assets, err := t.api.GetAssets(ctx, sessionID, strings.TrimSpace(in.PortfolioID))
	if err != nil {
		return "", err
	}
	if in.ResponseFormat == FormatJSON {
		return indentJSON(assets)
	}
	return assetsMarkdown(assets), nil
}

func (t *Tools) getAsset(ctx context.Context, sessionID string, in GetAssetInput) (string, error) {
	id := strings.TrimSpace(in.AssetID)
	if id == "" || len(id) > 100 {
		return "", invalid("asset_id is required")
	}
	asset, err := t.api.GetAsset(ctx, sessionID, id)
	if err != nil {
		return "", err
	}
	if in.ResponseFormat == FormatJSON {
		return indentJSON(asset)
	}
	return "## Asset Details\n\n" + assetMarkdown(*asset), nil
}

func (t *Tools) analyzeRisk(ctx context.Context, sessionID string, in AnalyzeRiskInput) (string, error) {
	if in.HorizonMonths == 0 {
		in.HorizonMonths = 12
	}
	req := capital.RiskAnalysisRequest{AssetIDs: in.AssetIDs, HorizonMonths: in.HorizonMonths}
	if err := req.Validate(); err != nil {
		return "", err
	}
	resp, err := t.api.AnalyzeRisk(ctx, sessionID, req)
	if err != nil {
		return "", err
	}
	if in.ResponseFormat == FormatJSON {
		return indentJSON(resp)
	}
	return riskAnalysisMarkdown(resp), nil
}

func (t *Tools) optimizeInvestments(ctx context.Context, sessionID string, in OptimizeInvestmentsInput) (string, error) {
	if in.HorizonMonths == 0 {
		in.HorizonMonths = 12
	}
	req := capital.InvestmentOptimizationRequest{Candidates: in.Candidates, Budget: in.Budget, HorizonMonths: in.HorizonMonths}
	if err := req.Validate(); err != nil {
		return "", err
	}
	resp, err := t.api.OptimizeInvestments(ctx, sessionID, req)
	if err != nil {
		return "", err
	}
	if in.ResponseFormat == FormatJSON {
		return indentJSON(resp)
	}
	return investmentPlanMarkdown(resp), nil
}

func (t *Tools) sessionInfo(sessionID string) (string, error) {
	session, err := t.store.Get(sessionID)
	if errors.Is(err, errors.ErrSessionNotFound) {
		return fmt.Sprintf("**Error**: Session %s not found", logging.ShortID(sessionID)), nil
	}
	if err != nil {
		return "", err
	}
	return sessionInfoMarkdown(session.Info(t.store.Now())), nil
}

// decode is strict: unknown fields and bad formats are rejected before any call is made
func decode(input json.RawMessage, v any) error {
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid(err.Error())
	}

	var format ResponseFormat
	switch in := v.(type) {
	case *GetAssetsInput:
		format = in.ResponseFormat
	case *GetAssetInput:
		format = in.ResponseFormat
	case *AnalyzeRiskInput:
		format = in.ResponseFormat
	case *OptimizeInvestmentsInput:
		format = in.ResponseFormat
	}
	if format != "" && format != FormatMarkdown && format != FormatJSON {
		return invalid(fmt.Sprintf("response_format must be %q or %q", FormatMarkdown, FormatJSON))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidRequest, msg)
}

func indentJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode tool output")
	}
	return string(b), nil
}
