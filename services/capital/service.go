// Package capital is the mock capital planning API the broker's tools call downstream.
package capital

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-broker/broker/scopes"
	"github.com/jrsteele09/go-token-broker/internal/config"
	"github.com/jrsteele09/go-token-broker/internal/web"
	"github.com/jrsteele09/go-token-broker/services/resourceauth"
	"github.com/rs/zerolog/log"
)

const (
	RouteHealth      = "/health"
	RouteAssets      = "/assets"
	RouteAsset       = "/assets/{id}"
	RouteRiskAnalyze = "/risk/analyze"
	RouteOptimize    = "/investments/optimize"
)

// Config is what the services need from the environment
type Config interface {
	config.EnvConfig
	config.CorsConfig
	config.ServicesConfig
}

// slowDelays outlast a default access token so long calls exercise the heartbeat
var slowDelays = map[string]time.Duration{
	RouteAssets:      2 * time.Second,
	RouteAsset:       1 * time.Second,
	RouteRiskAnalyze: 5 * time.Second,
	RouteOptimize:    8 * time.Second,
}

type Service struct {
	router *web.Router
	auth   *resourceauth.Authenticator
	assets []Asset
	byID   map[string]Asset
	delays map[string]time.Duration
}

func New(cfg Config, auth *resourceauth.Authenticator) *Service {
	assets := MockAssets()
	s := &Service{
		router: web.NewRouter(cfg.GetEnv(), cfg),
		auth:   auth,
		assets: assets,
		byID:   make(map[string]Asset, len(assets)),
		delays: map[string]time.Duration{},
	}
	for _, a := range assets {
		s.byID[a.ID] = a
	}
	if cfg.GetSimulateLatency() {
		s.delays = slowDelays
	}
	s.initRoutes()
	s.router.LogRoutes()
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Service) initRoutes() {
	api := s.router.APIMiddleware()
	scoped := func(scope string) []web.Middleware {
		return s.router.APIMiddleware(s.auth.RequireScope(scope))
	}

	s.router.RegisterRouteHandler("GET "+RouteHealth, web.ChainMiddleware(s.Health(), api...))
	s.router.RegisterRouteHandler("GET "+RouteAssets, web.ChainMiddleware(s.GetAssets(), scoped(scopes.AssetsRead)...))
	s.router.RegisterRouteHandler("GET "+RouteAsset, web.ChainMiddleware(s.GetAsset(), scoped(scopes.AssetsRead)...))
	s.router.RegisterRouteHandler("POST "+RouteRiskAnalyze, web.ChainMiddleware(s.AnalyzeRisk(), scoped(scopes.RiskAnalyze)...))
	s.router.RegisterRouteHandler("POST "+RouteOptimize, web.ChainMiddleware(s.OptimizeInvestments(), scoped(scopes.InvestmentsWrite)...))
}

func (s *Service) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		web.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "capital-planning-services",
		})
	}
}

// GetAssets lists a portfolio. Every portfolio id returns the same mock portfolio.
func (s *Service) GetAssets() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logCall(r)
		if !s.wait(r.Context(), RouteAssets) {
			return
		}
		web.WriteJSON(w, http.StatusOK, s.assets)
	}
}

func (s *Service) GetAsset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logCall(r)
		if !s.wait(r.Context(), RouteAsset) {
			return
		}
		id := r.PathValue("id")
		asset, ok := s.byID[id]
		if !ok {
			web.WriteDetail(w, http.StatusNotFound, fmt.Sprintf("Asset %s not found", id))
			return
		}
		web.WriteJSON(w, http.StatusOK, asset)
	}
}

func (s *Service) AnalyzeRisk() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logCall(r)
		var req RiskAnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			web.WriteDetail(w, http.StatusUnprocessableEntity, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			web.WriteDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if !s.wait(r.Context(), RouteRiskAnalyze) {
			return
		}

		resp := RiskAnalysisResponse{
			AnalysisID:    "risk-analysis-" + shortID(),
			HorizonMonths: req.HorizonMonths,
			Risks:         []AssetRisk{},
		}
		for _, id := range req.AssetIDs {
			if asset, ok := s.byID[id]; ok {
				resp.Risks = append(resp.Risks, CalculateRisk(asset, req.HorizonMonths))
			}
		}
		web.WriteJSON(w, http.StatusOK, resp)
	}
}

func (s *Service) OptimizeInvestments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logCall(r)
		var req InvestmentOptimizationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			web.WriteDetail(w, http.StatusUnprocessableEntity, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			web.WriteDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if !s.wait(r.Context(), RouteOptimize) {
			return
		}

		resp := Optimize(req.Candidates, req.Budget)
		resp.PlanID = "investment-plan-" + shortID()
		log.Info().
			Int("selected", len(resp.SelectedInvestments)).
			Float64("budget_used", resp.BudgetUsed).
			Msg("investment plan optimized")
		web.WriteJSON(w, http.StatusOK, resp)
	}
}

func (s *Service) logCall(r *http.Request) {
	if claims, ok := resourceauth.ClaimsFromContext(r.Context()); ok {
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).Str("sub", claims.Subject).Msg("service call")
	}
}

// wait applies the simulated latency for route and reports false if the caller went away
func (s *Service) wait(ctx context.Context, route string) bool {
	d := s.delays[route]
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}
