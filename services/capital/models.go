package capital

// Asset is one piece of infrastructure in a portfolio
type Asset struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Type              string  `json:"type"`
	InstallDate       string  `json:"install_date"`
	Location          string  `json:"location"`
	Condition         string  `json:"condition"`
	ReplacementCost   float64 `json:"replacement_cost"`
	ExpectedLifeYears int     `json:"expected_life_years"`
	CurrentAgeYears   int     `json:"current_age_years"`
}

type RiskAnalysisRequest struct {
	AssetIDs      []string `json:"asset_ids"`
	HorizonMonths int      `json:"horizon_months"`
}

type AssetRisk struct {
	AssetID              string  `json:"asset_id"`
	ProbabilityOfFailure float64 `json:"probability_of_failure"`
	ConsequenceScore     float64 `json:"consequence_score"`
	RiskScore            float64 `json:"risk_score"`
	ConditionAssessment  string  `json:"condition_assessment"`
}

type RiskAnalysisResponse struct {
	AnalysisID    string      `json:"analysis_id"`
	HorizonMonths int         `json:"horizon_months"`
	Risks         []AssetRisk `json:"risks"`
}

type InvestmentCandidate struct {
	AssetID               string  `json:"asset_id"`
	InterventionType      string  `json:"intervention_type"`
	Cost                  float64 `json:"cost"`
	ExpectedRiskReduction float64 `json:"expected_risk_reduction"`
}

type InvestmentOptimizationRequest struct {
	Candidates    []InvestmentCandidate `json:"candidates"`
	Budget        float64               `json:"budget"`
	HorizonMonths int                   `json:"horizon_months"`
}

type SelectedInvestment struct {
	AssetID               string  `json:"asset_id"`
	InterventionType      string  `json:"intervention_type"`
	Cost                  float64 `json:"cost"`
	ExpectedRiskReduction float64 `json:"expected_risk_reduction"`
	PriorityRank          int     `json:"priority_rank"`
}

type InvestmentOptimizationResponse struct {
	PlanID              string               `json:"plan_id"`
	TotalBudget         float64              `json:"total_budget"`
	BudgetUsed          float64              `json:"budget_used"`
	BudgetRemaining     float64              `json:"budget_remaining"`
	SelectedInvestments []SelectedInvestment `json:"selected_investments"`
	TotalRiskReduction  float64              `json:"total_risk_reduction"`
}

// Validate checks the request bounds the risk endpoint accepts
func (r RiskAnalysisRequest) Validate() error {
	if len(r.AssetIDs) == 0 || len(r.AssetIDs) > 100 {
		return errInvalid("asset_ids must hold between 1 and 100 ids")
	}
	if r.HorizonMonths < 1 || r.HorizonMonths > 120 {
		return errInvalid("horizon_months must be between 1 and 120")
	}
	return nil
}

func (r InvestmentOptimizationRequest) Validate() error {
	if len(r.Candidates) == 0 {
		return errInvalid("at least one candidate is required")
	}
	if r.Budget <= 0 {
		return errInvalid("budget must be positive")
	}
	if r.HorizonMonths < 1 || r.HorizonMonths > 120 {
		return errInvalid("horizon_months must be between 1 and 120")
	}
	for _, c := range r.Candidates {
		if c.ExpectedRiskReduction < 0 || c.ExpectedRiskReduction > 1 {
			return errInvalid("expected_risk_reduction must be between 0 and 1")
		}
	}
	return nil
}
