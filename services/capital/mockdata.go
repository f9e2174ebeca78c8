package capital

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/jrsteele09/go-token-broker/internal/errors"
)

const currentYear = 2025

var assetTypes = []string{"water_main", "sewer_line", "pump_station", "treatment_plant", "valve"}

var expectedLife = map[string]int{
	"water_main":      75,
	"sewer_line":      80,
	"pump_station":    40,
	"treatment_plant": 50,
	"valve":           50,
}

var baseCost = map[string]float64{
	"water_main":      300000,
	"sewer_line":      350000,
	"pump_station":    800000,
	"treatment_plant": 2000000,
	"valve":           50000,
}

var conditionProbability = map[string]float64{
	"excellent": 0.05,
	"good":      0.15,
	"fair":      0.35,
	"poor":      0.65,
	"critical":  0.90,
}

func errInvalid(msg string) error {
	return errors.Wrapf(errors.ErrInvalidRequest, "%s", msg)
}

// MockAssets builds the fixed portfolio of 30 assets. The seed keeps ids and values stable across runs.
func MockAssets() []Asset {
	rng := rand.New(rand.NewPCG(2025, 30))
	pick := func(options ...string) string { return options[rng.IntN(len(options))] }

	assets := make([]Asset, 0, 30)
	for i := 1; i <= 30; i++ {
		assetType := pick(assetTypes...)
		installYear := 1975 + rng.IntN(41)
		age := currentYear - installYear

		var condition string
		switch {
		case age < 10:
			condition = pick("excellent", "good")
		case age < 20:
			condition = pick("good", "fair")
		case age < 35:
			condition = pick("fair", "poor")
		default:
			condition = pick("poor", "critical")
		}

		assets = append(assets, Asset{
			ID:                fmt.Sprintf("asset-%03d", i),
			Name:              fmt.Sprintf("%s - Section %d", titleCase(assetType), i),
			Type:              assetType,
			InstallDate:       fmt.Sprintf("%d-%02d-%02d", installYear, 1+rng.IntN(12), 1+rng.IntN(28)),
			Location:          fmt.Sprintf("District %d", 1+rng.IntN(10)),
			Condition:         condition,
			ReplacementCost:   round(baseCost[assetType]*(0.8+rng.Float64()*0.7), 2),
			ExpectedLifeYears: expectedLife[assetType],
			CurrentAgeYears:   age,
		})
	}
	return assets
}

// CalculateRisk scores an asset from its condition, its age against expected life and the horizon
func CalculateRisk(asset Asset, horizonMonths int) AssetRisk {
	base, ok := conditionProbability[asset.Condition]
	if !ok {
		base = 0.5
	}

	ageFactor := float64(asset.CurrentAgeYears) / float64(asset.ExpectedLifeYears)
	if ageFactor > 1 {
		ageFactor = 1 + (ageFactor-1)*0.5
	}
	horizonFactor := math.Sqrt(float64(horizonMonths) / 12)

	probability := math.Min(base*ageFactor*horizonFactor, 0.99)
	consequence := math.Min(asset.ReplacementCost/500000*5, 10)

	return AssetRisk{
		AssetID:              asset.ID,
		ProbabilityOfFailure: round(probability, 4),
		ConsequenceScore:     round(consequence, 2),
		RiskScore:            round(probability*consequence, 2),
		ConditionAssessment:  asset.Condition,
	}
}

// Optimize greedily picks candidates by risk reduction per unit cost until the budget runs out
func Optimize(candidates []InvestmentCandidate, budget float64) InvestmentOptimizationResponse {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b InvestmentCandidate) int {
		return cmp.Compare(roi(b), roi(a))
	})

	resp := InvestmentOptimizationResponse{TotalBudget: budget, SelectedInvestments: []SelectedInvestment{}}
	var used, reduction float64
	for _, c := range ranked {
		if used+c.Cost > budget {
			continue
		}
		used += c.Cost
		reduction += c.ExpectedRiskReduction
		resp.SelectedInvestments = append(resp.SelectedInvestments, SelectedInvestment{
			AssetID:               c.AssetID,
			InterventionType:      c.InterventionType,
			Cost:                  c.Cost,
			ExpectedRiskReduction: c.ExpectedRiskReduction,
			PriorityRank:          len(resp.SelectedInvestments) + 1,
		})
	}
	resp.BudgetUsed = round(used, 2)
	resp.BudgetRemaining = round(budget-used, 2)
	resp.TotalRiskReduction = round(reduction, 4)
	return resp
}

func roi(c InvestmentCandidate) float64 {
	if c.Cost <= 0 {
		return 0
	}
	return c.ExpectedRiskReduction / c.Cost
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
