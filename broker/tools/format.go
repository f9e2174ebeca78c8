package tools

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/jrsteele09/go-token-broker/broker/sessions"
	"github.com/jrsteele09/go-token-broker/internal/errors"
	"github.com/jrsteele09/go-token-broker/services/capital"
)

// ErrorText turns a tool failure into the message shown to the user
func ErrorText(err error) string {
	var (
		authzErr *errors.AuthorizationError
		apiErr   *errors.APIError
	)
	switch {
	case errors.Is(err, errors.ErrAuthentication):
		return fmt.Sprintf("**Authentication Error**: %v\n\nThe session may have expired. Please re-authenticate.", err)
	case errors.As(err, &authzErr):
		return fmt.Sprintf("**Authorization Error**: %v\n\nThe user does not have permission for this operation.", authzErr)
	case errors.As(err, &apiErr) && apiErr.StatusCode == 404:
		return fmt.Sprintf("**Not Found**: %v\n\nPlease check that the resource ID is correct.", apiErr)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("**API Error**: %v", apiErr)
	}
	return fmt.Sprintf("**Unexpected Error**: %v", err)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// money renders v with thousands separators and two decimals, e.g. 1,234.50
func money(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	whole, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

func assetMarkdown(a capital.Asset) string {
	return fmt.Sprintf(`### %s
- **ID**: %s
- **Type**: %s
- **Location**: %s
- **Condition**: %s
- **Install Date**: %s
- **Age**: %d years (expected life: %d years)
- **Replacement Cost**: %s
`, a.Name, a.ID, titleCase(a.Type), a.Location, titleCase(a.Condition), a.InstallDate,
		a.CurrentAgeYears, a.ExpectedLifeYears, money(a.ReplacementCost))
}

func assetsMarkdown(assets []capital.Asset) string {
	if len(assets) == 0 {
		return "No assets found."
	}
	lines := []string{fmt.Sprintf("## Assets (%d total)\n", len(assets))}
	for _, a := range assets {
		lines = append(lines, assetMarkdown(a))
	}
	return strings.Join(lines, "\n")
}

func riskAnalysisMarkdown(resp *capital.RiskAnalysisResponse) string {
	lines := []string{
		"## Risk Analysis: " + resp.AnalysisID,
		fmt.Sprintf("**Horizon**: %d months\n", resp.HorizonMonths),
		fmt.Sprintf("### Risk Assessments (%d assets)\n", len(resp.Risks)),
	}

	risks := slices.Clone(resp.Risks)
	slices.SortStableFunc(risks, func(a, b capital.AssetRisk) int {
		return cmp.Compare(b.RiskScore, a.RiskScore)
	})
	for _, r := range risks {
		lines = append(lines, fmt.Sprintf(`### Asset: %s
- **Risk Score**: %.2f/10.0
- **Probability of Failure**: %.1f%%
- **Consequence Score**: %.2f/10.0
- **Condition**: %s
`, r.AssetID, r.RiskScore, r.ProbabilityOfFailure*100, r.ConsequenceScore, titleCase(r.ConditionAssessment)))
	}
	return strings.Join(lines, "\n")
}

func investmentPlanMarkdown(resp *capital.InvestmentOptimizationResponse) string {
	lines := []string{
		"## Investment Plan: " + resp.PlanID,
		"- **Total Budget**: " + money(resp.TotalBudget),
		"- **Budget Used**: " + money(resp.BudgetUsed),
		"- **Budget Remaining**: " + money(resp.BudgetRemaining),
		fmt.Sprintf("- **Total Risk Reduction**: %.2f%%\n", resp.TotalRiskReduction*100),
		fmt.Sprintf("### Selected Investments (%d items)\n", len(resp.SelectedInvestments)),
	}
	for _, inv := range resp.SelectedInvestments {
		lines = append(lines, fmt.Sprintf(`#### Priority %d: %s
- **Intervention**: %s
- **Cost**: %s
- **Expected Risk Reduction**: %.1f%%
`, inv.PriorityRank, inv.AssetID, titleCase(inv.InterventionType), money(inv.Cost), inv.ExpectedRiskReduction*100))
	}
	return strings.Join(lines, "\n")
}

func sessionInfoMarkdown(info sessions.Info) string {
	lastRefreshed := "Never"
	if info.LastRefreshedAt != nil {
		lastRefreshed = info.LastRefreshedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return fmt.Sprintf(`## Session Information

- **Session ID**: %s
- **User ID**: %s
- **Scopes**: %s
- **Access Token Expires In**: %d seconds
- **Refresh Token Expires In**: %d seconds
- **Token Refresh Count**: %d
- **Session Created**: %s
- **Last Refreshed**: %s
`, info.SessionID, info.UserID, strings.Join(info.Scopes, ", "),
		info.AccessTokenExpiresInSeconds, info.RefreshTokenExpiresInSeconds, info.RefreshCount,
		info.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), lastRefreshed)
}
