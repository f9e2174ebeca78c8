// Package scopes maps broker operations to the scopes a session must hold to run them.
package scopes

import (
	"slices"

	"github.com/jrsteele09/go-token-broker/internal/errors"
)

const (
	AssetsRead       = "assets:read"
	RiskAnalyze      = "risk:analyze"
	InvestmentsWrite = "investments:write"
)

// CapitalPlanning is the scope table for the capital planning tools
var CapitalPlanning = map[string][]string{
	"capital_get_assets":           {AssetsRead},
	"capital_get_asset":            {AssetsRead},
	"capital_analyze_risk":         {RiskAnalyze},
	"capital_optimize_investments": {InvestmentsWrite},
}

// Gate is an immutable operation -> required scopes table
type Gate struct {
	required map[string][]string
}

func NewGate(required map[string][]string) *Gate {
	g := &Gate{required: make(map[string][]string, len(required))}
	for op, scopes := range required {
		g.required[op] = slices.Clone(scopes)
	}
	return g
}

// Required returns the scopes an operation needs
func (g *Gate) Required(operation string) ([]string, bool) {
	scopes, ok := g.required[operation]
	return slices.Clone(scopes), ok
}

// Operations lists the operations the gate knows, sorted
func (g *Gate) Operations() []string {
	ops := make([]string, 0, len(g.required))
	for op := range g.required {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Check fails with *errors.AuthorizationError unless granted covers the operation's scopes.
// Operations missing from the table are denied.
func (g *Gate) Check(operation string, granted []string) error {
	required, ok := g.required[operation]
	if !ok {
		return &errors.AuthorizationError{Operation: operation, Granted: slices.Clone(granted)}
	}

	var missing []string
	for _, scope := range required {
		if !slices.Contains(granted, scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) > 0 {
		return &errors.AuthorizationError{
			Operation: operation,
			Missing:   missing,
			Granted:   slices.Clone(granted),
		}
	}
	return nil
}
