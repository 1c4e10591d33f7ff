package orchestrator

import (
	"fmt"
	"math"
	"strings"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/decision"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

const (
	RefineSpot        = "Consider using spot instances to reduce costs"
	RefineAutoscaling = decision.RecommendAutoscaling
	RefineLifecycle   = "Move infrequently accessed data to a colder storage tier"
	RefineEgress      = "Cache or compress outbound traffic to reduce egress costs"
	RefineSecurity    = "Review security settings"
	weakMatchScore    = 0.5
)

// Optimization score weights.
const (
	weightProviderFit  = 0.5
	weightCostHeadroom = 0.3
	weightExplicitness = 0.2
)

// Refine returns an optimized copy of rec with at least one recommendation the
// decision did not already carry. The input is not modified and the decision
// status never changes. Digest is cleared because the copy differs
// from what was stored; it is set again when the copy is stored.
func Refine(rec models.PlanRecord) models.PlanRecord {
	out := rec.Clone()
	out.Digest = ""
	out.Optimization = &models.Optimization{
		Score:           optimizationScore(rec),
		Recommendations: refinements(rec),
	}
	return out
}

func refinements(rec models.PlanRecord) []string {
	seen := map[string]struct{}{}
	for _, r := range rec.Decision.Recommendations {
		seen[r] = struct{}{}
	}
	out := []string{}
	add := func(r string) {
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	switch rec.Decision.Configuration.ResourceType {
	case models.ResourceCompute:
		add(RefineSpot)
		add(RefineAutoscaling)
	case models.ResourceStorage:
		add(RefineLifecycle)
	case models.ResourceNetwork:
		add(RefineEgress)
	}
	if len(rec.Request.Compliance) > 0 {
		add(RefineSecurity + " for compliance: " + strings.Join(rec.Request.Compliance, ", "))
	} else {
		add(RefineSecurity)
	}
	if rec.Provider.Score < weakMatchScore {
		add(fmt.Sprintf("Provider match is weak (%s scored %.2f); consider relaxing region or compliance constraints",
			rec.Provider.Provider, rec.Provider.Score))
	}
	if rec.Decision.Status == models.StatusDenied && strings.HasPrefix(rec.Decision.Reason, decision.ReasonExceedsBudget) {
		add(fmt.Sprintf("Reduce requested capacity or raise the budget to at least %.2f %s",
			rec.Cost.Total, rec.Cost.Currency))
	}
	return out
}

// optimizationScore blends provider fit, budget headroom and how much of the
// configuration the caller chose explicitly. Always within [0,1].
func optimizationScore(rec models.PlanRecord) float64 {
	score := weightProviderFit*clamp01(rec.Provider.Score) +
		weightCostHeadroom*costHeadroom(rec) +
		weightExplicitness*explicitness(rec.Decision.Configuration)
	return math.Round(clamp01(score)*1e4) / 1e4
}

func costHeadroom(rec models.PlanRecord) float64 {
	if rec.Request.Budget == nil {
		return 1
	}
	budget := *rec.Request.Budget
	if budget <= 0 {
		if rec.Cost.Total <= 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - rec.Cost.Total/budget)
}

func explicitness(cfg models.Configuration) float64 {
	if len(cfg.Dimensions) == 0 {
		return 0
	}
	return clamp01(1 - float64(len(cfg.Defaulted))/float64(len(cfg.Dimensions)))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
