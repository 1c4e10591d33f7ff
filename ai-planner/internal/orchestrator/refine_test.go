package orchestrator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/orchestrator"
)

func computeRecord(status models.DecisionStatus) models.PlanRecord {
	return models.PlanRecord{
		Request: models.ResourceRequest{
			ResourceType: models.ResourceCompute,
			Requirements: map[string]float64{"cpu": 2},
			Compliance:   []string{"gdpr"},
			Budget:       budget(100),
		},
		Decision: models.Decision{
			ID:     "d-7",
			Status: status,
			Reason: map[models.DecisionStatus]string{models.StatusDenied: "exceeds budget: estimated 120.00 USD > budget 100.00 USD"}[status],
			Configuration: models.Configuration{
				ResourceType: models.ResourceCompute,
				Dimensions:   map[string]float64{"cpu": 2, "memory": 1, "hours": 24},
				Defaulted:    []string{"hours", "memory"},
			},
			Recommendations: []string{orchestrator.RefineAutoscaling},
		},
		Provider: models.ProviderScore{Provider: "azure", Score: 0.3},
		Cost:     models.CostEstimate{Total: 25, Currency: "USD", Breakdown: map[string]float64{"compute": 25}},
		Digest:   "abc",
	}
}

func TestRefineDoesNotMutateInput(t *testing.T) {
	rec := computeRecord(models.StatusApproved)
	before := rec.Clone()

	out := orchestrator.Refine(rec)
	out.Decision.Recommendations[0] = "changed"
	out.Request.Requirements["cpu"] = 64

	assert.Equal(t, before, rec)
	assert.Nil(t, rec.Optimization)
}

func TestRefineKeepsStatusAndAddsAdvice(t *testing.T) {
	for _, status := range []models.DecisionStatus{models.StatusApproved, models.StatusDenied} {
		rec := computeRecord(status)
		out := orchestrator.Refine(rec)

		assert.Equal(t, status, out.Decision.Status)
		assert.Equal(t, rec.Decision.Reason, out.Decision.Reason)
		assert.Empty(t, out.Digest)
		require.NotNil(t, out.Optimization)
		assert.GreaterOrEqual(t, out.Optimization.Score, 0.0)
		assert.LessOrEqual(t, out.Optimization.Score, 1.0)

		recs := out.Optimization.Recommendations
		assert.Contains(t, recs, orchestrator.RefineSpot)
		assert.NotContains(t, recs, orchestrator.RefineAutoscaling, "already advised by the decision")
		assert.Contains(t, recs, "Review security settings for compliance: gdpr")
		assert.Contains(t, recs, "Provider match is weak (azure scored 0.30); consider relaxing region or compliance constraints")
		if status == models.StatusDenied {
			assert.Contains(t, recs, "Reduce requested capacity or raise the budget to at least 25.00 USD")
		}
	}
}

func TestRefineScore(t *testing.T) {
	rec := computeRecord(models.StatusApproved)
	// 0.5*0.3 + 0.3*(1-25/100) + 0.2*(1-2/3)
	assert.InDelta(t, 0.4417, orchestrator.Refine(rec).Optimization.Score, 1e-4)

	rec.Provider.Score = 1
	rec.Request.Budget = nil
	rec.Decision.Configuration.Defaulted = nil
	assert.Equal(t, 1.0, orchestrator.Refine(rec).Optimization.Score)

	rec.Provider.Score = 0
	rec.Request.Budget = budget(0)
	rec.Decision.Configuration.Dimensions = nil
	assert.Equal(t, 0.0, orchestrator.Refine(rec).Optimization.Score)
}

func TestRefineIsDeterministic(t *testing.T) {
	rec := computeRecord(models.StatusDenied)
	assert.Equal(t, orchestrator.Refine(rec), orchestrator.Refine(rec))
}

func TestRefineAlwaysAddsAdvice(t *testing.T) {
	cases := map[models.ResourceType]string{
		models.ResourceStorage: orchestrator.RefineLifecycle,
		models.ResourceNetwork: orchestrator.RefineEgress,
		"quantum":              orchestrator.RefineSecurity,
	}
	for typ, want := range cases {
		rec := models.PlanRecord{
			Request: models.ResourceRequest{ResourceType: typ},
			Decision: models.Decision{
				Status:          models.StatusApproved,
				Configuration:   models.Configuration{ResourceType: typ, Dimensions: map[string]float64{"size_gb": 10}},
				Recommendations: []string{},
			},
			Provider: models.ProviderScore{Provider: "aws", Score: 1},
			Cost:     models.CostEstimate{Total: 0.2, Currency: "USD"},
		}
		out := orchestrator.Refine(rec)
		require.NotNil(t, out.Optimization)
		assert.NotEmpty(t, out.Optimization.Recommendations, typ)
		assert.Contains(t, out.Optimization.Recommendations, want, typ)
		assert.Contains(t, out.Optimization.Recommendations, orchestrator.RefineSecurity, typ)
	}
}
