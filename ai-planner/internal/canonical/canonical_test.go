package canonical_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/canonical"
	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

func TestMarshalSortsKeysAtEveryDepth(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": map[string]interface{}{"z": true, "y": nil}}
	b := map[string]interface{}{"a": map[string]interface{}{"y": nil, "z": true}, "b": 2}

	ca, err := canonical.Marshal(a)
	require.NoError(t, err)
	cb, err := canonical.Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, string(ca), string(cb))
	assert.Equal(t, `{"a":{"y":null,"z":true},"b":2}`, string(ca))
}

func TestMarshalKeepsArraysAndNumbers(t *testing.T) {
	out, err := canonical.Marshal(map[string]interface{}{
		"list": []int{3, 2, 1},
		"num":  json.Number("123.45"),
		"html": "<a&b>",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<a&b>","list":[3,2,1],"num":123.45}`, string(out))
}

func plan() models.PlanRecord {
	return models.PlanRecord{
		Request: models.ResourceRequest{
			ResourceType: models.ResourceStorage,
			Requirements: map[string]float64{"size_gb": 500, "hours": 24},
		},
		Decision: models.Decision{
			ID:              "d-1",
			Status:          models.StatusApproved,
			Recommendations: []string{},
			Configuration: models.Configuration{
				ResourceType: models.ResourceStorage,
				Dimensions:   map[string]float64{"size_gb": 500, "hours": 24},
			},
		},
		Provider:  models.ProviderScore{Provider: "aws", Score: 0.8},
		Cost:      models.CostEstimate{Total: 10, Currency: "USD", Breakdown: map[string]float64{"storage": 10}},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPlanDigest(t *testing.T) {
	rec := plan()
	d1, err := canonical.PlanDigest(rec)
	require.NoError(t, err)
	assert.Len(t, d1, 64)

	rec.Digest = d1
	d2, err := canonical.PlanDigest(rec)
	require.NoError(t, err)
	assert.Equal(t, d1, d2, "digest ignores its own field")

	ok, err := canonical.VerifyPlan(rec)
	require.NoError(t, err)
	assert.True(t, ok)

	rec.Cost.Total = 11
	ok, err = canonical.VerifyPlan(rec)
	require.NoError(t, err)
	assert.False(t, ok)
}
