package decision

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

type GuardDecision struct {
	Allowed  bool   `json:"allowed"`
	PolicyID string `json:"policyId"`
	Reason   string `json:"reason"`
}

// Guard applies operator policy to a resolved configuration. Implementations
// must be deterministic and must not perform I/O.
type Guard interface {
	Check(cfg models.Configuration) GuardDecision
}

// StaticGuard blocks regions and caps dimensions from static configuration.
type StaticGuard struct {
	DeniedRegions map[string]struct{}
	MaxDimensions map[string]float64
}

func NewStaticGuard(deniedRegions []string, maxDimensions map[string]float64) *StaticGuard {
	set := make(map[string]struct{})
	for _, r := range deniedRegions {
		set[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	limits := make(map[string]float64, len(maxDimensions))
	for k, v := range maxDimensions {
		limits[k] = v
	}
	return &StaticGuard{
		DeniedRegions: set,
		MaxDimensions: limits,
	}
}

func (g *StaticGuard) Check(cfg models.Configuration) GuardDecision {
	if _, ok := g.DeniedRegions[strings.ToLower(strings.TrimSpace(cfg.Region))]; ok && cfg.Region != "" {
		return GuardDecision{
			Allowed:  false,
			PolicyID: "policy-deny-region",
			Reason:   fmt.Sprintf("region %q blocked by policy", cfg.Region),
		}
	}
	keys := make([]string, 0, len(g.MaxDimensions))
	for k := range g.MaxDimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		limit := g.MaxDimensions[k]
		if limit > 0 && cfg.Dimensions[k] > limit {
			return GuardDecision{
				Allowed:  false,
				PolicyID: "policy-max-" + k,
				Reason:   fmt.Sprintf("%s %.2f exceeds policy limit %.2f", k, cfg.Dimensions[k], limit),
			}
		}
	}
	return GuardDecision{
		Allowed:  true,
		PolicyID: "policy-allow",
		Reason:   "approved",
	}
}
