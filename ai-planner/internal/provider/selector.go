package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

// Scoring weights. They sum to 1 so every score lands in [0,1].
const (
	WeightRegion       = 0.5
	WeightResourceType = 0.3
	WeightCompliance   = 0.15
	WeightPreference   = 0.05
)

// Factor names surfaced in rationales.
const (
	FactorRegion       = "region match"
	FactorResourceType = "resource type support"
	FactorCompliance   = "compliance coverage"
	FactorPreference   = "provider preference"
	FactorTieBreak     = "tie-break by provider name"
)

var factorOrder = []string{FactorRegion, FactorResourceType, FactorCompliance, FactorPreference}

// Candidate is a provider with its per-factor weighted contributions.
type Candidate struct {
	Provider      string
	Score         float64
	Contributions map[string]float64
}

type Selector struct {
	caps []Capability
}

// NewSelector builds a selector over a fixed capability table. Selection is a
// pure function of the table and the request.
func NewSelector(caps []Capability) *Selector {
	return &Selector{caps: cloneCapabilities(caps)}
}

// Select never fails: with no good match it still returns the best candidate
// and a score reflecting the mismatch.
func (s *Selector) Select(req models.ResourceRequest) models.ProviderScore {
	ranked := s.Rank(req)
	if len(ranked) == 0 {
		return models.ProviderScore{
			Provider:       "",
			Score:          0,
			Rationale:      "no providers in capability catalog",
			DecisiveFactor: "",
		}
	}
	best := ranked[0]
	var runnerUp *Candidate
	if len(ranked) > 1 {
		runnerUp = &ranked[1]
	}
	factor := decisiveFactor(best, runnerUp)
	return models.ProviderScore{
		Provider:       best.Provider,
		Score:          roundScore(best.Score),
		Rationale:      rationale(req, best, runnerUp, factor),
		DecisiveFactor: factor,
	}
}

// Rank scores every provider, best first; ties go to the lexically smaller name.
func (s *Selector) Rank(req models.ResourceRequest) []Candidate {
	out := make([]Candidate, 0, len(s.caps))
	for _, c := range s.caps {
		contrib := map[string]float64{
			FactorRegion:       WeightRegion * regionFactor(c, req.Region),
			FactorResourceType: WeightResourceType * boolFactor(containsFold(c.ResourceTypes, string(req.ResourceType))),
			FactorCompliance:   WeightCompliance * complianceFactor(c, req.Compliance),
			FactorPreference:   WeightPreference * clamp01(c.Preference),
		}
		total := 0.0
		for _, f := range factorOrder {
			total += contrib[f]
		}
		out = append(out, Candidate{Provider: c.Name, Score: clamp01(total), Contributions: contrib})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}

func regionFactor(c Capability, region string) float64 {
	if strings.TrimSpace(region) == "" {
		return 1
	}
	return boolFactor(containsFold(c.Regions, region))
}

func complianceFactor(c Capability, required []string) float64 {
	if len(required) == 0 {
		return 1
	}
	met := 0
	for _, r := range required {
		if containsFold(c.Compliance, r) {
			met++
		}
	}
	return float64(met) / float64(len(required))
}

func decisiveFactor(best Candidate, runnerUp *Candidate) string {
	if runnerUp == nil {
		top, topVal := FactorTieBreak, 0.0
		for _, f := range factorOrder {
			if best.Contributions[f] > topVal {
				top, topVal = f, best.Contributions[f]
			}
		}
		return top
	}
	top, topLead := FactorTieBreak, 0.0
	for _, f := range factorOrder {
		lead := best.Contributions[f] - runnerUp.Contributions[f]
		if lead > topLead+1e-12 {
			top, topLead = f, lead
		}
	}
	return top
}

func rationale(req models.ResourceRequest, best Candidate, runnerUp *Candidate, factor string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "selected %s (score %.2f) on %s", best.Provider, best.Score, factor)
	if factor == FactorRegion && req.Region != "" {
		fmt.Fprintf(&b, " for region %q", req.Region)
	}
	if runnerUp != nil {
		fmt.Fprintf(&b, "; runner-up %s scored %.2f", runnerUp.Provider, runnerUp.Score)
	}
	if best.Contributions[FactorRegion] == 0 && req.Region != "" {
		fmt.Fprintf(&b, "; %s does not serve region %q", best.Provider, req.Region)
	}
	if best.Contributions[FactorResourceType] == 0 {
		fmt.Fprintf(&b, "; %s does not support resource type %q", best.Provider, req.ResourceType)
	}
	return b.String()
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

func boolFactor(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundScore(v float64) float64 {
	return clamp01(float64(int64(v*1e6+0.5)) / 1e6)
}
