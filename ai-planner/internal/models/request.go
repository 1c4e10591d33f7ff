package models

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Validate performs the boundary checks for an incoming request. Unsupported
// resource types pass so the decision engine can deny them on the record.
func (r ResourceRequest) Validate() error {
	if strings.TrimSpace(string(r.ResourceType)) == "" {
		return &ValidationError{Field: "resourceType", Msg: "required"}
	}
	keys := make([]string, 0, len(r.Requirements))
	for k := range r.Requirements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := knownDimensions[k]; !ok {
			return &ValidationError{Field: "requirements." + k, Msg: "unknown requirement"}
		}
		if !validQuantity(r.Requirements[k]) {
			return &ValidationError{Field: "requirements." + k, Msg: "must be a finite non-negative number"}
		}
		if r.Requirements[k] > MaxRequirement {
			return &ValidationError{Field: "requirements." + k, Msg: "must not exceed " + strconv.FormatFloat(MaxRequirement, 'g', -1, 64)}
		}
	}
	for i, c := range r.Compliance {
		if strings.TrimSpace(c) == "" {
			return &ValidationError{Field: "compliance", Msg: "entry " + strconv.Itoa(i) + " is empty"}
		}
	}
	if r.Budget != nil && !validQuantity(*r.Budget) {
		return &ValidationError{Field: "budget", Msg: "must be a finite non-negative number"}
	}
	if r.Timeline != nil && *r.Timeline < 0 {
		return &ValidationError{Field: "timeline", Msg: "must not be negative"}
	}
	return nil
}

// MaxRequirement caps every requirement value. With unit prices capped by the
// rate card the largest estimate (three dimensions multiplied) stays finite.
const MaxRequirement = 1e9

func validQuantity(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Clone returns a deep copy so stored records never share maps or slices with callers.
func (r ResourceRequest) Clone() ResourceRequest {
	out := r
	out.Requirements = cloneFloats(r.Requirements)
	out.Compliance = cloneStrings(r.Compliance)
	if r.Budget != nil {
		b := *r.Budget
		out.Budget = &b
	}
	if r.Timeline != nil {
		t := *r.Timeline
		out.Timeline = &t
	}
	return out
}

func (c Configuration) Clone() Configuration {
	out := c
	out.Dimensions = cloneFloats(c.Dimensions)
	out.Compliance = cloneStrings(c.Compliance)
	out.Defaulted = cloneStrings(c.Defaulted)
	return out
}

func (d Decision) Clone() Decision {
	out := d
	out.Configuration = d.Configuration.Clone()
	out.Recommendations = cloneStrings(d.Recommendations)
	return out
}

func (e CostEstimate) Clone() CostEstimate {
	out := e
	out.Breakdown = cloneFloats(e.Breakdown)
	return out
}

func (p PlanRecord) Clone() PlanRecord {
	out := p
	out.Request = p.Request.Clone()
	out.Decision = p.Decision.Clone()
	out.Cost = p.Cost.Clone()
	if p.ParentKey != nil {
		k := *p.ParentKey
		out.ParentKey = &k
	}
	if p.Optimization != nil {
		opt := Optimization{
			Score:           p.Optimization.Score,
			Recommendations: cloneStrings(p.Optimization.Recommendations),
		}
		out.Optimization = &opt
	}
	return out
}

func cloneFloats(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
