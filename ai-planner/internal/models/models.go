package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ResourceType string

const (
	ResourceCompute ResourceType = "compute"
	ResourceStorage ResourceType = "storage"
	ResourceNetwork ResourceType = "network"
)

// Supported reports whether the planner knows how to cost and provision t.
func (t ResourceType) Supported() bool {
	switch t {
	case ResourceCompute, ResourceStorage, ResourceNetwork:
		return true
	}
	return false
}

// Requirement keys accepted in ResourceRequest.Requirements.
const (
	DimCPU           = "cpu"
	DimMemory        = "memory"
	DimHours         = "hours"
	DimSizeGB        = "size_gb"
	DimBandwidthGbps = "bandwidth_gbps"
	DimEgressGB      = "egress_gb"
)

var knownDimensions = map[string]struct{}{
	DimCPU:           {},
	DimMemory:        {},
	DimHours:         {},
	DimSizeGB:        {},
	DimBandwidthGbps: {},
	DimEgressGB:      {},
}

type DecisionStatus string

const (
	StatusApproved DecisionStatus = "approved"
	StatusDenied   DecisionStatus = "denied"
)

type ResourceRequest struct {
	ResourceType ResourceType       `json:"resourceType"`
	Requirements map[string]float64 `json:"requirements,omitempty"`
	Region       string             `json:"region,omitempty"`
	Compliance   []string           `json:"compliance,omitempty"`
	Budget       *float64           `json:"budget,omitempty"`
	Timeline     *time.Duration     `json:"timeline,omitempty"`
}

// Configuration is a request with every dimension resolved.
type Configuration struct {
	ResourceType ResourceType       `json:"resourceType"`
	Region       string             `json:"region,omitempty"`
	Dimensions   map[string]float64 `json:"dimensions"`
	Compliance   []string           `json:"compliance,omitempty"`
	Defaulted    []string           `json:"defaulted,omitempty"`
}

type ProviderScore struct {
	Provider       string  `json:"provider"`
	Score          float64 `json:"score"`
	Rationale      string  `json:"rationale"`
	DecisiveFactor string  `json:"decisiveFactor"`
}

type CostEstimate struct {
	Total     float64            `json:"total"`
	Currency  string             `json:"currency"`
	Breakdown map[string]float64 `json:"breakdown"`
}

type Decision struct {
	ID              string         `json:"id"`
	Configuration   Configuration  `json:"configuration"`
	Status          DecisionStatus `json:"status"`
	Reason          string         `json:"reason,omitempty"`
	Recommendations []string       `json:"recommendations"`
}

type Optimization struct {
	Score           float64  `json:"score"`
	Recommendations []string `json:"recommendations"`
}

type PlanRecord struct {
	Request      ResourceRequest `json:"request"`
	Decision     Decision        `json:"decision"`
	Provider     ProviderScore   `json:"provider"`
	Cost         CostEstimate    `json:"cost"`
	CreatedAt    time.Time       `json:"createdAt"`
	Digest       string          `json:"digest,omitempty"`
	ParentKey    *ContextKey     `json:"parentKey,omitempty"`
	Optimization *Optimization   `json:"optimization,omitempty"`
}

// ContextKey identifies a stored PlanRecord. Larger keys were stored later.
type ContextKey uint64

const contextKeyPrefix = "plan-"

func (k ContextKey) String() string {
	return contextKeyPrefix + strconv.FormatUint(uint64(k), 10)
}

func (k ContextKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ContextKey) UnmarshalText(b []byte) error {
	parsed, err := ParseContextKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseContextKey accepts both "plan-42" and "42".
func ParseContextKey(s string) (ContextKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), contextKeyPrefix)
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid context key %q", s)
	}
	return ContextKey(n), nil
}

type StoredPlan struct {
	Key    ContextKey `json:"key"`
	Record PlanRecord `json:"record"`
}

type PlanResult struct {
	Key    ContextKey `json:"key"`
	Record PlanRecord `json:"record"`
}
