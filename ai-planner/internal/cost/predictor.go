package cost

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

// Predictor estimates the monetary cost of a resolved configuration. Implementations
// must be pure: same configuration in, same estimate out, no stored state.
type Predictor interface {
	Estimate(cfg models.Configuration) models.CostEstimate
}

// UnknownTypeComponent marks the breakdown of an estimate for a resource type
// the rate card does not price.
const UnknownTypeComponent = "unknown type"

// Breakdown component names.
const (
	ComponentCompute        = "compute"
	ComponentStorage        = "storage"
	ComponentBandwidth      = "bandwidth"
	ComponentEgress         = "egress"
	ComponentAdditionalFees = "additional_fees"
)

// MaxUnitPrice caps every rate card price so that estimates for requests within
// models.MaxRequirement stay finite.
const MaxUnitPrice = 1e6

// RateCard holds the unit prices used by RateCardPredictor.
type RateCard struct {
	Currency string `yaml:"currency"`
	// ComputeUnit is charged per cpu * memory(GB) * hour.
	ComputeUnit float64 `yaml:"compute_unit"`
	// StoragePerGB is a flat charge per provisioned GB.
	StoragePerGB       float64 `yaml:"storage_per_gb"`
	BandwidthGbpsHour  float64 `yaml:"bandwidth_gbps_hour"`
	EgressPerGB        float64 `yaml:"egress_per_gb"`
	AdditionalFlatFees float64 `yaml:"additional_flat_fees"`
}

func DefaultRateCard() RateCard {
	return RateCard{
		Currency:          "USD",
		ComputeUnit:       0.05,
		StoragePerGB:      0.02,
		BandwidthGbpsHour: 0.01,
		EgressPerGB:       0.09,
	}
}

// LoadRateCard reads a YAML rate card, starting from the defaults so a file only
// needs to list the prices it overrides.
func LoadRateCard(path string) (RateCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RateCard{}, fmt.Errorf("reading rate card: %w", err)
	}
	card := DefaultRateCard()
	if err := yaml.Unmarshal(data, &card); err != nil {
		return RateCard{}, fmt.Errorf("parsing rate card: %w", err)
	}
	if err := card.Validate(); err != nil {
		return RateCard{}, err
	}
	return card, nil
}

func (c RateCard) Validate() error {
	if c.Currency == "" {
		return fmt.Errorf("rate card currency required")
	}
	prices := map[string]float64{
		"compute_unit":         c.ComputeUnit,
		"storage_per_gb":       c.StoragePerGB,
		"bandwidth_gbps_hour":  c.BandwidthGbpsHour,
		"egress_per_gb":        c.EgressPerGB,
		"additional_flat_fees": c.AdditionalFlatFees,
	}
	for name, v := range prices {
		if v < 0 {
			return fmt.Errorf("rate card %s must not be negative", name)
		}
		if v != v || v > MaxUnitPrice {
			return fmt.Errorf("rate card %s must not exceed %g", name, MaxUnitPrice)
		}
	}
	return nil
}

type RateCardPredictor struct {
	card RateCard
}

func NewRateCardPredictor(card RateCard) *RateCardPredictor {
	if card.Currency == "" {
		card.Currency = "USD"
	}
	return &RateCardPredictor{card: card}
}

func (p *RateCardPredictor) Estimate(cfg models.Configuration) models.CostEstimate {
	dim := func(name string) float64 {
		v := cfg.Dimensions[name]
		if v < 0 || v != v {
			return 0
		}
		return v
	}

	breakdown := map[string]float64{}
	switch cfg.ResourceType {
	case models.ResourceCompute:
		breakdown[ComponentCompute] = dim(models.DimCPU) * dim(models.DimMemory) * dim(models.DimHours) * p.card.ComputeUnit
		breakdown[ComponentAdditionalFees] = p.card.AdditionalFlatFees
	case models.ResourceStorage:
		breakdown[ComponentStorage] = dim(models.DimSizeGB) * p.card.StoragePerGB
		breakdown[ComponentAdditionalFees] = p.card.AdditionalFlatFees
	case models.ResourceNetwork:
		breakdown[ComponentBandwidth] = dim(models.DimBandwidthGbps) * dim(models.DimHours) * p.card.BandwidthGbpsHour
		breakdown[ComponentEgress] = dim(models.DimEgressGB) * p.card.EgressPerGB
		breakdown[ComponentAdditionalFees] = p.card.AdditionalFlatFees
	default:
		breakdown[UnknownTypeComponent] = 0
	}

	return models.CostEstimate{
		Total:     sum(breakdown),
		Currency:  p.card.Currency,
		Breakdown: breakdown,
	}
}

// sum adds components in a fixed order so the total is reproducible bit-for-bit.
func sum(breakdown map[string]float64) float64 {
	order := []string{
		ComponentCompute,
		ComponentStorage,
		ComponentBandwidth,
		ComponentEgress,
		ComponentAdditionalFees,
		UnknownTypeComponent,
	}
	total := 0.0
	for _, k := range order {
		total += breakdown[k]
	}
	return total
}
