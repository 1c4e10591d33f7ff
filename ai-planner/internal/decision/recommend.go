package decision

import (
	"strings"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

const (
	RecommendAutoscaling = "Enable auto-scaling for better resource utilization"
	RecommendSpot        = "Consider using spot instances for short-lived workloads"
	RecommendReserved    = "Consider reserved capacity for long-running workloads"
	RecommendTiering     = "Enable lifecycle tiering for infrequently accessed data"
	RecommendCDN         = "Place a CDN in front of high-egress traffic"
	RecommendSpendAlerts = "Estimated cost is within 20% of the budget; configure spend alerts"
)

const (
	autoscaleMinCPU     = 4
	spotMaxHours        = 72
	reservedMinHours    = 24 * 30
	tieringMinSizeGB    = 1000
	cdnMinEgressGB      = 1000
	budgetAlertFraction = 0.8
)

// recommend returns advisory notes in a fixed order. They never influence the
// decision status.
func recommend(req models.ResourceRequest, cfg models.Configuration, estimate models.CostEstimate) []string {
	out := []string{}
	dims := cfg.Dimensions
	switch cfg.ResourceType {
	case models.ResourceCompute:
		if dims[models.DimCPU] >= autoscaleMinCPU {
			out = append(out, RecommendAutoscaling)
		}
		if dims[models.DimHours] <= spotMaxHours {
			out = append(out, RecommendSpot)
		}
		if dims[models.DimHours] >= reservedMinHours {
			out = append(out, RecommendReserved)
		}
	case models.ResourceStorage:
		if dims[models.DimSizeGB] >= tieringMinSizeGB {
			out = append(out, RecommendTiering)
		}
	case models.ResourceNetwork:
		if dims[models.DimEgressGB] >= cdnMinEgressGB {
			out = append(out, RecommendCDN)
		}
	}
	if req.Budget != nil && *req.Budget > 0 && estimate.Total >= budgetAlertFraction*(*req.Budget) {
		out = append(out, RecommendSpendAlerts)
	}
	if len(cfg.Defaulted) > 0 {
		out = append(out, "Review defaulted requirements: "+strings.Join(cfg.Defaulted, ", "))
	}
	return out
}
