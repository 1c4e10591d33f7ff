package decision

import (
	"sort"

	"github.com/gabrielvfonseca/self-driving/ai-planner/internal/models"
)

// DefaultsTable lists the value used for each dimension a request leaves unset.
// Every key filled from here is reported in Configuration.Defaulted.
//
//	compute: cpu=1 memory=1 hours=24
//	storage: size_gb=100 hours=24
//	network: bandwidth_gbps=1 hours=24 egress_gb=0
var DefaultsTable = map[models.ResourceType]map[string]float64{
	models.ResourceCompute: {
		models.DimCPU:    1,
		models.DimMemory: 1,
		models.DimHours:  24,
	},
	models.ResourceStorage: {
		models.DimSizeGB: 100,
		models.DimHours:  24,
	},
	models.ResourceNetwork: {
		models.DimBandwidthGbps: 1,
		models.DimHours:         24,
		models.DimEgressGB:      0,
	},
}

// ResolveConfiguration fills unset dimensions. When hours is unset and the
// request carries a timeline, the timeline length is used instead of the table.
func ResolveConfiguration(req models.ResourceRequest) models.Configuration {
	dims := make(map[string]float64, len(req.Requirements))
	for k, v := range req.Requirements {
		dims[k] = v
	}
	cfg := models.Configuration{
		ResourceType: req.ResourceType,
		Region:       req.Region,
		Dimensions:   dims,
		Compliance:   append([]string(nil), req.Compliance...),
	}

	defaults, ok := DefaultsTable[req.ResourceType]
	if !ok {
		return cfg
	}
	if _, set := dims[models.DimHours]; !set && req.Timeline != nil {
		if _, wantsHours := defaults[models.DimHours]; wantsHours {
			dims[models.DimHours] = req.Timeline.Hours()
		}
	}
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, set := dims[k]; set {
			continue
		}
		dims[k] = defaults[k]
		cfg.Defaulted = append(cfg.Defaulted, k)
	}
	return cfg
}
