package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Capability describes what a provider can serve. Regions, resource types and
// compliance certifications are matched case-insensitively.
type Capability struct {
	Name          string   `yaml:"name" json:"name"`
	Regions       []string `yaml:"regions" json:"regions"`
	ResourceTypes []string `yaml:"resource_types" json:"resourceTypes"`
	Compliance    []string `yaml:"compliance" json:"compliance"`
	// Preference in [0,1] is a static bias used after the hard factors.
	Preference float64 `yaml:"preference" json:"preference"`
}

// Catalog supplies the capability table consulted by the selector.
type Catalog interface {
	Load(ctx context.Context) ([]Capability, error)
}

type StaticCatalog struct {
	caps []Capability
}

func NewStaticCatalog(caps []Capability) *StaticCatalog {
	return &StaticCatalog{caps: cloneCapabilities(caps)}
}

func (c *StaticCatalog) Load(ctx context.Context) ([]Capability, error) {
	return cloneCapabilities(c.caps), nil
}

// DefaultCapabilities is the built-in table. Without a region hint aws wins on
// preference; europe and asia resolve to gcp.
func DefaultCapabilities() []Capability {
	allTypes := []string{"compute", "storage", "network"}
	return []Capability{
		{
			Name:          "aws",
			Regions:       []string{"us-east", "us-west", "north-america", "south-america"},
			ResourceTypes: allTypes,
			Compliance:    []string{"soc2", "hipaa", "pci-dss", "fedramp"},
			Preference:    1.0,
		},
		{
			Name:          "azure",
			Regions:       []string{"europe", "us-east", "middle-east"},
			ResourceTypes: allTypes,
			Compliance:    []string{"soc2", "hipaa", "gdpr", "fedramp", "iso27001"},
			Preference:    0.6,
		},
		{
			Name:          "gcp",
			Regions:       []string{"europe", "asia", "us-central"},
			ResourceTypes: allTypes,
			Compliance:    []string{"soc2", "hipaa", "gdpr", "iso27001"},
			Preference:    0.8,
		},
	}
}

type catalogFile struct {
	Providers []Capability `yaml:"providers"`
}

// FileCatalog reads the capability table from a YAML file on every Load so
// operators can edit it without a restart.
type FileCatalog struct {
	path string
}

func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

func (c *FileCatalog) Load(ctx context.Context) ([]Capability, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("reading capability catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing capability catalog: %w", err)
	}
	if err := ValidateCapabilities(file.Providers); err != nil {
		return nil, err
	}
	return file.Providers, nil
}

func ValidateCapabilities(caps []Capability) error {
	if len(caps) == 0 {
		return fmt.Errorf("capability catalog has no providers")
	}
	seen := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return fmt.Errorf("capability catalog entry missing name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate provider %q in capability catalog", c.Name)
		}
		seen[name] = struct{}{}
		if c.Preference < 0 || c.Preference > 1 {
			return fmt.Errorf("provider %q preference %.2f outside [0,1]", c.Name, c.Preference)
		}
	}
	return nil
}

func cloneCapabilities(in []Capability) []Capability {
	out := make([]Capability, len(in))
	for i, c := range in {
		out[i] = Capability{
			Name:          c.Name,
			Regions:       append([]string(nil), c.Regions...),
			ResourceTypes: append([]string(nil), c.ResourceTypes...),
			Compliance:    append([]string(nil), c.Compliance...),
			Preference:    c.Preference,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
