package pipeline

import (
	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/cost"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/rules"
	"github.com/quobo-ops/aecos/internal/validation"
)

// CostEntry is a pricing row contributed by a domain plugin.
type CostEntry struct {
	Material            string
	IFCClass            string
	MaterialCostPerUnit float64
	LaborCostPerUnit    float64
	UnitType            string
	Source              string
}

// Plugin contributes domain data to the core engines: extra compliance
// rules, parser keyword patterns, pricing rows, and validation rules.
type Plugin interface {
	Name() string
	IFCClasses() []string
	ComplianceRules() []rules.Rule
	ParserPatterns() map[string]string
	CostEntries() []CostEntry
	ValidationRules() []validation.Rule
}

// DomainRegistry is the owned registry of builders and domain plugins. It
// is held by the facade; plugins register into this value, never into
// package state.
type DomainRegistry struct {
	builders map[string]Builder
	plugins  []Plugin
}

// NewDomainRegistry creates a registry with the built-in builders.
func NewDomainRegistry() *DomainRegistry {
	r := &DomainRegistry{builders: map[string]Builder{}}
	r.RegisterBuilder("IfcWall", WallBuilder{})
	r.RegisterBuilder("IfcWallStandardCase", WallBuilder{})
	r.RegisterBuilder("IfcDoor", DoorBuilder{})
	r.RegisterBuilder("IfcWindow", WindowBuilder{})
	r.RegisterBuilder("IfcSlab", SlabBuilder{})
	r.RegisterBuilder("IfcColumn", ColumnBuilder{})
	r.RegisterBuilder("IfcBeam", BeamBuilder{})
	return r
}

// RegisterBuilder maps an IFC class to a builder.
func (r *DomainRegistry) RegisterBuilder(ifcClass string, b Builder) {
	r.builders[ifcClass] = b
}

// Builder returns the builder for an IFC class; unknown classes get the
// generic fallback parameterized with the class itself.
func (r *DomainRegistry) Builder(ifcClass string) Builder {
	if b, ok := r.builders[ifcClass]; ok {
		return b
	}
	return GenericBuilder{Class: ifcClass}
}

// RegisterPlugin adds a domain plugin.
func (r *DomainRegistry) RegisterPlugin(p Plugin) {
	r.plugins = append(r.plugins, p)
	logging.Get(logging.CategoryPipeline).Infof("registered domain: %s", p.Name())
}

// Plugins returns the registered plugins.
func (r *DomainRegistry) Plugins() []Plugin { return r.plugins }

// ParserPatterns returns the merged keyword -> IFC class map contributed by
// every plugin.
func (r *DomainRegistry) ParserPatterns() map[string]string {
	merged := map[string]string{}
	for _, p := range r.plugins {
		for k, v := range p.ParserPatterns() {
			merged[k] = v
		}
	}
	return merged
}

// InjectStats summarizes an Apply call.
type InjectStats struct {
	Rules           int
	ParserPatterns  int
	CostEntries     int
	ValidationRules int
}

// Apply injects every plugin's data into the given engines. Re-applying is
// safe: compliance rules that already exist (same code_name and section)
// are skipped.
func (r *DomainRegistry) Apply(ruleStore *rules.Store, costEngine *cost.Engine, validator *validation.Engine) (InjectStats, error) {
	var stats InjectStats
	for _, p := range r.plugins {
		if ruleStore != nil {
			for _, rule := range p.ComplianceRules() {
				if _, err := ruleStore.Insert(rule); err != nil {
					if aecerr.IsConflict(err) {
						continue
					}
					return stats, err
				}
				stats.Rules++
			}
		}
		stats.ParserPatterns += len(p.ParserPatterns())
		if costEngine != nil {
			for _, entry := range p.CostEntries() {
				costEngine.AddPricing(
					cost.PricingKey{Material: entry.Material, IFCClass: entry.IFCClass},
					cost.Pricing{
						MaterialCostPerUnit: entry.MaterialCostPerUnit,
						LaborCostPerUnit:    entry.LaborCostPerUnit,
						UnitType:            entry.UnitType,
						Source:              entry.Source,
					})
				stats.CostEntries++
			}
		}
		if validator != nil {
			for _, vr := range p.ValidationRules() {
				validator.AddRule(vr)
				stats.ValidationRules++
			}
		}
	}
	logging.Get(logging.CategoryPipeline).Infof(
		"domain injection complete: %d rules, %d parser patterns, %d cost entries, %d validation rules",
		stats.Rules, stats.ParserPatterns, stats.CostEntries, stats.ValidationRules)
	return stats, nil
}
