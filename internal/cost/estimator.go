// Package cost implements the default cost-and-schedule estimator over
// element folders. Pricing lives in an owned table injected by the domain
// registry, never in package state.
package cost

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/metadata"
)

// Estimator is the collaborator interface the pipeline and facade depend on.
type Estimator interface {
	Estimate(folder, region string) (*Report, error)
}

// PricingKey addresses one pricing row. IFCClass may be "*" for a
// class-independent rate.
type PricingKey struct {
	Material string
	IFCClass string
}

// Pricing is the unit cost data for one material/class pair.
type Pricing struct {
	MaterialCostPerUnit float64
	LaborCostPerUnit    float64
	// UnitType is "m2" or "m3".
	UnitType string
	Source   string
}

// Table maps pricing keys to rates.
type Table map[PricingKey]Pricing

// SeedPricing returns the built-in rate table (USD).
func SeedPricing() Table {
	const src = "RSMeans 2024"
	return Table{
		{"concrete", "IfcWall"}:   {MaterialCostPerUnit: 180, LaborCostPerUnit: 95, UnitType: "m3", Source: src},
		{"concrete", "IfcSlab"}:   {MaterialCostPerUnit: 165, LaborCostPerUnit: 80, UnitType: "m3", Source: src},
		{"concrete", "*"}:         {MaterialCostPerUnit: 175, LaborCostPerUnit: 90, UnitType: "m3", Source: src},
		{"steel", "IfcBeam"}:      {MaterialCostPerUnit: 2400, LaborCostPerUnit: 650, UnitType: "m3", Source: src},
		{"steel", "*"}:            {MaterialCostPerUnit: 2600, LaborCostPerUnit: 700, UnitType: "m3", Source: src},
		{"gypsum", "*"}:           {MaterialCostPerUnit: 14, LaborCostPerUnit: 22, UnitType: "m2", Source: src},
		{"glass", "*"}:            {MaterialCostPerUnit: 210, LaborCostPerUnit: 85, UnitType: "m2", Source: src},
		{"wood", "*"}:             {MaterialCostPerUnit: 520, LaborCostPerUnit: 240, UnitType: "m3", Source: src},
		{"brick", "*"}:            {MaterialCostPerUnit: 95, LaborCostPerUnit: 120, UnitType: "m2", Source: src},
		{"cmu", "*"}:              {MaterialCostPerUnit: 60, LaborCostPerUnit: 85, UnitType: "m2", Source: src},
		{"insulation", "*"}:       {MaterialCostPerUnit: 9, LaborCostPerUnit: 6, UnitType: "m2", Source: src},
		{"aluminum", "IfcWindow"}: {MaterialCostPerUnit: 380, LaborCostPerUnit: 110, UnitType: "m2", Source: src},
	}
}

// regionFactors scale costs per region code.
var regionFactors = map[string]float64{
	"US": 1.00,
	"CA": 1.28,
	"LA": 0.92,
}

// Line is one priced material layer.
type Line struct {
	Material string  `json:"material"`
	Quantity float64 `json:"quantity"`
	UnitType string  `json:"unit_type"`
	UnitCost float64 `json:"unit_cost"`
	Labor    float64 `json:"labor"`
	Total    float64 `json:"total"`
	Source   string  `json:"source"`
}

// Engine estimates from the pricing table.
type Engine struct {
	pricing Table
}

// NewEngine builds an engine over the given table (SeedPricing when nil).
func NewEngine(pricing Table) *Engine {
	if pricing == nil {
		pricing = SeedPricing()
	}
	return &Engine{pricing: pricing}
}

// AddPricing inserts or replaces a rate. Used by domain plugins through the
// registry.
func (e *Engine) AddPricing(key PricingKey, p Pricing) {
	e.pricing[PricingKey{Material: strings.ToLower(key.Material), IFCClass: key.IFCClass}] = p
}

func (e *Engine) lookup(material, ifcClass string) (Pricing, bool) {
	material = strings.ToLower(material)
	if p, ok := e.pricing[PricingKey{material, ifcClass}]; ok {
		return p, true
	}
	if p, ok := e.pricing[PricingKey{material, "*"}]; ok {
		return p, true
	}
	return Pricing{}, false
}

// Estimate prices an element folder. Quantities derive from the geometry
// summary: volume for m3 rates, the largest bounding-box face for m2 rates.
func (e *Engine) Estimate(folder, region string) (*Report, error) {
	var meta metadata.Record
	if err := fsutil.ReadJSON(filepath.Join(folder, "metadata.json"), &meta); err != nil {
		return nil, aecerr.Wrap(aecerr.NotFound, folder, "failed to read element metadata", err)
	}

	var materials []element.MaterialLayer
	if err := fsutil.ReadJSON(filepath.Join(folder, "materials", "materials.json"), &materials); err != nil {
		materials = nil
	}
	var geom element.GeometryInfo
	if err := fsutil.ReadJSON(filepath.Join(folder, "geometry", "shape.json"), &geom); err != nil {
		geom = element.GeometryInfo{}
	}

	volume := 0.0
	if geom.Volume != nil {
		volume = *geom.Volume
	}
	area := largestFace(geom.BoundingBox)

	factor := 1.0
	if f, ok := regionFactors[strings.ToUpper(region)]; ok {
		factor = f
	}

	report := &Report{
		ElementID:   meta.GlobalID,
		IFCClass:    meta.IFCClass,
		Region:      region,
		EstimatedAt: time.Now().UTC(),
	}

	share := 1.0
	if len(materials) > 0 {
		share = 1.0 / float64(len(materials))
	}
	for _, mat := range materials {
		p, ok := e.lookup(mat.Name, meta.IFCClass)
		if !ok {
			report.Unpriced = append(report.Unpriced, mat.Name)
			continue
		}
		frac := share
		if mat.Fraction != nil && *mat.Fraction > 0 {
			frac = *mat.Fraction
		}
		qty := area * frac
		if p.UnitType == "m3" {
			qty = volume * frac
		}
		line := Line{
			Material: mat.Name,
			Quantity: qty,
			UnitType: p.UnitType,
			UnitCost: p.MaterialCostPerUnit * factor,
			Labor:    p.LaborCostPerUnit * factor,
			Source:   p.Source,
		}
		line.Total = qty * (line.UnitCost + line.Labor)
		report.Lines = append(report.Lines, line)
		report.MaterialTotal += qty * line.UnitCost
		report.LaborTotal += qty * line.Labor
	}
	report.Total = report.MaterialTotal + report.LaborTotal
	report.DurationDays = scheduleDays(meta.IFCClass, volume, area)
	return report, nil
}

func largestFace(b element.BoundingBox) float64 {
	dx := b.MaxX - b.MinX
	dy := b.MaxY - b.MinY
	dz := b.MaxZ - b.MinZ
	faces := []float64{dx * dy, dx * dz, dy * dz}
	max := 0.0
	for _, f := range faces {
		if f > max {
			max = f
		}
	}
	return max
}

// scheduleDays is a coarse install-duration heuristic per class and size.
func scheduleDays(ifcClass string, volume, area float64) float64 {
	base := 1.0
	switch ifcClass {
	case "IfcWall", "IfcWallStandardCase":
		base = 1.0 + area/25
	case "IfcSlab":
		base = 2.0 + area/40
	case "IfcBeam", "IfcColumn":
		base = 0.5 + volume/2
	case "IfcDoor", "IfcWindow":
		base = 0.5
	default:
		base = 1.0 + volume/5
	}
	return roundTo(base, 1)
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int(v*p+0.5)) / p
}
