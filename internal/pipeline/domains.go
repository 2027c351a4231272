package pipeline

import (
	"fmt"

	"github.com/quobo-ops/aecos/internal/rules"
	"github.com/quobo-ops/aecos/internal/validation"
)

// BuiltinPlugins returns the domain plugins shipped with the system.
func BuiltinPlugins() []Plugin {
	return []Plugin{structuralDomain{}, fireProtectionDomain{}}
}

// structuralDomain contributes steel/concrete framing vocabulary, pricing,
// and span checks.
type structuralDomain struct{}

func (structuralDomain) Name() string { return "structural" }

func (structuralDomain) IFCClasses() []string {
	return []string{"IfcBeam", "IfcColumn", "IfcFooting", "IfcPile"}
}

func (structuralDomain) ComplianceRules() []rules.Rule {
	return []rules.Rule{
		{
			CodeName:      "ACI318-19",
			Section:       "9.6.1",
			Title:         "Minimum beam depth",
			IFCClasses:    []string{"IfcBeam"},
			CheckType:     rules.CheckMinValue,
			PropertyPath:  "properties.depth_mm",
			CheckValue:    250,
			Region:        rules.Universal,
			Citation:      "ACI 318-19 §9.6.1 — Beams shall satisfy minimum depth for deflection control.",
			EffectiveDate: "2019-06-01",
		},
	}
}

func (structuralDomain) ParserPatterns() map[string]string {
	return map[string]string{
		"girder":     "IfcBeam",
		"joist":      "IfcBeam",
		"shear wall": "IfcWall",
		"pier":       "IfcColumn",
	}
}

func (structuralDomain) CostEntries() []CostEntry {
	return []CostEntry{
		{Material: "steel", IFCClass: "IfcColumn", MaterialCostPerUnit: 2500, LaborCostPerUnit: 620, UnitType: "m3", Source: "structural domain"},
		{Material: "timber", IFCClass: "IfcBeam", MaterialCostPerUnit: 680, LaborCostPerUnit: 260, UnitType: "m3", Source: "structural domain"},
	}
}

func (structuralDomain) ValidationRules() []validation.Rule {
	return []validation.Rule{
		{
			Name: "beam-span-depth-ratio",
			Check: func(d validation.Data) []validation.Issue {
				if d.Meta.IFCClass != "IfcBeam" {
					return nil
				}
				dims, ok := d.Psets["Dimensions"]
				if !ok {
					return nil
				}
				span, okS := dims["length_mm"].(float64)
				depth, okD := dims["depth_mm"].(float64)
				if !okS || !okD || depth == 0 {
					return nil
				}
				if span/depth > 24 {
					return []validation.Issue{{
						Severity:   validation.SeverityWarning,
						RuleName:   "beam-span-depth-ratio",
						Message:    fmt.Sprintf("span/depth ratio %.1f exceeds 24", span/depth),
						Suggestion: "increase the beam depth or reduce the span",
					}}
				}
				return nil
			},
		},
	}
}

// fireProtectionDomain contributes fire-separation vocabulary and rules.
type fireProtectionDomain struct{}

func (fireProtectionDomain) Name() string { return "fire_protection" }

func (fireProtectionDomain) IFCClasses() []string {
	return []string{"IfcWall", "IfcDoor", "IfcCovering"}
}

func (fireProtectionDomain) ComplianceRules() []rules.Rule {
	return []rules.Rule{
		{
			CodeName:      "NFPA",
			Section:       "80-4.8",
			Title:         "Fire door rating present",
			IFCClasses:    []string{"IfcDoor"},
			CheckType:     rules.CheckExists,
			PropertyPath:  "constraints.fire",
			CheckValue:    nil,
			Region:        rules.Universal,
			Citation:      "NFPA 80 §4.8 — Openings in fire barriers shall document a fire protection rating.",
			EffectiveDate: "2022-01-01",
		},
	}
}

func (fireProtectionDomain) ParserPatterns() map[string]string {
	return map[string]string{
		"fire wall":    "IfcWall",
		"smoke damper": "IfcDamper",
		"fire door":    "IfcDoor",
	}
}

func (fireProtectionDomain) CostEntries() []CostEntry {
	return []CostEntry{
		{Material: "gypsum", IFCClass: "IfcWall", MaterialCostPerUnit: 18, LaborCostPerUnit: 28, UnitType: "m2", Source: "fire protection domain"},
	}
}

func (fireProtectionDomain) ValidationRules() []validation.Rule { return nil }
