package nlp

import (
	"regexp"
	"sort"
	"strings"
)

// defaultClassPatterns maps description keywords to IFC classes. The
// facade's domain registry extends this set per parser instance; nothing is
// registered into package state.
var defaultClassPatterns = map[string]string{
	"wall":         "IfcWall",
	"door":         "IfcDoor",
	"window":       "IfcWindow",
	"beam":         "IfcBeam",
	"column":       "IfcColumn",
	"slab":         "IfcSlab",
	"roof":         "IfcRoof",
	"stair":        "IfcStairFlight",
	"stairs":       "IfcStairFlight",
	"ramp":         "IfcRamp",
	"curtain wall": "IfcCurtainWall",
	"railing":      "IfcRailing",
	"plate":        "IfcPlate",
	"footing":      "IfcFooting",
	"pile":         "IfcPile",
	"member":       "IfcMember",
	"covering":     "IfcCovering",
	"ceiling":      "IfcCovering",
	"floor":        "IfcSlab",
	"pipe":         "IfcPipeSegment",
	"duct":         "IfcDuctSegment",
	"parking":      "IfcSpace",
}

// HeuristicParser is the rule-based engine: regex and keyword matching with
// no external dependency. It produces lower confidence than a model-backed
// parser but always succeeds.
type HeuristicParser struct {
	classPatterns map[string]string
	classRe       *regexp.Regexp
}

// NewHeuristicParser builds the parser with the default keyword set plus
// any extra keyword -> IFC class patterns.
func NewHeuristicParser(extra map[string]string) *HeuristicParser {
	patterns := make(map[string]string, len(defaultClassPatterns)+len(extra))
	for k, v := range defaultClassPatterns {
		patterns[strings.ToLower(k)] = v
	}
	for k, v := range extra {
		patterns[strings.ToLower(k)] = v
	}

	// Longest keywords first so "curtain wall" wins over "wall".
	keys := make([]string, 0, len(patterns))
	for k := range patterns {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	return &HeuristicParser{
		classPatterns: patterns,
		classRe:       regexp.MustCompile(`(?i)\b(` + strings.Join(keys, "|") + `)\b`),
	}
}

// ClassifyClass returns the best-matching IFC class for text, or "".
func (p *HeuristicParser) ClassifyClass(text string) string {
	m := p.classRe.FindString(text)
	if m == "" {
		return ""
	}
	return p.classPatterns[strings.ToLower(m)]
}

// Parse implements Parser.
func (p *HeuristicParser) Parse(text string, ctx Context) (*ParametricSpec, error) {
	text = strings.TrimSpace(text)
	spec := NewParametricSpec()
	if text == "" {
		spec.Warnings = []string{"Empty input provided."}
		return spec, nil
	}

	spec.Intent = ClassifyIntent(text)
	spec.IFCClass = p.ClassifyClass(text)
	spec.Properties = ExtractDimensions(text)
	spec.Materials = ExtractMaterials(text)
	spec.Performance = ExtractPerformance(text)
	spec.ComplianceCodes = ExtractCodes(text)
	spec.Constraints = ExtractConstraints(text)

	applyContext(spec, ctx)
	spec.Warnings = detectAmbiguities(spec, text)
	spec.Confidence = computeConfidence(spec)

	return spec, nil
}

// applyContext enriches the spec with contextual defaults for the
// jurisdiction, climate zone, and project type.
func applyContext(spec *ParametricSpec, ctx Context) {
	if ctx == nil {
		return
	}

	jurisdiction := strings.ToLower(ctx["jurisdiction"])
	if jurisdiction != "" {
		if strings.Contains(jurisdiction, "california") || jurisdiction == "ca" {
			appendCode(spec, "CBC2025")
			appendCode(spec, "Title-24")
		}
		for _, kw := range []string{"us", "california", "louisiana", "la", "ca"} {
			if strings.Contains(jurisdiction, kw) {
				appendCode(spec, "IBC2024")
				break
			}
		}
	}

	if zone := ctx["climate_zone"]; zone != "" {
		energy, _ := spec.Constraints["energy_code"].(map[string]any)
		if energy == nil {
			energy = map[string]any{"required": true}
		}
		energy["climate_zone"] = zone
		spec.Constraints["energy_code"] = energy
	}

	if pt := ctx["project_type"]; pt != "" {
		spec.Constraints["project_type"] = pt
	}
}

func appendCode(spec *ParametricSpec, code string) {
	for _, c := range spec.ComplianceCodes {
		if c == code {
			return
		}
	}
	spec.ComplianceCodes = append(spec.ComplianceCodes, code)
}

var structuralClasses = map[string]bool{
	"IfcBeam": true, "IfcColumn": true, "IfcSlab": true, "IfcFooting": true,
}

// detectAmbiguities reports assumptions and gaps a caller should know about.
func detectAmbiguities(spec *ParametricSpec, text string) []string {
	var warnings []string

	if spec.IFCClass == "" {
		warnings = append(warnings, "Could not determine IFC element type from input.")
	}
	if len(spec.Properties) == 0 {
		warnings = append(warnings, "No dimensions found — sizes will use defaults.")
	}
	if len(strings.Fields(text)) < 3 {
		warnings = append(warnings, "Input is very brief — interpretation may be incomplete.")
	}
	if spec.Performance["fire_rating"] == "rated" {
		warnings = append(warnings,
			"Fire-rated mentioned but no duration specified — assuming minimum code requirement.")
	}
	if structuralClasses[spec.IFCClass] && len(spec.Materials) == 0 {
		warnings = append(warnings,
			"Structural element ("+spec.IFCClass+") with no material specified — material will need to be determined.")
	}

	return warnings
}

// computeConfidence scores the spec by how many fields were populated.
func computeConfidence(spec *ParametricSpec) float64 {
	score := 0.0
	if spec.IFCClass != "" {
		score += 0.25
	}
	if len(spec.Properties) > 0 {
		score += 0.20
	}
	if len(spec.Materials) > 0 {
		score += 0.15
	}
	if len(spec.Performance) > 0 {
		score += 0.15
	}
	if len(spec.ComplianceCodes) > 0 {
		score += 0.10
	}
	if len(spec.Constraints) > 0 {
		score += 0.10
	}
	if spec.Name != "" {
		score += 0.05
	}
	if score > 1.0 {
		score = 1.0
	}
	return roundTo(score, 2)
}
