package nlp

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Unit conversion factors to millimetres.
const (
	feetToMM   = 304.8
	inchesToMM = 25.4
	metersToMM = 1000.0
	cmToMM     = 10.0
)

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func toMM(value float64, unit string) float64 {
	unit = strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "."), "s")
	switch unit {
	case "foot", "feet", "fee", "ft", "'":
		return roundTo(value*feetToMM, 1)
	case "inch", "inche", "in", `"`:
		return roundTo(value*inchesToMM, 1)
	case "meter", "metre", "m":
		return roundTo(value*metersToMM, 1)
	case "centimeter", "centimetre", "cm":
		return roundTo(value*cmToMM, 1)
	default:
		return roundTo(value, 1)
	}
}

var dimRe = regexp.MustCompile(
	`(?i)(\d+(?:\.\d+)?)\s*[-\s]?\s*` +
		`(foot|feet|ft|inch(?:es)?|in|meters?|metres?|m\b|cm|mm|centimeters?|centimetres?|millimeters?|millimetres?|['"])` +
		`(?:\s+(\d+(?:\.\d+)?)\s*[-\s]?\s*(inch(?:es)?|in|["]))?`)

var dimQualifiers = map[string]string{
	"tall": "height_mm", "high": "height_mm", "height": "height_mm",
	"wide": "width_mm", "width": "width_mm",
	"thick": "thickness_mm", "thickness": "thickness_mm",
	"deep": "depth_mm", "depth": "depth_mm",
	"long": "length_mm", "length": "length_mm",
}

var qualifierRe = regexp.MustCompile(`(?i)\b(tall|high|height|wide|width|thick|thickness|deep|depth|long|length)\b`)

// ExtractDimensions pulls dimensional properties out of text, mm-normalized.
func ExtractDimensions(text string) map[string]any {
	dims := map[string]any{}

	for _, match := range dimRe.FindAllStringSubmatchIndex(text, -1) {
		group := func(i int) string {
			if match[2*i] < 0 {
				return ""
			}
			return text[match[2*i]:match[2*i+1]]
		}
		value, err := strconv.ParseFloat(group(1), 64)
		if err != nil {
			continue
		}
		mm := toMM(value, group(2))

		// Feet + inches combos ("6 feet 4 inches").
		if group(3) != "" && group(4) != "" {
			if extra, err := strconv.ParseFloat(group(3), 64); err == nil {
				mm = roundTo(mm+toMM(extra, group(4)), 1)
			}
		}

		key := ""
		rest := text[match[1]:]
		if len(rest) > 30 {
			rest = rest[:30]
		}
		if qm := qualifierRe.FindString(rest); qm != "" {
			key = dimQualifiers[strings.ToLower(qm)]
		} else {
			before := text[:match[0]]
			locs := qualifierRe.FindAllStringIndex(before, -1)
			if len(locs) > 0 && match[0]-locs[len(locs)-1][1] < 20 {
				key = dimQualifiers[strings.ToLower(before[locs[len(locs)-1][0]:locs[len(locs)-1][1]])]
			}
		}
		if key == "" {
			switch {
			case len(dims) == 0:
				key = "height_mm"
			case dims["width_mm"] == nil:
				key = "width_mm"
			case dims["thickness_mm"] == nil:
				key = "thickness_mm"
			default:
				key = "length_mm"
			}
		}
		dims[key] = mm
	}

	return dims
}

var materialKeywords = []string{
	"concrete", "steel", "gypsum", "glass", "wood", "cmu", "brick",
	"aluminum", "aluminium", "timber", "masonry", "plywood", "drywall",
	"stucco", "insulation", "fiberglass", "copper", "stone", "granite",
	"marble", "ceramic", "vinyl", "metal",
}

var materialRe = regexp.MustCompile(`(?i)\b(` + strings.Join(materialKeywords, "|") + `)\b`)

// ExtractMaterials returns the deduplicated material keywords in text.
func ExtractMaterials(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range materialRe.FindAllString(text, -1) {
		mat := strings.ToLower(m)
		if mat == "aluminium" {
			mat = "aluminum"
		}
		if !seen[mat] {
			seen[mat] = true
			out = append(out, mat)
		}
	}
	return out
}

var (
	fireRatingRe = regexp.MustCompile(`(?i)(\d+)\s*[-\s]?\s*(?:hour|hr)\s*(?:fire\s*[-\s]?\s*rat(?:ed|ing))?`)
	fireRatedRe  = regexp.MustCompile(`(?i)fire\s*[-\s]?\s*rat(?:ed|ing)\s*(?:for\s*)?(\d+)\s*[-\s]?\s*(?:hour|hr)`)
	fireWordRe   = regexp.MustCompile(`(?i)\bfire\s*[-\s]?\s*rat(?:ed|ing)\b`)
	stcRe        = regexp.MustCompile(`(?i)\bSTC\s*[-:]?\s*(\d+)`)
	rValueRe     = regexp.MustCompile(`(?i)\bR\s*[-:]?\s*(\d+(?:\.\d+)?)`)
	uValueRe     = regexp.MustCompile(`(?i)\bU\s*[-:]?\s*(\d+(?:\.\d+)?)`)
)

// ExtractPerformance pulls fire rating, acoustic, and thermal attributes.
func ExtractPerformance(text string) map[string]any {
	perf := map[string]any{}

	m := fireRatedRe.FindStringSubmatch(text)
	if m == nil {
		m = fireRatingRe.FindStringSubmatch(text)
	}
	if m != nil {
		perf["fire_rating"] = m[1] + "H"
	} else if fireWordRe.MatchString(text) {
		perf["fire_rating"] = "rated"
	}

	if m := stcRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			perf["acoustic_stc"] = float64(n)
		}
	}
	if m := rValueRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			perf["thermal_r_value"] = f
		}
	}
	if m := uValueRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			perf["thermal_u_value"] = f
		}
	}

	return perf
}

var codeMap = []struct {
	pattern string
	code    string
}{
	{"international building code", "IBC2024"},
	{"california building code", "CBC2025"},
	{"americans with disabilities", "ADA2010"},
	{"international energy", "IECC2024"},
	{"title 24", "Title-24"},
	{"title-24", "Title-24"},
	{"title24", "Title-24"},
	{"asce 7", "ASCE7-22"},
	{"asce7", "ASCE7-22"},
	{"aci 318", "ACI318-19"},
	{"aci318", "ACI318-19"},
	{"ashrae", "ASHRAE90.1"},
	{"iecc", "IECC2024"},
	{"nfpa", "NFPA"},
	{"ibc", "IBC2024"},
	{"cbc", "CBC2025"},
	{"ada", "ADA2010"},
}

var codeSectionRe = regexp.MustCompile(`(?i)\b(IBC|CBC|ADA|IECC|NFPA|ASCE|ACI)\s*-?\s*(\d[\d.]*)`)

// ExtractCodes returns the deduplicated building-code references in text.
func ExtractCodes(text string) []string {
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	var out []string

	for _, entry := range codeMap {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(entry.pattern) + `\b`)
		if re.MatchString(lower) && !seen[entry.code] {
			seen[entry.code] = true
			out = append(out, entry.code)
		}
	}

	for _, m := range codeSectionRe.FindAllStringSubmatch(text, -1) {
		ref := strings.ToUpper(m[1]) + "-" + m[2]
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}

	return out
}

var intentPatterns = []struct {
	intent string
	re     *regexp.Regexp
}{
	{IntentValidate, regexp.MustCompile(`(?i)\b(check|validate|verify|inspect|audit|comply|compliance|compliant)\b`)},
	{IntentFind, regexp.MustCompile(`(?i)\b(find|search|list|show|get|query|locate|filter|select|retrieve|look\s*up)\b`)},
	{IntentModify, regexp.MustCompile(`(?i)\b(update|modify|change|alter|edit|replace|upgrade|increase|decrease|resize|adjust|revise|rename|set)\b`)},
	{IntentCreate, regexp.MustCompile(`(?i)\b(create|add|build|construct|make|insert|place|install|design|generate|new)\b`)},
}

// ClassifyIntent returns the most likely intent for text, defaulting to
// create.
func ClassifyIntent(text string) string {
	for _, p := range intentPatterns {
		if p.re.MatchString(text) {
			return p.intent
		}
	}
	return IntentCreate
}

var (
	accessibilityRe = regexp.MustCompile(`(?i)\b(ada|accessible|accessibility|wheelchair|mobility|barrier[- ]?free|universal\s*design|handicap)\b`)
	vanAccessibleRe = regexp.MustCompile(`(?i)\bvan\s*[-\s]?accessible\b`)
	parkingRe       = regexp.MustCompile(`(?i)\bparking\b`)
	routeRe         = regexp.MustCompile(`(?i)\broute\b`)
	energyRe        = regexp.MustCompile(`(?i)\b(title\s*24|iecc|energy\s*code|energy\s*efficient|high[- ]efficiency|insulation|thermal|r[- ]?value|u[- ]?value)\b`)
	title24Re       = regexp.MustCompile(`(?i)\btitle\s*24\b`)
	ieccRe          = regexp.MustCompile(`(?i)\biecc\b`)
	climateZoneRe   = regexp.MustCompile(`(?i)\bclimate\s*zone\s*(\d[A-C]?)\b`)
	structuralRe    = regexp.MustCompile(`(?i)\b(load[- ]?bearing|structural|seismic|wind\s*load|gravity\s*load)\b`)
	fireConstrRe    = regexp.MustCompile(`(?i)\b(fire\s*barrier|fire\s*separation|smoke\s*barrier|occupancy\s*separation)\b`)
)

// ExtractConstraints pulls accessibility, energy, structural, and fire
// constraints out of text.
func ExtractConstraints(text string) map[string]any {
	constraints := map[string]any{}

	if accessibilityRe.MatchString(text) {
		access := map[string]any{"required": true, "standard": "ADA2010"}
		if vanAccessibleRe.MatchString(text) {
			access["van_accessible"] = true
		}
		if parkingRe.MatchString(text) {
			access["type"] = "parking"
		}
		if routeRe.MatchString(text) {
			access["accessible_route"] = true
		}
		constraints["accessibility"] = access
	}

	if energyRe.MatchString(text) {
		energy := map[string]any{"required": true}
		if title24Re.MatchString(text) {
			energy["code"] = "Title-24"
		} else if ieccRe.MatchString(text) {
			energy["code"] = "IECC2024"
		}
		if m := climateZoneRe.FindStringSubmatch(text); m != nil {
			energy["climate_zone"] = m[1]
		}
		constraints["energy_code"] = energy
	}

	if structuralRe.MatchString(text) {
		constraints["structural"] = map[string]any{"required": true}
	}
	if fireConstrRe.MatchString(text) {
		constraints["fire"] = map[string]any{"required": true}
	}

	return constraints
}
