package nlp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFireRatedConcreteWall(t *testing.T) {
	p := NewHeuristicParser(nil)

	spec, err := p.Parse("2-hour fire-rated concrete wall, 12 feet tall", nil)
	require.NoError(t, err)

	assert.Equal(t, IntentCreate, spec.Intent)
	assert.Equal(t, "IfcWall", spec.IFCClass)
	assert.Equal(t, "2H", spec.Performance["fire_rating"])
	assert.Equal(t, []string{"concrete"}, spec.Materials)

	height, ok := spec.Properties["height_mm"].(float64)
	require.True(t, ok, "height_mm missing: %v", spec.Properties)
	assert.InDelta(t, 3657.6, height, 0.01)

	assert.Greater(t, spec.Confidence, 0.5)
}

func TestParseEmptyInput(t *testing.T) {
	p := NewHeuristicParser(nil)
	spec, err := p.Parse("   ", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, spec.Confidence)
	assert.NotEmpty(t, spec.Warnings)
}

func TestClassifyIntent(t *testing.T) {
	cases := map[string]string{
		"verify the wall meets code":     IntentValidate,
		"find all concrete walls":        IntentFind,
		"update the door width":          IntentModify,
		"create a new window":            IntentCreate,
		"a 200mm wall with STC 50":       IntentCreate,
	}
	for text, want := range cases {
		assert.Equal(t, want, ClassifyIntent(text), "text %q", text)
	}
}

func TestClassPatternsLongestWins(t *testing.T) {
	p := NewHeuristicParser(nil)
	assert.Equal(t, "IfcCurtainWall", p.ClassifyClass("a glazed curtain wall assembly"))
	assert.Equal(t, "IfcWall", p.ClassifyClass("a bearing wall"))
	assert.Equal(t, "", p.ClassifyClass("something unrelated"))
}

func TestExtraClassPatterns(t *testing.T) {
	p := NewHeuristicParser(map[string]string{"girder": "IfcBeam"})
	assert.Equal(t, "IfcBeam", p.ClassifyClass("a steel girder spanning the bay"))
}

func TestExtractDimensions(t *testing.T) {
	dims := ExtractDimensions("a wall 3 meters long, 200 mm thick and 12 feet tall")
	assert.InDelta(t, 3000.0, dims["length_mm"].(float64), 0.01)
	assert.InDelta(t, 200.0, dims["thickness_mm"].(float64), 0.01)
	assert.InDelta(t, 3657.6, dims["height_mm"].(float64), 0.01)
}

func TestExtractDimensionsFeetInches(t *testing.T) {
	dims := ExtractDimensions("a door 6 feet 4 inches tall")
	require.Contains(t, dims, "height_mm")
	want := 6*304.8 + 4*25.4
	assert.True(t, math.Abs(dims["height_mm"].(float64)-want) < 0.2,
		"got %v, want about %v", dims["height_mm"], want)
}

func TestExtractMaterials(t *testing.T) {
	mats := ExtractMaterials("concrete and steel with concrete topping and aluminium trim")
	assert.Equal(t, []string{"concrete", "steel", "aluminum"}, mats)
}

func TestExtractPerformance(t *testing.T) {
	perf := ExtractPerformance("2 hour fire rated wall with STC 50 and R-19 insulation")
	assert.Equal(t, "2H", perf["fire_rating"])
	assert.Equal(t, 50.0, perf["acoustic_stc"])
	assert.Equal(t, 19.0, perf["thermal_r_value"])

	perf = ExtractPerformance("fire-rated partition")
	assert.Equal(t, "rated", perf["fire_rating"])
}

func TestExtractCodes(t *testing.T) {
	codes := ExtractCodes("per IBC and Title 24, see ADA-404")
	assert.Contains(t, codes, "IBC2024")
	assert.Contains(t, codes, "Title-24")
	assert.Contains(t, codes, "ADA-404")
}

func TestApplyContextJurisdiction(t *testing.T) {
	p := NewHeuristicParser(nil)
	spec, err := p.Parse("150mm concrete wall", Context{"jurisdiction": "California"})
	require.NoError(t, err)
	assert.Contains(t, spec.ComplianceCodes, "CBC2025")
	assert.Contains(t, spec.ComplianceCodes, "Title-24")
	assert.Contains(t, spec.ComplianceCodes, "IBC2024")
}

func TestDetectAmbiguities(t *testing.T) {
	p := NewHeuristicParser(nil)

	spec, err := p.Parse("a fire-rated beam", nil)
	require.NoError(t, err)
	// No duration on the fire rating and no material on a structural class.
	joined := ""
	for _, w := range spec.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, "no duration")
	assert.Contains(t, joined, "material")
}

func TestCloneIsDeep(t *testing.T) {
	spec := NewParametricSpec()
	spec.Properties["height_mm"] = 3000.0
	spec.Materials = []string{"concrete"}

	clone := spec.Clone()
	clone.Properties["height_mm"] = 1.0
	clone.Materials[0] = "steel"

	assert.Equal(t, 3000.0, spec.Properties["height_mm"])
	assert.Equal(t, "concrete", spec.Materials[0])
}
