package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quobo-ops/aecos/internal/audit"
	"github.com/quobo-ops/aecos/internal/cost"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/nlp"
	"github.com/quobo-ops/aecos/internal/rules"
	"github.com/quobo-ops/aecos/internal/validation"
	"github.com/quobo-ops/aecos/internal/vcs"
)

func newGenerator(t *testing.T) (*Generator, string) {
	t.Helper()
	root := t.TempDir()

	log, err := vcs.Open(root)
	require.NoError(t, err)

	store, err := element.NewStore(filepath.Join(root, "elements"))
	require.NoError(t, err)

	ruleStore, err := rules.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ruleStore.Close() })

	chain, err := audit.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { chain.Close() })

	g := &Generator{
		Parser:     nlp.NewHeuristicParser(nil),
		Rules:      rules.NewEngine(ruleStore),
		Elements:   store,
		Registry:   NewDomainRegistry(),
		Validator:  validation.NewEngine(),
		Estimator:  cost.NewEngine(nil),
		Log:        log,
		Audit:      chain,
		User:       "tester",
		AutoCommit: true,
	}
	return g, root
}

func TestGenerateFireRatedWall(t *testing.T) {
	g, _ := newGenerator(t)

	result, err := g.Generate("2-hour fire-rated concrete wall, 12 feet tall", nil, "US")
	require.NoError(t, err)
	require.NotEmpty(t, result.GlobalID)

	// One element folder with the expected class and psets.
	elem, err := g.Elements.Get(result.GlobalID)
	require.NoError(t, err)
	assert.Equal(t, "IfcWall", elem.IFCClass)
	assert.Equal(t, "2H", elem.Psets["Pset_WallCommon"]["FireRating"])

	// The verdict on the persisted report is not non_compliant.
	require.NotNil(t, result.Compliance)
	assert.NotEqual(t, rules.VerdictNonCompliant, result.Compliance.Verdict)

	// Exactly one audit entry with action=generate.
	entries, err := g.Audit.Query(audit.Filter{Action: "generate"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.GlobalID, entries[0].Resource)
	assert.NotEmpty(t, entries[0].AfterHash)

	// One version commit past the repository root commit.
	assert.NotEmpty(t, result.Commit)
	n, err := g.Log.CommitCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The derived report surface exists.
	for _, name := range []string{"README.md", "COMPLIANCE.md", "COST.md", "USAGE.md", "VALIDATION.md", "SCHEDULE.md"} {
		_, err := os.Stat(filepath.Join(result.Folder, name))
		assert.NoError(t, err, "missing %s", name)
	}
}

func TestGenerateAutoAdjustsMinimumThickness(t *testing.T) {
	g, _ := newGenerator(t)

	spec := nlp.NewParametricSpec()
	spec.IFCClass = "IfcWall"
	spec.Properties["thickness_mm"] = 100.0
	spec.Performance["fire_rating"] = "2H"
	spec.Materials = []string{"concrete"}

	result, err := g.GenerateFromSpec(spec, "US")
	require.NoError(t, err)

	elem, err := g.Elements.Get(result.GlobalID)
	require.NoError(t, err)

	thickness, ok := elem.Psets["Dimensions"]["thickness_mm"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, thickness, 152.0)

	// The auto-adjustment is recorded as a warning.
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "auto-adjusted") && strings.Contains(w, "thickness_mm") {
			found = true
		}
	}
	assert.True(t, found, "no auto-adjust warning in %v", result.Warnings)
}

func TestGenerateParseFailureDegrades(t *testing.T) {
	g, _ := newGenerator(t)
	g.Parser = failingParser{}

	result, err := g.Generate("anything", nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.GlobalID)

	// The fallback builder produced a generic skeleton.
	elem, err := g.Elements.Get(result.GlobalID)
	require.NoError(t, err)
	assert.Equal(t, "IfcBuildingElementProxy", elem.IFCClass)
	assert.NotEmpty(t, result.Warnings)
}

type failingParser struct{}

func (failingParser) Parse(string, nlp.Context) (*nlp.ParametricSpec, error) {
	return nil, assert.AnError
}

func TestGenerateFromTemplate(t *testing.T) {
	g, root := newGenerator(t)

	// Build a template source by generating a wall first.
	first, err := g.Generate("200 mm thick concrete wall", nil, "US")
	require.NoError(t, err)

	templateDir := filepath.Join(root, "template_src")
	require.NoError(t, os.Rename(first.Folder, templateDir))

	result, err := g.GenerateFromTemplate(templateDir, map[string]any{"thickness_mm": 300.0}, "US")
	require.NoError(t, err)

	elem, err := g.Elements.Get(result.GlobalID)
	require.NoError(t, err)
	assert.Equal(t, "IfcWall", elem.IFCClass)
	assert.Equal(t, 300.0, elem.Psets["Dimensions"]["thickness_mm"])
}

func TestRegistryFallbackBuilder(t *testing.T) {
	r := NewDomainRegistry()
	b := r.Builder("IfcSensor")
	assert.Equal(t, "IfcSensor", b.IFCClass())

	wall := r.Builder("IfcWall")
	assert.Equal(t, "IfcWall", wall.IFCClass())
}

func TestDomainRegistryApply(t *testing.T) {
	ruleStore, err := rules.OpenStoreNoSeed(":memory:")
	require.NoError(t, err)
	defer ruleStore.Close()

	r := NewDomainRegistry()
	for _, p := range BuiltinPlugins() {
		r.RegisterPlugin(p)
	}

	costEngine := cost.NewEngine(cost.Table{})
	validator := validation.NewEngine()

	stats, err := r.Apply(ruleStore, costEngine, validator)
	require.NoError(t, err)
	assert.Greater(t, stats.Rules, 0)
	assert.Greater(t, stats.CostEntries, 0)
	assert.Greater(t, stats.ParserPatterns, 0)

	// Re-applying skips already-present rules instead of failing.
	again, err := r.Apply(ruleStore, costEngine, validator)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Rules)

	// Plugin patterns reach the parser through the registry.
	parser := nlp.NewHeuristicParser(r.ParserPatterns())
	assert.Equal(t, "IfcBeam", parser.ClassifyClass("install a girder"))
}
