package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quobo-ops/aecos/internal/fsutil"
)

func writeElementFolder(t *testing.T) string {
	t.Helper()
	folder := filepath.Join(t.TempDir(), "element_TESTID")

	require.NoError(t, fsutil.WriteJSONAtomic(filepath.Join(folder, "metadata.json"), Record{
		GlobalID: "TESTID",
		Name:     "Test Wall",
		IFCClass: "IfcWall",
		Psets:    map[string]any{"Pset_WallCommon.FireRating": "2H"},
	}))
	require.NoError(t, fsutil.WriteJSONAtomic(filepath.Join(folder, "properties", "psets.json"),
		map[string]map[string]any{"Pset_WallCommon": {"FireRating": "2H"}}))
	require.NoError(t, fsutil.WriteJSONAtomic(filepath.Join(folder, "materials", "materials.json"),
		[]map[string]any{{"name": "concrete", "thickness": 200.0, "category": "wall"}}))
	require.NoError(t, fsutil.WriteJSONAtomic(filepath.Join(folder, "relationships", "spatial.json"),
		map[string]any{"storey_name": "Level 2"}))
	return folder
}

func TestGenerateWritesBaseSurface(t *testing.T) {
	folder := writeElementFolder(t)

	written, err := Generate(folder, Options{})
	require.NoError(t, err)
	assert.Len(t, written, 4)

	readme, err := os.ReadFile(filepath.Join(folder, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "# Test Wall")
	assert.Contains(t, string(readme), "`IfcWall`")
	assert.Contains(t, string(readme), "concrete")
	assert.Contains(t, string(readme), "Level 2")

	// VALIDATION.md and SCHEDULE.md only appear with report bodies.
	_, err = os.Stat(filepath.Join(folder, "VALIDATION.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateIdempotent(t *testing.T) {
	folder := writeElementFolder(t)

	_, err := Generate(folder, Options{})
	require.NoError(t, err)

	read := func() map[string]string {
		out := map[string]string{}
		for _, name := range []string{"README.md", "COMPLIANCE.md", "COST.md", "USAGE.md"} {
			data, err := os.ReadFile(filepath.Join(folder, name))
			require.NoError(t, err)
			out[name] = string(data)
		}
		return out
	}

	first := read()
	_, err = Generate(folder, Options{})
	require.NoError(t, err)
	second := read()
	assert.Equal(t, first, second)
}

func TestGenerateWithReportBodies(t *testing.T) {
	folder := writeElementFolder(t)

	written, err := Generate(folder, Options{
		ComplianceMD: "# Compliance Body",
		ValidationMD: "# Validation Body",
		CostMD:       "# Cost Body",
		ScheduleMD:   "# Schedule Body",
	})
	require.NoError(t, err)
	assert.Len(t, written, 6)

	data, err := os.ReadFile(filepath.Join(folder, "COMPLIANCE.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Compliance Body\n", string(data))

	data, err = os.ReadFile(filepath.Join(folder, "VALIDATION.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Validation Body\n", string(data))
}

func TestGenerateTemplateRendersManifest(t *testing.T) {
	folder := writeElementFolder(t)
	require.NoError(t, fsutil.WriteJSONAtomic(filepath.Join(folder, ManifestFile), map[string]any{
		"template_id": "TESTID",
		"version":     "1.2.0",
		"author":      "alice",
		"description": "A reusable wall",
		"tags": map[string]any{
			"material": []any{"concrete"},
			"region":   []any{"US"},
		},
	}))

	_, err := Generate(folder, Options{})
	require.NoError(t, err)

	readme, err := os.ReadFile(filepath.Join(folder, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "# Template: Test Wall")
	assert.Contains(t, string(readme), "A reusable wall")
	assert.Contains(t, string(readme), "`US`")
}

func TestGenerateMissingFolder(t *testing.T) {
	_, err := Generate(filepath.Join(t.TempDir(), "nope"), Options{})
	assert.Error(t, err)
}
