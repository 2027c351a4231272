package regulatory

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/rules"
	"github.com/quobo-ops/aecos/internal/vcs"
)

func seedStore(t *testing.T, seed []rules.Rule) *rules.Store {
	t.Helper()
	s, err := rules.OpenStoreNoSeed(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, r := range seed {
		_, err := s.Insert(r)
		require.NoError(t, err)
	}
	return s
}

func mkRule(section, title string) rules.Rule {
	return rules.Rule{
		CodeName:      "IBC2024",
		Section:       section,
		Title:         title,
		IFCClasses:    []string{"IfcWall"},
		CheckType:     rules.CheckMinValue,
		PropertyPath:  "performance.fire_rating",
		CheckValue:    "1H",
		Region:        "US",
		Citation:      "citation " + section,
		EffectiveDate: "2024-01-01",
	}
}

func TestDiffClassification(t *testing.T) {
	a1 := mkRule("1.1", "keep")
	a2 := mkRule("1.2", "modify me")
	a3 := mkRule("1.3", "remove me")

	b2 := mkRule("1.2", "modified")
	b4 := mkRule("1.4", "added")

	diff := Diff([]rules.Rule{a1, a2, a3}, []rules.Rule{a1, b2, b4})
	assert.Len(t, diff.Added, 1)
	assert.Len(t, diff.Modified, 1)
	assert.Len(t, diff.Removed, 1)
	assert.Len(t, diff.Unchanged, 1)
	assert.True(t, diff.HasChanges())
	assert.Equal(t, 3, diff.TotalChanges())

	assert.Equal(t, "1.4", diff.Added[0].Section)
	assert.Equal(t, "modified", diff.Modified[0].New.Title)
	assert.Equal(t, "1.3", diff.Removed[0].Section)
}

func TestDiffIgnoresIDAndEffectiveDate(t *testing.T) {
	a := mkRule("1.1", "same")
	a.ID = 7
	b := mkRule("1.1", "same")
	b.EffectiveDate = "2025-01-01"

	diff := Diff([]rules.Rule{a}, []rules.Rule{b})
	assert.False(t, diff.HasChanges())
}

// TestApplyRoundTrip checks the update-then-apply law: applying diff(A, B)
// to a store holding A yields a store equal to B in the (code_name,
// section) dimension.
func TestApplyRoundTrip(t *testing.T) {
	setA := []rules.Rule{mkRule("1.1", "keep"), mkRule("1.2", "old"), mkRule("1.3", "doomed")}
	setB := []rules.Rule{mkRule("1.1", "keep"), mkRule("1.2", "new title"), mkRule("1.4", "fresh")}

	store := seedStore(t, setA)
	current, err := store.List(rules.ListFilter{})
	require.NoError(t, err)

	root := t.TempDir()
	log, err := vcs.Open(root)
	require.NoError(t, err)

	diff := Diff(current, setB)
	updater := NewUpdater(store, root, log)
	result, err := updater.Apply(diff, "IBC2024", "2025.1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RulesAdded)
	assert.Equal(t, 1, result.RulesModified)
	assert.Equal(t, 1, result.RulesRemoved)

	// Store content equals B modulo ids.
	after, err := store.List(rules.ListFilter{})
	require.NoError(t, err)
	var gotKeys, wantKeys [][2]string
	for _, r := range after {
		gotKeys = append(gotKeys, r.Key())
	}
	for _, r := range setB {
		wantKeys = append(wantKeys, r.Key())
	}
	sortKeys(gotKeys)
	sortKeys(wantKeys)
	assert.Equal(t, wantKeys, gotKeys)

	for _, r := range after {
		if r.Section == "1.2" {
			assert.Equal(t, "new title", r.Title)
		}
	}

	// Backup exists under .regulatory_backups.
	require.NotEmpty(t, result.BackupPath)
	_, err = os.Stat(result.BackupPath)
	assert.NoError(t, err)
	assert.Equal(t, BackupDir, filepath.Base(filepath.Dir(result.BackupPath)))

	// The regulatory version tag exists.
	require.NotEmpty(t, result.Tag)
	tags, err := log.Tags()
	require.NoError(t, err)
	assert.Contains(t, tags, result.Tag)
}

func sortKeys(keys [][2]string) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
}

func TestApplyEmptyDiffIsNoop(t *testing.T) {
	store := seedStore(t, []rules.Rule{mkRule("1.1", "t")})
	updater := NewUpdater(store, t.TempDir(), nil)

	result, err := updater.Apply(&DiffResult{}, "IBC2024", "1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.BackupPath)
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	store := seedStore(t, []rules.Rule{mkRule("1.1", "existing")})
	updater := NewUpdater(store, t.TempDir(), nil)

	// The second added rule collides with an existing key, so the whole
	// batch must roll back.
	diff := &DiffResult{Added: []rules.Rule{mkRule("9.9", "ok"), mkRule("1.1", "dup")}}
	_, err := updater.Apply(diff, "IBC2024", "1")
	require.Error(t, err)

	after, err := store.List(rules.ListFilter{})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "existing", after[0].Title)
}

func TestRestoreFromBackup(t *testing.T) {
	store := seedStore(t, []rules.Rule{mkRule("1.1", "original")})
	root := t.TempDir()
	updater := NewUpdater(store, root, nil)

	current, err := store.List(rules.ListFilter{})
	require.NoError(t, err)
	diff := Diff(current, []rules.Rule{mkRule("2.2", "replacement")})
	result, err := updater.Apply(diff, "IBC2024", "1")
	require.NoError(t, err)

	require.NoError(t, updater.Restore(result.BackupPath))
	after, err := store.List(rules.ListFilter{})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "original", after[0].Title)
}

func TestImpactScansElementsAndTemplates(t *testing.T) {
	root := t.TempDir()
	elemStore, err := element.NewStore(filepath.Join(root, "elements"))
	require.NoError(t, err)

	wall, err := elemStore.Create(element.CreateParams{IFCClass: "IfcWall", Name: "W"})
	require.NoError(t, err)
	_, err = elemStore.Create(element.CreateParams{IFCClass: "IfcDoor", Name: "D"})
	require.NoError(t, err)

	// A template folder with wall metadata.
	tmplDir := filepath.Join(root, "templates", "template_T1")
	require.NoError(t, os.MkdirAll(tmplDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmplDir, "metadata.json"),
		[]byte(`{"GlobalId":"T1","IFCClass":"IfcWall"}`), 0o644))

	changed := mkRule("1.1", "wall rule")
	diff := &DiffResult{Modified: []ModifiedPair{{Old: changed, New: changed}}}

	report, err := Impact(diff, filepath.Join(root, "elements"), filepath.Join(root, "templates"))
	require.NoError(t, err)

	assert.Equal(t, []string{"IfcWall"}, report.AffectedIFCClasses)
	assert.Equal(t, []string{element.FolderName(wall.GlobalID)}, report.AffectedElements)
	assert.Equal(t, []string{"template_T1"}, report.AffectedTemplates)
	assert.Equal(t, 2, report.TotalAffected)
	assert.Len(t, report.RevalidationNeeded, 2)
}

func TestChangeReportMarkdown(t *testing.T) {
	old := mkRule("1.2", "old title")
	new := mkRule("1.2", "new title")
	diff := &DiffResult{Modified: []ModifiedPair{{Old: old, New: new}}}

	report := &ChangeReport{
		CodeName:   "IBC2024",
		NewVersion: "2025.1",
		Diff:       diff,
	}
	md := report.ToMarkdown()
	assert.Contains(t, md, "# Regulatory Update Report")
	assert.Contains(t, md, "-  \"title\": \"old title\"")
	assert.Contains(t, md, "+  \"title\": \"new title\"")
}
