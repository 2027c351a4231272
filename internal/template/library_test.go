package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/element"
)

// newSourceElement writes a minimal element folder to promote from.
func newSourceElement(t *testing.T, globalID, ifcClass string) string {
	t.Helper()
	root := t.TempDir()
	store, err := element.NewStore(root)
	require.NoError(t, err)
	_, err = store.Create(element.CreateParams{
		IFCClass: ifcClass,
		Name:     "Source " + ifcClass,
		GlobalID: globalID,
	})
	require.NoError(t, err)
	return store.Folder(globalID)
}

func newLibrary(t *testing.T) *Library {
	t.Helper()
	l, err := NewLibrary(filepath.Join(t.TempDir(), "templates"))
	require.NoError(t, err)
	return l
}

func TestAddGetRemove(t *testing.T) {
	l := newLibrary(t)
	src := newSourceElement(t, "WALLAAAAAAAAAAAAAAAAAA", "IfcWall")

	dest, err := l.Add("std-wall", src, AddParams{
		Tags:        Tags{Material: []string{"concrete"}},
		Author:      "alice",
		Description: "Standard fire-rated wall",
	})
	require.NoError(t, err)
	assert.Equal(t, "template_std-wall", filepath.Base(dest))

	// The copied folder plus the manifest exist.
	_, err = os.Stat(filepath.Join(dest, "metadata.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "template_manifest.json"))
	assert.NoError(t, err)

	got, err := l.Get("std-wall")
	require.NoError(t, err)
	assert.Equal(t, dest, got)

	manifest, err := l.GetManifest("std-wall")
	require.NoError(t, err)
	assert.Equal(t, "std-wall", manifest.TemplateID)
	assert.Equal(t, "1.0.0", manifest.Version)
	assert.Equal(t, []string{"concrete"}, manifest.Tags.Material)

	removed, err := l.Remove("std-wall")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = l.Get("std-wall")
	assert.True(t, aecerr.IsNotFound(err))

	removed, err = l.Remove("std-wall")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAddRejectsMissingSource(t *testing.T) {
	l := newLibrary(t)
	_, err := l.Add("x", filepath.Join(t.TempDir(), "nope"), AddParams{})
	assert.True(t, aecerr.IsNotFound(err))

	_, err = l.Add("", t.TempDir(), AddParams{})
	assert.Equal(t, aecerr.InvalidArgument, aecerr.KindOf(err))
}

func TestPromoteDerivesIDAndClass(t *testing.T) {
	l := newLibrary(t)
	src := newSourceElement(t, "DOORAAAAAAAAAAAAAAAAAA", "IfcDoor")

	dest, err := l.Promote(src, "", AddParams{})
	require.NoError(t, err)
	assert.Equal(t, "template_DOORAAAAAAAAAAAAAAAAAA", filepath.Base(dest))

	manifest, err := l.GetManifest("DOORAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	require.NotNil(t, manifest.Tags.IFCClass)
	assert.Equal(t, "IfcDoor", *manifest.Tags.IFCClass)
}

func TestUpdatePreservesUnsetFields(t *testing.T) {
	l := newLibrary(t)
	src := newSourceElement(t, "WALLBBBBBBBBBBBBBBBBBB", "IfcWall")
	_, err := l.Add("w", src, AddParams{Author: "alice", Description: "original"})
	require.NoError(t, err)

	v2 := "2.0.0"
	_, err = l.Update("w", UpdateParams{Version: &v2})
	require.NoError(t, err)

	manifest, err := l.GetManifest("w")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", manifest.Version)
	assert.Equal(t, "alice", manifest.Author)
	assert.Equal(t, "original", manifest.Description)

	_, err = l.Update("missing", UpdateParams{Version: &v2})
	assert.True(t, aecerr.IsNotFound(err))
}

func addTagged(t *testing.T, l *Library, id, ifcClass string, tags Tags, desc string) {
	t.Helper()
	src := newSourceElement(t, "SRC"+id+"AAAAAAAAAAAAAAA", ifcClass)
	cls := ifcClass
	if tags.IFCClass == nil {
		tags.IFCClass = &cls
	}
	_, err := l.Add(id, src, AddParams{Tags: tags, Description: desc})
	require.NoError(t, err)
}

func TestSearchSemantics(t *testing.T) {
	l := newLibrary(t)
	addTagged(t, l, "wall-us", "IfcWall",
		Tags{Material: []string{"concrete"}, Region: []string{"US"}, ComplianceCodes: []string{"IBC2024"}},
		"Concrete wall for US projects")
	addTagged(t, l, "wall-ca", "IfcWall",
		Tags{Material: []string{"gypsum"}, Region: []string{"CA"}, Custom: []string{"seismic"}},
		"California partition")
	addTagged(t, l, "door", "IfcDoor",
		Tags{Material: []string{"wood"}, Region: []string{"US"}},
		"Entry door")

	// Class filter is exact, case-insensitive.
	got := l.Search(Query{IFCClass: "ifcwall"})
	assert.Len(t, got, 2)

	// List-valued filters pass on non-empty intersection.
	got = l.Search(Query{Material: []string{"concrete", "steel"}})
	require.Len(t, got, 1)
	assert.Equal(t, "wall-us", got[0].TemplateID)

	// tags requires all-of across the union of tag fields.
	got = l.Search(Query{Tags: []string{"gypsum", "seismic"}})
	require.Len(t, got, 1)
	assert.Equal(t, "wall-ca", got[0].TemplateID)
	got = l.Search(Query{Tags: []string{"gypsum", "missing"}})
	assert.Empty(t, got)

	// Keyword is a substring over every tag string.
	got = l.Search(Query{Keyword: "seism"})
	assert.Len(t, got, 1)

	// Description substring.
	got = l.Search(Query{Description: "california"})
	require.Len(t, got, 1)
	assert.Equal(t, "wall-ca", got[0].TemplateID)

	// AND combination.
	got = l.Search(Query{IFCClass: "IfcWall", Region: []string{"US"}})
	require.Len(t, got, 1)
	assert.Equal(t, "wall-us", got[0].TemplateID)
}

func TestSearchMonotonicity(t *testing.T) {
	l := newLibrary(t)
	addTagged(t, l, "wall-a", "IfcWall", Tags{Material: []string{"concrete"}}, "A")

	queries := []Query{
		{IFCClass: "IfcWall"},
		{Material: []string{"concrete"}},
		{Keyword: "concrete"},
	}
	before := make([]int, len(queries))
	for i, q := range queries {
		before[i] = len(l.Search(q))
	}

	addTagged(t, l, "wall-b", "IfcWall", Tags{Material: []string{"concrete", "gypsum"}}, "B")

	for i, q := range queries {
		after := len(l.Search(q))
		assert.GreaterOrEqual(t, after, before[i], "query %d shrank after adding a template", i)
	}
}

func TestCorruptRegistryStartsEmpty(t *testing.T) {
	root := filepath.Join(t.TempDir(), "templates")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, RegistryFile), []byte("{broken"), 0o644))

	l, err := NewLibrary(root)
	require.NoError(t, err)
	assert.Empty(t, l.List())
}
