package element

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/metadata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "elements"))
	require.NoError(t, err)
	return s
}

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func sampleParams() CreateParams {
	return CreateParams{
		IFCClass: "IfcWall",
		Name:     "North Wall",
		Properties: map[string]map[string]any{
			"Pset_WallCommon": {"FireRating": "2H", "IsExternal": true},
			"Dimensions":      {"thickness_mm": 200.0, "height_mm": 3000.0},
		},
		Materials: []MaterialLayer{
			{Name: "concrete", Thickness: f64(150), Category: str("wall")},
			{Name: "gypsum", Thickness: f64(50), Category: str("wall")},
		},
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(sampleParams())
	require.NoError(t, err)
	require.Len(t, created.GlobalID, 22)

	got, err := s.Get(created.GlobalID)
	require.NoError(t, err)

	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("round trip mismatch (-created +got):\n%s", diff)
	}
	assert.Equal(t, "IfcWall", got.IFCClass)
	assert.Equal(t, "North Wall", got.Name)
	assert.Equal(t, "2H", got.Psets["Pset_WallCommon"]["FireRating"])
	require.Len(t, got.Materials, 2)
	assert.Equal(t, "concrete", got.Materials[0].Name)
}

func TestCreateFolderLayout(t *testing.T) {
	s := newTestStore(t)
	elem, err := s.Create(sampleParams())
	require.NoError(t, err)

	folder := s.Folder(elem.GlobalID)
	for _, rel := range []string{
		"metadata.json",
		"properties/psets.json",
		"materials/materials.json",
		"geometry/shape.json",
		"relationships/spatial.json",
		"README.md",
		"COMPLIANCE.md",
		"COST.md",
		"USAGE.md",
	} {
		_, err := os.Stat(filepath.Join(folder, filepath.FromSlash(rel)))
		assert.NoError(t, err, "missing %s", rel)
	}

	// metadata.json carries the flattened pset view.
	var meta metadata.Record
	data, err := os.ReadFile(filepath.Join(folder, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, elem.GlobalID, meta.GlobalID)
	assert.Equal(t, "2H", meta.Psets["Pset_WallCommon.FireRating"])
}

func TestCreateRejectsEmptyClassAndDuplicate(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(CreateParams{})
	assert.Equal(t, aecerr.InvalidArgument, aecerr.KindOf(err))

	elem, err := s.Create(sampleParams())
	require.NoError(t, err)

	p := sampleParams()
	p.GlobalID = elem.GlobalID
	_, err = s.Create(p)
	assert.True(t, aecerr.IsConflict(err))
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("NOPE")
	assert.True(t, aecerr.IsNotFound(err))
}

func TestGetCorruptLeafYieldsPartialElement(t *testing.T) {
	s := newTestStore(t)
	elem, err := s.Create(sampleParams())
	require.NoError(t, err)

	matPath := filepath.Join(s.Folder(elem.GlobalID), "materials", "materials.json")
	require.NoError(t, os.WriteFile(matPath, []byte("{not json"), 0o644))

	got, err := s.Get(elem.GlobalID)
	require.NoError(t, err)
	assert.Empty(t, got.Materials, "corrupt leaf should default")
	assert.Equal(t, "North Wall", got.Name, "intact leaves should survive")
}

func TestUpdateSemantics(t *testing.T) {
	s := newTestStore(t)
	elem, err := s.Create(sampleParams())
	require.NoError(t, err)

	// Name replacement, pset deep-merge, materials full replacement.
	updated, err := s.Update(elem.GlobalID, Diff{
		Name: str("South Wall"),
		Properties: map[string]map[string]any{
			"Dimensions": {"thickness_mm": 250.0},
			"NewPset":    {"key": "value"},
		},
		Materials: []MaterialLayer{{Name: "cmu"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "South Wall", updated.Name)
	// Deep merge: updated key replaced, sibling keys preserved.
	assert.Equal(t, 250.0, updated.Psets["Dimensions"]["thickness_mm"])
	assert.Equal(t, 3000.0, updated.Psets["Dimensions"]["height_mm"])
	assert.Equal(t, "2H", updated.Psets["Pset_WallCommon"]["FireRating"])
	assert.Equal(t, "value", updated.Psets["NewPset"]["key"])
	// Full replacement of materials.
	require.Len(t, updated.Materials, 1)
	assert.Equal(t, "cmu", updated.Materials[0].Name)

	_, err = s.Update("MISSING", Diff{Name: str("x")})
	assert.True(t, aecerr.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	elem, err := s.Create(sampleParams())
	require.NoError(t, err)

	deleted, err := s.Delete(elem.GlobalID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(elem.GlobalID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Get(elem.GlobalID)
	assert.True(t, aecerr.IsNotFound(err))
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)

	wall := sampleParams()
	_, err := s.Create(wall)
	require.NoError(t, err)

	door := CreateParams{
		IFCClass:  "IfcDoor",
		Name:      "Entry Door",
		Materials: []MaterialLayer{{Name: "Wood"}},
	}
	_, err = s.Create(door)
	require.NoError(t, err)

	all, err := s.List(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	walls, err := s.List(ListFilter{IFCClass: "ifcwall"})
	require.NoError(t, err)
	require.Len(t, walls, 1)
	assert.Equal(t, "North Wall", walls[0].Name)

	byName, err := s.List(ListFilter{Name: "entry"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "IfcDoor", byName[0].IFCClass)

	byMaterial, err := s.List(ListFilter{Material: "CONC"})
	require.NoError(t, err)
	require.Len(t, byMaterial, 1)
	assert.Equal(t, "IfcWall", byMaterial[0].IFCClass)

	none, err := s.List(ListFilter{IFCClass: "IfcWall", Material: "wood"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRegenerationIdempotent(t *testing.T) {
	s := newTestStore(t)
	elem, err := s.Create(sampleParams())
	require.NoError(t, err)
	folder := s.Folder(elem.GlobalID)

	read := func() map[string][]byte {
		out := map[string][]byte{}
		for _, name := range []string{"README.md", "COMPLIANCE.md", "COST.md", "USAGE.md"} {
			data, err := os.ReadFile(filepath.Join(folder, name))
			require.NoError(t, err)
			out[name] = data
		}
		return out
	}

	first := read()
	require.NoError(t, s.Regenerate(elem.GlobalID, metadata.Options{}))
	second := read()

	for name := range first {
		assert.Equal(t, string(first[name]), string(second[name]), "%s changed across regeneration", name)
	}
}

func TestVerifyFolderNames(t *testing.T) {
	s := newTestStore(t)
	elem, err := s.Create(sampleParams())
	require.NoError(t, err)

	bad, err := s.VerifyFolderNames()
	require.NoError(t, err)
	assert.Empty(t, bad)

	// Rename the folder out from under the metadata.
	oldFolder := s.Folder(elem.GlobalID)
	newFolder := filepath.Join(s.Root(), FolderPrefix+"WRONGIDWRONGIDWRONGIDX")
	require.NoError(t, os.Rename(oldFolder, newFolder))

	bad, err = s.VerifyFolderNames()
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.True(t, strings.HasPrefix(bad[0], FolderPrefix))
}

func TestNewGlobalID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewGlobalID()
		require.Len(t, id, 22)
		assert.Equal(t, strings.ToUpper(id), id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
