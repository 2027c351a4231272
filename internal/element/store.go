package element

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/metadata"
)

// Store manages the elements directory of a project.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given elements directory, creating
// it if necessary.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, root, "failed to create elements directory", err)
	}
	return &Store{root: root}, nil
}

// Root returns the elements directory.
func (s *Store) Root() string { return s.root }

// Folder returns the absolute folder path for a GlobalId.
func (s *Store) Folder(globalID string) string {
	return filepath.Join(s.root, FolderName(globalID))
}

// CreateParams describes a new element.
type CreateParams struct {
	IFCClass   string
	Name       string
	Properties map[string]map[string]any
	Materials  []MaterialLayer
	Geometry   *GeometryInfo
	Spatial    *SpatialReference
	// GlobalID is minted when empty.
	GlobalID string
}

// Create writes a new element folder from scratch, regenerates its derived
// artifacts, and returns the parsed element.
func (s *Store) Create(p CreateParams) (*Element, error) {
	if p.IFCClass == "" {
		return nil, aecerr.New(aecerr.InvalidArgument, "", "ifc_class must not be empty")
	}

	globalID := p.GlobalID
	if globalID == "" {
		globalID = NewGlobalID()
	}
	name := p.Name
	if name == "" {
		name = fmt.Sprintf("%s_%s", p.IFCClass, globalID[:8])
	}
	psets := p.Properties
	if psets == nil {
		psets = map[string]map[string]any{}
	}
	materials := p.Materials
	if materials == nil {
		materials = []MaterialLayer{}
	}
	geometry := GeometryInfo{Centroid: nil}
	if p.Geometry != nil {
		geometry = *p.Geometry
	}
	spatial := SpatialReference{}
	if p.Spatial != nil {
		spatial = *p.Spatial
	}

	folder := s.Folder(globalID)
	if _, err := os.Stat(folder); err == nil {
		return nil, aecerr.New(aecerr.Conflict, globalID, "element folder already exists")
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, folder, "failed to create element folder", err)
	}

	meta := metadata.Record{
		GlobalID:   globalID,
		Name:       name,
		IFCClass:   p.IFCClass,
		ObjectType: nil,
		Tag:        nil,
		Psets:      FlattenPsets(psets),
	}

	if err := s.writeCanonical(folder, meta, psets, materials, geometry, spatial); err != nil {
		return nil, err
	}

	if _, err := metadata.Generate(folder, metadata.Options{}); err != nil {
		// Derived artifacts never block the mutation.
		logging.Get(logging.CategoryElement).Warnf("artifact generation failed for %s: %v", globalID, err)
	}

	logging.Get(logging.CategoryElement).Infof("created element %s (%s) at %s", name, p.IFCClass, folder)
	return s.Get(globalID)
}

// writeCanonical writes the five canonical JSON files, each atomically.
func (s *Store) writeCanonical(folder string, meta metadata.Record,
	psets map[string]map[string]any, materials []MaterialLayer,
	geometry GeometryInfo, spatial SpatialReference) error {

	writes := []struct {
		rel string
		v   any
	}{
		{MetadataFile, meta},
		{PsetsFile, psets},
		{MaterialsFile, materials},
		{GeometryFile, geometry},
		{SpatialFile, spatial},
	}
	for _, w := range writes {
		path := filepath.Join(folder, filepath.FromSlash(w.rel))
		if err := fsutil.WriteJSONAtomic(path, w.v); err != nil {
			return aecerr.Wrap(aecerr.IO, path, "failed to write element file", err)
		}
	}
	return nil
}

// Get parses an element folder. A missing folder is a not_found error; a
// corrupt leaf file yields a partial element with defaults for that leaf
// and a structured warning in the log.
func (s *Store) Get(globalID string) (*Element, error) {
	folder := s.Folder(globalID)
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return nil, aecerr.New(aecerr.NotFound, globalID, "element does not exist")
	}

	var meta metadata.Record
	if err := fsutil.ReadJSON(filepath.Join(folder, MetadataFile), &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, aecerr.New(aecerr.NotFound, globalID, "element metadata does not exist")
		}
		logging.Get(logging.CategoryElement).Warnf("corrupt metadata.json for %s: %v", globalID, err)
		meta = metadata.Record{GlobalID: globalID}
	}
	if meta.GlobalID == "" {
		meta.GlobalID = globalID
	}

	elem := &Element{
		GlobalID:   meta.GlobalID,
		IFCClass:   meta.IFCClass,
		Name:       meta.Name,
		ObjectType: meta.ObjectType,
		Tag:        meta.Tag,
		Psets:      map[string]map[string]any{},
		Materials:  []MaterialLayer{},
	}

	if err := fsutil.ReadJSON(filepath.Join(folder, filepath.FromSlash(PsetsFile)), &elem.Psets); err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryElement).Warnf("corrupt psets.json for %s: %v", globalID, err)
		elem.Psets = map[string]map[string]any{}
	}
	if err := fsutil.ReadJSON(filepath.Join(folder, filepath.FromSlash(MaterialsFile)), &elem.Materials); err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryElement).Warnf("corrupt materials.json for %s: %v", globalID, err)
		elem.Materials = []MaterialLayer{}
	}
	if err := fsutil.ReadJSON(filepath.Join(folder, filepath.FromSlash(GeometryFile)), &elem.Geometry); err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryElement).Warnf("corrupt shape.json for %s: %v", globalID, err)
		elem.Geometry = GeometryInfo{}
	}
	if err := fsutil.ReadJSON(filepath.Join(folder, filepath.FromSlash(SpatialFile)), &elem.Spatial); err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryElement).Warnf("corrupt spatial.json for %s: %v", globalID, err)
		elem.Spatial = SpatialReference{}
	}

	return elem, nil
}

// Diff is a typed update applied by Update. Name replaces; Properties
// deep-merge by pset name; Materials fully replace.
type Diff struct {
	Name       *string
	Properties map[string]map[string]any
	Materials  []MaterialLayer
}

// Update applies a typed diff to an existing element, rewrites the affected
// canonical files atomically, and regenerates the derived artifacts.
func (s *Store) Update(globalID string, diff Diff) (*Element, error) {
	folder := s.Folder(globalID)
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return nil, aecerr.New(aecerr.NotFound, globalID, "element does not exist")
	}

	var meta metadata.Record
	metaPath := filepath.Join(folder, MetadataFile)
	if err := fsutil.ReadJSON(metaPath, &meta); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, metaPath, "failed to read element metadata", err)
	}

	if diff.Name != nil {
		meta.Name = *diff.Name
	}

	if diff.Properties != nil {
		psetsPath := filepath.Join(folder, filepath.FromSlash(PsetsFile))
		psets := map[string]map[string]any{}
		if err := fsutil.ReadJSON(psetsPath, &psets); err != nil && !os.IsNotExist(err) {
			logging.Get(logging.CategoryElement).Warnf("corrupt psets.json for %s, rebuilding: %v", globalID, err)
			psets = map[string]map[string]any{}
		}
		for psetName, props := range diff.Properties {
			if _, ok := psets[psetName]; !ok {
				psets[psetName] = map[string]any{}
			}
			for k, v := range props {
				psets[psetName][k] = v
			}
		}
		if err := fsutil.WriteJSONAtomic(psetsPath, psets); err != nil {
			return nil, aecerr.Wrap(aecerr.IO, psetsPath, "failed to write psets", err)
		}
		meta.Psets = FlattenPsets(psets)
	}

	if diff.Materials != nil {
		matPath := filepath.Join(folder, filepath.FromSlash(MaterialsFile))
		if err := fsutil.WriteJSONAtomic(matPath, diff.Materials); err != nil {
			return nil, aecerr.Wrap(aecerr.IO, matPath, "failed to write materials", err)
		}
	}

	if err := fsutil.WriteJSONAtomic(metaPath, meta); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, metaPath, "failed to write element metadata", err)
	}

	if _, err := metadata.Generate(folder, metadata.Options{}); err != nil {
		logging.Get(logging.CategoryElement).Warnf("artifact regeneration failed for %s: %v", globalID, err)
	}

	return s.Get(globalID)
}

// Delete removes an element folder recursively, reporting whether it
// existed.
func (s *Store) Delete(globalID string) (bool, error) {
	folder := s.Folder(globalID)
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return false, nil
	}
	if err := os.RemoveAll(folder); err != nil {
		return false, aecerr.Wrap(aecerr.IO, folder, "failed to remove element folder", err)
	}
	logging.Get(logging.CategoryElement).Infof("deleted element %s", globalID)
	return true, nil
}

// ListFilter narrows List. Matching is case-insensitive: IFCClass exact,
// Name substring, Material substring against any layer name.
type ListFilter struct {
	IFCClass string
	Name     string
	Material string
}

// List walks the elements directory in lexicographic folder-name order and
// returns every parseable element passing the filter.
func (s *Store) List(f ListFilter) ([]*Element, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, aecerr.Wrap(aecerr.IO, s.root, "failed to read elements directory", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), FolderPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []*Element
	for _, name := range names {
		globalID := strings.TrimPrefix(name, FolderPrefix)
		elem, err := s.Get(globalID)
		if err != nil {
			continue
		}
		if f.IFCClass != "" && !strings.EqualFold(elem.IFCClass, f.IFCClass) {
			continue
		}
		if f.Name != "" && !strings.Contains(strings.ToLower(elem.Name), strings.ToLower(f.Name)) {
			continue
		}
		if f.Material != "" {
			needle := strings.ToLower(f.Material)
			found := false
			for _, m := range elem.Materials {
				if strings.Contains(strings.ToLower(m.Name), needle) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, elem)
	}
	return out, nil
}

// Regenerate rebuilds the derived Markdown artifacts for an element. The
// renderers are deterministic: unchanged canonical files produce identical
// bytes.
func (s *Store) Regenerate(globalID string, opts metadata.Options) error {
	folder := s.Folder(globalID)
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return aecerr.New(aecerr.NotFound, globalID, "element does not exist")
	}
	if _, err := metadata.Generate(folder, opts); err != nil {
		return err
	}
	return nil
}

// VerifyFolderNames checks the invariant that every element_<X> folder
// contains a metadata.json whose GlobalId equals <X>. It returns the list
// of violating folder names.
func (s *Store) VerifyFolderNames() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, aecerr.Wrap(aecerr.IO, s.root, "failed to read elements directory", err)
	}

	var bad []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), FolderPrefix) {
			continue
		}
		want := strings.TrimPrefix(e.Name(), FolderPrefix)
		var meta metadata.Record
		if err := fsutil.ReadJSON(filepath.Join(s.root, e.Name(), MetadataFile), &meta); err != nil {
			bad = append(bad, e.Name())
			continue
		}
		if meta.GlobalID != want {
			bad = append(bad, e.Name())
		}
	}
	return bad, nil
}
