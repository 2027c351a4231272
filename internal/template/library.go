package template

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/metadata"
)

// FolderPrefix is the naming prefix of every template folder.
const FolderPrefix = "template_"

// Manifest is the wire form of template_manifest.json.
type Manifest struct {
	TemplateID  string `json:"template_id"`
	Tags        Tags   `json:"tags"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// Library manages the templates directory of a project.
type Library struct {
	root     string
	registry *Registry
}

// NewLibrary opens (or creates) the library rooted at the given directory.
func NewLibrary(root string) (*Library, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, root, "failed to create templates directory", err)
	}
	return &Library{root: root, registry: LoadRegistry(root)}, nil
}

// Root returns the library directory.
func (l *Library) Root() string { return l.root }

// Folder returns the absolute folder path for a template id.
func (l *Library) Folder(id string) string {
	return filepath.Join(l.root, FolderPrefix+id)
}

// AddParams describes a template being added or promoted.
type AddParams struct {
	Tags        Tags
	Version     string
	Author      string
	Description string
}

func (p *AddParams) defaults() {
	if p.Version == "" {
		p.Version = "1.0.0"
	}
}

// Add copies sourceFolder into the library under the given id, writes the
// manifest, and updates the registry atomically. An existing template with
// the same id is replaced.
func (l *Library) Add(id, sourceFolder string, p AddParams) (string, error) {
	if id == "" {
		return "", aecerr.New(aecerr.InvalidArgument, "", "template id must not be empty")
	}
	info, err := os.Stat(sourceFolder)
	if err != nil || !info.IsDir() {
		return "", aecerr.New(aecerr.NotFound, sourceFolder, "source folder does not exist")
	}
	p.defaults()

	dest := l.Folder(id)
	if err := os.RemoveAll(dest); err != nil {
		return "", aecerr.Wrap(aecerr.IO, dest, "failed to clear existing template", err)
	}
	if err := fsutil.CopyDir(sourceFolder, dest); err != nil {
		return "", aecerr.Wrap(aecerr.IO, dest, "failed to copy template folder", err)
	}

	manifest := Manifest{
		TemplateID:  id,
		Tags:        p.Tags,
		Version:     p.Version,
		Author:      p.Author,
		Description: p.Description,
	}
	if err := fsutil.WriteJSONAtomic(filepath.Join(dest, metadata.ManifestFile), manifest); err != nil {
		return "", aecerr.Wrap(aecerr.IO, dest, "failed to write manifest", err)
	}

	l.registry.Add(Entry{
		TemplateID:  id,
		FolderName:  filepath.Base(dest),
		Tags:        p.Tags,
		Version:     p.Version,
		Author:      p.Author,
		Description: p.Description,
	})
	if err := l.registry.Save(); err != nil {
		return "", err
	}

	if _, err := metadata.Generate(dest, metadata.Options{}); err != nil {
		logging.Get(logging.CategoryTemplate).Warnf("artifact generation failed for template %s: %v", id, err)
	}

	logging.Get(logging.CategoryTemplate).Infof("added template %s -> %s", id, dest)
	return dest, nil
}

// Get returns the folder path for a template id.
func (l *Library) Get(id string) (string, error) {
	entry := l.registry.Get(id)
	if entry == nil {
		return "", aecerr.New(aecerr.NotFound, id, "template does not exist")
	}
	folder := filepath.Join(l.root, entry.FolderName)
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		// The registry row dangles; the on-disk folders are authoritative.
		return "", aecerr.New(aecerr.NotFound, id, "template folder is missing")
	}
	return folder, nil
}

// GetManifest returns the parsed manifest for a template id.
func (l *Library) GetManifest(id string) (*Manifest, error) {
	folder, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := fsutil.ReadJSON(filepath.Join(folder, metadata.ManifestFile), &m); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, id, "failed to read manifest", err)
	}
	return &m, nil
}

// UpdateParams carries the fields Update may change; nil fields are
// preserved.
type UpdateParams struct {
	Tags        *Tags
	Version     *string
	Author      *string
	Description *string
}

// Update rewrites a template's manifest and registry entry.
func (l *Library) Update(id string, p UpdateParams) (string, error) {
	entry := l.registry.Get(id)
	if entry == nil {
		return "", aecerr.New(aecerr.NotFound, id, "template does not exist")
	}
	folder := filepath.Join(l.root, entry.FolderName)

	if p.Tags != nil {
		entry.Tags = *p.Tags
	}
	if p.Version != nil {
		entry.Version = *p.Version
	}
	if p.Author != nil {
		entry.Author = *p.Author
	}
	if p.Description != nil {
		entry.Description = *p.Description
	}

	manifest := Manifest{
		TemplateID:  entry.TemplateID,
		Tags:        entry.Tags,
		Version:     entry.Version,
		Author:      entry.Author,
		Description: entry.Description,
	}
	if err := fsutil.WriteJSONAtomic(filepath.Join(folder, metadata.ManifestFile), manifest); err != nil {
		return "", aecerr.Wrap(aecerr.IO, folder, "failed to write manifest", err)
	}

	l.registry.Add(*entry)
	if err := l.registry.Save(); err != nil {
		return "", err
	}
	return folder, nil
}

// Remove deletes a template folder and its registry entry, reporting
// whether it existed.
func (l *Library) Remove(id string) (bool, error) {
	entry := l.registry.Remove(id)
	if entry == nil {
		return false, nil
	}
	folder := filepath.Join(l.root, entry.FolderName)
	if err := os.RemoveAll(folder); err != nil {
		return false, aecerr.Wrap(aecerr.IO, folder, "failed to remove template folder", err)
	}
	if err := l.registry.Save(); err != nil {
		return false, err
	}
	logging.Get(logging.CategoryTemplate).Infof("removed template %s", id)
	return true, nil
}

// Promote registers an element folder as a template. The id derives from
// the element's GlobalId unless given, and tags.ifc_class auto-populates
// from the source metadata when absent.
func (l *Library) Promote(elementFolder string, id string, p AddParams) (string, error) {
	info, err := os.Stat(elementFolder)
	if err != nil || !info.IsDir() {
		return "", aecerr.New(aecerr.NotFound, elementFolder, "element folder does not exist")
	}

	var meta metadata.Record
	metaErr := fsutil.ReadJSON(filepath.Join(elementFolder, "metadata.json"), &meta)

	if id == "" {
		if metaErr == nil && meta.GlobalID != "" {
			id = meta.GlobalID
		} else {
			id = strings.TrimPrefix(filepath.Base(elementFolder), "element_")
		}
	}
	if p.Tags.IFCClass == nil && metaErr == nil && meta.IFCClass != "" {
		cls := meta.IFCClass
		p.Tags.IFCClass = &cls
	}

	return l.Add(id, elementFolder, p)
}

// Search returns registry entries satisfying every filter in q. An empty
// query matches everything.
func (l *Library) Search(q Query) []Entry {
	var out []Entry
	for _, entry := range l.registry.List() {
		if !entry.Tags.Matches(q) {
			continue
		}
		if q.Description != "" &&
			!strings.Contains(strings.ToLower(entry.Description), strings.ToLower(q.Description)) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// List returns every registry entry.
func (l *Library) List() []Entry { return l.registry.List() }
