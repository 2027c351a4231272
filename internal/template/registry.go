package template

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/logging"
)

// RegistryFile is the canonical index at the library root.
const RegistryFile = "registry.json"

// Entry is one row in the registry.
type Entry struct {
	TemplateID  string `json:"template_id"`
	FolderName  string `json:"folder_name"`
	Tags        Tags   `json:"tags"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

type registryPayload struct {
	Version   string  `json:"version"`
	Templates []Entry `json:"templates"`
}

// Registry is the in-memory view of registry.json. Every save is atomic
// (temp file + rename); a corrupt file on load starts empty, leaving the
// on-disk folders authoritative.
type Registry struct {
	root    string
	path    string
	entries map[string]Entry
}

// LoadRegistry reads the registry at the library root.
func LoadRegistry(root string) *Registry {
	r := &Registry{
		root:    root,
		path:    filepath.Join(root, RegistryFile),
		entries: map[string]Entry{},
	}

	var payload registryPayload
	if err := fsutil.ReadJSON(r.path, &payload); err != nil {
		if !os.IsNotExist(err) {
			logging.Get(logging.CategoryTemplate).Warnf("corrupt registry at %s, starting fresh: %v", r.path, err)
		}
		return r
	}
	for _, e := range payload.Templates {
		r.entries[e.TemplateID] = e
	}
	return r
}

// Save persists the registry atomically, entries sorted by id.
func (r *Registry) Save() error {
	payload := registryPayload{Version: "1", Templates: r.List()}
	if err := fsutil.WriteJSONAtomic(r.path, payload); err != nil {
		return aecerr.Wrap(aecerr.IO, r.path, "failed to write registry", err)
	}
	return nil
}

// Add inserts or replaces an entry.
func (r *Registry) Add(e Entry) { r.entries[e.TemplateID] = e }

// Get returns the entry for an id, or nil.
func (r *Registry) Get(id string) *Entry {
	if e, ok := r.entries[id]; ok {
		return &e
	}
	return nil
}

// Remove deletes an entry, returning it when it existed.
func (r *Registry) Remove(id string) *Entry {
	if e, ok := r.entries[id]; ok {
		delete(r.entries, id)
		return &e
	}
	return nil
}

// List returns all entries sorted by template id.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateID < out[j].TemplateID })
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }
