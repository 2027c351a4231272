// Package metadata generates the derived Markdown surface of an element or
// template folder from its canonical JSON files. Rendering is deterministic:
// unchanged source files produce byte-identical output, which is what makes
// regeneration idempotent and folder hashes stable.
package metadata

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/logging"
)

// ManifestFile marks a folder as a template.
const ManifestFile = "template_manifest.json"

// Record is the wire form of metadata.json. Psets holds the flattened
// "<PsetName>.<PropertyName>" view of the nested pset map.
type Record struct {
	GlobalID   string         `json:"GlobalId"`
	Name       string         `json:"Name"`
	IFCClass   string         `json:"IFCClass"`
	ObjectType *string        `json:"ObjectType"`
	Tag        *string        `json:"Tag"`
	Psets      map[string]any `json:"Psets"`
}

// Options carries pre-rendered report bodies. When a body is empty the
// corresponding file is rendered as a deterministic placeholder (for
// README/COMPLIANCE/COST/USAGE) or skipped entirely (VALIDATION/SCHEDULE).
type Options struct {
	ComplianceMD string
	CostMD       string
	ScheduleMD   string
	ValidationMD string
}

// folderData is everything the renderers read from disk.
type folderData struct {
	meta      Record
	psets     map[string]map[string]any
	materials []map[string]any
	spatial   map[string]any
	manifest  map[string]any
}

func loadJSON(path string, out any) {
	if err := fsutil.ReadJSON(path, out); err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryElement).Debugf("could not read %s: %v", path, err)
	}
}

// Generate writes the Markdown files for an element or template folder and
// returns the paths written.
func Generate(folder string, opts Options) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return nil, aecerr.New(aecerr.NotFound, folder, "element folder does not exist")
	}

	var d folderData
	loadJSON(filepath.Join(folder, "metadata.json"), &d.meta)
	loadJSON(filepath.Join(folder, "properties", "psets.json"), &d.psets)
	loadJSON(filepath.Join(folder, "materials", "materials.json"), &d.materials)
	loadJSON(filepath.Join(folder, "relationships", "spatial.json"), &d.spatial)

	if _, err := os.Stat(filepath.Join(folder, ManifestFile)); err == nil {
		loadJSON(filepath.Join(folder, ManifestFile), &d.manifest)
	}

	files := map[string]string{
		"README.md": renderReadme(d),
		"USAGE.md":  renderUsage(d),
	}
	if opts.ComplianceMD != "" {
		files["COMPLIANCE.md"] = opts.ComplianceMD
	} else {
		files["COMPLIANCE.md"] = renderCompliancePlaceholder(d)
	}
	if opts.CostMD != "" {
		files["COST.md"] = opts.CostMD
	} else {
		files["COST.md"] = renderCostPlaceholder(d)
	}
	if opts.ValidationMD != "" {
		files["VALIDATION.md"] = opts.ValidationMD
	}
	if opts.ScheduleMD != "" {
		files["SCHEDULE.md"] = opts.ScheduleMD
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		path := filepath.Join(folder, name)
		if err := fsutil.WriteFileAtomic(path, []byte(files[name]+"\n")); err != nil {
			return written, aecerr.Wrap(aecerr.IO, path, "failed to write artifact", err)
		}
		written = append(written, path)
	}
	return written, nil
}
