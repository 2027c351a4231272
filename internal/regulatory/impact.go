package regulatory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/metadata"
)

// ImpactReport lists the folders affected by a rule change. It never
// mutates them; affected items are flagged for revalidation.
type ImpactReport struct {
	AffectedTemplates  []string `json:"affected_templates"`
	AffectedElements   []string `json:"affected_elements"`
	RevalidationNeeded []string `json:"re_validation_needed"`
	AffectedIFCClasses []string `json:"affected_ifc_classes"`
	TotalAffected      int      `json:"total_affected"`
}

// Summary renders the one-line impact summary.
func (r *ImpactReport) Summary() string {
	return fmt.Sprintf("Affected: %d templates, %d elements, %d need re-validation.",
		len(r.AffectedTemplates), len(r.AffectedElements), len(r.RevalidationNeeded))
}

// Impact scans the element store and template library for folders whose
// IFC class appears in the union of the changed rules' classes. The two
// scans run concurrently.
func Impact(diff *DiffResult, elementsDir, templatesDir string) (*ImpactReport, error) {
	report := &ImpactReport{}
	if !diff.HasChanges() {
		return report, nil
	}

	affected := map[string]bool{}
	for _, rule := range diff.Added {
		for _, c := range rule.IFCClasses {
			affected[c] = true
		}
	}
	for _, pair := range diff.Modified {
		for _, c := range pair.New.IFCClasses {
			affected[c] = true
		}
	}
	for _, rule := range diff.Removed {
		for _, c := range rule.IFCClasses {
			affected[c] = true
		}
	}
	for c := range affected {
		report.AffectedIFCClasses = append(report.AffectedIFCClasses, c)
	}
	sort.Strings(report.AffectedIFCClasses)

	var g errgroup.Group
	g.Go(func() error {
		report.AffectedElements = scanFolders(elementsDir, "element_", affected)
		return nil
	})
	g.Go(func() error {
		report.AffectedTemplates = scanFolders(templatesDir, "template_", affected)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.RevalidationNeeded = append(
		append([]string{}, report.AffectedTemplates...), report.AffectedElements...)
	report.TotalAffected = len(report.AffectedTemplates) + len(report.AffectedElements)

	logging.Get(logging.CategoryRegulatory).Infof("impact analysis: %s", report.Summary())
	return report, nil
}

// scanFolders returns the names of folders under dir (with the given
// prefix) whose metadata.json IFCClass is in the affected set.
func scanFolders(dir, prefix string, affected map[string]bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		var meta metadata.Record
		if err := fsutil.ReadJSON(filepath.Join(dir, e.Name(), "metadata.json"), &meta); err != nil {
			continue
		}
		if affected[meta.IFCClass] {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}
