// Package validation implements the default element validator: geometric
// and semantic checks over a folder plus axis-aligned bounding-box clash
// detection against context elements.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/metadata"
)

// Validator is the collaborator interface the pipeline and facade depend on.
type Validator interface {
	Validate(folder string, context []string) (*Report, error)
}

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Issue is one finding from a validation rule.
type Issue struct {
	Severity   string `json:"severity"`
	RuleName   string `json:"rule_name"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// Clash is one bounding-box overlap between two elements.
type Clash struct {
	A       string `json:"a"`
	B       string `json:"b"`
	Message string `json:"message"`
}

// Rule is a pluggable validation check over parsed folder data.
type Rule struct {
	Name  string
	Check func(d Data) []Issue
}

// Data is what the rules see: the parsed canonical files of one folder.
type Data struct {
	Folder    string
	Meta      metadata.Record
	Psets     map[string]map[string]any
	Materials []element.MaterialLayer
	Geometry  element.GeometryInfo
}

// Engine runs a rule registry over element folders. Additional rules can
// be registered by domain plugins.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine with the built-in rule set.
func NewEngine() *Engine {
	e := &Engine{}
	e.rules = append(e.rules, geometricRules()...)
	e.rules = append(e.rules, semanticRules()...)
	e.rules = append(e.rules, constructabilityRules()...)
	return e
}

// AddRule registers an additional validation rule. A rule whose name is
// already registered is ignored, so re-injecting domain rules is a no-op.
func (e *Engine) AddRule(r Rule) {
	for _, existing := range e.rules {
		if existing.Name == r.Name {
			return
		}
	}
	e.rules = append(e.rules, r)
}

func loadData(folder string) (Data, error) {
	d := Data{Folder: folder}
	if err := fsutil.ReadJSON(filepath.Join(folder, "metadata.json"), &d.Meta); err != nil {
		return d, aecerr.Wrap(aecerr.NotFound, folder, "failed to read element metadata", err)
	}
	if err := fsutil.ReadJSON(filepath.Join(folder, "properties", "psets.json"), &d.Psets); err != nil {
		d.Psets = map[string]map[string]any{}
	}
	if err := fsutil.ReadJSON(filepath.Join(folder, "materials", "materials.json"), &d.Materials); err != nil {
		d.Materials = nil
	}
	if err := fsutil.ReadJSON(filepath.Join(folder, "geometry", "shape.json"), &d.Geometry); err != nil {
		d.Geometry = element.GeometryInfo{}
	}
	return d, nil
}

// Validate runs every rule against the folder and clash detection against
// the context folders.
func (e *Engine) Validate(folder string, context []string) (*Report, error) {
	d, err := loadData(folder)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, rule := range e.rules {
		issues = append(issues, rule.Check(d)...)
	}

	var clashes []Clash
	for _, ctxFolder := range context {
		cd, err := loadData(ctxFolder)
		if err != nil {
			continue
		}
		if cd.Meta.GlobalID == d.Meta.GlobalID {
			continue
		}
		if boxesOverlap(d.Geometry.BoundingBox, cd.Geometry.BoundingBox) {
			clashes = append(clashes, Clash{
				A:       d.Meta.GlobalID,
				B:       cd.Meta.GlobalID,
				Message: fmt.Sprintf("bounding boxes of %s and %s overlap", d.Meta.GlobalID, cd.Meta.GlobalID),
			})
		}
	}

	status := StatusPassed
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			status = StatusFailed
			break
		}
		if issue.Severity == SeverityWarning {
			status = StatusWarnings
		}
	}
	if len(clashes) > 0 {
		status = StatusFailed
	}

	return &Report{
		ElementID:   d.Meta.GlobalID,
		IFCClass:    d.Meta.IFCClass,
		Status:      status,
		Issues:      issues,
		Clashes:     clashes,
		ValidatedAt: time.Now().UTC(),
	}, nil
}

// boxesOverlap reports axis-aligned overlap with positive volume.
func boxesOverlap(a, b element.BoundingBox) bool {
	if a == (element.BoundingBox{}) || b == (element.BoundingBox{}) {
		return false
	}
	return a.MinX < b.MaxX && b.MinX < a.MaxX &&
		a.MinY < b.MaxY && b.MinY < a.MaxY &&
		a.MinZ < b.MaxZ && b.MinZ < a.MaxZ
}

func geometricRules() []Rule {
	return []Rule{
		{
			Name: "bounding-box-degenerate",
			Check: func(d Data) []Issue {
				bb := d.Geometry.BoundingBox
				if bb == (element.BoundingBox{}) {
					return []Issue{{
						Severity:   SeverityWarning,
						RuleName:   "bounding-box-degenerate",
						Message:    "element has no geometry summary",
						Suggestion: "regenerate geometry/shape.json from the builder",
					}}
				}
				if bb.MaxX < bb.MinX || bb.MaxY < bb.MinY || bb.MaxZ < bb.MinZ {
					return []Issue{{
						Severity:   SeverityError,
						RuleName:   "bounding-box-degenerate",
						Message:    "bounding box has negative extent",
						Suggestion: "check min/max ordering in shape.json",
					}}
				}
				return nil
			},
		},
		{
			Name: "volume-consistency",
			Check: func(d Data) []Issue {
				if d.Geometry.Volume == nil {
					return nil
				}
				bb := d.Geometry.BoundingBox
				boxVol := (bb.MaxX - bb.MinX) * (bb.MaxY - bb.MinY) * (bb.MaxZ - bb.MinZ)
				if boxVol > 0 && *d.Geometry.Volume > boxVol*1.001 {
					return []Issue{{
						Severity:   SeverityError,
						RuleName:   "volume-consistency",
						Message:    fmt.Sprintf("volume %.4f exceeds bounding-box volume %.4f", *d.Geometry.Volume, boxVol),
						Suggestion: "recompute volume from the element geometry",
					}}
				}
				return nil
			},
		},
	}
}

func semanticRules() []Rule {
	return []Rule{
		{
			Name: "metadata-required-keys",
			Check: func(d Data) []Issue {
				var issues []Issue
				if d.Meta.GlobalID == "" {
					issues = append(issues, Issue{
						Severity: SeverityError, RuleName: "metadata-required-keys",
						Message:    "metadata.json is missing GlobalId",
						Suggestion: "rewrite metadata.json with a valid GlobalId",
					})
				}
				if d.Meta.IFCClass == "" {
					issues = append(issues, Issue{
						Severity: SeverityError, RuleName: "metadata-required-keys",
						Message:    "metadata.json is missing IFCClass",
						Suggestion: "set IFCClass to the element's taxonomy string",
					})
				}
				return issues
			},
		},
		{
			Name: "folder-name-matches-id",
			Check: func(d Data) []Issue {
				base := filepath.Base(d.Folder)
				want := strings.TrimPrefix(strings.TrimPrefix(base, "element_"), "template_")
				if d.Meta.GlobalID != "" && want != d.Meta.GlobalID {
					return []Issue{{
						Severity: SeverityError, RuleName: "folder-name-matches-id",
						Message:    fmt.Sprintf("folder %s does not match GlobalId %s", base, d.Meta.GlobalID),
						Suggestion: "rename the folder or fix metadata.json",
					}}
				}
				return nil
			},
		},
		{
			Name: "psets-present",
			Check: func(d Data) []Issue {
				if len(d.Psets) == 0 {
					return []Issue{{
						Severity: SeverityInfo, RuleName: "psets-present",
						Message:    "element carries no property sets",
						Suggestion: "populate properties/psets.json for downstream checks",
					}}
				}
				return nil
			},
		},
	}
}

func constructabilityRules() []Rule {
	return []Rule{
		{
			Name: "wall-thickness-range",
			Check: func(d Data) []Issue {
				if d.Meta.IFCClass != "IfcWall" && d.Meta.IFCClass != "IfcWallStandardCase" {
					return nil
				}
				dims, ok := d.Psets["Dimensions"]
				if !ok {
					return nil
				}
				t, ok := dims["thickness_mm"].(float64)
				if !ok {
					return nil
				}
				if t < 50 || t > 1200 {
					return []Issue{{
						Severity: SeverityWarning, RuleName: "wall-thickness-range",
						Message:    fmt.Sprintf("wall thickness %.0f mm is outside the constructible range 50-1200 mm", t),
						Suggestion: "verify the thickness value or split the assembly",
					}}
				}
				return nil
			},
		},
		{
			Name: "material-layers-declared",
			Check: func(d Data) []Issue {
				if len(d.Materials) == 0 {
					return []Issue{{
						Severity: SeverityWarning, RuleName: "material-layers-declared",
						Message:    "element has no material layers",
						Suggestion: "declare at least one layer in materials/materials.json",
					}}
				}
				return nil
			},
		},
	}
}
