package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/quobo-ops/aecos/internal/audit"
	"github.com/quobo-ops/aecos/internal/cost"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/hashing"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/metadata"
	"github.com/quobo-ops/aecos/internal/nlp"
	"github.com/quobo-ops/aecos/internal/rules"
	"github.com/quobo-ops/aecos/internal/validation"
	"github.com/quobo-ops/aecos/internal/vcs"
)

// Generator runs the full generate pipeline. Log and Audit are optional;
// when nil, the commit and audit stages are skipped with a warning.
type Generator struct {
	Parser    nlp.Parser
	Rules     *rules.Engine
	Elements  *element.Store
	Registry  *DomainRegistry
	Validator validation.Validator
	Estimator cost.Estimator
	Log       *vcs.VersionLog
	Audit     *audit.Chain

	User       string
	AutoCommit bool
}

// Result is the outcome of one pipeline run. Warnings collects every
// degradation that did not abort the run.
type Result struct {
	GlobalID   string
	Folder     string
	Spec       *nlp.ParametricSpec
	Compliance *rules.CheckReport
	Validation *validation.Report
	Cost       *cost.Report
	Commit     string
	AuditEntry *audit.Entry
	Warnings   []string
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
	logging.Get(logging.CategoryPipeline).Warnf(format, args...)
}

// SpecData converts a parsed spec into the attribute bag the rule
// evaluator walks.
func SpecData(spec *nlp.ParametricSpec) map[string]any {
	materials := make([]any, len(spec.Materials))
	for i, m := range spec.Materials {
		materials[i] = m
	}
	return map[string]any{
		"properties":  spec.Properties,
		"performance": spec.Performance,
		"constraints": spec.Constraints,
		"materials":   materials,
	}
}

// Generate runs the pipeline from natural-language text.
func (g *Generator) Generate(text string, ctx nlp.Context, region string) (*Result, error) {
	spec := g.parse(text, ctx)
	return g.GenerateFromSpec(spec, region)
}

// parse never fails: a parser error degrades to a lowest-confidence stub.
func (g *Generator) parse(text string, ctx nlp.Context) *nlp.ParametricSpec {
	if g.Parser == nil {
		spec := nlp.NewParametricSpec()
		spec.Warnings = append(spec.Warnings, "No parser configured; using empty spec.")
		return spec
	}
	spec, err := g.Parser.Parse(text, ctx)
	if err != nil || spec == nil {
		stub := nlp.NewParametricSpec()
		stub.Confidence = 0
		stub.Warnings = append(stub.Warnings, fmt.Sprintf("Parser failed (%v); using stub spec.", err))
		return stub
	}
	return spec
}

// GenerateFromSpec runs the pipeline from an already-parsed spec.
func (g *Generator) GenerateFromSpec(spec *nlp.ParametricSpec, region string) (*Result, error) {
	result := &Result{Spec: spec, Warnings: append([]string(nil), spec.Warnings...)}

	// Comply: auto-adjust mechanical minimums, surface the rest.
	spec = g.comply(spec, region, result)
	result.Spec = spec

	// Build.
	ifcClass := spec.IFCClass
	builder := g.Registry.Builder(ifcClass)
	if ifcClass == "" {
		ifcClass = builder.IFCClass()
		result.warnf("no IFC class in spec; building %s", ifcClass)
	}
	psets := builder.BuildPsets(spec.Properties, spec.Performance)
	materials := builder.BuildMaterials(spec.Materials, spec.Properties)
	geometry := builder.BuildGeometry(spec.Properties)
	spatial := builder.BuildSpatial()

	// Persist. Failure here is fatal: no commit, no audit.
	elem, err := g.Elements.Create(element.CreateParams{
		IFCClass:   ifcClass,
		Name:       spec.Name,
		Properties: psets,
		Materials:  materials,
		Geometry:   &geometry,
		Spatial:    &spatial,
	})
	if err != nil {
		return nil, err
	}
	result.GlobalID = elem.GlobalID
	result.Folder = g.Elements.Folder(elem.GlobalID)

	g.finish(result, ifcClass, region,
		fmt.Sprintf("feat: generate element %s (%s)", ifcClass, element.FolderName(elem.GlobalID)),
		"generate")
	return result, nil
}

// GenerateFromTemplate instantiates a template folder with property
// overrides and runs the tail of the pipeline on the new element.
func (g *Generator) GenerateFromTemplate(templateFolder string, overrides map[string]any, region string) (*Result, error) {
	var meta metadata.Record
	if err := fsutil.ReadJSON(filepath.Join(templateFolder, "metadata.json"), &meta); err != nil {
		return nil, err
	}

	psets := map[string]map[string]any{}
	if err := fsutil.ReadJSON(filepath.Join(templateFolder, "properties", "psets.json"), &psets); err != nil {
		psets = map[string]map[string]any{}
	}
	var materials []element.MaterialLayer
	if err := fsutil.ReadJSON(filepath.Join(templateFolder, "materials", "materials.json"), &materials); err != nil {
		materials = nil
	}

	if len(overrides) > 0 {
		if _, ok := psets["Dimensions"]; !ok {
			psets["Dimensions"] = map[string]any{}
		}
		for k, v := range overrides {
			psets["Dimensions"][k] = v
		}
	}

	merged := map[string]any{}
	for _, props := range psets {
		for k, v := range props {
			merged[k] = v
		}
	}

	ifcClass := meta.IFCClass
	if ifcClass == "" {
		ifcClass = "IfcWall"
	}
	builder := g.Registry.Builder(ifcClass)
	geometry := builder.BuildGeometry(merged)
	spatial := builder.BuildSpatial()

	name := meta.Name
	if name != "" {
		name += "_modified"
	}

	result := &Result{Spec: nil}
	elem, err := g.Elements.Create(element.CreateParams{
		IFCClass:   ifcClass,
		Name:       name,
		Properties: psets,
		Materials:  materials,
		Geometry:   &geometry,
		Spatial:    &spatial,
	})
	if err != nil {
		return nil, err
	}
	result.GlobalID = elem.GlobalID
	result.Folder = g.Elements.Folder(elem.GlobalID)

	g.finish(result, ifcClass, region,
		fmt.Sprintf("feat: generate from template %s (%s)", filepath.Base(templateFolder), element.FolderName(elem.GlobalID)),
		"generate_from_template")
	return result, nil
}

// comply checks the spec and applies every mechanical fix: failed min_value
// rules whose property path points at a known dimension or performance slot
// are raised to the expected value. Other failures surface as warnings.
func (g *Generator) comply(spec *nlp.ParametricSpec, region string, result *Result) *nlp.ParametricSpec {
	if g.Rules == nil {
		return spec
	}
	report, err := g.Rules.Check("", spec.IFCClass, region, SpecData(spec))
	if err != nil {
		result.warnf("compliance check failed: %v", err)
		return spec
	}
	if report.Verdict != rules.VerdictNonCompliant {
		result.Compliance = report
		return spec
	}

	adjusted := spec.Clone()
	changed := false
	for _, res := range report.Results {
		if res.Status != rules.StatusFail {
			continue
		}
		rule := g.findRule(res)
		if res.Expected == nil || rule == nil || rule.CheckType != rules.CheckMinValue {
			result.warnf("compliance failure not auto-adjustable: %s §%s (%s)", res.CodeName, res.Section, res.Title)
			continue
		}
		if applyMinimum(adjusted, rule.PropertyPath, res.Expected) {
			changed = true
			result.warnf("auto-adjusted %s to %v per %s §%s", rule.PropertyPath, res.Expected, res.CodeName, res.Section)
		} else {
			result.warnf("compliance failure not auto-adjustable: %s §%s (%s)", res.CodeName, res.Section, res.Title)
		}
	}

	if !changed {
		result.Compliance = report
		return spec
	}

	// Re-check so the persisted report reflects the adjusted spec.
	recheck, err := g.Rules.Check("", adjusted.IFCClass, region, SpecData(adjusted))
	if err != nil {
		result.warnf("compliance re-check failed: %v", err)
		result.Compliance = report
		return adjusted
	}
	result.Compliance = recheck
	return adjusted
}

func (g *Generator) findRule(res rules.Result) *rules.Rule {
	if res.RuleID == 0 {
		return nil
	}
	rule, err := g.Rules.Store().Get(res.RuleID)
	if err != nil {
		return nil
	}
	return rule
}

// dimensionSlots are the spec property keys the auto-adjuster may raise.
var dimensionSlots = map[string]bool{
	"height_mm": true, "width_mm": true, "thickness_mm": true,
	"length_mm": true, "depth_mm": true, "riser_height_mm": true,
}

// performanceSlots are the spec performance keys the auto-adjuster may set.
var performanceSlots = map[string]bool{
	"fire_rating": true, "acoustic_stc": true,
	"thermal_r_value": true, "thermal_u_value": true,
}

func applyMinimum(spec *nlp.ParametricSpec, path string, expected any) bool {
	parts := strings.SplitN(path, ".", 2)
	if len(parts) != 2 {
		return false
	}
	switch parts[0] {
	case "properties":
		if !dimensionSlots[parts[1]] {
			return false
		}
		spec.Properties[parts[1]] = expected
		return true
	case "performance":
		if !performanceSlots[parts[1]] {
			return false
		}
		spec.Performance[parts[1]] = expected
		return true
	}
	return false
}

// finish runs the shared tail of the pipeline: validate, cost, regenerate,
// commit, audit. Every failure past persistence is a warning.
func (g *Generator) finish(result *Result, ifcClass, region, commitMessage, auditAction string) {
	folder := result.Folder

	if g.Validator != nil {
		report, err := g.Validator.Validate(folder, nil)
		if err != nil {
			result.warnf("validation failed: %v", err)
		} else {
			result.Validation = report
		}
	}

	if g.Estimator != nil {
		report, err := g.Estimator.Estimate(folder, region)
		if err != nil {
			result.warnf("cost estimation failed: %v", err)
		} else {
			result.Cost = report
		}
	}

	opts := metadata.Options{}
	if result.Compliance != nil {
		opts.ComplianceMD = result.Compliance.ToMarkdown()
	}
	if result.Validation != nil {
		opts.ValidationMD = result.Validation.ToMarkdown()
	}
	if result.Cost != nil {
		opts.CostMD = result.Cost.ToMarkdown()
		opts.ScheduleMD = result.Cost.ToScheduleMarkdown()
	}
	if _, err := metadata.Generate(folder, opts); err != nil {
		result.warnf("artifact regeneration failed: %v", err)
	}

	if g.AutoCommit && g.Log != nil {
		token, err := g.Log.CommitScope([]string{folder}, commitMessage)
		if err != nil {
			result.warnf("commit failed: %v", err)
		} else {
			result.Commit = token
		}
	} else if g.AutoCommit {
		result.warnf("no version log configured; commit skipped")
	}

	if g.Audit == nil {
		result.warnf("no audit chain configured; audit entry skipped")
	} else {
		afterHash, err := hashing.HashFolder(folder)
		if err != nil {
			result.warnf("folder hash failed: %v", err)
		}
		entry, err := g.Audit.Append(g.User, auditAction, result.GlobalID, "", afterHash)
		if err != nil {
			result.warnf("audit append failed: %v", err)
		} else {
			result.AuditEntry = entry
		}
	}

	logging.Get(logging.CategoryPipeline).Infof("generated element %s (%s)", result.GlobalID, ifcClass)
}
