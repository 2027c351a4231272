package aecos

import (
	"strings"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/cost"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/nlp"
	"github.com/quobo-ops/aecos/internal/pipeline"
	"github.com/quobo-ops/aecos/internal/rules"
	"github.com/quobo-ops/aecos/internal/validation"
)

// Parse turns a plain-English building description into a ParametricSpec.
func (a *AecOS) Parse(text string, ctx nlp.Context) (*nlp.ParametricSpec, error) {
	return a.parser.Parse(text, ctx)
}

// CheckCompliance evaluates a spec against the rule database.
func (a *AecOS) CheckCompliance(spec *nlp.ParametricSpec, region string) (*rules.CheckReport, error) {
	if spec == nil {
		return nil, aecerr.New(aecerr.InvalidArgument, "", "spec must not be nil")
	}
	if region == "" {
		region = a.settings.Region
	}
	return a.rules.Check(spec.Name, spec.IFCClass, region, pipeline.SpecData(spec))
}

// CheckElementCompliance evaluates a stored element against the rule
// database.
func (a *AecOS) CheckElementCompliance(globalID, region string) (*rules.CheckReport, error) {
	elem, err := a.elements.Get(globalID)
	if err != nil {
		return nil, err
	}
	if region == "" {
		region = a.settings.Region
	}
	return a.rules.Check(elem.GlobalID, elem.IFCClass, region, elementData(elem))
}

// psetPerformanceKeys maps builder pset property names onto the
// performance slots the rule catalog addresses.
var psetPerformanceKeys = map[string]string{
	"FireRating":           "fire_rating",
	"fire_rating":          "fire_rating",
	"AcousticRating":       "acoustic_stc",
	"acoustic_stc":         "acoustic_stc",
	"ThermalTransmittance": "thermal_r_value",
	"thermal_r_value":      "thermal_r_value",
	"thermal_u_value":      "thermal_u_value",
}

// elementData flattens an element into the attribute bag the evaluator
// walks: every pset property lands in "properties", and the known
// performance keys are mirrored into "performance".
func elementData(elem *element.Element) map[string]any {
	props := map[string]any{}
	perf := map[string]any{}
	for _, pset := range elem.Psets {
		for key, val := range pset {
			props[key] = val
			if slot, ok := psetPerformanceKeys[key]; ok {
				perf[slot] = val
			}
		}
	}

	materials := make([]any, len(elem.Materials))
	for i, m := range elem.Materials {
		materials[i] = m.Name
	}

	return map[string]any{
		"properties":  props,
		"performance": perf,
		"constraints": map[string]any{},
		"materials":   materials,
	}
}

// Generate runs the full pipeline from text or an already-parsed spec.
func (a *AecOS) Generate(text string, ctx nlp.Context) (*pipeline.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, aecerr.New(aecerr.InvalidArgument, "", "description must not be empty")
	}
	result, err := a.generator.Generate(text, ctx, a.settings.Region)
	if err != nil {
		a.recordFailure("generate", strings.TrimSpace(text))
		return nil, err
	}
	a.warnings = append(a.warnings, result.Warnings...)
	return result, nil
}

// GenerateFromSpec runs the pipeline from a ParametricSpec.
func (a *AecOS) GenerateFromSpec(spec *nlp.ParametricSpec) (*pipeline.Result, error) {
	if spec == nil {
		return nil, aecerr.New(aecerr.InvalidArgument, "", "spec must not be nil")
	}
	result, err := a.generator.GenerateFromSpec(spec, a.settings.Region)
	if err != nil {
		a.recordFailure("generate", spec.IFCClass)
		return nil, err
	}
	a.warnings = append(a.warnings, result.Warnings...)
	return result, nil
}

// GenerateFromTemplate instantiates a template with property overrides and
// runs the pipeline tail on the new element.
func (a *AecOS) GenerateFromTemplate(templateID string, overrides map[string]any) (*pipeline.Result, error) {
	folder, err := a.library.Get(templateID)
	if err != nil {
		return nil, err
	}
	result, err := a.generator.GenerateFromTemplate(folder, overrides, a.settings.Region)
	if err != nil {
		a.recordFailure("generate_from_template", templateID)
		return nil, err
	}
	a.warnings = append(a.warnings, result.Warnings...)
	return result, nil
}

// Validate runs the validator over an element folder, optionally with
// context element ids for clash detection.
func (a *AecOS) Validate(globalID string, contextIDs []string) (*validation.Report, error) {
	folder := a.elements.Folder(globalID)
	var ctx []string
	for _, id := range contextIDs {
		ctx = append(ctx, a.elements.Folder(id))
	}
	return a.validator.Validate(folder, ctx)
}

// EstimateCost prices an element folder.
func (a *AecOS) EstimateCost(globalID, region string) (*cost.Report, error) {
	if region == "" {
		region = a.settings.Region
	}
	return a.estimator.Estimate(a.elements.Folder(globalID), region)
}
