package aecos

import (
	"fmt"
	"time"

	"github.com/quobo-ops/aecos/internal/regulatory"
	"github.com/quobo-ops/aecos/internal/rules"
)

// RegulatoryDiff compares the current rule set (narrowed to codeName when
// given) against a proposed new rule set.
func (a *AecOS) RegulatoryDiff(codeName string, proposed []rules.Rule) (*regulatory.DiffResult, error) {
	current, err := a.ruleStore.List(rules.ListFilter{CodeName: codeName})
	if err != nil {
		return nil, err
	}
	return regulatory.Diff(current, proposed), nil
}

// ApplyRegulatoryUpdate applies a rule diff under backup-and-tag
// semantics, audits the operation, and returns the update result with its
// impact report.
func (a *AecOS) ApplyRegulatoryUpdate(diff *regulatory.DiffResult, codeName, version string) (*regulatory.UpdateResult, *regulatory.ImpactReport, error) {
	updater := regulatory.NewUpdater(a.ruleStore, a.root, a.log)

	result, err := updater.Apply(diff, codeName, version)
	if err != nil {
		a.recordFailure("apply_regulatory_update", codeName)
		return nil, nil, err
	}
	a.warnings = append(a.warnings, result.Warnings...)

	impact, err := regulatory.Impact(diff, a.elements.Root(), a.library.Root())
	if err != nil {
		a.warnf("partial_side_effect: impact analysis failed: %v", err)
		impact = &regulatory.ImpactReport{}
	}

	a.recordAudit("apply_regulatory_update",
		fmt.Sprintf("%s/%s", codeName, version), "", "")
	return result, impact, nil
}

// RegulatoryReport builds the human-readable change report for an applied
// update.
func (a *AecOS) RegulatoryReport(codeName, oldVersion, newVersion string,
	diff *regulatory.DiffResult, update *regulatory.UpdateResult, impact *regulatory.ImpactReport) *regulatory.ChangeReport {
	return &regulatory.ChangeReport{
		CodeName:    codeName,
		OldVersion:  oldVersion,
		NewVersion:  newVersion,
		Diff:        diff,
		Update:      update,
		Impact:      impact,
		GeneratedAt: time.Now().UTC(),
	}
}

// Rules exposes read access to the rule store for callers that need to
// list or search the catalog.
func (a *AecOS) Rules(f rules.ListFilter) ([]rules.Rule, error) {
	return a.ruleStore.List(f)
}

// SearchRules runs full-text (or substring fallback) search over rule
// titles and citations.
func (a *AecOS) SearchRules(query string) ([]rules.Rule, error) {
	return a.ruleStore.Search(query)
}
