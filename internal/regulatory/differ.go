// Package regulatory implements the rule-set diff/apply engine: structural
// diffs keyed by (code_name, section), atomic application under
// backup-and-tag semantics, and downstream impact analysis over the element
// store and template library.
package regulatory

import (
	"fmt"

	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/rules"
)

// ModifiedPair carries the stored rule and its proposed replacement.
type ModifiedPair struct {
	Old rules.Rule
	New rules.Rule
}

// DiffResult is the outcome of diffing two rule sets.
type DiffResult struct {
	Added     []rules.Rule
	Modified  []ModifiedPair
	Removed   []rules.Rule
	Unchanged []rules.Rule
}

// HasChanges reports whether applying the diff would mutate the store.
func (d *DiffResult) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Modified) > 0 || len(d.Removed) > 0
}

// TotalChanges counts additions, modifications, and removals.
func (d *DiffResult) TotalChanges() int {
	return len(d.Added) + len(d.Modified) + len(d.Removed)
}

// Summary renders the one-line change summary.
func (d *DiffResult) Summary() string {
	return fmt.Sprintf("Added: %d, Modified: %d, Removed: %d, Unchanged: %d",
		len(d.Added), len(d.Modified), len(d.Removed), len(d.Unchanged))
}

// Diff compares old rules against new rules, keyed by (code_name, section).
// A key present in both sides is modified when any content field differs.
func Diff(oldRules, newRules []rules.Rule) *DiffResult {
	oldMap := make(map[[2]string]rules.Rule, len(oldRules))
	for _, r := range oldRules {
		oldMap[r.Key()] = r
	}
	newMap := make(map[[2]string]rules.Rule, len(newRules))
	for _, r := range newRules {
		newMap[r.Key()] = r
	}

	result := &DiffResult{}
	for _, newRule := range newRules {
		oldRule, ok := oldMap[newRule.Key()]
		if !ok {
			result.Added = append(result.Added, newRule)
			continue
		}
		if rulesDiffer(oldRule, newRule) {
			result.Modified = append(result.Modified, ModifiedPair{Old: oldRule, New: newRule})
		} else {
			result.Unchanged = append(result.Unchanged, newRule)
		}
	}
	for _, oldRule := range oldRules {
		if _, ok := newMap[oldRule.Key()]; !ok {
			result.Removed = append(result.Removed, oldRule)
		}
	}

	logging.Get(logging.CategoryRegulatory).Infof("rule diff: %s", result.Summary())
	return result
}

func rulesDiffer(old, new rules.Rule) bool {
	return old.Title != new.Title ||
		old.CheckType != new.CheckType ||
		old.PropertyPath != new.PropertyPath ||
		fmt.Sprintf("%v", old.CheckValue) != fmt.Sprintf("%v", new.CheckValue) ||
		!equalStrings(old.IFCClasses, new.IFCClasses) ||
		old.Region != new.Region ||
		old.Citation != new.Citation
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
