package rules

import (
	"time"

	"github.com/quobo-ops/aecos/internal/logging"
)

// Engine checks attribute bags against the rule store and aggregates the
// per-rule results into a verdict.
type Engine struct {
	store *Store
}

// NewEngine wraps a rule store.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// Store returns the underlying rule store.
func (e *Engine) Store() *Store { return e.store }

// Check evaluates every applicable rule against data. elementID is carried
// into the report for rendering; ifcClass and region narrow the applicable
// rule set (empty means no narrowing for region, and class filtering per
// the store's universal-token semantics).
func (e *Engine) Check(elementID, ifcClass, region string, data map[string]any) (*CheckReport, error) {
	applicable, err := e.store.List(ListFilter{IFCClass: ifcClass, Region: region})
	if err != nil {
		return nil, err
	}

	report := &CheckReport{
		ElementID: elementID,
		IFCClass:  ifcClass,
		CheckedAt: time.Now().UTC(),
	}
	if len(applicable) == 0 {
		report.Verdict = VerdictUnknown
		return report, nil
	}

	report.Results, report.SuggestedFixes = EvaluateAll(applicable, data)
	report.Verdict = Aggregate(report.Results)

	logging.Get(logging.CategoryRules).Debugf(
		"checked %s (%s): %d rules, verdict %s", elementID, ifcClass, len(applicable), report.Verdict)
	return report, nil
}
