// Package aecos is the single typed entry point over the element store,
// compliance engine, audit chain, version log, template library, and
// generate pipeline. The facade is not re-entrant; callers serialize
// access, and a file lock enforces one mutating process per project.
package aecos

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/audit"
	"github.com/quobo-ops/aecos/internal/config"
	"github.com/quobo-ops/aecos/internal/cost"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/nlp"
	"github.com/quobo-ops/aecos/internal/pipeline"
	"github.com/quobo-ops/aecos/internal/rules"
	"github.com/quobo-ops/aecos/internal/template"
	"github.com/quobo-ops/aecos/internal/validation"
	"github.com/quobo-ops/aecos/internal/vcs"
)

// LockFile guards against a second mutating process on the same project.
const LockFile = ".aecos.lock"

// AecOS is the facade over one project.
type AecOS struct {
	root     string
	project  config.Project
	settings config.Settings

	lock      *flock.Flock
	auditLog  *audit.Chain
	ruleStore *rules.Store
	rules     *rules.Engine
	elements  *element.Store
	library   *template.Library
	log       *vcs.VersionLog
	registry  *pipeline.DomainRegistry
	parser    nlp.Parser
	validator validation.Validator
	estimator *cost.Engine
	generator *pipeline.Generator

	warnings []string
}

// Option customizes facade construction.
type Option func(*AecOS)

// WithUser sets the audit user identity.
func WithUser(user string) Option {
	return func(a *AecOS) { a.settings.User = user }
}

// WithAutoCommit overrides the auto-commit setting.
func WithAutoCommit(on bool) Option {
	return func(a *AecOS) { a.settings.AutoCommit = on }
}

// WithParser replaces the default heuristic parser.
func WithParser(p nlp.Parser) Option {
	return func(a *AecOS) { a.parser = p }
}

// WithValidator replaces the default validator.
func WithValidator(v validation.Validator) Option {
	return func(a *AecOS) { a.validator = v }
}

// New opens (or bootstraps) the project at root. The repository, elements
// and templates directories, project descriptor, and databases are created
// on first use.
func New(root string, opts ...Option) (*AecOS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, aecerr.Wrap(aecerr.InvalidArgument, root, "invalid project root", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, abs, "failed to create project root", err)
	}

	a := &AecOS{root: abs}

	a.settings, err = config.LoadSettings(abs)
	if err != nil {
		return nil, err
	}

	a.lock = flock.New(filepath.Join(abs, LockFile))
	locked, err := a.lock.TryLock()
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, abs, "failed to acquire project lock", err)
	}
	if !locked {
		return nil, aecerr.New(aecerr.Conflict, abs, "project is locked by another process")
	}

	a.project, err = config.LoadProject(abs)
	if err != nil {
		a.lock.Unlock()
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(abs, config.ProjectFile)); os.IsNotExist(err) {
		if err := config.SaveProject(abs, a.project); err != nil {
			a.lock.Unlock()
			return nil, err
		}
	}

	a.log, err = vcs.Open(abs)
	if err != nil {
		a.lock.Unlock()
		return nil, err
	}
	if a.settings.User != "" {
		a.log.SetAuthor(a.settings.User, a.settings.User+"@aecos.local")
	}

	a.elements, err = element.NewStore(filepath.Join(abs, a.project.ElementsDir))
	if err != nil {
		a.lock.Unlock()
		return nil, err
	}
	a.library, err = template.NewLibrary(filepath.Join(abs, a.project.TemplatesDir))
	if err != nil {
		a.lock.Unlock()
		return nil, err
	}

	a.auditLog, err = audit.Open(filepath.Join(abs, a.settings.AuditDB))
	if err != nil {
		a.lock.Unlock()
		return nil, err
	}
	a.ruleStore, err = rules.OpenStore(filepath.Join(abs, a.settings.RuleDB))
	if err != nil {
		a.auditLog.Close()
		a.lock.Unlock()
		return nil, err
	}
	a.rules = rules.NewEngine(a.ruleStore)

	a.registry = pipeline.NewDomainRegistry()
	for _, p := range pipeline.BuiltinPlugins() {
		a.registry.RegisterPlugin(p)
	}

	a.validator = validation.NewEngine()
	a.estimator = cost.NewEngine(nil)

	for _, opt := range opts {
		opt(a)
	}

	if a.parser == nil {
		a.parser = nlp.NewHeuristicParser(a.registry.ParserPatterns())
	}

	a.generator = &pipeline.Generator{
		Parser:     a.parser,
		Rules:      a.rules,
		Elements:   a.elements,
		Registry:   a.registry,
		Validator:  a.validator,
		Estimator:  a.estimator,
		Log:        a.log,
		Audit:      a.auditLog,
		User:       a.settings.User,
		AutoCommit: a.settings.AutoCommit,
	}

	logging.Get(logging.CategoryFacade).Infof("opened project %q at %s", a.project.Name, abs)
	return a, nil
}

// InitProject bootstraps a fresh project directory with a repository,
// standard layout, and descriptor, then closes it. Returns the root.
func InitProject(path, name string) (string, error) {
	a, err := New(path)
	if err != nil {
		return "", err
	}
	defer a.Close()

	if name != "" {
		a.project.Name = name
		if err := config.SaveProject(a.root, a.project); err != nil {
			return "", err
		}
	}
	if _, err := a.log.CommitScope([]string{config.ProjectFile}, fmt.Sprintf("chore: initialise project '%s'", a.project.Name)); err != nil {
		return "", err
	}
	return a.root, nil
}

// Close releases the databases and the project lock.
func (a *AecOS) Close() error {
	var firstErr error
	if a.ruleStore != nil {
		if err := a.ruleStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.auditLog != nil {
		if err := a.auditLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Root returns the project root directory.
func (a *AecOS) Root() string { return a.root }

// Registry returns the owned domain registry.
func (a *AecOS) Registry() *pipeline.DomainRegistry { return a.registry }

// RuleEngine exposes the compliance engine.
func (a *AecOS) RuleEngine() *rules.Engine { return a.rules }

// VersionLog exposes the underlying version log.
func (a *AecOS) VersionLog() *vcs.VersionLog { return a.log }

// ApplyDomains injects every registered domain plugin's rules, pricing,
// and validation checks into the core engines.
func (a *AecOS) ApplyDomains() (pipeline.InjectStats, error) {
	engine, _ := a.validator.(*validation.Engine)
	return a.registry.Apply(a.ruleStore, a.estimator, engine)
}

// Warnings drains the partial_side_effect warning channel: degradations
// from calls that succeeded on their primary subsystem but failed a
// secondary one.
func (a *AecOS) Warnings() []string {
	out := a.warnings
	a.warnings = nil
	return out
}

func (a *AecOS) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.warnings = append(a.warnings, msg)
	logging.Get(logging.CategoryFacade).Warnf("%s", msg)
}

// recordAudit appends an audit entry, degrading to a warning on failure
// (the filesystem mutation stands).
func (a *AecOS) recordAudit(action, resource, beforeHash, afterHash string) {
	if _, err := a.auditLog.Append(a.settings.User, action, resource, beforeHash, afterHash); err != nil {
		a.warnf("partial_side_effect: audit append failed for %s %s: %v", action, resource, err)
	}
}

// recordFailure audits a failed primary side effect with the _failed
// action suffix.
func (a *AecOS) recordFailure(action, resource string) {
	if _, err := a.auditLog.Append(a.settings.User, action+"_failed", resource, "", ""); err != nil {
		logging.Get(logging.CategoryFacade).Debugf("failed to audit failure of %s: %v", action, err)
	}
}

// commitScope commits the given paths when auto-commit is on, degrading to
// a warning on failure.
func (a *AecOS) commitScope(paths []string, message string) string {
	if !a.settings.AutoCommit {
		return ""
	}
	token, err := a.log.CommitScope(paths, message)
	if err != nil {
		a.warnf("partial_side_effect: commit failed (%s): %v", message, err)
		return ""
	}
	return token
}

// Commit records a manual commit of all pending changes. Returns the
// commit token, empty when the tree is clean.
func (a *AecOS) Commit(message string) (string, error) {
	return a.log.CommitAll(message)
}

// Status returns the porcelain status of the working tree.
func (a *AecOS) Status() (string, error) { return a.log.Status() }

// IsClean reports whether the working tree equals HEAD.
func (a *AecOS) IsClean() (bool, error) { return a.log.IsClean() }

// History returns the scoped commit history of an element folder.
func (a *AecOS) History(globalID string, limit int) ([]vcs.LogEntry, error) {
	return a.log.History(a.elements.Folder(globalID), limit)
}

// GetAuditLog queries the audit chain.
func (a *AecOS) GetAuditLog(f audit.Filter) ([]audit.Entry, error) {
	return a.auditLog.Query(f)
}

// VerifyAuditChain recomputes every entry hash and reports chain
// integrity.
func (a *AecOS) VerifyAuditChain() (bool, error) {
	return a.auditLog.VerifyChain()
}

// ExportAuditLog returns the JSON export of the audit trail.
func (a *AecOS) ExportAuditLog() ([]byte, error) {
	return a.auditLog.ExportJSON()
}
