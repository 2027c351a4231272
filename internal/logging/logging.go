// Package logging provides category-based structured logging for AEC OS,
// backed by zap. Categories map to subsystems so a project's log output can
// be filtered per concern. Before Init is called every logger is a no-op,
// which keeps library use (and tests) silent by default.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem a log line originates from.
type Category string

const (
	CategoryAudit      Category = "audit"
	CategoryRules      Category = "rules"
	CategoryElement    Category = "element"
	CategoryTemplate   Category = "template"
	CategoryVCS        Category = "vcs"
	CategoryPipeline   Category = "pipeline"
	CategoryRegulatory Category = "regulatory"
	CategoryFacade     Category = "facade"
	CategoryConfig     Category = "config"
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	sugared = map[Category]*zap.SugaredLogger{}
)

// Init configures the process-wide logger. Logs go to stderr and, when dir
// is non-empty, to <dir>/aecos.log as well. Level is one of debug, info,
// warn, error.
func Init(dir, level string) error {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			lvl,
		),
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, "aecos.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.Lock(f),
			lvl,
		))
	}

	mu.Lock()
	defer mu.Unlock()
	base = zap.New(zapcore.NewTee(cores...))
	sugared = map[Category]*zap.SugaredLogger{}
	return nil
}

// Get returns the sugared logger for a category.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := sugared[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := sugared[cat]; ok {
		return l
	}
	l := base.Named(string(cat)).Sugar()
	sugared[cat] = l
	return l
}

// Timer reports the duration of an operation when stopped.
type Timer struct {
	cat   Category
	op    string
	start time.Time
}

// StartTimer begins timing an operation for slow-path diagnostics.
func StartTimer(cat Category, op string) *Timer {
	return &Timer{cat: cat, op: op, start: time.Now()}
}

// slowThreshold is the duration above which a stopped timer logs at warn.
const slowThreshold = 500 * time.Millisecond

// Stop logs the elapsed time, at warn level when the operation was slow.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	if elapsed >= slowThreshold {
		Get(t.cat).Warnf("%s took %s", t.op, elapsed)
		return
	}
	Get(t.cat).Debugf("%s took %s", t.op, elapsed)
}
