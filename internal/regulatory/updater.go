package regulatory

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/rules"
	"github.com/quobo-ops/aecos/internal/vcs"
)

// BackupDir is the project-relative directory holding pre-update snapshots.
const BackupDir = ".regulatory_backups"

// UpdateResult reports an Apply call.
type UpdateResult struct {
	Success       bool      `json:"success"`
	RulesAdded    int       `json:"rules_added"`
	RulesModified int       `json:"rules_modified"`
	RulesRemoved  int       `json:"rules_removed"`
	BackupPath    string    `json:"backup_path"`
	Tag           string    `json:"tag"`
	AppliedAt     time.Time `json:"applied_at"`
	Warnings      []string  `json:"warnings,omitempty"`
}

// Updater applies rule diffs to the store atomically. Log is optional; when
// nil the version tag stage is skipped with a warning.
type Updater struct {
	Store       *rules.Store
	ProjectRoot string
	Log         *vcs.VersionLog
	now         func() time.Time
}

// NewUpdater builds an updater over the given store.
func NewUpdater(store *rules.Store, projectRoot string, log *vcs.VersionLog) *Updater {
	return &Updater{Store: store, ProjectRoot: projectRoot, Log: log, now: time.Now}
}

// Apply snapshots the current rules, applies the diff inside one SQL
// transaction, and stamps a regulatory version tag. Any failure inside the
// batch rolls the database back; the snapshot file remains for manual
// restore.
func (u *Updater) Apply(diff *DiffResult, codeName, version string) (*UpdateResult, error) {
	result := &UpdateResult{AppliedAt: u.now().UTC()}
	if !diff.HasChanges() {
		result.Success = true
		return result, nil
	}

	backupPath, err := u.snapshot(codeName)
	if err != nil {
		return nil, err
	}
	result.BackupPath = backupPath

	tx, err := u.Store.Begin()
	if err != nil {
		return nil, err
	}
	applyErr := func() error {
		for _, rule := range diff.Added {
			if _, err := u.Store.InsertTx(tx, rule); err != nil {
				return err
			}
			result.RulesAdded++
		}
		for _, pair := range diff.Modified {
			if pair.Old.ID == 0 {
				if _, err := u.Store.InsertTx(tx, pair.New); err != nil {
					return err
				}
			} else {
				err := u.Store.UpdateTx(tx, pair.Old.ID, map[string]any{
					"title":          pair.New.Title,
					"check_type":     pair.New.CheckType,
					"property_path":  pair.New.PropertyPath,
					"check_value":    pair.New.CheckValue,
					"ifc_classes":    pair.New.IFCClasses,
					"region":         pair.New.Region,
					"citation":       pair.New.Citation,
					"effective_date": pair.New.EffectiveDate,
				})
				if err != nil {
					return err
				}
			}
			result.RulesModified++
		}
		for _, rule := range diff.Removed {
			if rule.ID == 0 {
				continue
			}
			if _, err := u.Store.DeleteTx(tx, rule.ID); err != nil {
				return err
			}
			result.RulesRemoved++
		}
		return nil
	}()
	if applyErr != nil {
		tx.Rollback()
		kind := aecerr.KindOf(applyErr)
		if kind == "" {
			kind = aecerr.IO
		}
		return nil, aecerr.Wrap(kind, codeName, "regulatory update rolled back", applyErr)
	}
	if err := tx.Commit(); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, codeName, "failed to commit regulatory update", err)
	}

	if codeName != "" && version != "" {
		if u.Log == nil {
			result.Warnings = append(result.Warnings, "no version log configured; regulatory tag skipped")
		} else {
			tag := fmt.Sprintf("regulatory/%s/%s/%s", codeName, version, u.now().UTC().Format("20060102"))
			if err := u.Log.Tag(tag, fmt.Sprintf("Regulatory update: %s %s", codeName, version)); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("failed to create tag %s: %v", tag, err))
			} else {
				result.Tag = tag
			}
		}
	}

	result.Success = true
	logging.Get(logging.CategoryRegulatory).Infof(
		"applied regulatory update: +%d ~%d -%d rules",
		result.RulesAdded, result.RulesModified, result.RulesRemoved)
	return result, nil
}

// snapshot writes every current rule to a timestamped JSON file under the
// project's backup directory.
func (u *Updater) snapshot(codeName string) (string, error) {
	if u.ProjectRoot == "" {
		return "", nil
	}
	dir := filepath.Join(u.ProjectRoot, BackupDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", aecerr.Wrap(aecerr.IO, dir, "failed to create backup directory", err)
	}

	current, err := u.Store.List(rules.ListFilter{})
	if err != nil {
		return "", err
	}
	if current == nil {
		current = []rules.Rule{}
	}

	name := fmt.Sprintf("rules_backup_%s_%s.json", codeName, u.now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := fsutil.WriteJSONAtomic(path, current); err != nil {
		return "", aecerr.Wrap(aecerr.IO, path, "failed to write rules backup", err)
	}
	logging.Get(logging.CategoryRegulatory).Infof("created rules backup: %s", path)
	return path, nil
}

// Restore reloads a snapshot file into the store, replacing its entire
// contents. Used to recover from a partially-applied update whose
// transaction could not roll back.
func (u *Updater) Restore(backupPath string) error {
	var snapshot []rules.Rule
	if err := fsutil.ReadJSON(backupPath, &snapshot); err != nil {
		return aecerr.Wrap(aecerr.IO, backupPath, "failed to read backup", err)
	}

	tx, err := u.Store.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM rules"); err != nil {
		tx.Rollback()
		return aecerr.Wrap(aecerr.IO, backupPath, "failed to clear rules", err)
	}
	for _, rule := range snapshot {
		rule.ID = 0
		if _, err := u.Store.InsertTx(tx, rule); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return aecerr.Wrap(aecerr.IO, backupPath, "failed to commit restore", err)
	}
	logging.Get(logging.CategoryRegulatory).Infof("restored rules from %s", backupPath)
	return nil
}
