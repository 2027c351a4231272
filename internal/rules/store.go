package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/logging"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code_name TEXT NOT NULL,
    section TEXT NOT NULL,
    title TEXT NOT NULL,
    ifc_classes TEXT NOT NULL DEFAULT '[]',
    check_type TEXT NOT NULL,
    property_path TEXT NOT NULL,
    check_value TEXT,
    region TEXT NOT NULL DEFAULT '*',
    citation TEXT NOT NULL DEFAULT '',
    effective_date TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_key ON rules(code_name, section);
CREATE INDEX IF NOT EXISTS idx_rules_code ON rules(code_name);
CREATE INDEX IF NOT EXISTS idx_rules_region ON rules(region);
`

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS rules_fts USING fts5(
    title, citation, content=rules, content_rowid=id
);
`

const ftsTriggers = `
CREATE TRIGGER IF NOT EXISTS rules_ai AFTER INSERT ON rules BEGIN
    INSERT INTO rules_fts(rowid, title, citation)
    VALUES (new.id, new.title, new.citation);
END;

CREATE TRIGGER IF NOT EXISTS rules_ad AFTER DELETE ON rules BEGIN
    INSERT INTO rules_fts(rules_fts, rowid, title, citation)
    VALUES ('delete', old.id, old.title, old.citation);
END;

CREATE TRIGGER IF NOT EXISTS rules_au AFTER UPDATE ON rules BEGIN
    INSERT INTO rules_fts(rules_fts, rowid, title, citation)
    VALUES ('delete', old.id, old.title, old.citation);
    INSERT INTO rules_fts(rowid, title, citation)
    VALUES (new.id, new.title, new.citation);
END;
`

// updatable is the whitelist of fields Update may touch.
var updatable = map[string]bool{
	"code_name":      true,
	"section":        true,
	"title":          true,
	"ifc_classes":    true,
	"check_type":     true,
	"property_path":  true,
	"check_value":    true,
	"region":         true,
	"citation":       true,
	"effective_date": true,
}

// Store is the SQLite-backed rule database.
type Store struct {
	db   *sql.DB
	path string
	fts  bool
}

// OpenStore opens (or creates) the rule database at path and, when the
// rules table is empty, loads the seed catalog. ":memory:" is allowed.
func OpenStore(path string) (*Store, error) {
	return open(path, true)
}

// OpenStoreNoSeed opens the database without seeding, for callers that
// manage the catalog themselves.
func OpenStoreNoSeed(path string) (*Store, error) {
	return open(path, false)
}

func open(path string, seed bool) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, aecerr.Wrap(aecerr.IO, path, "failed to create rule db directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, path, "failed to open rule database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryRules).Debugf("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryRules).Debugf("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, aecerr.Wrap(aecerr.IO, path, "failed to initialize rule schema", err)
	}

	s := &Store{db: db, path: path, fts: true}
	if _, err := db.Exec(ftsSchema); err != nil {
		// FTS5 is a compile-time SQLite option; fall back to LIKE search.
		logging.Get(logging.CategoryRules).Debugf("FTS5 unavailable, using LIKE search: %v", err)
		s.fts = false
	} else if _, err := db.Exec(ftsTriggers); err != nil {
		db.Close()
		return nil, aecerr.Wrap(aecerr.IO, path, "failed to create FTS triggers", err)
	}

	if seed {
		if err := s.seedIfEmpty(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// seedIfEmpty loads the fixed seed catalog when the store has no rows.
// Seeding a non-empty store is a no-op.
func (s *Store) seedIfEmpty() error {
	n, err := s.Count()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, r := range SeedRules() {
		if _, err := s.Insert(r); err != nil {
			return err
		}
	}
	logging.Get(logging.CategoryRules).Infof("seeded %d compliance rules", len(SeedRules()))
	return nil
}

func encodeClasses(classes []string) (string, error) {
	if classes == nil {
		classes = []string{}
	}
	data, err := json.Marshal(classes)
	if err != nil {
		return "", fmt.Errorf("failed to encode ifc_classes: %w", err)
	}
	return string(data), nil
}

func encodeCheckValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode check_value: %w", err)
	}
	return string(data), nil
}

func validate(r Rule) error {
	if r.CodeName == "" || r.Section == "" {
		return aecerr.New(aecerr.InvalidArgument, r.Title, "rule requires code_name and section")
	}
	if !ValidCheckType(r.CheckType) {
		return aecerr.New(aecerr.InvalidArgument, r.CodeName+" "+r.Section,
			fmt.Sprintf("unknown check_type %q", r.CheckType))
	}
	return nil
}

// Insert adds a rule and returns its new id. A duplicate (code_name,
// section) pair is a conflict.
func (s *Store) Insert(r Rule) (int64, error) {
	return s.insert(s.db, r)
}

// InsertTx is Insert running inside a caller-owned transaction.
func (s *Store) InsertTx(tx *sql.Tx, r Rule) (int64, error) {
	return s.insert(tx, r)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(e execer, r Rule) (int64, error) {
	if err := validate(r); err != nil {
		return 0, err
	}
	classes, err := encodeClasses(r.IFCClasses)
	if err != nil {
		return 0, err
	}
	value, err := encodeCheckValue(r.CheckValue)
	if err != nil {
		return 0, err
	}

	res, err := e.Exec(
		`INSERT INTO rules (code_name, section, title, ifc_classes, check_type,
		                    property_path, check_value, region, citation, effective_date)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.CodeName, r.Section, r.Title, classes, r.CheckType,
		r.PropertyPath, value, r.Region, r.Citation, r.EffectiveDate,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, aecerr.Wrap(aecerr.Conflict, r.CodeName+" "+r.Section,
				"rule with this code_name and section already exists", err)
		}
		return 0, aecerr.Wrap(aecerr.IO, s.path, "failed to insert rule", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, aecerr.Wrap(aecerr.IO, s.path, "failed to read rule id", err)
	}
	return id, nil
}

// Update changes a whitelisted subset of fields on the rule with the given
// id. Unknown fields are ignored; ifc_classes and check_value values are
// JSON-encoded.
func (s *Store) Update(id int64, fields map[string]any) error {
	return s.update(s.db, id, fields)
}

// UpdateTx is Update running inside a caller-owned transaction.
func (s *Store) UpdateTx(tx *sql.Tx, id int64, fields map[string]any) error {
	return s.update(tx, id, fields)
}

func (s *Store) update(e execer, id int64, fields map[string]any) error {
	var sets []string
	var args []any
	for _, key := range []string{
		"code_name", "section", "title", "ifc_classes", "check_type",
		"property_path", "check_value", "region", "citation", "effective_date",
	} {
		val, ok := fields[key]
		if !ok || !updatable[key] {
			continue
		}
		switch key {
		case "ifc_classes":
			classes, ok := val.([]string)
			if !ok {
				return aecerr.New(aecerr.InvalidArgument, fmt.Sprintf("rule %d", id), "ifc_classes must be []string")
			}
			encoded, err := encodeClasses(classes)
			if err != nil {
				return err
			}
			val = encoded
		case "check_value":
			encoded, err := encodeCheckValue(val)
			if err != nil {
				return err
			}
			val = encoded
		case "check_type":
			t, _ := val.(string)
			if !ValidCheckType(t) {
				return aecerr.New(aecerr.InvalidArgument, fmt.Sprintf("rule %d", id),
					fmt.Sprintf("unknown check_type %q", t))
			}
		}
		sets = append(sets, key+" = ?")
		args = append(args, val)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := e.Exec("UPDATE rules SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return aecerr.Wrap(aecerr.Conflict, fmt.Sprintf("rule %d", id),
				"update would duplicate an existing code_name and section", err)
		}
		return aecerr.Wrap(aecerr.IO, s.path, "failed to update rule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return aecerr.Wrap(aecerr.IO, s.path, "failed to read update result", err)
	}
	if n == 0 {
		return aecerr.New(aecerr.NotFound, fmt.Sprintf("rule %d", id), "rule does not exist")
	}
	return nil
}

// Delete removes a rule by id, reporting whether a row was removed.
func (s *Store) Delete(id int64) (bool, error) {
	return s.deleteRule(s.db, id)
}

// DeleteTx is Delete running inside a caller-owned transaction.
func (s *Store) DeleteTx(tx *sql.Tx, id int64) (bool, error) {
	return s.deleteRule(tx, id)
}

func (s *Store) deleteRule(e execer, id int64) (bool, error) {
	res, err := e.Exec("DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return false, aecerr.Wrap(aecerr.IO, s.path, "failed to delete rule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, aecerr.Wrap(aecerr.IO, s.path, "failed to read delete result", err)
	}
	return n > 0, nil
}

// Get fetches a single rule by id.
func (s *Store) Get(id int64) (*Rule, error) {
	row := s.db.QueryRow("SELECT id, code_name, section, title, ifc_classes, check_type, property_path, check_value, region, citation, effective_date FROM rules WHERE id = ?", id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, aecerr.New(aecerr.NotFound, fmt.Sprintf("rule %d", id), "rule does not exist")
	}
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, s.path, "failed to load rule", err)
	}
	return r, nil
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	// IFCClass matches rules whose ifc_classes contains the class, contains
	// "*", or is empty.
	IFCClass string
	// Region matches rules with an equal region or region "*".
	Region string
	// CodeName matches exactly.
	CodeName string
}

// List returns rules matching every filter, in id order.
func (s *Store) List(f ListFilter) ([]Rule, error) {
	var clauses []string
	var args []any

	if f.IFCClass != "" {
		clauses = append(clauses, `(ifc_classes LIKE ? OR ifc_classes = '[]' OR ifc_classes LIKE '%"*"%')`)
		args = append(args, `%"`+f.IFCClass+`"%`)
	}
	if f.Region != "" {
		clauses = append(clauses, "(region = ? OR region = '*')")
		args = append(args, f.Region)
	}
	if f.CodeName != "" {
		clauses = append(clauses, "code_name = ?")
		args = append(args, f.CodeName)
	}

	query := "SELECT id, code_name, section, title, ifc_classes, check_type, property_path, check_value, region, citation, effective_date FROM rules"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	return s.queryRules(query, args...)
}

// Search returns rules whose title or citation match the query, using FTS5
// when available and substring LIKE otherwise.
func (s *Store) Search(query string) ([]Rule, error) {
	if query == "" {
		return nil, nil
	}
	if s.fts {
		rules, err := s.queryRules(
			`SELECT rules.id, rules.code_name, rules.section, rules.title, rules.ifc_classes,
			        rules.check_type, rules.property_path, rules.check_value, rules.region,
			        rules.citation, rules.effective_date
			 FROM rules_fts JOIN rules ON rules_fts.rowid = rules.id
			 WHERE rules_fts MATCH ?`, query)
		if err == nil {
			return rules, nil
		}
		// A malformed FTS query string should not surface as an error;
		// retry with substring semantics.
		logging.Get(logging.CategoryRules).Debugf("FTS query failed, falling back to LIKE: %v", err)
	}
	like := "%" + query + "%"
	return s.queryRules(
		"SELECT id, code_name, section, title, ifc_classes, check_type, property_path, check_value, region, citation, effective_date FROM rules WHERE title LIKE ? OR citation LIKE ? ORDER BY id",
		like, like)
}

// Count returns the total number of rules.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM rules").Scan(&n); err != nil {
		return 0, aecerr.Wrap(aecerr.IO, s.path, "failed to count rules", err)
	}
	return n, nil
}

// Begin starts a transaction for batched mutations (regulatory updates).
func (s *Store) Begin() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, s.path, "failed to begin transaction", err)
	}
	return tx, nil
}

func (s *Store) queryRules(query string, args ...any) ([]Rule, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, s.path, "failed to query rules", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, aecerr.Wrap(aecerr.IO, s.path, "failed to scan rule", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, s.path, "failed to iterate rules", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*Rule, error) {
	var r Rule
	var classes, value string
	if err := row.Scan(&r.ID, &r.CodeName, &r.Section, &r.Title, &classes,
		&r.CheckType, &r.PropertyPath, &value, &r.Region, &r.Citation, &r.EffectiveDate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(classes), &r.IFCClasses); err != nil {
		return nil, fmt.Errorf("failed to decode ifc_classes: %w", err)
	}
	if err := json.Unmarshal([]byte(value), &r.CheckValue); err != nil {
		return nil, fmt.Errorf("failed to decode check_value: %w", err)
	}
	return &r, nil
}
