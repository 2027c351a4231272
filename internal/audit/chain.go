// Package audit implements the append-only, hash-chained event log backed
// by SQLite. Each entry's hash covers its own fields plus the previous
// entry's hash, so mutating any stored byte breaks verification from that
// row onward.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/hashing"
	"github.com/quobo-ops/aecos/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       TEXT NOT NULL,
    user            TEXT NOT NULL,
    action          TEXT NOT NULL,
    resource        TEXT NOT NULL DEFAULT '',
    before_hash     TEXT NOT NULL DEFAULT '',
    after_hash      TEXT NOT NULL DEFAULT '',
    entry_hash      TEXT NOT NULL,
    prev_entry_hash TEXT NOT NULL DEFAULT ''
);
`

// Entry is a single immutable audit record.
type Entry struct {
	ID            int64  `json:"id"`
	Timestamp     string `json:"timestamp"`
	User          string `json:"user"`
	Action        string `json:"action"`
	Resource      string `json:"resource"`
	BeforeHash    string `json:"before_hash"`
	AfterHash     string `json:"after_hash"`
	EntryHash     string `json:"entry_hash"`
	PrevEntryHash string `json:"prev_entry_hash"`
}

// timestampLayout is RFC 3339 with a fixed-width nanosecond fraction, so
// stored timestamps compare lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// entryHash computes the chained hash for an entry given its predecessor.
func entryHash(ts, user, action, resource, before, after, prev string) string {
	return hashing.HashString(ts + user + action + resource + before + after + prev)
}

// Chain is the append-only audit log.
type Chain struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (or creates) the audit database at path. ":memory:" is allowed.
func Open(path string) (*Chain, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, aecerr.Wrap(aecerr.IO, path, "failed to create audit directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, path, "failed to open audit database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryAudit).Debugf("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryAudit).Debugf("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, aecerr.Wrap(aecerr.IO, path, "failed to initialize audit schema", err)
	}

	return &Chain{db: db, path: path, now: time.Now}, nil
}

// Close releases the underlying database.
func (c *Chain) Close() error { return c.db.Close() }

// Append records an event and returns the created entry. The read of the
// predecessor hash and the insert happen in one transaction; concurrent
// appenders serialize on the SQLite write lock.
func (c *Chain) Append(user, action, resource, beforeHash, afterHash string) (*Entry, error) {
	if action == "" {
		return nil, aecerr.New(aecerr.InvalidArgument, resource, "audit action must not be empty")
	}

	ts := c.now().UTC().Format(timestampLayout)

	tx, err := c.db.Begin()
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, c.path, "failed to begin audit transaction", err)
	}
	defer tx.Rollback()

	var prev string
	err = tx.QueryRow("SELECT entry_hash FROM audit_log ORDER BY id DESC LIMIT 1").Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return nil, aecerr.Wrap(aecerr.IO, c.path, "failed to read last audit entry", err)
	}

	hash := entryHash(ts, user, action, resource, beforeHash, afterHash, prev)

	res, err := tx.Exec(
		`INSERT INTO audit_log (timestamp, user, action, resource, before_hash, after_hash, entry_hash, prev_entry_hash)
		 VALUES (?,?,?,?,?,?,?,?)`,
		ts, user, action, resource, beforeHash, afterHash, hash, prev,
	)
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, c.path, "failed to insert audit entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, c.path, "failed to read audit row id", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, c.path, "failed to commit audit entry", err)
	}

	logging.Get(logging.CategoryAudit).Debugf("appended audit entry %d action=%s resource=%s", id, action, resource)

	return &Entry{
		ID:            id,
		Timestamp:     ts,
		User:          user,
		Action:        action,
		Resource:      resource,
		BeforeHash:    beforeHash,
		AfterHash:     afterHash,
		EntryHash:     hash,
		PrevEntryHash: prev,
	}, nil
}

// VerifyChain walks every entry in id order, recomputing each hash from the
// stored fields and the running predecessor. It returns false at the first
// mismatch.
func (c *Chain) VerifyChain() (bool, error) {
	entries, err := c.Query(Filter{})
	if err != nil {
		return false, err
	}
	return VerifyEntries(entries), nil
}

// VerifyEntries checks a sequence of entries (in id order) offline,
// independent of any database. Exported so a JSON export can be verified
// without access to the original store.
func VerifyEntries(entries []Entry) bool {
	prev := ""
	for _, e := range entries {
		if e.PrevEntryHash != prev {
			return false
		}
		expected := entryHash(e.Timestamp, e.User, e.Action, e.Resource, e.BeforeHash, e.AfterHash, prev)
		if expected != e.EntryHash {
			return false
		}
		prev = e.EntryHash
	}
	return true
}

// Filter narrows a Query. Zero values match everything. Since and Until are
// compared lexically against the stored RFC 3339 timestamps, which orders
// correctly for UTC instants.
type Filter struct {
	Resource string
	User     string
	Action   string
	Since    string
	Until    string
}

// Query returns matching entries in id order.
func (c *Chain) Query(f Filter) ([]Entry, error) {
	query := "SELECT id, timestamp, user, action, resource, before_hash, after_hash, entry_hash, prev_entry_hash FROM audit_log"
	var clauses []string
	var args []any
	if f.Resource != "" {
		clauses = append(clauses, "resource = ?")
		args = append(args, f.Resource)
	}
	if f.User != "" {
		clauses = append(clauses, "user = ?")
		args = append(args, f.User)
	}
	if f.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, f.Action)
	}
	if f.Since != "" {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, f.Until)
	}
	for i, cl := range clauses {
		if i == 0 {
			query += " WHERE " + cl
		} else {
			query += " AND " + cl
		}
	}
	query += " ORDER BY id"

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, c.path, "failed to query audit log", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.User, &e.Action, &e.Resource,
			&e.BeforeHash, &e.AfterHash, &e.EntryHash, &e.PrevEntryHash); err != nil {
			return nil, aecerr.Wrap(aecerr.IO, c.path, "failed to scan audit row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, aecerr.Wrap(aecerr.IO, c.path, "failed to iterate audit rows", err)
	}
	return entries, nil
}

// ExportJSON returns the full audit trail as a JSON array in id order. The
// export is verifiable offline via VerifyEntries.
func (c *Chain) ExportJSON() ([]byte, error) {
	entries, err := c.Query(Filter{})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit export: %w", err)
	}
	return data, nil
}

// Count returns the number of entries in the log.
func (c *Chain) Count() (int64, error) {
	var n int64
	if err := c.db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, aecerr.Wrap(aecerr.IO, c.path, "failed to count audit entries", err)
	}
	return n, nil
}
