package audit

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func openTestChain(t *testing.T) *Chain {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to open chain: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAppendAndVerify(t *testing.T) {
	c := openTestChain(t)

	var prev string
	for i := 0; i < 10; i++ {
		e, err := c.Append("alice", "create_element", "EL123", "", "hash")
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		if e.PrevEntryHash != prev {
			t.Errorf("entry %d prev hash = %q, want %q", i, e.PrevEntryHash, prev)
		}
		prev = e.EntryHash
	}

	ok, err := c.VerifyChain()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("verify_chain returned false on an untampered log")
	}

	n, err := c.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("count = %d, want 10", n)
	}
}

func TestEmptyChainVerifies(t *testing.T) {
	c := openTestChain(t)
	ok, err := c.VerifyChain()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("empty chain should verify")
	}
}

func TestAppendRejectsEmptyAction(t *testing.T) {
	c := openTestChain(t)
	if _, err := c.Append("alice", "", "r", "", ""); err == nil {
		t.Error("expected invalid_argument for empty action")
	}
}

func TestTamperDetection(t *testing.T) {
	c := openTestChain(t)
	for i := 0; i < 10; i++ {
		if _, err := c.Append("bob", "generate", "EL", "", ""); err != nil {
			t.Fatal(err)
		}
	}

	// Mutate the action of the 5th row directly in the database.
	if _, err := c.db.Exec("UPDATE audit_log SET action = 'tampered' WHERE id = 5"); err != nil {
		t.Fatal(err)
	}

	ok, err := c.VerifyChain()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("verify_chain returned true after tampering")
	}
}

func TestTamperAnyField(t *testing.T) {
	for _, column := range []string{"timestamp", "user", "resource", "before_hash", "after_hash", "prev_entry_hash", "entry_hash"} {
		t.Run(column, func(t *testing.T) {
			c := openTestChain(t)
			for i := 0; i < 3; i++ {
				if _, err := c.Append("bob", "generate", "EL", "b", "a"); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := c.db.Exec("UPDATE audit_log SET "+column+" = 'x' WHERE id = 2"); err != nil {
				t.Fatal(err)
			}
			ok, err := c.VerifyChain()
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Errorf("tampering with %s was not detected", column)
			}
		})
	}
}

func TestQueryFilters(t *testing.T) {
	c := openTestChain(t)
	c.Append("alice", "create_element", "EL1", "", "")
	c.Append("bob", "update_element", "EL1", "", "")
	c.Append("alice", "delete_element", "EL2", "", "")

	byResource, err := c.Query(Filter{Resource: "EL1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byResource) != 2 {
		t.Errorf("resource filter returned %d entries, want 2", len(byResource))
	}

	byUser, err := c.Query(Filter{User: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser) != 2 {
		t.Errorf("user filter returned %d entries, want 2", len(byUser))
	}

	byBoth, err := c.Query(Filter{User: "alice", Action: "delete_element"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byBoth) != 1 || byBoth[0].Resource != "EL2" {
		t.Errorf("combined filter returned %+v", byBoth)
	}
}

func TestExportVerifiableOffline(t *testing.T) {
	c := openTestChain(t)
	for i := 0; i < 5; i++ {
		if _, err := c.Append("alice", "generate", "EL", "", "h"); err != nil {
			t.Fatal(err)
		}
	}

	data, err := c.ExportJSON()
	if err != nil {
		t.Fatal(err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("export has %d entries, want 5", len(entries))
	}
	if !VerifyEntries(entries) {
		t.Error("exported entries do not verify offline")
	}

	// Flip one byte in a stored field and the offline check fails.
	entries[2].User = "mallory"
	if VerifyEntries(entries) {
		t.Error("tampered export still verifies")
	}
}

func TestInMemoryChain(t *testing.T) {
	c, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Append("u", "a", "r", "", ""); err != nil {
		t.Fatal(err)
	}
	ok, err := c.VerifyChain()
	if err != nil || !ok {
		t.Errorf("in-memory chain verify = %v, %v", ok, err)
	}
}
