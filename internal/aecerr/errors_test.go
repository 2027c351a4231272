package aecerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	e := New(NotFound, "EL123", "element does not exist")
	want := "[not_found] EL123: element does not exist"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	cause := errors.New("disk full")
	wrapped := Wrap(IO, "/tmp/x", "failed to write", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	e := New(Conflict, "", "duplicate")
	if KindOf(e) != Conflict {
		t.Errorf("KindOf = %s", KindOf(e))
	}

	deep := fmt.Errorf("outer: %w", e)
	if KindOf(deep) != Conflict {
		t.Error("KindOf does not see through wrapping")
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("untyped error should have empty kind")
	}
}

func TestKindPredicates(t *testing.T) {
	if !IsNotFound(New(NotFound, "x", "m")) {
		t.Error("IsNotFound failed")
	}
	if !IsConflict(fmt.Errorf("wrap: %w", New(Conflict, "x", "m"))) {
		t.Error("IsConflict failed through wrapping")
	}
	if IsNotFound(New(IO, "x", "m")) {
		t.Error("IsNotFound matched the wrong kind")
	}
}
