package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := (&DomainError{
		Category: ErrCatIO,
		Code:     "CODE",
		Message:  "message",
	}).WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatIO, Code: "CODE"}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
}

func TestDomainError_MessageIncludesPath(t *testing.T) {
	err := ErrIO(CodeRemoveFailed, "remove directory", "/data/proc_failed/x", errors.New("busy"))
	want := "[io] REMOVE_FAILED: cannot remove directory '/data/proc_failed/x' (busy)"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
	if err.Op != "remove directory" {
		t.Fatalf("unexpected op %q", err.Op)
	}
}

func TestIsLockUnavailable(t *testing.T) {
	wrapped := fmt.Errorf("acquire: %w", ErrLockUnavailable("/tmp/run.lock"))
	if !IsLockUnavailable(wrapped) {
		t.Fatalf("expected wrapped lock error to be detected")
	}
	if IsLockUnavailable(errors.New("other")) {
		t.Fatalf("plain error must not be a lock error")
	}
	if GetCategory(wrapped) != ErrCatLock {
		t.Fatalf("unexpected category %s", GetCategory(wrapped))
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(ErrIO(CodeTriageFailed, "list", "/p", nil)) {
		t.Fatalf("triage failure must be fatal")
	}
	if !IsFatal(ErrIO(CodeRunDirLock, "lock", "/p", nil)) {
		t.Fatalf("lock failure must be fatal")
	}
	if IsFatal(ErrIO(CodeArchiveFailed, "archive", "/p", nil)) {
		t.Fatalf("archive failure is recoverable")
	}
	if IsFatal(ErrIO(CodeRegistryReadFailed, "list failure directory", "/p", nil)) {
		t.Fatalf("registry read failure is recoverable")
	}
	if GetCategory(errors.New("x")) != ErrCatInternal {
		t.Fatalf("foreign errors default to internal")
	}
}
