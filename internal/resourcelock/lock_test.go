package resourcelock

import (
	"testing"
	"time"
)

func TestAcquireCheckRelease(t *testing.T) {
	in, err := Get(t.TempDir(), "src/test-acquire")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	lock, err := in.Acquire("agent-a", nil, ResourceTypeRepoPath, 0)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if lock.LockedBy != "agent-a" {
		t.Errorf("LockedBy = %q, want agent-a", lock.LockedBy)
	}
	if !lock.ExpiresAt.After(time.Now()) {
		t.Error("ExpiresAt should be in the future with default TTL")
	}

	checked, err := in.Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if checked == nil || checked.LockedBy != "agent-a" {
		t.Fatalf("Check = %v, want lock held by agent-a", checked)
	}

	if err := in.Release("agent-a", false); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	afterRelease, err := in.Check()
	if err != nil {
		t.Fatalf("Check after release failed: %v", err)
	}
	if afterRelease != nil {
		t.Fatalf("Check after release = %v, want nil", afterRelease)
	}
}

func TestAcquireConflict(t *testing.T) {
	in, err := Get(t.TempDir(), "src/test-conflict")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.Acquire("agent-a", nil, ResourceTypeCustom, time.Hour); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	_, err = in.Acquire("agent-b", nil, ResourceTypeCustom, time.Hour)
	if err == nil {
		t.Fatal("expected ConflictError acquiring a lock held by another agent")
	}
	if _, ok := err.(*ConflictError); !ok {
		t.Fatalf("error type = %T, want *ConflictError", err)
	}
}

func TestReleaseByNonOwnerRequiresForce(t *testing.T) {
	in, err := Get(t.TempDir(), "src/test-forbidden-release")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.Acquire("agent-a", nil, ResourceTypeCustom, time.Hour); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := in.Release("agent-b", false); err == nil {
		t.Fatal("expected ForbiddenError releasing someone else's lock without force")
	}

	if err := in.Release("agent-b", true); err != nil {
		t.Fatalf("forced Release failed: %v", err)
	}
}

func TestReacquireByOwnerRefreshesTTL(t *testing.T) {
	in, err := Get(t.TempDir(), "src/test-refresh")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	first, err := in.Acquire("agent-a", nil, ResourceTypeCustom, time.Minute)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	second, err := in.Acquire("agent-a", nil, ResourceTypeCustom, time.Hour)
	if err != nil {
		t.Fatalf("re-Acquire by same owner failed: %v", err)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Error("re-Acquire with a longer TTL should push ExpiresAt out")
	}
}
