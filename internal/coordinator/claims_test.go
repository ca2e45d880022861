package coordinator

import "testing"

func TestClaimConflictAndReclaim(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.Claim("src/api", "agent-a", nil, ""); err != nil {
		t.Fatalf("first Claim failed: %v", err)
	}

	_, err = in.Claim("src/api", "agent-b", nil, "")
	if err == nil {
		t.Fatal("expected ClaimConflictError when a different agent claims a held resource")
	}
	if _, ok := err.(*ClaimConflictError); !ok {
		t.Fatalf("error type = %T, want *ClaimConflictError", err)
	}

	if _, err := in.Claim("src/api", "agent-a", nil, ""); err != nil {
		t.Fatalf("re-claim by the same holder should succeed, got: %v", err)
	}
}

func TestReleaseRequiresHolder(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.Claim("src/api", "agent-a", nil, ""); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	err = in.Release("src/api", "agent-b", "")
	if err == nil {
		t.Fatal("expected ReleaseError when a non-holder releases a claim")
	}
	if _, ok := err.(*ReleaseError); !ok {
		t.Fatalf("error type = %T, want *ReleaseError", err)
	}

	if err := in.Release("src/api", "agent-a", ""); err != nil {
		t.Fatalf("Release by the holder should succeed, got: %v", err)
	}

	claims, err := in.ListClaims(ClaimFilter{})
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}
	for _, c := range claims {
		if c.What == "src/api" {
			t.Error("claim should be gone after a successful Release")
		}
	}
}
