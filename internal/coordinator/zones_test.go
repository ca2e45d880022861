package coordinator

import "testing"

func TestCheckZoneBoundarySafe(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.UpsertZone(Zone{Path: "src/api", Owner: "agent-a"}, ""); err != nil {
		t.Fatalf("UpsertZone failed: %v", err)
	}

	z, err := in.CheckZone("src/api-v2/foo.ts")
	if err != nil {
		t.Fatalf("CheckZone failed: %v", err)
	}
	if z != nil {
		t.Errorf("CheckZone(%q) = %+v, want nil (must not match on a bare string prefix)", "src/api-v2/foo.ts", z)
	}

	owned, err := in.CheckZone("src/api/handler.go")
	if err != nil {
		t.Fatalf("CheckZone failed: %v", err)
	}
	if owned == nil || owned.Owner != "agent-a" {
		t.Fatalf("CheckZone(%q) = %v, want zone owned by agent-a", "src/api/handler.go", owned)
	}
}

func TestCheckZoneExactMatch(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.UpsertZone(Zone{Path: "src/api", Owner: "agent-a"}, ""); err != nil {
		t.Fatalf("UpsertZone failed: %v", err)
	}

	z, err := in.CheckZone("src/api")
	if err != nil {
		t.Fatalf("CheckZone failed: %v", err)
	}
	if z == nil {
		t.Fatal("CheckZone should match the zone's own path exactly")
	}
}
