package vmpool

import "testing"

func provisionReadyVM(t *testing.T, in *Instance, size string, agentCount int) *VM {
	t.Helper()
	vm, err := in.Provision("i-"+t.Name(), "us-east-1", size, nil)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	ip := "10.0.0.1"
	ready, err := in.Ready(vm.VMID, &ip, &ip)
	if err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	for i := 0; i < agentCount; i++ {
		if _, err := in.Spawn("agent-"+t.Name()+string(rune('a'+i)), &ready.VMID, nil); err != nil {
			t.Fatalf("Spawn failed: %v", err)
		}
	}
	return ready
}

func TestScaleRecommendsProvisionWhenLowOnHeadroom(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	vm := provisionReadyVM(t, in, VMSizeSmall, 2) // capacity 2, fully booked -> busy
	if vm.Status != VMStatusReady {
		t.Fatalf("setup: expected ready status before Scale, got %q", vm.Status)
	}

	rec, err := in.Scale()
	if err != nil {
		t.Fatalf("Scale failed: %v", err)
	}
	if rec.Action != ScaleActionProvision {
		t.Errorf("Action = %q, want %q (vm should be full/busy with no headroom)", rec.Action, ScaleActionProvision)
	}
}

func TestScaleHistoryRecordsRecommendations(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	provisionReadyVM(t, in, VMSizeSmall, 2) // fully booked -> provision recommendation

	if _, err := in.Scale(); err != nil {
		t.Fatalf("Scale failed: %v", err)
	}

	history, err := in.ScaleHistory()
	if err != nil {
		t.Fatalf("ScaleHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("ScaleHistory returned %d entries, want 1", len(history))
	}
	if history[0].Action != ScaleActionProvision {
		t.Errorf("history[0].Action = %q, want %q", history[0].Action, ScaleActionProvision)
	}
}

func TestScaleNeverMutatesInventory(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	provisionReadyVM(t, in, VMSizeLarge, 0)

	before, err := in.ListVMs()
	if err != nil {
		t.Fatalf("ListVMs failed: %v", err)
	}

	if _, err := in.Scale(); err != nil {
		t.Fatalf("Scale failed: %v", err)
	}

	after, err := in.ListVMs()
	if err != nil {
		t.Fatalf("ListVMs after Scale failed: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("VM count changed after Scale: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Status != after[i].Status || before[i].AgentCount != after[i].AgentCount {
			t.Errorf("vm %s mutated by Scale: before=%+v after=%+v", before[i].VMID, before[i], after[i])
		}
	}
}
