package vmpool

import "testing"

func TestProvisionReadyHealth(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	vm, err := in.Provision("i-abc123", "us-east-1", VMSizeMedium, map[string]any{"note": "test"})
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if vm.Status != VMStatusProvisioning {
		t.Errorf("Status = %q, want provisioning", vm.Status)
	}
	if vm.MaxAgents != 5 {
		t.Errorf("MaxAgents = %d, want 5 for medium", vm.MaxAgents)
	}

	ip := "10.0.0.5"
	ready, err := in.Ready(vm.VMID, &ip, &ip)
	if err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	if ready.Status != VMStatusReady {
		t.Errorf("Status after Ready = %q, want ready", ready.Status)
	}
	if ready.HealthStatus != HealthStatusHealthy {
		t.Errorf("HealthStatus after Ready = %q, want healthy", ready.HealthStatus)
	}

	unhealthy, err := in.Health(vm.VMID, HealthStatusUnhealthy, nil)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if unhealthy.Status != VMStatusError {
		t.Errorf("Status after unhealthy report = %q, want error", unhealthy.Status)
	}
}

func TestTerminateWithActiveAssignmentsRequiresForce(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	vm, err := in.Provision("i-xyz", "us-east-1", VMSizeSmall, nil)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	ip := "10.0.0.9"
	if _, err := in.Ready(vm.VMID, &ip, &ip); err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	if _, err := in.Spawn("agent-1", &vm.VMID, nil); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	_, err = in.Terminate(vm.VMID, false)
	if err == nil {
		t.Fatal("expected TerminateConflictError with an active assignment and force=false")
	}
	if _, ok := err.(*TerminateConflictError); !ok {
		t.Fatalf("error type = %T, want *TerminateConflictError", err)
	}

	terminated, err := in.Terminate(vm.VMID, true)
	if err != nil {
		t.Fatalf("forced Terminate failed: %v", err)
	}
	if terminated.Status != VMStatusTerminated {
		t.Errorf("Status after forced Terminate = %q, want terminated", terminated.Status)
	}
}
