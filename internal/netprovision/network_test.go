package netprovision

import (
	"context"
	"testing"
)

type fakeEngine struct {
	exists       bool
	created      bool
	removed      bool
	createCalls  int
	createName   string
	createSubnet string
	createBridge string
}

func (f *fakeEngine) NetworkExists(ctx context.Context, name string) bool {
	return f.exists
}

func (f *fakeEngine) NetworkCreate(ctx context.Context, name, subnet, bridgeName string) error {
	f.created = true
	f.createCalls++
	f.createName = name
	f.createSubnet = subnet
	f.createBridge = bridgeName
	return nil
}

func (f *fakeEngine) NetworkRemove(ctx context.Context, name string) error {
	f.removed = true
	return nil
}

func TestEnsure_CreatesWhenAbsent(t *testing.T) {
	fe := &fakeEngine{exists: false}
	p := New(fe, Default)

	cfg, err := p.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if !fe.created {
		t.Error("Ensure() should create the network when absent")
	}
	if fe.createName != Default.Network || fe.createSubnet != Default.Subnet || fe.createBridge != Default.Bridge {
		t.Errorf("Ensure() created with wrong params: %+v", fe)
	}
	if cfg != Default {
		t.Errorf("Ensure() = %+v, want %+v", cfg, Default)
	}
}

func TestEnsure_IdempotentWhenPresent(t *testing.T) {
	fe := &fakeEngine{exists: true}
	p := New(fe, Default)

	if _, err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if fe.created {
		t.Error("Ensure() must not recreate an existing network")
	}
}

func TestEnsure_TwiceInARowNeverDoubleCreates(t *testing.T) {
	fe := &fakeEngine{exists: false}
	p := New(fe, Default)

	if _, err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("first Ensure() error: %v", err)
	}
	fe.exists = true // simulate the network now existing
	if _, err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}
	if fe.createCalls != 1 {
		t.Errorf("NetworkCreate called %d times, want 1", fe.createCalls)
	}
}

func TestRemove_NotCalledByEnsure(t *testing.T) {
	fe := &fakeEngine{exists: false}
	p := New(fe, Default)
	if _, err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if fe.removed {
		t.Error("Ensure() must never call Remove on the happy path")
	}
}

func TestDefaultConfig_FixedAddressing(t *testing.T) {
	if Default.Subnet != "172.30.0.0/24" {
		t.Errorf("Default.Subnet = %q", Default.Subnet)
	}
	if Default.SquidIP != "172.30.0.10" || Default.AgentIP != "172.30.0.20" || Default.APIProxyIP != "172.30.0.30" {
		t.Errorf("Default addressing drifted: %+v", Default)
	}
	if Default.Bridge != "fw-bridge" || Default.Network != "awf-net" {
		t.Errorf("Default names drifted: %+v", Default)
	}
}
