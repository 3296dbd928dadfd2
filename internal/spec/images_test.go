package spec

import "testing"

func TestResolveAgentImage_DefaultPreset(t *testing.T) {
	img, err := ResolveAgentImage("default", "ghcr.io/agentfw", "v1")
	if err != nil {
		t.Fatalf("ResolveAgentImage() error = %v", err)
	}
	if img != "ghcr.io/agentfw/agent:v1" {
		t.Errorf("ResolveAgentImage() = %q", img)
	}
}

func TestResolveAgentImage_EmptyDefaultsToDefaultPreset(t *testing.T) {
	img, err := ResolveAgentImage("", "ghcr.io/agentfw", "v1")
	if err != nil {
		t.Fatalf("ResolveAgentImage() error = %v", err)
	}
	if img != "ghcr.io/agentfw/agent:v1" {
		t.Errorf("ResolveAgentImage() = %q", img)
	}
}

func TestResolveAgentImage_ActPreset(t *testing.T) {
	img, err := ResolveAgentImage("act", "ghcr.io/agentfw", "v1")
	if err != nil {
		t.Fatalf("ResolveAgentImage() error = %v", err)
	}
	if img != "ghcr.io/agentfw/agent-act:v1" {
		t.Errorf("ResolveAgentImage() = %q", img)
	}
}

func TestResolveAgentImage_AllowedUbuntuRef(t *testing.T) {
	for _, ref := range []string{"ubuntu:20.04", "ubuntu:22.04", "ubuntu:24.04"} {
		if _, err := ResolveAgentImage(ref, "reg", "tag"); err != nil {
			t.Errorf("ResolveAgentImage(%q) error = %v", ref, err)
		}
	}
}

func TestResolveAgentImage_AllowedRunnerRef(t *testing.T) {
	if _, err := ResolveAgentImage("ghcr.io/catthehacker/ubuntu:runner-22.04", "reg", "tag"); err != nil {
		t.Errorf("ResolveAgentImage() error = %v", err)
	}
	if _, err := ResolveAgentImage("ghcr.io/catthehacker/ubuntu:full-24.04", "reg", "tag"); err != nil {
		t.Errorf("ResolveAgentImage() error = %v", err)
	}
}

func TestResolveAgentImage_AllowedWithDigest(t *testing.T) {
	digest := "@sha256:" + repeatHex(64)
	if _, err := ResolveAgentImage("ubuntu:22.04"+digest, "reg", "tag"); err != nil {
		t.Errorf("ResolveAgentImage() error = %v", err)
	}
}

func TestResolveAgentImage_RejectsUnknownRef(t *testing.T) {
	_, err := ResolveAgentImage("debian:bookworm", "reg", "tag")
	if err == nil {
		t.Fatal("ResolveAgentImage() should reject a ref outside the allowlist")
	}
}

func TestResolveAgentImage_RejectsBadDigestLength(t *testing.T) {
	_, err := ResolveAgentImage("ubuntu:22.04@sha256:deadbeef", "reg", "tag")
	if err == nil {
		t.Fatal("ResolveAgentImage() should reject a short digest")
	}
}

func TestValidateUID_CollapsesSystemAccount(t *testing.T) {
	uid, gid := ValidateUID(33, 33, false)
	if uid != 1000 || gid != 1000 {
		t.Errorf("ValidateUID(33, 33, false) = %d,%d, want 1000,1000", uid, gid)
	}
}

func TestValidateUID_CollapsesRootWithoutSudoUID(t *testing.T) {
	uid, gid := ValidateUID(0, 0, false)
	if uid != 1000 || gid != 1000 {
		t.Errorf("ValidateUID(0, 0, false) = %d,%d, want 1000,1000", uid, gid)
	}
}

func TestValidateUID_KeepsRegularUser(t *testing.T) {
	uid, gid := ValidateUID(1001, 1001, true)
	if uid != 1001 || gid != 1001 {
		t.Errorf("ValidateUID(1001, 1001, true) = %d,%d, want 1001,1001", uid, gid)
	}
}

func repeatHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
