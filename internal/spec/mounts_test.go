package spec

import "testing"

func TestParseVolumeMount_HostContainerOnly(t *testing.T) {
	m, err := parseVolumeMount("/host/path:/container/path")
	if err != nil {
		t.Fatalf("parseVolumeMount() error = %v", err)
	}
	if m.Source != "/host/path" || m.Target != "/container/path" || m.ReadOnly {
		t.Errorf("parseVolumeMount() = %+v", m)
	}
}

func TestParseVolumeMount_ReadOnlySuffix(t *testing.T) {
	m, err := parseVolumeMount("/a:/b:ro")
	if err != nil {
		t.Fatalf("parseVolumeMount() error = %v", err)
	}
	if !m.ReadOnly {
		t.Error("parseVolumeMount() should mark ro mounts read-only")
	}
}

func TestParseVolumeMount_RejectsBadMode(t *testing.T) {
	if _, err := parseVolumeMount("/a:/b:bogus"); err == nil {
		t.Fatal("parseVolumeMount() should reject an unknown mode")
	}
}

func TestParseVolumeMount_RejectsMissingParts(t *testing.T) {
	if _, err := parseVolumeMount("/a"); err == nil {
		t.Fatal("parseVolumeMount() should reject a single-segment mount")
	}
}

func TestDefaultVolumePolicy_IncludesCuratedHostTree(t *testing.T) {
	mounts := DefaultVolumePolicy("/workspace", "/home/dev", "/work/hosts", "/var/run/docker.sock", nil)
	found := false
	for _, m := range mounts {
		if m.Source == "/usr" && m.Target == "/host/usr" && m.ReadOnly {
			found = true
		}
	}
	if !found {
		t.Error("DefaultVolumePolicy() should bind /usr read-only under /host/usr")
	}
}

func TestDefaultVolumePolicy_MasksCredentialFiles(t *testing.T) {
	mounts := DefaultVolumePolicy("/workspace", "/home/dev", "/work/hosts", "/var/run/docker.sock", []string{"/home/dev/.docker/config.json"})
	found := false
	for _, m := range mounts {
		if m.Source == "/dev/null" && m.Target == "/home/dev/.docker/config.json" {
			found = true
		}
	}
	if !found {
		t.Error("DefaultVolumePolicy() should mask the given credential files with /dev/null")
	}
}

func TestFullFSVolumePolicy_NoCredentialMasks(t *testing.T) {
	mounts := FullFSVolumePolicy("/var/run/docker.sock")
	for _, m := range mounts {
		if m.Description == "credential mask" {
			t.Error("FullFSVolumePolicy() should not mask credentials")
		}
	}
	if len(mounts) != 2 {
		t.Errorf("FullFSVolumePolicy() = %d mounts, want 2 (root bind + socket mask)", len(mounts))
	}
}

func TestSecretsBarrierMounts_HidesWorkDirBothPaths(t *testing.T) {
	mounts := SecretsBarrierMounts("/tmp/awf-xyz")
	targets := map[string]bool{}
	for _, m := range mounts {
		targets[m.Target] = true
		if m.TmpfsSize != "1m" {
			t.Errorf("tmpfs size = %q, want 1m", m.TmpfsSize)
		}
	}
	for _, want := range []string{"/tmp/awf-xyz", "/host/tmp/awf-xyz", "/tmp/gh-aw/mcp-logs", "/host/tmp/gh-aw/mcp-logs"} {
		if !targets[want] {
			t.Errorf("SecretsBarrierMounts() missing target %q", want)
		}
	}
}

func TestExplicitVolumePolicy_IncludesEssentials(t *testing.T) {
	mounts, err := ExplicitVolumePolicy([]string{"/a:/b:ro"}, "/hosts", "/proxy-logs", "/agent-logs")
	if err != nil {
		t.Fatalf("ExplicitVolumePolicy() error = %v", err)
	}
	var hasExplicit, hasHosts bool
	for _, m := range mounts {
		if m.Source == "/a" && m.Target == "/b" {
			hasExplicit = true
		}
		if m.Target == "/host/etc/hosts" {
			hasHosts = true
		}
	}
	if !hasExplicit || !hasHosts {
		t.Errorf("ExplicitVolumePolicy() = %+v", mounts)
	}
}
