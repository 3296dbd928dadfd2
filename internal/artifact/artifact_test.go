package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPersist_MovesAndChmodsBothDirs(t *testing.T) {
	dir := t.TempDir()
	agentLogs := filepath.Join(dir, "agent-logs")
	proxyLogs := filepath.Join(dir, "proxy-logs")
	if err := os.MkdirAll(agentLogs, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(proxyLogs, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(agentLogs, "out.log"), []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(proxyLogs, "access.log"), []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}

	paths, err := Persist(agentLogs, proxyLogs, "awf-proxy", 1234567890)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	defer os.RemoveAll(paths.AgentLogsDir)
	defer os.RemoveAll(paths.ProxyLogsDir)

	if paths.AgentLogsDir != "/tmp/awf-agent-logs-1234567890" {
		t.Errorf("AgentLogsDir = %q", paths.AgentLogsDir)
	}
	if paths.ProxyLogsDir != "/tmp/awf-proxy-logs-1234567890" {
		t.Errorf("ProxyLogsDir = %q", paths.ProxyLogsDir)
	}

	if _, err := os.Stat(agentLogs); !os.IsNotExist(err) {
		t.Error("original agent-logs dir should no longer exist")
	}

	info, err := os.Stat(filepath.Join(paths.AgentLogsDir, "out.log"))
	if err != nil {
		t.Fatalf("stat moved log: %v", err)
	}
	if info.Mode().Perm()&0o444 != 0o444 {
		t.Errorf("moved log mode = %v, want world-readable", info.Mode().Perm())
	}
}

func TestPersist_MissingSourceIsNotAnError(t *testing.T) {
	paths, err := Persist("/nonexistent/agent-logs", "/nonexistent/proxy-logs", "awf-proxy", 1)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if _, err := os.Stat(paths.AgentLogsDir); !os.IsNotExist(err) {
		t.Error("dest should not exist when source never existed")
	}
}
