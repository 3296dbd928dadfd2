package spec

import (
	"testing"

	"github.com/agentfw/awf/internal/config"
	"github.com/agentfw/awf/internal/netprovision"
)

func testInput(t *testing.T) Input {
	t.Helper()
	return Input{
		Cfg: &config.Config{
			AllowDomains:  []string{"github.com"},
			DNSServers:    []string{"8.8.8.8", "8.8.4.4"},
			ImageRegistry: "ghcr.io/agentfw",
			ImageTag:      "v1",
			AgentImage:    "default",
			AgentCmd:      "echo hi",
			WorkDir:       "/tmp/awf-work",
		},
		Net:          netprovision.Default,
		WorkDir:      "/tmp/awf-work",
		Workspace:    "/home/dev/project",
		ProxyConfDir: "/tmp/awf-work",
		ProxyLogsDir: "/tmp/awf-work/proxy-logs",
		AgentLogsDir: "/tmp/awf-work/agent-logs",
		SeccompPath:  "/tmp/awf-work/seccomp.json",
		HostsFile:    "/tmp/awf-work/chroot-x/hosts",
		Home:         "/home/dev",
		HostEnv:      map[string]string{},
		UID:          1000,
		GID:          1000,
	}
}

func TestBuild_ProducesProxyAndAgentServices(t *testing.T) {
	doc, err := Build(testInput(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := doc.Services["proxy"]; !ok {
		t.Error("Build() should emit a proxy service")
	}
	if _, ok := doc.Services["agent"]; !ok {
		t.Error("Build() should emit an agent service")
	}
	if _, ok := doc.Services["api-proxy"]; ok {
		t.Error("Build() should not emit api-proxy when disabled")
	}
}

func TestBuild_NetworkIsExternal(t *testing.T) {
	doc, err := Build(testInput(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	net, ok := doc.Networks["awf-net"]
	if !ok || !net.External {
		t.Errorf("Networks[awf-net] = %+v, want external=true", net)
	}
}

func TestBuild_ProxyAndAgentFixedAddresses(t *testing.T) {
	doc, err := Build(testInput(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if doc.Services["proxy"].Networks["awf-net"].IPv4Address != "172.30.0.10" {
		t.Errorf("proxy address = %q", doc.Services["proxy"].Networks["awf-net"].IPv4Address)
	}
	if doc.Services["agent"].Networks["awf-net"].IPv4Address != "172.30.0.20" {
		t.Errorf("agent address = %q", doc.Services["agent"].Networks["awf-net"].IPv4Address)
	}
}

func TestBuild_AgentCapabilitiesAndSecurityOpt(t *testing.T) {
	doc, err := Build(testInput(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	agent := doc.Services["agent"]
	if len(agent.CapAdd) != 3 || len(agent.CapDrop) != 5 {
		t.Errorf("agent caps = add %v drop %v", agent.CapAdd, agent.CapDrop)
	}
	foundAppArmor := false
	for _, opt := range agent.SecurityOpt {
		if opt == "apparmor:unconfined" {
			foundAppArmor = true
		}
	}
	if !foundAppArmor {
		t.Error("agent security_opt should include apparmor:unconfined")
	}
}

func TestBuild_AgentResourceLimits(t *testing.T) {
	doc, err := Build(testInput(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	agent := doc.Services["agent"]
	if agent.MemLimit != "4g" || agent.PidsLimit != 1000 || agent.CPUShares != 1024 {
		t.Errorf("agent limits = %+v", agent)
	}
}

func TestBuild_AgentDependsOnHealthyProxy(t *testing.T) {
	doc, err := Build(testInput(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	dep, ok := doc.Services["agent"].DependsOn["proxy"]
	if !ok || dep.Condition != "service_healthy" {
		t.Errorf("agent depends_on proxy = %+v", dep)
	}
}

func TestBuild_CommandDoublesDollarSigns(t *testing.T) {
	in := testInput(t)
	in.Cfg.AgentCmd = "echo $HOME && echo $$escaped"
	doc, err := Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	cmd := doc.Services["agent"].Command
	if len(cmd) != 3 || cmd[2] != "echo $$HOME && echo $$$$escaped" {
		t.Errorf("Command = %v", cmd)
	}
}

func TestBuild_APIProxyAddedWhenEnabledWithKey(t *testing.T) {
	in := testInput(t)
	in.Cfg.EnableAPIProxy = true
	in.Cfg.OpenAIKey = "sk-test"
	doc, err := Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := doc.Services["api-proxy"]; !ok {
		t.Fatal("Build() should emit api-proxy when enabled with a key")
	}
	if doc.Services["agent"].Environment["OPENAI_BASE_URL"] != "http://api-proxy:10000" {
		t.Errorf("agent OPENAI_BASE_URL = %q", doc.Services["agent"].Environment["OPENAI_BASE_URL"])
	}
	dep, ok := doc.Services["agent"].DependsOn["api-proxy"]
	if !ok || dep.Condition != "service_healthy" {
		t.Error("agent should depend on a healthy api-proxy")
	}
}

func TestBuild_APIProxyOmittedWithoutAnyKey(t *testing.T) {
	in := testInput(t)
	in.Cfg.EnableAPIProxy = true
	doc, err := Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := doc.Services["api-proxy"]; ok {
		t.Error("Build() should not emit api-proxy without any API key, even if enabled")
	}
}

func TestBuild_RejectsDisallowedAgentImage(t *testing.T) {
	in := testInput(t)
	in.Cfg.AgentImage = "debian:bookworm"
	if _, err := Build(in); err == nil {
		t.Fatal("Build() should reject a disallowed agent image")
	}
}

func TestBuild_FullFSUsesSingleRootBind(t *testing.T) {
	in := testInput(t)
	in.Cfg.AllowFullFS = true
	doc, err := Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	found := false
	for _, v := range doc.Services["agent"].Volumes {
		if v == "/:/host" {
			found = true
		}
	}
	if !found {
		t.Errorf("agent volumes = %v, want a /:/host bind", doc.Services["agent"].Volumes)
	}
}

func TestEscapeShellArg_EscapesEmbeddedQuotes(t *testing.T) {
	got := EscapeShellArg(`it's a test`)
	want := `'it'\''s a test'`
	if got != want {
		t.Errorf("EscapeShellArg() = %q, want %q", got, want)
	}
}
