package spec

import "testing"

func baseEnvArgs(hostEnv map[string]string, envAll bool, additional map[string]string) map[string]string {
	return AgentEnvironment(hostEnv, "172.30.0.10", 3128, "/home/dev", sanitizedPath,
		[]string{"8.8.8.8", "8.8.4.4"}, "/work/dir", false, nil, envAll, additional)
}

func TestAgentEnvironment_SetsProxyAndIdentity(t *testing.T) {
	env := baseEnvArgs(nil, false, nil)
	if env["HTTP_PROXY"] != "http://172.30.0.10:3128" {
		t.Errorf("HTTP_PROXY = %q", env["HTTP_PROXY"])
	}
	if env["HOME"] != "/home/dev" {
		t.Errorf("HOME = %q", env["HOME"])
	}
	if env["PATH"] != sanitizedPath {
		t.Errorf("PATH = %q, want sanitized path", env["PATH"])
	}
	if env["AWF_DNS_SERVERS"] != "8.8.8.8,8.8.4.4" {
		t.Errorf("AWF_DNS_SERVERS = %q", env["AWF_DNS_SERVERS"])
	}
}

func TestAgentEnvironment_SelectivePassthroughOnly(t *testing.T) {
	hostEnv := map[string]string{"OPENAI_API_KEY": "sk-x", "SOME_OTHER_VAR": "leak"}
	env := baseEnvArgs(hostEnv, false, nil)
	if env["OPENAI_API_KEY"] != "sk-x" {
		t.Error("selective passthrough should carry OPENAI_API_KEY")
	}
	if _, ok := env["SOME_OTHER_VAR"]; ok {
		t.Error("selective passthrough should not carry an arbitrary host variable")
	}
}

func TestAgentEnvironment_EnvAllExcludesFixedSet(t *testing.T) {
	hostEnv := map[string]string{"PATH": "/weird", "CUSTOM": "val", "SUDO_USER": "alice"}
	env := baseEnvArgs(hostEnv, true, nil)
	if env["PATH"] != sanitizedPath {
		t.Error("envAll must not let the host PATH override the sanitized PATH")
	}
	if env["CUSTOM"] != "val" {
		t.Error("envAll should carry arbitrary host variables not in the exclusion set")
	}
	if _, ok := env["SUDO_USER"]; ok {
		t.Error("envAll should exclude SUDO_* variables")
	}
}

func TestAgentEnvironment_AdditionalEnvOverridesAll(t *testing.T) {
	hostEnv := map[string]string{"OPENAI_API_KEY": "sk-host"}
	env := baseEnvArgs(hostEnv, false, map[string]string{"OPENAI_API_KEY": "sk-override", "EXTRA": "1"})
	if env["OPENAI_API_KEY"] != "sk-override" {
		t.Errorf("additionalEnv should override selective passthrough, got %q", env["OPENAI_API_KEY"])
	}
	if env["EXTRA"] != "1" {
		t.Error("additionalEnv should add new keys")
	}
}

func TestAgentEnvironment_ToolchainVarsCarriedWhenPresent(t *testing.T) {
	hostEnv := map[string]string{"AWF_CARGO_HOME": "/home/dev/.cargo"}
	env := baseEnvArgs(hostEnv, false, nil)
	if env["AWF_CARGO_HOME"] != "/home/dev/.cargo" {
		t.Error("toolchain passthrough should carry AWF_CARGO_HOME when present on host")
	}
}

func TestAgentEnvironment_OptionalFlagsOmittedByDefault(t *testing.T) {
	env := baseEnvArgs(nil, false, nil)
	if _, ok := env["AWF_ENABLE_HOST_ACCESS"]; ok {
		t.Error("AWF_ENABLE_HOST_ACCESS should be absent when disabled")
	}
	if _, ok := env["AWF_ALLOW_HOST_PORTS"]; ok {
		t.Error("AWF_ALLOW_HOST_PORTS should be absent when empty")
	}
}

func TestSortedKeys_Deterministic(t *testing.T) {
	m := map[string]string{"b": "1", "a": "2"}
	keys := sortedKeys(m)
	if keys[0] != "a" || keys[1] != "b" {
		t.Errorf("sortedKeys() = %v", keys)
	}
}
