package spec

import (
	"sort"
	"strconv"
	"strings"
)

// selectivePassthrough is copied from the host when envAll is false: the
// credential tokens an agent typically needs plus a handful of terminal/
// locale variables that change its UI behavior (spec §4.5, "either
// selective passthrough... or, under envAll, every host variable").
var selectivePassthrough = []string{
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GITHUB_TOKEN", "GH_TOKEN",
	"TERM", "COLORTERM", "LANG", "LC_ALL",
}

// envAllExclusions is the fixed exclusion set under --env-all (spec §4.5).
var envAllExclusions = map[string]bool{
	"PATH": true, "DOCKER_HOST": true, "DOCKER_CONTEXT": true, "DOCKER_CONFIG": true,
	"PWD": true, "OLDPWD": true, "SHLVL": true, "_": true,
}

// toolchainPassthrough is carried into the container only when present on
// the host (spec §6).
var toolchainPassthrough = []string{"AWF_GOROOT", "AWF_CARGO_HOME", "AWF_JAVA_HOME", "AWF_DOTNET_ROOT", "AWF_BUN_INSTALL"}

func isSudoVar(key string) bool {
	return strings.HasPrefix(key, "SUDO_")
}

// AgentEnvironment builds the agent service's environment map: the fixed
// proxy/identity variables, selective-or-full passthrough, toolchain
// variables present on the host, and finally additionalEnv overriding
// everything (spec §4.5/§6).
func AgentEnvironment(
	hostEnv map[string]string,
	squidIP string,
	squidPort int,
	home, sanitizedPath string,
	dnsServers []string,
	workDir string,
	enableHostAccess bool,
	allowHostPorts []string,
	envAll bool,
	additionalEnv map[string]string,
) map[string]string {
	env := map[string]string{
		"HTTP_PROXY":          squidURL(squidIP, squidPort),
		"HTTPS_PROXY":         squidURL(squidIP, squidPort),
		"HOME":                home,
		"PATH":                sanitizedPath,
		"DOCKER_HOST":         "unix:///var/run/docker.sock",
		"DOCKER_CONTEXT":      "default",
		"AWF_CHROOT_ENABLED":  "true",
		"AWF_DNS_SERVERS":     strings.Join(dnsServers, ","),
	}
	if workDir != "" {
		env["AWF_WORKDIR"] = workDir
	}
	if enableHostAccess {
		env["AWF_ENABLE_HOST_ACCESS"] = "1"
	}
	if len(allowHostPorts) > 0 {
		env["AWF_ALLOW_HOST_PORTS"] = strings.Join(allowHostPorts, ",")
	}

	if envAll {
		for key, val := range hostEnv {
			if envAllExclusions[key] || isSudoVar(key) {
				continue
			}
			env[key] = val
		}
	} else {
		for _, key := range selectivePassthrough {
			if val, ok := hostEnv[key]; ok {
				env[key] = val
			}
		}
	}

	for _, key := range toolchainPassthrough {
		if val, ok := hostEnv[key]; ok {
			env[key] = val
		}
	}

	for key, val := range additionalEnv {
		env[key] = val
	}

	return env
}

func squidURL(ip string, port int) string {
	return "http://" + ip + ":" + strconv.Itoa(port)
}

// sortedKeys is a small helper used by tests that need deterministic
// iteration over an environment map.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
