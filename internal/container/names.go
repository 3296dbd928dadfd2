// Package container names the firewall wrapper's well-known service
// containers and validates the workspace path passed on the command
// line.
//
// Grounded on the teacher's internal/container/names.go
// (ContainerName/ContainerLabel), but the naming policy itself changes:
// the teacher hashes the workspace path into a per-sandbox name because
// it runs many long-lived sandboxes side by side. This wrapper is a
// one-shot invocation, and C6's startup ordering contract (spec §4.6)
// requires force-removing "stale containers with the well-known names"
// left by a crashed prior run — so names here are fixed, not derived.
package container

const (
	// ProxyName is the compose service/container name for the Squid proxy.
	ProxyName = "awf-proxy"
	// AgentName is the compose service/container name for the sandboxed
	// agent.
	AgentName = "awf-agent"
	// APIProxyName is the compose service/container name for the optional
	// LLM API proxy (spec §4.5, "API proxy (optional third service)").
	APIProxyName = "awf-api-proxy"

	// Label is applied to every container this tool manages, for
	// filtering in `ps`/cleanup sweeps.
	Label = "awf.managed=true"
)

// AllNames returns every well-known container name the orchestrator may
// need to force-remove before a fresh compose-up (spec §4.6, "Startup
// ordering").
func AllNames(apiProxyEnabled bool) []string {
	names := []string{ProxyName, AgentName}
	if apiProxyEnabled {
		names = append(names, APIProxyName)
	}
	return names
}
