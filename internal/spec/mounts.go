package spec

import (
	"fmt"
	"strings"

	"github.com/agentfw/awf/internal/errs"
)

// parseVolumeMount parses one -v HOST:CONTAINER[:ro|rw] flag value
// (spec §6).
func parseVolumeMount(raw string) (Mount, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Mount{}, errs.New(errs.KindConfigInvalid, fmt.Sprintf("invalid volume mount %q (want HOST:CONTAINER[:ro|rw])", raw))
	}
	m := Mount{Type: "bind", Source: parts[0], Target: parts[1]}
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			m.ReadOnly = true
		case "rw":
			m.ReadOnly = false
		default:
			return Mount{}, errs.New(errs.KindConfigInvalid, fmt.Sprintf("invalid volume mount mode %q in %q (want ro or rw)", parts[2], raw))
		}
	}
	return m, nil
}

// Mount describes one compose volume entry for a service.
//
// Adapted from the teacher's internal/mounts/layout.go Mount struct: the
// Type/Source/Target shape survives, but the concrete layout this
// builds (curated read-only /host tree, credential dev-null masks,
// secrets-barrier tmpfs) is new — aibox's Mount described per-user cache
// volumes for a long-lived dev sandbox, not a one-shot egress cage.
type Mount struct {
	Type        string // "bind", "volume", "tmpfs"
	Source      string // host path (bind); empty for tmpfs
	Target      string // container path
	ReadOnly    bool
	TmpfsSize   string // only set when Type == "tmpfs", e.g. "1m"
	Description string
}

// curatedHostPaths is mirrored read-only under /host in the default
// (non-allowFullFS, no explicit volumeMounts) volume policy.
var curatedHostPaths = []string{
	"/usr", "/bin", "/sbin", "/lib", "/lib64", "/opt", "/sys", "/dev",
	"/etc/ssl", "/etc/pki", "/etc/resolv.conf", "/etc/nsswitch.conf", "/etc/hosts.equiv",
}

// cacheDirs are mirrored read-write from the invoking user's home
// directory, if present, so language toolchains keep their caches warm
// across runs.
var cacheDirs = []string{".cargo", ".rustup", ".npm", ".claude", ".anthropic", ".copilot"}

// DefaultVolumePolicy builds the curated read-only /host tree, the
// workspace mirror, home-directory caches, the pre-resolved hosts
// override, and the credential dev-null masks (spec §4.5, "Volume
// policy" default case).
func DefaultVolumePolicy(workspace, home, hostsFile, engineSocket string, credentialFiles []string) []Mount {
	mounts := make([]Mount, 0, len(curatedHostPaths)+len(cacheDirs)+8)

	for _, p := range curatedHostPaths {
		mounts = append(mounts, Mount{Type: "bind", Source: p, Target: "/host" + p, ReadOnly: true, Description: "curated host path"})
	}
	mounts = append(mounts, Mount{Type: "bind", Source: "/tmp", Target: "/host/tmp", Description: "scratch space"})
	mounts = append(mounts, Mount{Type: "bind", Source: workspace, Target: "/host" + workspace, Description: "workspace mirror"})

	for _, d := range cacheDirs {
		mounts = append(mounts, Mount{
			Type:        "bind",
			Source:      home + "/" + d,
			Target:      "/host" + home + "/" + d,
			Description: fmt.Sprintf("%s cache", d),
		})
	}

	mounts = append(mounts, Mount{Type: "bind", Source: hostsFile, Target: "/host/etc/hosts", ReadOnly: true, Description: "pre-resolved allowlist hosts"})
	mounts = append(mounts, Mount{Type: "bind", Source: "/dev/null", Target: engineSocket, Description: "engine socket mask"})

	for _, c := range credentialFiles {
		mounts = append(mounts, Mount{Type: "bind", Source: "/dev/null", Target: c, Description: "credential mask"})
	}

	return mounts
}

// FullFSVolumePolicy implements allowFullFS=true: a single root bind plus
// the engine-socket override, but no credential masks (the operator has
// opted out of the curated boundary).
func FullFSVolumePolicy(engineSocket string) []Mount {
	return []Mount{
		{Type: "bind", Source: "/", Target: "/host", Description: "full filesystem access"},
		{Type: "bind", Source: "/dev/null", Target: engineSocket, Description: "engine socket mask"},
	}
}

// ExplicitVolumePolicy uses the caller-supplied volumeMounts verbatim,
// plus the essentials every agent needs regardless: /tmp, the log
// directories, and the pre-resolved hosts override.
func ExplicitVolumePolicy(raw []string, hostsFile, proxyLogsDir, agentLogsDir string) ([]Mount, error) {
	mounts := make([]Mount, 0, len(raw)+4)
	for _, r := range raw {
		m, err := parseVolumeMount(r)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	mounts = append(mounts, Mount{Type: "bind", Source: "/tmp", Target: "/host/tmp", Description: "scratch space"})
	mounts = append(mounts, Mount{Type: "bind", Source: proxyLogsDir, Target: "/host/proxy-logs", ReadOnly: true, Description: "proxy logs"})
	mounts = append(mounts, Mount{Type: "bind", Source: agentLogsDir, Target: "/agent-logs", Description: "agent logs"})
	mounts = append(mounts, Mount{Type: "bind", Source: hostsFile, Target: "/host/etc/hosts", ReadOnly: true, Description: "pre-resolved allowlist hosts"})
	return mounts, nil
}

// SecretsBarrierMounts returns the four tmpfs overlays that hide workDir
// and the shared MCP log directory at both their host path and their
// /host-prefixed mirror — the compose document itself lives in workDir
// and must not be readable from inside the agent (spec §4.5, "tmpfs").
func SecretsBarrierMounts(workDir string) []Mount {
	const size = "1m"
	paths := []string{workDir, "/host" + workDir, "/tmp/gh-aw/mcp-logs", "/host/tmp/gh-aw/mcp-logs"}
	mounts := make([]Mount, 0, len(paths))
	for _, p := range paths {
		mounts = append(mounts, Mount{Type: "tmpfs", Target: p, TmpfsSize: size, Description: "secrets barrier"})
	}
	return mounts
}
