package spec

// AgentCapAdd/AgentCapDrop/AgentSecurityOpt implement the agent service's
// mandatory security posture (spec §4.5). Adapted from the teacher's
// internal/security/flags.go SecurityFlags, which built a single
// cap-drop=ALL/read-only/seccomp set for docker-run flags; this spec
// instead needs a narrower capability add-back (NET_ADMIN/SYS_CHROOT/
// SYS_ADMIN for the in-container proxy redirect and chroot) expressed as
// compose cap_add/cap_drop lists rather than CLI flags.

// AgentCapAdd is added back for the agent's in-container proxy-redirect
// and chroot setup.
var AgentCapAdd = []string{"NET_ADMIN", "SYS_CHROOT", "SYS_ADMIN"}

// AgentCapDrop removes everything the agent has no legitimate use for.
var AgentCapDrop = []string{"NET_RAW", "SYS_PTRACE", "SYS_MODULE", "SYS_RAWIO", "MKNOD"}

// AgentSecurityOpt builds the agent's security_opt list. AppArmor must
// stay unconfined (rather than a named profile, as the teacher's sandbox
// used) because the agent's entrypoint performs its own chroot, which a
// confining AppArmor profile would block.
func AgentSecurityOpt(seccompPath string) []string {
	return []string{
		"no-new-privileges:true",
		"seccomp=" + seccompPath,
		"apparmor:unconfined",
	}
}

// ResourceLimits are the hard caps on a compose service (spec §4.5/§5).
type ResourceLimits struct {
	MemLimit  string
	PidsLimit int
	CPUShares int
}

// AgentLimits is the agent service's resource ceiling.
var AgentLimits = ResourceLimits{MemLimit: "4g", PidsLimit: 1000, CPUShares: 1024}

// APIProxyLimits is the optional API-proxy service's resource ceiling —
// far lower than the agent's since it only relays HTTP requests.
var APIProxyLimits = ResourceLimits{MemLimit: "512m", PidsLimit: 100, CPUShares: 512}
