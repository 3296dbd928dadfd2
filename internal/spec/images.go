// Package spec builds the engine-compose document the orchestrator hands
// to the container engine (spec §4.5, C5): the proxy, agent, and optional
// API-proxy services, their volumes, environment, capability set, and
// resource limits.
//
// Grounded on the teacher's internal/security/flags.go (SecurityFlags,
// BuildArgs, Validate — adapted from docker-run flags to compose
// cap_add/cap_drop/security_opt fields) and internal/mounts/layout.go's
// Mount struct (adapted from aibox's cache-volume layout to this spec's
// curated read-only /host tree and secrets-barrier tmpfs mounts).
package spec

import (
	"fmt"
	"regexp"

	"github.com/agentfw/awf/internal/errs"
)

var agentImagePattern = regexp.MustCompile(
	`^(?:` +
		`ubuntu:(?:20\.04|22\.04|24\.04)` +
		`|ghcr\.io/catthehacker/ubuntu:(?:runner|full)-\d{2}\.\d{2}` +
		`)(?:@sha256:[0-9a-f]{64})?$`,
)

// ResolveAgentImage turns the agentImage config value (spec §6, "Agent
// base-image allowlist") into the image reference compose should launch.
// "default" and "act" are presets resolved against registry/tag; anything
// else must match agentImagePattern verbatim.
func ResolveAgentImage(ref, registry, tag string) (string, error) {
	switch ref {
	case "", "default":
		return fmt.Sprintf("%s/agent:%s", registry, tag), nil
	case "act":
		return fmt.Sprintf("%s/agent-act:%s", registry, tag), nil
	}
	if !agentImagePattern.MatchString(ref) {
		return "", errs.New(errs.KindConfigInvalid,
			fmt.Sprintf("agent image %q is not an allowed base image (want ubuntu:20.04|22.04|24.04, "+
				"ghcr.io/catthehacker/ubuntu:runner-XX.XX|full-XX.XX, optionally @sha256:<digest>, or preset default/act)", ref))
	}
	return ref, nil
}

// ActBuildArg is the BASE_IMAGE build arg used when the "act" preset is
// built locally (spec §6).
const ActBuildArg = "ghcr.io/catthehacker/ubuntu:act-24.04"

// ValidateUID collapses the invoker's uid/gid to 1000:1000 when the
// process reports a system account (<1000) or was elevated without
// SUDO_UID/SUDO_GID being propagated — spec §4.5's UID policy exists to
// avoid writing files owned by a system account from inside the sandbox.
func ValidateUID(uid, gid int, hasSudoUID bool) (int, int) {
	if uid < 1000 || !hasSudoUID && uid == 0 {
		return 1000, 1000
	}
	return uid, gid
}
