// Package assets embeds the static seccomp profile the agent container's
// security_opt references (spec §4.5, "security_opt").
//
// Grounded on the teacher's internal/assets/assets.go (go:embed +
// WriteSeccompProfile), minus the AppArmor-profile half — this spec
// always runs apparmor:unconfined (spec §4.5) and has no named profile to
// embed.
package assets

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/agentfw/awf/internal/errs"
)

//go:embed seccomp.json
var seccompProfile []byte

// SeccompProfile returns the embedded seccomp profile.
func SeccompProfile() []byte {
	return seccompProfile
}

// WriteSeccompProfile writes the embedded profile to path (spec §3,
// WorkspaceLayout's "seccomp.json (0600)").
func WriteSeccompProfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "creating seccomp profile directory", err)
	}
	if err := os.WriteFile(path, seccompProfile, 0o600); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "writing seccomp profile", err)
	}
	return nil
}
