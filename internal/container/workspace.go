package container

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentfw/awf/internal/errs"
)

// ValidateWorkspace checks that path exists and is a directory, and
// returns its absolute form. The teacher's WSL2/NTFS-mount detection is
// dropped here — Windows hosts are an explicit non-goal (spec §1, "the
// filter model assumes a Linux bridge").
func ValidateWorkspace(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errs.Wrap(errs.KindConfigInvalid, "resolving workspace path", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.New(errs.KindConfigInvalid, fmt.Sprintf("workspace path does not exist: %s", absPath))
		}
		return "", errs.Wrap(errs.KindConfigInvalid, "checking workspace path", err)
	}
	if !info.IsDir() {
		return "", errs.New(errs.KindConfigInvalid, fmt.Sprintf("workspace path is not a directory: %s", absPath))
	}

	return absPath, nil
}
