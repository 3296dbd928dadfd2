// Package artifact moves the agent and proxy logs out of workDir to a
// stable, world-readable post-run location so a downstream CI harvester
// can collect them after workDir itself is removed (spec §4.8, C8).
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentfw/awf/internal/errs"
)

// Paths is where each log directory ended up after Persist.
type Paths struct {
	AgentLogsDir string
	ProxyLogsDir string
}

// Persist moves agentLogsDir and proxyLogsDir from under workDir to
// /tmp/awf-agent-logs-<ts> and /tmp/<proxyName>-logs-<ts>, then
// recursively chmods them world-readable — proxy-logs in particular is
// owned by the proxy's in-container system uid and must be made readable
// to the host (spec §4.8).
func Persist(agentLogsDir, proxyLogsDir, proxyName string, ts int64) (Paths, error) {
	agentDest := fmt.Sprintf("/tmp/awf-agent-logs-%d", ts)
	proxyDest := fmt.Sprintf("/tmp/%s-logs-%d", proxyName, ts)

	if err := moveAndOpen(agentLogsDir, agentDest); err != nil {
		return Paths{}, err
	}
	if err := moveAndOpen(proxyLogsDir, proxyDest); err != nil {
		return Paths{}, err
	}

	return Paths{AgentLogsDir: agentDest, ProxyLogsDir: proxyDest}, nil
}

// moveAndOpen relocates src to dest (skipping cleanly if src does not
// exist — a component that never started leaves no logs) and recursively
// chmods dest world-readable.
func moveAndOpen(src, dest string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.KindConfigInvalid, "checking log directory "+src, err)
	}
	if err := os.Rename(src, dest); err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "moving log directory "+src+" to "+dest, err)
	}
	return chmodRecursiveWorldReadable(dest)
}

func chmodRecursiveWorldReadable(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		mode := info.Mode().Perm() | 0o444
		if info.IsDir() {
			mode |= 0o111 // traversable, so a harvester can list it
		}
		return os.Chmod(path, mode)
	})
}
