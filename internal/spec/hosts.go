package spec

import (
	"fmt"
	"net"
	"os"

	"github.com/agentfw/awf/internal/domain"
	"github.com/agentfw/awf/internal/errs"
)

// WritePreResolvedHosts resolves every allowed Plain domain and writes
// the results as an /etc/hosts fragment at path (spec §4.5, "pre-resolved
// hosts file"). Wildcards are skipped — they cannot be resolved without a
// concrete name. Resolution failures are skipped too, not fatal: the
// agent's in-chroot resolver may still reach the host directly.
func WritePreResolvedHosts(path string, plains map[domain.Protocol][]domain.Plain) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errs.Wrap(errs.KindConfigInvalid, "creating pre-resolved hosts file", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "127.0.0.1\tlocalhost")
	fmt.Fprintln(f, "::1\tlocalhost ip6-localhost ip6-loopback")

	seen := map[string]bool{}
	for _, byProto := range plains {
		for _, p := range byProto {
			if seen[p.Host] {
				continue
			}
			seen[p.Host] = true
			ips, err := net.LookupIP(p.Host)
			if err != nil || len(ips) == 0 {
				continue
			}
			fmt.Fprintf(f, "%s\t%s\n", ips[0].String(), p.Host)
		}
	}
	return nil
}
