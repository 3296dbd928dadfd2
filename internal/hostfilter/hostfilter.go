// Package hostfilter installs and tears down the host-level egress cage
// (spec §4.4, C4): two DOCKER-USER-rooted chains, FW_WRAPPER (v4) and
// FW_WRAPPER_V6, whose rule order is load-bearing.
//
// Grounded on other_examples' iptables adapter (the run/ruleExists/
// chain-management idiom — a thin exec.Command wrapper with a
// CombinedOutput-and-wrap error convention) and on the teacher's
// internal/network/nftables.go manager-with-defaults shape, retargeted
// from nft's single flush-and-reload table to iptables' append-order
// rule list and DOCKER-USER jump insertion.
package hostfilter

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"strings"

	"github.com/agentfw/awf/internal/errs"
)

const (
	chainV4 = "FW_WRAPPER"
	chainV6 = "FW_WRAPPER_V6"
)

// Config parameterizes the cage — the bridge device, the proxy's IP, and
// the trusted DNS servers permitted to receive port-53 traffic.
type Config struct {
	Bridge           string
	SquidIP          string
	SquidPort        int
	DNSServers       []string // trusted resolvers, v4 and/or v6
	EmbeddedResolver string   // the engine's own embedded DNS, e.g. 127.0.0.11
}

// runner executes one iptables/ip6tables invocation. Narrowed to an
// interface so tests substitute a fake instead of touching the real
// netfilter tables (which requires root and mutates host state).
type runner interface {
	// run executes the command and returns combined output.
	run(bin string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) run(bin string, args ...string) (string, error) {
	cmd := exec.Command(bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Installer installs and removes the egress cage.
type Installer struct {
	cfg Config
	r   runner
}

// New returns an Installer bound to cfg, driving real iptables/ip6tables
// binaries.
func New(cfg Config) *Installer {
	return &Installer{cfg: cfg, r: execRunner{}}
}

func (in *Installer) iptables(args ...string) (string, error) {
	return in.r.run("iptables", args...)
}

func (in *Installer) ip6tables(args ...string) (string, error) {
	return in.r.run("ip6tables", args...)
}

// Install probes for permission, tears down any stale chain from a prior
// crashed invocation, then builds FW_WRAPPER (and FW_WRAPPER_V6, if any
// configured DNS server is IPv6) in the exact order spec §4.4 requires,
// and finally inserts the DOCKER-USER jump.
func (in *Installer) Install() error {
	if _, err := in.iptables("-L", "DOCKER-USER"); err != nil {
		return errs.Wrap(errs.KindPermissionDenied, "probing DOCKER-USER chain (are you root?)", err)
	}

	in.cleanupChain("iptables", chainV4)
	if err := in.buildChain(false); err != nil {
		return err
	}
	if _, err := in.iptables("-I", "DOCKER-USER", "1", "-i", in.cfg.Bridge, "-j", chainV4); err != nil {
		return errs.Wrap(errs.KindPermissionDenied, "inserting DOCKER-USER jump to "+chainV4, err)
	}

	if in.wantsV6() {
		if _, err := in.ip6tables("-L", "DOCKER-USER"); err != nil {
			slog.Warn("ip6tables unavailable, skipping IPv6 egress cage", "error", err)
			return nil
		}
		in.cleanupChain("ip6tables", chainV6)
		if err := in.buildChain(true); err != nil {
			slog.Warn("failed to build IPv6 egress cage, continuing IPv4-only", "error", err)
			return nil
		}
		if _, err := in.ip6tables("-I", "DOCKER-USER", "1", "-i", in.cfg.Bridge, "-j", chainV6); err != nil {
			slog.Warn("failed to insert DOCKER-USER IPv6 jump, continuing IPv4-only", "error", err)
		}
	}
	return nil
}

func (in *Installer) wantsV6() bool {
	for _, d := range in.cfg.DNSServers {
		if isIPv6(d) {
			return true
		}
	}
	return false
}

func isIPv6(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() == nil
}

// buildChain creates the chain and appends its rules in the exact order
// spec §4.4 names. v6 selects the IPv6 mirror shape.
func (in *Installer) buildChain(v6 bool) error {
	run := in.iptables
	chain := chainV4
	if v6 {
		run = in.ip6tables
		chain = chainV6
	}

	if _, err := run("-N", chain); err != nil {
		return errs.Wrap(errs.KindPermissionDenied, "creating chain "+chain, err)
	}

	step := func(args ...string) error {
		full := append([]string{"-A", chain}, args...)
		if _, err := run(full...); err != nil {
			return errs.Wrap(errs.KindPermissionDenied, "appending rule to "+chain+": "+strings.Join(args, " "), err)
		}
		return nil
	}

	if !v6 {
		// 1. The proxy itself is unrestricted.
		if err := step("-s", in.cfg.SquidIP, "-j", "ACCEPT"); err != nil {
			return err
		}
	}

	// 2. Established/related return traffic.
	if err := step("-m", "conntrack", "--ctstate", "ESTABLISHED,RELATED", "-j", "ACCEPT"); err != nil {
		return err
	}

	// 3. Loopback.
	if err := step("-o", "lo", "-j", "ACCEPT"); err != nil {
		return err
	}
	if !v6 {
		if err := step("-d", "127.0.0.0/8", "-j", "ACCEPT"); err != nil {
			return err
		}
	} else {
		if err := step("-d", "::1/128", "-j", "ACCEPT"); err != nil {
			return err
		}
	}

	// 4. Each trusted DNS server of the matching family: LOG then ACCEPT,
	// both UDP/53 and TCP/53.
	for _, d := range in.cfg.DNSServers {
		if isIPv6(d) != v6 {
			continue
		}
		for _, proto := range []string{"udp", "tcp"} {
			if err := step("-p", proto, "-d", d, "--dport", "53", "-j", "LOG", "--log-prefix", "[FW_DNS_QUERY] "); err != nil {
				return err
			}
			if err := step("-p", proto, "-d", d, "--dport", "53", "-j", "ACCEPT"); err != nil {
				return err
			}
		}
	}

	if !v6 {
		// 5. The engine's embedded resolver.
		resolver := in.cfg.EmbeddedResolver
		if resolver == "" {
			resolver = "127.0.0.11"
		}
		for _, proto := range []string{"udp", "tcp"} {
			if err := step("-p", proto, "-d", resolver, "--dport", "53", "-j", "ACCEPT"); err != nil {
				return err
			}
		}

		// 6. The proxy port.
		port := in.cfg.SquidPort
		if port == 0 {
			port = 3128
		}
		if err := step("-p", "tcp", "-d", in.cfg.SquidIP, "--dport", strconv.Itoa(port), "-j", "ACCEPT"); err != nil {
			return err
		}

		// 7. Reject multicast, link-local, and the reserved 224.0.0.0/4 block.
		if err := step("-m", "addrtype", "--dst-type", "MULTICAST", "-j", "REJECT"); err != nil {
			return err
		}
		if err := step("-d", "169.254.0.0/16", "-j", "REJECT"); err != nil {
			return err
		}
		if err := step("-d", "224.0.0.0/4", "-j", "REJECT"); err != nil {
			return err
		}
	} else {
		// IPv6 mirror: allow ICMPv6 (path MTU, Neighbor Discovery), then
		// reject multicast (ff00::/8) and link-local (fe80::/10).
		if err := step("-p", "icmpv6", "-j", "ACCEPT"); err != nil {
			return err
		}
		if err := step("-d", "ff00::/8", "-j", "REJECT"); err != nil {
			return err
		}
		if err := step("-d", "fe80::/10", "-j", "REJECT"); err != nil {
			return err
		}
	}

	// 8. Any remaining UDP is the DNS-exfiltration gate.
	if err := step("-p", "udp", "-j", "LOG", "--log-prefix", "[FW_BLOCKED_UDP] "); err != nil {
		return err
	}
	if err := step("-p", "udp", "-j", "REJECT"); err != nil {
		return err
	}

	// 9. Everything else.
	if err := step("-j", "LOG", "--log-prefix", "[FW_BLOCKED_OTHER] "); err != nil {
		return err
	}
	if err := step("-j", "REJECT"); err != nil {
		return err
	}

	return nil
}

// Cleanup is best-effort teardown: list DOCKER-USER with line numbers,
// delete every jump referencing FW_WRAPPER/FW_WRAPPER_V6 in reverse line
// order, then flush and delete each chain. Errors are logged, never
// raised — this runs on both the happy path and every signal/error exit
// and must not itself fail.
func (in *Installer) Cleanup() {
	in.cleanupChain("iptables", chainV4)
	in.cleanupChain("ip6tables", chainV6)
}

func (in *Installer) cleanupChain(bin, chain string) {
	out, err := in.r.run(bin, "-L", "DOCKER-USER", "--line-numbers")
	if err != nil {
		slog.Debug("hostfilter cleanup: listing DOCKER-USER failed, skipping jump removal", "table", bin, "error", err)
	} else {
		var lines []int
		for _, line := range strings.Split(out, "\n") {
			if !strings.Contains(line, chain) {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if n, convErr := strconv.Atoi(fields[0]); convErr == nil {
				lines = append(lines, n)
			}
		}
		for i := len(lines) - 1; i >= 0; i-- {
			if _, err := in.r.run(bin, "-D", "DOCKER-USER", strconv.Itoa(lines[i])); err != nil {
				slog.Debug("hostfilter cleanup: removing DOCKER-USER jump failed", "table", bin, "line", lines[i], "error", err)
			}
		}
	}

	if _, err := in.r.run(bin, "-F", chain); err != nil {
		slog.Debug("hostfilter cleanup: flushing chain failed (may not exist)", "table", bin, "chain", chain, "error", err)
	}
	if _, err := in.r.run(bin, "-X", chain); err != nil {
		slog.Debug("hostfilter cleanup: deleting chain failed (may not exist)", "table", bin, "chain", chain, "error", err)
	}
}

// Verify reports whether the cage's jump rule currently exists in
// DOCKER-USER — used by end-to-end checks that the cage survived a given
// code path intact.
func (in *Installer) Verify() error {
	out, err := in.iptables("-L", "DOCKER-USER")
	if err != nil {
		return errs.Wrap(errs.KindPermissionDenied, "listing DOCKER-USER for verification", err)
	}
	if !strings.Contains(out, chainV4) {
		return fmt.Errorf("DOCKER-USER does not reference %s", chainV4)
	}
	return nil
}
