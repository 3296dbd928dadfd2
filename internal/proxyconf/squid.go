// Package proxyconf synthesizes a complete Squid configuration from a
// domain.Ruleset, a port allowlist, and feature flags (spec §4.2, C2).
//
// Grounded on the teacher's internal/network/squid_test.go — the only
// surviving trace of its squid.go, which was filtered out of the pack —
// naming the exact contract (acl ...dstdomain, Safe_ports, ssl_bump
// peek/splice, access-rule ordering) this file reconstructs and extends
// with the allow/block/wildcard/port semantics spec.md §4.2 requires.
package proxyconf

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agentfw/awf/internal/domain"
	"github.com/agentfw/awf/internal/errs"
)

// DangerousPorts is rejected even when explicitly requested via
// allowHostPorts — the port allowlist exists to reach local dev services,
// not to lateral-move into databases (spec §4.2).
var DangerousPorts = map[int]string{
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	110:   "pop3",
	143:   "imap",
	445:   "smb",
	1433:  "mssql",
	1521:  "oracle",
	3306:  "mysql",
	3389:  "rdp",
	5432:  "postgresql",
	5984:  "couchdb",
	6379:  "redis",
	6984:  "couchdb-ssl",
	8086:  "influxdb",
	8088:  "influxdb-alt",
	9200:  "elasticsearch",
	9300:  "elasticsearch-transport",
	27017: "mongodb",
	27018: "mongodb-shard",
	28017: "mongodb-http",
}

// PortRange is one accepted --allow-host-ports entry: a single port
// (Start == End) or an inclusive range.
type PortRange struct {
	Start, End int
}

// ParsePortRange parses "80" or "3000-3010".
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	if dash := strings.Index(s, "-"); dash >= 0 {
		lo, err1 := strconv.Atoi(strings.TrimSpace(s[:dash]))
		hi, err2 := strconv.Atoi(strings.TrimSpace(s[dash+1:]))
		if err1 != nil || err2 != nil || lo < 1 || hi > 65535 || lo > hi {
			return PortRange{}, errs.New(errs.KindConfigInvalid, "invalid port range: "+s)
		}
		return PortRange{Start: lo, End: hi}, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return PortRange{}, errs.New(errs.KindConfigInvalid, "invalid port: "+s)
	}
	return PortRange{Start: p, End: p}, nil
}

// ValidateHostPorts rejects any range overlapping a dangerous port —
// rejected whole, not clipped, per spec §4.2.
func ValidateHostPorts(ranges []PortRange) error {
	for _, r := range ranges {
		for port, svc := range DangerousPorts {
			if port >= r.Start && port <= r.End {
				return errs.New(errs.KindConfigInvalid,
					fmt.Sprintf("--allow-host-ports %d-%d includes dangerous port %d (%s)", r.Start, r.End, port, svc))
			}
		}
	}
	return nil
}

// Config is the input to GenerateConfig.
type Config struct {
	ListenAddr string // default "0.0.0.0" — squid binds this inside its own container
	ListenPort int    // default 3128

	Ruleset domain.Ruleset

	DNSServers []string // upstream resolvers (spec §3 Config.dnsServers)

	AllowHostPorts []PortRange // additional safe ports beyond 80/443

	LogPath string // access log path inside the proxy container

	// SSLBump, with CACertPath and CAKeyPath set, adds an ssl-bump
	// https_port on ListenPort+1. The bump policy it emits is a step-1
	// peek followed by splice: no stare or bump step is written, so TLS is
	// still never terminated. URLPatterns are written as urlpath_regex ACLs
	// only when SSLBump is set, and no http_access rule references them, so
	// they do not restrict any request. When SSLBump is false (the
	// default), Squid peeks the SNI and splices.
	SSLBump     bool
	CACertPath  string
	CAKeyPath   string
	URLPatterns []string
}

// DefaultConfig returns a Config with sensible defaults. Zero-value fields
// passed to NewManager are filled from this.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "0.0.0.0",
		ListenPort: 3128,
		DNSServers: []string{"8.8.8.8", "8.8.4.4"},
		LogPath:    "/var/log/squid/access.log",
	}
}

// Manager holds a validated Config and emits the rendered squid.conf text.
type Manager struct {
	cfg Config
}

// NewManager fills zero-value fields of cfg from DefaultConfig and
// returns a Manager.
func NewManager(cfg Config) *Manager {
	d := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = d.ListenAddr
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = d.ListenPort
	}
	if len(cfg.DNSServers) == 0 {
		cfg.DNSServers = d.DNSServers
	}
	if cfg.LogPath == "" {
		cfg.LogPath = d.LogPath
	}
	return &Manager{cfg: cfg}
}

// aclDomainEntries renders the dstdomain ACL body for a set of Plain
// hosts: a leading dot makes Squid match the host and every subdomain.
func aclDomainEntries(plains []domain.Plain) []string {
	out := make([]string, 0, len(plains))
	for _, p := range plains {
		out = append(out, "."+p.Host)
	}
	sort.Strings(out)
	return out
}

// wildcardToRegex mirrors internal/domain's pattern compilation (per-label
// "*" → "[^.]*", a lone leading "*" label → "(?:[^.]+\.)+") but renders it
// for Squid's dstdom_regex, which takes its own -i flag rather than an
// inline (?i) prefix.
func wildcardToRegex(pattern string) string {
	labels := strings.Split(pattern, ".")
	if labels[0] == "*" {
		rest := make([]string, 0, len(labels)-1)
		for _, l := range labels[1:] {
			rest = append(rest, regexLabel(l))
		}
		return `^(?:[^.]+\.)+` + strings.Join(rest, `\.`) + `$`
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, regexLabel(l))
	}
	return "^" + strings.Join(out, `\.`) + "$"
}

func regexLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		if r == '*' {
			b.WriteString("[^.]*")
		} else {
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// aclRegexEntries renders a dstdom_regex ACL body for a set of wildcard
// patterns.
func aclRegexEntries(wildcards []domain.Wildcard) []string {
	out := make([]string, 0, len(wildcards))
	for _, w := range wildcards {
		out = append(out, wildcardToRegex(w.Pattern))
	}
	sort.Strings(out)
	return out
}

// GenerateConfig renders the complete squid.conf text.
func (m *Manager) GenerateConfig() string {
	c := m.cfg
	var b strings.Builder

	fmt.Fprintf(&b, "# awf squid.conf — generated, do not edit by hand\n\n")
	fmt.Fprintf(&b, "http_port %s:%d\n", c.ListenAddr, c.ListenPort)
	if c.SSLBump && c.CACertPath != "" && c.CAKeyPath != "" {
		fmt.Fprintf(&b, "https_port %s:%d ssl-bump cert=%s key=%s\n", c.ListenAddr, c.ListenPort+1, c.CACertPath, c.CAKeyPath)
	}
	b.WriteString("\n# --- safe / SSL ports -------------------------------------------------\n")
	safePorts := []int{80, 443}
	sslPorts := []int{443}
	for _, r := range c.AllowHostPorts {
		for p := r.Start; p <= r.End; p++ {
			safePorts = append(safePorts, p)
			sslPorts = append(sslPorts, p)
		}
	}
	fmt.Fprintf(&b, "acl Safe_ports port %s\n", joinInts(safePorts))
	fmt.Fprintf(&b, "acl SSL_ports port %s\n", joinInts(sslPorts))
	fmt.Fprintf(&b, "acl CONNECT method CONNECT\n")

	b.WriteString("\n# --- direct-IP destination rejection (SNI/Host bypass guard) ----------\n")
	b.WriteString(`acl awf_ip_literal dstdom_regex -i ^[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}$` + "\n")
	b.WriteString(`acl awf_colon_host dstdom_regex -i :` + "\n")

	b.WriteString("\n# --- blocklist (takes precedence over any allow rule) ------------------\n")
	var blockPlains []domain.Plain
	var blockWild []domain.Wildcard
	for _, s := range c.Ruleset.Block {
		switch v := s.(type) {
		case domain.Plain:
			blockPlains = append(blockPlains, v)
		case domain.Wildcard:
			blockWild = append(blockWild, v)
		}
	}
	fmt.Fprintf(&b, "acl awf_blocked dstdomain %s\n", aclListOrNone(aclDomainEntries(blockPlains)))
	for i, pat := range aclRegexEntries(blockWild) {
		fmt.Fprintf(&b, "acl awf_blocked_wild_%d dstdom_regex -i %s\n", i, pat)
	}

	b.WriteString("\n# --- allowlist, partitioned by protocol --------------------------------\n")
	httpsPlains := union(c.Ruleset.Plain[domain.ProtoHTTPS], c.Ruleset.Plain[domain.ProtoBoth])
	httpPlains := union(c.Ruleset.Plain[domain.ProtoHTTP], c.Ruleset.Plain[domain.ProtoBoth])
	httpsWild := unionWild(c.Ruleset.Wildcard[domain.ProtoHTTPS], c.Ruleset.Wildcard[domain.ProtoBoth])
	httpWild := unionWild(c.Ruleset.Wildcard[domain.ProtoHTTP], c.Ruleset.Wildcard[domain.ProtoBoth])

	fmt.Fprintf(&b, "acl aibox_allowed dstdomain %s\n", aclListOrNone(aclDomainEntries(httpsPlains)))
	fmt.Fprintf(&b, "acl awf_allowed_http dstdomain %s\n", aclListOrNone(aclDomainEntries(httpPlains)))
	for i, pat := range aclRegexEntries(httpsWild) {
		fmt.Fprintf(&b, "acl awf_allowed_wild_%d dstdom_regex -i %s\n", i, pat)
	}
	for i, pat := range aclRegexEntries(httpWild) {
		fmt.Fprintf(&b, "acl awf_allowed_http_wild_%d dstdom_regex -i %s\n", i, pat)
	}

	if c.SSLBump {
		b.WriteString("\n# --- SSL bump (peek SNI, never terminate) -------------------------------\n")
		b.WriteString("acl step1 at_step SslBump1\n")
		b.WriteString("ssl_bump peek step1\n")
		b.WriteString("ssl_bump splice all\n")
		if len(c.URLPatterns) > 0 {
			b.WriteString("\n# --- post-bump URL pattern enforcement (non-CONNECT only) --------------\n")
			for i, pat := range c.URLPatterns {
				fmt.Fprintf(&b, "acl awf_url_pattern_%d urlpath_regex -i %s\n", i, pat)
			}
		}
	} else {
		b.WriteString("\nssl_bump peek all\n")
		b.WriteString("ssl_bump splice all\n")
	}

	b.WriteString("\n# --- access rules: deny precedes any allow rule it must override -------\n")
	b.WriteString("http_access deny CONNECT !SSL_ports\n")
	b.WriteString("http_access deny !Safe_ports\n")
	b.WriteString("http_access deny awf_ip_literal\n")
	b.WriteString("http_access deny awf_colon_host\n")
	b.WriteString("http_access deny awf_blocked\n")
	for i := range aclRegexEntries(blockWild) {
		fmt.Fprintf(&b, "http_access deny awf_blocked_wild_%d\n", i)
	}

	b.WriteString("\nhttp_access allow CONNECT aibox_allowed\n")
	for i := range aclRegexEntries(httpsWild) {
		fmt.Fprintf(&b, "http_access allow CONNECT awf_allowed_wild_%d\n", i)
	}
	b.WriteString("http_access deny CONNECT all\n")

	b.WriteString("\nhttp_access allow awf_allowed_http\n")
	for i := range aclRegexEntries(httpWild) {
		fmt.Fprintf(&b, "http_access allow awf_allowed_http_wild_%d\n", i)
	}
	b.WriteString("http_access allow aibox_allowed\n")
	for i := range aclRegexEntries(httpsWild) {
		fmt.Fprintf(&b, "http_access allow awf_allowed_wild_%d\n", i)
	}

	b.WriteString("http_access deny all\n")

	b.WriteString("\n# --- caching disabled; this is a pass-through firewall, not a cache ----\n")
	b.WriteString("cache deny all\n")

	b.WriteString("\n# --- timeouts tuned for long-running model inference --------------------\n")
	b.WriteString("read_timeout 30 minutes\n")
	b.WriteString("request_timeout 30 minutes\n")
	b.WriteString("client_lifetime 8 hours\n")
	b.WriteString("half_closed_clients on\n")

	b.WriteString("\n# --- upstream DNS -------------------------------------------------------\n")
	fmt.Fprintf(&b, "dns_nameservers %s\n", strings.Join(c.DNSServers, " "))

	b.WriteString("\n# --- access log (contract with the denial classifier) -------------------\n")
	b.WriteString(`logformat awf_accesslog %ts.%03tu %>a:%>p %{Host}>h %<a:%<p %rv %rm %>Hs %Ss:%Sh %ru "%{User-Agent}>h"` + "\n")
	fmt.Fprintf(&b, "access_log stdio:%s awf_accesslog\n", c.LogPath)

	return b.String()
}

func union(plains ...[]domain.Plain) []domain.Plain {
	var out []domain.Plain
	for _, p := range plains {
		out = append(out, p...)
	}
	return out
}

func unionWild(wild ...[]domain.Wildcard) []domain.Wildcard {
	var out []domain.Wildcard
	for _, w := range wild {
		out = append(out, w...)
	}
	return out
}

func aclListOrNone(entries []string) string {
	if len(entries) == 0 {
		return "none.invalid"
	}
	return strings.Join(entries, " ")
}

func joinInts(ints []int) string {
	seen := map[int]bool{}
	var uniq []int
	for _, i := range ints {
		if seen[i] {
			continue
		}
		seen[i] = true
		uniq = append(uniq, i)
	}
	sort.Ints(uniq)
	out := make([]string, len(uniq))
	for i, v := range uniq {
		out[i] = strconv.Itoa(v)
	}
	return strings.Join(out, " ")
}
