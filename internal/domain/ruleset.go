package domain

import (
	"sort"
	"strings"

	"github.com/agentfw/awf/internal/errs"
)

// Ruleset is the deduplicated, protocol-partitioned allowlist (spec §3,
// ProxyRuleset), plus the separately-kept blocklist. It is what
// internal/proxyconf consumes to emit the Squid ACL tables.
type Ruleset struct {
	// Plain[proto] holds survivors after suffix- and wildcard-shadowing
	// elimination within proto's partition.
	Plain map[Protocol][]Plain
	// Wildcard[proto] holds every wildcard entry for proto (wildcards are
	// never shadowed by other wildcards — only by nothing; they are
	// always emitted).
	Wildcard map[Protocol][]Wildcard
	// Block holds the parsed blocklist, unreduced — the proxy config
	// synthesizer applies it as a higher-precedence deny regardless of
	// any allow-side dedup.
	Block []Spec
}

// Derive parses every raw allowlist/blocklist entry and builds the
// Ruleset per spec §3: within one protocol partition, a Plain entry is
// dropped if it is a proper subdomain suffix of another Plain with the
// same-or-broader protocol, or if it is covered by a Wildcard with the
// same-or-broader protocol. A Plain naming the same host as another with a
// broader protocol is dropped too, and of exact duplicates only the first
// is kept.
func Derive(rawAllow, rawBlock []string) (Ruleset, error) {
	allow, err := parseAll(rawAllow)
	if err != nil {
		return Ruleset{}, err
	}
	if len(allow) == 0 {
		return Ruleset{}, errs.New(errs.KindConfigInvalid, "allowlist must contain at least one domain")
	}
	block, err := parseAll(rawBlock)
	if err != nil {
		return Ruleset{}, err
	}

	var plains []Plain
	var wildcards []Wildcard
	for _, s := range allow {
		switch v := s.(type) {
		case Plain:
			plains = append(plains, v)
		case Wildcard:
			wildcards = append(wildcards, v)
		}
	}

	rs := Ruleset{
		Plain:    map[Protocol][]Plain{},
		Wildcard: map[Protocol][]Wildcard{},
		Block:    block,
	}

	for i, p := range plains {
		if shadowedByPlain(p, i, plains) || shadowedByWildcard(p, wildcards) {
			continue
		}
		rs.Plain[p.Proto] = append(rs.Plain[p.Proto], p)
	}
	for _, w := range wildcards {
		rs.Wildcard[w.Proto] = append(rs.Wildcard[w.Proto], w)
	}

	for proto := range rs.Plain {
		sort.Slice(rs.Plain[proto], func(i, j int) bool {
			return rs.Plain[proto][i].Host < rs.Plain[proto][j].Host
		})
	}
	for proto := range rs.Wildcard {
		sort.Slice(rs.Wildcard[proto], func(i, j int) bool {
			return rs.Wildcard[proto][i].Pattern < rs.Wildcard[proto][j].Pattern
		})
	}

	return rs, nil
}

func parseAll(raw []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		s, err := Parse(r)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// broaderOrEqual reports whether an entry restricted to q would still
// admit traffic that an entry restricted to p admits — i.e. q is "both",
// or q equals p.
func broaderOrEqual(q, p Protocol) bool {
	return q == ProtoBoth || q == p
}

// isProperSuffix reports whether sub is a strict subdomain of base
// (sub != base, and sub ends in "."+base).
func isProperSuffix(sub, base string) bool {
	return sub != base && strings.HasSuffix(sub, "."+base)
}

func shadowedByPlain(p Plain, idx int, all []Plain) bool {
	for j, q := range all {
		if j == idx {
			continue
		}
		if broaderOrEqual(q.Proto, p.Proto) && isProperSuffix(p.Host, q.Host) {
			return true
		}
		if q.Host == p.Host && broaderOrEqual(q.Proto, p.Proto) && (q.Proto != p.Proto || j < idx) {
			return true
		}
	}
	return false
}

func shadowedByWildcard(p Plain, wildcards []Wildcard) bool {
	for _, w := range wildcards {
		if broaderOrEqual(w.Proto, p.Proto) && Covers(w, p) {
			return true
		}
	}
	return false
}
