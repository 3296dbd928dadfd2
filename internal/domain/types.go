// Package domain implements the allowlist/blocklist grammar (spec §4.1):
// parsing one entry into a protocol-tagged Plain or Wildcard domain, and
// deriving the de-duplicated ProxyRuleset the Squid config synthesizer
// consumes.
//
// DomainSpec is modeled as a tagged union (spec §9, "Pattern matchers as
// tagged variants"): Plain and Wildcard are the two concrete variants of
// the Spec interface, rather than a single struct with a discriminant
// field.
package domain

import "regexp"

// Protocol is the scheme restriction attached to a domain entry.
type Protocol string

const (
	ProtoHTTP  Protocol = "http"
	ProtoHTTPS Protocol = "https"
	ProtoBoth  Protocol = "both"
)

// Allows reports whether an entry restricted to p permits traffic using
// proto. "both" permits both; "http"/"https" permit only themselves.
func (p Protocol) Allows(proto Protocol) bool {
	if p == ProtoBoth {
		return true
	}
	return p == proto
}

// Kind distinguishes the two Spec variants without a type switch.
type Kind string

const (
	KindPlain    Kind = "plain"
	KindWildcard Kind = "wildcard"
)

// Spec is a single parsed allowlist/blocklist entry.
type Spec interface {
	// Kind reports which variant this is.
	Kind() Kind
	// Protocol reports the scheme restriction.
	Protocol() Protocol
	// Matches reports whether host (a plain, lowercased domain — never a
	// pattern) is covered by this entry.
	Matches(host string) bool
	// Raw returns the lowercased body as parsed (hostname, or pattern
	// text for a Wildcard), with no scheme prefix.
	Raw() string
}

// Plain is a single concrete hostname, e.g. "api.github.com".
type Plain struct {
	Proto Protocol
	Host  string
}

func (p Plain) Kind() Kind         { return KindPlain }
func (p Plain) Protocol() Protocol { return p.Proto }
func (p Plain) Raw() string        { return p.Host }
func (p Plain) Matches(host string) bool {
	return host == p.Host
}

// Wildcard is a pattern containing at least one "*", compiled to an
// anchored, case-insensitive regex over the domain (not the URL).
type Wildcard struct {
	Proto   Protocol
	Pattern string
	re      *regexp.Regexp
}

func (w Wildcard) Kind() Kind         { return KindWildcard }
func (w Wildcard) Protocol() Protocol { return w.Proto }
func (w Wildcard) Raw() string        { return w.Pattern }
func (w Wildcard) Matches(host string) bool {
	if w.re == nil {
		// Compiled lazily is never expected in practice — Parse always
		// compiles before returning — but guard rather than panic.
		re, err := compilePattern(w.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(host)
	}
	return w.re.MatchString(host)
}

// Covers reports whether the wildcard's pattern matches plain's hostname.
// Equivalent to w.Matches(plain.Host) but named to match the C1 contract
// (spec §4.1: covers(pattern, plain) → bool).
func Covers(w Wildcard, p Plain) bool {
	return w.Matches(p.Host)
}
