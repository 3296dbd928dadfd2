package domain

import (
	"strings"

	"github.com/agentfw/awf/internal/errs"
)

// Parse turns one raw allowlist/blocklist entry into a Spec. It strips a
// leading "http://" or "https://" (setting Protocol), strips a trailing
// "/", lowercases, and classifies as Wildcard iff the remainder contains
// "*". Paths are rejected: any "/" surviving the scheme strip means the
// caller supplied a URL, not a domain.
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errs.New(errs.KindConfigInvalid, "domain entry must not be empty")
	}

	proto := ProtoBoth
	switch {
	case strings.HasPrefix(s, "http://"):
		proto = ProtoHTTP
		s = s[len("http://"):]
	case strings.HasPrefix(s, "https://"):
		proto = ProtoHTTPS
		s = s[len("https://"):]
	}

	s = strings.TrimSuffix(s, "/")
	s = strings.ToLower(s)

	if s == "" {
		return nil, errs.New(errs.KindConfigInvalid, "domain entry must not be empty")
	}
	if strings.Contains(s, "/") {
		return nil, errs.New(errs.KindConfigInvalid, "domain entry must not contain a path: "+raw)
	}

	if !strings.Contains(s, "*") {
		return Plain{Proto: proto, Host: s}, nil
	}

	if s == "*" || s == "*.*" {
		return nil, errs.New(errs.KindConfigInvalid, "wildcard pattern must not be bare \"*\" or \"*.*\": "+raw)
	}
	if !hasNonWildcardLabel(s) {
		return nil, errs.New(errs.KindConfigInvalid, "wildcard pattern must contain at least one non-wildcard label: "+raw)
	}

	re, err := compilePattern(s)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "compiling wildcard pattern "+raw, err)
	}
	return Wildcard{Proto: proto, Pattern: s, re: re}, nil
}

// MustParse parses raw, panicking on error. Used for compile-time-known
// literal patterns in tests and defaults.
func MustParse(raw string) Spec {
	spec, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return spec
}
