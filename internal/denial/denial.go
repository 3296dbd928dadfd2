// Package denial parses the proxy access log for TCP_DENIED records and
// classifies each into "domain not allowed" or "port not allowed" against
// the configured allowlist (spec §4.6/§4.7, C7).
//
// Grounded on the access-log line contract internal/proxyconf writes
// (logformat awf_accesslog) — this package is the other end of that
// contract, new to this spec (the teacher has no analogous log-denial
// classifier; it runs a single long-lived sandbox with no proxy audit
// step).
package denial

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agentfw/awf/internal/domain"
)

// Record is one deduplicated denial (spec §3, DenialRecord). Port is nil
// when the destination token has no parseable port suffix.
type Record struct {
	Host string
	Port *int
}

var deniedLine = regexp.MustCompile(`(?:GET|POST|CONNECT|PUT|DELETE|HEAD)\s+\d+\s+TCP_DENIED:\S+\s+(\S+)`)

// preReadPause gives the proxy's log writer time to flush before C7 reads
// (spec §4.7, "a brief (≈500 ms) pre-read pause").
var preReadPause = 500 * time.Millisecond

// Classify parses path for TCP_DENIED records and returns a deduplicated,
// ordered list. A missing file (the proxy never started) is not an error.
func Classify(path string) ([]Record, error) {
	time.Sleep(preReadPause)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	seen := map[string]bool{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "TCP_DENIED") {
			continue
		}
		m := deniedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		token := m[1]
		if seen[token] {
			continue
		}
		seen[token] = true
		records = append(records, parseToken(token))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// parseToken splits a host[:port] token on the last colon; a non-numeric
// right half means there was no port and the whole token is the host
// (spec §4.7).
func parseToken(token string) Record {
	idx := strings.LastIndex(token, ":")
	if idx < 0 {
		return Record{Host: token}
	}
	host, portStr := token[:idx], token[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Record{Host: token}
	}
	return Record{Host: host, Port: &port}
}

// Reason is the denial classification spec §4.6 uses to pick a
// remediation message.
type Reason string

const (
	ReasonDomainNotAllowed Reason = "domain_not_allowed"
	ReasonPortNotAllowed   Reason = "port_not_allowed"
)

// Classified pairs a Record with why it was denied and a human-facing
// suggestion.
type Classified struct {
	Record      Record
	Reason      Reason
	Suggestion  string
}

// ClassifyAgainstAllowlist joins denials from Classify against the
// configured allowlist (spec §4.6, "Denial reporting"): a denial is
// "domain not allowed" if its host is neither an allowlisted Plain nor a
// subdomain of one, and no Wildcard covers it; otherwise, if the port
// is set and falls outside {80, 443} ∪ allowHostPorts, it is "port not
// allowed".
func ClassifyAgainstAllowlist(records []Record, ruleset domain.Ruleset, allowHostPorts map[int]bool) []Classified {
	out := make([]Classified, 0, len(records))
	for _, r := range records {
		if !hostIsAllowed(r.Host, ruleset) {
			out = append(out, Classified{
				Record:     r,
				Reason:     ReasonDomainNotAllowed,
				Suggestion: "amend --allow-domains to include " + r.Host,
			})
			continue
		}
		if r.Port != nil && *r.Port != 80 && *r.Port != 443 && !allowHostPorts[*r.Port] {
			out = append(out, Classified{
				Record: r,
				Reason: ReasonPortNotAllowed,
				Suggestion: "port " + strconv.Itoa(*r.Port) +
					" not allowed; only 80 and 443 are permitted by default — add it with --allow-host-ports",
			})
		}
	}
	return out
}

func hostIsAllowed(host string, ruleset domain.Ruleset) bool {
	for _, plains := range ruleset.Plain {
		for _, p := range plains {
			if p.Host == host || isSubdomain(host, p.Host) {
				return true
			}
		}
	}
	for _, wildcards := range ruleset.Wildcard {
		for _, w := range wildcards {
			if w.Matches(host) {
				return true
			}
		}
	}
	return false
}

func isSubdomain(host, base string) bool {
	return host != base && strings.HasSuffix(host, "."+base)
}
