// Package secrets redacts sensitive substrings from log output before it
// reaches any writer. Every log line the orchestrator produces passes
// through Redact, not just fields known in advance to be sensitive — a
// secret can leak through an interpolated error message just as easily as
// through a dedicated field.
package secrets

import "regexp"

var (
	// authHeader matches "Authorization: <anything up to newline/quote>".
	authHeader = regexp.MustCompile(`(?i)(authorization:\s*)[^\r\n"']+`)

	// envAssignment matches KEY=VALUE pairs where KEY looks sensitive.
	envAssignment = regexp.MustCompile(`(?i)\b([\w]*(?:TOKEN|SECRET|KEY|PASSWORD|AUTH)[\w]*=)\S+`)

	// githubToken matches GitHub's fine-grained/classic token prefixes.
	githubToken = regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,255}\b`)
)

const mask = "[REDACTED]"

// Redact scans msg for known secret shapes and replaces each match with a
// fixed mask. It never partially masks a match — the whole matched token is
// replaced so the redacted length doesn't leak information either.
func Redact(msg string) string {
	msg = authHeader.ReplaceAllString(msg, "${1}"+mask)
	msg = envAssignment.ReplaceAllString(msg, "${1}"+mask)
	msg = githubToken.ReplaceAllString(msg, mask)
	return msg
}
