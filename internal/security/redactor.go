// Package security keeps credentials out of run logs and transcripts.
package security

import (
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Placeholder replaces every redacted value.
const Placeholder = "***REDACTED***"

// minSecretLen guards against redacting short configured values such as
// "none" or "x" that would shred ordinary log text.
const minSecretLen = 8

// Common patterns for credentials that can show up in model endpoints,
// error messages and object-store URLs.
var sensitivePatterns = []*regexp.Regexp{
	// key=value and key: value assignments
	regexp.MustCompile(`(?i)((?:api[_-]?key|apikey|api[_-]?token|access[_-]?token|auth[_-]?token|secret[_-]?key|access[_-]?key)[\s]*[:=][\s]*["']?)([a-zA-Z0-9_\-./+=]{16,})`),

	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_\-./+=]{16,})`),

	// OpenAI-style keys
	regexp.MustCompile(`()(sk-(?:proj-)?[a-zA-Z0-9_\-]{20,})`),

	// Google API keys
	regexp.MustCompile(`()(AIza[0-9A-Za-z_\-]{35})`),

	// Credentials embedded in URLs
	regexp.MustCompile(`(?i)((?:https?|s3)://[^:/\s]+:)([^@\s]+)(@)`),

	// Passwords
	regexp.MustCompile(`(?i)((?:password|passwd|pwd)[\s]*[:=][\s]*["']?)([^\s"']{8,})`),

	// Private keys
	regexp.MustCompile(`(?s)()(-----BEGIN[ A-Z]*PRIVATE KEY-----.*?-----END[ A-Z]*PRIVATE KEY-----)`),
}

// Redactor removes credentials from text. It applies the built-in patterns
// plus any literal values registered with AddSecret.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	secrets  []string
}

// NewRedactor creates a Redactor with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: sensitivePatterns}
}

// AddSecret registers a literal value, such as the configured API key, to be
// redacted wherever it appears. Values shorter than eight bytes are ignored.
func (r *Redactor) AddSecret(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) < minSecretLen {
			continue
		}
		r.secrets = append(r.secrets, v)
	}
	// longest first so a secret containing another is replaced whole
	sort.Slice(r.secrets, func(i, j int) bool { return len(r.secrets[i]) > len(r.secrets[j]) })
}

// AddPattern adds a custom pattern. Its second capture group is replaced, or
// the first when it has only one; a pattern without groups is replaced whole.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(append([]*regexp.Regexp(nil), r.patterns...), pattern)
}

// Redact returns input with every credential replaced by Placeholder.
func (r *Redactor) Redact(input string) string {
	if r == nil || input == "" {
		return input
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := input
	for _, s := range r.secrets {
		out = strings.ReplaceAll(out, s, Placeholder)
	}
	for _, p := range r.patterns {
		out = redactPattern(p, out)
	}
	return out
}

// ContainsSensitive reports whether input holds anything Redact would change.
func (r *Redactor) ContainsSensitive(input string) bool {
	return r.Redact(input) != input
}

func redactPattern(p *regexp.Regexp, s string) string {
	groups := p.NumSubexp()
	if groups == 0 {
		return p.ReplaceAllString(s, Placeholder)
	}
	return p.ReplaceAllStringFunc(s, func(match string) string {
		m := p.FindStringSubmatchIndex(match)
		if m == nil {
			return Placeholder
		}
		// the secret is the second group when present, else the first
		secret := 2
		if groups < 2 {
			secret = 1
		}
		start, end := m[2*secret], m[2*secret+1]
		if start < 0 {
			return match
		}
		return match[:start] + Placeholder + match[end:]
	})
}

// Writer redacts each write before passing it on. log.Logger issues one
// Write per line, so a secret never straddles two writes.
type Writer struct {
	w io.Writer
	r *Redactor
}

// NewWriter wraps w with redaction.
func NewWriter(w io.Writer, r *Redactor) *Writer {
	return &Writer{w: w, r: r}
}

// Write implements io.Writer. It reports len(p) on success so callers do not
// see short writes when redaction changes the length.
func (rw *Writer) Write(p []byte) (int, error) {
	if _, err := io.WriteString(rw.w, rw.r.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
