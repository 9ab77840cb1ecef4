package controller

import (
	"regexp"
	"strings"
)

// VerdictMatcher classifies a judgment reply. ok is false when the reply
// matches neither verdict; callers then treat it as FAIL.
type VerdictMatcher interface {
	Match(reply string) (verdict Verdict, ok bool)
}

// PhraseMatcher looks for the PASS and FAIL phrases anywhere in the reply,
// ignoring case. A reply holding both phrases, or neither, is unrecognized.
type PhraseMatcher struct {
	Pass string
	Fail string
}

// Match implements VerdictMatcher.
func (m PhraseMatcher) Match(reply string) (Verdict, bool) {
	lower := strings.ToLower(reply)
	pass := m.Pass != "" && strings.Contains(lower, strings.ToLower(m.Pass))
	fail := m.Fail != "" && strings.Contains(lower, strings.ToLower(m.Fail))
	switch {
	case pass && !fail:
		return VerdictPass, true
	case fail && !pass:
		return VerdictFail, true
	default:
		return VerdictFail, false
	}
}

// MatcherFunc adapts a function to VerdictMatcher.
type MatcherFunc func(reply string) (Verdict, bool)

// Match implements VerdictMatcher.
func (f MatcherFunc) Match(reply string) (Verdict, bool) {
	return f(reply)
}

// codeFencePattern matches fenced code blocks with an optional language tag.
var codeFencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\n?(.*?)\\s*```")

// ExtractCode returns the contents of the last fenced code block in reply.
// ok is false when there is none or it holds only whitespace.
func ExtractCode(reply string) (code string, ok bool) {
	matches := codeFencePattern.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return "", false
	}
	code = strings.TrimSpace(matches[len(matches)-1][1])
	return code, code != ""
}
