package validation

import "regexp"

// SuspiciousPattern is a named signature checked against request URLs and
// User-Agent headers.
type SuspiciousPattern struct {
	Name string
	re   *regexp.Regexp
}

// DefaultSuspiciousPatterns are path traversal, script injection,
// SQL injection keywords and the javascript: protocol.
var DefaultSuspiciousPatterns = []SuspiciousPattern{
	{Name: "path-traversal", re: regexp.MustCompile(`\.\./`)},
	{Name: "script-injection", re: regexp.MustCompile(`(?i)<script`)},
	{Name: "sql-injection", re: regexp.MustCompile(`(?i)union.*select`)},
	{Name: "javascript-protocol", re: regexp.MustCompile(`(?i)javascript:`)},
}

// Detector flags suspicious requests. It only detects; callers decide
// whether to act.
type Detector struct {
	patterns []SuspiciousPattern
}

// NewDetector creates a Detector with DefaultSuspiciousPatterns.
func NewDetector() *Detector {
	return &Detector{patterns: DefaultSuspiciousPatterns}
}

// Match returns the name of the first pattern found in url or userAgent.
func (d *Detector) Match(url, userAgent string) (string, bool) {
	for _, p := range d.patterns {
		if p.re.MatchString(url) || p.re.MatchString(userAgent) {
			return p.Name, true
		}
	}
	return "", false
}
