package logging

import (
	"os"
	"regexp"
	"strings"
)

// Sanitizer redacts credentials and the user's home directory from log
// output. Run logs end up in bug reports sent to third parties.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
	home     string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	home, _ := os.UserHomeDir()
	return &Sanitizer{
		patterns: defaultPatterns(),
		redacted: "[REDACTED]",
		home:     home,
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// GitHub tokens
		`gh[pousr]_[A-Za-z0-9]{36}`,
		// AWS Access Key
		`AKIA[0-9A-Z]{16}`,
		// Bearer tokens
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// key=value style secrets
		`(?i)(api[_-]?key|secret|token)["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)password["'\s:=]+[^\s"']{8,}`,
		// Credentials embedded in URLs
		`://[^/\s:@]+:[^/\s@]+@`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	if s.home != "" && len(s.home) > 1 {
		result = strings.ReplaceAll(result, s.home, "~")
	}
	return result
}

// SetHome overrides the home directory replaced by "~". Empty disables it.
func (s *Sanitizer) SetHome(home string) {
	s.home = home
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
