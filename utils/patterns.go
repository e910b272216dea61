package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"fimon/logger"

	"github.com/cloudflare/ahocorasick"
)

const (
	globPrefix  = "glob:"
	regexPrefix = "re:"
)

// PatternMatcher decides which paths a scan skips. Plain patterns match as a
// substring anywhere in the slash-normalized full path. Patterns prefixed
// with "glob:" match the base name and "re:" patterns are regular
// expressions over the full path.
type PatternMatcher struct {
	substrings []string
	aho        *ahocorasick.Matcher
	globs      []string
	regexes    []*regexp.Regexp
}

func NewPatternMatcher(excludePatterns []string) *PatternMatcher {
	m := &PatternMatcher{}
	for _, raw := range excludePatterns {
		pattern := strings.TrimSpace(raw)
		switch {
		case pattern == "":
			continue
		case strings.HasPrefix(pattern, globPrefix):
			if glob := strings.TrimPrefix(pattern, globPrefix); glob != "" {
				m.globs = append(m.globs, glob)
			}
		case strings.HasPrefix(pattern, regexPrefix):
			re, err := regexp.Compile(strings.TrimPrefix(pattern, regexPrefix))
			if err != nil {
				logger.WithField("pattern", pattern).Warnf("Ignoring invalid exclusion regex: %v", err)
				continue
			}
			m.regexes = append(m.regexes, re)
		default:
			m.substrings = append(m.substrings, filepath.ToSlash(pattern))
		}
	}
	if len(m.substrings) > 0 {
		m.aho = ahocorasick.NewStringMatcher(m.substrings)
	}
	return m
}

// ValidatePatterns rejects "re:" patterns that do not compile.
func ValidatePatterns(patterns []string) error {
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if !strings.HasPrefix(pattern, regexPrefix) {
			continue
		}
		if _, err := regexp.Compile(strings.TrimPrefix(pattern, regexPrefix)); err != nil {
			return fmt.Errorf("invalid exclusion pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Len is the number of usable patterns.
func (m *PatternMatcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.substrings) + len(m.globs) + len(m.regexes)
}

// ExcludeFile reports whether a regular file at path is excluded.
func (m *PatternMatcher) ExcludeFile(path string) bool {
	return m.matches(filepath.ToSlash(path))
}

// ExcludeDir reports whether the directory at path, and everything below
// it, is excluded. The path is tested with a trailing separator so a
// pattern such as "/tmp/" prunes the directory "/tmp" itself.
func (m *PatternMatcher) ExcludeDir(path string) bool {
	p := filepath.ToSlash(path)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return m.matches(p)
}

func (m *PatternMatcher) matches(path string) bool {
	if m == nil {
		return false
	}
	if m.aho != nil && len(m.aho.MatchThreadSafe([]byte(path))) > 0 {
		return true
	}
	if len(m.globs) > 0 {
		base := filepath.Base(strings.TrimSuffix(path, "/"))
		for _, pattern := range m.globs {
			if matched, _ := filepath.Match(pattern, base); matched {
				return true
			}
		}
	}
	for _, re := range m.regexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
