package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns are never committed from a working copy.
var defaultIgnorePatterns = []string{".chasmignore"}

// IgnoreMatcher decides which working-copy entries are left out of a checkin.
// A pattern without '/' is tested against the entry's base name at any depth;
// one with '/' against the slash-separated path from the working copy root.
// A trailing '/' is dropped.
type IgnoreMatcher struct {
	names []string
	paths []string
}

// NewIgnoreMatcher parses raw patterns, skipping blanks and '#' comments.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		pat := strings.TrimSuffix(strings.TrimSpace(raw), "/")
		switch {
		case pat == "" || strings.HasPrefix(pat, "#"):
		case strings.Contains(pat, "/"):
			m.paths = append(m.paths, pat)
		default:
			m.names = append(m.names, pat)
		}
	}
	return m
}

// LoadIgnoreMatcher builds the matcher for a working copy rooted at dir: the default
// patterns, the configured patterns, and any patterns listed in dir/.chasmignore.
func LoadIgnoreMatcher(dir string, configured []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(dir, ".chasmignore"))
	if err != nil {
		return nil, err
	}

	all := make([]string, 0, len(defaultIgnorePatterns)+len(configured)+len(fromFile))
	all = append(all, defaultIgnorePatterns...)
	all = append(all, configured...)
	all = append(all, fromFile...)
	return NewIgnoreMatcher(all), nil
}

// Match reports whether rel, relative to the working copy root, is ignored.
// Malformed patterns never match.
func (m *IgnoreMatcher) Match(rel string) bool {
	if m == nil || rel == "" {
		return false
	}
	return anyMatch(m.names, filepath.Base(rel)) || anyMatch(m.paths, filepath.ToSlash(rel))
}

func anyMatch(patterns []string, target string) bool {
	for _, pat := range patterns {
		if ok, err := filepath.Match(pat, target); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil when it is absent.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
