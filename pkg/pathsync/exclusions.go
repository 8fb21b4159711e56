package pathsync

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

type exclusionMatchType int

const (
	prefixMatch exclusionMatchType = iota
	suffixMatch
	globMatch
)

// exclusionSet holds the categorized exclusion patterns for efficient matching.
// Matching is case-insensitive.
type exclusionSet struct {
	// literals are exact full-path matches.
	literals map[string]struct{}
	// basenameLiterals are exact basename matches (e.g. "node_modules").
	basenameLiterals map[string]struct{}
	// nonLiterals need prefix, suffix or glob matching.
	nonLiterals []exclusion
}

type exclusion struct {
	pattern       string // The normalized pattern, for logging.
	cleanPattern  string // Pattern without the wildcard for prefix/suffix matches, the full pattern otherwise.
	matchType     exclusionMatchType
	matchBasename bool // Match against the basename instead of the full relative path.
}

// makeExclusionSet analyzes and categorizes patterns. Invalid glob patterns
// are logged and dropped.
func makeExclusionSet(patterns []string) exclusionSet {
	set := exclusionSet{
		literals:         make(map[string]struct{}),
		basenameLiterals: make(map[string]struct{}),
		nonLiterals:      make([]exclusion, 0, len(patterns)),
	}

	// Like .gitignore, a pattern without a separator matches at any depth.
	shouldMatchBasename := func(p string) bool { return !strings.Contains(p, "/") }

	for _, p := range patterns {
		p = normalizeExclusionPattern(p)
		if p == "" {
			continue
		}
		if !strings.ContainsAny(p, "*?[]{}") {
			switch {
			case strings.HasSuffix(p, "/"):
				// "build/" excludes the directory and everything below it.
				set.nonLiterals = append(set.nonLiterals, exclusion{
					pattern:      p,
					cleanPattern: strings.TrimSuffix(p, "/"),
					matchType:    prefixMatch,
				})
			case shouldMatchBasename(p):
				set.basenameLiterals[p] = struct{}{}
			default:
				set.literals[p] = struct{}{}
			}
			continue
		}

		if !doublestar.ValidatePattern(p) {
			plog.Warn("Ignoring invalid exclusion pattern", "pattern", p)
			continue
		}

		switch {
		case strings.HasPrefix(p, "*") && !strings.ContainsAny(p[1:], "*?[]{}/"):
			// "*.log"
			set.nonLiterals = append(set.nonLiterals, exclusion{
				pattern:       p,
				cleanPattern:  p[1:],
				matchType:     suffixMatch,
				matchBasename: true,
			})
		case strings.HasSuffix(p, "*") && !strings.ContainsAny(p[:len(p)-1], "*?[]{}/"):
			// "~*"
			set.nonLiterals = append(set.nonLiterals, exclusion{
				pattern:       p,
				cleanPattern:  strings.TrimSuffix(p, "*"),
				matchType:     prefixMatch,
				matchBasename: true,
			})
		default:
			set.nonLiterals = append(set.nonLiterals, exclusion{
				pattern:       p,
				cleanPattern:  p,
				matchType:     globMatch,
				matchBasename: shouldMatchBasename(p),
			})
		}
	}
	return set
}

// matches checks if a given relative path key matches any of the exclusion patterns.
func (es *exclusionSet) matches(relPathKey, relPathBasename string) bool {
	normalizedPath := normalizeExclusionPattern(relPathKey)
	normalizedBasename := normalizeExclusionPattern(relPathBasename)

	if _, ok := es.literals[normalizedPath]; ok {
		return true
	}
	if _, ok := es.basenameLiterals[normalizedBasename]; ok {
		return true
	}

	for _, p := range es.nonLiterals {
		pathToCheck := normalizedPath
		if p.matchBasename {
			pathToCheck = normalizedBasename
		}

		switch p.matchType {
		case prefixMatch:
			if p.matchBasename {
				if strings.HasPrefix(pathToCheck, p.cleanPattern) {
					return true
				}
				continue
			}
			// "build/" must not match "build-tools".
			if pathToCheck == p.cleanPattern || strings.HasPrefix(pathToCheck, p.cleanPattern+"/") {
				return true
			}
		case suffixMatch:
			if strings.HasSuffix(pathToCheck, p.cleanPattern) {
				return true
			}
		case globMatch:
			// Patterns were validated when the set was built.
			if ok, _ := doublestar.Match(p.cleanPattern, pathToCheck); ok {
				return true
			}
		}
	}
	return false
}

// isEmpty reports whether the set has no patterns at all.
func (es *exclusionSet) isEmpty() bool {
	return len(es.literals) == 0 && len(es.basenameLiterals) == 0 && len(es.nonLiterals) == 0
}

// normalizeExclusionPattern converts a path or pattern into a standardized,
// case-insensitive key format (forward slashes, lowercase).
func normalizeExclusionPattern(p string) string {
	return strings.ToLower(filepath.ToSlash(strings.TrimSpace(p)))
}
