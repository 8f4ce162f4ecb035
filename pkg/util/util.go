// Package util holds path helpers shared by the walker and the CLI.
package util

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchesGitignore reports whether a path matches one gitignore-style pattern.
//
// pattern uses doublestar syntax ("**" spans directories). pathToMatchRel is
// relative to walkerBaseAbsPath; the match itself is done relative to
// patternBaseAbsPath, the directory the pattern was defined in. A pattern that
// is rooted or contains a slash is anchored to its base; otherwise it may match
// at any depth. A pattern matching a directory also matches everything below it.
func MatchesGitignore(pattern, patternBaseAbsPath, walkerBaseAbsPath, pathToMatchRel string, isRooted bool) bool {
	pattern = strings.Trim(filepath.ToSlash(pattern), "/")
	pathToMatchRel = filepath.ToSlash(pathToMatchRel)
	if pattern == "" || pathToMatchRel == "" || pathToMatchRel == "." {
		return false
	}

	abs := filepath.Join(walkerBaseAbsPath, filepath.FromSlash(pathToMatchRel))
	rel, err := filepath.Rel(patternBaseAbsPath, abs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}

	if !isRooted && !strings.Contains(pattern, "/") {
		pattern = "**/" + pattern
	}
	return match(pattern, rel) || match(pattern+"/**", rel)
}

// ValidPattern reports whether pattern is well-formed doublestar syntax.
func ValidPattern(pattern string) bool {
	return doublestar.ValidatePattern(strings.TrimPrefix(filepath.ToSlash(pattern), "!"))
}

func match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}
