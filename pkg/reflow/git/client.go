// Package git defines how the walker learns which files changed in a repository.
package git

import (
	"errors"
	"fmt"
)

// ErrGitOperation wraps every failure reported by a GitClient: not a
// repository, an unknown ref, or a library error.
var ErrGitOperation = errors.New("git operation failed")

// Modes accepted by GetChangedFiles.
const (
	ModeDiffOnly = "diffOnly"
	ModeSince    = "since"
)

// GitClient lists changed files. Implementations live outside this package
// (see internal/cli/git) so the library does not force a Git backend on callers.
type GitClient interface {
	// GetChangedFiles returns the absolute paths of files changed in the
	// repository containing repoPath. In ModeDiffOnly that is the worktree and
	// index status; in ModeSince it is every file touched between ref and HEAD.
	GetChangedFiles(repoPath, mode string, ref string) ([]string, error)
}

// Errorf formats an error that wraps ErrGitOperation.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrGitOperation}, args...)...)
}
