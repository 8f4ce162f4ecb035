// Package git implements reflow's git.GitClient on top of go-git, so texjoin
// needs no git binary on PATH.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	libgit "github.com/stackvity/tex-joiner/pkg/reflow/git"
)

// patchTimeout bounds the diff between the since-ref and HEAD.
const patchTimeout = 60 * time.Second

// GoGitClient implements libgit.GitClient using go-git.
type GoGitClient struct {
	logger *slog.Logger
}

// NewGoGitClient creates a GoGitClient. A nil handler logs to stderr at Info.
func NewGoGitClient(loggerHandler slog.Handler) libgit.GitClient {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "gitClient"), slog.String("backend", "go-git"))
	return &GoGitClient{logger: logger}
}

func (c *GoGitClient) openRepo(repoPath string) (*git.Repository, error) {
	absRepoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, libgit.Errorf("failed to get absolute path for repository '%s': %w", repoPath, err)
	}
	repo, err := git.PlainOpenWithOptions(absRepoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, libgit.Errorf("repository not found at or above path '%s': %w", absRepoPath, err)
		}
		return nil, libgit.Errorf("failed to open repository at '%s': %w", absRepoPath, err)
	}
	return repo, nil
}

func (c *GoGitClient) resolveRevision(repo *git.Repository, refName string) (*plumbing.Hash, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(refName))
	if err != nil {
		c.logger.Error("Failed to resolve revision", slog.String("ref", refName), slog.Any("error", err))
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, libgit.Errorf("invalid git reference '%s': %w", refName, err)
		}
		return nil, libgit.Errorf("could not resolve git reference '%s': %w", refName, err)
	}
	return hash, nil
}

// GetChangedFiles implements libgit.GitClient. Paths are absolute, rooted at
// the worktree of the repository containing repoPath, and sorted.
func (c *GoGitClient) GetChangedFiles(repoPath, mode string, ref string) ([]string, error) {
	logArgs := []any{slog.String("repo", repoPath), slog.String("mode", mode), slog.String("ref", ref)}
	c.logger.Debug("Getting changed files", logArgs...)

	repo, err := c.openRepo(repoPath)
	if err != nil {
		c.logger.Error("Failed to open repository", append(logArgs, slog.Any("error", err))...)
		return nil, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, libgit.Errorf("failed to get worktree for repository '%s': %w", repoPath, err)
	}
	root := worktree.Filesystem.Root()

	var rel []string
	switch mode {
	case libgit.ModeDiffOnly:
		rel, err = c.statusChanges(worktree, logArgs)
	case libgit.ModeSince:
		rel, err = c.sinceChanges(repo, ref, logArgs)
	default:
		return nil, libgit.Errorf("unsupported git diff mode: %s", mode)
	}
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(rel))
	for _, p := range rel {
		files = append(files, filepath.Join(root, filepath.FromSlash(p)))
	}
	sort.Strings(files)
	c.logger.Debug("Found changed files", append(logArgs, slog.Int("count", len(files)))...)
	return files, nil
}

// statusChanges lists staged and unstaged changes. Untracked files are left out.
func (c *GoGitClient) statusChanges(worktree *git.Worktree, logArgs []any) ([]string, error) {
	status, err := worktree.Status()
	if err != nil {
		return nil, libgit.Errorf("failed to get git status: %w", err)
	}
	var out []string
	for filePath, fileStatus := range status {
		untracked := fileStatus.Staging == git.Untracked && fileStatus.Worktree == git.Untracked
		if untracked || (fileStatus.Staging == git.Unmodified && fileStatus.Worktree == git.Unmodified) {
			continue
		}
		out = append(out, filePath)
		c.logger.Debug("DiffOnly: found changed file", append(logArgs,
			slog.String("path", filePath),
			slog.String("status", fmt.Sprintf("Staging: %c, Worktree: %c", fileStatus.Staging, fileStatus.Worktree)))...)
	}
	return out, nil
}

// sinceChanges lists every file added, modified or deleted between ref and HEAD.
func (c *GoGitClient) sinceChanges(repo *git.Repository, ref string, logArgs []any) ([]string, error) {
	if ref == "" {
		return nil, libgit.Errorf("git diff mode 'since' requires a non-empty reference")
	}
	headRef, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			c.logger.Warn("HEAD reference not found, repository might be empty", logArgs...)
			return nil, nil
		}
		return nil, libgit.Errorf("failed to get HEAD reference: %w", err)
	}
	headCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, libgit.Errorf("failed to get HEAD commit object: %w", err)
	}
	sinceHash, err := c.resolveRevision(repo, ref)
	if err != nil {
		return nil, err
	}
	sinceCommit, err := repo.CommitObject(*sinceHash)
	if err != nil {
		return nil, libgit.Errorf("failed to get commit object for '%s': %w", ref, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), patchTimeout)
	defer cancel()
	patch, err := sinceCommit.PatchContext(ctx, headCommit)
	if err != nil {
		return nil, libgit.Errorf("failed to generate patch between '%s' and HEAD: %w", ref, err)
	}

	var out []string
	for _, filePatch := range patch.FilePatches() {
		from, to := filePatch.Files()
		switch {
		case to != nil:
			out = append(out, to.Path())
		case from != nil:
			out = append(out, from.Path())
		}
	}
	return out, nil
}
