package reflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stackvity/tex-joiner/internal/testutil"
	"github.com/stackvity/tex-joiner/pkg/reflow"
	"github.com/stackvity/tex-joiner/pkg/reflow/language"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDirStructure(t *testing.T, rootDir string, structure map[string]string) {
	t.Helper()
	for rel, content := range structure {
		testutil.CreateDummyFile(t, filepath.Join(rootDir, filepath.FromSlash(rel)), content)
	}
}

func newWalkerOptions(t *testing.T, paths ...string) *reflow.Options {
	t.Helper()
	handler, _ := testutil.NewBufferLogger()
	return &reflow.Options{
		Paths:            paths,
		Logger:           handler,
		EventHooks:       &testutil.RecordingHooks{},
		LanguageDetector: language.NewGoEnryDetector(nil),
		GitDiffMode:      reflow.GitDiffModeNone,
	}
}

// runWalker walks opts.Paths and returns the dispatched jobs sorted by display path.
func runWalker(t *testing.T, opts *reflow.Options) ([]reflow.Job, error) {
	t.Helper()
	ch := make(chan reflow.Job, 64)
	w, err := reflow.NewWalker(opts, ch, opts.Logger)
	require.NoError(t, err)
	walkErr := w.StartWalk(context.Background())
	var jobs []reflow.Job
	for j := range ch {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].DisplayPath < jobs[k].DisplayPath })
	return jobs, walkErr
}

func displayPaths(jobs []reflow.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.DisplayPath)
	}
	return out
}

func TestWalker_BasicWalk(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{
		"main.tex":            "x",
		"chapters/intro.tex":  "x",
		"chapters/style.sty":  "x",
		"src/tool.go":         "package main",
		"notes.txt":           "plain",
		"main.tex.joined.tex": "derived",
		"main.bak.tex":        "backup",
		".git/HEAD.tex":       "x",
	})
	opts := newWalkerOptions(t, root)

	jobs, err := runWalker(t, opts)
	require.NoError(t, err)

	want := []string{
		filepath.ToSlash(filepath.Join(root, "chapters/intro.tex")),
		filepath.ToSlash(filepath.Join(root, "chapters/style.sty")),
		filepath.ToSlash(filepath.Join(root, "main.tex")),
	}
	assert.Equal(t, want, displayPaths(jobs))
	for _, j := range jobs {
		assert.True(t, filepath.IsAbs(j.Path))
		assert.False(t, j.Explicit)
	}
	hooks := opts.EventHooks.(*testutil.RecordingHooks)
	assert.Len(t, hooks.Discovered, 3)
}

func TestWalker_ExplicitFilesBypassFilters(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{"notes.txt": "plain", "ignored.tex": "x"})
	file := filepath.Join(root, "notes.txt")
	opts := newWalkerOptions(t, file)
	opts.IgnorePatterns = []string{"*.txt"}

	jobs, err := runWalker(t, opts)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Explicit)
	assert.Equal(t, filepath.ToSlash(file), jobs[0].DisplayPath)
}

func TestWalker_IgnoreFile(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{
		reflow.IgnoreFileName: "# drafts\ndrafts/\n*.old.tex\n!keep.old.tex\n",
		"main.tex":            "x",
		"drafts/a.tex":        "x",
		"b.old.tex":           "x",
		"keep.old.tex":        "x",
	})
	opts := newWalkerOptions(t, root)

	jobs, err := runWalker(t, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.ToSlash(filepath.Join(root, "keep.old.tex")),
		filepath.ToSlash(filepath.Join(root, "main.tex")),
	}, displayPaths(jobs))

	hooks := opts.EventHooks.(*testutil.RecordingHooks)
	assert.Equal(t, reflow.StatusSkipped, hooks.LastStatus(filepath.ToSlash(filepath.Join(root, "drafts"))))
}

func TestWalker_IgnoreFileInParentDirectory(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "book")
	createTestDirStructure(t, parent, map[string]string{
		reflow.IgnoreFileName: "book/appendix/**\n",
		"book/main.tex":       "x",
		"book/appendix/a.tex": "x",
	})
	opts := newWalkerOptions(t, root)

	jobs, err := runWalker(t, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.ToSlash(filepath.Join(root, "main.tex"))}, displayPaths(jobs))
}

func TestWalker_ConfigIgnoresWithDoubleStar(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{
		"main.tex":            "x",
		"build/out/gen.tex":   "x",
		"chapters/gen/x.tex":  "x",
		"chapters/intro.tex":  "x",
		"chapters/draft1.tex": "x",
	})
	opts := newWalkerOptions(t, root)
	opts.IgnorePatterns = []string{"/build/", "**/gen/**", "draft?.tex"}

	jobs, err := runWalker(t, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.ToSlash(filepath.Join(root, "chapters/intro.tex")),
		filepath.ToSlash(filepath.Join(root, "main.tex")),
	}, displayPaths(jobs))
}

func TestWalker_InvalidIgnorePattern(t *testing.T) {
	opts := newWalkerOptions(t, t.TempDir())
	opts.IgnorePatterns = []string{"[broken"}
	_, err := reflow.NewWalker(opts, make(chan reflow.Job), opts.Logger)
	assert.ErrorIs(t, err, reflow.ErrConfigValidation)
}

func TestWalker_GitDiffFilter(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{"a.tex": "x", "b.tex": "x"})
	opts := newWalkerOptions(t, root)
	opts.GitDiffMode = reflow.GitDiffModeDiffOnly
	opts.GitChangedFiles = map[string]struct{}{filepath.Join(root, "b.tex"): {}}

	jobs, err := runWalker(t, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.ToSlash(filepath.Join(root, "b.tex"))}, displayPaths(jobs))

	hooks := opts.EventHooks.(*testutil.RecordingHooks)
	assert.Equal(t, reflow.StatusSkipped, hooks.LastStatus(filepath.ToSlash(filepath.Join(root, "a.tex"))))
}

func TestWalker_AmbiguousExtensionNeedsContentCheck(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{"thesis.cls": "\\NeedsTeXFormat{LaTeX2e}\n"})
	opts := newWalkerOptions(t, root)

	jobs, err := runWalker(t, opts)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].CheckLanguage)
}

func TestWalker_LanguagesOption(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{"a.tex": "x", "refs.bib": "@book{}"})
	opts := newWalkerOptions(t, root)
	opts.Languages = []string{"bibtex"}

	jobs, err := runWalker(t, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.ToSlash(filepath.Join(root, "refs.bib"))}, displayPaths(jobs))
}

func TestWalker_MissingInput(t *testing.T) {
	opts := newWalkerOptions(t, filepath.Join(t.TempDir(), "missing.tex"))
	_, err := runWalker(t, opts)
	assert.ErrorIs(t, err, reflow.ErrInputNotFound)
}

func TestWalker_ContextCancellation(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{"a.tex": "x", "b.tex": "x", "c.tex": "x"})
	opts := newWalkerOptions(t, root)

	ch := make(chan reflow.Job) // unbuffered and never read
	w, err := reflow.NewWalker(opts, ch, opts.Logger)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = w.StartWalk(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	_, open := <-ch
	assert.False(t, open, "walker must close the worker channel")
}

func TestWalker_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	createTestDirStructure(t, root, map[string]string{"real.tex": "x"})
	if err := os.Symlink(filepath.Join(root, "real.tex"), filepath.Join(root, "link.tex")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	jobs, err := runWalker(t, newWalkerOptions(t, root))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.ToSlash(filepath.Join(root, "real.tex"))}, displayPaths(jobs))
}
