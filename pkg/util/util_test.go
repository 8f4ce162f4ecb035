package util_test

import (
	"path/filepath"
	"testing"

	"github.com/stackvity/tex-joiner/pkg/util"
	"github.com/stretchr/testify/assert"
)

func TestMatchesGitignore(t *testing.T) {
	root := filepath.FromSlash("/home/user/thesis")
	sub := filepath.Join(root, "chapters")

	tests := []struct {
		name     string
		pattern  string
		base     string
		rel      string
		rooted   bool
		expected bool
	}{
		{"exact file", "main.tex", root, "main.tex", false, true},
		{"glob at any depth", "*.bak.tex", root, "chapters/intro.bak.tex", false, true},
		{"glob no match", "*.bak.tex", root, "chapters/intro.tex", false, false},
		{"double star", "build/**/*.tex", root, "build/out/x.tex", false, true},
		{"slash anchors pattern", "figures/raw", root, "chapters/figures/raw", false, false},
		{"slash anchored match", "figures/raw", root, "figures/raw", false, true},
		{"rooted", "draft.tex", root, "chapters/draft.tex", true, false},
		{"rooted match", "draft.tex", root, "draft.tex", true, true},
		{"directory covers contents", "build", root, "build/paper.tex", false, true},
		{"pattern from nested ignore file", "*.tex", sub, "chapters/one.tex", false, true},
		{"outside pattern base", "*.tex", sub, "main.tex", false, false},
		{"empty pattern", "", root, "main.tex", false, false},
		{"root itself", "*", root, ".", false, false},
		{"leading and trailing slashes trimmed", "/out/", root, "out", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := util.MatchesGitignore(tc.pattern, tc.base, root, tc.rel, tc.rooted)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestValidPattern(t *testing.T) {
	assert.True(t, util.ValidPattern("**/*.tex"))
	assert.True(t, util.ValidPattern("!keep.tex"))
	assert.False(t, util.ValidPattern("[unclosed"))
}
