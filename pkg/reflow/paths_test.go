package reflow_test

import (
	"path/filepath"
	"testing"

	"github.com/stackvity/tex-joiner/pkg/reflow"
	"github.com/stretchr/testify/assert"
)

func TestOutputPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"paper.tex", "paper.tex.joined.tex"},
		{filepath.Join("ch", "intro.tex"), filepath.Join("ch", "intro.tex.joined.tex")},
		{"README", "README.joined"},
		{"notes.ltx", "notes.ltx.joined.ltx"},
		{"archive.tar.tex", "archive.tar.tex.joined.tex"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, reflow.OutputPath(tc.in), tc.in)
	}
}

func TestBackupPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"paper.tex", "paper.bak.tex"},
		{filepath.Join("ch", "intro.tex"), filepath.Join("ch", "intro.bak.tex")},
		{"Makefile", "Makefile.bak"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, reflow.BackupPath(tc.in), tc.in)
	}
}
