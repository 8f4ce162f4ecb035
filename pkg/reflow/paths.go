package reflow

import (
	"path/filepath"
	"strings"
)

const (
	joinedSuffix = ".joined"
	backupSuffix = ".bak"
)

// OutputPath returns the derived output file for source: the full source
// name, then ".joined", then the source extension. "paper.tex" becomes
// "paper.tex.joined.tex" and "notes.ltx" becomes "notes.ltx.joined.ltx", so
// the output keeps the extension editors and the walker key on. A name
// without extension just gains ".joined".
func OutputPath(source string) string {
	return source + joinedSuffix + filepath.Ext(source)
}

// BackupPath returns "<dir>/<stem>.bak<ext>". "paper.tex" becomes "paper.bak.tex".
func BackupPath(source string) string {
	dir, name := filepath.Split(source)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, stem+backupSuffix+ext)
}

// isGenerated reports whether name looks like one of our own outputs, so
// walks do not feed derived files and backups back into the pipeline.
func isGenerated(name string) bool {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return strings.HasSuffix(stem, backupSuffix) ||
		strings.HasSuffix(stem, joinedSuffix) ||
		ext == joinedSuffix
}
