package reflow

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const tempPattern = ".texjoin-*.tmp"

// WriteFileAtomic writes data to a temp file in the destination directory,
// syncs it and renames it over path. Readers see either the old or the new
// content, never a partial write. The temp file is removed on any failure.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, perm)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// Best effort: persist the rename itself.
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// writeInPlace replaces source with data, keeping a verified backup of original.
//
// The backup is written atomically and read back; only when its SHA-256
// matches original is the source overwritten. Any failure before that
// point leaves the source untouched.
func writeInPlace(source string, original, data []byte, perm fs.FileMode) (backup string, err error) {
	backup = BackupPath(source)
	if err := WriteFileAtomic(backup, original, perm); err != nil {
		return backup, fmt.Errorf("%w: %s: %w", ErrBackupFailed, backup, err)
	}
	written, err := os.ReadFile(backup)
	if err != nil {
		return backup, fmt.Errorf("%w: re-reading %s: %w", ErrBackupVerify, backup, err)
	}
	want := sha256.Sum256(original)
	got := sha256.Sum256(written)
	if !bytes.Equal(want[:], got[:]) {
		return backup, fmt.Errorf("%w: %s does not match the source", ErrBackupVerify, backup)
	}
	if err := WriteFileAtomic(source, data, perm); err != nil {
		return backup, fmt.Errorf("%w: %s: %w", ErrWriteFailed, source, err)
	}
	return backup, nil
}

// writeDerived writes data to OutputPath(source).
func writeDerived(source string, data []byte, perm fs.FileMode) (string, error) {
	out := OutputPath(source)
	if err := WriteFileAtomic(out, data, perm); err != nil {
		return out, fmt.Errorf("%w: %s: %w", ErrWriteFailed, out, err)
	}
	return out, nil
}
