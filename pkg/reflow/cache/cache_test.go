package cache_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stackvity/tex-joiner/pkg/reflow/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, version, format string) (cache.CacheManager, *bytes.Buffer) {
	t.Helper()
	logBuf := &bytes.Buffer{}
	handler := slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return cache.NewFileCacheManager(handler, version, format), logBuf
}

func TestFileCacheManager_RoundTrip(t *testing.T) {
	for _, format := range []string{cache.FormatGob, cache.FormatJSON} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), cache.FileName)
			mod := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			writer, _ := newManager(t, "v1.2.0", format)
			require.NoError(t, writer.Update("/docs/a.tex", mod, "src", "cfg", "out"))
			require.NoError(t, writer.Persist(path))

			reader, _ := newManager(t, "v1.2.0", format)
			require.NoError(t, reader.Load(path))
			hit, out := reader.Check("/docs/a.tex", mod, "src", "cfg")
			assert.True(t, hit)
			assert.Equal(t, "out", out)
		})
	}
}

func TestFileCacheManager_JSONLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	m, _ := newManager(t, "v1.0.0", "JSON")
	require.NoError(t, m.Update("/x.tex", time.Unix(0, 0).UTC(), "s", "c", "o"))
	require.NoError(t, m.Persist(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded struct {
		Header cache.Header           `json:"header"`
		Index  map[string]cache.Entry `json:"index"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, cache.SchemaVersion, decoded.Header.SchemaVersion)
	assert.Equal(t, "v1.0.0", decoded.Header.ToolVersion)
	assert.Equal(t, "o", decoded.Index["/x.tex"].OutputHash)
}

func TestFileCacheManager_CheckMisses(t *testing.T) {
	m, _ := newManager(t, "v1", cache.FormatGob)
	mod := time.Now()
	require.NoError(t, m.Update("/a.tex", mod, "src", "cfg", "out"))

	tests := []struct {
		name            string
		path            string
		mod             time.Time
		content, config string
	}{
		{"unknown path", "/b.tex", mod, "src", "cfg"},
		{"mod time", "/a.tex", mod.Add(time.Second), "src", "cfg"},
		{"content", "/a.tex", mod, "other", "cfg"},
		{"config", "/a.tex", mod, "src", "other"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hit, out := m.Check(tc.path, tc.mod, tc.content, tc.config)
			assert.False(t, hit)
			assert.Empty(t, out)
		})
	}
}

func TestFileCacheManager_LoadMissingFile(t *testing.T) {
	m, logBuf := newManager(t, "v1", "")
	require.NoError(t, m.Load(filepath.Join(t.TempDir(), "absent")))
	assert.Contains(t, logBuf.String(), "Cache file not found")
}

func TestFileCacheManager_LoadCorruptOrEmpty(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{"empty": "", "garbage": "not a cache file at all"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			m, _ := newManager(t, "v1", cache.FormatGob)
			require.NoError(t, m.Load(path))
			hit, _ := m.Check("/a.tex", time.Time{}, "", "")
			assert.False(t, hit)
		})
	}
}

func TestFileCacheManager_VersionCompatibility(t *testing.T) {
	mod := time.Unix(1700000000, 0).UTC()
	tests := []struct {
		writer, reader string
		wantHit        bool
	}{
		{"v1.0.0", "v1.0.0", true},
		{"v1.0.0", "v2.0.0", false},
		{"dev", "v2.0.0", true},
		{"v1.0.0", "dev", true},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s->%s", tc.writer, tc.reader), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), cache.FileName)
			w, _ := newManager(t, tc.writer, cache.FormatJSON)
			require.NoError(t, w.Update("/a.tex", mod, "s", "c", "o"))
			require.NoError(t, w.Persist(path))

			r, _ := newManager(t, tc.reader, cache.FormatJSON)
			require.NoError(t, r.Load(path))
			hit, _ := r.Check("/a.tex", mod, "s", "c")
			assert.Equal(t, tc.wantHit, hit)
		})
	}
}

func TestFileCacheManager_FormatMismatchIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), cache.FileName)
	w, _ := newManager(t, "v1", cache.FormatJSON)
	require.NoError(t, w.Update("/a.tex", time.Unix(1, 0), "s", "c", "o"))
	require.NoError(t, w.Persist(path))

	r, _ := newManager(t, "v1", cache.FormatGob)
	require.NoError(t, r.Load(path))
	hit, _ := r.Check("/a.tex", time.Unix(1, 0), "s", "c")
	assert.False(t, hit)
}

func TestFileCacheManager_PersistEmptyRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), cache.FileName)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	m, _ := newManager(t, "v1", "")
	require.NoError(t, m.Persist(path))
	assert.NoFileExists(t, path)
}

func TestFileCacheManager_PersistLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	m, _ := newManager(t, "v1", "")
	require.NoError(t, m.Update("/a.tex", time.Now(), "s", "c", "o"))
	require.NoError(t, m.Persist(filepath.Join(dir, "nested", cache.FileName)))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, cache.FileName, entries[0].Name())
}

func TestFileCacheManager_ConcurrentUpdateAndCheck(t *testing.T) {
	m, _ := newManager(t, "v1", "")
	mod := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("/doc-%d.tex", i)
			assert.NoError(t, m.Update(p, mod, "s", "c", "o"))
			hit, _ := m.Check(p, mod, "s", "c")
			assert.True(t, hit)
		}(i)
	}
	wg.Wait()
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), cache.FileName)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, cache.Remove(path))
	assert.NoFileExists(t, path)
	assert.NoError(t, cache.Remove(path), "removing a missing file is fine")
}
