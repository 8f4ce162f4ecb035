// Package cache remembers which documents were already reflowed so unchanged
// sources can be skipped on the next run.
package cache

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the default name of the cache index file.
const FileName = ".texjoin.cache"

// SchemaVersion is the version of the on-disk layout. Bump it whenever Entry
// or the header changes incompatibly; older files are then discarded on Load.
const SchemaVersion = "1"

const (
	FormatGob  = "gob"
	FormatJSON = "json"
	// DefaultFormat is used when the configured format is empty or unknown.
	DefaultFormat = FormatGob
)

// devVersion marks builds without a release version. Dev entries are
// compatible with any tool version.
const devVersion = "dev"

var (
	// ErrCacheLoad wraps I/O failures that prevent reading the index.
	// Corrupt or outdated content is not an error; it just yields an empty index.
	ErrCacheLoad = errors.New("failed to load cache index")
	// ErrCachePersist wraps any failure writing the index back to disk.
	ErrCachePersist = errors.New("failed to persist cache index")
)

// Entry is the remembered state of one document.
type Entry struct {
	SourceModTime time.Time `json:"sourceModTime"`
	SourceHash    string    `json:"sourceHash"`
	ConfigHash    string    `json:"configHash"`
	OutputHash    string    `json:"outputHash"`
	SchemaVersion string    `json:"schemaVersion"`
	ToolVersion   string    `json:"toolVersion"`
}

// Header precedes the index in the cache file.
type Header struct {
	SchemaVersion string `json:"schemaVersion"`
	ToolVersion   string `json:"toolVersion"`
}

// jsonFile is the single-object layout used by the JSON format.
type jsonFile struct {
	Header Header           `json:"header"`
	Index  map[string]Entry `json:"index"`
}

// CacheManager stores per-document entries keyed by absolute source path.
//
// Check may be called concurrently with Update from many workers.
type CacheManager interface {
	// Load replaces the in-memory index with the file at cachePath.
	// A missing, empty, corrupt or version-mismatched file yields an empty
	// index and a nil error; only I/O failures return ErrCacheLoad.
	Load(cachePath string) error
	// Check reports a hit when an entry exists for filePath and its mod time,
	// content hash and config hash all match. On a hit the stored output hash
	// is returned.
	Check(filePath string, modTime time.Time, contentHash string, configHash string) (isHit bool, outputHash string)
	// Update records the state of filePath after it was processed.
	Update(filePath string, modTime time.Time, sourceHash string, configHash string, outputHash string) error
	// Persist atomically writes the index to cachePath.
	Persist(cachePath string) error
}

type fileCacheManager struct {
	mu          sync.RWMutex
	index       map[string]Entry
	logger      *slog.Logger
	schema      string
	toolVersion string
	format      string
}

// NewFileCacheManager returns a CacheManager backed by a single local file.
// format is FormatGob or FormatJSON; anything else falls back to DefaultFormat.
func NewFileCacheManager(loggerHandler slog.Handler, toolVersion string, format string) CacheManager {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatJSON && format != FormatGob {
		format = DefaultFormat
	}
	if toolVersion == "" {
		toolVersion = devVersion
	}
	return &fileCacheManager{
		index:       make(map[string]Entry),
		logger:      slog.New(loggerHandler).With(slog.String("component", "cache"), slog.String("format", format)),
		schema:      SchemaVersion,
		toolVersion: toolVersion,
		format:      format,
	}
}

// Remove deletes the cache file at cachePath. A missing file is not an error.
func Remove(cachePath string) error {
	if err := os.Remove(cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: removing %s: %w", ErrCachePersist, cachePath, err)
	}
	return nil
}

func (c *fileCacheManager) compatible(schema, tool string) bool {
	if schema != c.schema {
		return false
	}
	return tool == c.toolVersion || tool == devVersion || c.toolVersion == devVersion
}

func (c *fileCacheManager) Load(cachePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]Entry)

	f, err := os.Open(cachePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Info("Cache file not found, starting with an empty index", "path", cachePath)
			return nil
		}
		return fmt.Errorf("%w: opening %s: %w", ErrCacheLoad, cachePath, err)
	}
	defer f.Close()

	header, index, err := c.decode(f)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.logger.Warn("Cache file is empty or truncated, ignoring it", "path", cachePath)
		} else {
			c.logger.Warn("Cache file could not be decoded, ignoring it", "path", cachePath, "error", err.Error())
		}
		return nil
	}
	if !c.compatible(header.SchemaVersion, header.ToolVersion) {
		c.logger.Warn("Cache file version mismatch, ignoring it",
			"path", cachePath,
			"fileSchema", header.SchemaVersion, "fileTool", header.ToolVersion,
			"schema", c.schema, "tool", c.toolVersion)
		return nil
	}
	if index != nil {
		c.index = index
	}
	c.logger.Info("Cache loaded", "path", cachePath, "entries", len(c.index))
	return nil
}

func (c *fileCacheManager) decode(r io.Reader) (Header, map[string]Entry, error) {
	if c.format == FormatJSON {
		var data jsonFile
		if err := json.NewDecoder(r).Decode(&data); err != nil {
			return Header{}, nil, err
		}
		return data.Header, data.Index, nil
	}
	var header Header
	var index map[string]Entry
	dec := gob.NewDecoder(r)
	if err := dec.Decode(&header); err != nil {
		return Header{}, nil, err
	}
	if err := dec.Decode(&index); err != nil {
		if errors.Is(err, io.EOF) {
			return header, nil, nil
		}
		return Header{}, nil, err
	}
	return header, index, nil
}

func (c *fileCacheManager) Check(filePath string, modTime time.Time, contentHash string, configHash string) (bool, string) {
	c.mu.RLock()
	entry, found := c.index[filePath]
	c.mu.RUnlock()

	reason := ""
	switch {
	case !found:
		reason = "no entry"
	case !c.compatible(entry.SchemaVersion, entry.ToolVersion):
		reason = "version mismatch"
	case !entry.SourceModTime.Equal(modTime):
		reason = "modTime changed"
	case entry.SourceHash != contentHash:
		reason = "content changed"
	case entry.ConfigHash != configHash:
		reason = "config changed"
	}
	if reason != "" {
		c.logger.Debug("Cache miss", "path", filePath, "reason", reason)
		return false, ""
	}
	c.logger.Debug("Cache hit", "path", filePath)
	return true, entry.OutputHash
}

func (c *fileCacheManager) Update(filePath string, modTime time.Time, sourceHash string, configHash string, outputHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[filePath] = Entry{
		SourceModTime: modTime,
		SourceHash:    sourceHash,
		ConfigHash:    configHash,
		OutputHash:    outputHash,
		SchemaVersion: c.schema,
		ToolVersion:   c.toolVersion,
	}
	return nil
}

func (c *fileCacheManager) Persist(cachePath string) error {
	c.mu.RLock()
	index := maps.Clone(c.index)
	c.mu.RUnlock()

	if len(index) == 0 {
		c.logger.Debug("Cache index empty, removing any stale file", "path", cachePath)
		if err := os.Remove(cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to remove empty cache file", "path", cachePath, "error", err.Error())
		}
		return nil
	}

	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrCachePersist, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(cachePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %w", ErrCachePersist, dir, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	header := Header{SchemaVersion: c.schema, ToolVersion: c.toolVersion}
	if c.format == FormatJSON {
		enc := json.NewEncoder(tmp)
		enc.SetIndent("", "  ")
		err = enc.Encode(jsonFile{Header: header, Index: index})
	} else {
		enc := gob.NewEncoder(tmp)
		if err = enc.Encode(header); err == nil {
			err = enc.Encode(index)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: encoding %s index: %w", ErrCachePersist, c.format, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrCachePersist, tmpPath, err)
	}
	if err := os.Rename(tmpPath, cachePath); err != nil {
		return fmt.Errorf("%w: renaming %s to %s: %w", ErrCachePersist, tmpPath, cachePath, err)
	}
	committed = true
	c.logger.Info("Cache persisted", "path", cachePath, "entries", len(index))
	return nil
}
