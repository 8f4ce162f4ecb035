// Package testutil provides testify mocks for the interfaces of pkg/reflow
// and its subpackages, plus small filesystem helpers for tests.
package testutil

import (
	"sync"
	"time"

	"github.com/stackvity/tex-joiner/pkg/reflow"
	"github.com/stackvity/tex-joiner/pkg/reflow/encoding"
	"github.com/stretchr/testify/mock"
)

// MockCacheManager mocks cache.CacheManager.
type MockCacheManager struct {
	mock.Mock
}

func (m *MockCacheManager) Load(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

func (m *MockCacheManager) Check(filePath string, modTime time.Time, contentHash string, configHash string) (isHit bool, outputHash string) {
	args := m.Called(filePath, modTime, contentHash, configHash)
	isHit, _ = args.Get(0).(bool)
	outputHash, _ = args.Get(1).(string)
	return
}

func (m *MockCacheManager) Update(filePath string, modTime time.Time, sourceHash string, configHash string, outputHash string) error {
	args := m.Called(filePath, modTime, sourceHash, configHash, outputHash)
	return args.Error(0)
}

func (m *MockCacheManager) Persist(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

// MockLanguageDetector mocks language.LanguageDetector.
type MockLanguageDetector struct {
	mock.Mock
}

func (m *MockLanguageDetector) DetectByPath(filePath string) (lang string, ok bool) {
	args := m.Called(filePath)
	lang, _ = args.Get(0).(string)
	ok, _ = args.Get(1).(bool)
	return
}

func (m *MockLanguageDetector) Detect(content []byte, filePath string) (lang string, confidence float64, err error) {
	args := m.Called(content, filePath)
	lang, _ = args.Get(0).(string)
	confidence, _ = args.Get(1).(float64)
	err = args.Error(2)
	return
}

func (m *MockLanguageDetector) Candidates(filePath string) []string {
	args := m.Called(filePath)
	langs, _ := args.Get(0).([]string)
	return langs
}

// MockEncodingHandler mocks encoding.EncodingHandler.
type MockEncodingHandler struct {
	mock.Mock
}

func (m *MockEncodingHandler) DetectAndDecode(content []byte) (encoding.Decoded, error) {
	args := m.Called(content)
	decoded, _ := args.Get(0).(encoding.Decoded)
	return decoded, args.Error(1)
}

func (m *MockEncodingHandler) Encode(utf8Content []byte, encodingName string, bom bool) ([]byte, error) {
	args := m.Called(utf8Content, encodingName, bom)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *MockEncodingHandler) IsBinary(content []byte) bool {
	args := m.Called(content)
	isBinary, _ := args.Get(0).(bool)
	return isBinary
}

// MockGitClient mocks git.GitClient.
type MockGitClient struct {
	mock.Mock
}

func (m *MockGitClient) GetChangedFiles(repoPath, mode string, ref string) (files []string, err error) {
	args := m.Called(repoPath, mode, ref)
	files, _ = args.Get(0).([]string)
	err = args.Error(1)
	return
}

// MockHooks mocks reflow.Hooks. Hooks are called from several workers at
// once; testify's Called is itself safe for that.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnFileDiscovered(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockHooks) OnFileStatusUpdate(path string, status reflow.Status, message string, duration time.Duration) error {
	args := m.Called(path, status, message, duration)
	return args.Error(0)
}

func (m *MockHooks) OnRunComplete(report reflow.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// RecordingHooks is a hand-written Hooks that records every status update.
// Use it where expectations on argument order would make a mock brittle.
type RecordingHooks struct {
	mu         sync.Mutex
	Discovered []string
	Statuses   map[string][]reflow.Status
	Report     *reflow.Report
}

func (h *RecordingHooks) OnFileDiscovered(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Discovered = append(h.Discovered, path)
	return nil
}

func (h *RecordingHooks) OnFileStatusUpdate(path string, status reflow.Status, _ string, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Statuses == nil {
		h.Statuses = make(map[string][]reflow.Status)
	}
	h.Statuses[path] = append(h.Statuses[path], status)
	return nil
}

func (h *RecordingHooks) OnRunComplete(report reflow.Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Report = &report
	return nil
}

// LastStatus returns the final status recorded for path.
func (h *RecordingHooks) LastStatus(path string) reflow.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.Statuses[path]
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}
