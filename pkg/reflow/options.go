package reflow

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/stackvity/tex-joiner/pkg/reflow/cache"
	"github.com/stackvity/tex-joiner/pkg/reflow/encoding"
	"github.com/stackvity/tex-joiner/pkg/reflow/git"
	"github.com/stackvity/tex-joiner/pkg/reflow/language"
)

// GitConfig holds settings related to Git filtering.
type GitConfig struct {
	DiffOnly bool   `mapstructure:"diffOnly"`
	SinceRef string `mapstructure:"sinceRef"`
}

// Hooks receives progress events during a run.
// Implementations MUST be thread-safe as methods are called from workers.
type Hooks interface {
	OnFileDiscovered(path string) error
	OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// NoOpHooks ignores every event.
type NoOpHooks struct{}

func (h *NoOpHooks) OnFileDiscovered(string) error { return nil }

func (h *NoOpHooks) OnFileStatusUpdate(string, Status, string, time.Duration) error {
	return nil
}

func (h *NoOpHooks) OnRunComplete(Report) error { return nil }

// NoOpCacheManager is used when caching is disabled. Every Check misses.
type NoOpCacheManager struct{}

func (c *NoOpCacheManager) Load(string) error { return nil }

func (c *NoOpCacheManager) Check(string, time.Time, string, string) (bool, string) {
	return false, ""
}

func (c *NoOpCacheManager) Update(string, time.Time, string, string, string) error { return nil }

func (c *NoOpCacheManager) Persist(string) error { return nil }

var _ cache.CacheManager = (*NoOpCacheManager)(nil)

// Options holds all configuration for a Run.
type Options struct {
	// --- Inputs ---
	Paths []string `mapstructure:"-"` // Files or directories; at least one is required

	// --- Application Info ---
	AppVersion     string `mapstructure:"-"` // Used for cache compatibility and config hashing
	ConfigFilePath string `mapstructure:"-"` // Config file that was loaded, for reporting
	ProfileName    string `mapstructure:"-"`

	// --- Behavior & Control ---
	Verbose     bool        `mapstructure:"verbose"`
	TuiEnabled  bool        `mapstructure:"tuiEnabled"`
	OnErrorMode OnErrorMode `mapstructure:"onError"`

	// --- Reflow ---
	InPlace                    bool      `mapstructure:"inplace"`
	Check                      bool      `mapstructure:"check"`
	ToStdout                   bool      `mapstructure:"stdout"`
	WriteMode                  WriteMode `mapstructure:"-"` // Derived from InPlace, Check and ToStdout
	DeleteNewline              bool      `mapstructure:"delete"`
	ExtraBlockCommands         []string  `mapstructure:"extraBlockCommands"`
	ExtraPreservedEnvironments []string  `mapstructure:"extraPreservedEnvironments"`

	// --- Performance & Caching ---
	Concurrency     int    `mapstructure:"concurrency"` // 0 = NumCPU
	CacheEnabled    bool   `mapstructure:"cache"`
	IgnoreCacheRead bool   `mapstructure:"-"` // --no-cache
	ClearCache      bool   `mapstructure:"-"` // --clear-cache
	CacheFilePath   string `mapstructure:"cacheFile"`
	CacheFormat     string `mapstructure:"cacheFormat"`

	// --- Discovery ---
	IgnorePatterns           []string          `mapstructure:"ignore"`
	Languages                []string          `mapstructure:"languages"` // Accepted languages when walking directories
	LanguageMappingsOverride map[string]string `mapstructure:"languageMappings"`
	DefaultEncoding          string            `mapstructure:"defaultEncoding"`

	// --- Output & Reporting ---
	OutputFormat OutputFormat `mapstructure:"outputFormat"`
	MetricsFile  string       `mapstructure:"metricsFile"`

	// --- Git ---
	GitDiffMode     GitDiffMode         `mapstructure:"-"` // Derived from GitConfig
	GitConfig       GitConfig           `mapstructure:"git"`
	GitChangedFiles map[string]struct{} `mapstructure:"-"` // Absolute paths, populated by NewEngine

	// --- Injected Dependencies & Internal State ---
	EventHooks            Hooks                     `mapstructure:"-"`
	Logger                slog.Handler              `mapstructure:"-"` // Required
	GitClient             git.GitClient             `mapstructure:"-"` // Required when GitDiffMode != none
	CacheManager          cache.CacheManager        `mapstructure:"-"`
	LanguageDetector      language.LanguageDetector `mapstructure:"-"`
	EncodingHandler       encoding.EncodingHandler  `mapstructure:"-"`
	Output                io.Writer                 `mapstructure:"-"` // Destination for WriteModeStdout
	ProcessorFactory      ProcessorFactory          `mapstructure:"-"`
	WalkerFactory         WalkerFactory             `mapstructure:"-"`
	DispatchWarnThreshold time.Duration             `mapstructure:"-"`
}

// ReflowConfig returns the transformation settings carried by o.
func (o *Options) ReflowConfig() Config {
	return Config{
		DeleteNewline:              o.DeleteNewline,
		ExtraBlockCommands:         o.ExtraBlockCommands,
		ExtraPreservedEnvironments: o.ExtraPreservedEnvironments,
	}
}

// DeriveWriteMode resolves the write mode flags. At most one may be set.
func DeriveWriteMode(inPlace, check, toStdout bool) (WriteMode, error) {
	set := 0
	mode := WriteModeDerived
	if inPlace {
		set++
		mode = WriteModeInPlace
	}
	if check {
		set++
		mode = WriteModeCheck
	}
	if toStdout {
		set++
		mode = WriteModeStdout
	}
	if set > 1 {
		return "", fmt.Errorf("%w: --inplace, --check and --stdout are mutually exclusive", ErrConfigValidation)
	}
	return mode, nil
}

// writes reports whether mode produces files on disk.
func (m WriteMode) writes() bool {
	return m == WriteModeDerived || m == WriteModeInPlace
}
