package reflow

import "time"

// Defaults used by the CLI config layer and by NewEngine when a field is zero.
const (
	DefaultConcurrency           = 0 // runtime.NumCPU()
	DefaultCacheEnabled          = false
	DefaultTuiEnabled            = true
	DefaultOnErrorMode           = OnErrorContinue
	DefaultOutputFormat          = OutputFormatText
	DefaultGitSinceRef           = "main"
	DefaultEncoding              = "utf-8"
	DefaultDispatchWarnThreshold = time.Second
)

// DefaultLanguages are accepted when walking directories.
var DefaultLanguages = []string{"tex"}

// IgnoreFileName is looked up in every walked directory and its parents.
const IgnoreFileName = ".texjoinignore"

// ReportSchemaVersion is the version of the JSON/YAML report layout.
const ReportSchemaVersion = "1.0"

// Cache status strings used in FileInfo.
const (
	CacheStatusHit      = "hit"
	CacheStatusMiss     = "miss"
	CacheStatusDisabled = "disabled"
)

// Skip reasons used in SkippedInfo.
const (
	SkipReasonBinary     = "binary"
	SkipReasonLanguage   = "language"
	SkipReasonIgnored    = "ignored_pattern"
	SkipReasonGitExclude = "excluded_by_git_diff"
)
