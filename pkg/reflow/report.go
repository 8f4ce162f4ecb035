package reflow

import "time"

// Report summarizes a single Run.
type Report struct {
	Summary        ReportSummary `json:"summary" yaml:"summary"`
	ProcessedFiles []FileInfo    `json:"processedFiles" yaml:"processedFiles"`
	SkippedFiles   []SkippedInfo `json:"skippedFiles" yaml:"skippedFiles"`
	Errors         []ErrorInfo   `json:"errors" yaml:"errors"`
}

// ReportSummary contains aggregated statistics for a Run.
type ReportSummary struct {
	Inputs             []string  `json:"inputs" yaml:"inputs"`
	WriteMode          WriteMode `json:"writeMode" yaml:"writeMode"`
	ProfileUsed        string    `json:"profileUsed,omitempty" yaml:"profileUsed,omitempty"`
	ConfigFilePath     string    `json:"configFilePath,omitempty" yaml:"configFilePath,omitempty"`
	TotalFilesScanned  int       `json:"totalFilesScanned" yaml:"totalFilesScanned"`
	ProcessedCount     int       `json:"processedCount" yaml:"processedCount"`
	ChangedCount       int       `json:"changedCount" yaml:"changedCount"`
	UnchangedCount     int       `json:"unchangedCount" yaml:"unchangedCount"`
	CachedCount        int       `json:"cachedCount" yaml:"cachedCount"`
	SkippedCount       int       `json:"skippedCount" yaml:"skippedCount"`
	WarningCount       int       `json:"warningCount" yaml:"warningCount"`
	ErrorCount         int       `json:"errorCount" yaml:"errorCount"`
	TotalJoins         int       `json:"totalJoins" yaml:"totalJoins"`
	FatalErrorOccurred bool      `json:"fatalError" yaml:"fatalError"`
	DurationSeconds    float64   `json:"durationSeconds" yaml:"durationSeconds"`
	CacheEnabled       bool      `json:"cacheEnabled" yaml:"cacheEnabled"`
	Concurrency        int       `json:"concurrency" yaml:"concurrency"`
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
	SchemaVersion      string    `json:"schemaVersion,omitempty" yaml:"schemaVersion,omitempty"`
}

// FileInfo details one document that was reflowed, checked or served from cache.
type FileInfo struct {
	Path        string    `json:"path" yaml:"path"`
	OutputPath  string    `json:"outputPath,omitempty" yaml:"outputPath,omitempty"`
	BackupPath  string    `json:"backupPath,omitempty" yaml:"backupPath,omitempty"`
	Language    string    `json:"language" yaml:"language"`
	Encoding    string    `json:"encoding" yaml:"encoding"`
	BOM         bool      `json:"bom,omitempty" yaml:"bom,omitempty"`
	SizeBytes   int64     `json:"sizeBytes" yaml:"sizeBytes"`
	ModTime     time.Time `json:"modTime" yaml:"modTime"`
	CacheStatus string    `json:"cacheStatus" yaml:"cacheStatus"`
	DurationMs  int64     `json:"durationMs" yaml:"durationMs"`
	Changed     bool      `json:"changed" yaml:"changed"`
	Stats       Stats     `json:"stats" yaml:"stats"`
	Warnings    []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// SkippedInfo details a document that was intentionally not processed.
type SkippedInfo struct {
	Path    string `json:"path" yaml:"path"`
	Reason  string `json:"reason" yaml:"reason"`
	Details string `json:"details" yaml:"details"`
}

// ErrorInfo details a document that failed.
type ErrorInfo struct {
	Path    string `json:"path" yaml:"path"`
	Error   string `json:"error" yaml:"error"`
	IsFatal bool   `json:"isFatal" yaml:"isFatal"`
}

// ChangedFiles returns the paths of processed documents whose text changed.
func (r Report) ChangedFiles() []string {
	var out []string
	for _, f := range r.ProcessedFiles {
		if f.Changed {
			out = append(out, f.Path)
		}
	}
	return out
}
