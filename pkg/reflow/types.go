package reflow

// Status defines the possible processing states of a document during a run.
type Status string

// Constants representing the defined document processing statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusUnchanged  Status = "unchanged"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusCached     Status = "cached"
)

// OnErrorMode defines the behavior when a document fails.
type OnErrorMode string

const (
	OnErrorContinue OnErrorMode = "continue"
	OnErrorStop     OnErrorMode = "stop"
)

// OutputFormat defines the format of the final summary report when the TUI is disabled.
type OutputFormat string

const (
	OutputFormatText     OutputFormat = "text"
	OutputFormatJSON     OutputFormat = "json"
	OutputFormatYAML     OutputFormat = "yaml"
	OutputFormatMarkdown OutputFormat = "markdown"
)

// GitDiffMode defines how Git changes filter discovered documents.
type GitDiffMode string

const (
	GitDiffModeNone     GitDiffMode = "none"
	GitDiffModeDiffOnly GitDiffMode = "diffOnly"
	GitDiffModeSince    GitDiffMode = "since"
)

// WriteMode says where reflowed text goes.
type WriteMode string

const (
	// WriteModeDerived writes <path>.joined<ext> next to the source.
	WriteModeDerived WriteMode = "derived"
	// WriteModeInPlace backs up the source to <stem>.bak<ext>, verifies the
	// backup, then overwrites the source.
	WriteModeInPlace WriteMode = "inplace"
	// WriteModeCheck writes nothing and only reports whether the text would change.
	WriteModeCheck WriteMode = "check"
	// WriteModeStdout sends the reflowed text to Options.Output.
	WriteModeStdout WriteMode = "stdout"
)
