package hooks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/tex-joiner/pkg/reflow"
)

// --- TUI Message Structs ---

// FileDiscoveredMsg signals that the walker accepted a document.
type FileDiscoveredMsg struct{ Path string }

// FileStatusUpdateMsg signals a change in a document's processing status.
type FileStatusUpdateMsg struct {
	Path     string
	Status   reflow.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg carries the final report.
type RunCompleteMsg struct{ Report reflow.Report }

// TUIProgram is the part of *tea.Program the hooks need.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// NoOpTUIProgram drops every message.
type NoOpTUIProgram struct{}

func (n *NoOpTUIProgram) Send(tea.Msg) {}

// CLIHooks bridges library events to the TUI or to the logger.
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
}

// NewCLIHooks creates a CLIHooks. Pass nil for tuiProg when the TUI is off.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram) reflow.Hooks {
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	return &CLIHooks{
		logger:         logger,
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
	}
}

func (h *CLIHooks) OnFileDiscovered(path string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileDiscoveredMsg{Path: path})
	} else if h.verboseEnabled {
		h.logger.Debug("File discovered", "path", path)
	}
	return nil
}

// OnFileStatusUpdate is called from several workers at once. The TUI program
// and slog handlers are both safe for that.
func (h *CLIHooks) OnFileStatusUpdate(path string, status reflow.Status, message string, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileStatusUpdateMsg{Path: path, Status: status, Message: message, Duration: duration})
		return nil
	}

	if !h.verboseEnabled {
		if status == reflow.StatusFailed {
			h.logger.Error("File processing failed", "path", path, "error", message)
		}
		return nil
	}

	logLevel := slog.LevelDebug
	logMsg := "File status updated"
	attrs := []any{slog.String("path", path), slog.String("status", string(status))}
	if duration > 0 {
		attrs = append(attrs, slog.Duration("duration", duration))
	}
	if message != "" {
		key := "message"
		if status == reflow.StatusFailed {
			key = "error"
		}
		attrs = append(attrs, slog.String(key, message))
	}
	switch status {
	case reflow.StatusSuccess, reflow.StatusUnchanged, reflow.StatusCached, reflow.StatusSkipped:
		logLevel = slog.LevelInfo
	case reflow.StatusFailed:
		logLevel = slog.LevelError
		logMsg = "File processing failed"
	}
	h.logger.Log(context.Background(), logLevel, logMsg, attrs...)
	return nil
}

func (h *CLIHooks) OnRunComplete(report reflow.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
	}
	return nil
}

// chain fans events out to several Hooks in order.
type chain []reflow.Hooks

// Chain returns Hooks that forwards every event to each non-nil h in order.
// All of them see every event; their errors are joined.
func Chain(hs ...reflow.Hooks) reflow.Hooks {
	var c chain
	for _, h := range hs {
		if h != nil {
			c = append(c, h)
		}
	}
	return c
}

func (c chain) OnFileDiscovered(path string) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnFileDiscovered(path))
	}
	return errors.Join(errs...)
}

func (c chain) OnFileStatusUpdate(path string, status reflow.Status, message string, duration time.Duration) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnFileStatusUpdate(path, status, message, duration))
	}
	return errors.Join(errs...)
}

func (c chain) OnRunComplete(report reflow.Report) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnRunComplete(report))
	}
	return errors.Join(errs...)
}
