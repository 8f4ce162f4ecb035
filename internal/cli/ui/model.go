package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stackvity/tex-joiner/internal/cli/hooks"
	"github.com/stackvity/tex-joiner/pkg/reflow"
)

const (
	listHeightMargin           = 4
	listUpdateDebounceDuration = 50 * time.Millisecond

	phaseInitializing = "Initializing..."
	phaseScanning     = "Scanning..."
	phaseProcessing   = "Processing..."
	phaseComplete     = "Complete"
)

// Model is the bubbletea model for a texjoin run. Bubbletea calls Update
// from a single goroutine, so the model needs no locking.
type Model struct {
	list    list.Model
	spinner spinner.Model

	width, height int
	initialized   bool

	version   string
	writeMode reflow.WriteMode

	fileItems []listItem
	itemMap   map[string]int // path -> index in fileItems

	summary      Summary
	phaseMessage string
	fatalError   string
	quitting     bool
	done         bool

	// listUpdatePending coalesces list refreshes into one per debounce window.
	listUpdatePending bool
}

type listItem struct {
	path     string
	status   reflow.Status
	message  string
	duration time.Duration
}

// Summary is what the footer shows.
type Summary struct {
	Discovered int
	Changed    int
	Unchanged  int
	Cached     int
	Skipped    int
	Failed     int
	Joins      int
	StartTime  time.Time
}

// UpdateListMsg asks the model to push fileItems into the list component.
type UpdateListMsg struct{}

// NewModel creates the initial model. version and writeMode appear in the header.
func NewModel(version string, writeMode reflow.WriteMode) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if version == "" {
		version = "dev"
	}
	return &Model{
		list:         l,
		spinner:      s,
		version:      version,
		writeMode:    writeMode,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		fileItems:    make([]listItem, 0, 256),
		itemMap:      make(map[string]int),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting || m.done {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.FileDiscoveredMsg:
		if _, exists := m.itemMap[msg.Path]; !exists {
			m.addItem(listItem{path: msg.Path, status: reflow.StatusPending})
			cmds = append(cmds, m.scheduleListUpdate())
		}
		if m.phaseMessage == phaseInitializing {
			m.phaseMessage = phaseScanning
		}

	case hooks.FileStatusUpdateMsg:
		idx, ok := m.itemMap[msg.Path]
		if !ok {
			// Skips reported by the walker arrive without a discovery event.
			m.addItem(listItem{path: msg.Path, status: reflow.StatusPending})
			idx = len(m.fileItems) - 1
		}
		item := &m.fileItems[idx]
		if isFinalStatus(msg.Status) && !isFinalStatus(item.status) {
			m.countFinal(msg.Status)
		}
		item.status = msg.Status
		item.message = msg.Message
		if msg.Duration > 0 {
			item.duration = msg.Duration
		}
		cmds = append(cmds, m.scheduleListUpdate())
		if msg.Status == reflow.StatusProcessing && m.phaseMessage != phaseComplete {
			m.phaseMessage = phaseProcessing
		}

	case hooks.RunCompleteMsg:
		m.applyReport(msg.Report)
		m.done = true
		// Flush the list so the last frame shows every final status.
		m.list.SetItems(m.items())
		return m, tea.Quit

	case UpdateListMsg:
		m.listUpdatePending = false
		cmds = append(cmds, m.list.SetItems(m.items()))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	headerLeft := fmt.Sprintf("texjoin %s [%s]", m.version, m.writeMode)
	headerRight := m.phaseMessage
	if m.phaseMessage != phaseComplete && m.phaseMessage != phaseInitializing {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width, headerLeft, headerRight))

	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	summaryText := fmt.Sprintf(
		"Changed: %d | Unchanged: %d | Cached: %d | Skipped: %d | Failed: %d | Joins: %d | Elapsed: %s",
		m.summary.Changed, m.summary.Unchanged, m.summary.Cached,
		m.summary.Skipped, m.summary.Failed, m.summary.Joins, elapsed,
	)
	footer := FooterStyle.Width(m.width).Render(spread(m.width, summaryText, "q: quit"))

	errorView := ""
	if m.fatalError != "" {
		errorView = StatusStyleFailed.Render(m.fatalError) + "\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.list.View(), errorView, footer)
}

// Summary returns the current footer counts.
func (m *Model) Summary() Summary { return m.summary }

func (m *Model) addItem(item listItem) {
	m.fileItems = append(m.fileItems, item)
	m.itemMap[item.path] = len(m.fileItems) - 1
	m.summary.Discovered++
}

func (m *Model) items() []list.Item {
	items := make([]list.Item, len(m.fileItems))
	for i, item := range m.fileItems {
		items[i] = item
	}
	return items
}

func (m *Model) scheduleListUpdate() tea.Cmd {
	if m.listUpdatePending {
		return nil
	}
	m.listUpdatePending = true
	return tea.Tick(listUpdateDebounceDuration, func(time.Time) tea.Msg { return UpdateListMsg{} })
}

func (m *Model) countFinal(status reflow.Status) {
	switch status {
	case reflow.StatusSuccess:
		m.summary.Changed++
	case reflow.StatusUnchanged:
		m.summary.Unchanged++
	case reflow.StatusCached:
		m.summary.Cached++
	case reflow.StatusSkipped:
		m.summary.Skipped++
	case reflow.StatusFailed:
		m.summary.Failed++
	}
}

// applyReport replaces the live counts with the authoritative ones.
func (m *Model) applyReport(report reflow.Report) {
	m.phaseMessage = phaseComplete
	s := report.Summary
	m.summary.Changed = s.ChangedCount
	m.summary.Unchanged = s.UnchangedCount
	m.summary.Cached = s.CachedCount
	m.summary.Skipped = s.SkippedCount
	m.summary.Failed = s.ErrorCount
	m.summary.Joins = s.TotalJoins
	if s.FatalErrorOccurred {
		m.fatalError = "Run halted due to fatal error."
		for _, e := range report.Errors {
			if e.IsFatal {
				m.fatalError = fmt.Sprintf("Fatal Error: %s (%s)", e.Error, e.Path)
				break
			}
		}
	}
}

func isFinalStatus(status reflow.Status) bool {
	switch status {
	case reflow.StatusSuccess, reflow.StatusUnchanged, reflow.StatusFailed, reflow.StatusSkipped, reflow.StatusCached:
		return true
	}
	return false
}

// spread places left and right at the two ends of a line of width w.
func spread(w int, left, right string) string {
	gap := w - lipgloss.Width(left) - lipgloss.Width(right) - 2 // style padding
	if gap < 1 {
		gap = 1
	}
	return left + lipgloss.PlaceHorizontal(gap, lipgloss.Center, " ") + right
}

// --- list.Item ---

func (i listItem) FilterValue() string { return i.path }

func (i listItem) Title() string { return i.path }

func (i listItem) Description() string {
	var style lipgloss.Style
	icon := " "
	details := ""
	switch i.status {
	case reflow.StatusSuccess:
		style, icon = StatusStyleChanged, "✓"
		details = formatDuration(i.duration)
	case reflow.StatusUnchanged:
		style, icon = StatusStyleUnchanged, "="
		details = formatDuration(i.duration)
	case reflow.StatusCached:
		style, icon = StatusStyleCached, "C"
	case reflow.StatusFailed:
		style, icon = StatusStyleFailed, "✗"
		details = i.message
	case reflow.StatusSkipped:
		style, icon = StatusStyleSkipped, "S"
		details = i.message
	case reflow.StatusProcessing:
		style, icon = StatusStyleProcessing, "…"
	default:
		style = StatusStylePending
	}
	return fmt.Sprintf("%s %s", style.Render(fmt.Sprintf("[%s]", icon)), details)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
