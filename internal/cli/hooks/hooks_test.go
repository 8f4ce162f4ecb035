package hooks

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/tex-joiner/internal/testutil"
	"github.com/stackvity/tex-joiner/pkg/reflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTUIProgram struct {
	mock.Mock
}

func (m *MockTUIProgram) Send(msg tea.Msg) {
	m.Called(msg)
}

func jsonLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestCLIHooks_OnFileDiscovered(t *testing.T) {
	testPath := "thesis/main.tex"

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", FileDiscoveredMsg{Path: testPath}).Once()
		logger, logBuf := jsonLogger()

		require.NoError(t, NewCLIHooks(logger, true, false, mockTUI).OnFileDiscovered(testPath))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, logBuf.String())
	})

	t.Run("Verbose Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logger, logBuf := jsonLogger()

		require.NoError(t, NewCLIHooks(logger, false, true, mockTUI).OnFileDiscovered(testPath))
		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		assert.Contains(t, logBuf.String(), `"level":"DEBUG"`)
		assert.Contains(t, logBuf.String(), `"msg":"File discovered"`)
		assert.Contains(t, logBuf.String(), `"path":"`+testPath+`"`)
	})

	t.Run("Quiet", func(t *testing.T) {
		logger, logBuf := jsonLogger()
		require.NoError(t, NewCLIHooks(logger, false, false, nil).OnFileDiscovered(testPath))
		assert.Empty(t, logBuf.String())
	})
}

func TestCLIHooks_OnFileStatusUpdate(t *testing.T) {
	testPath := "thesis/intro.tex"
	testDuration := 50 * time.Millisecond

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", FileStatusUpdateMsg{Path: testPath, Status: reflow.StatusSuccess, Duration: testDuration}).Once()
		logger, logBuf := jsonLogger()

		require.NoError(t, NewCLIHooks(logger, true, false, mockTUI).OnFileStatusUpdate(testPath, reflow.StatusSuccess, "", testDuration))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, logBuf.String())
	})

	verboseTests := []struct {
		name      string
		status    reflow.Status
		message   string
		wantLevel string
		wantMsg   string
		wantAttr  string
	}{
		{"processing", reflow.StatusProcessing, "", `"level":"DEBUG"`, `"msg":"File status updated"`, `"status":"processing"`},
		{"success", reflow.StatusSuccess, "", `"level":"INFO"`, `"msg":"File status updated"`, `"status":"success"`},
		{"unchanged", reflow.StatusUnchanged, "", `"level":"INFO"`, `"msg":"File status updated"`, `"status":"unchanged"`},
		{"skipped", reflow.StatusSkipped, "binary", `"level":"INFO"`, `"msg":"File status updated"`, `"message":"binary"`},
		{"failed", reflow.StatusFailed, "write failed", `"level":"ERROR"`, `"msg":"File processing failed"`, `"error":"write failed"`},
	}
	for _, tc := range verboseTests {
		t.Run("Verbose "+tc.name, func(t *testing.T) {
			logger, logBuf := jsonLogger()
			require.NoError(t, NewCLIHooks(logger, false, true, nil).OnFileStatusUpdate(testPath, tc.status, tc.message, testDuration))
			out := logBuf.String()
			assert.Contains(t, out, tc.wantLevel)
			assert.Contains(t, out, tc.wantMsg)
			assert.Contains(t, out, tc.wantAttr)
			assert.Contains(t, out, `"duration"`)
		})
	}

	t.Run("Quiet logs only failures", func(t *testing.T) {
		logger, logBuf := jsonLogger()
		h := NewCLIHooks(logger, false, false, nil)
		require.NoError(t, h.OnFileStatusUpdate(testPath, reflow.StatusSuccess, "", testDuration))
		assert.Empty(t, logBuf.String())

		require.NoError(t, h.OnFileStatusUpdate(testPath, reflow.StatusFailed, "boom", testDuration))
		assert.Contains(t, logBuf.String(), `"level":"ERROR"`)
		assert.Contains(t, logBuf.String(), `"error":"boom"`)
	})
}

func TestCLIHooks_OnRunComplete(t *testing.T) {
	report := reflow.Report{Summary: reflow.ReportSummary{ProcessedCount: 3}}

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", RunCompleteMsg{Report: report}).Once()
		logger, _ := jsonLogger()
		require.NoError(t, NewCLIHooks(logger, true, false, mockTUI).OnRunComplete(report))
		mockTUI.AssertExpectations(t)
	})

	t.Run("TUI Disabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logger, logBuf := jsonLogger()
		require.NoError(t, NewCLIHooks(logger, false, true, mockTUI).OnRunComplete(report))
		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		assert.Empty(t, logBuf.String())
	})
}

func TestChain(t *testing.T) {
	first := &testutil.MockHooks{}
	second := &testutil.RecordingHooks{}
	report := reflow.Report{Summary: reflow.ReportSummary{ChangedCount: 1}}

	first.On("OnFileDiscovered", "a.tex").Return(errors.New("first failed"))
	first.On("OnFileStatusUpdate", "a.tex", reflow.StatusSuccess, "", time.Second).Return(nil)
	first.On("OnRunComplete", report).Return(nil)

	h := Chain(first, nil, second)

	err := h.OnFileDiscovered("a.tex")
	assert.EqualError(t, err, "first failed")
	require.NoError(t, h.OnFileStatusUpdate("a.tex", reflow.StatusSuccess, "", time.Second))
	require.NoError(t, h.OnRunComplete(report))

	first.AssertExpectations(t)
	assert.Equal(t, []string{"a.tex"}, second.Discovered, "later hooks still see the event")
	assert.Equal(t, reflow.StatusSuccess, second.LastStatus("a.tex"))
	require.NotNil(t, second.Report)
	assert.Equal(t, 1, second.Report.Summary.ChangedCount)
}
