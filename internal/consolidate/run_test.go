package consolidate_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotas/mergewin/internal/applog"
	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/consolidate/consolidatetest"
)

type captureReporter struct {
	statuses []consolidate.Status
	err      error
}

func (c *captureReporter) Notify(ctx context.Context, st consolidate.Status) error {
	c.statuses = append(c.statuses, st)
	return c.err
}

func (c *captureReporter) last(t *testing.T) consolidate.Status {
	t.Helper()
	require.NotEmpty(t, c.statuses)
	return c.statuses[len(c.statuses)-1]
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	t.Cleanup(func() { applog.SetOutput(nil) })
	return &buf
}

func TestRunScenario(t *testing.T) {
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com/x", "https://youtube.com/"),
		consolidatetest.Win(2, false, 20, "https://a.com/x?ref=1", "https://b.com"),
	)
	rep := &captureReporter{}

	report, err := consolidate.Run(context.Background(), host, rep, classic(t))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, 2, report.Closed)
	assert.Equal(t, 1, report.WindowsRemoved)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []int{1}, host.WindowIDs())
	assert.Equal(t, []string{"https://a.com/x", "https://b.com"}, host.URLs(1))

	st := rep.last(t)
	assert.Equal(t, "Merged 1 tab(s), closed 2 tab(s).", st.Message)
	assert.Equal(t, consolidate.NotifyTitle, st.Title)
	assert.False(t, st.IsError)

	moves := host.CallsTo("MoveTabs")
	require.Len(t, moves, 1)
	assert.Equal(t, 1, moves[0].WindowID)
	assert.Equal(t, consolidate.AppendIndex, moves[0].Index)
	assert.Len(t, host.CallsTo("RemoveTabs"), 1)
}

func TestRunSingleWindowClassicDoesNotMutate(t *testing.T) {
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://youtube.com/", "https://a.com", "https://a.com"),
	)
	rep := &captureReporter{}

	report, err := consolidate.Run(context.Background(), host, rep, classic(t))
	require.NoError(t, err)

	assert.Zero(t, report.Closed)
	assert.Len(t, host.Calls, 1, "only the enumeration should reach the host")
	assert.Equal(t, "Only one window open. Nothing to merge.", rep.last(t).Message)
}

func TestRunSingleWindowExtendedCleansUp(t *testing.T) {
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://youtube.com/", "https://a.com", "https://a.com#dup", "http://localhost:3000/"),
	)
	rep := &captureReporter{}

	report, err := consolidate.Run(context.Background(), host, rep, extended(t))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Closed)
	assert.Zero(t, report.Moved)
	assert.Empty(t, host.CallsTo("MoveTabs"))
	assert.Equal(t, []string{"https://a.com"}, host.URLs(1))
	assert.Equal(t, "Only one window open. Closed 3 tab(s).", rep.last(t).Message)
}

func TestRunNonHTTPTabsKeepWindowAlive(t *testing.T) {
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com"),
		consolidatetest.Win(2, false, 20, "about:blank", "https://b.com"),
	)

	_, err := consolidate.Run(context.Background(), host, nil, classic(t))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, host.WindowIDs())
	assert.Equal(t, []string{"about:blank"}, host.URLs(2))
	assert.Empty(t, host.CallsTo("RemoveWindow"))
}

func TestRunCloseFailureIsTolerated(t *testing.T) {
	logs := captureLog(t)
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com"),
		consolidatetest.Win(2, false, 20, "https://a.com", "https://b.com"),
	)
	host.RemoveTabsErr = errors.New("no tab with id: 20")
	rep := &captureReporter{}

	report, err := consolidate.Run(context.Background(), host, rep, classic(t))
	require.NoError(t, err)

	assert.Zero(t, report.Closed)
	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, "Merged 1 tab(s), closed 0 tab(s).", rep.last(t).Message)
	assert.Contains(t, logs.String(), "WARN merge.close")
}

func TestRunMoveFailureIsTolerated(t *testing.T) {
	logs := captureLog(t)
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com"),
		consolidatetest.Win(2, false, 20, "https://a.com", "https://b.com"),
	)
	host.MoveTabsErr = errors.New("tabs cannot be moved")
	rep := &captureReporter{}

	report, err := consolidate.Run(context.Background(), host, rep, classic(t))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Closed)
	assert.Zero(t, report.Moved)
	assert.Zero(t, report.WindowsRemoved)
	assert.Equal(t, []string{"https://b.com"}, host.URLs(2))
	assert.Contains(t, logs.String(), "WARN merge.move")
}

func TestRunSweepSwallowsMissingWindow(t *testing.T) {
	logs := captureLog(t)
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com"),
		consolidatetest.Win(2, false, 20, "https://b.com"),
	)
	host.RemoveWindowErr = fmt.Errorf("window 2: %w", consolidate.ErrWindowNotFound)

	report, err := consolidate.Run(context.Background(), host, nil, classic(t))
	require.NoError(t, err)

	assert.Zero(t, report.WindowsRemoved)
	assert.NotContains(t, logs.String(), "merge.sweep")
}

func TestRunSweepLogsOtherErrors(t *testing.T) {
	logs := captureLog(t)
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com"),
		consolidatetest.Win(2, false, 20, "https://b.com"),
	)
	host.RemoveWindowErr = errors.New("permission denied")

	_, err := consolidate.Run(context.Background(), host, nil, classic(t))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "WARN merge.sweep")
}

func TestRunAutoClosedWindowNotRemovedTwice(t *testing.T) {
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com"),
		consolidatetest.Win(2, false, 20, "https://a.com"),
	)
	host.AutoCloseEmpty = true

	report, err := consolidate.Run(context.Background(), host, nil, classic(t))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Closed)
	assert.Zero(t, report.WindowsRemoved)
	assert.Empty(t, host.CallsTo("RemoveWindow"))
	assert.Equal(t, []int{1}, host.WindowIDs())
}

func TestRunNeverRemovesMainWindow(t *testing.T) {
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://youtube.com/"),
		consolidatetest.Win(2, false, 20, "https://b.com"),
	)

	_, err := consolidate.Run(context.Background(), host, nil, classic(t))
	require.NoError(t, err)

	for _, c := range host.CallsTo("RemoveWindow") {
		assert.NotEqual(t, 1, c.WindowID)
	}
	assert.Contains(t, host.WindowIDs(), 1)
}

func TestRunEnumerationFailureAborts(t *testing.T) {
	host := consolidatetest.New()
	host.WindowsErr = errors.New("extension not responding")
	rep := &captureReporter{}

	_, err := consolidate.Run(context.Background(), host, rep, classic(t))
	require.Error(t, err)

	st := rep.last(t)
	assert.True(t, st.IsError)
	assert.Equal(t, "Error: enumerate windows: extension not responding", st.Message)
}

func TestRunReEnumerationFailureKeepsCounts(t *testing.T) {
	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com"),
		consolidatetest.Win(2, false, 20, "https://a.com", "https://b.com"),
	)
	host.WindowsErr = errors.New("gone")
	host.WindowsErrAfter = 1

	report, err := consolidate.Run(context.Background(), host, nil, classic(t))
	require.Error(t, err)
	assert.Equal(t, 1, report.Closed)
	assert.Equal(t, 1, report.Moved)
}

func TestRunReporterFailureIsLogged(t *testing.T) {
	logs := captureLog(t)
	host := consolidatetest.New(consolidatetest.Win(1, true, 10, "https://a.com"))
	rep := &captureReporter{err: errors.New("notifications disabled")}

	_, err := consolidate.Run(context.Background(), host, rep, classic(t))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "WARN merge.notify")
}

func TestReporterFunc(t *testing.T) {
	var got consolidate.Status
	r := consolidate.ReporterFunc(func(ctx context.Context, st consolidate.Status) error {
		got = st
		return nil
	})
	require.NoError(t, r.Notify(context.Background(), consolidate.Status{Message: "hi"}))
	assert.Equal(t, "hi", got.Message)
}
