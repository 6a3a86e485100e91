package consolidate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lotas/mergewin/internal/applog"
	"github.com/lotas/mergewin/internal/types"
)

// NotifyTitle is the title attached to every status notification.
const NotifyTitle = "Merge Windows Plus"

// AppendIndex asks the host to place moved tabs after the existing ones.
const AppendIndex = -1

// ErrWindowNotFound is returned by a Host when a window vanished between
// enumeration and the call, usually because the browser closed it after its
// last tab went away.
var ErrWindowNotFound = errors.New("no window with that id")

// Host is the browser capability the consolidator needs.
type Host interface {
	// Windows enumerates all windows with their tabs populated.
	Windows(ctx context.Context) ([]*types.Window, error)
	RemoveTabs(ctx context.Context, tabIDs []int) error
	// MoveTabs moves tabs to windowID starting at index (-1 = end).
	MoveTabs(ctx context.Context, tabIDs []int, windowID, index int) error
	RemoveWindow(ctx context.Context, windowID int) error
	QueryTabs(ctx context.Context, windowID int) ([]*types.Tab, error)
}

// Status is a user-facing message.
type Status struct {
	Title   string
	Message string
	IsError bool
}

// Reporter shows a Status to the user: a system notification for the
// background entry points, an inline status line for the popup.
type Reporter interface {
	Notify(ctx context.Context, st Status) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, st Status) error

func (f ReporterFunc) Notify(ctx context.Context, st Status) error { return f(ctx, st) }

// Report holds the outcome of one run. Counts only include batches the host
// accepted.
type Report struct {
	RunID          string
	Plan           *Plan
	Moved          int
	Closed         int
	WindowsRemoved int
}

// Message renders the summary shown to the user.
func (r *Report) Message() string {
	switch {
	case r.Plan == nil || r.Plan.Skipped:
		return "Only one window open. Nothing to merge."
	case r.Plan.SingleWindow:
		return fmt.Sprintf("Only one window open. Closed %d tab(s).", r.Closed)
	default:
		return fmt.Sprintf("Merged %d tab(s), closed %d tab(s).", r.Moved, r.Closed)
	}
}

// Run enumerates, classifies and applies one consolidation pass, then
// reports the outcome through reporter. A failed batch is logged and the run
// continues; an enumeration failure aborts the run and is reported as an
// error. The partial report is returned either way.
func Run(ctx context.Context, host Host, reporter Reporter, cfg Config) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	applog.Info("merge.start", "run", report.RunID, "preset", cfg.Name)

	err := apply(ctx, host, cfg, report)
	if err != nil {
		applog.Error("merge.failed", err, "run", report.RunID)
		notify(ctx, reporter, report.RunID, Status{
			Title:   NotifyTitle,
			Message: "Error: " + err.Error(),
			IsError: true,
		})
		return report, err
	}

	applog.Info("merge.done", "run", report.RunID,
		"moved", report.Moved, "closed", report.Closed, "windows_removed", report.WindowsRemoved)
	notify(ctx, reporter, report.RunID, Status{Title: NotifyTitle, Message: report.Message()})
	return report, nil
}

func apply(ctx context.Context, host Host, cfg Config, report *Report) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	windows, err := host.Windows(ctx)
	if err != nil {
		return fmt.Errorf("enumerate windows: %w", err)
	}

	plan := BuildPlan(windows, cfg)
	report.Plan = plan
	applog.Info("merge.plan", "run", report.RunID, "windows", plan.WindowCount, "tabs", plan.TabCount,
		"close", len(plan.CloseIDs), "move", len(plan.MoveIDs), "ignored", plan.Ignored)
	if plan.Skipped {
		return nil
	}

	if len(plan.CloseIDs) > 0 {
		if err := host.RemoveTabs(ctx, plan.CloseIDs); err != nil {
			applog.Warn("merge.close", err, "run", report.RunID, "count", len(plan.CloseIDs))
		} else {
			report.Closed = len(plan.CloseIDs)
		}
	}

	if len(plan.MoveIDs) > 0 {
		if err := host.MoveTabs(ctx, plan.MoveIDs, plan.MainWindowID, AppendIndex); err != nil {
			applog.Warn("merge.move", err, "run", report.RunID, "count", len(plan.MoveIDs))
		} else {
			report.Moved = len(plan.MoveIDs)
		}
	}

	return sweepEmptyWindows(ctx, host, plan.MainWindowID, report)
}

// sweepEmptyWindows removes every window other than mainID that has no tabs
// left. A window that already disappeared is not an error.
func sweepEmptyWindows(ctx context.Context, host Host, mainID int, report *Report) error {
	remaining, err := host.Windows(ctx)
	if err != nil {
		return fmt.Errorf("re-enumerate windows: %w", err)
	}

	for _, w := range remaining {
		if w.ID == mainID {
			continue
		}
		tabs, err := host.QueryTabs(ctx, w.ID)
		if err == nil && len(tabs) == 0 {
			err = host.RemoveWindow(ctx, w.ID)
			if err == nil {
				report.WindowsRemoved++
				continue
			}
		}
		if err != nil && !errors.Is(err, ErrWindowNotFound) {
			applog.Warn("merge.sweep", err, "run", report.RunID, "window", w.ID)
		}
	}
	return nil
}

func notify(ctx context.Context, reporter Reporter, runID string, st Status) {
	if reporter == nil {
		return
	}
	if err := reporter.Notify(ctx, st); err != nil {
		applog.Warn("merge.notify", err, "run", runID)
	}
}
