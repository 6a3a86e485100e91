package consolidate

import (
	"fmt"
	"strings"

	"github.com/lotas/mergewin/internal/analyzer"
	"github.com/lotas/mergewin/internal/types"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonDismissed Reason = "dismissed domain"
	ReasonStalePort Reason = "stale local port"
	ReasonDuplicate Reason = "duplicate"
	ReasonLocalDev  Reason = "local dev"
	ReasonFirst     Reason = "first occurrence"
)

// Decision is the classification of one HTTP(S) tab.
type Decision struct {
	Tab      *types.Tab
	WindowID int
	Action   types.Action
	Reason   Reason
}

// Plan is the pure result of classifying a window snapshot. Building it never
// touches the host.
type Plan struct {
	MainWindowID int
	WindowCount  int
	TabCount     int

	// SingleWindow is set when at most one window was enumerated.
	SingleWindow bool
	// Skipped means there is nothing to do and the host must not be mutated.
	Skipped bool

	Decisions []Decision
	Ignored   int // tabs with no address or a non-HTTP scheme

	CloseIDs []int
	MoveIDs  []int
}

// BuildPlan classifies every tab in windows according to cfg.
func BuildPlan(windows []*types.Window, cfg Config) *Plan {
	p := &Plan{
		WindowCount:  len(windows),
		TabCount:     types.CountTabs(windows),
		SingleWindow: len(windows) <= 1,
	}
	if len(windows) == 0 || (p.SingleWindow && !cfg.CleanSingleWindow) {
		p.Skipped = true
		if len(windows) == 1 {
			p.MainWindowID = windows[0].ID
		}
		return p
	}

	main := MainWindow(windows)
	p.MainWindowID = main.ID

	seen := make(map[string]bool)
	for _, w := range orderWindows(windows, main, cfg.Ordering) {
		for _, tab := range w.Tabs {
			if !analyzer.IsHTTP(tab.URL) {
				p.Ignored++
				continue
			}
			d := classify(tab, w.ID, main.ID, cfg, seen)
			p.Decisions = append(p.Decisions, d)
			switch d.Action {
			case types.ActionClose:
				p.CloseIDs = append(p.CloseIDs, tab.ID)
			case types.ActionRelocate:
				p.MoveIDs = append(p.MoveIDs, tab.ID)
			}
		}
	}
	return p
}

func classify(tab *types.Tab, windowID, mainID int, cfg Config, seen map[string]bool) Decision {
	d := Decision{Tab: tab, WindowID: windowID}

	if cfg.Dismiss.Match(tab.URL) {
		d.Action, d.Reason = types.ActionClose, ReasonDismissed
		return d
	}
	if cfg.StalePorts.Match(tab.URL) {
		d.Action, d.Reason = types.ActionClose, ReasonStalePort
		return d
	}

	key := analyzer.NormalizeURL(tab.URL)
	if seen[key] {
		d.Action, d.Reason = types.ActionClose, ReasonDuplicate
		return d
	}
	seen[key] = true

	d.Reason = ReasonFirst
	if analyzer.IsLocalDev(tab.URL) {
		d.Reason = ReasonLocalDev
	}
	if windowID == mainID {
		d.Action = types.ActionKeep
	} else {
		d.Action = types.ActionRelocate
	}
	return d
}

// MainWindow returns the focused window, falling back to the first one.
// windows must not be empty.
func MainWindow(windows []*types.Window) *types.Window {
	for _, w := range windows {
		if w.Focused {
			return w
		}
	}
	return windows[0]
}

func orderWindows(windows []*types.Window, main *types.Window, ordering Ordering) []*types.Window {
	if ordering == NaturalOrder {
		return windows
	}
	out := make([]*types.Window, 0, len(windows))
	out = append(out, main)
	for _, w := range windows {
		if w.ID != main.ID {
			out = append(out, w)
		}
	}
	return out
}

// Count returns how many decisions have the given action.
func (p *Plan) Count(a types.Action) int {
	n := 0
	for _, d := range p.Decisions {
		if d.Action == a {
			n++
		}
	}
	return n
}

// FormatDryRun returns a human-readable summary of the plan.
func FormatDryRun(p *Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d windows, %d tabs (main window %d)\n", p.WindowCount, p.TabCount, p.MainWindowID)
	if p.Skipped {
		b.WriteString("\nOnly one window open. Nothing to merge.\n")
		return b.String()
	}

	sections := []struct {
		name   string
		action types.Action
	}{
		{"Close", types.ActionClose},
		{"Move to main window", types.ActionRelocate},
		{"Keep", types.ActionKeep},
	}
	for _, sec := range sections {
		n := p.Count(sec.action)
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d):\n", sec.name, n)
		for _, d := range p.Decisions {
			if d.Action != sec.action {
				continue
			}
			fmt.Fprintf(&b, "  - [w%d] %s (%s)\n", d.WindowID, label(d.Tab), d.Reason)
		}
	}

	if p.Ignored > 0 {
		fmt.Fprintf(&b, "\nIgnored: %d non-HTTP tabs\n", p.Ignored)
	}
	return b.String()
}

func label(tab *types.Tab) string {
	if tab.Title != "" && tab.Title != tab.URL {
		return tab.Title + " <" + tab.URL + ">"
	}
	return tab.URL
}
