// Package consolidatetest provides an in-memory Host for tests.
package consolidatetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/types"
)

// Call records one host invocation.
type Call struct {
	Method   string
	TabIDs   []int
	WindowID int
	Index    int
}

// FakeHost keeps windows in memory and behaves like a browser: removing the
// last tab of a window closes the window when AutoCloseEmpty is set.
type FakeHost struct {
	mu      sync.Mutex
	windows []*types.Window

	AutoCloseEmpty bool

	// Injected failures. WindowsErrAfter fails every Windows call after the
	// given number of successful ones (0 = never).
	WindowsErr      error
	WindowsErrAfter int
	RemoveTabsErr   error
	MoveTabsErr     error
	RemoveWindowErr error
	QueryTabsErr    error

	windowsCalls int
	Calls        []Call
}

// New builds a host from windows. Tabs get their WindowID and Index set.
func New(windows ...*types.Window) *FakeHost {
	h := &FakeHost{windows: windows}
	for _, w := range windows {
		reindex(w)
	}
	return h
}

// Win is a shorthand window builder: tab IDs are assigned from firstTabID.
func Win(id int, focused bool, firstTabID int, urls ...string) *types.Window {
	w := &types.Window{ID: id, Focused: focused}
	for i, u := range urls {
		w.Tabs = append(w.Tabs, &types.Tab{ID: firstTabID + i, URL: u})
	}
	return w
}

func reindex(w *types.Window) {
	for i, t := range w.Tabs {
		t.WindowID = w.ID
		t.Index = i
	}
}

func (h *FakeHost) record(c Call) {
	h.Calls = append(h.Calls, c)
}

// Windows returns a deep copy of the current windows.
func (h *FakeHost) Windows(ctx context.Context) ([]*types.Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Method: "Windows"})
	h.windowsCalls++
	if h.WindowsErr != nil && (h.WindowsErrAfter == 0 || h.windowsCalls > h.WindowsErrAfter) {
		return nil, h.WindowsErr
	}
	out := make([]*types.Window, 0, len(h.windows))
	for _, w := range h.windows {
		cp := &types.Window{ID: w.ID, Focused: w.Focused}
		for _, t := range w.Tabs {
			tc := *t
			cp.Tabs = append(cp.Tabs, &tc)
		}
		out = append(out, cp)
	}
	return out, nil
}

// RemoveTabs closes the tabs that exist and reports the first missing one.
func (h *FakeHost) RemoveTabs(ctx context.Context, tabIDs []int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Method: "RemoveTabs", TabIDs: append([]int(nil), tabIDs...)})
	if h.RemoveTabsErr != nil {
		return h.RemoveTabsErr
	}
	var missing []int
	for _, id := range tabIDs {
		if !h.removeTab(id) {
			missing = append(missing, id)
		}
	}
	h.closeEmpty()
	if len(missing) > 0 {
		return fmt.Errorf("no tab with id: %d", missing[0])
	}
	return nil
}

// MoveTabs appends the tabs to windowID in the given order.
func (h *FakeHost) MoveTabs(ctx context.Context, tabIDs []int, windowID, index int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Method: "MoveTabs", TabIDs: append([]int(nil), tabIDs...), WindowID: windowID, Index: index})
	if h.MoveTabsErr != nil {
		return h.MoveTabsErr
	}
	target := h.window(windowID)
	if target == nil {
		return fmt.Errorf("window %d: %w", windowID, consolidate.ErrWindowNotFound)
	}
	for _, id := range tabIDs {
		tab := h.takeTab(id)
		if tab == nil {
			return fmt.Errorf("no tab with id: %d", id)
		}
		target.Tabs = append(target.Tabs, tab)
	}
	reindex(target)
	h.closeEmpty()
	return nil
}

// RemoveWindow closes a window and its tabs.
func (h *FakeHost) RemoveWindow(ctx context.Context, windowID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Method: "RemoveWindow", WindowID: windowID})
	if h.RemoveWindowErr != nil {
		return h.RemoveWindowErr
	}
	for i, w := range h.windows {
		if w.ID == windowID {
			h.windows = append(h.windows[:i], h.windows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("window %d: %w", windowID, consolidate.ErrWindowNotFound)
}

// QueryTabs returns copies of the tabs in windowID.
func (h *FakeHost) QueryTabs(ctx context.Context, windowID int) ([]*types.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Call{Method: "QueryTabs", WindowID: windowID})
	if h.QueryTabsErr != nil {
		return nil, h.QueryTabsErr
	}
	w := h.window(windowID)
	if w == nil {
		return nil, fmt.Errorf("window %d: %w", windowID, consolidate.ErrWindowNotFound)
	}
	out := make([]*types.Tab, 0, len(w.Tabs))
	for _, t := range w.Tabs {
		tc := *t
		out = append(out, &tc)
	}
	return out, nil
}

// URLs returns the tab URLs of windowID in order, or nil if it is gone.
func (h *FakeHost) URLs(windowID int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := h.window(windowID)
	if w == nil {
		return nil
	}
	out := make([]string, 0, len(w.Tabs))
	for _, t := range w.Tabs {
		out = append(out, t.URL)
	}
	return out
}

// WindowIDs returns the IDs of the open windows.
func (h *FakeHost) WindowIDs() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int, 0, len(h.windows))
	for _, w := range h.windows {
		ids = append(ids, w.ID)
	}
	return ids
}

// CallsTo returns the recorded calls for method.
func (h *FakeHost) CallsTo(method string) []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Call
	for _, c := range h.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (h *FakeHost) window(id int) *types.Window {
	for _, w := range h.windows {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (h *FakeHost) removeTab(id int) bool {
	return h.takeTab(id) != nil
}

func (h *FakeHost) takeTab(id int) *types.Tab {
	for _, w := range h.windows {
		for i, t := range w.Tabs {
			if t.ID == id {
				w.Tabs = append(w.Tabs[:i], w.Tabs[i+1:]...)
				reindex(w)
				return t
			}
		}
	}
	return nil
}

func (h *FakeHost) closeEmpty() {
	if !h.AutoCloseEmpty {
		return
	}
	kept := h.windows[:0]
	for _, w := range h.windows {
		if len(w.Tabs) > 0 {
			kept = append(kept, w)
		}
	}
	h.windows = kept
}
