package types

// Tab represents a single browser tab.
type Tab struct {
	ID       int    // host tab ID; synthetic when read from a session file
	URL      string // empty when the tab has no address yet
	Title    string
	WindowID int
	Index    int
}

// Window represents a browser window and its tabs in display order.
type Window struct {
	ID      int
	Focused bool
	Tabs    []*Tab
}

// Profile represents a Firefox profile.
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}

// Action is the classification outcome for one tab.
type Action int

const (
	ActionKeep Action = iota
	ActionClose
	ActionRelocate
)

func (a Action) String() string {
	switch a {
	case ActionClose:
		return "close"
	case ActionRelocate:
		return "relocate"
	default:
		return "keep"
	}
}

// CountTabs returns the total number of tabs across windows.
func CountTabs(windows []*Window) int {
	n := 0
	for _, w := range windows {
		n += len(w.Tabs)
	}
	return n
}
