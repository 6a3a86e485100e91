package export

import (
	"strings"
	"testing"
	"time"

	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/types"
)

func testPlan() *consolidate.Plan {
	windows := []*types.Window{
		{ID: 1, Focused: true, Tabs: []*types.Tab{
			{ID: 10, URL: "https://go.dev/doc", Title: "Go docs", WindowID: 1},
			{ID: 11, URL: "about:blank", WindowID: 1},
		}},
		{ID: 2, Tabs: []*types.Tab{
			{ID: 20, URL: "https://go.dev/doc#install", Title: "Go docs", WindowID: 2},
			{ID: 21, URL: "https://www.youtube.com/watch?v=1", Title: "[Live] stream", WindowID: 2},
			{ID: 22, URL: "https://example.com", Title: "Example", WindowID: 2},
		}},
	}
	return consolidate.BuildPlan(windows, consolidate.DefaultConfig())
}

var testMeta = Meta{
	Source: "firefox:default",
	Preset: "classic",
	At:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
}

func TestMarkdown_Sections(t *testing.T) {
	result := Markdown(testPlan(), testMeta)

	// Header
	if !strings.Contains(result, "# Merge plan: firefox:default") {
		t.Errorf("missing header, got:\n%s", result)
	}
	if !strings.Contains(result, "> Preset classic, generated 2026-03-01 09:30") {
		t.Errorf("missing generated line, got:\n%s", result)
	}
	if !strings.Contains(result, "2 windows, 5 tabs, main window 1") {
		t.Errorf("missing summary, got:\n%s", result)
	}
	// Section headings with counts
	if !strings.Contains(result, "## Close (2 tabs)") {
		t.Errorf("missing Close heading, got:\n%s", result)
	}
	if !strings.Contains(result, "## Move to main window (1 tab)") {
		t.Errorf("missing Move heading, got:\n%s", result)
	}
	if !strings.Contains(result, "## Keep (1 tab)") {
		t.Errorf("missing Keep heading, got:\n%s", result)
	}
	// Entries as markdown links with escaped titles
	if !strings.Contains(result, `- [\[Live\] stream](https://www.youtube.com/watch?v=1) (window 2, dismissed domain)`) {
		t.Errorf("missing dismissed entry, got:\n%s", result)
	}
	if !strings.Contains(result, "_1 non-HTTP tab left alone._") {
		t.Errorf("missing ignored note, got:\n%s", result)
	}
	// Close comes before Keep
	if strings.Index(result, "## Close") > strings.Index(result, "## Keep") {
		t.Errorf("sections out of order:\n%s", result)
	}
}

func TestMarkdown_Skipped(t *testing.T) {
	plan := consolidate.BuildPlan([]*types.Window{{ID: 4, Tabs: []*types.Tab{{ID: 1, URL: "https://a.com"}}}}, consolidate.DefaultConfig())
	result := Markdown(plan, testMeta)

	if !strings.Contains(result, "1 window, 1 tab, main window 4") {
		t.Errorf("missing summary, got:\n%s", result)
	}
	if !strings.Contains(result, "Nothing to merge.") {
		t.Errorf("expected skipped note, got:\n%s", result)
	}
	if strings.Contains(result, "##") {
		t.Errorf("skipped plan should have no sections, got:\n%s", result)
	}
}
