package export

import (
	"fmt"
	"strings"

	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/types"
)

var sections = []struct {
	title  string
	action types.Action
}{
	{"Close", types.ActionClose},
	{"Move to main window", types.ActionRelocate},
	{"Keep", types.ActionKeep},
}

// Markdown formats a plan as a markdown document.
func Markdown(plan *consolidate.Plan, meta Meta) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Merge plan: %s\n", meta.Source)
	fmt.Fprintf(&b, "> Preset %s, generated %s\n\n", meta.Preset, meta.At.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "%d %s, %d %s, main window %d\n",
		plan.WindowCount, plural(plan.WindowCount, "window"),
		plan.TabCount, plural(plan.TabCount, "tab"),
		plan.MainWindowID)

	if plan.Skipped {
		b.WriteString("\nOnly one window open. Nothing to merge.\n")
		return b.String()
	}

	for _, sec := range sections {
		n := plan.Count(sec.action)
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", sec.title, n, plural(n, "tab"))
		for _, d := range plan.Decisions {
			if d.Action != sec.action {
				continue
			}
			title := d.Tab.Title
			if title == "" {
				title = d.Tab.URL
			}
			fmt.Fprintf(&b, "- [%s](%s) (window %d, %s)\n", escape(title), d.Tab.URL, d.WindowID, d.Reason)
		}
	}

	if plan.Ignored > 0 {
		fmt.Fprintf(&b, "\n_%d non-HTTP %s left alone._\n", plan.Ignored, plural(plan.Ignored, "tab"))
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

var linkEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

func escape(s string) string {
	return linkEscaper.Replace(s)
}
