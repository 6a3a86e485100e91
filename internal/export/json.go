package export

import (
	"encoding/json"
	"time"

	"github.com/lotas/mergewin/internal/analyzer"
	"github.com/lotas/mergewin/internal/consolidate"
)

// Meta describes where a plan came from.
type Meta struct {
	Source string // "bridge", "cdp" or "firefox:<profile>"
	Preset string
	At     time.Time
}

type jsonExport struct {
	Source       string         `json:"source"`
	Preset       string         `json:"preset"`
	ExportedAt   time.Time      `json:"exported_at"`
	MainWindowID int            `json:"main_window_id"`
	Windows      int            `json:"windows"`
	Tabs         int            `json:"tabs"`
	Skipped      bool           `json:"skipped,omitempty"`
	Ignored      int            `json:"ignored"`
	Close        []int          `json:"close"`
	Move         []int          `json:"move"`
	Decisions    []jsonDecision `json:"decisions"`
}

type jsonDecision struct {
	TabID    int    `json:"tab_id"`
	WindowID int    `json:"window_id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Domain   string `json:"domain"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
}

// JSON formats a plan as a JSON document.
func JSON(plan *consolidate.Plan, meta Meta) (string, error) {
	out := jsonExport{
		Source:       meta.Source,
		Preset:       meta.Preset,
		ExportedAt:   meta.At,
		MainWindowID: plan.MainWindowID,
		Windows:      plan.WindowCount,
		Tabs:         plan.TabCount,
		Skipped:      plan.Skipped,
		Ignored:      plan.Ignored,
		Close:        nonNil(plan.CloseIDs),
		Move:         nonNil(plan.MoveIDs),
		Decisions:    make([]jsonDecision, 0, len(plan.Decisions)),
	}

	for _, d := range plan.Decisions {
		out.Decisions = append(out.Decisions, jsonDecision{
			TabID:    d.Tab.ID,
			WindowID: d.WindowID,
			Title:    d.Tab.Title,
			URL:      d.Tab.URL,
			Domain:   analyzer.Domain(d.Tab.URL),
			Action:   d.Action.String(),
			Reason:   string(d.Reason),
		})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
