package server

import (
	"encoding/json"
	"fmt"

	"github.com/lotas/mergewin/internal/types"
)

type wireTab struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	WindowID int    `json:"windowId"`
	Index    int    `json:"index"`
}

type wireWindow struct {
	ID      int       `json:"id"`
	Focused bool      `json:"focused"`
	Type    string    `json:"type"`
	Tabs    []wireTab `json:"tabs"`
}

// ParseWindows converts the "windows" payload of a windows.getAll response.
// Normal and popup windows are kept, matching the default of chrome.windows.getAll;
// devtools, app and panel windows are dropped.
func ParseWindows(raw json.RawMessage) ([]*types.Window, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wws []wireWindow
	if err := json.Unmarshal(raw, &wws); err != nil {
		return nil, fmt.Errorf("parse windows: %w", err)
	}

	windows := make([]*types.Window, 0, len(wws))
	for _, ww := range wws {
		if !mergeableType(ww.Type) {
			continue
		}
		w := &types.Window{ID: ww.ID, Focused: ww.Focused}
		for _, wt := range ww.Tabs {
			tab := toTab(wt)
			if tab.WindowID == 0 {
				tab.WindowID = ww.ID
			}
			w.Tabs = append(w.Tabs, tab)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// ParseTabs converts the "tabs" payload of a tabs.query response.
func ParseTabs(raw json.RawMessage) ([]*types.Tab, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wts []wireTab
	if err := json.Unmarshal(raw, &wts); err != nil {
		return nil, fmt.Errorf("parse tabs: %w", err)
	}
	tabs := make([]*types.Tab, 0, len(wts))
	for _, wt := range wts {
		tabs = append(tabs, toTab(wt))
	}
	return tabs, nil
}

func toTab(wt wireTab) *types.Tab {
	return &types.Tab{
		ID:       wt.ID,
		URL:      wt.URL,
		Title:    wt.Title,
		WindowID: wt.WindowID,
		Index:    wt.Index,
	}
}

func mergeableType(t string) bool {
	switch t {
	case "", "normal", "popup":
		return true
	}
	return false
}
