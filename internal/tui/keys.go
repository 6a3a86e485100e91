package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type binding struct{ key.Binding }

func (b binding) matches(msg tea.KeyMsg) bool { return key.Matches(msg, b.Binding) }

type keyMap struct {
	Merge   binding
	Refresh binding
	Up      binding
	Down    binding
	Quit    binding
}

func defaultKeys() keyMap {
	return keyMap{
		Merge:   binding{key.NewBinding(key.WithKeys("m", "enter"), key.WithHelp("m", "merge windows"))},
		Refresh: binding{key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh"))},
		Up:      binding{key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll"))},
		Down:    binding{key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll"))},
		Quit:    binding{key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit"))},
	}
}

func (k keyMap) help() string {
	var parts []string
	for _, b := range []binding{k.Merge, k.Refresh, k.Up, k.Down, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}
