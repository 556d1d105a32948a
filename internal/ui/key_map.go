package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	reload        key.Binding
	intermediates key.Binding
	quit          key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		reload:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		intermediates: key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "intermediates")),
		quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.reload, k.intermediates, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.reload, k.intermediates},
		{k.quit},
	}
}
