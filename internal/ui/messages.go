package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/imgmux/internal/multiplex"
)

var (
	_ tea.Msg = eventMsg{}
	_ tea.Msg = renderMsg(nil)
	_ tea.Msg = streamClosedMsg{}
)

// eventMsg carries one resolver notification into the update loop.
type eventMsg multiplex.Event[string]

// renderMsg carries an accepted image handed to the display surface.
type renderMsg *multiplex.Image

// streamClosedMsg reports that the resolver's event stream ended.
type streamClosedMsg struct{}
