// Package ui implements an interactive terminal viewer using bubbletea's Elm architecture.
//
// The TUI renders one progressive resolution as three stacked panes:
//  1. candidates : per-identifier state with download progress bars, best first
//  2. preview : half-block rendering of the image currently on screen
//  3. log : the most recent resolver notifications
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving resolver
// notifications through a subscription channel pumped back in as messages.
// The model doubles as the resolver's display surface: accepted images arrive
// on a render channel, and receiving one acknowledges it as displayed.
//
// Keyboard control: r reloads sources, i toggles intermediate downloads, q quits.
// Contextual help is displayed via charmbracelet/bubbles/help.
package ui
