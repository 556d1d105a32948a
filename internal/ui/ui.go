package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
)

const (
	eventBuffer = 256
	logLines    = 6
	barWidth    = 20
	previewRows = 12
)

var (
	_ tea.Model                = (*Model)(nil)
	_ multiplex.DisplaySurface = surface{}
)

// candidateStatus tracks how far one identifier's pipeline has progressed.
type candidateStatus int

const (
	statusPending candidateStatus = iota
	statusDownloading
	statusFetched
	statusLoaded
	statusReplaced
	statusFailed
)

// candidate is the view state for one identifier, best first by position.
type candidate struct {
	id       string
	status   candidateStatus
	fraction float64
	size     int64
	err      error
}

// surface feeds accepted images into the update loop. The send is
// acknowledgment: once the model receives the image, it is on screen.
type surface struct {
	renders chan<- *multiplex.Image
}

func (s surface) Render(ctx context.Context, img *multiplex.Image) error {
	select {
	case s.renders <- img:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Model represents the TUI application state. It owns the resolver for one
// progressive resolution and acts as its display surface.
type Model struct {
	ctx      context.Context
	resolver *multiplex.Resolver[string]
	events   <-chan multiplex.Event[string]
	renders  chan *multiplex.Image

	candidates    []*candidate
	log           []string
	previewImg    *multiplex.Image
	preview       string
	loadedID      string
	displayedID   string
	intermediates bool
	width         int
	height        int

	bar  progress.Model
	help help.Model
	keys keyMap
}

// NewModel creates a TUI model resolving ids, best first, against source.
// opts configures the resolver; its Surface is replaced by the model.
func NewModel(ctx context.Context, ids []string, source multiplex.DataSource[string], opts multiplex.Options) *Model {
	m := &Model{
		ctx:           ctx,
		renders:       make(chan *multiplex.Image),
		candidates:    make([]*candidate, len(ids)),
		intermediates: opts.DownloadsIntermediates,
		bar:           progress.New(progress.WithDefaultGradient()),
		help:          help.New(),
		keys:          newKeyMap(),
	}
	for i, id := range ids {
		m.candidates[i] = &candidate{id: id}
	}
	m.bar.Width = barWidth

	opts.Surface = surface{renders: m.renders}
	m.resolver = multiplex.New[string](source, opts)
	m.events, _ = m.resolver.Subscribe(eventBuffer)
	return m
}

// Init starts the resolution and the two message pumps.
func (m *Model) Init() tea.Cmd {
	ids := make([]string, len(m.candidates))
	for i, c := range m.candidates {
		ids[i] = c.id
	}
	m.resolver.SetCandidates(ids...)
	return tea.Batch(m.waitForEvent(), m.waitForRender())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.repaint()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.resolver.Close()
			return m, tea.Quit
		case "r":
			m.pushLog("reloading sources")
			m.resolver.Reload()
			return m, nil
		case "i":
			m.intermediates = !m.intermediates
			m.resolver.SetDownloadsIntermediates(m.intermediates)
			if m.intermediates {
				m.pushLog("intermediate downloads on")
			} else {
				m.pushLog("intermediate downloads off")
			}
			return m, nil
		}
		return m, nil

	case eventMsg:
		m.apply(multiplex.Event[string](msg))
		return m, m.waitForEvent()

	case renderMsg:
		m.previewImg = msg
		m.repaint()
		return m, m.waitForRender()

	case streamClosedMsg:
		m.resolver.Close()
		return m, tea.Quit
	}

	return m, nil
}

// View renders the candidate, preview, and log panes.
func (m *Model) View() string {
	var b strings.Builder
	mode := "intermediates off"
	if m.intermediates {
		mode = "intermediates on"
	}
	b.WriteString(styles.title.Render("imgmux"))
	b.WriteString(" ")
	b.WriteString(styles.help.Render(mode))
	b.WriteString("\n")

	for rank, c := range m.candidates {
		b.WriteString(m.renderCandidate(rank, c))
		b.WriteString("\n")
	}

	if m.preview != "" {
		b.WriteString("\n")
		b.WriteString(m.preview)
		b.WriteString("\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(styles.help.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

// apply folds one resolver notification into the candidate states.
func (m *Model) apply(ev multiplex.Event[string]) {
	label := trimLabel(ev.Identifier, 32)

	switch ev.Kind {
	case multiplex.KindDownloadStarted:
		if c := m.candidate(ev.Identifier); c != nil {
			c.status = statusDownloading
			c.fraction = 0
			c.err = nil
		}
		m.pushLog(fmt.Sprintf("downloading %s", label))

	case multiplex.KindDownloadProgressed:
		if c := m.candidate(ev.Identifier); c != nil {
			c.fraction = ev.Fraction
		}

	case multiplex.KindDownloadFinished:
		c := m.candidate(ev.Identifier)
		if ev.Err != nil {
			if c != nil {
				c.status = statusFailed
				c.err = ev.Err
			}
			m.pushLog(fmt.Sprintf("✗ %s: %v", label, ev.Err))
			return
		}
		if c != nil {
			c.fraction = 1
			if c.status == statusDownloading {
				c.status = statusFetched
			}
		}

	case multiplex.KindImageUpdated:
		if c := m.candidate(ev.Identifier); c != nil {
			c.status = statusLoaded
			c.size = ev.Image.Size()
		}
		if ev.HasPrevious {
			if p := m.candidate(ev.PreviousIdentifier); p != nil && p.status == statusLoaded {
				p.status = statusReplaced
			}
		}
		m.loadedID = ev.Identifier
		m.pushLog(fmt.Sprintf("✓ loaded %s (%s)", label, shared.FormatBytes(ev.Image.Size())))

	case multiplex.KindImageDisplayed:
		m.displayedID = ev.Identifier
		m.pushLog(fmt.Sprintf("displayed %s", label))
	}
}

func (m *Model) candidate(id string) *candidate {
	for _, c := range m.candidates {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (m *Model) renderCandidate(rank int, c *candidate) string {
	label := trimLabel(c.id, m.labelWidth())
	switch c.status {
	case statusDownloading:
		return fmt.Sprintf("  %d. %s %s %s", rank+1, label, m.bar.ViewAs(c.fraction), shared.Percent(c.fraction))
	case statusFetched:
		return fmt.Sprintf("  %d. %s %s", rank+1, label, styles.warn.Render("fetched"))
	case statusLoaded:
		note := shared.FormatBytes(c.size)
		if c.id == m.displayedID {
			note += ", displayed"
		}
		return fmt.Sprintf("  %d. %s %s", rank+1, label, styles.ok.Render("✓ "+note))
	case statusReplaced:
		return fmt.Sprintf("  %d. %s %s", rank+1, label, styles.help.Render("replaced"))
	case statusFailed:
		return fmt.Sprintf("  %d. %s %s", rank+1, label, styles.err.Render(fmt.Sprintf("✗ %v", c.err)))
	default:
		return fmt.Sprintf("  %d. %s %s", rank+1, label, styles.help.Render("pending"))
	}
}

func (m *Model) pushLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

func (m *Model) repaint() {
	if m.previewImg == nil {
		return
	}
	s, err := renderPreview(m.previewImg, m.previewCols(), previewRows)
	if err != nil {
		m.preview = styles.help.Render(fmt.Sprintf("no preview (%v)", err))
		return
	}
	m.preview = s
}

func (m *Model) labelWidth() int {
	w := 40
	if m.width > 0 && m.width-32 < w {
		w = m.width - 32
	}
	if w < 12 {
		w = 12
	}
	return w
}

func (m *Model) previewCols() int {
	cols := 48
	if m.width > 0 && m.width-4 < cols {
		cols = m.width - 4
	}
	if cols < 8 {
		cols = 8
	}
	return cols
}

// waitForEvent pumps the next resolver notification into the update loop.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// waitForRender pumps the next accepted image into the update loop.
func (m *Model) waitForRender() tea.Cmd {
	return func() tea.Msg {
		select {
		case img := <-m.renders:
			return renderMsg(img)
		case <-m.ctx.Done():
			return streamClosedMsg{}
		}
	}
}

// trimLabel shortens long identifiers from the left, keeping the tail where
// URL paths differ.
func trimLabel(id string, max int) string {
	runes := []rune(id)
	if len(runes) <= max {
		return id
	}
	return "…" + string(runes[len(runes)-max+1:])
}
