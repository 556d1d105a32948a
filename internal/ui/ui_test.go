package ui

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/imgmux/internal/multiplex"
	tu "github.com/desertthunder/imgmux/internal/testing"
)

const (
	fullURL  = "https://cdn.example.com/full.png"
	thumbURL = "https://cdn.example.com/thumb.png"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	m := NewModel(context.Background(), []string{fullURL, thumbURL}, tu.NewMockSource(), multiplex.Options{})
	t.Cleanup(m.resolver.Close)
	return m
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func encodePNG(t *testing.T, w, h int, c color.RGBA) *multiplex.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return &multiplex.Image{Data: buf.Bytes(), ContentType: "image/png"}
}

func TestModel(t *testing.T) {
	t.Run("Applies Download Lifecycle Events", func(t *testing.T) {
		m := testModel(t)

		m.Update(eventMsg{Kind: multiplex.KindDownloadStarted, Identifier: fullURL})
		if m.candidates[0].status != statusDownloading {
			t.Errorf("expected downloading, got %d", m.candidates[0].status)
		}

		m.Update(eventMsg{Kind: multiplex.KindDownloadProgressed, Identifier: fullURL, Fraction: 0.5})
		if m.candidates[0].fraction != 0.5 {
			t.Errorf("expected fraction 0.5, got %v", m.candidates[0].fraction)
		}

		m.Update(eventMsg{Kind: multiplex.KindDownloadFinished, Identifier: fullURL, Err: errors.New("boom")})
		if m.candidates[0].status != statusFailed {
			t.Errorf("expected failed, got %d", m.candidates[0].status)
		}
		if m.candidates[0].err == nil {
			t.Error("expected the failure to be recorded")
		}
	})

	t.Run("Promotes And Replaces Loaded Candidates", func(t *testing.T) {
		m := testModel(t)
		img := &multiplex.Image{Data: []byte("bytes"), ContentType: "image/png"}

		m.Update(eventMsg{Kind: multiplex.KindImageUpdated, Identifier: thumbURL, Image: img})
		if m.candidates[1].status != statusLoaded {
			t.Errorf("expected the thumb loaded, got %d", m.candidates[1].status)
		}
		if m.loadedID != thumbURL {
			t.Errorf("expected loaded id %q, got %q", thumbURL, m.loadedID)
		}

		m.Update(eventMsg{
			Kind:               multiplex.KindImageUpdated,
			Identifier:         fullURL,
			Image:              img,
			Previous:           img,
			PreviousIdentifier: thumbURL,
			HasPrevious:        true,
		})
		if m.candidates[0].status != statusLoaded {
			t.Errorf("expected the full image loaded, got %d", m.candidates[0].status)
		}
		if m.candidates[1].status != statusReplaced {
			t.Errorf("expected the thumb replaced, got %d", m.candidates[1].status)
		}

		m.Update(eventMsg{Kind: multiplex.KindImageDisplayed, Identifier: fullURL, Image: img})
		if m.displayedID != fullURL {
			t.Errorf("expected displayed id %q, got %q", fullURL, m.displayedID)
		}
	})

	t.Run("View Lists Every Candidate", func(t *testing.T) {
		m := testModel(t)
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

		view := m.View()
		if !strings.Contains(view, "imgmux") {
			t.Error("expected the title in the view")
		}
		if !strings.Contains(view, fullURL) || !strings.Contains(view, thumbURL) {
			t.Error("expected both candidates in the view")
		}
		if !strings.Contains(view, "pending") {
			t.Error("expected pending state markers")
		}
	})

	t.Run("Renders A Preview On Display Handoff", func(t *testing.T) {
		m := testModel(t)
		m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

		m.Update(renderMsg(encodePNG(t, 4, 4, color.RGBA{R: 0xFF, A: 0xFF})))
		if !strings.Contains(m.preview, "▀") {
			t.Error("expected half-block cells in the preview")
		}
		if !strings.Contains(m.View(), "▀") {
			t.Error("expected the preview pane in the view")
		}
	})

	t.Run("Reports Undecodable Previews", func(t *testing.T) {
		m := testModel(t)

		m.Update(renderMsg(&multiplex.Image{Data: []byte("not an image")}))
		if !strings.Contains(m.preview, "no preview") {
			t.Errorf("expected a decode note, got %q", m.preview)
		}
	})

	t.Run("Toggles Intermediate Downloads", func(t *testing.T) {
		m := testModel(t)

		m.Update(keyMsg("i"))
		if !m.resolver.DownloadsIntermediates() {
			t.Error("expected intermediates enabled")
		}
		m.Update(keyMsg("i"))
		if m.resolver.DownloadsIntermediates() {
			t.Error("expected intermediates disabled again")
		}
	})

	t.Run("Quit Closes The Resolver And Ends The Stream", func(t *testing.T) {
		m := testModel(t)

		_, cmd := m.Update(keyMsg("q"))
		if cmd == nil {
			t.Fatal("expected a quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.Quit")
		}

		var closed bool
		for i := 0; i < 4 && !closed; i++ {
			_, closed = m.waitForEvent()().(streamClosedMsg)
		}
		if !closed {
			t.Error("expected the event stream to close")
		}
	})

	t.Run("Caps The Event Log", func(t *testing.T) {
		m := testModel(t)
		for i := 0; i < logLines+4; i++ {
			m.pushLog("line")
		}
		if len(m.log) != logLines {
			t.Errorf("expected %d log lines, got %d", logLines, len(m.log))
		}
	})
}

func TestTrimLabel(t *testing.T) {
	if got := trimLabel("abc", 4); got != "abc" {
		t.Errorf("expected short labels untouched, got %q", got)
	}
	if got := trimLabel("abcdef", 4); got != "…def" {
		t.Errorf("expected a trimmed tail, got %q", got)
	}
}

func TestPaintHalfBlocks(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 4))
	out := paintHalfBlocks(img)

	rows := strings.Split(out, "\n")
	if len(rows) != 2 {
		t.Errorf("expected two terminal rows for four pixel rows, got %d", len(rows))
	}
	if strings.Count(out, "▀") != 4 {
		t.Errorf("expected four cells, got %d", strings.Count(out, "▀"))
	}
}
