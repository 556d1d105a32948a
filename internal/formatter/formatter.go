// package formatter renders resolution reports and cache listings for the CLI (plain text, Markdown, JSON)
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/imgmux/internal/models"
	"github.com/desertthunder/imgmux/internal/multiplex"
	"github.com/desertthunder/imgmux/internal/shared"
)

// Candidate states as they appear in reports.
const (
	StatePending     = "pending"
	StateDownloading = "downloading"
	StateFetched     = "fetched"
	StateFailed      = "failed"
	StateLoaded      = "loaded"
	StateSuperseded  = "superseded"
)

// Report captures one resolution run: the candidate ledger in rank order,
// the notification transcript, and how the run settled.
type Report struct {
	Candidates []Candidate `json:"candidates"`
	Events     []string    `json:"events,omitempty"`
	Outcome    Outcome     `json:"outcome"`
}

// Candidate describes one ledger entry at the end of a run.
type Candidate struct {
	ID    string `json:"id"`
	Rank  int    `json:"rank"`
	State string `json:"state"`
	Size  int64  `json:"size,omitempty"`
	Error string `json:"error,omitempty"`
}

// Outcome describes how the run settled.
type Outcome struct {
	Resolved    bool   `json:"resolved"`
	ID          string `json:"id,omitempty"`
	Rank        int    `json:"rank"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	Elapsed     string `json:"elapsed,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewReport seeds a report with the candidate list in rank order.
func NewReport(ids []string) *Report {
	report := &Report{Candidates: make([]Candidate, len(ids))}
	for i, id := range ids {
		report.Candidates[i] = Candidate{ID: id, Rank: i, State: StatePending}
	}
	return report
}

// Observe folds a resolver notification into the report. Progress events
// are skipped so the transcript stays one line per transition.
func (r *Report) Observe(ev multiplex.Event[string]) {
	switch ev.Kind {
	case multiplex.KindDownloadStarted:
		r.setState(ev.Identifier, StateDownloading)
		r.Events = append(r.Events, fmt.Sprintf("%s %s", ev.Kind, ev.Identifier))
	case multiplex.KindDownloadFinished:
		if ev.Err != nil {
			r.fail(ev.Identifier, ev.Err)
			r.Events = append(r.Events, fmt.Sprintf("%s %s: %s", ev.Kind, ev.Identifier, ev.Err))
			return
		}
		r.setState(ev.Identifier, StateFetched)
		r.Events = append(r.Events, fmt.Sprintf("%s %s", ev.Kind, ev.Identifier))
	case multiplex.KindImageUpdated:
		r.load(ev)
		if ev.HasPrevious {
			r.Events = append(r.Events, fmt.Sprintf("%s %s (replaced %s)", ev.Kind, ev.Identifier, ev.PreviousIdentifier))
			return
		}
		r.Events = append(r.Events, fmt.Sprintf("%s %s", ev.Kind, ev.Identifier))
	case multiplex.KindImageDisplayed, multiplex.KindDisplayFinished:
		r.Events = append(r.Events, fmt.Sprintf("%s %s", ev.Kind, ev.Identifier))
	case multiplex.KindClosed:
		r.Events = append(r.Events, ev.Kind.String())
	}
}

// Settle records the awaited outcome. Resolved runs already carry their
// outcome from the update notification; a settlement error overrides it.
func (r *Report) Settle(err error, elapsed string) {
	r.Outcome.Elapsed = elapsed
	if err != nil {
		r.Outcome = Outcome{Error: err.Error(), Elapsed: elapsed}
	}
}

func (r *Report) setState(id, state string) {
	for i := range r.Candidates {
		if r.Candidates[i].ID == id {
			r.Candidates[i].State = state
			return
		}
	}
}

func (r *Report) fail(id string, err error) {
	for i := range r.Candidates {
		if r.Candidates[i].ID == id {
			r.Candidates[i].State = StateFailed
			r.Candidates[i].Error = err.Error()
			return
		}
	}
}

func (r *Report) load(ev multiplex.Event[string]) {
	for i := range r.Candidates {
		switch r.Candidates[i].ID {
		case ev.Identifier:
			r.Candidates[i].State = StateLoaded
			r.Candidates[i].Size = ev.Image.Size()
			r.Outcome = Outcome{
				Resolved:    true,
				ID:          ev.Identifier,
				Rank:        r.Candidates[i].Rank,
				ContentType: ev.Image.ContentType,
				Size:        ev.Image.Size(),
				SourceURL:   ev.Image.SourceURL,
				Elapsed:     r.Outcome.Elapsed,
			}
		case ev.PreviousIdentifier:
			if ev.HasPrevious && r.Candidates[i].State == StateLoaded {
				r.Candidates[i].State = StateSuperseded
			}
		}
	}
}

// ReportToText converts a Report to plain text format
func ReportToText(report *Report) ([]byte, error) {
	var buf bytes.Buffer

	if report.Outcome.Resolved {
		buf.WriteString(fmt.Sprintf("Outcome: resolved %s (rank %d)\n", report.Outcome.ID, report.Outcome.Rank))
		if report.Outcome.SourceURL != "" {
			buf.WriteString(fmt.Sprintf("Source: %s\n", report.Outcome.SourceURL))
		}
		if report.Outcome.ContentType != "" {
			buf.WriteString(fmt.Sprintf("Type: %s\n", report.Outcome.ContentType))
		}
		if report.Outcome.Size > 0 {
			buf.WriteString(fmt.Sprintf("Size: %s\n", shared.FormatBytes(report.Outcome.Size)))
		}
	} else {
		buf.WriteString("Outcome: unresolved\n")
		if report.Outcome.Error != "" {
			buf.WriteString(fmt.Sprintf("Error: %s\n", report.Outcome.Error))
		}
	}
	if report.Outcome.Elapsed != "" {
		buf.WriteString(fmt.Sprintf("Elapsed: %s\n", report.Outcome.Elapsed))
	}

	buf.WriteString(fmt.Sprintf("\nCandidates: %d\n", len(report.Candidates)))
	for i, c := range report.Candidates {
		buf.WriteString(fmt.Sprintf("%d. %s [rank %d] %s", i+1, c.ID, c.Rank, c.State))
		if c.Size > 0 {
			buf.WriteString(fmt.Sprintf(" (%s)", shared.FormatBytes(c.Size)))
		}
		if c.Error != "" {
			buf.WriteString(fmt.Sprintf(": %s", c.Error))
		}
		buf.WriteString("\n")
	}

	if len(report.Events) > 0 {
		buf.WriteString("\nEvents:\n")
		for i, ev := range report.Events {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, ev))
		}
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown converts a Report to Markdown format
func ReportToMarkdown(report *Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Resolution Report\n\n")

	if report.Outcome.Resolved {
		buf.WriteString(fmt.Sprintf("**Outcome**: resolved `%s` (rank %d)\n", report.Outcome.ID, report.Outcome.Rank))
		if report.Outcome.SourceURL != "" {
			buf.WriteString(fmt.Sprintf("**Source**: %s\n", report.Outcome.SourceURL))
		}
		if report.Outcome.ContentType != "" {
			buf.WriteString(fmt.Sprintf("**Type**: %s\n", report.Outcome.ContentType))
		}
		if report.Outcome.Size > 0 {
			buf.WriteString(fmt.Sprintf("**Size**: %s\n", shared.FormatBytes(report.Outcome.Size)))
		}
	} else {
		buf.WriteString("**Outcome**: unresolved\n")
		if report.Outcome.Error != "" {
			buf.WriteString(fmt.Sprintf("**Error**: %s\n", report.Outcome.Error))
		}
	}
	if report.Outcome.Elapsed != "" {
		buf.WriteString(fmt.Sprintf("**Elapsed**: %s\n", report.Outcome.Elapsed))
	}

	buf.WriteString("\n## Candidates\n\n")
	buf.WriteString("| Rank | ID | State | Size | Error |\n")
	buf.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, c := range report.Candidates {
		size := ""
		if c.Size > 0 {
			size = shared.FormatBytes(c.Size)
		}
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n", c.Rank, c.ID, c.State, size, c.Error))
	}

	if len(report.Events) > 0 {
		buf.WriteString("\n## Events\n\n")
		for i, ev := range report.Events {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, ev))
		}
	}

	return buf.Bytes(), nil
}

// ReportToJSON converts a Report to indented JSON
func ReportToJSON(report *Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteReport writes the report to path, choosing the format from the file
// extension: .json and .md get structured output, everything else plain text.
// Returns the path written.
func WriteReport(report *Report, path string) (string, error) {
	if path == "" {
		path = "report.txt"
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = ReportToJSON(report)
	case ".md", ".markdown":
		data, err = ReportToMarkdown(report)
	default:
		data, err = ReportToText(report)
	}
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// CacheTable renders index rows as an aligned table for `cache ls`
func CacheTable(blobs []*models.Blob) ([]byte, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "SEQ\tURL\tTYPE\tSIZE\tHITS\tACCESSED")
	for _, b := range blobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			b.Sequence(), b.URL(), b.ContentType(), shared.FormatBytes(b.Size()), b.Hits(),
			b.AccessedAt().Format("2006-01-02 15:04"))
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to render table: %w", err)
	}
	return buf.Bytes(), nil
}

// CacheEntry is the JSON view of one cache index row.
type CacheEntry struct {
	Sequence    int       `json:"sequence"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Hits        int64     `json:"hits"`
	ETag        string    `json:"etag,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
}

// CacheEntries converts index rows for `cache ls --json`
func CacheEntries(blobs []*models.Blob) []CacheEntry {
	entries := make([]CacheEntry, 0, len(blobs))
	for _, b := range blobs {
		entries = append(entries, CacheEntry{
			Sequence:    b.Sequence(),
			URL:         b.URL(),
			ContentType: b.ContentType(),
			Size:        b.Size(),
			Hits:        b.Hits(),
			ETag:        b.ETag(),
			CreatedAt:   b.CreatedAt(),
			AccessedAt:  b.AccessedAt(),
		})
	}
	return entries
}

// StatsText renders aggregate cache statistics for `cache info`
func StatsText(stats *models.CacheStats) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Blobs: %d\n", stats.Blobs))
	buf.WriteString(fmt.Sprintf("Total size: %s\n", shared.FormatBytes(stats.TotalSize)))
	buf.WriteString(fmt.Sprintf("Total hits: %d\n", stats.TotalHits))
	if !stats.Oldest.IsZero() {
		buf.WriteString(fmt.Sprintf("Oldest: %s\n", stats.Oldest.Format("2006-01-02 15:04")))
	}
	if !stats.Newest.IsZero() {
		buf.WriteString(fmt.Sprintf("Newest: %s\n", stats.Newest.Format("2006-01-02 15:04")))
	}

	return buf.Bytes(), nil
}
