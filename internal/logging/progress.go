package logging

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"

	"gamesync/internal/engine"
)

// Progress prints one line per processed item and a closing summary.
// Colors are only emitted when w is a terminal.
type Progress struct {
	w     io.Writer
	label string

	ok   lipgloss.Style
	dup  lipgloss.Style
	fail lipgloss.Style
	head lipgloss.Style
}

// NewProgress creates a progress printer. label names the media in the
// summary line, e.g. "Screenshots".
func NewProgress(w io.Writer, label string) *Progress {
	r := lipgloss.NewRenderer(w)
	return &Progress{
		w:     w,
		label: label,
		ok:    r.NewStyle().Foreground(lipgloss.Color("2")),
		dup:   r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("1")),
		head:  r.NewStyle().Bold(true),
	}
}

// Item reports one result. It has the signature engine.WithReporter expects.
func (p *Progress) Item(res engine.ItemResult) {
	name := filepath.Base(res.Record.Identity)
	switch res.Outcome {
	case engine.OutcomeOK:
		fmt.Fprintf(p.w, "%s %s\n", p.ok.Render("✓"), name)
	case engine.OutcomeDuplicate:
		fmt.Fprintf(p.w, "%s %s %s\n", p.dup.Render("✓"), name, p.dup.Render("(duplicate)"))
	default:
		fmt.Fprintf(p.w, "%s %s: %v\n", p.fail.Render("✗"), name, res.Err)
	}
}

// Summary prints the closing counts line.
func (p *Progress) Summary(s engine.Summary) {
	fmt.Fprintf(p.w, "%s %d ok, %d duplicates, %d failed / %d\n",
		p.head.Render(p.label+":"), s.OK, s.Duplicate, s.Failed, s.Total)
}

// Nothing prints the line shown when discovery found nothing new.
func (p *Progress) Nothing() {
	fmt.Fprintf(p.w, "%s nothing new\n", p.head.Render(p.label+":"))
}
