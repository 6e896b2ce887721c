// package ui renders styled terminal output for enrichment summaries.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"genrify/internal/stats"
	"genrify/internal/taxonomy"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

const barWidth = 24

// RenderSummary renders the genre distribution as a styled table with
// proportional bars.
func RenderSummary(summary stats.Summary) string {
	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("Genre distribution (%d tracks)", summary.Total)))
	b.WriteString("\n")

	if summary.Total == 0 {
		b.WriteString(styles.help.Render("no tracks"))
		b.WriteString("\n")
		return b.String()
	}

	nameWidth := len("Genre")
	for _, row := range summary.Genres {
		if len(row.Genre) > nameWidth {
			nameWidth = len(row.Genre)
		}
	}

	b.WriteString(styles.help.Render(fmt.Sprintf("%-*s  %5s  %7s", nameWidth, "Genre", "Count", "Percent")))
	b.WriteString("\n")
	for _, row := range summary.Genres {
		bar := strings.Repeat("█", int(row.Percent/100*barWidth+0.5))
		style := styles.ok
		if row.Genre == "Unknown" {
			style = styles.warn
		}
		b.WriteString(fmt.Sprintf("%-*s  %5d  %6.1f%%  %s\n",
			nameWidth, row.Genre, row.Count, row.Percent, style.Render(bar)))
	}

	if len(summary.Subgenres) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.help.Render("Subgenres"))
		b.WriteString("\n")
		for _, row := range summary.Subgenres {
			b.WriteString(fmt.Sprintf("  %s / %s: %d (%.1f%%)\n", row.Genre, row.Subgenre, row.Count, row.Percent))
		}
	}
	return b.String()
}

// RenderTaxonomy renders the genre tree and alias table for inspection.
func RenderTaxonomy(tax *taxonomy.Taxonomy) string {
	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("Taxonomy %s", tax.Version())))
	b.WriteString("\n")

	for _, genre := range tax.Genres() {
		b.WriteString(styles.ok.Render(genre))
		b.WriteString("\n")
		for _, sub := range tax.SubgenresOf(genre) {
			b.WriteString(fmt.Sprintf("  %s\n", sub))
		}
	}

	aliases := tax.Aliases()
	if len(aliases) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.help.Render(fmt.Sprintf("%d aliases", len(aliases))))
		b.WriteString("\n")
		for _, alias := range aliases {
			b.WriteString(fmt.Sprintf("  %s\n", alias))
		}
	}
	return b.String()
}
