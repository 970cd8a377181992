package formatter

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const colGap = 2

// Column describes one table column. Right-aligned columns suit counters
// and step numbers.
type Column struct {
	Title string
	Right bool
}

// Columns builds left-aligned columns from plain titles.
func Columns(titles ...string) []Column {
	cols := make([]Column, len(titles))
	for i, t := range titles {
		cols[i] = Column{Title: t}
	}
	return cols
}

// RenderTable renders a left-aligned table with a header separator line.
func RenderTable(headers []string, rows [][]string) string {
	return RenderColumns(Columns(headers...), rows)
}

// RenderColumns renders rows under cols. Widths are measured on visible
// text, so styled cells line up. Missing cells render empty; extra cells
// are ignored.
func RenderColumns(cols []Column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c.Title)
	}
	for _, row := range rows {
		for i := range min(len(row), len(cols)) {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style *lipgloss.Style) {
		for i, c := range cols {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if style != nil {
				cell = style.Render(cell)
			}
			last := i == len(cols)-1
			switch {
			case c.Right:
				b.WriteString(pad + cell)
			case last:
				b.WriteString(cell)
			default:
				b.WriteString(cell + pad)
			}
			if !last {
				b.WriteString(strings.Repeat(" ", colGap))
			}
		}
		b.WriteString("\n")
	}

	titles := make([]string, len(cols))
	rules := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.Title
		rules[i] = strings.Repeat("─", widths[i])
	}
	writeRow(titles, &StyleHeader)
	writeRow(rules, &StyleDim)
	for _, row := range rows {
		writeRow(row, nil)
	}
	return b.String()
}
