package formatter

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TreeItem represents a single node in a tree display.
type TreeItem struct {
	Title  string
	Level  int
	IsLast bool
	// Open holds, for each ancestor level below the root, whether that
	// ancestor still has siblings to come and so needs a vertical guide.
	Open   []bool
	Status string
	Active bool
	Detail string
}

const (
	treeBranch = "├─ "
	treeCorner = "└─ "
	treePipe   = "│  "
	treeBlank  = "   "
)

// RenderTree renders a list of TreeItems as an indented tree using
// box-drawing characters for connectors. Selected items get a green ✔
// prefix, proposed items an amber ▶ prefix, the active item a ★ suffix,
// and detail badges are right-aligned.
func RenderTree(items []TreeItem) string {
	if len(items) == 0 {
		return ""
	}

	type lineInfo struct {
		content string
		badge   string
	}

	lines := make([]lineInfo, len(items))
	maxContentWidth := 0

	// Pass 1: build each line's content and track max visible width.
	for idx, item := range items {
		var prefix string
		if item.Level > 0 {
			for i := 1; i < item.Level; i++ {
				if i-1 < len(item.Open) && !item.Open[i-1] {
					prefix += treeBlank
				} else {
					prefix += treePipe
				}
			}
			if item.IsLast {
				prefix += treeCorner
			} else {
				prefix += treeBranch
			}
		}

		title := item.Title
		statusPrefix := ""
		switch strings.ToLower(item.Status) {
		case "selected":
			statusPrefix = StyleGreen.Render("✔ ")
			title = StyleBold.Render(title)
		case "proposed":
			statusPrefix = StyleYellowBold.Render("▶ ")
			title = StyleYellowBold.Render(title)
		case "frozen":
			statusPrefix = StyleBlue.Render("❄ ")
			title = Dim(title)
		}
		if item.Active {
			title += StyleYellow.Render(" ★")
		}

		content := prefix + statusPrefix + title
		lines[idx].content = content

		if item.Detail != "" {
			lines[idx].badge = StyleBlue.Render("[ " + item.Detail + " ]")
		}

		if w := lipgloss.Width(content); w > maxContentWidth {
			maxContentWidth = w
		}
	}

	// Pass 2: render with right-aligned badges.
	var b strings.Builder
	for _, li := range lines {
		if li.badge != "" {
			pad := maxContentWidth - lipgloss.Width(li.content)
			if pad < 0 {
				pad = 0
			}
			b.WriteString(li.content + strings.Repeat(" ", pad) + "  " + li.badge + "\n")
		} else {
			b.WriteString(li.content + "\n")
		}
	}

	return b.String()
}
