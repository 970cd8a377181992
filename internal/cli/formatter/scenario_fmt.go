package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/scenario"
)

// TreeItems converts a scenario forest into display rows in walk order.
func TreeItems(roots []*scenario.TreeNode) []TreeItem {
	var items []TreeItem
	var lastAt []bool
	scenario.Walk(roots, func(n *scenario.TreeNode, level int, last bool) bool {
		lastAt = append(lastAt[:level], last)
		open := make([]bool, 0, level)
		for i := 1; i < level; i++ {
			open = append(open, !lastAt[i])
		}

		detail := "root"
		if n.BranchedAtStep != nil {
			detail = fmt.Sprintf("from step %d", *n.BranchedAtStep)
		}
		if len(n.ChangedSteps) > 0 {
			detail += " · edits " + FormatSteps(n.ChangedSteps)
		}
		if n.IsOrphan {
			detail += " · orphan"
		}

		items = append(items, TreeItem{
			Title:  n.Name + " " + TruncID(n.ID),
			Level:  level,
			IsLast: last,
			Open:   open,
			Status: string(n.Status),
			Active: n.IsActive,
			Detail: detail,
		})
		return true
	})
	return items
}

// FormatScenarioTree renders a project's scenario forest inside a box.
func FormatScenarioTree(p *domain.Project, tree *app.ScenarioTree) string {
	var b strings.Builder
	b.WriteString(Bold(p.Name) + "  " + Dim(p.DisplayID()) + "\n")
	b.WriteString(Dim(fmt.Sprintf("revision %d · %d scenarios", tree.Revision, scenario.Count(tree.Roots))) + "\n\n")

	body := RenderTree(TreeItems(tree.Roots))
	if body == "" {
		body = Dim("No scenarios yet.") + "\n"
	}
	b.WriteString(body)
	return RenderBox("Scenarios", strings.TrimRight(b.String(), "\n"))
}

// FormatProjectList renders the project list as a table inside a box.
func FormatProjectList(projects []*domain.Project) string {
	if len(projects) == 0 {
		return Dim("No projects.")
	}
	cols := Columns("ID", "NAME", "ACTIVE", "REVISION", "CREATED")
	cols[3].Right = true
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		active := Dim("--")
		if p.ActiveScenarioID != nil {
			active = TruncID(*p.ActiveScenarioID)
		}
		rows = append(rows, []string{
			p.DisplayID(),
			Bold(p.Name),
			active,
			fmt.Sprint(p.Revision),
			HumanDate(p.CreatedAt),
		})
	}
	return RenderBox("Projects", RenderColumns(cols, rows))
}

// FormatNode renders the metadata of one scenario node.
func FormatNode(n *domain.ScenarioNode) string {
	var b strings.Builder
	b.WriteString(Bold(n.Name) + "  " + StatusPill(n.Status) + "\n")
	if n.Description != "" {
		b.WriteString(n.Description + "\n")
	}
	b.WriteString("\n")

	field := func(label, value string) {
		b.WriteString(fmt.Sprintf("%s  %s\n", StyleDim.Render(fmt.Sprintf("%-8s", label)), value))
	}
	field("ID", n.ID)
	if n.ParentNodeID != nil {
		field("PARENT", *n.ParentNodeID)
	}
	if n.BranchedAtStep != nil {
		field("STEP", fmt.Sprint(*n.BranchedAtStep))
	}
	field("DEPTH", fmt.Sprint(n.TreeDepth))
	field("ROLE", RoleBadge(n.CreatorRole))
	if n.CreatedBy != "" {
		field("BY", n.CreatedBy)
	}
	field("CREATED", HumanTimestamp(n.CreatedAt))
	if n.FrozenAt != nil {
		field("FROZEN", HumanTimestamp(*n.FrozenAt))
	}
	if n.SelectedAt != nil {
		field("SELECTED", HumanTimestamp(*n.SelectedAt))
	}
	return RenderBox("Scenario", strings.TrimRight(b.String(), "\n"))
}

// FormatResolved renders the effective configuration of a scenario, one
// row per step with its provenance.
func FormatResolved(res *scenario.ResolvedScenario) string {
	cols := Columns("STEP", "ORIGIN", "SOURCE", "CONFIG")
	cols[0].Right = true
	rows := make([][]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		source := Dim("--")
		if s.SourceNodeID != nil {
			source = TruncID(*s.SourceNodeID)
		}
		rows = append(rows, []string{
			fmt.Sprint(s.StepNumber),
			originLabel(s.Origin),
			source,
			summarize(string(s.StepConfig), 48),
		})
	}
	return RenderBox("Resolved "+ShortID(res.ScenarioID), RenderColumns(cols, rows))
}

func originLabel(o scenario.StepOrigin) string {
	switch o {
	case scenario.OriginChanged:
		return StyleYellow.Render("changed")
	case scenario.OriginInherited:
		return StyleBlue.Render("inherited")
	default:
		return Dim("empty")
	}
}

// summarize flattens a JSON payload to one line no wider than width runes.
func summarize(raw string, width int) string {
	if raw == "" {
		return Dim("--")
	}
	line := strings.Join(strings.Fields(raw), " ")
	r := []rune(line)
	if len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return line
}

// FormatNotifications renders a notification feed as a table.
func FormatNotifications(items []*domain.Notification) string {
	if len(items) == 0 {
		return Dim("No notifications.")
	}
	headers := []string{"", "TYPE", "SCENARIO", "FOR", "BY", "WHEN"}
	rows := make([][]string, 0, len(items))
	for _, n := range items {
		mark := StyleYellow.Render("●")
		if n.IsRead {
			mark = Dim("○")
		}
		node := Dim("--")
		if n.ScenarioNodeID != nil {
			node = TruncID(*n.ScenarioNodeID)
		}
		recipient := Dim("everyone")
		if n.RecipientRole != nil {
			recipient = RoleBadge(*n.RecipientRole)
		}
		actor := n.Actor
		if actor == "" {
			actor = Dim("--")
		}
		rows = append(rows, []string{
			mark,
			strings.ReplaceAll(strings.TrimPrefix(string(n.Type), "scenario_"), "_", " "),
			node,
			recipient,
			actor,
			HumanTimestamp(n.CreatedAt),
		})
	}
	return RenderTable(headers, rows)
}
