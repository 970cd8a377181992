package formatter

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ansiPattern matches ANSI escape sequences so assertions are terminal-independent.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestRenderTree_Guides(t *testing.T) {
	items := []TreeItem{
		{Title: "Baseline", Level: 0, IsLast: true},
		{Title: "A", Level: 1},
		{Title: "A1", Level: 2, IsLast: true, Open: []bool{true}},
		{Title: "B", Level: 1, IsLast: true},
		{Title: "B1", Level: 2, IsLast: true, Open: []bool{false}},
	}
	want := "Baseline\n" +
		"├─ A\n" +
		"│  └─ A1\n" +
		"└─ B\n" +
		"   └─ B1\n"
	assert.Equal(t, want, stripANSI(RenderTree(items)))
}

func TestRenderTree_StatusMarkersAndBadges(t *testing.T) {
	out := stripANSI(RenderTree([]TreeItem{
		{Title: "Root", Status: "frozen", Detail: "root"},
		{Title: "Pick", Level: 1, IsLast: true, Status: "selected", Active: true, Detail: "from step 3"},
	}))
	assert.Contains(t, out, "❄ Root")
	assert.Contains(t, out, "└─ ✔ Pick ★")
	assert.Contains(t, out, "[ from step 3 ]")
	assert.Empty(t, RenderTree(nil))
}

func TestTreeItems_FromForest(t *testing.T) {
	grandchild := &scenario.TreeNode{ID: "gc", Name: "Grandchild", BranchedAtStep: intPtr(5), TreeDepth: 2}
	a := &scenario.TreeNode{ID: "a", Name: "A", BranchedAtStep: intPtr(2), TreeDepth: 1, ChangedSteps: []int{2, 4}}
	b := &scenario.TreeNode{ID: "b", Name: "B", BranchedAtStep: intPtr(3), TreeDepth: 1, Children: []*scenario.TreeNode{grandchild}, IsActive: true}
	root := &scenario.TreeNode{ID: "root", Name: "Baseline", Children: []*scenario.TreeNode{a, b}}

	items := TreeItems([]*scenario.TreeNode{root})
	require.Len(t, items, 4)

	assert.Equal(t, 0, items[0].Level)
	assert.Equal(t, "root", items[0].Detail)
	assert.Equal(t, "from step 2 · edits 2, 4", items[1].Detail)
	assert.False(t, items[1].IsLast)
	assert.True(t, items[2].IsLast)
	assert.True(t, items[2].Active)
	assert.Equal(t, 2, items[3].Level)
	assert.Equal(t, []bool{false}, items[3].Open, "B is the last child so no guide runs past it")
}

func TestRenderTable_Alignment(t *testing.T) {
	got := stripANSI(RenderTable([]string{"A", "BB"}, [][]string{{"xxx", "y"}}))
	assert.Equal(t, "A    BB\n───  ──\nxxx  y\n", got)
	assert.Empty(t, RenderTable(nil, nil))
}

func TestRenderColumns_RightAlignAndRagged(t *testing.T) {
	cols := Columns("STEP", "NAME")
	cols[0].Right = true
	got := stripANSI(RenderColumns(cols, [][]string{{"7", "long name"}, {"12"}}))
	assert.Equal(t, "STEP  NAME\n────  ─────────\n   7  long name\n  12  \n", got)
}

func TestHumanTimestampFrom(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"just now", now.Add(-10 * time.Second), "Just now"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-3 * time.Hour), "3h ago"},
		{"yesterday", now.Add(-30 * time.Hour), "Yesterday"},
		{"older", time.Date(2025, 9, 30, 8, 0, 0, 0, time.UTC), "Sep 30, 2025"},
		{"future today", now.Add(time.Hour), "Today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HumanTimestampFrom(tt.at, now))
		})
	}
}

func TestFormatSteps(t *testing.T) {
	assert.Equal(t, "1, 3, 7", FormatSteps([]int{1, 3, 7}))
	assert.Equal(t, "--", stripANSI(FormatSteps(nil)))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, `{ "a": 1 }`, summarize("{\n  \"a\": 1\n}", 20))
	assert.Equal(t, "abcd…", summarize("abcdefgh", 5))
	assert.Equal(t, "--", stripANSI(summarize("", 5)))
}

func TestFormatResolved(t *testing.T) {
	res := &scenario.ResolvedScenario{ScenarioID: "node-1234567890"}
	for step := domain.FirstStep; step <= domain.LastStep; step++ {
		res.Steps = append(res.Steps, scenario.ResolvedStep{StepNumber: step, Origin: scenario.OriginEmpty})
	}
	res.Steps[0] = scenario.ResolvedStep{StepNumber: 1, StepConfig: json.RawMessage(`{"vendor":"acme"}`),
		SourceNodeID: strPtr("root-abcdefgh"), SourceDepth: intPtr(0), Origin: scenario.OriginInherited}
	res.Steps[2] = scenario.ResolvedStep{StepNumber: 3, StepConfig: json.RawMessage(`{"qty":4}`),
		SourceNodeID: strPtr("node-1234567890"), SourceDepth: intPtr(1), Origin: scenario.OriginChanged}

	out := stripANSI(FormatResolved(res))
	assert.Contains(t, out, "RESOLVED NODE-123")
	assert.Contains(t, out, "inherited")
	assert.Contains(t, out, "changed")
	assert.Contains(t, out, "empty")
	assert.Contains(t, out, `{"vendor":"acme"}`)
	assert.Contains(t, out, "root-abc")
}

func TestFormatNotifications(t *testing.T) {
	client := domain.RoleClient
	out := stripANSI(FormatNotifications([]*domain.Notification{
		{ID: "1", Type: domain.NotifyScenarioProposed, RecipientRole: &client, Actor: "sup-1", CreatedAt: time.Now()},
		{ID: "2", Type: domain.NotifyScenarioSelected, IsRead: true, CreatedAt: time.Now()},
	}))
	assert.Contains(t, out, "proposed")
	assert.Contains(t, out, "Client")
	assert.Contains(t, out, "everyone")
	assert.Contains(t, out, "selected")
	assert.Equal(t, "No notifications.", stripANSI(FormatNotifications(nil)))
}

func TestFormatProjectList(t *testing.T) {
	active := "abcdef1234"
	out := stripANSI(FormatProjectList([]*domain.Project{
		{ID: "p-1", ShortID: "PRJ01", Name: "Warehouse", ActiveScenarioID: &active, Revision: 4, CreatedAt: time.Now()},
	}))
	assert.Contains(t, out, "PRJ01")
	assert.Contains(t, out, "Warehouse")
	assert.Contains(t, out, "abcdef12")
	assert.Contains(t, out, "4")
}

func TestStatusPill(t *testing.T) {
	assert.Equal(t, "● selected", stripANSI(StatusPill(domain.ScenarioSelected)))
	assert.Equal(t, "○ draft", stripANSI(StatusPill(domain.ScenarioDraft)))
	assert.Equal(t, "❄ frozen", stripANSI(StatusPill(domain.ScenarioFrozen)))
	assert.Equal(t, "archived", stripANSI(StatusPill("archived")))
	assert.Equal(t, "Supplier", stripANSI(RoleBadge(domain.RoleSupplier)))
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, StyleGreen.GetForeground(), StatusColor(domain.ScenarioSelected).GetForeground())
	assert.Equal(t, StyleYellow.GetForeground(), StatusColor(domain.ScenarioProposed).GetForeground())
	assert.Equal(t, StyleBlue.GetForeground(), StatusColor(domain.ScenarioFrozen).GetForeground())
	assert.Equal(t, StyleDim.GetForeground(), StatusColor(domain.ScenarioDraft).GetForeground())
}

func TestFormatScenarioTree_CountsScenarios(t *testing.T) {
	r := &domain.ScenarioNode{ID: "root-0001", Name: "Baseline", Status: domain.ScenarioDraft}
	step := 2
	c := &domain.ScenarioNode{ID: "child-001", ParentNodeID: &r.ID, Name: "Cheaper", Status: domain.ScenarioProposed, BranchedAtStep: &step, TreeDepth: 1}
	tree := &app.ScenarioTree{
		Roots:     scenario.BuildTree([]*domain.ScenarioNode{r, c}, nil, nil),
		FlatNodes: []*domain.ScenarioNode{r, c},
		Revision:  4,
	}
	out := stripANSI(FormatScenarioTree(&domain.Project{Name: "Fit-out", ShortID: "FIT01"}, tree))
	assert.Contains(t, out, "revision 4 · 2 scenarios")
	assert.Contains(t, out, "Cheaper")
	assert.Contains(t, out, "from step 2")
}
