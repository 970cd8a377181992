package scenario

import (
	"encoding/json"
	"testing"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveNode(t *testing.T, nodes []*domain.ScenarioNode, deltas []*domain.ScenarioDelta, id string) *ResolvedScenario {
	t.Helper()
	chain, err := NewArena(nodes).Chain(id)
	require.NoError(t, err)
	resolved, err := Resolve(chain, deltas)
	require.NoError(t, err)
	return resolved
}

func TestResolve_EndToEndChain(t *testing.T) {
	r := rootNode("R")
	a := childNode("A", r, 3, 1)
	b := childNode("B", a, 5, 2)
	nodes := []*domain.ScenarioNode{r, a, b}
	deltas := []*domain.ScenarioDelta{
		delta(r, 1, `{"v":"R1"}`),
		delta(r, 2, `{"v":"R2"}`),
		delta(a, 3, `{"v":"A3"}`),
		delta(b, 5, `{"v":"B5"}`),
	}

	got := resolveNode(t, nodes, deltas, "B")
	require.Len(t, got.Steps, domain.StepCount)
	assert.Equal(t, "B", got.ScenarioID)

	wantSource := map[int]string{1: "R", 2: "R", 3: "A", 5: "B"}
	wantDepth := map[int]int{1: 0, 2: 0, 3: 1, 5: 2}
	for _, s := range got.Steps {
		src, ok := wantSource[s.StepNumber]
		if !ok {
			assert.True(t, s.IsEmpty(), "step %d should be empty", s.StepNumber)
			assert.Equal(t, OriginEmpty, s.Origin)
			assert.Nil(t, s.StepConfig)
			continue
		}
		require.NotNil(t, s.SourceNodeID, "step %d", s.StepNumber)
		assert.Equal(t, src, *s.SourceNodeID, "step %d", s.StepNumber)
		assert.Equal(t, wantDepth[s.StepNumber], *s.SourceDepth, "step %d", s.StepNumber)
	}
	assert.Equal(t, OriginChanged, got.Step(5).Origin)
	assert.Equal(t, OriginInherited, got.Step(1).Origin)
	assert.True(t, got.Step(4).IsEmpty())
	assert.JSONEq(t, `{"v":"A3"}`, string(got.Step(3).StepConfig))
}

func TestResolve_ClosestWins(t *testing.T) {
	r := rootNode("R")
	a := childNode("A", r, 2, 1)
	nodes := []*domain.ScenarioNode{r, a}
	deltas := []*domain.ScenarioDelta{
		delta(r, 3, `{"v":"root"}`),
		delta(a, 3, `{"v":"child"}`),
	}

	fromA := resolveNode(t, nodes, deltas, "A")
	assert.JSONEq(t, `{"v":"child"}`, string(fromA.Step(3).StepConfig))
	assert.Equal(t, "A", *fromA.Step(3).SourceNodeID)

	fromR := resolveNode(t, nodes, deltas, "R")
	assert.JSONEq(t, `{"v":"root"}`, string(fromR.Step(3).StepConfig))
	assert.Equal(t, "R", *fromR.Step(3).SourceNodeID)
}

func TestResolve_RootYieldsOwnDeltasOnly(t *testing.T) {
	r := rootNode("R")
	a := childNode("A", r, 2, 1)
	deltas := []*domain.ScenarioDelta{
		delta(r, 1, `{"v":1}`),
		delta(r, 6, `{"v":6}`),
		delta(a, 2, `{"v":"child"}`),
	}

	got := resolveNode(t, []*domain.ScenarioNode{r, a}, deltas, "R")
	for _, s := range got.Steps {
		switch s.StepNumber {
		case 1, 6:
			assert.Equal(t, OriginChanged, s.Origin)
			assert.Equal(t, "R", *s.SourceNodeID)
		default:
			assert.True(t, s.IsEmpty(), "step %d", s.StepNumber)
		}
	}
}

func TestResolve_NoDeltasAnywhereIsAllEmpty(t *testing.T) {
	r := rootNode("R")
	got := resolveNode(t, []*domain.ScenarioNode{r}, nil, "R")
	require.Len(t, got.Steps, domain.StepCount)
	for _, s := range got.Steps {
		assert.True(t, s.IsEmpty())
	}
	assert.Empty(t, got.StepConfigs())
	assert.Empty(t, got.ManualData())
}

func TestResolve_Idempotent(t *testing.T) {
	r := rootNode("R")
	a := childNode("A", r, 2, 1)
	nodes := []*domain.ScenarioNode{r, a}
	deltas := []*domain.ScenarioDelta{delta(r, 1, `{"x":1}`), delta(a, 4, `{"y":2}`)}

	first := resolveNode(t, nodes, deltas, "A")
	second := resolveNode(t, nodes, deltas, "A")
	assert.Equal(t, first, second)
}

func TestResolve_WholeStepReplace(t *testing.T) {
	r := rootNode("R")
	a := childNode("A", r, 2, 1)
	deltas := []*domain.ScenarioDelta{
		delta(r, 2, `{"supplier":"acme","qty":10}`),
		delta(a, 2, `{"qty":20}`),
	}
	got := resolveNode(t, []*domain.ScenarioNode{r, a}, deltas, "A")
	assert.JSONEq(t, `{"qty":20}`, string(got.Step(2).StepConfig), "fields must not be merged across levels")
}

func TestResolve_CorruptPayloadSurfaces(t *testing.T) {
	r := rootNode("R")
	a := childNode("A", r, 2, 1)
	bad := delta(a, 3, `{"broken":`)
	chain, err := NewArena([]*domain.ScenarioNode{r, a}).Chain("A")
	require.NoError(t, err)

	_, err = Resolve(chain, []*domain.ScenarioDelta{delta(r, 3, `{"ok":true}`), bad})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataCorruption)

	badManual := delta(a, 4, `{}`)
	badManual.ManualData = json.RawMessage(`not json`)
	_, err = Resolve(chain, []*domain.ScenarioDelta{badManual})
	assert.ErrorIs(t, err, domain.ErrDataCorruption)
}

func TestResolve_DeltaBeforeBranchPointIsInconsistent(t *testing.T) {
	r := rootNode("R")
	a := childNode("A", r, 4, 1)
	chain, err := NewArena([]*domain.ScenarioNode{r, a}).Chain("A")
	require.NoError(t, err)

	_, err = Resolve(chain, []*domain.ScenarioDelta{delta(a, 2, `{}`)})
	assert.ErrorIs(t, err, domain.ErrInconsistent)
}

func TestResolve_DuplicateDeltaIsInconsistent(t *testing.T) {
	r := rootNode("R")
	chain := []*domain.ScenarioNode{r}
	_, err := Resolve(chain, []*domain.ScenarioDelta{delta(r, 1, `{}`), delta(r, 1, `{}`)})
	assert.ErrorIs(t, err, domain.ErrInconsistent)
}

func TestResolve_IgnoresDeltasOutsideChain(t *testing.T) {
	r := rootNode("R")
	a := childNode("A", r, 2, 1)
	b := childNode("B", r, 2, 2)
	got := resolveNode(t, []*domain.ScenarioNode{r, a, b},
		[]*domain.ScenarioDelta{delta(b, 2, `{"sibling":true}`)}, "A")
	assert.True(t, got.Step(2).IsEmpty())
}

func TestResolve_EmptyChain(t *testing.T) {
	_, err := Resolve(nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestResolvedStep_Lookup(t *testing.T) {
	r := rootNode("R")
	d := delta(r, 1, `{"items":[{"sku":"X-1"}]}`)
	d.ManualData = json.RawMessage(`{"budget":1250.5}`)
	got := resolveNode(t, []*domain.ScenarioNode{r}, []*domain.ScenarioDelta{d}, "R")

	res, err := got.Step(1).Lookup("manual_data.budget")
	require.NoError(t, err)
	assert.Equal(t, 1250.5, res.Float())

	res, err = got.Step(1).Lookup("step_config.items.0.sku")
	require.NoError(t, err)
	assert.Equal(t, "X-1", res.String())

	res, err = got.Step(1).Lookup("uploaded_files.0.name")
	require.NoError(t, err)
	assert.Equal(t, "spec.pdf", res.String())

	res, err = got.Step(2).Lookup("manual_data.budget")
	require.NoError(t, err)
	assert.False(t, res.Exists())
}

func TestResolvedScenario_Maps(t *testing.T) {
	r := rootNode("R")
	got := resolveNode(t, []*domain.ScenarioNode{r},
		[]*domain.ScenarioDelta{delta(r, 2, `{"a":1}`), delta(r, 5, `{"b":2}`)}, "R")
	configs := got.StepConfigs()
	assert.Len(t, configs, 2)
	assert.JSONEq(t, `{"a":1}`, string(configs[2]))
	assert.Len(t, got.ManualData(), 2)
	assert.Nil(t, got.Step(0))
	assert.Nil(t, got.Step(8))
}

func TestResolvedScenario_LookupByStep(t *testing.T) {
	r := rootNode("R")
	got := resolveNode(t, []*domain.ScenarioNode{r},
		[]*domain.ScenarioDelta{delta(r, 3, `{"qty":4}`)}, "R")

	res, err := got.Lookup(3, "step_config.qty")
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Int())

	_, err = got.Lookup(9, "step_config.qty")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
