package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alexanderramin/branchplan/internal/contract"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/repository"
	"github.com/alexanderramin/branchplan/internal/service"
	"github.com/alexanderramin/branchplan/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	handler http.Handler
	reg     *prometheus.Registry
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	database := testutil.NewTestDB(t)
	uow := testutil.NewTestUoW(database)
	projects := repository.NewSQLProjectRepo(database)

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	srv := NewServer(Deps{
		Projects: service.NewProjectService(projects, uow),
		Scenarios: service.NewScenarioService(
			projects,
			repository.NewSQLScenarioNodeRepo(database),
			repository.NewSQLNotificationRepo(database),
			uow,
			service.ScenarioConfig{},
		),
		Imports:  service.NewImportService(projects, uow, service.ScenarioConfig{}),
		Gatherer: reg,
		Metrics:  metrics,
		Ping:     database.PingContext,
	})
	return &testAPI{handler: srv.Handler(), reg: reg}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

// seedProject creates a project with a root over the API.
func (a *testAPI) seedProject(t *testing.T) contract.ProjectResponse {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/projects", contract.CreateProjectRequest{
		Name:    "Warehouse",
		ShortID: "WRH01",
		Root:    &contract.RootRequest{Name: "Baseline", CreatorRole: domain.RoleManager, CreatedBy: "m1"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	p := decode[contract.ProjectResponse](t, rr)
	require.NotNil(t, p.Root)
	return p
}

func (a *testAPI) branch(t *testing.T, parentID string, step int, name string) contract.NodeResponse {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/scenarios/"+parentID+"/branches", contract.CreateBranchRequest{
		BranchAtStep: step, Name: name, CreatorRole: domain.RoleSupplier, CreatedBy: "s1",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[contract.NodeResponse](t, rr)
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestHealthEndpoint_StorageDown(t *testing.T) {
	srv := NewServer(Deps{Ping: func(context.Context) error { return errors.New("database is closed") }})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "database is closed")
}

func TestProjects_CreateListGet(t *testing.T) {
	api := newTestAPI(t)
	p := api.seedProject(t)
	assert.Equal(t, 1, p.Revision)
	assert.Equal(t, 0, p.Root.TreeDepth)

	rr := api.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]contract.ProjectResponse](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	rr = api.do(t, http.MethodGet, "/api/projects/WRH01", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, p.ID, decode[contract.ProjectResponse](t, rr).ID)

	rr = api.do(t, http.MethodPost, "/api/projects", contract.CreateProjectRequest{Name: "Bad", ShortID: "bad"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestScenarioFlow_BranchEditResolve(t *testing.T) {
	api := newTestAPI(t)
	p := api.seedProject(t)
	rootID := p.Root.ID

	rr := api.do(t, http.MethodPut, "/api/scenarios/"+rootID+"/steps/2", contract.StepRequest{
		StepConfig: json.RawMessage(`{"budget":{"total":100}}`), ChangedBy: "m1",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	delta := decode[contract.DeltaResponse](t, rr)
	assert.Equal(t, 2, delta.StepNumber)

	a := api.branch(t, rootID, 3, "A")
	assert.Equal(t, []string{rootID}, a.TreePath)

	rr = api.do(t, http.MethodGet, "/api/scenarios/"+a.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resolved := decode[map[string]any](t, rr)
	steps := resolved["steps"].([]any)
	require.Len(t, steps, domain.StepCount)
	assert.Equal(t, "inherited", steps[1].(map[string]any)["origin"])

	rr = api.do(t, http.MethodGet, "/api/scenarios/"+a.ID+"/resolve?step=2&path=step_config.budget.total", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	lookup := decode[map[string]any](t, rr)
	assert.Equal(t, true, lookup["exists"])
	assert.Equal(t, float64(100), lookup["value"])

	rr = api.do(t, http.MethodGet, "/api/scenarios/"+a.ID+"/resolve?step=9&path=x", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/projects/"+p.ID+"/scenarios/tree", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	tree := decode[map[string]any](t, rr)
	roots := tree["roots"].([]any)
	require.Len(t, roots, 1)
	assert.Len(t, roots[0].(map[string]any)["children"], 1)
}

func TestScenarioFlow_StatusAndErrors(t *testing.T) {
	api := newTestAPI(t)
	p := api.seedProject(t)
	a := api.branch(t, p.Root.ID, 2, "A")

	rr := api.do(t, http.MethodPost, "/api/scenarios/"+a.ID+"/status", contract.TransitionRequest{Status: domain.ScenarioSelected})
	assert.Equal(t, http.StatusConflict, rr.Code)
	errResp := decode[contract.ErrorResponse](t, rr)
	assert.Equal(t, domain.KindConflict, errResp.Code)

	for _, s := range []domain.ScenarioStatus{domain.ScenarioProposed, domain.ScenarioSelected} {
		rr = api.do(t, http.MethodPost, "/api/scenarios/"+a.ID+"/status", contract.TransitionRequest{Status: s, Actor: "c1"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	assert.Equal(t, domain.ScenarioSelected, decode[contract.NodeResponse](t, rr).Status)

	rr = api.do(t, http.MethodPut, "/api/scenarios/"+a.ID+"/steps/3", contract.StepRequest{StepConfig: json.RawMessage(`{}`)})
	assert.Equal(t, http.StatusConflict, rr.Code, "selected scenarios are immutable")

	rr = api.do(t, http.MethodDelete, "/api/scenarios/"+a.ID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	b := api.branch(t, p.Root.ID, 2, "B")
	rr = api.do(t, http.MethodDelete, "/api/scenarios/"+b.ID+"?actor=m1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/scenarios/"+b.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBadRequests(t *testing.T) {
	api := newTestAPI(t)
	p := api.seedProject(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed json", http.MethodPost, "/api/scenarios/" + p.Root.ID + "/branches", `{"name":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/scenarios/" + p.Root.ID + "/branches", `{"nme":"x"}`, http.StatusBadRequest},
		{"step not a number", http.MethodPut, "/api/scenarios/" + p.Root.ID + "/steps/two", `{}`, http.StatusBadRequest},
		{"step out of range", http.MethodPut, "/api/scenarios/" + p.Root.ID + "/steps/8", `{}`, http.StatusBadRequest},
		{"branch step out of range", http.MethodPost, "/api/scenarios/" + p.Root.ID + "/branches",
			contract.CreateBranchRequest{BranchAtStep: 0, Name: "x", CreatorRole: domain.RoleClient}, http.StatusBadRequest},
		{"unknown parent", http.MethodPost, "/api/scenarios/missing/branches",
			contract.CreateBranchRequest{BranchAtStep: 2, Name: "x", CreatorRole: domain.RoleClient}, http.StatusNotFound},
		{"bad unread flag", http.MethodGet, "/api/projects/" + p.ID + "/notifications?unread=maybe", nil, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/nothing", nil, http.StatusNotFound},
		{"wrong method", http.MethodPatch, "/api/scenarios/" + p.Root.ID, nil, http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	api := newTestAPI(t)
	p := api.seedProject(t)
	a := api.branch(t, p.Root.ID, 2, "A")
	rr := api.do(t, http.MethodPost, "/api/scenarios/"+a.ID+"/status", contract.TransitionRequest{Status: domain.ScenarioProposed})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/projects/"+p.ID+"/notifications?role=supplier", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]contract.NotificationResponse](t, rr), 2)

	rr = api.do(t, http.MethodGet, "/api/projects/"+p.ID+"/notifications?role=client&limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	latest := decode[[]contract.NotificationResponse](t, rr)
	require.Len(t, latest, 1)
	assert.Equal(t, domain.NotifyScenarioProposed, latest[0].Type)

	rr = api.do(t, http.MethodPost, "/api/notifications/"+latest[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/projects/"+p.ID+"/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]contract.NotificationResponse](t, rr), 2)
}

func TestMetricsEndpoint_CountsByRouteTemplate(t *testing.T) {
	api := newTestAPI(t)
	p := api.seedProject(t)
	for i := 0; i < 3; i++ {
		rr := api.do(t, http.MethodGet, "/api/projects/"+p.ID+"/scenarios/tree", nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := api.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	want := fmt.Sprintf(`branchplan_http_requests_total{method="GET",path="%s",status="200"} 3`,
		"/api/projects/{projectID}/scenarios/tree")
	assert.True(t, strings.Contains(body, want), "metrics output should contain %s", want)
}

func TestProjects_ExportImport(t *testing.T) {
	api := newTestAPI(t)
	p := api.seedProject(t)
	child := api.branch(t, p.Root.ID, 2, "Variant")
	rr := api.do(t, http.MethodPut, "/api/scenarios/"+child.ID+"/steps/2", contract.StepRequest{
		StepConfig: json.RawMessage(`{"vendor":"beta"}`),
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/api/projects/WRH01/export", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	exported := rr.Body.String()
	assert.Contains(t, exported, `"name":"Variant"`)

	body := strings.Replace(exported, `"short_id":"WRH01"`, `"short_id":"WRH02"`, 1)
	rr = api.do(t, http.MethodPost, "/api/projects/import", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[contract.ImportResponse](t, rr)
	assert.Equal(t, "WRH02", res.Project.ShortID)
	assert.Equal(t, 2, res.ScenarioCount)
	assert.Equal(t, 1, res.DeltaCount)
	assert.NotEqual(t, p.ID, res.Project.ID)

	rr = api.do(t, http.MethodPost, "/api/projects/import", `{"project":{"name":"x"},"scenarios":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "import validation failed")

	rr = api.do(t, http.MethodGet, "/api/projects/NOPE01/export", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestScenarioTree_IncludesFlatNodes(t *testing.T) {
	api := newTestAPI(t)
	p := api.seedProject(t)
	a := api.branch(t, p.Root.ID, 2, "Variant A")
	b := api.branch(t, a.ID, 4, "Variant B")

	rr := api.do(t, http.MethodGet, "/api/projects/"+p.ID+"/scenarios/tree", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var tree struct {
		Roots     []json.RawMessage       `json:"roots"`
		FlatNodes []contract.NodeResponse `json:"flat_nodes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tree))
	require.Len(t, tree.Roots, 1)
	require.Len(t, tree.FlatNodes, 3, "every node is listed flat next to the nested roots")

	ids := []string{tree.FlatNodes[0].ID, tree.FlatNodes[1].ID, tree.FlatNodes[2].ID}
	assert.Equal(t, []string{p.Root.ID, a.ID, b.ID}, ids)
	assert.Equal(t, p.ID, tree.FlatNodes[1].ProjectID)
	require.NotNil(t, tree.FlatNodes[2].ParentNodeID)
	assert.Equal(t, a.ID, *tree.FlatNodes[2].ParentNodeID)
	assert.Equal(t, []string{p.Root.ID, a.ID}, tree.FlatNodes[2].TreePath)
	assert.Equal(t, 2, tree.FlatNodes[2].TreeDepth)
}
