package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatnet/pkg/audit"
	"heatnet/pkg/auth"
	"heatnet/pkg/cache"
	"heatnet/pkg/geometry"
	"heatnet/pkg/heatingv1"
	"heatnet/pkg/interceptors"
	"heatnet/pkg/logger"
	"heatnet/pkg/metrics"
	"heatnet/services/heating-svc/internal/builder"
	"heatnet/services/heating-svc/internal/hydraulic"
	"heatnet/services/heating-svc/internal/repository"
	"heatnet/services/heating-svc/internal/service"
)

func init() {
	logger.Init("error")
}

const testSecret = "test-secret"

type env struct {
	url    string
	client *heatingv1.HeatingServiceClient
	audit  *audit.MemoryLogger
	auth   *auth.Manager
}

func newEnv(t *testing.T, withAuth bool) *env {
	t.Helper()

	mem := cache.NewMemoryCache(nil)
	t.Cleanup(func() { mem.Close() })
	m := metrics.New("heatnet_handlers_test")

	svc, err := service.New(service.Options{
		Repository: repository.NewMemoryRepository(),
		FlowCache:  cache.NewFlowCache(mem, 0),
		Metrics:    m,
		Solver:     hydraulic.Options{Workers: 2},
		Builder:    testBuilderConfig(),
	})
	require.NoError(t, err)

	auditLog := audit.NewMemoryLogger()
	icfg := &interceptors.ServerConfig{
		ServiceName:  "heating-svc",
		Metrics:      m,
		AuditLogger:  auditLog,
		AuditActions: AuditActions(),
		AuthPolicy:   AuthPolicy(),
	}
	var manager *auth.Manager
	if withAuth {
		manager = auth.NewManager(testSecret, "heatnet")
		icfg.AuthManager = manager
	}

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Service:      svc,
		Builder:      testBuilderConfig(),
		Interceptors: interceptors.Server(icfg),
		AuthManager:  manager,
		AuditLogger:  auditLog,
		ServiceName:  "heating-svc",
		Version:      "test",
		Metrics:      m,
		Swagger:      true,
	}))
	t.Cleanup(srv.Close)

	return &env{
		url:    srv.URL,
		client: heatingv1.NewHeatingServiceClient(srv.Client(), srv.URL),
		audit:  auditLog,
		auth:   manager,
	}
}

func testBuilderConfig() builder.Config {
	return builder.Config{
		InputCRS:          geometry.CRSPlanar,
		SnapTolerance:     0.5,
		MaxSearchDistance: 50,
		Producer:          builder.ProducerByIndex,
		DefaultDiameter:   0.1,
		PruneDangling:     true,
	}
}

// улица A-B-C, источник слева от A, два потребителя у C
func abcBuildRequest() *heatingv1.BuildNetworkRequest {
	return &heatingv1.BuildNetworkRequest{
		Buildings: []heatingv1.Point{{X: -3, Y: 0}, {X: 23, Y: 2}, {X: 23, Y: -2}},
		Streets: heatingv1.StreetGraph{
			Nodes: []heatingv1.StreetNode{
				{Key: "A", X: 0, Y: 0},
				{Key: "B", X: 10, Y: 0},
				{Key: "C", X: 20, Y: 0},
			},
			Edges: []heatingv1.StreetEdge{
				{From: "A", To: "B"},
				{From: "B", To: "C"},
			},
		},
	}
}

func abcDemand() *heatingv1.Demand {
	return &heatingv1.Demand{
		Snapshots: []int{0, 1},
		Consumers: []string{"consumers-4", "consumers-5"},
		Values:    [][]float64{{5, 3}, {1, 1}},
	}
}

func (e *env) token(t *testing.T, role string) string {
	t.Helper()
	tok, err := e.auth.Issue("alice", role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func withHeader[T any](msg *T, kv ...string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		req.Header().Set(kv[i], kv[i+1])
	}
	return req
}

func connectError(t *testing.T, err error) *connect.Error {
	t.Helper()
	var cErr *connect.Error
	require.ErrorAs(t, err, &cErr)
	return cErr
}

func edgeFlow(r heatingv1.Report, from, to string) (heatingv1.EdgeSeries, bool) {
	for _, e := range r.Edges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return heatingv1.EdgeSeries{}, false
}

func TestBuildAndSolve(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	built, err := e.client.BuildNetwork(ctx, connect.NewRequest(abcBuildRequest()))
	require.NoError(t, err)
	assert.Len(t, built.Msg.Network.Nodes, 6)
	assert.Len(t, built.Msg.Network.Pipes, 5)
	assert.NotEmpty(t, built.Msg.NetworkHash)
	assert.Equal(t, 3, built.Msg.Stats.StreetNodes)

	solved, err := e.client.Solve(ctx, connect.NewRequest(&heatingv1.SolveRequest{
		Name:    "abc",
		Network: built.Msg.Network,
		Demand:  abcDemand(),
	}))
	require.NoError(t, err)
	assert.False(t, solved.Msg.CacheHit)
	assert.Equal(t, built.Msg.NetworkHash, solved.Msg.Run.NetworkHash)
	assert.InDelta(t, 10, solved.Msg.Run.TotalDemand, 1e-9)

	trunk, ok := edgeFlow(solved.Msg.Report, "producers-3", "forks-0")
	require.True(t, ok)
	require.Len(t, trunk.Flow, 2)
	assert.InDelta(t, 8, trunk.Flow[0], 1e-9)
	assert.InDelta(t, 2, trunk.Flow[1], 1e-9)

	branch, ok := edgeFlow(solved.Msg.Report, "forks-2", "consumers-4")
	require.True(t, ok)
	assert.InDelta(t, 5, branch.Flow[0], 1e-9)
	assert.InDelta(t, 8, solved.Msg.Report.Network.PeakSupply, 1e-9)

	again, err := e.client.Solve(ctx, connect.NewRequest(&heatingv1.SolveRequest{
		Network: built.Msg.Network,
		Demand:  abcDemand(),
	}))
	require.NoError(t, err)
	assert.True(t, again.Msg.CacheHit)
	assert.NotEqual(t, solved.Msg.Run.ID, again.Msg.Run.ID)
}

func TestSolve_DemandFromNetwork(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	req := abcBuildRequest()
	req.Demand = abcDemand()
	built, err := e.client.BuildNetwork(ctx, connect.NewRequest(req))
	require.NoError(t, err)
	require.NotNil(t, built.Msg.Network.Demand)

	solved, err := e.client.Solve(ctx, connect.NewRequest(&heatingv1.SolveRequest{Network: built.Msg.Network}))
	require.NoError(t, err)
	assert.Equal(t, 2, solved.Msg.Run.SnapshotCount)
}

func TestRuns(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	built, err := e.client.BuildNetwork(ctx, connect.NewRequest(abcBuildRequest()))
	require.NoError(t, err)
	solved, err := e.client.Solve(ctx, connect.NewRequest(&heatingv1.SolveRequest{
		Name:    "winter",
		Network: built.Msg.Network,
		Demand:  abcDemand(),
	}))
	require.NoError(t, err)
	id := solved.Msg.Run.ID

	got, err := e.client.GetRun(ctx, connect.NewRequest(&heatingv1.GetRunRequest{ID: id}))
	require.NoError(t, err)
	assert.Equal(t, "winter", got.Msg.Run.Name)
	assert.Len(t, got.Msg.Report.Edges, 5)

	list, err := e.client.ListRuns(ctx, connect.NewRequest(&heatingv1.ListRunsRequest{NetworkHash: built.Msg.NetworkHash}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Msg.Total)
	require.Len(t, list.Msg.Runs, 1)
	assert.Equal(t, id, list.Msg.Runs[0].ID)

	resp, err := http.Get(e.url + "/v1/runs/" + id + "/report?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "heatnet-"+id+".csv")
	cr := csv.NewReader(resp.Body)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"section", "run"}, records[0])

	_, err = e.client.DeleteRun(ctx, connect.NewRequest(&heatingv1.DeleteRunRequest{ID: id}))
	require.NoError(t, err)

	_, err = e.client.GetRun(ctx, connect.NewRequest(&heatingv1.GetRunRequest{ID: id}))
	cErr := connectError(t, err)
	assert.Equal(t, connect.CodeNotFound, cErr.Code())
	assert.Equal(t, "NOT_FOUND", cErr.Meta().Get("X-Error-Code"))

	deleted := e.audit.Query(audit.QueryFilter{Action: audit.ActionDelete})
	require.Len(t, deleted, 1)
	assert.Equal(t, id, deleted[0].ResourceID)
	assert.Len(t, e.audit.Query(audit.QueryFilter{Action: audit.ActionReport}), 1)
}

func TestErrors(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	t.Run("no buildings", func(t *testing.T) {
		req := abcBuildRequest()
		req.Buildings = nil
		_, err := e.client.BuildNetwork(ctx, connect.NewRequest(req))
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("producer out of range", func(t *testing.T) {
		req := abcBuildRequest()
		req.Options = &heatingv1.BuilderOptions{Producer: "index", ProducerIndex: 7}
		_, err := e.client.BuildNetwork(ctx, connect.NewRequest(req))
		cErr := connectError(t, err)
		assert.Equal(t, connect.CodeInvalidArgument, cErr.Code())
		assert.Equal(t, "TopologyError", cErr.Meta().Get("X-Error-Family"))
	})

	t.Run("nearest without location", func(t *testing.T) {
		req := abcBuildRequest()
		req.Options = &heatingv1.BuilderOptions{Producer: "nearest"}
		_, err := e.client.BuildNetwork(ctx, connect.NewRequest(req))
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("two producers", func(t *testing.T) {
		built, err := e.client.BuildNetwork(ctx, connect.NewRequest(abcBuildRequest()))
		require.NoError(t, err)
		network := built.Msg.Network
		for i := range network.Nodes {
			if network.Nodes[i].Role == "consumer" {
				network.Nodes[i].Role = "producer"
				break
			}
		}
		_, err = e.client.Solve(ctx, connect.NewRequest(&heatingv1.SolveRequest{Network: network, Demand: abcDemand()}))
		cErr := connectError(t, err)
		assert.Equal(t, connect.CodeFailedPrecondition, cErr.Code())
		assert.Equal(t, "ConsistencyError", cErr.Meta().Get("X-Error-Family"))
	})

	t.Run("unknown consumer in demand", func(t *testing.T) {
		built, err := e.client.BuildNetwork(ctx, connect.NewRequest(abcBuildRequest()))
		require.NoError(t, err)
		demand := abcDemand()
		demand.Consumers[1] = "consumers-99"
		_, err = e.client.Solve(ctx, connect.NewRequest(&heatingv1.SolveRequest{Network: built.Msg.Network, Demand: demand}))
		cErr := connectError(t, err)
		assert.Equal(t, connect.CodeInvalidArgument, cErr.Code())
		assert.Equal(t, "InvalidDemandError", cErr.Meta().Get("X-Error-Family"))
	})

	t.Run("bad run id", func(t *testing.T) {
		_, err := e.client.GetRun(ctx, connect.NewRequest(&heatingv1.GetRunRequest{ID: "not-a-uuid"}))
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})

	t.Run("list limit", func(t *testing.T) {
		_, err := e.client.ListRuns(ctx, connect.NewRequest(&heatingv1.ListRunsRequest{Limit: 500}))
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	})
}

func TestReport_Errors(t *testing.T) {
	e := newEnv(t, false)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"bad id", "/v1/runs/nope/report", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing run", "/v1/runs/6f1c1a58-3d1e-4c83-9f53-0b4b1c8f3a11/report", http.StatusNotFound, "NOT_FOUND"},
		{"bad format", "/v1/runs/6f1c1a58-3d1e-4c83-9f53-0b4b1c8f3a11/report?format=odt", http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(e.url + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestAuth(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	viewer := e.token(t, auth.RoleViewer)
	operator := e.token(t, auth.RoleOperator)

	_, err := e.client.BuildNetwork(ctx, connect.NewRequest(abcBuildRequest()))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = e.client.BuildNetwork(ctx, withHeader(abcBuildRequest(), "Authorization", viewer))
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	built, err := e.client.BuildNetwork(ctx, withHeader(abcBuildRequest(), "Authorization", operator))
	require.NoError(t, err)

	solved, err := e.client.Solve(ctx, withHeader(&heatingv1.SolveRequest{
		Network: built.Msg.Network,
		Demand:  abcDemand(),
	}, "Authorization", operator))
	require.NoError(t, err)
	assert.Equal(t, "alice", solved.Msg.Run.Subject)

	_, err = e.client.ListRuns(ctx, withHeader(&heatingv1.ListRunsRequest{}, "Authorization", viewer))
	assert.NoError(t, err)

	denied := e.audit.Query(audit.QueryFilter{Outcome: audit.OutcomeDenied})
	assert.Len(t, denied, 2)

	reportURL := e.url + "/v1/runs/" + solved.Msg.Run.ID + "/report?format=xlsx"
	resp, err := http.Get(reportURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, reportURL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", viewer)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
}

func TestServiceRoutes(t *testing.T) {
	e := newEnv(t, false)

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/ready", http.StatusOK, `"repository":"ok"`},
		{"/metrics", http.StatusOK, "heatnet_handlers_test_"},
		{"/swagger/openapi.json", http.StatusOK, "HeatingService/Solve"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(e.url + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}
