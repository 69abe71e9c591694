package heatingv1

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"heatnet/pkg/codec"
)

// ServiceName is the fully-qualified name of the heating service.
const ServiceName = "heatnet.v1.HeatingService"

// Procedure paths.
const (
	HeatingServiceBuildNetworkProcedure = "/" + ServiceName + "/BuildNetwork"
	HeatingServiceSolveProcedure        = "/" + ServiceName + "/Solve"
	HeatingServiceGetRunProcedure       = "/" + ServiceName + "/GetRun"
	HeatingServiceListRunsProcedure     = "/" + ServiceName + "/ListRuns"
	HeatingServiceDeleteRunProcedure    = "/" + ServiceName + "/DeleteRun"
)

// HeatingServiceHandler is implemented by the server.
type HeatingServiceHandler interface {
	BuildNetwork(context.Context, *connect.Request[BuildNetworkRequest]) (*connect.Response[BuildNetworkResponse], error)
	Solve(context.Context, *connect.Request[SolveRequest]) (*connect.Response[SolveResponse], error)
	GetRun(context.Context, *connect.Request[GetRunRequest]) (*connect.Response[GetRunResponse], error)
	ListRuns(context.Context, *connect.Request[ListRunsRequest]) (*connect.Response[ListRunsResponse], error)
	DeleteRun(context.Context, *connect.Request[DeleteRunRequest]) (*connect.Response[DeleteRunResponse], error)
}

// NewHeatingServiceHandler returns the path prefix and the handler serving
// every procedure of the service with the JSON codec.
func NewHeatingServiceHandler(svc HeatingServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(codec.JSON{})}, opts...)

	handlers := map[string]http.Handler{
		HeatingServiceBuildNetworkProcedure: connect.NewUnaryHandler(HeatingServiceBuildNetworkProcedure, svc.BuildNetwork, opts...),
		HeatingServiceSolveProcedure:        connect.NewUnaryHandler(HeatingServiceSolveProcedure, svc.Solve, opts...),
		HeatingServiceGetRunProcedure:       connect.NewUnaryHandler(HeatingServiceGetRunProcedure, svc.GetRun, opts...),
		HeatingServiceListRunsProcedure:     connect.NewUnaryHandler(HeatingServiceListRunsProcedure, svc.ListRuns, opts...),
		HeatingServiceDeleteRunProcedure:    connect.NewUnaryHandler(HeatingServiceDeleteRunProcedure, svc.DeleteRun, opts...),
	}

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// HeatingServiceClient calls the heating service over Connect with JSON.
type HeatingServiceClient struct {
	buildNetwork *connect.Client[BuildNetworkRequest, BuildNetworkResponse]
	solve        *connect.Client[SolveRequest, SolveResponse]
	getRun       *connect.Client[GetRunRequest, GetRunResponse]
	listRuns     *connect.Client[ListRunsRequest, ListRunsResponse]
	deleteRun    *connect.Client[DeleteRunRequest, DeleteRunResponse]
}

// NewHeatingServiceClient creates a client for the service at baseURL.
func NewHeatingServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *HeatingServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(codec.JSON{})}, opts...)

	return &HeatingServiceClient{
		buildNetwork: connect.NewClient[BuildNetworkRequest, BuildNetworkResponse](httpClient, baseURL+HeatingServiceBuildNetworkProcedure, opts...),
		solve:        connect.NewClient[SolveRequest, SolveResponse](httpClient, baseURL+HeatingServiceSolveProcedure, opts...),
		getRun:       connect.NewClient[GetRunRequest, GetRunResponse](httpClient, baseURL+HeatingServiceGetRunProcedure, opts...),
		listRuns:     connect.NewClient[ListRunsRequest, ListRunsResponse](httpClient, baseURL+HeatingServiceListRunsProcedure, opts...),
		deleteRun:    connect.NewClient[DeleteRunRequest, DeleteRunResponse](httpClient, baseURL+HeatingServiceDeleteRunProcedure, opts...),
	}
}

func (c *HeatingServiceClient) BuildNetwork(ctx context.Context, req *connect.Request[BuildNetworkRequest]) (*connect.Response[BuildNetworkResponse], error) {
	return c.buildNetwork.CallUnary(ctx, req)
}

func (c *HeatingServiceClient) Solve(ctx context.Context, req *connect.Request[SolveRequest]) (*connect.Response[SolveResponse], error) {
	return c.solve.CallUnary(ctx, req)
}

func (c *HeatingServiceClient) GetRun(ctx context.Context, req *connect.Request[GetRunRequest]) (*connect.Response[GetRunResponse], error) {
	return c.getRun.CallUnary(ctx, req)
}

func (c *HeatingServiceClient) ListRuns(ctx context.Context, req *connect.Request[ListRunsRequest]) (*connect.Response[ListRunsResponse], error) {
	return c.listRuns.CallUnary(ctx, req)
}

func (c *HeatingServiceClient) DeleteRun(ctx context.Context, req *connect.Request[DeleteRunRequest]) (*connect.Response[DeleteRunResponse], error) {
	return c.deleteRun.CallUnary(ctx, req)
}
