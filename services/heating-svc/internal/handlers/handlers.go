// Package handlers реализует API сервиса поверх Connect: RPC-процедуры,
// выгрузку отчётов и служебные HTTP-маршруты.
package handlers

import (
	"context"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"heatnet/pkg/apperror"
	"heatnet/pkg/auth"
	"heatnet/pkg/heatingv1"
	"heatnet/pkg/interceptors"
	"heatnet/services/heating-svc/internal/builder"
	"heatnet/services/heating-svc/internal/repository"
	"heatnet/services/heating-svc/internal/service"
)

// Тип ресурса для аудита
const (
	resourceNetwork = "network"
	resourceRun     = "run"
)

// HeatingHandler реализует heatingv1.HeatingServiceHandler
type HeatingHandler struct {
	svc        *service.HeatingService
	builderCfg builder.Config
}

var _ heatingv1.HeatingServiceHandler = (*HeatingHandler)(nil)

// NewHeatingHandler создаёт handler. builderCfg используется как основа
// для опций построения из запроса.
func NewHeatingHandler(svc *service.HeatingService, builderCfg builder.Config) *HeatingHandler {
	return &HeatingHandler{svc: svc, builderCfg: builderCfg}
}

func (h *HeatingHandler) BuildNetwork(
	ctx context.Context,
	req *connect.Request[heatingv1.BuildNetworkRequest],
) (*connect.Response[heatingv1.BuildNetworkResponse], error) {
	msg := req.Msg

	result, err := h.svc.BuildNetwork(ctx, service.BuildRequest{
		Buildings:  toPoints(msg.Buildings),
		Footprints: toFootprints(msg.Footprints),
		Streets:    toStreetGraph(msg.Streets),
		Demand:     toDemand(msg.Demand),
		Config:     mergeBuilderOptions(h.builderCfg, msg.Options),
	})
	if err != nil {
		return nil, err
	}
	interceptors.SetResource(ctx, resourceNetwork, result.NetworkHash)

	return connect.NewResponse(&heatingv1.BuildNetworkResponse{
		Network:     fromTopology(result.Topology),
		NetworkHash: result.NetworkHash,
		Stats:       fromStats(result.Stats),
	}), nil
}

func (h *HeatingHandler) Solve(
	ctx context.Context,
	req *connect.Request[heatingv1.SolveRequest],
) (*connect.Response[heatingv1.SolveResponse], error) {
	msg := req.Msg

	top, err := toTopology(msg.Network)
	if err != nil {
		return nil, err
	}

	var subject string
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		subject = claims.Subject
	}

	resp, err := h.svc.Solve(ctx, service.SolveRequest{
		Name:     msg.Name,
		Subject:  subject,
		Topology: top,
		Demand:   toDemand(msg.Demand),
	})
	if err != nil {
		return nil, err
	}
	interceptors.SetResource(ctx, resourceRun, resp.Run.ID.String())

	return connect.NewResponse(&heatingv1.SolveResponse{
		Run:      fromRun(resp.Run),
		Report:   fromReport(resp.Report),
		CacheHit: resp.CacheHit,
	}), nil
}

func (h *HeatingHandler) GetRun(
	ctx context.Context,
	req *connect.Request[heatingv1.GetRunRequest],
) (*connect.Response[heatingv1.GetRunResponse], error) {
	id, err := parseRunID(req.Msg.ID)
	if err != nil {
		return nil, err
	}
	interceptors.SetResource(ctx, resourceRun, id.String())

	details, err := h.svc.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&heatingv1.GetRunResponse{
		Run:    fromRun(details.Run),
		Report: fromReport(details.Report),
	}), nil
}

func (h *HeatingHandler) ListRuns(
	ctx context.Context,
	req *connect.Request[heatingv1.ListRunsRequest],
) (*connect.Response[heatingv1.ListRunsResponse], error) {
	msg := req.Msg

	runs, total, err := h.svc.ListRuns(ctx, repository.ListOptions{
		Limit:       msg.Limit,
		Offset:      msg.Offset,
		NetworkHash: msg.NetworkHash,
	})
	if err != nil {
		return nil, err
	}

	out := make([]heatingv1.Run, len(runs))
	for i, r := range runs {
		out[i] = fromRunSummary(r)
	}
	return connect.NewResponse(&heatingv1.ListRunsResponse{Runs: out, Total: total}), nil
}

func (h *HeatingHandler) DeleteRun(
	ctx context.Context,
	req *connect.Request[heatingv1.DeleteRunRequest],
) (*connect.Response[heatingv1.DeleteRunResponse], error) {
	id, err := parseRunID(req.Msg.ID)
	if err != nil {
		return nil, err
	}
	interceptors.SetResource(ctx, resourceRun, id.String())

	if err := h.svc.DeleteRun(ctx, id); err != nil {
		return nil, err
	}
	return connect.NewResponse(&heatingv1.DeleteRunResponse{}), nil
}

func parseRunID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Wrap(err, apperror.CodeInvalidArgument, "run id must be a UUID").WithField("id")
	}
	return id, nil
}
