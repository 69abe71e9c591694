package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"heatnet/pkg/apperror"
)

// Стандартные ключи атрибутов
const (
	AttrNetworkHash  = "network.hash"
	AttrNetworkNodes = "network.nodes"
	AttrNetworkPipes = "network.pipes"

	AttrSnapshots   = "solver.snapshots"
	AttrWorkers     = "solver.workers"
	AttrMaxResidual = "solver.max_residual"
	AttrCondition   = "solver.condition"
	AttrCacheHit    = "solver.cache_hit"

	AttrBuildings = "builder.buildings"
	AttrForks     = "builder.forks_inserted"

	AttrErrorCode   = "error.code"
	AttrErrorFamily = "error.family"
)

// NetworkAttributes возвращает атрибуты сети
func NetworkAttributes(hash string, nodes, pipes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrNetworkHash, hash),
		attribute.Int(AttrNetworkNodes, nodes),
		attribute.Int(AttrNetworkPipes, pipes),
	}
}

// SolveAttributes возвращает атрибуты расчёта
func SolveAttributes(snapshots, workers int, maxResidual, condition float64, cacheHit bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrSnapshots, snapshots),
		attribute.Int(AttrWorkers, workers),
		attribute.Float64(AttrMaxResidual, maxResidual),
		attribute.Float64(AttrCondition, condition),
		attribute.Bool(AttrCacheHit, cacheHit),
	}
}

// ErrorAttributes возвращает код и семейство ошибки
func ErrorAttributes(err error) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorCode, string(apperror.Code(err))),
		attribute.String(AttrErrorFamily, string(apperror.FamilyOfError(err))),
	}
}
