package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"golang.org/x/sync/singleflight"

	"heatnet/pkg/network"
)

// CachedFlow кэшированный результат расчёта
type CachedFlow struct {
	Snapshots   []int       `json:"snapshots"`
	Pipes       []string    `json:"pipes"`
	Values      [][]float64 `json:"values"`
	MaxResidual float64     `json:"max_residual"`
	Condition   float64     `json:"condition"`
	ComputedAt  time.Time   `json:"computed_at"`
}

// NewCachedFlow копирует результат для сохранения
func NewCachedFlow(fr *network.FlowResult, maxResidual, condition float64) *CachedFlow {
	clone := fr.Clone()
	return &CachedFlow{
		Snapshots:   clone.Snapshots,
		Pipes:       clone.Columns,
		Values:      clone.Values,
		MaxResidual: maxResidual,
		Condition:   condition,
		ComputedAt:  time.Now().UTC(),
	}
}

// FlowResult восстанавливает результат решателя
func (c *CachedFlow) FlowResult() *network.FlowResult {
	fr := network.NewFlowResult(c.Snapshots, c.Pipes)
	for i := range fr.Values {
		copy(fr.Values[i], c.Values[i])
	}
	return fr
}

// FlowCache кэш расходов по ключу (хеш сети, хеш спроса). Значения хранятся
// как JSON, сжатый snappy. Одновременные промахи по одному ключу
// объединяются через singleflight.
type FlowCache struct {
	cache    Cache
	ttl      time.Duration
	group    singleflight.Group
	onLookup func(hit bool)
}

// NewFlowCache создаёт кэш расходов
func NewFlowCache(c Cache, ttl time.Duration) *FlowCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &FlowCache{cache: c, ttl: ttl}
}

// OnLookup задаёт обработчик попаданий и промахов (для метрик)
func (fc *FlowCache) OnLookup(fn func(hit bool)) {
	fc.onLookup = fn
}

func (fc *FlowCache) record(hit bool) {
	if fc.onLookup != nil {
		fc.onLookup(hit)
	}
}

// Get возвращает результат и признак наличия. Повреждённая запись удаляется
// и считается промахом.
func (fc *FlowCache) Get(ctx context.Context, key string) (*CachedFlow, bool, error) {
	data, err := fc.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			fc.record(false)
			return nil, false, nil
		}
		return nil, false, err
	}

	flow, err := decodeFlow(data)
	if err != nil {
		_ = fc.cache.Delete(ctx, key)
		fc.record(false)
		return nil, false, nil
	}

	fc.record(true)
	return flow, true, nil
}

// Set сохраняет результат
func (fc *FlowCache) Set(ctx context.Context, key string, flow *CachedFlow, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = fc.ttl
	}
	data, err := encodeFlow(flow)
	if err != nil {
		return err
	}
	return fc.cache.Set(ctx, key, data, ttl)
}

type computed struct {
	flow *CachedFlow
	hit  bool
}

// GetOrCompute возвращает результат из кэша или вычисляет и сохраняет его.
// Второе значение true, если результат взят из кэша.
func (fc *FlowCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (*CachedFlow, error)) (*CachedFlow, bool, error) {
	v, err, _ := fc.group.Do(key, func() (any, error) {
		flow, ok, err := fc.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return computed{flow: flow, hit: true}, nil
		}

		flow, err = compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := fc.Set(ctx, key, flow, 0); err != nil {
			return nil, fmt.Errorf("store flow result: %w", err)
		}
		return computed{flow: flow}, nil
	})
	if err != nil {
		return nil, false, err
	}

	c := v.(computed)
	return c.flow, c.hit, nil
}

// Invalidate удаляет все результаты для сети
func (fc *FlowCache) Invalidate(ctx context.Context, networkHash string) (int64, error) {
	return fc.cache.DeleteByPrefix(ctx, FlowPrefix(networkHash))
}

func encodeFlow(flow *CachedFlow) ([]byte, error) {
	raw, err := json.Marshal(flow)
	if err != nil {
		return nil, fmt.Errorf("encode flow result: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

func decodeFlow(data []byte) (*CachedFlow, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}
	var flow CachedFlow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, err
	}
	if len(flow.Values) != len(flow.Snapshots) {
		return nil, errors.New("flow result shape mismatch")
	}
	for _, row := range flow.Values {
		if len(row) != len(flow.Pipes) {
			return nil, errors.New("flow result shape mismatch")
		}
	}
	return &flow, nil
}
