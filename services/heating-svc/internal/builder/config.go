package builder

import (
	"math"

	"github.com/paulmach/orb"

	"heatnet/pkg/apperror"
	"heatnet/pkg/config"
	"heatnet/pkg/geometry"
)

// ProducerPolicy способ выбора источника среди зданий
type ProducerPolicy string

const (
	// ProducerByIndex источник задан индексом здания
	ProducerByIndex ProducerPolicy = "index"
	// ProducerNearest источник ближайшее к ProducerLocation здание
	ProducerNearest ProducerPolicy = "nearest"
)

// Config параметры построения сети. Значений по умолчанию для выбора
// источника нет: политика задаётся явно.
type Config struct {
	// InputCRS система координат зданий и улиц
	InputCRS geometry.CRS

	// SnapTolerance точка подключения ближе этого расстояния к существующему
	// узлу присоединяется к нему без новой развилки
	SnapTolerance float64

	// MaxSearchDistance максимальное расстояние от здания до улицы
	MaxSearchDistance float64

	Producer         ProducerPolicy
	ProducerIndex    int
	ProducerLocation orb.Point

	// DefaultDiameter диаметр новых труб, м
	DefaultDiameter float64

	// PruneDangling удаляет тупиковые участки улиц без зданий
	PruneDangling bool

	// MergeReverseEdges считает A->B и B->A одной улицей
	MergeReverseEdges bool
}

// WorkingCRS возвращает планарную систему, в которой идут вычисления
func (c Config) WorkingCRS() geometry.CRS {
	if c.InputCRS == geometry.CRSWGS84 {
		return geometry.CRSWebMercator
	}
	return c.InputCRS
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	v := apperror.NewValidationErrors()

	if !c.InputCRS.Valid() {
		v.Add(apperror.Newf(apperror.CodeUnsupportedCRS, "unsupported input CRS %q", c.InputCRS).WithField("crs"))
	}
	if c.SnapTolerance < 0 || math.IsNaN(c.SnapTolerance) {
		v.AddErrorWithField(apperror.CodeInvalidBuilderConfig, "snap tolerance must be non-negative", "snap_tolerance")
	}
	if !(c.MaxSearchDistance > 0) {
		v.AddErrorWithField(apperror.CodeInvalidBuilderConfig, "max search distance must be positive", "max_search_distance")
	}
	if c.DefaultDiameter < 0 || math.IsNaN(c.DefaultDiameter) {
		v.AddErrorWithField(apperror.CodeInvalidBuilderConfig, "default diameter must be non-negative", "default_diameter")
	}

	switch c.Producer {
	case ProducerByIndex:
		if c.ProducerIndex < 0 {
			v.AddErrorWithField(apperror.CodeInvalidBuilderConfig, "producer index must be non-negative", "producer_index")
		}
	case ProducerNearest:
	case "":
		v.AddErrorWithField(apperror.CodeInvalidBuilderConfig, "producer selection policy is required", "producer")
	default:
		v.AddErrorWithField(apperror.CodeInvalidBuilderConfig, "unknown producer policy "+string(c.Producer), "producer")
	}

	return v.Err(apperror.CodeInvalidBuilderConfig, "invalid builder configuration")
}

// FromConfig переводит секцию builder файла конфигурации
func FromConfig(c config.BuilderConfig) Config {
	return Config{
		InputCRS:          geometry.CRS(c.CRS),
		SnapTolerance:     c.SnapTolerance,
		MaxSearchDistance: c.MaxSearchDistance,
		Producer:          ProducerPolicy(c.Producer),
		ProducerIndex:     c.ProducerIndex,
		ProducerLocation:  orb.Point{c.ProducerX, c.ProducerY},
		DefaultDiameter:   c.DefaultDiameter,
		PruneDangling:     c.PruneDangling,
		MergeReverseEdges: c.MergeReverseEdges,
	}
}
