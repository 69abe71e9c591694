// Package geometry содержит планарные операции, нужные для построения
// тепловой сети по зданиям и улицам: перепроецирование, центроиды
// и проекцию точки на отрезок.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"heatnet/pkg/apperror"
)

// CRS система координат
type CRS string

const (
	// CRSWGS84 географические координаты lon/lat в градусах
	CRSWGS84 CRS = "EPSG:4326"
	// CRSWebMercator сферический Меркатор в метрах
	CRSWebMercator CRS = "EPSG:3857"
	// CRSPlanar произвольная планарная система, уже пригодная для расстояний
	CRSPlanar CRS = "planar"
)

// IsPlanar сообщает, можно ли считать евклидовы расстояния в этой системе
func (c CRS) IsPlanar() bool {
	return c == CRSWebMercator || c == CRSPlanar
}

// Valid проверяет, что система известна
func (c CRS) Valid() bool {
	switch c {
	case CRSWGS84, CRSWebMercator, CRSPlanar:
		return true
	default:
		return false
	}
}

// Projection возвращает функцию перехода from -> to
func Projection(from, to CRS) (orb.Projection, error) {
	if !from.Valid() {
		return nil, apperror.Newf(apperror.CodeUnsupportedCRS, "unknown source CRS %q", from)
	}
	if !to.Valid() {
		return nil, apperror.Newf(apperror.CodeUnsupportedCRS, "unknown target CRS %q", to)
	}

	switch {
	case from == to:
		return func(p orb.Point) orb.Point { return p }, nil
	case from == CRSWGS84 && to == CRSWebMercator:
		return project.WGS84.ToMercator, nil
	case from == CRSWebMercator && to == CRSWGS84:
		return project.Mercator.ToWGS84, nil
	default:
		return nil, apperror.Newf(apperror.CodeUnsupportedCRS, "no projection from %s to %s", from, to)
	}
}

// Project перепроецирует точки в систему to. Исходный срез не меняется.
func Project(points []orb.Point, from, to CRS) ([]orb.Point, error) {
	proj, err := Projection(from, to)
	if err != nil {
		return nil, err
	}

	out := make([]orb.Point, len(points))
	for i, p := range points {
		if !finite(p) {
			return nil, apperror.Newf(apperror.CodeInvalidGeometry, "point %d has non-finite coordinates", i).
				WithDetails("index", i)
		}
		out[i] = project.Point(p, proj)
	}
	return out, nil
}

// ProjectLineString перепроецирует ломаную
func ProjectLineString(ls orb.LineString, from, to CRS) (orb.LineString, error) {
	pts, err := Project([]orb.Point(ls), from, to)
	if err != nil {
		return nil, err
	}
	return orb.LineString(pts), nil
}

// Centroid возвращает центр масс площадного объекта
func Centroid(polygon orb.Polygon) (orb.Point, error) {
	if len(polygon) == 0 || len(polygon[0]) == 0 {
		return orb.Point{}, apperror.New(apperror.CodeInvalidGeometry, "empty polygon")
	}

	c, area := planar.CentroidArea(polygon)
	if area == 0 {
		// Вырожденный контур: берём центр ограничивающего прямоугольника
		return polygon.Bound().Center(), nil
	}
	return c, nil
}

// Centroids сводит контуры зданий к точкам
func Centroids(polygons []orb.Polygon) ([]orb.Point, error) {
	out := make([]orb.Point, len(polygons))
	for i, poly := range polygons {
		c, err := Centroid(poly)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInvalidGeometry, "building footprint has no centroid").
				WithDetails("index", i)
		}
		out[i] = c
	}
	return out, nil
}

// Segment отрезок AB
type Segment struct {
	A orb.Point
	B orb.Point
}

// Length возвращает длину отрезка
func (s Segment) Length() float64 {
	return planar.Distance(s.A, s.B)
}

// Segments разбивает ломаную на отрезки в порядке следования
func Segments(ls orb.LineString) []Segment {
	if len(ls) < 2 {
		return nil
	}
	out := make([]Segment, 0, len(ls)-1)
	for i := 0; i+1 < len(ls); i++ {
		out = append(out, Segment{A: ls[i], B: ls[i+1]})
	}
	return out
}

// NearestPointOnSegment возвращает ближайшую к p точку отрезка и расстояние до неё.
// Вырожденный отрезок сводится к его концу.
func NearestPointOnSegment(p orb.Point, seg Segment) (orb.Point, float64) {
	dx := seg.B[0] - seg.A[0]
	dy := seg.B[1] - seg.A[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return seg.A, planar.Distance(p, seg.A)
	}

	t := ((p[0]-seg.A[0])*dx + (p[1]-seg.A[1])*dy) / l2
	switch {
	case t <= 0:
		return seg.A, planar.Distance(p, seg.A)
	case t >= 1:
		return seg.B, planar.Distance(p, seg.B)
	}

	q := orb.Point{seg.A[0] + t*dx, seg.A[1] + t*dy}
	return q, planar.Distance(p, q)
}

// Match результат поиска ближайшего отрезка
type Match struct {
	Index    int
	Point    orb.Point
	Distance float64
}

// NearestSegment ищет ближайший к p отрезок. При равных расстояниях
// выигрывает меньший индекс. ok = false для пустого списка.
func NearestSegment(p orb.Point, segments []Segment) (Match, bool) {
	best := Match{Index: -1, Distance: math.Inf(1)}
	for i, seg := range segments {
		q, d := NearestPointOnSegment(p, seg)
		if d < best.Distance {
			best = Match{Index: i, Point: q, Distance: d}
		}
	}
	return best, best.Index >= 0
}

// NearestOnLineString ищет ближайшую точку ломаной; Index указывает на отрезок
func NearestOnLineString(p orb.Point, ls orb.LineString) (Match, bool) {
	return NearestSegment(p, Segments(ls))
}

// SplitLineString делит ломаную в точке q, лежащей на отрезке с индексом seg
func SplitLineString(ls orb.LineString, seg int, q orb.Point) (orb.LineString, orb.LineString) {
	head := make(orb.LineString, 0, seg+2)
	head = append(head, ls[:seg+1]...)
	if !head[len(head)-1].Equal(q) {
		head = append(head, q)
	}

	tail := make(orb.LineString, 0, len(ls)-seg+1)
	tail = append(tail, q)
	for _, pt := range ls[seg+1:] {
		if len(tail) == 1 && pt.Equal(q) {
			continue
		}
		tail = append(tail, pt)
	}
	return head, tail
}

// Length возвращает длину ломаной
func Length(ls orb.LineString) float64 {
	return planar.Length(ls)
}

// Distance возвращает евклидово расстояние
func Distance(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
