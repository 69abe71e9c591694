// Package builder строит топологию тепловой сети по точкам зданий и графу
// улиц: схлопывает граф улиц, подключает здания к ближайшим участкам,
// вставляет развилки и назначает роли. Идентификаторы назначаются только
// в Draft.Finalize.
package builder

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/paulmach/orb"

	"heatnet/pkg/apperror"
	"heatnet/pkg/geometry"
	"heatnet/pkg/network"
)

// StreetNode узел графа улиц
type StreetNode struct {
	Key   string
	Point orb.Point
}

// StreetEdge участок улицы. Пустая геометрия заменяется отрезком между концами.
type StreetEdge struct {
	From     string
	To       string
	Geometry orb.LineString
}

// StreetGraph ориентированный граф улиц
type StreetGraph struct {
	Nodes []StreetNode
	Edges []StreetEdge
}

// Clone создаёт глубокую копию графа
func (g *StreetGraph) Clone() *StreetGraph {
	clone := &StreetGraph{
		Nodes: append([]StreetNode(nil), g.Nodes...),
		Edges: make([]StreetEdge, len(g.Edges)),
	}
	for i, e := range g.Edges {
		clone.Edges[i] = StreetEdge{
			From:     e.From,
			To:       e.To,
			Geometry: append(orb.LineString(nil), e.Geometry...),
		}
	}
	return clone
}

type vertexKind int

const (
	kindStreet vertexKind = iota
	kindFork
	kindEndpoint
)

type vertex struct {
	id       int
	point    orb.Point
	kind     vertexKind
	building int
	alive    bool
}

type link struct {
	from  int
	to    int
	geom  orb.LineString
	alive bool
}

// Stats счётчики построения
type Stats struct {
	StreetNodes      int
	StreetEdges      int
	SelfLoopsDropped int
	ParallelsDropped int
	ForksInserted    int
	SnappedToNode    int
	PrunedNodes      int
	PrunedEdges      int
}

// Draft незавершённая сеть. Снаружи идентификаторы узлов не видны;
// единственный способ получить топологию вызвать Finalize.
type Draft struct {
	cfg       Config
	vertices  []*vertex
	streets   []*link
	services  []*link
	producer  int
	stats     Stats
	finalized bool
}

// Stats возвращает счётчики построения
func (d *Draft) Stats() Stats {
	return d.stats
}

// Build строит незавершённую сеть. Входной граф не изменяется.
func Build(buildings []orb.Point, streets *StreetGraph, cfg Config) (*Draft, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(buildings) == 0 {
		return nil, apperror.ErrNoBuildings
	}
	if streets == nil || len(streets.Edges) == 0 {
		return nil, apperror.ErrEmptyStreets
	}

	// Работаем с копией
	g := streets.Clone()

	working := cfg.WorkingCRS()
	points, err := geometry.Project(buildings, cfg.InputCRS, working)
	if err != nil {
		return nil, err
	}
	for i := range g.Nodes {
		p, err := geometry.Project([]orb.Point{g.Nodes[i].Point}, cfg.InputCRS, working)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInvalidGeometry, "street node has invalid coordinates").
				WithField(g.Nodes[i].Key)
		}
		g.Nodes[i].Point = p[0]
	}
	for i := range g.Edges {
		if len(g.Edges[i].Geometry) == 0 {
			continue
		}
		ls, err := geometry.ProjectLineString(g.Edges[i].Geometry, cfg.InputCRS, working)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInvalidGeometry, "street edge has invalid geometry").
				WithDetails("edge", i)
		}
		g.Edges[i].Geometry = ls
	}

	d := &Draft{cfg: cfg}
	if err := d.collapse(g); err != nil {
		return nil, err
	}

	producer, err := d.selectProducer(points)
	if err != nil {
		return nil, err
	}

	for i, p := range points {
		if err := d.connect(i, p); err != nil {
			return nil, err
		}
	}
	d.producer = d.endpointOf(producer)

	if cfg.PruneDangling {
		d.prune()
	}

	return d, nil
}

// BuildFromFootprints сводит контуры зданий к центроидам и строит сеть
func BuildFromFootprints(footprints []orb.Polygon, streets *StreetGraph, cfg Config) (*Draft, error) {
	if len(footprints) == 0 {
		return nil, apperror.ErrNoBuildings
	}
	points, err := geometry.Centroids(footprints)
	if err != nil {
		return nil, err
	}
	return Build(points, streets, cfg)
}

// collapse удаляет петли, схлопывает параллельные рёбра (первое выигрывает)
// и нумерует узлы плотным диапазоном в порядке их появления.
func (d *Draft) collapse(g *StreetGraph) error {
	dense := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := dense[n.Key]; dup {
			continue
		}
		dense[n.Key] = len(d.vertices)
		d.vertices = append(d.vertices, &vertex{
			id:       len(d.vertices),
			point:    n.Point,
			kind:     kindStreet,
			building: -1,
			alive:    true,
		})
	}
	d.stats.StreetNodes = len(d.vertices)

	type pair struct{ from, to int }
	seen := make(map[pair]bool, len(g.Edges))

	for i, e := range g.Edges {
		from, okFrom := dense[e.From]
		to, okTo := dense[e.To]
		if !okFrom || !okTo {
			return apperror.Newf(apperror.CodeInvalidGeometry,
				"street edge %d references unknown node (%s -> %s)", i, e.From, e.To).
				WithDetails("edge", i)
		}
		if from == to {
			d.stats.SelfLoopsDropped++
			continue
		}
		key := pair{from, to}
		if d.cfg.MergeReverseEdges && from > to {
			key = pair{to, from}
		}
		if seen[key] {
			d.stats.ParallelsDropped++
			continue
		}
		seen[key] = true

		geom := e.Geometry
		if len(geom) < 2 {
			geom = orb.LineString{d.vertices[from].point, d.vertices[to].point}
		} else {
			// Концы геометрии совпадают с узлами
			geom[0] = d.vertices[from].point
			geom[len(geom)-1] = d.vertices[to].point
		}
		d.streets = append(d.streets, &link{from: from, to: to, geom: geom, alive: true})
	}

	if len(d.streets) == 0 {
		return apperror.New(apperror.CodeEmptyStreetGraph, "street graph has no edges after removing self-loops")
	}
	d.stats.StreetEdges = len(d.streets)
	return nil
}

func (d *Draft) selectProducer(points []orb.Point) (int, error) {
	switch d.cfg.Producer {
	case ProducerByIndex:
		if d.cfg.ProducerIndex >= len(points) {
			return 0, apperror.Newf(apperror.CodeInvalidBuilderConfig,
				"producer index %d out of range, %d buildings supplied", d.cfg.ProducerIndex, len(points)).
				WithField("producer_index")
		}
		return d.cfg.ProducerIndex, nil
	case ProducerNearest:
		loc, err := geometry.Project([]orb.Point{d.cfg.ProducerLocation}, d.cfg.InputCRS, d.cfg.WorkingCRS())
		if err != nil {
			return 0, err
		}
		best, bestDist := 0, geometry.Distance(points[0], loc[0])
		for i := 1; i < len(points); i++ {
			if dist := geometry.Distance(points[i], loc[0]); dist < bestDist {
				best, bestDist = i, dist
			}
		}
		return best, nil
	default:
		return 0, apperror.New(apperror.CodeInvalidBuilderConfig, "producer selection policy is required")
	}
}

// connect подключает здание i к ближайшему участку улицы
func (d *Draft) connect(i int, p orb.Point) error {
	bestLink, bestSeg := -1, -1
	var best geometry.Match
	for k, l := range d.streets {
		if !l.alive {
			continue
		}
		m, ok := geometry.NearestOnLineString(p, l.geom)
		if !ok {
			continue
		}
		if bestLink < 0 || m.Distance < best.Distance {
			bestLink, bestSeg, best = k, m.Index, m
		}
	}

	if bestLink < 0 {
		return apperror.NewWithField(apperror.CodeSegmentNotFound,
			"no street segment available", fmt.Sprintf("building=%d", i)).
			WithDetails("building", i)
	}
	if best.Distance > d.cfg.MaxSearchDistance {
		return apperror.NewWithField(apperror.CodeSegmentNotFound,
			fmt.Sprintf("nearest street segment is %.3f away, limit %.3f", best.Distance, d.cfg.MaxSearchDistance),
			fmt.Sprintf("building=%d", i)).
			WithDetails("building", i).
			WithDetails("distance", best.Distance)
	}

	conn := d.attachPoint(bestLink, bestSeg, best.Point)

	b := d.addVertex(p, kindEndpoint)
	b.building = i
	d.services = append(d.services, &link{
		from:  conn,
		to:    b.id,
		geom:  orb.LineString{d.vertices[conn].point, p},
		alive: true,
	})
	return nil
}

// attachPoint возвращает узел подключения: существующий узел в пределах
// допуска или новую развилку, делящую участок на два.
func (d *Draft) attachPoint(k, seg int, q orb.Point) int {
	l := d.streets[k]
	from, to := d.vertices[l.from], d.vertices[l.to]

	if geometry.Distance(q, from.point) <= d.cfg.SnapTolerance {
		d.stats.SnappedToNode++
		return from.id
	}
	if geometry.Distance(q, to.point) <= d.cfg.SnapTolerance {
		d.stats.SnappedToNode++
		return to.id
	}

	fork := d.addVertex(q, kindFork)
	head, tail := geometry.SplitLineString(l.geom, seg, q)

	// Голова остаётся на месте участка, хвост встаёт сразу за ней: порядок
	// участков совпадает с порядком входных рёбер, на нём держится выбор
	// при равных расстояниях.
	d.streets[k] = &link{from: l.from, to: fork.id, geom: head, alive: true}
	d.streets = slices.Insert(d.streets, k+1, &link{from: fork.id, to: l.to, geom: tail, alive: true})
	d.stats.ForksInserted++
	return fork.id
}

func (d *Draft) addVertex(p orb.Point, kind vertexKind) *vertex {
	v := &vertex{id: len(d.vertices), point: p, kind: kind, building: -1, alive: true}
	d.vertices = append(d.vertices, v)
	return v
}

func (d *Draft) endpointOf(building int) int {
	for _, v := range d.vertices {
		if v.kind == kindEndpoint && v.building == building {
			return v.id
		}
	}
	return -1
}

// prune удаляет тупиковые участки улиц и компоненты без зданий
func (d *Draft) prune() {
	degree := make([]int, len(d.vertices))
	adj := make([][]int, len(d.vertices))
	all := append(append([]*link(nil), d.streets...), d.services...)
	for li, l := range all {
		if !l.alive {
			continue
		}
		degree[l.from]++
		degree[l.to]++
		adj[l.from] = append(adj[l.from], li)
		adj[l.to] = append(adj[l.to], li)
	}

	queue := make([]int, 0)
	for _, v := range d.vertices {
		if v.kind != kindEndpoint && degree[v.id] <= 1 {
			queue = append(queue, v.id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		v := d.vertices[id]
		if !v.alive || degree[id] > 1 {
			continue
		}
		v.alive = false
		d.stats.PrunedNodes++

		for _, li := range adj[id] {
			l := all[li]
			if !l.alive {
				continue
			}
			l.alive = false
			d.stats.PrunedEdges++
			other := l.from
			if other == id {
				other = l.to
			}
			degree[other]--
			degree[id]--
			if d.vertices[other].kind != kindEndpoint && degree[other] <= 1 {
				queue = append(queue, other)
			}
		}
	}

	// Компоненты без зданий (например, замкнутые кварталы)
	visited := make([]bool, len(d.vertices))
	for _, v := range d.vertices {
		if !v.alive || visited[v.id] {
			continue
		}
		component := []int{v.id}
		visited[v.id] = true
		hasEndpoint := false
		for i := 0; i < len(component); i++ {
			u := component[i]
			if d.vertices[u].kind == kindEndpoint {
				hasEndpoint = true
			}
			for _, li := range adj[u] {
				l := all[li]
				if !l.alive {
					continue
				}
				w := l.from
				if w == u {
					w = l.to
				}
				if !visited[w] {
					visited[w] = true
					component = append(component, w)
				}
			}
		}
		if hasEndpoint {
			continue
		}
		for _, u := range component {
			d.vertices[u].alive = false
			d.stats.PrunedNodes++
			for _, li := range adj[u] {
				if all[li].alive {
					all[li].alive = false
					d.stats.PrunedEdges++
				}
			}
		}
	}
}

// Finalize назначает роли и идентификаторы (forks-i, consumers-i,
// producers-i, где i плотный номер узла), переписывает концы труб и
// проверяет согласованность. Вызывается один раз, после всех вставок.
func (d *Draft) Finalize() (*network.Topology, error) {
	if d.finalized {
		return nil, apperror.New(apperror.CodeInvalidArgument, "draft is already finalized")
	}
	d.finalized = true

	t := network.NewTopology()
	for _, v := range d.vertices {
		if !v.alive {
			continue
		}
		role := network.RoleFork
		if v.kind == kindEndpoint {
			role = network.RoleConsumer
			if v.id == d.producer {
				role = network.RoleProducer
			}
		}
		node := &network.Node{
			ID:   strconv.Itoa(v.id),
			Role: role,
			X:    v.point[0],
			Y:    v.point[1],
		}
		if v.kind == kindEndpoint {
			node.Attributes = map[string]string{"building": strconv.Itoa(v.building)}
		}
		t.AddNode(node)
	}

	for _, l := range d.streets {
		if l.alive {
			t.AddPipe(d.pipe(l.from, l.to, l.geom))
		}
	}
	for _, l := range d.services {
		if !l.alive {
			continue
		}
		if l.to == d.producer {
			// Труба источника направлена от источника в сеть
			rev := l.geom.Clone()
			rev.Reverse()
			t.AddPipe(d.pipe(l.to, l.from, rev))
			continue
		}
		t.AddPipe(d.pipe(l.from, l.to, l.geom))
	}

	network.AssignIdentifiers(t)

	if err := network.Validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Draft) pipe(from, to int, geom orb.LineString) *network.Pipe {
	return &network.Pipe{
		From:     strconv.Itoa(from),
		To:       strconv.Itoa(to),
		Length:   geometry.Length(geom),
		Diameter: d.cfg.DefaultDiameter,
		Geometry: geom,
	}
}
