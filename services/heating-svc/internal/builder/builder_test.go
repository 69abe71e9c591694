package builder

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatnet/pkg/apperror"
	"heatnet/pkg/geometry"
	"heatnet/pkg/network"
)

func testConfig() Config {
	return Config{
		InputCRS:          geometry.CRSPlanar,
		SnapTolerance:     0.5,
		MaxSearchDistance: 50,
		Producer:          ProducerByIndex,
		ProducerIndex:     0,
		DefaultDiameter:   0.1,
		PruneDangling:     true,
	}
}

// abcStreets улица A-B-C: A(0,0) -> B(10,0) -> C(20,0)
func abcStreets() *StreetGraph {
	return &StreetGraph{
		Nodes: []StreetNode{
			{Key: "A", Point: orb.Point{0, 0}},
			{Key: "B", Point: orb.Point{10, 0}},
			{Key: "C", Point: orb.Point{20, 0}},
		},
		Edges: []StreetEdge{
			{From: "A", To: "B"},
			{From: "B", To: "C"},
		},
	}
}

func build(t *testing.T, buildings []orb.Point, streets *StreetGraph, cfg Config) *network.Topology {
	t.Helper()
	d, err := Build(buildings, streets, cfg)
	require.NoError(t, err)
	top, err := d.Finalize()
	require.NoError(t, err)
	return top
}

func TestBuild_ABCScenario(t *testing.T) {
	buildings := []orb.Point{{-3, 0}, {23, 2}, {23, -2}}
	top := build(t, buildings, abcStreets(), testConfig())

	ids := make([]string, len(top.Nodes))
	for i, n := range top.Nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"forks-0", "forks-1", "forks-2", "producers-3", "consumers-4", "consumers-5"}, ids)

	require.Len(t, top.Pipes, 5)
	want := []network.PipeKey{
		{From: "forks-0", To: "forks-1"},
		{From: "forks-1", To: "forks-2"},
		{From: "producers-3", To: "forks-0"},
		{From: "forks-2", To: "consumers-4"},
		{From: "forks-2", To: "consumers-5"},
	}
	for i, k := range want {
		assert.Equal(t, k, top.Pipes[i].Key(), "pipe %d", i)
		assert.Equal(t, network.PipeID(i), top.Pipes[i].ID)
	}

	assert.InDelta(t, 10.0, top.Pipes[0].Length, 1e-12)
	assert.InDelta(t, 3.0, top.Pipes[2].Length, 1e-12)
	assert.Equal(t, 0.1, top.Pipes[0].Diameter)

	c4, ok := top.Node("consumers-4")
	require.True(t, ok)
	assert.Equal(t, "1", c4.Attributes["building"])

	require.NoError(t, network.Validate(top))
}

func TestBuild_InsertsForkOnSegment(t *testing.T) {
	buildings := []orb.Point{{-3, 0}, {5, 4}, {15, -4}}
	d, err := Build(buildings, abcStreets(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Stats().ForksInserted)

	top, err := d.Finalize()
	require.NoError(t, err)

	// A, B, две развилки и три здания; тупик C удалён
	assert.Len(t, top.Nodes, 7)
	assert.Len(t, top.NodesByRole(network.RoleFork), 4)
	assert.Len(t, top.NodesByRole(network.RoleConsumer), 2)
	_, ok := top.Node("forks-2")
	assert.False(t, ok, "dead end C is pruned")

	fork, ok := top.Node("forks-4")
	require.True(t, ok)
	assert.Equal(t, orb.Point{5, 0}, fork.Point())

	// Участок A-B разделён: A -> forks-4 -> B
	assert.Equal(t, network.PipeKey{From: "forks-0", To: "forks-4"}, top.Pipes[0].Key())
	var total float64
	for _, p := range top.Pipes {
		if p.From == "forks-4" && p.To == "forks-1" {
			total = p.Length
		}
	}
	assert.InDelta(t, 5.0, total, 1e-12)
}

func TestBuild_SnapTolerance(t *testing.T) {
	cfg := testConfig()
	cfg.SnapTolerance = 1

	buildings := []orb.Point{{-3, 0}, {10.6, 3}, {20, 3}}
	d, err := Build(buildings, abcStreets(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Stats().ForksInserted)
	assert.Equal(t, 3, d.Stats().SnappedToNode)

	cfg.SnapTolerance = 0.1
	d, err = Build(buildings, abcStreets(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().ForksInserted)
}

func TestBuild_SameConnectionPointSharesFork(t *testing.T) {
	cfg := testConfig()
	buildings := []orb.Point{{-3, 0}, {5, 3}, {5, -3}}
	d, err := Build(buildings, abcStreets(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().ForksInserted)
	// A для источника и новая развилка для второго здания
	assert.Equal(t, 2, d.Stats().SnappedToNode)
}

func TestBuild_CollapseStreetGraph(t *testing.T) {
	streets := abcStreets()
	streets.Edges = append(streets.Edges,
		StreetEdge{From: "B", To: "B"},
		StreetEdge{From: "A", To: "B", Geometry: orb.LineString{{0, 0}, {5, 5}, {10, 0}}},
		StreetEdge{From: "B", To: "A"},
	)
	before := streets.Clone()

	d, err := Build([]orb.Point{{-3, 0}, {23, 0}}, streets, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().SelfLoopsDropped)
	assert.Equal(t, 1, d.Stats().ParallelsDropped)
	assert.Equal(t, 3, d.Stats().StreetEdges)
	assert.Equal(t, before, streets, "input graph must not be mutated")

	cfg := testConfig()
	cfg.MergeReverseEdges = true
	d, err = Build([]orb.Point{{-3, 0}, {23, 0}}, streets, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Stats().ParallelsDropped)

	top, err := d.Finalize()
	require.NoError(t, err)
	assert.Len(t, top.Pipes, 4)
}

func TestBuild_TieBreakLowestEdge(t *testing.T) {
	streets := &StreetGraph{
		Nodes: []StreetNode{
			{Key: "a", Point: orb.Point{0, 1}},
			{Key: "b", Point: orb.Point{10, 1}},
			{Key: "c", Point: orb.Point{0, -1}},
			{Key: "d", Point: orb.Point{10, -1}},
		},
		Edges: []StreetEdge{
			{From: "a", To: "b"},
			{From: "c", To: "d"},
			{From: "b", To: "d"},
		},
	}

	d, err := Build([]orb.Point{{10, 5}, {5, 0}}, streets, testConfig())
	require.NoError(t, err)
	top, err := d.Finalize()
	require.NoError(t, err)

	fork, ok := top.Node("forks-5")
	require.True(t, ok)
	assert.Equal(t, orb.Point{5, 1}, fork.Point(), "equidistant edges resolve to the first edge")
}

func TestBuild_TieBreakAfterSplit(t *testing.T) {
	// A(0,0)-B(10,0) первое ребро, D(0,4)-E(10,4) второе. Первое здание
	// делит A-B в (5,0); второе на расстоянии 2 и от хвоста (5,0)-B, и от D-E.
	streets := &StreetGraph{
		Nodes: []StreetNode{
			{Key: "A", Point: orb.Point{0, 0}},
			{Key: "B", Point: orb.Point{10, 0}},
			{Key: "D", Point: orb.Point{0, 4}},
			{Key: "E", Point: orb.Point{10, 4}},
		},
		Edges: []StreetEdge{
			{From: "A", To: "B"},
			{From: "D", To: "E"},
		},
	}

	d, err := Build([]orb.Point{{5, -1}, {8, 2}}, streets, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Stats().ForksInserted)

	top, err := d.Finalize()
	require.NoError(t, err)

	consumers := top.NodesByRole(network.RoleConsumer)
	require.Len(t, consumers, 1)

	var conn *network.Node
	for _, p := range top.Pipes {
		if p.To == consumers[0].ID {
			conn, _ = top.Node(p.From)
		}
	}
	require.NotNil(t, conn)
	assert.Equal(t, orb.Point{8, 0}, conn.Point(), "tail of the split first edge precedes the second edge")
}

func TestBuild_ProducerNearest(t *testing.T) {
	cfg := testConfig()
	cfg.Producer = ProducerNearest
	cfg.ProducerLocation = orb.Point{22, 0}

	top := build(t, []orb.Point{{-3, 0}, {23, 2}, {23, -2}}, abcStreets(), cfg)
	producer, ok := top.Producer()
	require.True(t, ok)
	assert.Equal(t, "producers-4", producer.ID)
}

func TestBuild_WGS84Input(t *testing.T) {
	streets := &StreetGraph{
		Nodes: []StreetNode{
			{Key: "1", Point: orb.Point{13.5380, 52.4303}},
			{Key: "2", Point: orb.Point{13.5390, 52.4303}},
		},
		Edges: []StreetEdge{{From: "1", To: "2"}},
	}
	cfg := testConfig()
	cfg.InputCRS = geometry.CRSWGS84
	cfg.MaxSearchDistance = 100

	top := build(t, []orb.Point{{13.5381, 52.4304}, {13.5389, 52.4302}}, streets, cfg)
	for _, p := range top.Pipes {
		assert.Less(t, p.Length, 150.0)
	}
	forks := top.NodesByRole(network.RoleFork)
	require.NotEmpty(t, forks)
	assert.Greater(t, forks[0].X, 1e6, "coordinates are projected to metres")
}

func TestBuild_Pruning(t *testing.T) {
	streets := abcStreets()
	streets.Nodes = append(streets.Nodes,
		StreetNode{Key: "D", Point: orb.Point{10, 30}},
		StreetNode{Key: "X", Point: orb.Point{500, 500}},
		StreetNode{Key: "Y", Point: orb.Point{510, 500}},
		StreetNode{Key: "Z", Point: orb.Point{505, 510}},
	)
	streets.Edges = append(streets.Edges,
		StreetEdge{From: "B", To: "D"},
		StreetEdge{From: "X", To: "Y"},
		StreetEdge{From: "Y", To: "Z"},
		StreetEdge{From: "Z", To: "X"},
	)

	d, err := Build([]orb.Point{{-3, 0}, {13, -2}}, streets, testConfig())
	require.NoError(t, err)
	assert.Positive(t, d.Stats().PrunedNodes)

	top, err := d.Finalize()
	require.NoError(t, err)
	for _, n := range top.Nodes {
		assert.Less(t, n.X, 100.0, "remote loop must be removed: %s", n.ID)
		assert.Less(t, n.Y, 20.0, "dead end D must be removed: %s", n.ID)
	}

	cfg := testConfig()
	cfg.PruneDangling = false
	d, err = Build([]orb.Point{{-3, 0}, {13, -2}}, streets, cfg)
	require.NoError(t, err)
	_, err = d.Finalize()
	assert.True(t, apperror.Is(err, apperror.CodeUnreachableNode))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name      string
		buildings []orb.Point
		streets   *StreetGraph
		mutate    func(c *Config)
		code      apperror.ErrorCode
	}{
		{
			name:    "no buildings",
			streets: abcStreets(),
			code:    apperror.CodeNoBuildings,
		},
		{
			name:      "no edges",
			buildings: []orb.Point{{0, 0}},
			streets:   &StreetGraph{Nodes: []StreetNode{{Key: "A"}}},
			code:      apperror.CodeEmptyStreetGraph,
		},
		{
			name:      "nil streets",
			buildings: []orb.Point{{0, 0}},
			code:      apperror.CodeEmptyStreetGraph,
		},
		{
			name:      "only self-loops",
			buildings: []orb.Point{{0, 0}},
			streets: &StreetGraph{
				Nodes: []StreetNode{{Key: "A"}},
				Edges: []StreetEdge{{From: "A", To: "A"}},
			},
			code: apperror.CodeEmptyStreetGraph,
		},
		{
			name:      "building too far",
			buildings: []orb.Point{{-3, 0}, {10, 500}},
			streets:   abcStreets(),
			code:      apperror.CodeSegmentNotFound,
		},
		{
			name:      "unknown street node",
			buildings: []orb.Point{{0, 0}},
			streets: &StreetGraph{
				Nodes: []StreetNode{{Key: "A"}},
				Edges: []StreetEdge{{From: "A", To: "Q"}},
			},
			code: apperror.CodeInvalidGeometry,
		},
		{
			name:      "missing producer policy",
			buildings: []orb.Point{{0, 0}},
			streets:   abcStreets(),
			mutate:    func(c *Config) { c.Producer = "" },
			code:      apperror.CodeInvalidBuilderConfig,
		},
		{
			name:      "producer index out of range",
			buildings: []orb.Point{{0, 0}},
			streets:   abcStreets(),
			mutate:    func(c *Config) { c.ProducerIndex = 7 },
			code:      apperror.CodeInvalidBuilderConfig,
		},
		{
			name:      "zero search distance",
			buildings: []orb.Point{{0, 0}},
			streets:   abcStreets(),
			mutate:    func(c *Config) { c.MaxSearchDistance = 0 },
			code:      apperror.CodeInvalidBuilderConfig,
		},
		{
			name:      "unsupported CRS",
			buildings: []orb.Point{{0, 0}},
			streets:   abcStreets(),
			mutate:    func(c *Config) { c.InputCRS = "EPSG:25833" },
			code:      apperror.CodeUnsupportedCRS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			_, err := Build(tt.buildings, tt.streets, cfg)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, tt.code), "expected %s, got %v", tt.code, err)
			assert.True(t, apperror.IsFamily(err, apperror.FamilyTopology), "got %v", err)
		})
	}
}

func TestBuild_ErrorNamesBuilding(t *testing.T) {
	_, err := Build([]orb.Point{{-3, 0}, {1, 1}, {10, 500}}, abcStreets(), testConfig())
	require.Error(t, err)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "building=2", appErr.Field)
	assert.Equal(t, 2, appErr.Details["building"])
}

func TestFinalize_Once(t *testing.T) {
	d, err := Build([]orb.Point{{-3, 0}, {23, 0}}, abcStreets(), testConfig())
	require.NoError(t, err)

	_, err = d.Finalize()
	require.NoError(t, err)
	_, err = d.Finalize()
	assert.Error(t, err)
}

func TestFinalize_RenamingIsIdempotent(t *testing.T) {
	top := build(t, []orb.Point{{-3, 0}, {5, 3}, {23, 2}, {23, -2}}, abcStreets(), testConfig())
	again := top.Clone()
	network.AssignIdentifiers(again)

	for i := range top.Nodes {
		assert.Equal(t, top.Nodes[i].ID, again.Nodes[i].ID)
	}
	for i := range top.Pipes {
		assert.Equal(t, top.Pipes[i].Key(), again.Pipes[i].Key())
	}
}

func TestBuildFromFootprints(t *testing.T) {
	square := func(cx, cy float64) orb.Polygon {
		return orb.Polygon{orb.Ring{{cx - 1, cy - 1}, {cx + 1, cy - 1}, {cx + 1, cy + 1}, {cx - 1, cy + 1}, {cx - 1, cy - 1}}}
	}

	d, err := BuildFromFootprints([]orb.Polygon{square(-3, 0), square(23, 2)}, abcStreets(), testConfig())
	require.NoError(t, err)
	top, err := d.Finalize()
	require.NoError(t, err)

	producer, ok := top.Producer()
	require.True(t, ok)
	assert.InDelta(t, -3.0, producer.X, 1e-12)

	_, err = BuildFromFootprints(nil, abcStreets(), testConfig())
	assert.True(t, apperror.Is(err, apperror.CodeNoBuildings))
}
