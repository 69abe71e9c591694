package handlers

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"heatnet/pkg/apperror"
	"heatnet/pkg/geometry"
	"heatnet/pkg/heatingv1"
	"heatnet/pkg/network"
	"heatnet/services/heating-svc/internal/aggregator"
	"heatnet/services/heating-svc/internal/builder"
	"heatnet/services/heating-svc/internal/repository"
)

func toPoints(pts []heatingv1.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

func toLineString(pts []heatingv1.Point) orb.LineString {
	if len(pts) == 0 {
		return nil
	}
	return orb.LineString(toPoints(pts))
}

func fromLineString(ls orb.LineString) []heatingv1.Point {
	if len(ls) == 0 {
		return nil
	}
	out := make([]heatingv1.Point, len(ls))
	for i, p := range ls {
		out[i] = heatingv1.Point{X: p[0], Y: p[1]}
	}
	return out
}

// toFootprints замыкает кольца, если клиент не повторил первую точку
func toFootprints(rings [][]heatingv1.Point) []orb.Polygon {
	out := make([]orb.Polygon, len(rings))
	for i, r := range rings {
		ring := orb.Ring(toPoints(r))
		if len(ring) > 0 && !ring.Closed() {
			ring = append(ring, ring[0])
		}
		out[i] = orb.Polygon{ring}
	}
	return out
}

func toStreetGraph(g heatingv1.StreetGraph) *builder.StreetGraph {
	out := &builder.StreetGraph{
		Nodes: make([]builder.StreetNode, len(g.Nodes)),
		Edges: make([]builder.StreetEdge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = builder.StreetNode{Key: n.Key, Point: orb.Point{n.X, n.Y}}
	}
	for i, e := range g.Edges {
		out.Edges[i] = builder.StreetEdge{From: e.From, To: e.To, Geometry: toLineString(e.Geometry)}
	}
	return out
}

// mergeBuilderOptions накладывает опции запроса на конфигурацию сервера
func mergeBuilderOptions(base builder.Config, o *heatingv1.BuilderOptions) *builder.Config {
	cfg := base
	if o == nil {
		return &cfg
	}
	if o.CRS != "" {
		cfg.InputCRS = geometry.CRS(o.CRS)
	}
	if o.SnapTolerance != nil {
		cfg.SnapTolerance = *o.SnapTolerance
	}
	if o.MaxSearchDistance > 0 {
		cfg.MaxSearchDistance = o.MaxSearchDistance
	}
	if o.Producer != "" {
		cfg.Producer = builder.ProducerPolicy(o.Producer)
		cfg.ProducerIndex = o.ProducerIndex
		if o.ProducerLocation != nil {
			cfg.ProducerLocation = orb.Point{o.ProducerLocation.X, o.ProducerLocation.Y}
		}
	}
	if o.DefaultDiameter > 0 {
		cfg.DefaultDiameter = o.DefaultDiameter
	}
	if o.PruneDangling != nil {
		cfg.PruneDangling = *o.PruneDangling
	}
	if o.MergeReverseEdges != nil {
		cfg.MergeReverseEdges = *o.MergeReverseEdges
	}
	return &cfg
}

func roleName(r network.Role) string {
	return strings.ToLower(r.String())
}

func parseRole(s string) (network.Role, error) {
	switch s {
	case "producer":
		return network.RoleProducer, nil
	case "consumer":
		return network.RoleConsumer, nil
	case "fork":
		return network.RoleFork, nil
	default:
		return network.RoleUnspecified, apperror.NewWithField(apperror.CodeInvalidArgument,
			fmt.Sprintf("unknown node role %q", s), "role")
	}
}

func toDemand(d *heatingv1.Demand) *network.DemandMatrix {
	if d == nil {
		return nil
	}
	return network.NewDemandMatrix(d.Snapshots, d.Consumers, d.Values)
}

func fromDemand(d *network.DemandMatrix) *heatingv1.Demand {
	if d == nil {
		return nil
	}
	return &heatingv1.Demand{Snapshots: d.Snapshots, Consumers: d.Columns, Values: d.Values}
}

func toTopology(n heatingv1.Network) (*network.Topology, error) {
	t := network.NewTopology()
	for _, node := range n.Nodes {
		role, err := parseRole(node.Role)
		if err != nil {
			return nil, err
		}
		t.AddNode(&network.Node{
			ID:         node.ID,
			Role:       role,
			X:          node.X,
			Y:          node.Y,
			Attributes: node.Attributes,
		})
	}
	for _, p := range n.Pipes {
		t.AddPipe(&network.Pipe{
			ID:         p.ID,
			From:       p.From,
			To:         p.To,
			Length:     p.Length,
			Diameter:   p.Diameter,
			Geometry:   toLineString(p.Geometry),
			Attributes: p.Attributes,
		})
	}
	if d := toDemand(n.Demand); d != nil {
		t.SetDemand(d)
	}
	return t, nil
}

func fromTopology(t *network.Topology) heatingv1.Network {
	out := heatingv1.Network{
		Nodes: make([]heatingv1.Node, len(t.Nodes)),
		Pipes: make([]heatingv1.Pipe, len(t.Pipes)),
	}
	for i, n := range t.Nodes {
		out.Nodes[i] = heatingv1.Node{
			ID:         n.ID,
			Role:       roleName(n.Role),
			X:          n.X,
			Y:          n.Y,
			Attributes: n.Attributes,
		}
	}
	for i, p := range t.Pipes {
		out.Pipes[i] = heatingv1.Pipe{
			ID:         p.ID,
			From:       p.From,
			To:         p.To,
			Length:     p.Length,
			Diameter:   p.Diameter,
			Geometry:   fromLineString(p.Geometry),
			Attributes: p.Attributes,
		}
	}
	if d, ok := t.Demand(); ok {
		out.Demand = fromDemand(d)
	}
	return out
}

func fromStats(s builder.Stats) heatingv1.BuildStats {
	return heatingv1.BuildStats{
		StreetNodes:      s.StreetNodes,
		StreetEdges:      s.StreetEdges,
		SelfLoopsDropped: s.SelfLoopsDropped,
		ParallelsDropped: s.ParallelsDropped,
		ForksInserted:    s.ForksInserted,
		SnappedToNode:    s.SnappedToNode,
		PrunedNodes:      s.PrunedNodes,
		PrunedEdges:      s.PrunedEdges,
	}
}

func fromReport(r *aggregator.Report) heatingv1.Report {
	out := heatingv1.Report{
		Network: heatingv1.NetworkSummary{
			Snapshots:    r.Network.Snapshots,
			Pipes:        r.Network.Pipes,
			PeakSupply:   r.Network.PeakSupply,
			TotalSupply:  r.Network.TotalSupply,
			MaxImbalance: r.Network.MaxImbalance,
		},
		Edges:     make([]heatingv1.EdgeSeries, len(r.Edges)),
		Snapshots: make([]heatingv1.SnapshotSummary, len(r.Snapshots)),
	}
	for i, e := range r.Edges {
		out.Edges[i] = heatingv1.EdgeSeries(e)
	}
	for i, s := range r.Snapshots {
		out.Snapshots[i] = heatingv1.SnapshotSummary(s)
	}
	return out
}

func fromRun(r *repository.Run) heatingv1.Run {
	return heatingv1.Run{
		ID:            r.ID.String(),
		Name:          r.Name,
		Subject:       r.Subject,
		NetworkHash:   r.NetworkHash,
		DemandHash:    r.DemandHash,
		NodeCount:     r.NodeCount,
		PipeCount:     r.PipeCount,
		SnapshotCount: r.SnapshotCount,
		TotalDemand:   r.TotalDemand,
		MaxResidual:   r.MaxResidual,
		Condition:     r.Condition,
		CacheHit:      r.CacheHit,
		DurationMs:    r.DurationMs,
		CreatedAt:     r.CreatedAt,
	}
}

func fromRunSummary(r *repository.RunSummary) heatingv1.Run {
	return heatingv1.Run{
		ID:            r.ID.String(),
		Name:          r.Name,
		NetworkHash:   r.NetworkHash,
		NodeCount:     r.NodeCount,
		PipeCount:     r.PipeCount,
		SnapshotCount: r.SnapshotCount,
		TotalDemand:   r.TotalDemand,
		MaxResidual:   r.MaxResidual,
		CreatedAt:     r.CreatedAt,
	}
}
