// Package heatingv1 describes the JSON messages of the heating service API
// and wires them to Connect handlers and clients.
package heatingv1

import "time"

// Point is a coordinate pair in the request CRS.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type StreetNode struct {
	Key string  `json:"key" validate:"required"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
}

// StreetEdge is a directed street segment. An empty geometry means a
// straight line between the endpoints.
type StreetEdge struct {
	From     string  `json:"from" validate:"required"`
	To       string  `json:"to" validate:"required"`
	Geometry []Point `json:"geometry,omitempty"`
}

type StreetGraph struct {
	Nodes []StreetNode `json:"nodes" validate:"dive"`
	Edges []StreetEdge `json:"edges" validate:"dive"`
}

// BuilderOptions overrides the server builder configuration. Zero values
// keep the server defaults.
type BuilderOptions struct {
	CRS               string   `json:"crs,omitempty" validate:"omitempty,oneof=EPSG:4326 EPSG:3857 planar"`
	SnapTolerance     *float64 `json:"snap_tolerance,omitempty" validate:"omitempty,gte=0"`
	MaxSearchDistance float64  `json:"max_search_distance,omitempty" validate:"gte=0"`
	Producer          string   `json:"producer,omitempty" validate:"omitempty,oneof=index nearest"`
	ProducerIndex     int      `json:"producer_index,omitempty" validate:"gte=0"`
	ProducerLocation  *Point   `json:"producer_location,omitempty" validate:"required_if=Producer nearest"`
	DefaultDiameter   float64  `json:"default_diameter,omitempty" validate:"gte=0"`
	PruneDangling     *bool    `json:"prune_dangling,omitempty"`
	MergeReverseEdges *bool    `json:"merge_reverse_edges,omitempty"`
}

type Node struct {
	ID         string            `json:"id" validate:"required"`
	Role       string            `json:"role" validate:"required,oneof=producer consumer fork"`
	X          float64           `json:"x"`
	Y          float64           `json:"y"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type Pipe struct {
	ID         string            `json:"id" validate:"required"`
	From       string            `json:"from" validate:"required"`
	To         string            `json:"to" validate:"required"`
	Length     float64           `json:"length" validate:"gte=0"`
	Diameter   float64           `json:"diameter" validate:"gte=0"`
	Geometry   []Point           `json:"geometry,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Demand is a snapshot x consumer mass-flow table, kg/s.
type Demand struct {
	Snapshots []int       `json:"snapshots" validate:"required,min=1"`
	Consumers []string    `json:"consumers" validate:"required,min=1"`
	Values    [][]float64 `json:"values" validate:"required,min=1"`
}

type Network struct {
	Nodes  []Node  `json:"nodes" validate:"dive"`
	Pipes  []Pipe  `json:"pipes" validate:"dive"`
	Demand *Demand `json:"demand,omitempty"`
}

type BuildStats struct {
	StreetNodes      int `json:"street_nodes"`
	StreetEdges      int `json:"street_edges"`
	SelfLoopsDropped int `json:"self_loops_dropped"`
	ParallelsDropped int `json:"parallels_dropped"`
	ForksInserted    int `json:"forks_inserted"`
	SnappedToNode    int `json:"snapped_to_node"`
	PrunedNodes      int `json:"pruned_nodes"`
	PrunedEdges      int `json:"pruned_edges"`
}

// BuildNetworkRequest builds a network from building locations or
// footprints (outer rings) and a street graph.
type BuildNetworkRequest struct {
	Buildings  []Point         `json:"buildings,omitempty" validate:"required_without=Footprints"`
	Footprints [][]Point       `json:"footprints,omitempty" validate:"omitempty,dive,min=3"`
	Streets    StreetGraph     `json:"streets"`
	Demand     *Demand         `json:"demand,omitempty"`
	Options    *BuilderOptions `json:"options,omitempty"`
}

type BuildNetworkResponse struct {
	Network     Network    `json:"network"`
	NetworkHash string     `json:"network_hash"`
	Stats       BuildStats `json:"stats"`
}

// SolveRequest solves a network. Demand falls back to the network demand.
type SolveRequest struct {
	Name    string  `json:"name,omitempty" validate:"max=200"`
	Network Network `json:"network"`
	Demand  *Demand `json:"demand,omitempty"`
}

type EdgeSeries struct {
	PipeID    string    `json:"pipe_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Snapshots []int     `json:"snapshots"`
	Flow      []float64 `json:"flow"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Mean      float64   `json:"mean"`
}

type SnapshotSummary struct {
	Snapshot       int     `json:"snapshot"`
	ProducerSupply float64 `json:"producer_supply"`
	ConsumerDemand float64 `json:"consumer_demand"`
	Imbalance      float64 `json:"imbalance"`
	PumpPower      float64 `json:"pump_power"`
	HeatFeedIn     float64 `json:"heat_feed_in"`
	HeatConsumed   float64 `json:"heat_consumed"`
	HeatLosses     float64 `json:"heat_losses"`
}

type NetworkSummary struct {
	Snapshots    int     `json:"snapshots"`
	Pipes        int     `json:"pipes"`
	PeakSupply   float64 `json:"peak_supply"`
	TotalSupply  float64 `json:"total_supply"`
	MaxImbalance float64 `json:"max_imbalance"`
}

type Report struct {
	Network   NetworkSummary    `json:"network"`
	Edges     []EdgeSeries      `json:"edges"`
	Snapshots []SnapshotSummary `json:"snapshots"`
}

type Run struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	NetworkHash   string    `json:"network_hash"`
	DemandHash    string    `json:"demand_hash,omitempty"`
	NodeCount     int       `json:"node_count"`
	PipeCount     int       `json:"pipe_count"`
	SnapshotCount int       `json:"snapshot_count"`
	TotalDemand   float64   `json:"total_demand"`
	MaxResidual   float64   `json:"max_residual"`
	Condition     float64   `json:"condition,omitempty"`
	CacheHit      bool      `json:"cache_hit"`
	DurationMs    float64   `json:"duration_ms,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type SolveResponse struct {
	Run      Run    `json:"run"`
	Report   Report `json:"report"`
	CacheHit bool   `json:"cache_hit"`
}

type GetRunRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

type GetRunResponse struct {
	Run    Run    `json:"run"`
	Report Report `json:"report"`
}

type ListRunsRequest struct {
	Limit       int    `json:"limit,omitempty" validate:"gte=0,lte=100"`
	Offset      int    `json:"offset,omitempty" validate:"gte=0"`
	NetworkHash string `json:"network_hash,omitempty" validate:"omitempty,hexadecimal"`
}

type ListRunsResponse struct {
	Runs  []Run `json:"runs"`
	Total int64 `json:"total"`
}

type DeleteRunRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

type DeleteRunResponse struct{}
