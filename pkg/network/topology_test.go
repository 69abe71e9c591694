package network

import (
	"sync"
	"testing"

	"github.com/paulmach/orb"
)

func TestRole_String(t *testing.T) {
	tests := []struct {
		role Role
		name string
		list string
	}{
		{RoleProducer, "Producer", "producers"},
		{RoleConsumer, "Consumer", "consumers"},
		{RoleFork, "Fork", "forks"},
		{RoleUnspecified, "Unspecified", ""},
	}

	for _, tt := range tests {
		if got := tt.role.String(); got != tt.name {
			t.Errorf("String() = %s, want %s", got, tt.name)
		}
		if got := tt.role.ListName(); got != tt.list {
			t.Errorf("ListName() = %s, want %s", got, tt.list)
		}
		if tt.list != "" {
			role, ok := RoleFromList(tt.list)
			if !ok || role != tt.role {
				t.Errorf("RoleFromList(%s) = %v, %v", tt.list, role, ok)
			}
		}
	}

	if _, ok := RoleFromList("pipes"); ok {
		t.Error("pipes is not a node list")
	}
}

func TestQualifiedID(t *testing.T) {
	tests := []struct {
		role Role
		raw  string
		want string
	}{
		{RoleFork, "12", "forks-12"},
		{RoleConsumer, "3", "consumers-3"},
		{RoleProducer, "0", "producers-0"},
		{RoleFork, "forks-12", "forks-12"},
		{RoleFork, "consumers-3", "forks-consumers-3"},
	}

	for _, tt := range tests {
		if got := QualifiedID(tt.role, tt.raw); got != tt.want {
			t.Errorf("QualifiedID(%v, %s) = %s, want %s", tt.role, tt.raw, got, tt.want)
		}
	}
}

func TestTopology_AddAndLookup(t *testing.T) {
	top := NewTopology()
	top.AddNode(&Node{ID: "producers-0", Role: RoleProducer})
	top.AddNode(&Node{ID: "consumers-1", Role: RoleConsumer, X: 3, Y: 4})
	top.AddPipe(&Pipe{ID: "pipes-0", From: "producers-0", To: "consumers-1", Length: 5})

	if top.NodeCount() != 2 {
		t.Errorf("expected 2 nodes, got %d", top.NodeCount())
	}
	if top.PipeCount() != 1 {
		t.Errorf("expected 1 pipe, got %d", top.PipeCount())
	}

	n, ok := top.Node("consumers-1")
	if !ok {
		t.Fatal("expected to find consumer")
	}
	if n.Point() != (orb.Point{3, 4}) {
		t.Errorf("unexpected point %v", n.Point())
	}

	if _, ok := top.Node("forks-9"); ok {
		t.Error("unexpected node forks-9")
	}
	if p, ok := top.Pipe("pipes-0"); !ok || p.Length != 5 {
		t.Error("expected to find pipes-0")
	}

	producer, ok := top.Producer()
	if !ok || producer.ID != "producers-0" {
		t.Errorf("Producer() = %v, %v", producer, ok)
	}
}

func TestTopology_LiteralLookup(t *testing.T) {
	top := &Topology{
		Nodes: []*Node{{ID: "producers-0", Role: RoleProducer}, {ID: "forks-1", Role: RoleFork}},
		Pipes: []*Pipe{{ID: "pipes-0", From: "producers-0", To: "forks-1"}},
	}

	if _, ok := top.Node("forks-1"); !ok {
		t.Error("lookup on literal topology should rebuild the index")
	}
	if _, ok := top.Pipe("pipes-0"); !ok {
		t.Error("lookup on literal topology should rebuild the index")
	}

	top.Nodes[1].ID = "forks-2"
	if _, ok := top.Node("forks-2"); !ok {
		t.Error("lookup should survive a renamed node")
	}
}

func TestTopology_Clone(t *testing.T) {
	top := NewTopology()
	top.AddNode(&Node{ID: "producers-0", Role: RoleProducer, Attributes: map[string]string{"name": "plant"}})
	top.AddNode(&Node{ID: "consumers-1", Role: RoleConsumer})
	top.AddPipe(&Pipe{ID: "pipes-0", From: "producers-0", To: "consumers-1", Geometry: orb.LineString{{0, 0}, {1, 1}}})
	top.SetDemand(NewDemandMatrix([]int{0}, []string{"consumers-1"}, [][]float64{{2}}))

	clone := top.Clone()
	clone.Nodes[0].Attributes["name"] = "changed"
	clone.Pipes[0].Geometry[0] = orb.Point{9, 9}
	tbl, _ := clone.Sequences.Get(ListConsumers, AttrMassFlow)
	tbl.Values[0][0] = 99

	if top.Nodes[0].Attributes["name"] != "plant" {
		t.Error("clone shares node attributes")
	}
	if top.Pipes[0].Geometry[0] != (orb.Point{0, 0}) {
		t.Error("clone shares pipe geometry")
	}
	d, ok := top.Demand()
	if !ok || d.Values[0][0] != 2 {
		t.Error("clone shares sequences")
	}
}

func TestAssignIdentifiers(t *testing.T) {
	top := NewTopology()
	top.AddNode(&Node{ID: "0", Role: RoleFork})
	top.AddNode(&Node{ID: "1", Role: RoleFork})
	top.AddNode(&Node{ID: "2", Role: RoleProducer})
	top.AddNode(&Node{ID: "3", Role: RoleConsumer})
	top.AddPipe(&Pipe{From: "2", To: "0"})
	top.AddPipe(&Pipe{From: "0", To: "1"})
	top.AddPipe(&Pipe{From: "1", To: "3"})
	top.SetDemand(NewDemandMatrix([]int{0}, []string{"3"}, [][]float64{{1}}))

	rename := AssignIdentifiers(top)

	want := []string{"forks-0", "forks-1", "producers-2", "consumers-3"}
	for i, id := range want {
		if top.Nodes[i].ID != id {
			t.Errorf("node %d id = %s, want %s", i, top.Nodes[i].ID, id)
		}
	}
	if rename["3"] != "consumers-3" {
		t.Errorf("rename[3] = %s", rename["3"])
	}
	if top.Pipes[0].From != "producers-2" || top.Pipes[0].To != "forks-0" {
		t.Errorf("pipe 0 = %s", top.Pipes[0].Key())
	}
	if top.Pipes[2].ID != "pipes-2" {
		t.Errorf("pipe id = %s", top.Pipes[2].ID)
	}
	d, _ := top.Demand()
	if d.Columns[0] != "consumers-3" {
		t.Errorf("demand column = %s", d.Columns[0])
	}
	if _, ok := top.Node("consumers-3"); !ok {
		t.Error("index should follow the renaming")
	}
}

func TestTopology_ConcurrentReads(t *testing.T) {
	top := NewTopology()
	top.AddNode(&Node{ID: "producers-0", Role: RoleProducer})
	for i := 0; i < 50; i++ {
		top.AddNode(&Node{ID: QualifiedID(RoleConsumer, string(rune('a'+i%26))+string(rune('a'+i/26))), Role: RoleConsumer})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				top.Node("producers-0")
				top.NodesByRole(RoleConsumer)
				top.NodeCount()
			}
		}()
	}
	wg.Wait()
}

func TestFloatHelpers(t *testing.T) {
	if !FloatEquals(1.0, 1.0+Epsilon/2) {
		t.Error("FloatEquals should tolerate epsilon")
	}
	if FloatEquals(1.0, 1.001) {
		t.Error("FloatEquals too loose")
	}
	if !FloatEqualsTol(1.0, 1.001, 0.01) {
		t.Error("FloatEqualsTol should use the given tolerance")
	}
	if !IsZero(Epsilon / 10) {
		t.Error("IsZero failed")
	}
	if IsFinite(posInf()) || !IsFinite(3) {
		t.Error("IsFinite failed")
	}
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
