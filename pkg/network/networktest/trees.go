// Package networktest содержит генераторы топологий для тестов.
package networktest

import (
	"strconv"

	"heatnet/pkg/network"
)

// Tree строит дерево: источник producers-0, узел i+1 подключается к узлу
// parents[i] % (i+1). Листья становятся потребителями, внутренние узлы
// развилками. Трубы ориентированы от родителя к потомку, кроме трубы
// источника, если flipRoot = true.
func Tree(parents []uint32, flipRoot bool) *network.Topology {
	n := len(parents) + 1
	parent := make([]int, n)
	children := make([]int, n)
	parent[0] = -1
	for i, p := range parents {
		parent[i+1] = int(p % uint32(i+1))
		children[parent[i+1]]++
	}

	t := network.NewTopology()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		role := network.RoleFork
		switch {
		case i == 0:
			role = network.RoleProducer
		case children[i] == 0:
			role = network.RoleConsumer
		}
		ids[i] = network.QualifiedID(role, strconv.Itoa(i))
		t.AddNode(&network.Node{ID: ids[i], Role: role, X: float64(i), Y: float64(i % 3)})
	}

	for i := 1; i < n; i++ {
		from, to := ids[parent[i]], ids[i]
		if flipRoot && parent[i] == 0 {
			from, to = to, from
		}
		t.AddPipe(&network.Pipe{
			ID:       network.PipeID(i - 1),
			From:     from,
			To:       to,
			Length:   10,
			Diameter: 0.1,
		})
	}
	return t
}

// Demand строит матрицу спроса для всех потребителей топологии;
// значение для снимка s и потребителя j берётся из values по кругу.
func Demand(t *network.Topology, snapshots int, values []float64) *network.DemandMatrix {
	consumers := t.NodesByRole(network.RoleConsumer)
	cols := make([]string, len(consumers))
	for j, c := range consumers {
		cols[j] = c.ID
	}

	snaps := make([]int, snapshots)
	rows := make([][]float64, snapshots)
	k := 0
	for s := 0; s < snapshots; s++ {
		snaps[s] = s
		rows[s] = make([]float64, len(cols))
		for j := range cols {
			if len(values) > 0 {
				rows[s][j] = values[k%len(values)]
				k++
			}
		}
	}
	return network.NewDemandMatrix(snaps, cols, rows)
}

// Fork возвращает сеть из сценария "источник, развилка, два потребителя":
// producers-0 -> forks-1 -> consumers-2, consumers-3.
func Fork() *network.Topology {
	t := network.NewTopology()
	t.AddNode(&network.Node{ID: "producers-0", Role: network.RoleProducer, X: 0, Y: 0})
	t.AddNode(&network.Node{ID: "forks-1", Role: network.RoleFork, X: 20, Y: 0})
	t.AddNode(&network.Node{ID: "consumers-2", Role: network.RoleConsumer, X: 25, Y: 5})
	t.AddNode(&network.Node{ID: "consumers-3", Role: network.RoleConsumer, X: 25, Y: -5})
	t.AddPipe(&network.Pipe{ID: "pipes-0", From: "producers-0", To: "forks-1", Length: 20, Diameter: 0.1})
	t.AddPipe(&network.Pipe{ID: "pipes-1", From: "forks-1", To: "consumers-2", Length: 7.07, Diameter: 0.1})
	t.AddPipe(&network.Pipe{ID: "pipes-2", From: "forks-1", To: "consumers-3", Length: 7.07, Diameter: 0.1})
	return t
}
