package network

// Adjacency строит неориентированный список смежности по трубам.
// Концы, отсутствующие среди узлов, тоже попадают в список.
func Adjacency(t *Topology) map[string][]string {
	adj := make(map[string][]string, len(t.Nodes))
	for _, n := range t.Nodes {
		if _, ok := adj[n.ID]; !ok {
			adj[n.ID] = nil
		}
	}
	for _, p := range t.Pipes {
		adj[p.From] = append(adj[p.From], p.To)
		adj[p.To] = append(adj[p.To], p.From)
	}
	return adj
}

// Reachable возвращает все узлы, достижимые из start без учёта ориентации труб
func Reachable(t *Topology, start string) map[string]bool {
	return reachable(Adjacency(t), start)
}

func reachable(adj map[string][]string, start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, v := range adj[u] {
			if visited[v] {
				continue
			}
			visited[v] = true
			queue = append(queue, v)
		}
	}

	return visited
}

// ConnectedComponents находит компоненты связности в порядке первых узлов
func ConnectedComponents(t *Topology) [][]string {
	adj := Adjacency(t)
	visited := make(map[string]bool, len(t.Nodes))
	components := make([][]string, 0, 1)

	for _, n := range t.Nodes {
		if visited[n.ID] {
			continue
		}

		var component []string
		queue := []string{n.ID}
		visited[n.ID] = true

		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			component = append(component, u)

			for _, v := range adj[u] {
				if !visited[v] {
					visited[v] = true
					queue = append(queue, v)
				}
			}
		}

		components = append(components, component)
	}

	return components
}

// HasLoops сообщает, содержит ли сеть контуры.
// Кольцевые сети не поддерживаются, проверка всегда возвращает false.
func HasLoops(_ *Topology) bool {
	return false
}
