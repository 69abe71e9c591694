package network

import (
	"fmt"
	"sort"

	"heatnet/pkg/apperror"
)

// Validate проверяет согласованность топологии:
// концы труб ссылаются на известные узлы, источник ровно один,
// идентификаторы уникальны, петель и параллельных труб нет,
// и каждый узел связан с источником без учёта ориентации.
//
// Все нарушения собираются в одну ошибку CodeInconsistentNetwork.
func Validate(t *Topology) error {
	if t == nil {
		return apperror.ErrNilTopology
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	v := apperror.NewValidationErrors()

	known := make(map[string]Role, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.ID == "" {
			v.AddError(apperror.CodeDuplicateNode, "node with empty id")
			continue
		}
		if _, dup := known[n.ID]; dup {
			v.AddErrorWithField(apperror.CodeDuplicateNode,
				fmt.Sprintf("node id %s is used more than once", n.ID), n.ID)
			continue
		}
		known[n.ID] = n.Role
	}

	var producers []string
	for _, n := range t.Nodes {
		if n.Role == RoleProducer {
			producers = append(producers, n.ID)
		}
	}
	if len(producers) != 1 {
		v.Add(apperror.Newf(apperror.CodeProducerCount,
			"expected exactly one producer, found %d", len(producers)).
			WithDetails("producers", producers))
	}

	pipeIDs := make(map[string]bool, len(t.Pipes))
	pairs := make(map[PipeKey]string, len(t.Pipes))
	for i, p := range t.Pipes {
		name := p.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		} else if pipeIDs[p.ID] {
			v.AddErrorWithField(apperror.CodeDuplicateEdge,
				fmt.Sprintf("pipe id %s is used more than once", p.ID), p.ID)
		}
		pipeIDs[p.ID] = true

		if _, ok := known[p.From]; !ok {
			v.AddErrorWithField(apperror.CodeDanglingEdge,
				fmt.Sprintf("pipe %s references unknown from_node %q", name, p.From), name)
		}
		if _, ok := known[p.To]; !ok {
			v.AddErrorWithField(apperror.CodeDanglingEdge,
				fmt.Sprintf("pipe %s references unknown to_node %q", name, p.To), name)
		}
		if p.From == p.To {
			v.AddErrorWithField(apperror.CodeSelfLoop,
				fmt.Sprintf("pipe %s is a self-loop at %s", name, p.From), name)
			continue
		}
		if first, dup := pairs[p.Key()]; dup {
			v.AddErrorWithField(apperror.CodeDuplicateEdge,
				fmt.Sprintf("pipe %s duplicates %s (%s)", name, first, p.Key()), name)
			continue
		}
		pairs[p.Key()] = name
	}

	if len(producers) == 1 {
		adj := make(map[string][]string, len(t.Nodes))
		for _, p := range t.Pipes {
			adj[p.From] = append(adj[p.From], p.To)
			adj[p.To] = append(adj[p.To], p.From)
		}
		seen := reachable(adj, producers[0])

		var unreachable []string
		for _, n := range t.Nodes {
			if !seen[n.ID] {
				unreachable = append(unreachable, n.ID)
			}
		}
		if len(unreachable) > 0 {
			sort.Strings(unreachable)
			v.Add(apperror.Newf(apperror.CodeUnreachableNode,
				"%d node(s) unreachable from producer %s: %v", len(unreachable), producers[0], preview(unreachable)).
				WithField(unreachable[0]).
				WithDetails("unreachable", unreachable))
		}
	}

	return v.Err(apperror.CodeInconsistentNetwork, "network is inconsistent")
}

// preview ограничивает длину списка в сообщении
func preview(ids []string) []string {
	const limit = 10
	if len(ids) <= limit {
		return ids
	}
	return append(append([]string(nil), ids[:limit]...), "...")
}
