package engine

import "oxidize/internal/segment"

// cluster is one strongly connected component of the unit dependency graph.
// Units inside a cluster depend on each other mutually and must be
// translated together.
type cluster struct {
	units []*segment.Unit
}

// stronglyConnected runs Tarjan's algorithm over the Uses edges. Clusters
// come out in reverse topological order: a cluster appears before anything
// that depends on it.
func stronglyConnected(units []*segment.Unit) []*cluster {
	index := make(map[*segment.Unit]int, len(units))
	low := make(map[*segment.Unit]int, len(units))
	onStack := make(map[*segment.Unit]bool, len(units))
	var stack []*segment.Unit
	var clusters []*cluster
	next := 0

	var strongConnect func(u *segment.Unit)
	strongConnect = func(u *segment.Unit) {
		index[u] = next
		low[u] = next
		next++
		stack = append(stack, u)
		onStack[u] = true

		for _, v := range u.Uses {
			if _, seen := index[v]; !seen {
				strongConnect(v)
				if low[v] < low[u] {
					low[u] = low[v]
				}
			} else if onStack[v] && index[v] < low[u] {
				low[u] = index[v]
			}
		}

		if low[u] == index[u] {
			c := &cluster{}
			for {
				v := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[v] = false
				c.units = append(c.units, v)
				if v == u {
					break
				}
			}
			clusters = append(clusters, c)
		}
	}

	for _, u := range units {
		if _, seen := index[u]; !seen {
			strongConnect(u)
		}
	}
	return clusters
}

// externalIndegree counts, per cluster, the dependency edges leaving it.
// A cluster is ready for translation when the count reaches zero.
func externalIndegree(units []*segment.Unit, clusterOf map[*segment.Unit]*cluster) map[*cluster]int {
	indegree := make(map[*cluster]int)
	for _, u := range units {
		cu := clusterOf[u]
		if _, ok := indegree[cu]; !ok {
			indegree[cu] = 0
		}
		for _, v := range u.Uses {
			if clusterOf[v] != cu {
				indegree[cu]++
			}
		}
	}
	return indegree
}
