package graph

import (
	"context"
	"sort"

	"github.com/siherrmann/resolver/helper"
)

// Neighbors gives the adjacent nodes of a dense node id
type Neighbors interface {
	Neighbors(node int) []int
}

// AdjacencyList is an undirected graph over dense node ids
type AdjacencyList [][]int

// AddEdge connects a and b, growing the list as needed
func (g *AdjacencyList) AddEdge(a, b int) {
	n := a
	if b > n {
		n = b
	}
	for len(*g) <= n {
		*g = append(*g, nil)
	}
	(*g)[a] = append((*g)[a], b)
	if a != b {
		(*g)[b] = append((*g)[b], a)
	}
}

// Neighbors implements Neighbors
func (g AdjacencyList) Neighbors(node int) []int {
	if node < 0 || node >= len(g) {
		return nil
	}
	return g[node]
}

// TraversalResult contains a node and its distance from the source
type TraversalResult struct {
	Node     int
	Distance int
	Path     []int // Path from source to this node
}

// BFS performs breadth-first search from a source node.
// A negative maxHops means no limit.
func BFS(ctx context.Context, g Neighbors, source int, maxHops int) ([]*TraversalResult, error) {
	visited := map[int]bool{source: true}
	queue := []*TraversalResult{{Node: source, Distance: 0, Path: []int{source}}}

	var results []*TraversalResult
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return results, helper.NewError("bfs", err)
		}

		current := queue[0]
		queue = queue[1:]
		results = append(results, current)

		if maxHops >= 0 && current.Distance >= maxHops {
			continue
		}

		for _, next := range g.Neighbors(current.Node) {
			if visited[next] {
				continue
			}
			visited[next] = true

			path := make([]int, len(current.Path), len(current.Path)+1)
			copy(path, current.Path)

			queue = append(queue, &TraversalResult{
				Node:     next,
				Distance: current.Distance + 1,
				Path:     append(path, next),
			})
		}
	}

	return results, nil
}

// ShortestPath returns the fewest hop path from one node to another,
// or nil when to is not reachable.
func ShortestPath(ctx context.Context, g Neighbors, from, to int) ([]int, error) {
	results, err := BFS(ctx, g, from, -1)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Node == to {
			return r.Path, nil
		}
	}
	return nil, nil
}

// Component returns every node reachable from source, sorted
func Component(ctx context.Context, g Neighbors, source int) ([]int, error) {
	results, err := BFS(ctx, g, source, -1)
	if err != nil {
		return nil, err
	}

	nodes := make([]int, len(results))
	for i, r := range results {
		nodes[i] = r.Node
	}
	sort.Ints(nodes)
	return nodes, nil
}
