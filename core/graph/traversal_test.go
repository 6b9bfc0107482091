package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGraph builds 0-1-2, 0-3 and the separate pair 4-5
func testGraph() AdjacencyList {
	var g AdjacencyList
	g.AddEdge(0, 1)
	g.AddEdge(1, 2)
	g.AddEdge(0, 3)
	g.AddEdge(4, 5)
	return g
}

func nodes(results []*TraversalResult) []int {
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.Node
	}
	return out
}

func TestBFS(t *testing.T) {
	g := testGraph()
	ctx := context.Background()

	t.Run("BFS from source with max hops 1", func(t *testing.T) {
		results, err := BFS(ctx, g, 0, 1)

		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 3}, nodes(results))
		assert.Equal(t, 0, results[0].Distance)
		assert.Equal(t, 1, results[1].Distance)
	})

	t.Run("BFS from source with max hops 2", func(t *testing.T) {
		results, err := BFS(ctx, g, 0, 2)

		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 3, 2}, nodes(results))
		assert.Equal(t, []int{0, 1, 2}, results[3].Path)
	})

	t.Run("BFS with max hops 0 returns only the source", func(t *testing.T) {
		results, err := BFS(ctx, g, 2, 0)

		require.NoError(t, err)
		assert.Equal(t, []int{2}, nodes(results))
	})

	t.Run("BFS follows edges in both directions", func(t *testing.T) {
		results, err := BFS(ctx, g, 2, -1)

		require.NoError(t, err)
		assert.ElementsMatch(t, []int{0, 1, 2, 3}, nodes(results))
	})

	t.Run("BFS from unknown node", func(t *testing.T) {
		results, err := BFS(ctx, g, 42, -1)

		require.NoError(t, err)
		assert.Equal(t, []int{42}, nodes(results))
	})

	t.Run("BFS stops on cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := BFS(cancelled, g, 0, -1)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestShortestPath(t *testing.T) {
	g := testGraph()

	t.Run("Path between connected nodes", func(t *testing.T) {
		path, err := ShortestPath(context.Background(), g, 3, 2)

		require.NoError(t, err)
		assert.Equal(t, []int{3, 0, 1, 2}, path)
	})

	t.Run("No path between components", func(t *testing.T) {
		path, err := ShortestPath(context.Background(), g, 0, 5)

		require.NoError(t, err)
		assert.Nil(t, path)
	})
}

func TestComponent(t *testing.T) {
	g := testGraph()

	t.Run("Component is the same from every member", func(t *testing.T) {
		for _, start := range []int{0, 1, 2, 3} {
			component, err := Component(context.Background(), g, start)

			require.NoError(t, err)
			assert.Equal(t, []int{0, 1, 2, 3}, component)
		}
	})

	t.Run("Duplicate edges are reported once", func(t *testing.T) {
		var dup AdjacencyList
		dup.AddEdge(0, 1)
		dup.AddEdge(1, 0)

		component, err := Component(context.Background(), dup, 1)

		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, component)
	})

	t.Run("Isolated node is its own component", func(t *testing.T) {
		component, err := Component(context.Background(), g, 9)

		require.NoError(t, err)
		assert.Equal(t, []int{9}, component)
	})
}
