package cluster

// unionFind is a disjoint set over dense node ids
type unionFind struct {
	parent []int
	rank   []int
}

// add appends a node as its own set and returns its id
func (u *unionFind) add(rank int) int {
	id := len(u.parent)
	u.parent = append(u.parent, id)
	u.rank = append(u.rank, rank)
	return id
}

// find returns the root of x, compressing the path on the way
func (u *unionFind) find(x int) int {
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

// union merges the sets of a and b by rank and returns the new root
func (u *unionFind) union(a, b int) int {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return ra
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	return ra
}

func (u *unionFind) reset() {
	u.parent = u.parent[:0]
	u.rank = u.rank[:0]
}
