package cluster

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/core/compare"
	"github.com/siherrmann/resolver/core/graph"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
)

// clusterNamespace seeds the deterministic cluster ids
var clusterNamespace = uuid.MustParse("6f1c3b0e-2f51-4d8e-9a57-2b3c1d6e8f40")

type node struct {
	id          uuid.UUID
	entity      bool
	name        string
	normalized  string
	identifiers map[model.IdentifierType]string
}

type pair struct {
	a, b  int
	score float64
}

// Engine groups mentions and entities transitively from scored matches.
// It is owned by one resolver session and not safe for concurrent use.
type Engine struct {
	MinConfidence float64

	logger *slog.Logger
	nodes  []node
	index  map[uuid.UUID]int
	sets   unionFind
	pairs  []pair
	edges  graph.AdjacencyList
}

// NewEngine creates an engine ignoring matches scored below minConfidence
func NewEngine(minConfidence float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		MinConfidence: minConfidence,
		logger:        logger,
		index:         map[uuid.UUID]int{},
	}
}

// AddMention registers a mention. A mention that is never matched ends up
// as an orphan.
func (e *Engine) AddMention(mention *model.Mention) {
	if mention != nil {
		e.mentionNode(mention)
	}
}

// AddMatch links a mention to an entity
func (e *Engine) AddMatch(mention *model.Mention, entity *model.CandidateEntity, score float64) bool {
	if mention == nil || entity == nil || score < e.MinConfidence {
		return false
	}
	e.link(e.mentionNode(mention), e.entityNode(entity), score)
	return true
}

// AddMentionMatch links two mentions
func (e *Engine) AddMentionMatch(a, b *model.Mention, score float64) bool {
	if a == nil || b == nil || score < e.MinConfidence {
		return false
	}
	e.link(e.mentionNode(a), e.mentionNode(b), score)
	return true
}

func (e *Engine) link(a, b int, score float64) {
	if a == b {
		return
	}
	e.sets.union(a, b)
	e.pairs = append(e.pairs, pair{a: a, b: b, score: score})
	e.edges.AddEdge(a, b)
}

func (e *Engine) mentionNode(m *model.Mention) int {
	if i, ok := e.index[m.ID]; ok {
		return i
	}

	ids := map[model.IdentifierType]string{}
	for _, id := range m.Identifiers() {
		if id.IsValid() {
			ids[id.Kind.Type()] = id.Normalized
		}
	}
	return e.addNode(node{
		id:          m.ID,
		name:        m.Name(),
		normalized:  compare.Normalize(m.Name(), m.Type).Text,
		identifiers: ids,
	}, 0)
}

// entityNode starts entities at rank 1 so they tend to stay roots
func (e *Engine) entityNode(ent *model.CandidateEntity) int {
	if i, ok := e.index[ent.ID]; ok {
		return i
	}
	return e.addNode(node{
		id:          ent.ID,
		entity:      true,
		name:        ent.CanonicalName,
		identifiers: ent.Identifiers,
	}, 1)
}

func (e *Engine) addNode(n node, rank int) int {
	i := e.sets.add(rank)
	e.nodes = append(e.nodes, n)
	e.index[n.id] = i
	return i
}

// Len returns the number of nodes
func (e *Engine) Len() int {
	return len(e.nodes)
}

// Reset drops all nodes and matches
func (e *Engine) Reset() {
	e.nodes = e.nodes[:0]
	e.index = map[uuid.UUID]int{}
	e.sets.reset()
	e.pairs = e.pairs[:0]
	e.edges = e.edges[:0]
}

// groups partitions the nodes by root, ordered by their first node
func (e *Engine) groups() [][]int {
	byRoot := map[int]int{}
	var groups [][]int
	for i := range e.nodes {
		root := e.sets.find(i)
		g, ok := byRoot[root]
		if !ok {
			g = len(groups)
			byRoot[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

// GetClusters summarizes every group. Groups holding a single unmatched
// mention are returned as orphans. Calling it repeatedly without adding
// matches returns the same result.
func (e *Engine) GetClusters() model.ClusterSet {
	groups := e.groups()

	scores := make(map[int][]float64, len(groups))
	for _, p := range e.pairs {
		root := e.sets.find(p.a)
		scores[root] = append(scores[root], p.score)
	}

	set := model.ClusterSet{Clusters: []model.MentionCluster{}}
	for _, g := range groups {
		if len(g) == 1 {
			if !e.nodes[g[0]].entity {
				set.Orphans = append(set.Orphans, e.nodes[g[0]].id)
			}
			continue
		}
		set.Clusters = append(set.Clusters, e.summarize(g, scores[e.sets.find(g[0])]))
	}

	e.logger.Debug("Clustered matches", slog.Int("nodes", len(e.nodes)), slog.Int("clusters", len(set.Clusters)), slog.Int("orphans", len(set.Orphans)))
	return set
}

func (e *Engine) summarize(group []int, scores []float64) model.MentionCluster {
	c := model.MentionCluster{
		Members:     []uuid.UUID{},
		Identifiers: map[model.IdentifierType]string{},
	}

	longest := -1
	for _, i := range group {
		n := e.nodes[i]
		if n.entity {
			if c.EntityID == nil {
				id := n.id
				c.EntityID = &id
				c.CanonicalName = n.name
			} else {
				c.MergeEntityIDs = append(c.MergeEntityIDs, n.id)
			}
		} else {
			c.Members = append(c.Members, n.id)
			if c.EntityID == nil {
				if l := utf8.RuneCountInString(n.normalized); l > longest {
					longest = l
					c.CanonicalName = n.name
				}
			}
		}
		for t, v := range n.identifiers {
			if _, ok := c.Identifiers[t]; !ok && v != "" {
				c.Identifiers[t] = v
			}
		}
	}

	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		c.Confidence = sum / float64(len(scores))
	}

	c.ID = groupID(e.nodes, group)
	return c
}

// groupID hashes the sorted node ids of a group
func groupID(nodes []node, group []int) uuid.UUID {
	ids := make([]uuid.UUID, len(group))
	for i, n := range group {
		ids[i] = nodes[n].id
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	data := make([]byte, 0, len(ids)*16)
	for _, id := range ids {
		data = append(data, id[:]...)
	}
	return uuid.NewSHA1(clusterNamespace, data)
}

// Explain returns the chain of recorded matches linking a mention to the
// anchor of its group: the bound entity, or the group's first node.
func (e *Engine) Explain(ctx context.Context, mentionID uuid.UUID) ([]model.MatchLink, error) {
	start, ok := e.index[mentionID]
	if !ok {
		return nil, helper.NewError("explain", fmt.Errorf("%w: %s", model.ErrMentionNotFound, mentionID))
	}

	group, err := graph.Component(ctx, e.edges, start)
	if err != nil {
		return nil, helper.NewError("explain", err)
	}
	anchor := group[0]
	for _, i := range group {
		if e.nodes[i].entity {
			anchor = i
			break
		}
	}
	if anchor == start {
		return []model.MatchLink{}, nil
	}

	path, err := graph.ShortestPath(ctx, e.edges, start, anchor)
	if err != nil {
		return nil, helper.NewError("explain", err)
	}

	links := make([]model.MatchLink, 0, len(path))
	for i := 1; i < len(path); i++ {
		links = append(links, model.MatchLink{
			From:  e.nodes[path[i-1]].id,
			To:    e.nodes[path[i]].id,
			Score: e.bestScore(path[i-1], path[i]),
		})
	}
	return links, nil
}

func (e *Engine) bestScore(a, b int) float64 {
	best := 0.0
	for _, p := range e.pairs {
		if (p.a == a && p.b == b) || (p.a == b && p.b == a) {
			if p.score > best {
				best = p.score
			}
		}
	}
	return best
}
