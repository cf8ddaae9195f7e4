// Package graph holds the immutable-after-validation workflow structure:
// an arena of nodes indexed by id with dependency and dependent adjacency
// built once at validation time.
package graph

import (
	"fmt"
	"sort"

	"github.com/loomworks/loom/internal/domain"
)

type Graph struct {
	nodes map[string]*domain.Node
	order []string

	// adjacency, built during Validate
	deps       map[string][]string
	dependents map[string][]string
	depth      map[string]int
	topo       []string

	sealed bool
}

func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*domain.Node),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// AddNode registers a node and its declared dependencies.
func (g *Graph) AddNode(node domain.Node) error {
	if g.sealed {
		return domain.ErrGraphSealed
	}
	if node.ID == "" {
		return fmt.Errorf("%w: node id must not be empty", domain.ErrInvalidInput)
	}
	if _, exists := g.nodes[node.ID]; exists {
		return &domain.DuplicateNodeError{NodeID: node.ID}
	}
	if !domain.ValidKind(node.Kind) {
		return fmt.Errorf("%w: unknown node kind %q", domain.ErrInvalidInput, node.Kind)
	}
	if node.Mode == "" {
		node.Mode = domain.ModeSequential
	}
	if !domain.ValidMode(node.Mode) {
		return fmt.Errorf("%w: unknown execution mode %q", domain.ErrInvalidInput, node.Mode)
	}

	stored := node
	stored.DependsOn = append([]string(nil), node.DependsOn...)
	g.nodes[node.ID] = &stored
	g.order = append(g.order, node.ID)
	g.deps[node.ID] = append(g.deps[node.ID], stored.DependsOn...)
	return nil
}

// AddEdge records that toID depends on fromID. Both nodes must already be
// present.
func (g *Graph) AddEdge(fromID, toID string) error {
	if g.sealed {
		return domain.ErrGraphSealed
	}
	if _, exists := g.nodes[fromID]; !exists {
		return &domain.UnknownNodeError{NodeID: fromID, Op: "add edge"}
	}
	to, exists := g.nodes[toID]
	if !exists {
		return &domain.UnknownNodeError{NodeID: toID, Op: "add edge"}
	}

	for _, d := range g.deps[toID] {
		if d == fromID {
			return nil
		}
	}
	g.deps[toID] = append(g.deps[toID], fromID)
	to.DependsOn = append(to.DependsOn, fromID)
	return nil
}

// Validate runs the referential and acyclicity checks and returns every
// error found; an empty slice means the graph is valid. On success the
// graph seals, the dependent adjacency and dependency depths are built, and
// further mutation is rejected.
func (g *Graph) Validate() []error {
	var errs []error

	for id, deps := range g.deps {
		seen := make(map[string]bool, len(deps))
		for _, dep := range deps {
			if dep == id {
				errs = append(errs, &domain.CycleError{Members: []string{id}})
				continue
			}
			if _, exists := g.nodes[dep]; !exists {
				errs = append(errs, &domain.UnknownNodeError{NodeID: dep, Op: fmt.Sprintf("dependency of %q", id)})
			}
			if seen[dep] {
				errs = append(errs, fmt.Errorf("%w: duplicate dependency %q on node %q", domain.ErrInvalidInput, dep, id))
			}
			seen[dep] = true
		}
	}

	if len(errs) > 0 {
		return errs
	}

	topo, cyclic := g.topoSort()
	if len(cyclic) > 0 {
		sort.Strings(cyclic)
		errs = append(errs, &domain.CycleError{Members: cyclic})
		return errs
	}

	g.dependents = make(map[string][]string, len(g.nodes))
	for id, deps := range g.deps {
		for _, dep := range deps {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	for _, list := range g.dependents {
		sort.Strings(list)
	}

	g.topo = topo
	g.depth = make(map[string]int, len(g.nodes))
	for _, id := range topo {
		d := 0
		for _, dep := range g.deps[id] {
			if g.depth[dep]+1 > d {
				d = g.depth[dep] + 1
			}
		}
		g.depth[id] = d
	}

	g.sealed = true
	return nil
}

// topoSort is an iterative Kahn sort. The second return value lists nodes
// left unsorted, i.e. members of at least one cycle.
func (g *Graph) topoSort() (order []string, cyclic []string) {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.deps[id])
	}

	var frontier []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	forward := make(map[string][]string, len(g.nodes))
	for id, deps := range g.deps {
		for _, dep := range deps {
			forward[dep] = append(forward[dep], id)
		}
	}

	order = make([]string, 0, len(g.nodes))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		var released []string
		for _, next := range forward[id] {
			indegree[next]--
			if indegree[next] == 0 {
				released = append(released, next)
			}
		}
		sort.Strings(released)
		frontier = append(frontier, released...)
	}

	if len(order) != len(g.nodes) {
		sorted := make(map[string]bool, len(order))
		for _, id := range order {
			sorted[id] = true
		}
		for id := range g.nodes {
			if !sorted[id] {
				cyclic = append(cyclic, id)
			}
		}
	}

	return order, cyclic
}

// Sealed reports whether Validate has passed. Schedulers treat an unsealed
// graph as a fatal precondition violation.
func (g *Graph) Sealed() bool {
	return g.sealed
}

func (g *Graph) Node(id string) (*domain.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// NodeIDs returns ids in insertion order.
func (g *Graph) NodeIDs() []string {
	return append([]string(nil), g.order...)
}

// TopoOrder returns ids in topological order; only valid after Validate.
func (g *Graph) TopoOrder() []string {
	return append([]string(nil), g.topo...)
}

// Dependencies returns the direct dependency ids of a node.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the direct dependents of a node; only valid after
// Validate.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Roots returns nodes with no dependencies, in insertion order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.deps[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Depth returns the longest dependency chain above a node; roots are 0.
// Used as the primary key of the deterministic dispatch tie-break.
func (g *Graph) Depth(id string) int {
	return g.depth[id]
}

// ReadySuccessors returns the dependents of nodeID whose entire dependency
// set is Completed under the given states and which are still Pending.
func (g *Graph) ReadySuccessors(nodeID string, states map[string]domain.NodeState) []string {
	var ready []string
	for _, succ := range g.dependents[nodeID] {
		if states[succ].Status != domain.NodeStatusPending {
			continue
		}
		if g.depsCompleted(succ, states) {
			ready = append(ready, succ)
		}
	}
	return ready
}

func (g *Graph) depsCompleted(id string, states map[string]domain.NodeState) bool {
	for _, dep := range g.deps[id] {
		if states[dep].Status != domain.NodeStatusCompleted {
			return false
		}
	}
	return true
}

// Ancestors returns every transitive ancestor of a node in topological
// order. Downstream phases receive cumulative history, not just their
// immediate predecessors' output.
func (g *Graph) Ancestors(id string) []string {
	visited := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.deps[cur] {
			if !visited[dep] {
				visited[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	ancestors := make([]string, 0, len(visited))
	for _, topoID := range g.topo {
		if visited[topoID] {
			ancestors = append(ancestors, topoID)
		}
	}
	return ancestors
}

// TransitiveDependents returns every node downstream of id, used to
// propagate Skipped forward from a failed node.
func (g *Graph) TransitiveDependents(id string) []string {
	visited := make(map[string]bool)
	queue := append([]string(nil), g.dependents[id]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		queue = append(queue, g.dependents[cur]...)
	}

	deps := make([]string, 0, len(visited))
	for _, topoID := range g.topo {
		if visited[topoID] {
			deps = append(deps, topoID)
		}
	}
	return deps
}
