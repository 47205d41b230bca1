package genotype

import (
	"github.com/goffincedric/SimpleAI/internal/model"
)

// Link is an outgoing edge handed to AddNode.
type Link struct {
	Target model.Node
	Weight float64
}

// AddNode inserts node together with its outgoing links. Link targets that
// are not yet part of the graph are registered first. Nothing is changed
// when any check fails.
func (g *Graph) AddNode(node model.Node, links []Link) error {
	if _, exists := g.nodes[node.ID]; exists {
		return invariant("node %s already exists", node.ID)
	}
	if err := g.checkNode(node, nil); err != nil {
		return err
	}
	if node.Role == model.RoleOutput && len(links) > 0 {
		return invariant("output node %s cannot have outgoing edges", node.ID)
	}

	pending := []model.Node{node}
	seen := map[string]struct{}{node.ID: {}}
	targets := make([]string, 0, len(links))
	for _, link := range links {
		target := link.Target
		if _, dup := seen[target.ID]; dup {
			if target.ID == node.ID {
				return invariant("self loop on %s", node.ID)
			}
			return invariant("duplicate link %s->%s", node.ID, target.ID)
		}
		seen[target.ID] = struct{}{}
		if existing, ok := g.nodes[target.ID]; ok {
			target = existing
		} else {
			if err := g.checkNode(target, pending); err != nil {
				return err
			}
			pending = append(pending, target)
		}
		if target.Role == model.RoleInput {
			return invariant("input node %s cannot have parents", target.ID)
		}
		targets = append(targets, target.ID)
	}
	if g.CausesCycle(node.ID, targets) {
		return invariant("links from %s would create a cycle", node.ID)
	}

	for _, n := range pending {
		g.insertNode(n)
	}
	for _, link := range links {
		g.link(node.ID, link.Target.ID, link.Weight)
	}
	return nil
}

// AddEdge connects two existing nodes.
func (g *Graph) AddEdge(from, to string, weight float64) error {
	src, ok := g.nodes[from]
	if !ok {
		return invariant("edge source %s not found", from)
	}
	dst, ok := g.nodes[to]
	if !ok {
		return invariant("edge target %s not found", to)
	}
	if src.Role == model.RoleOutput {
		return invariant("output node %s cannot have outgoing edges", from)
	}
	if dst.Role == model.RoleInput {
		return invariant("input node %s cannot have parents", to)
	}
	if g.HasEdge(from, to) {
		return invariant("edge %s->%s already exists", from, to)
	}
	if g.CausesCycle(from, []string{to}) {
		return invariant("edge %s->%s would create a cycle", from, to)
	}
	g.link(from, to, weight)
	return nil
}

// RemoveEdge deletes from->to. With cascade set, a hidden source left without
// outgoing edges is removed as well, and so on upstream. A hidden target left
// with no edges at all is dropped too.
func (g *Graph) RemoveEdge(from, to string, cascade bool) error {
	if !g.HasEdge(from, to) {
		return invariant("edge %s->%s not found", from, to)
	}
	g.unlink(from, to)
	if !cascade {
		return nil
	}
	if g.isHidden(from) && len(g.outgoing[from]) == 0 {
		if err := g.RemoveNode(from, true); err != nil {
			return err
		}
	}
	g.pruneIsolated(to)
	return nil
}

// RemoveNode deletes id and every incident edge. Inbound edges are removed
// with the same cascade flag.
func (g *Graph) RemoveNode(id string, cascade bool) error {
	if _, ok := g.nodes[id]; !ok {
		return invariant("node %s not found", id)
	}
	for _, from := range sortedKeys(g.incoming[id]) {
		// An earlier cascade may already have taken this edge.
		if !g.HasEdge(from, id) {
			continue
		}
		if err := g.RemoveEdge(from, id, cascade); err != nil {
			return err
		}
	}
	for _, to := range sortedKeys(g.outgoing[id]) {
		g.unlink(id, to)
		if cascade {
			g.pruneIsolated(to)
		}
	}
	g.dropNode(id)
	return nil
}

// CausesCycle reports whether edges from source to any of targets would close
// a loop in the current graph.
func (g *Graph) CausesCycle(source string, targets []string) bool {
	for _, target := range targets {
		if target == source {
			return true
		}
	}
	predecessors := g.incoming[source]
	for _, target := range targets {
		found := g.search(target, func(id string) bool {
			if id == source {
				return true
			}
			_, isPredecessor := predecessors[id]
			return isPredecessor
		})
		if found {
			return true
		}
	}
	return false
}

// PathExists reports whether end can be reached from start along outgoing edges.
func (g *Graph) PathExists(start, end string) bool {
	if _, ok := g.nodes[start]; !ok {
		return false
	}
	return g.search(start, func(id string) bool { return id == end })
}

// search walks outgoing edges breadth first from start and stops at the
// first node accepted by match.
func (g *Graph) search(start string, match func(string) bool) bool {
	visited := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if match(current) {
			return true
		}
		for next := range g.outgoing[current] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return false
}

func (g *Graph) checkNode(node model.Node, pending []model.Node) error {
	if node.ID == "" {
		return invariant("node id is required")
	}
	switch node.Role {
	case model.RoleInput, model.RoleHidden, model.RoleOutput:
	default:
		return invariant("node %s has unknown role %d", node.ID, int(node.Role))
	}
	port, hasPort := node.PortIndex()
	if node.Role.HasPort() != hasPort {
		if hasPort {
			return invariant("%s node %s cannot carry a port", node.Role, node.ID)
		}
		return invariant("%s node %s requires a port", node.Role, node.ID)
	}
	if !hasPort {
		return nil
	}
	if port < 0 {
		return invariant("node %s has negative port %d", node.ID, port)
	}
	clash := func(other model.Node) bool {
		otherPort, ok := other.PortIndex()
		return ok && other.Role == node.Role && otherPort == port
	}
	for _, other := range g.nodes {
		if clash(other) {
			return invariant("%s port %d already used by %s", node.Role, port, other.ID)
		}
	}
	for _, other := range pending {
		if clash(other) {
			return invariant("%s port %d already used by %s", node.Role, port, other.ID)
		}
	}
	return nil
}

func (g *Graph) insertNode(node model.Node) {
	g.nodes[node.ID] = node
}

func (g *Graph) dropNode(id string) {
	delete(g.nodes, id)
	delete(g.outgoing, id)
	delete(g.incoming, id)
}

func (g *Graph) link(from, to string, weight float64) {
	if g.outgoing[from] == nil {
		g.outgoing[from] = make(map[string]struct{})
	}
	if g.incoming[to] == nil {
		g.incoming[to] = make(map[string]float64)
	}
	g.outgoing[from][to] = struct{}{}
	g.incoming[to][from] = weight
}

func (g *Graph) unlink(from, to string) {
	delete(g.outgoing[from], to)
	if len(g.outgoing[from]) == 0 {
		delete(g.outgoing, from)
	}
	delete(g.incoming[to], from)
	if len(g.incoming[to]) == 0 {
		delete(g.incoming, to)
	}
}

func (g *Graph) isHidden(id string) bool {
	node, ok := g.nodes[id]
	return ok && node.Role == model.RoleHidden
}

func (g *Graph) pruneIsolated(id string) {
	if g.isHidden(id) && len(g.incoming[id]) == 0 && len(g.outgoing[id]) == 0 {
		g.dropNode(id)
	}
}
