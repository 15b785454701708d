package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// ErrInvalidTopology is returned when the transition table cannot drive an execution
// from entry to terminal.
var ErrInvalidTopology = errors.New("invalid graph topology")

// Always marks an unconditional edge in a Topology.
const Always domain.Route = ""

// Topology is the static transition table: for every node, the next node per route.
// Nodes with a single Always edge ignore the route decision.
type Topology map[domain.NodeID]map[domain.Route]domain.NodeID

// DefaultTopology wires entry -> (tool ->) respond -> terminal.
func DefaultTopology() Topology {
	return Topology{
		domain.NodeEntry: {
			domain.RouteTool:    domain.NodeTool,
			domain.RouteRespond: domain.NodeRespond,
		},
		domain.NodeTool:    {Always: domain.NodeRespond},
		domain.NodeRespond: {Always: domain.NodeTerminal},
	}
}

// Next resolves the successor of from for the given route.
func (t Topology) Next(from domain.NodeID, route domain.Route) (domain.NodeID, error) {
	edges, ok := t[from]
	if !ok {
		return "", fmt.Errorf("%w: node %q has no outgoing edges", ErrInvalidTopology, from)
	}
	if to, ok := edges[route]; ok && route != Always {
		return to, nil
	}
	if to, ok := edges[Always]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: node %q has no edge for route %q", ErrInvalidTopology, from, route)
}

// Edge is one row of the transition table, used for rendering.
type Edge struct {
	From  domain.NodeID
	Route domain.Route
	To    domain.NodeID
}

// Edges lists the table in a stable order.
func (t Topology) Edges() []Edge {
	var out []Edge
	for from, edges := range t {
		for route, to := range edges {
			out = append(out, Edge{From: from, Route: route, To: to})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return nodeOrder(out[i].From) < nodeOrder(out[j].From)
		}
		return out[i].Route < out[j].Route
	})
	return out
}

func nodeOrder(id domain.NodeID) int {
	switch id {
	case domain.NodeEntry:
		return 0
	case domain.NodeTool:
		return 1
	case domain.NodeRespond:
		return 2
	case domain.NodeTerminal:
		return 3
	}
	return 4
}
