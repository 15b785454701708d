package graph

import (
	"fmt"
	"strings"

	flow "github.com/aretw0/threadgraph/internal/graph"
	"github.com/aretw0/threadgraph/pkg/domain"
)

// Overlay highlights the path taken by one execution.
type Overlay struct {
	Path []domain.NodeID
}

// GenerateMermaid produces a Mermaid flowchart from the transition table.
// Shapes: entry ((circle)), tool [[subroutine]], terminal (((double circle))),
// respond [rectangle]. Routed edges carry the route as label.
func GenerateMermaid(t flow.Topology, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	declared := make(map[domain.NodeID]bool)
	declare := func(id domain.NodeID) {
		if declared[id] {
			return
		}
		declared[id] = true
		opener, closer := shape(id)
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(string(id)), opener, id, closer)
	}

	edges := t.Edges()
	for _, e := range edges {
		declare(e.From)
		declare(e.To)
	}
	for _, e := range edges {
		arrow := "-->"
		if e.Route != flow.Always {
			arrow = fmt.Sprintf("-- \"%s\" -->", strings.ReplaceAll(string(e.Route), "\"", "'"))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(string(e.From)), arrow, sanitizeMermaidID(string(e.To)))
	}

	if overlay != nil && len(overlay.Path) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		last := overlay.Path[len(overlay.Path)-1]
		for _, id := range overlay.Path[:len(overlay.Path)-1] {
			safeID := sanitizeMermaidID(string(id))
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(string(last)))
	}

	return sb.String()
}

func shape(id domain.NodeID) (string, string) {
	switch id {
	case domain.NodeEntry:
		return "((", "))"
	case domain.NodeTool:
		return "[[", "]]"
	case domain.NodeTerminal:
		return "(((", ")))"
	}
	return "[", "]"
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
