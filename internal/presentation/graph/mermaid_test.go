package graph_test

import (
	"strings"
	"testing"

	flow "github.com/aretw0/threadgraph/internal/graph"
	"github.com/aretw0/threadgraph/internal/presentation/graph"
	"github.com/aretw0/threadgraph/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name        string
		topology    flow.Topology
		overlay     *graph.Overlay
		contains    []string
		notContains []string
	}{
		{
			name:     "Default Topology Shapes",
			topology: flow.DefaultTopology(),
			contains: []string{
				"graph TD",
				"entry((\"entry\"))",
				"tool[[\"tool\"]]",
				"respond[\"respond\"]",
				"terminal(((\"terminal\")))",
			},
		},
		{
			name:     "Routed And Unconditional Edges",
			topology: flow.DefaultTopology(),
			contains: []string{
				"entry -- \"tool\" --> tool",
				"entry -- \"respond\" --> respond",
				"tool --> respond",
				"respond --> terminal",
			},
		},
		{
			name:     "Overlay Marks Path",
			topology: flow.DefaultTopology(),
			overlay:  &graph.Overlay{Path: []domain.NodeID{domain.NodeEntry, domain.NodeTool, domain.NodeRespond}},
			contains: []string{
				"class entry visited;",
				"class tool visited;",
				"class respond current;",
			},
			notContains: []string{"class terminal"},
		},
		{
			name: "Sanitized IDs",
			topology: flow.Topology{
				domain.NodeEntry: {flow.Always: "post-process.v2"},
			},
			contains: []string{
				"post_process_v2[\"post-process.v2\"]",
				"entry --> post_process_v2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.topology, tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("expected output to contain %q\ngot:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.notContains {
				if strings.Contains(got, unwanted) {
					t.Errorf("expected output not to contain %q\ngot:\n%s", unwanted, got)
				}
			}
		})
	}
}
