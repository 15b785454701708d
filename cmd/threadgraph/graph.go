package main

import (
	"fmt"

	flow "github.com/aretw0/threadgraph/internal/graph"
	"github.com/aretw0/threadgraph/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the execution graph as a Mermaid diagram",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(flow.DefaultTopology(), nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
