package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/threadgraph"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of threadgraph",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "threadgraph version %s\n", strings.TrimSpace(threadgraph.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
