package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage checkpointed conversation threads",
	Long:  `List, inspect, and remove threads stored in the configured checkpoint store.`,
}

var threadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all threads in the namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		threads, err := app.Engine.Threads(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing threads: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(threads) == 0 {
			fmt.Fprintf(out, "No threads found in namespace %q.\n", app.Engine.Namespace())
			return nil
		}
		fmt.Fprintf(out, "Threads (%s):\n", app.Engine.Namespace())
		for _, t := range threads {
			fmt.Fprintln(out, "- "+t)
		}
		return nil
	},
}

var threadInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Print the checkpoint of a thread as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		cp, err := app.Engine.History(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading thread '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var threadRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var errs []error
		for _, id := range args {
			if err := app.Engine.Reset(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed thread '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadLsCmd, threadInspectCmd, threadRmCmd)
}
