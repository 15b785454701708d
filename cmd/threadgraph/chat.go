package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/threadgraph/internal/presentation/tui"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the engine from the terminal",
	Long: `Without arguments, starts an interactive session on one thread.
With a message (or --message), runs a single turn and prints the reply.

Interactive commands:
  /history  print the thread transcript
  /reset    delete the thread checkpoint
  /exit     leave (also: exit, quit, Ctrl-D)`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, _ := cmd.Flags().GetString("thread")
		if threadID == "" {
			threadID = "cli-" + uuid.NewString()[:8]
		}
		message, _ := cmd.Flags().GetString("message")
		if message == "" && len(args) == 1 {
			message = args[0]
		}

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if message != "" {
			reply, err := app.Engine.Run(cmd.Context(), threadID, message)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		}

		return runREPL(cmd.Context(), app.Engine, threadID, os.Stdin, os.Stdout)
	},
}

func runREPL(ctx context.Context, conv ports.Conversation, threadID string, in io.Reader, out *os.File) error {
	interactive := tui.IsInteractive(out)
	render := tui.NewRenderer(out)
	if interactive {
		tui.PrintBanner(out)
		fmt.Fprintln(out, tui.Dim("thread "+threadID+" (type /exit to leave)"))
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/exit", "exit", "quit":
			return nil
		case "/reset":
			if err := conv.Reset(ctx, threadID); err != nil {
				fmt.Fprintln(out, "Error:", err)
				continue
			}
			fmt.Fprintln(out, tui.Dim("thread reset"))
			continue
		case "/history":
			printHistory(ctx, conv, threadID, out)
			continue
		}

		reply, err := conv.Run(ctx, threadID, line)
		if err != nil {
			if domain.Retryable(err) {
				fmt.Fprintln(out, "Error (retry possible):", err)
			} else {
				fmt.Fprintln(out, "Error:", err)
			}
			continue
		}
		rendered, err := render(reply)
		if err != nil {
			rendered = reply + "\n"
		}
		fmt.Fprint(out, rendered)
		if !strings.HasSuffix(rendered, "\n") {
			fmt.Fprintln(out)
		}
	}
}

func printHistory(ctx context.Context, conv ports.Conversation, threadID string, out io.Writer) {
	cp, err := conv.History(ctx, threadID)
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
		fmt.Fprintln(out, tui.Dim("no history yet"))
		return
	case err != nil:
		fmt.Fprintln(out, "Error:", err)
		return
	}
	for _, m := range cp.Messages {
		fmt.Fprintln(out, m.String())
	}
	fmt.Fprintln(out, tui.Dim(fmt.Sprintf("version %d", cp.Version)))
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("thread", "", "Thread identifier (default: a new random thread)")
	chatCmd.Flags().StringP("message", "m", "", "Run a single turn with this message")
}
