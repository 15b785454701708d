package main

import (
	"fmt"
	"os"

	"github.com/aretw0/threadgraph"
	"github.com/aretw0/threadgraph/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "threadgraph",
	Short: "Threadgraph routes chat turns through a small graph with durable threads",
	Long: `Threadgraph answers chat messages per conversation thread. Arithmetic requests are
computed by a tool, everything else goes straight to the language model. Every thread's
transcript is checkpointed after each turn.

Configuration comes from environment variables (optionally a .env file) and an optional
YAML file. Flags override both.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	pf.String("config", "", "YAML file with router keywords, system prompt and redaction patterns")
	pf.String("store", "", "Checkpoint store: memory, redis, file, sqlite or postgres")
	pf.String("namespace", "", "Checkpoint namespace")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store = v
	}
	if v, _ := cmd.Flags().GetString("namespace"); v != "" {
		cfg.Namespace = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads configuration and wires the application.
func newApp(cmd *cobra.Command) (*threadgraph.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return threadgraph.New(cmd.Context(), cfg)
}
