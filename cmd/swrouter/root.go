package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// run builds and executes the command tree, returning the process exit
// code. A .env file in the working directory, if present, is loaded into
// the process environment before flags are parsed; no SWROUTER_* variable
// is read from it, so every setting comes from flags.
func run() int {
	_ = godotenv.Load()

	var (
		verbose     bool
		configPath  string
		metricsAddr string
		sim         bool
	)

	rootCmd := &cobra.Command{
		Use:   "swrouter",
		Short: "A static-route IPv4 forwarding plane.",
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the forwarding plane against the configured interfaces.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			return serve(cmd.Context(), log, configPath, metricsAddr, sim)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the interfaces/routes YAML file (required)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9100", "address to serve Prometheus metrics on; empty disables it")
	serveCmd.Flags().BoolVar(&sim, "sim", false, "attach each configured interface to an unplugged in-memory pipe instead of a raw socket")
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
