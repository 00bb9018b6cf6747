package main

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/reflectra/internal/config"
	"github.com/thebtf/reflectra/internal/worker"
)

func newRootCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:           "reflectra",
		Short:         "Browser session reconciliation and categorization service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.AddCommand(newServeCmd(), newSweepCmd(), newReconcileCmd())
	return cmd
}

// loadConfig prepares the data directory and reads settings.
func loadConfig() *config.Config {
	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure data directory")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	return cfg
}

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP worker and the scheduled sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			if port > 0 {
				cfg.WorkerPort = port
			}
			svc, err := worker.NewService(Version, cfg)
			if err != nil {
				return err
			}
			return svc.Start(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides settings)")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Categorize uncategorized sessions once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := worker.NewService(Version, loadConfig())
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.Sweep(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum sessions to categorize (default from settings)")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Fold fragmented and duplicate sessions in storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := worker.NewService(Version, loadConfig())
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
