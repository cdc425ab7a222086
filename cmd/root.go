package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dragonfly/internal/config"
	"dragonfly/internal/directory"
	"dragonfly/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "dragonfly",
	Short: "Dragonfly - invoice approval backend",
	Long: `Dragonfly runs the invoice approval workflow for a group of offices.

Submitters upload invoices and send them for approval, approvers approve or
reject them and record payments. Every change is checked against the caller's
role and office and is guarded by an optimistic version number.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Dragonfly CLI executed")

		fmt.Println("Welcome to Dragonfly!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("seed", "", "Directory seed file (default: DRAGONFLY_SEED_FILE or the built-in seed)")
}

// loadConfig loads the environment configuration, applying the flags every
// command shares.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if seed, _ := cmd.Flags().GetString("seed"); seed != "" {
		cfg.SeedFile = seed
	}
	return cfg, nil
}

func loadDirectory(cfg *config.Config) (*directory.Directory, error) {
	dir, err := directory.Load(cfg.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory: %w", err)
	}
	return dir, nil
}
