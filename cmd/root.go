package cmd

import (
	"log/slog"
	"os"

	"github.com/Gandorini/S-T-Station/config"
	"github.com/Gandorini/S-T-Station/pkg/logger"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sheet-station",
	Short: "Sheet music validation and catalog service",
	Long: `Validates uploaded PDFs and images as sheet music or chord charts,
converts recognized scores to MusicXML and MIDI, and serves a catalog of
music sheets. Runs the HTTP server when no subcommand is given.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

// loadConfig loads the config file and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		return nil, err
	}
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	return cfg, nil
}
