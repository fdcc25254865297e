package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/stripd/internal/config"
)

var (
	// Flags
	flagConfig   string
	flagLogLevel string
)

func rootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "stripd",
		Short: "HomeKit bridge for Wi-Fi LED strips",
		Long: `stripd finds LED strips announced over mDNS, probes each one for its
identity and exposes it to HomeKit as a color lightbulb with one switch per
animation pattern.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.SetVersionTemplate(fmt.Sprintf("stripd %s\n", version))

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log level: debug, info, warn, error")

	addServeFlags(root)

	root.AddCommand(serveCmd(), discoverCmd())
	return root
}

// loadConfig reads the config file and sets up logging. A missing file at the
// default path falls back to built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Root().PersistentFlags().Changed("config") {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = config.Default()
	}

	level := cfg.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	setupLogging(level, cfg.Log.UseJSON, cfg.Log.Colors)

	if err != nil {
		log.Warn().Str("config", flagConfig).Msg("Config file not found, using defaults")
	}
	return cfg, nil
}
