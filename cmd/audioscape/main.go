package main

import (
	"fmt"
	"os"

	"github.com/Phoenix-Boss/audioscape/internal/cache"
	"github.com/Phoenix-Boss/audioscape/internal/config"
	"github.com/spf13/cobra"
)

var (
	configFile string
	pgDSN      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "audioscape",
		Short: "AudioScape metadata cache daemon",
		Long:  "Resolve, cache, and serve track metadata and stream URLs for the AudioScape player",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&pgDSN, "pg-dsn", "", "Postgres DSN")

	rootCmd.AddCommand(
		serveCmd(),
		resolveCmd(),
		warmCmd(),
		statsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration: defaults, layered under
// the optional config file, then environment overrides, then flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)

	if cmd.Flags().Changed("pg-dsn") {
		cfg.Postgres.DSN = pgDSN
	}
	return cfg, nil
}

// buildMirror constructs the configured cache mirror, or nil for "none".
func buildMirror(cfg *config.Config) (cache.Mirror, error) {
	switch cfg.Cache.Mirror {
	case "", "none":
		return nil, nil
	case "bolt":
		return cache.NewBoltMirror(cfg.Cache.Path)
	case "redis":
		return cache.NewRedisMirror(cache.RedisMirrorConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		}), nil
	default:
		return nil, fmt.Errorf("unknown cache mirror: %s", cfg.Cache.Mirror)
	}
}
