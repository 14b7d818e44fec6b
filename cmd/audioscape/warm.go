package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/cache"
	"github.com/Phoenix-Boss/audioscape/internal/catalog"
	"github.com/Phoenix-Boss/audioscape/internal/store"
	"github.com/spf13/cobra"
)

func warmCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Pre-warm the local cache from popular searches",
		Long:  "Replay the most popular stored searches into the local cache and its mirror. Run while the daemon is stopped; a running daemon warms on its own schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			pgStore, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pgStore.Close()

			mirror, err := buildMirror(cfg)
			if err != nil {
				return err
			}
			local, err := cache.New(cache.Config{
				MaxItems:   cfg.Cache.MaxItems,
				DefaultTTL: cfg.Cache.TTL.Std(),
				Mirror:     mirror,
			})
			if err != nil {
				return err
			}
			defer local.Close()

			mgr, err := catalog.New(catalog.Config{
				Local:     local,
				Store:     pgStore,
				SearchTTL: cfg.Cache.TTL.Std(),
			})
			if err != nil {
				return err
			}
			defer mgr.Close()

			warmed, err := mgr.WarmCache(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Printf("Warmed %d searches into the local cache\n", warmed)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum searches to warm")
	return cmd
}
