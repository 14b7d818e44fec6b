package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/cache"
	"github.com/Phoenix-Boss/audioscape/internal/catalog"
	"github.com/Phoenix-Boss/audioscape/internal/resolver"
	"github.com/Phoenix-Boss/audioscape/internal/store"
	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "resolve <query>",
		Short: "Resolve a query against the metadata providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			providers, err := resolver.BuildProviders(cfg.Providers.Order, resolver.Credentials{
				SpotifyClientID:     cfg.Providers.Spotify.ClientID,
				SpotifyClientSecret: cfg.Providers.Spotify.ClientSecret,
				UserAgent:           cfg.Providers.UserAgent,
				MusicBrainzRPS:      cfg.Providers.MusicBrainz.RequestsPerSecond,
			}, nil)
			if err != nil {
				return err
			}
			res, err := resolver.New(resolver.Config{
				Providers: providers,
				Timeout:   cfg.Providers.Timeout.Std(),
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			resolution, err := res.Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			meta := resolution.Track
			fmt.Printf("Resolved: %s\n", args[0])
			fmt.Printf("  Provider: %s\n", resolution.Provider)
			fmt.Printf("  Title:    %s\n", meta.Title)
			fmt.Printf("  Artist:   %s\n", meta.Artist)
			if meta.Album != "" {
				fmt.Printf("  Album:    %s\n", meta.Album)
			}
			if meta.ISRC != "" {
				fmt.Printf("  ISRC:     %s\n", meta.ISRC)
			}
			if meta.DurationSeconds > 0 {
				fmt.Printf("  Duration: %ds\n", meta.DurationSeconds)
			}
			if resolution.Stream != nil {
				fmt.Printf("  Stream:   %s\n", resolution.Stream.URL)
			}
			fmt.Printf("  Elapsed:  %s (%d providers tried)\n",
				resolution.Elapsed.Round(time.Millisecond), resolution.Attempted)

			if !save {
				return nil
			}

			pgStore, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pgStore.Close()

			local, err := cache.New(cache.Config{MaxItems: 16})
			if err != nil {
				return err
			}
			defer local.Close()

			mgr, err := catalog.New(catalog.Config{Local: local, Store: pgStore})
			if err != nil {
				return err
			}
			defer mgr.Close()

			result, err := mgr.SaveSearch(ctx, args[0], resolution.Track, resolution.Stream)
			if err != nil {
				return err
			}
			fmt.Printf("\nSaved track %s (hit count %d)\n", result.Track.ID, result.HitCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Persist the resolution into the catalog")
	return cmd
}
