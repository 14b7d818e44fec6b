package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/store"
	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show durable store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			pgStore, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pgStore.Close()

			stats, err := pgStore.Stats(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "METRIC\tVALUE")
			fmt.Fprintf(w, "tracks\t%d\n", stats.Tracks)
			fmt.Fprintf(w, "streams\t%d\n", stats.Streams)
			fmt.Fprintf(w, "active streams\t%d\n", stats.ActiveStreams)
			fmt.Fprintf(w, "searches\t%d\n", stats.Searches)
			fmt.Fprintf(w, "related links\t%d\n", stats.RelatedLinks)
			fmt.Fprintf(w, "artists\t%d\n", stats.Artists)
			w.Flush()
			return nil
		},
	}
}
