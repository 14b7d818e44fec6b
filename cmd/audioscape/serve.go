package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Phoenix-Boss/audioscape/internal/api"
	"github.com/Phoenix-Boss/audioscape/internal/cache"
	"github.com/Phoenix-Boss/audioscape/internal/catalog"
	"github.com/Phoenix-Boss/audioscape/internal/jobs"
	"github.com/Phoenix-Boss/audioscape/internal/logging"
	"github.com/Phoenix-Boss/audioscape/internal/metrics"
	"github.com/Phoenix-Boss/audioscape/internal/observability"
	"github.com/Phoenix-Boss/audioscape/internal/resolver"
	"github.com/Phoenix-Boss/audioscape/internal/store"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the metadata cache daemon",
		Long:  "Run the AudioScape daemon: HTTP API, local cache, durable store, metadata providers, and maintenance jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Addr = listenAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.Logging.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logging.SetLevelFromString(cfg.Observability.Logging.Level)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: "audioscape",
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, nil)
			}

			pgStore, err := store.NewPostgresStore(context.Background(), cfg.Postgres.DSN)
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

			providers, err := resolver.BuildProviders(cfg.Providers.Order, resolver.Credentials{
				SpotifyClientID:     cfg.Providers.Spotify.ClientID,
				SpotifyClientSecret: cfg.Providers.Spotify.ClientSecret,
				UserAgent:           cfg.Providers.UserAgent,
				MusicBrainzRPS:      cfg.Providers.MusicBrainz.RequestsPerSecond,
			}, nil)
			if err != nil {
				return err
			}

			var res *resolver.Resolver
			if len(providers) > 0 {
				res, err = resolver.New(resolver.Config{
					Providers: providers,
					Timeout:   cfg.Providers.Timeout.Std(),
				})
				if err != nil {
					return err
				}
			} else {
				logging.Op().Warn("no providers available, serving from cache and store only")
			}

			mgrCfg := catalog.Config{
				Local:     local,
				Store:     pgStore,
				SearchTTL: cfg.Cache.TTL.Std(),
				TrackTTL:  cfg.Cache.TTL.Std(),
			}
			if res != nil {
				mgrCfg.Related = res
			}
			mgr, err := catalog.New(mgrCfg)
			if err != nil {
				return err
			}

			var streamRes jobs.StreamResolver
			if res != nil {
				streamRes = res
			}
			runner := jobs.New(mgr, pgStore, streamRes, jobs.Config{
				WarmInterval:    cfg.Jobs.WarmInterval.Std(),
				WarmLimit:       cfg.Jobs.WarmLimit,
				RefreshInterval: cfg.Jobs.RefreshInterval.Std(),
				RefreshWithin:   cfg.Jobs.RefreshWithin.Std(),
				PruneInterval:   cfg.Jobs.PruneInterval.Std(),
				StaleAfter:      cfg.Jobs.StaleAfter.Std(),
			})
			runner.Start()

			handler := &api.Handler{
				Catalog: mgr,
				Store:   pgStore,
				Cache:   local,
			}
			if res != nil {
				handler.Resolver = res
			}
			httpServer := api.StartHTTPServer(cfg.Server.Addr, handler)

			logging.Op().Info("audioscape daemon started",
				"addr", cfg.Server.Addr,
				"mirror", cfg.Cache.Mirror,
				"providers", len(providers))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logging.Op().Info("shutdown signal received", "signal", sig.String())

			runner.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				logging.Op().Error("http shutdown", "error", err)
			}
			mgr.Close()
			if err := local.Close(); err != nil {
				logging.Op().Error("cache close", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	return cmd
}
