// Command grepzillad runs the grepzilla search/ingest broker: one
// process serving /search, /ingest, /manifest/{shard}, and /healthz
// over a configured shard's hot buffer, WAL, and segment set.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cascad/grepzilla/internal/compactor"
	"github.com/cascad/grepzilla/internal/config"
	"github.com/cascad/grepzilla/internal/hotbuffer"
	"github.com/cascad/grepzilla/internal/httpapi"
	"github.com/cascad/grepzilla/internal/ingest"
	"github.com/cascad/grepzilla/internal/manifest"
	"github.com/cascad/grepzilla/internal/obs"
	"github.com/cascad/grepzilla/internal/search"
	"github.com/cascad/grepzilla/internal/wal"
)

func main() {
	app := &cli.App{
		Name:  "grepzillad",
		Usage: "grepzilla search/ingest broker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "override the listen address",
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "grepzillad:", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Addr = addr
	}

	obs.Init(cfg.LogLevel, os.Stderr)
	log := obs.New("main")

	var manifestStore *manifest.Store
	if cfg.ManifestPath != "" {
		manifestStore = manifest.NewStore(cfg.ManifestPath)
	}

	hot := hotbuffer.New(cfg.HotCap, cfg.HotHardCap)
	walWriter := wal.New(cfg.WalDir)
	compact := compactor.New(cfg.SegmentOutDir)

	searchCoord := search.NewCoordinator(
		manifestLoaderOrNil(manifestStore),
		hot,
		cfg.Parallelism,
		int(cfg.DefaultMaxCandidates),
	)
	ingestCoord := ingest.NewCoordinator(
		hot,
		walWriter,
		compact,
		manifestAppenderOrNil(manifestStore),
		cfg.Shard,
	)

	router := httpapi.NewRouter(searchCoord, ingestCoord, manifestStore)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("grepzillad listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("grepzillad stopped")
	return nil
}

// manifestLoaderOrNil adapts a possibly-nil *manifest.Store to
// search.ManifestLoader while preserving a true nil interface (a
// (*manifest.Store)(nil) stored in an interface is not itself nil).
func manifestLoaderOrNil(s *manifest.Store) search.ManifestLoader {
	if s == nil {
		return nil
	}
	return s
}

// manifestAppenderOrNil is manifestLoaderOrNil's counterpart for
// ingest.ManifestAppender.
func manifestAppenderOrNil(s *manifest.Store) ingest.ManifestAppender {
	if s == nil {
		return nil
	}
	return s
}
