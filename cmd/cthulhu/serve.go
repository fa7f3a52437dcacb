package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cthulhu/internal/api"
	"cthulhu/internal/config"
	"cthulhu/internal/worker"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	var (
		addr      string
		debug     bool
		retention time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			return serve(cfg, debug, retention)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "HTTP bind address")
	cmd.Flags().BoolVar(&debug, "debug", false, "expose pprof handlers")
	cmd.Flags().DurationVar(&retention, "archive-retention", 7*24*time.Hour, "drop archived errors not seen for this long")
	return cmd
}

func serve(cfg *config.Config, debug bool, retention time.Duration) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	board := worker.NewProgressBoard(a.cronjob)
	progress := board.Poller(cfg.ProgressInterval)
	go progress.Run(ctx)

	if cfg.TaskRefreshInterval > 0 {
		go worker.TaskRefresher(a.store, cfg.TaskRefreshInterval).Run(ctx)
	}

	if a.archive != nil && retention > 0 {
		purge := worker.NewPoller("archive-purge", time.Hour, func(ctx context.Context) error {
			n, err := a.archive.Purge(ctx, time.Now().Add(-retention))
			if err == nil && n > 0 {
				log.Info().Int("purged", n).Msg("purged archived errors")
			}
			return err
		})
		go purge.Run(ctx)
	}

	handler := api.NewServerWithDebug(api.Deps{
		Store:    a.store,
		Cronjob:  a.cronjob,
		Artemis:  a.artemis,
		Notifier: a.notifier,
		Archive:  a.archive,
		Progress: board,
	}, debug)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("env", cfg.Env).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
	case err := <-errCh:
		log.Error().Err(err).Msg("http server")
		return err
	}
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	return srv.Shutdown(ctxTimeout)
}
