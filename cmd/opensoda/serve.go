package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/HaoJinjin/open-soda/internal/cache"
	"github.com/HaoJinjin/open-soda/internal/server"
	"github.com/HaoJinjin/open-soda/internal/store"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

func newServeCmd(opts *options) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				opts.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")
	return cmd
}

func serve(ctx context.Context, opts *options) error {
	cfg := opts.cfg
	logger := log.GetLoggerWithName("serve")
	var serverOpts []server.Option

	if cfg.Redis.Addr != "" {
		c, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			logger.Warn("Redis unavailable, caching disabled", err)
		}
		defer c.Close()
		serverOpts = append(serverOpts, server.WithCache(c))
	}

	if cfg.Store.DSN != "" {
		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer st.Close()
		serverOpts = append(serverOpts, server.WithStore(st))
	}

	srv := server.New(cfg, serverOpts...)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Stop requested")
		return nil
	})
	return g.Wait()
}
