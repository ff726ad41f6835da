package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/nexus/pkg/insight"
	"github.com/harrisonrobin/nexus/pkg/reconcile"
	"github.com/harrisonrobin/nexus/pkg/server"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var addr string
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sync scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, stop := signalContext()
			defer stop()

			var gen insight.Generator
			if a.cfg.Insight.APIKey != "" {
				g, err := insight.NewGenAI(ctx, a.cfg.Insight.APIKey, a.cfg.Insight.Model, a.logger)
				if err != nil {
					a.logger.Warn("report generation disabled", zap.Error(err))
				} else {
					gen = g
				}
			}

			srv := server.New(server.Deps{
				Credentials: a.creds,
				Connections: a.conns,
				Catalog:     a.catalog,
				Store:       a.store,
				Reconciler:  a.reconciler,
				Alerts:      a.alerts,
				Insight:     gen,
				Token:       a.cfg.Server.Token,
			}, a.logger)

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			if a.cfg.Server.Token == "" {
				a.logger.Warn("no API token configured; the API is open to anyone who can reach it")
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Serve(ctx, ln, a.cfg.ShutdownTimeout())
			})
			if !noScheduler {
				sched := reconcile.NewScheduler(a.reconciler, a.store, a.alerts, a.cfg.SyncInterval(), a.logger)
				g.Go(func() error { return sched.Run(ctx) })
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not sync in the background")
	return cmd
}
