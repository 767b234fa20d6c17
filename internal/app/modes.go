package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/metaquote/internal/ledger"
	"github.com/alanyoungcy/metaquote/internal/server"
	"github.com/alanyoungcy/metaquote/internal/server/handler"
	"github.com/alanyoungcy/metaquote/internal/server/ws"
)

// ServerMode serves the quote view over HTTP and WebSocket, publishes every
// change to the bus and keeps the ledger swept.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, nil)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Snapshot:       deps.Quotes.QuotesMessage,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	pingers := map[string]handler.Pinger{}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}
	if deps.Postgres != nil {
		pingers["postgres"] = deps.Postgres
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RateLimiter:       deps.RateLimiter,
		StreamChangeLimit: a.cfg.Server.StreamChangeLimit,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(pingers, a.logger),
		Status:      handler.NewStatusHandler(a.cfg.Mode, deps.Quotes),
		Quotes:      handler.NewQuoteHandler(deps.Quotes, a.logger),
		Stream:      handler.NewStreamHandler(deps.Quotes, a.logger),
		Aggregators: handler.NewAggregatorHandler(deps.Quotes, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return a.wait(g)
}

// WatchMode prints the best quotes to stdout after every sweep.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	printer := newTablePrinter(a.out, a.cfg.Stream.TokenInDecimals, a.cfg.Stream.TokenOutDecimals)
	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, func(int) {
		if err := printer.Print(deps.Quotes.View(), time.Now()); err != nil {
			a.logger.Warn("print quotes failed", slog.String("error", err.Error()))
		}
	})

	return a.wait(g)
}

// startPipeline runs the quote service, the sweeper and the notifier, and
// opens the configured subscription when stream.enabled is set.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies, onSweep func(int)) {
	sweeper := ledger.NewSweeper(deps.Ledger, ledger.SweeperConfig{
		Expiry:   a.cfg.Ledger.Expiry.Duration,
		Interval: a.cfg.Ledger.SweepInterval.Duration,
		OnSweep:  onSweep,
	}, a.logger)

	g.Go(func() error {
		return deps.Quotes.Run(ctx)
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	g.Go(func() error {
		return deps.Notifier.Run(ctx)
	})

	if !a.cfg.Stream.Enabled {
		a.logger.InfoContext(ctx, "stream.enabled is false; waiting for PUT /api/stream")
		return
	}
	params, err := a.cfg.Stream.Params()
	if err != nil {
		a.logger.ErrorContext(ctx, "invalid stream parameters, stream stays idle",
			slog.String("error", err.Error()),
		)
		return
	}
	// An open failure is reported through the session status; only
	// validation is fatal and it already passed.
	if err := deps.Quotes.Enable(ctx, params); err != nil {
		a.logger.WarnContext(ctx, "initial stream open failed",
			slog.String("stream_key", params.Key()),
			slog.String("error", err.Error()),
		)
	}
}

// wait returns the group error, treating cancellation as a clean exit.
func (a *App) wait(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}
