package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/transmit/core/config"
	"github.com/dmitrymomot/transmit/core/health"
	"github.com/dmitrymomot/transmit/core/logger"
	"github.com/dmitrymomot/transmit/core/server"
	"github.com/dmitrymomot/transmit/core/transmit"
	"github.com/dmitrymomot/transmit/integration/database/pg"
	"github.com/dmitrymomot/transmit/integration/database/redis"
	"github.com/dmitrymomot/transmit/integration/transport/memory"
	pgtransport "github.com/dmitrymomot/transmit/integration/transport/pg"
	redistransport "github.com/dmitrymomot/transmit/integration/transport/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg Config
	config.MustLoad(&cfg) // panic on error

	log := logger.NewFromEnv(cfg.AppEnv, cfg.AppName,
		logger.WithContextValue("request_id", requestIDKey{}),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("transmitd stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log *slog.Logger) error {
	relay, checks, cleanup, err := newTransport(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []transmit.Option{transmit.WithLogger(log)}
	if relay != nil {
		opts = append(opts, transmit.WithTransport(relay))
	}

	t, err := transmit.NewFromConfig(cfg.Transmit, opts...)
	if err != nil {
		return fmt.Errorf("create transmit: %w", err)
	}
	defer t.Close()

	if err := t.Authorize("users/:id", ownChannel(cfg.UserHeader)); err != nil {
		return fmt.Errorf("register secured channel: %w", err)
	}

	eventLog := log.With(logger.Component("transmit.events"))
	for _, kind := range []transmit.EventKind{transmit.EventConnect, transmit.EventDisconnect} {
		t.On(kind, func(ev transmit.Event) {
			eventLog.Debug("lifecycle", logger.Event(ev.Kind.String()), logger.UID(ev.UID))
		})
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Transmit.RoutePrefix+"/", t.Handler(requestID, accessLog(log)))
	mux.HandleFunc("POST /api/broadcast", broadcastHandler(t, log))
	mux.HandleFunc("GET /api/stats", statsHandler(t))
	mux.HandleFunc("GET /health/live", health.Liveness)
	mux.Handle("GET /health/ready", health.Readiness(log, checks...))

	srv, err := server.NewFromConfig(cfg.Server,
		server.WithLogger(log),
		server.WithOnShutdown(func() { _ = t.Close() }),
	)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(srv.Run(ctx, mux))

	log.Info("transmitd started",
		slog.String("instance_id", t.ID()),
		logger.Group("transmit",
			slog.String("transport", cfg.Transport),
			slog.String("relay_channel", cfg.Transmit.RelayChannel),
			slog.String("route_prefix", cfg.Transmit.RoutePrefix)))

	return eg.Wait()
}

// newTransport builds the configured relay transport with its readiness
// checks and a cleanup function releasing its connections.
func newTransport(ctx context.Context, cfg Config, log *slog.Logger) (transmit.Transport, []func(context.Context) error, func(), error) {
	noop := func() {}

	switch cfg.Transport {
	case "", "none":
		return nil, nil, noop, nil

	case "memory":
		tr := memory.New(memory.WithLogger(log))
		return tr, nil, func() { _ = tr.Close() }, nil

	case "redis":
		var rcfg redis.Config
		if err := config.Load(&rcfg); err != nil {
			return nil, nil, noop, err
		}
		var tcfg redistransport.Config
		if err := config.Load(&tcfg); err != nil {
			return nil, nil, noop, err
		}

		client, err := redis.Connect(ctx, rcfg)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connect redis: %w", err)
		}
		tr := redistransport.NewFromConfig(client, tcfg, redistransport.WithLogger(log))
		cleanup := func() {
			_ = tr.Close()
			_ = client.Close()
		}
		return tr, []func(context.Context) error{redis.Healthcheck(client)}, cleanup, nil

	case "pg":
		var dbcfg pg.Config
		if err := config.Load(&dbcfg); err != nil {
			return nil, nil, noop, err
		}
		var tcfg pgtransport.Config
		if err := config.Load(&tcfg); err != nil {
			return nil, nil, noop, err
		}

		pool, err := pg.Connect(ctx, dbcfg)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		tr := pgtransport.NewFromConfig(pool, tcfg, pgtransport.WithLogger(log))
		cleanup := func() {
			_ = tr.Close()
			pool.Close()
		}
		return tr, []func(context.Context) error{pg.Healthcheck(pool)}, cleanup, nil

	default:
		return nil, nil, noop, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
