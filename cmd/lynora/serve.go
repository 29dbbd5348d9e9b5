package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lynora/internal/api"
	"lynora/internal/events"
	"lynora/internal/performance"
	"lynora/internal/scheduler"
)

func (a *app) serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		a.logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	pub, closePub, err := a.publisher(ctx)
	if err != nil {
		return err
	}
	defer closePub()

	tracker := performance.NewTracker(a.db)
	sched := scheduler.New(events.NewOutbox(a.db), pub, tracker,
		a.cfg.Events.BatchSize, a.cfg.Schedule, a.logger)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.NewServer(a.engine, tracker, a.cfg.General.Decimals, api.WithLogger(a.logger)).Handler(a.cfg.Server.CORSOrigins, os.Stdout),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("api listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown failed", "error", err)
	}

	// Deliver whatever committed before the signal.
	a.relayRemaining(shutdownCtx, pub)
	a.logger.Info("lynora stopped")
	return runErr
}

func (a *app) relayRemaining(ctx context.Context, pub events.Publisher) {
	if _, err := events.Relay(ctx, events.NewOutbox(a.db), pub, a.cfg.Events.BatchSize); err != nil {
		a.logger.Error("final event relay failed", "error", err)
	}
}

// publisher builds the configured event publisher and its cleanup.
func (a *app) publisher(ctx context.Context) (events.Publisher, func(), error) {
	switch strings.ToLower(a.cfg.Events.Publisher) {
	case "redis":
		rp, err := events.NewRedisPublisher(ctx, events.RedisConfig{
			Addr:       a.cfg.Redis.Addr,
			Password:   a.cfg.Redis.Password,
			DB:         a.cfg.Redis.DB,
			TLSEnabled: a.cfg.Redis.TLSEnabled,
			Channel:    a.cfg.Events.Channel,
		})
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("publishing events to redis", "addr", a.cfg.Redis.Addr, "channel", a.cfg.Events.Channel)
		return rp, func() { _ = rp.Close() }, nil
	case "none":
		return events.Discard{}, func() {}, nil
	default:
		return events.NewLogPublisher(a.logger), func() {}, nil
	}
}
