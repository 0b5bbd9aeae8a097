package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ServeCmd starts the HTTP API, optionally with in-process workers.
type ServeCmd struct {
	WithWorkers bool `name:"with-workers" help:"Also run delivery workers in this process."`
}

// Run serves until SIGINT or SIGTERM, then drains HTTP and workers.
func (c *ServeCmd) Run(cli *CLI) error {
	a, err := openApp(cli.EnvFile)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := a.httpHandler()
	if err != nil {
		return err
	}

	retention := a.retention()
	if err := retention.Start(ctx); err != nil {
		return err
	}
	defer retention.Stop()

	var workers sync.WaitGroup
	if c.WithWorkers {
		pool, err := a.workerPool()
		if err != nil {
			return err
		}
		workers.Add(1)
		go func() {
			defer workers.Done()
			pool.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("notipi started", "listen_addr", a.cfg.ListenAddr, "with_workers", c.WithWorkers)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			workers.Wait()
			return err
		}
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	workers.Wait()
	slog.Info("shutdown complete")
	return nil
}

// WorkerCmd runs delivery workers only.
type WorkerCmd struct{}

// Run processes jobs until SIGINT or SIGTERM and in-flight deliveries drain.
func (c *WorkerCmd) Run(cli *CLI) error {
	a, err := openApp(cli.EnvFile)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := a.workerPool()
	if err != nil {
		return err
	}

	retention := a.retention()
	if err := retention.Start(ctx); err != nil {
		return err
	}
	defer retention.Stop()

	pool.Run(ctx)
	slog.Info("shutdown complete")
	return nil
}
