// Package app wires the kitchenhero runtime: config, logging, the credential
// store, the session service and the HTTP/gRPC listeners.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"kitchenhero/cmd/internal/auth/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// App is the kitchenhero runtime. It owns every connection it opens.
type App struct {
	cfg Config
	log Logger

	backend     *backend
	rdb         *redis.Client
	closeEvents func() error

	registry *prometheus.Registry
	sessions *session.Service

	grpc   *grpc.Server
	health *health.Server
}

// New constructs a fully wired App from config and logger.
func New(ctx context.Context, cfg Config, sessCfg session.Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(sessCfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, closeEvents: func() error { return nil }}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.rdb, err = newRedisClient(ctx, cfg); err != nil {
		return nil, err
	}
	if a.backend, err = newBackend(ctx, cfg, log, a.rdb); err != nil {
		return nil, err
	}

	pub, closeEvents, err := newEventPublisher(cfg, a.rdb, log)
	if err != nil {
		return nil, err
	}
	a.closeEvents = closeEvents

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := session.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a.sessions, err = session.NewService(sessCfg, a.backend.store,
		session.WithLogger(log),
		session.WithEvents(pub),
		session.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	if cfg.GRPCAddr != "" {
		a.grpc, a.health = newGRPCServer(a.sessions)
	}
	return a, nil
}

// Sessions returns the session service for embedding callers.
func (a *App) Sessions() *session.Service { return a.sessions }

// GRPCServer returns the gRPC server resource services register on before
// Run, or nil when KH_GRPC_ADDR is unset.
func (a *App) GRPCServer() *grpc.Server { return a.grpc }

// Handler returns the HTTP handler with middleware applied.
func (a *App) Handler() (http.Handler, error) {
	m, err := newHTTPMetrics(a.registry)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.backend, a.backend.name, a.registry)
	return withRequestLogging(WithSecurityHeaders(mux), a.log, m), nil
}

// Run starts the listeners and blocks until context cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	handler, err := a.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	errCh := make(chan error, 2)

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.backend.name, "events", a.cfg.Events)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	if a.grpc != nil {
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("grpc listen on %s: %w", a.cfg.GRPCAddr, err)
		}
		a.log.Info("grpc.start", "addr", lis.Addr().String())
		go func() {
			if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if a.grpc != nil {
		a.health.Shutdown()
		a.grpc.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return errors.Join(runErr, err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// close releases the store, the event publisher and the Redis client in
// reverse order of acquisition.
func (a *App) close() {
	if err := a.closeEvents(); err != nil {
		a.log.Error("events.close.fail", "err", err)
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
