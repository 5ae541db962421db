// Package httpserver provides the HTTP server of the metrics and the health-check endpoints.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/urfave/negroni"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/servicectx"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const (
	readHeaderTimeout       = 10 * time.Second
	gracefulShutdownTimeout = 30 * time.Second
)

type HTTPServer struct {
	*http.Server
	logger   log.Logger
	proc     *servicectx.Process
	listener net.Listener
}

type dependencies interface {
	Logger() log.Logger
	Process() *servicectx.Process
	MeterProvider() metric.MeterProvider
}

// Start starts the HTTP server, it is stopped on the process shutdown.
func Start(ctx context.Context, d dependencies, cfg Config) (*HTTPServer, error) {
	server := &HTTPServer{
		logger: d.Logger().WithComponent("http-server"),
		proc:   d.Process(),
	}

	// Mount endpoints
	router := httptreemux.NewContextMux()
	if cfg.Mount != nil {
		cfg.Mount(router)
	}

	// Register middlewares
	recovery := negroni.NewRecovery()
	recovery.PrintStack = false
	recovery.Logger = recoveryLogger{logger: server.logger}
	n := negroni.New(requestInfo(), accessLog(server.logger), recovery)
	n.UseHandler(router)
	handler := otelhttp.NewHandler(n, "http-server", otelhttp.WithMeterProvider(d.MeterProvider()))

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot listen on "%s"`, cfg.ListenAddress)
	}
	server.listener = listener
	server.Server = &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start HTTP server in a separate goroutine.
	server.proc.Add(func(_ context.Context, shutdown servicectx.ShutdownFn) {
		server.logger.Infof(ctx, `started HTTP server on "%s"`, server.Addr)
		serverErr := server.Serve(listener) // Serve blocks while the server is running
		if !errors.Is(serverErr, http.ErrServerClosed) {
			shutdown(context.WithoutCancel(ctx), serverErr)
		}
	})

	// Register graceful shutdown
	server.proc.OnShutdown(func(ctx context.Context) {
		// Shutdown gracefully with a timeout.
		ctx, cancel := context.WithTimeoutCause(ctx, gracefulShutdownTimeout, errors.New("graceful shutdown timeout"))
		defer cancel()

		server.logger.Infof(ctx, `shutting down HTTP server at "%s"`, server.Addr)
		if err := server.Shutdown(ctx); err != nil {
			server.logger.Errorf(ctx, `HTTP server shutdown error: %s`, err)
		}
		server.logger.Info(ctx, "HTTP server shutdown finished")
	})

	return server, nil
}

// ListenAddr returns the actual listen address, it differs from the configured address if the port was 0.
func (s *HTTPServer) ListenAddr() string {
	return s.listener.Addr().String()
}
