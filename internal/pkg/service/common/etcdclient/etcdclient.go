package etcdclient

import (
	"context"
	"strings"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	etcdNamespace "go.etcd.io/etcd/client/v3/namespace"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"         //nolint: depguard
	"go.uber.org/zap/zapcore" //nolint: depguard
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

type config struct {
	logger        log.Logger
	meterProvider metric.MeterProvider
}

type Option func(c *config)

func UseNamespace(c *etcd.Client, prefix string) {
	c.KV = etcdNamespace.NewKV(c.KV, prefix)
	c.Watcher = etcdNamespace.NewWatcher(c.Watcher, prefix)
	c.Lease = etcdNamespace.NewLease(c.Lease, prefix)
}

func WithLogger(v log.Logger) Option {
	return func(c *config) {
		c.logger = v
	}
}

// WithMeterProvider enables gRPC client metrics.
func WithMeterProvider(v metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = v
	}
}

// New creates new etcd client.
// The caller is responsible for closing the client.
func New(ctx context.Context, cfg Config, opts ...Option) (c *etcd.Client, err error) {
	// Apply options
	clientCfg := config{logger: log.NewNopLogger(), meterProvider: telemetry.NewNopMeterProvider()}
	for _, o := range opts {
		o(&clientCfg)
	}

	// Normalize and validate
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := clientCfg.logger.WithComponent("etcd.client")

	// Create a zap logger for etcd client
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	etcdLogger := zap.New(log.NewCallbackCore(func(entry zapcore.Entry, fields []zapcore.Field) {
		// Skip debug messages
		if entry.Level == log.DebugLevel {
			return
		}

		// Encode and log message
		if bytes, err := encoder.EncodeEntry(entry, fields); err == nil {
			logger.Log(ctx, entry.Level.String(), strings.TrimRight(bytes.String(), "\n"))
		} else {
			logger.Warnf(ctx, "cannot log msg from etcd client: %s", err)
		}
	}))

	// Create connect context
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer connectCancel()

	// Create client
	startTime := time.Now()
	logger.Infof(ctx, "connecting to etcd, connectTimeout=%s, keepAliveTimeout=%s, keepAliveInterval=%s", cfg.ConnectTimeout, cfg.KeepAliveTimeout, cfg.KeepAliveInterval)
	c, err = etcd.New(etcd.Config{
		Context:              context.Background(), // !!! a long-lived context must be used, client exists as long as the entire server
		Endpoints:            []string{cfg.Endpoint},
		DialTimeout:          cfg.ConnectTimeout,
		DialKeepAliveTimeout: cfg.KeepAliveTimeout,
		DialKeepAliveTime:    cfg.KeepAliveInterval,
		Username:             cfg.Username, // optional
		Password:             cfg.Password, // optional
		Logger:               etcdLogger,
		PermitWithoutStream:  true, // always send keep-alive pings
		DialOptions: []grpc.DialOption{
			grpc.WithChainUnaryInterceptor(otelgrpc.UnaryClientInterceptor(otelgrpc.WithMeterProvider(clientCfg.meterProvider))),
			grpc.WithChainStreamInterceptor(otelgrpc.StreamClientInterceptor(otelgrpc.WithMeterProvider(clientCfg.meterProvider))),
			grpc.WithBlock(), // wait for the connection
			grpc.WithReturnConnectionError(),
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff: backoff.Config{
					BaseDelay:  100 * time.Millisecond,
					Multiplier: 1.5,
					Jitter:     0.2,
					MaxDelay:   15 * time.Second,
				},
			}),
		},
	})
	if err != nil {
		return nil, errors.Errorf("cannot create etcd client: cannot connect: %w", err)
	}

	// Prefix client by namespace
	UseNamespace(c, cfg.Namespace)

	// Connection check: get cluster members
	if _, err := c.MemberList(connectCtx); err != nil {
		_ = c.Close()
		return nil, errors.Errorf("cannot create etcd client: cannot get cluster members: %w", err)
	}

	logger.
		With(attribute.String("etcd.endpoints", strings.Join(c.Endpoints(), ";"))).
		WithDuration(time.Since(startTime)).
		Info(ctx, `connected to etcd cluster "<etcd.endpoints>"`)
	return c, nil
}
