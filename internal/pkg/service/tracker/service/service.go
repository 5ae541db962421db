// Package service connects the price-tracker components into one node.
//
// Only the elected leader runs the scraper. The health monitor, the retention sweeper
// and the HTTP server run on every node.
package service

import (
	"context"
	"net/http"

	"github.com/dimfeld/httptreemux/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination"
	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination/etcdcoord"
	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination/inmemory"
	"github.com/keboola/price-tracker/internal/pkg/service/common/etcdclient"
	"github.com/keboola/price-tracker/internal/pkg/service/common/httpserver"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/config"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/dependencies"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/election"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/health"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/ingest"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/retention"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/scraper"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/storage"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const HealthCheckPath = "/health-check"

type Service struct {
	identity  string
	store     *storage.Store
	scheduler *scraper.Scheduler
	monitor   *health.Monitor
	sweeper   *retention.Sweeper
	elector   *election.Elector
	server    *httpserver.HTTPServer
}

type Option func(c *options)

type options struct {
	connector      coordination.Connector
	metricsHandler http.Handler
	alertHandler   health.AlertHandler
}

// WithConnector overrides the coordination connector selected by the configuration.
func WithConnector(v coordination.Connector) Option {
	return func(c *options) {
		c.connector = v
	}
}

// WithMetricsHandler mounts the handler to the telemetry.MetricsPath.
func WithMetricsHandler(v http.Handler) Option {
	return func(c *options) {
		c.metricsHandler = v
	}
}

func WithAlertHandler(v health.AlertHandler) Option {
	return func(c *options) {
		c.alertHandler = v
	}
}

// leadershipListener starts the scraper on the leader node only.
// The scheduler is set after the store is opened, events before it are ignored.
type leadershipListener struct {
	scheduler atomic.Pointer[scraper.Scheduler]
}

func (l *leadershipListener) OnBecomeLeader() {
	if s := l.scheduler.Load(); s != nil {
		s.Start()
	}
}

func (l *leadershipListener) OnLoseLeadership() {
	if s := l.scheduler.Load(); s != nil {
		s.Stop()
	}
}

// Start starts all components of the node, they are stopped on the process shutdown.
// If an error is returned, the caller should shut down the process to release already started components.
func Start(ctx context.Context, d dependencies.ServiceScope, cfg config.Config, opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := d.Logger()
	proc := d.Process()
	s := &Service{identity: cfg.NodeID}
	if s.identity == "" {
		s.identity = proc.UniqueID()
	}

	if o.connector == nil {
		switch cfg.Coordination {
		case config.CoordinationInMemory:
			o.connector = inmemory.NewConnector(inmemory.NewServer())
		default:
			o.connector = etcdcoord.NewConnector(cfg.Etcd, logger, cfg.SessionTTLSeconds, etcdclient.WithMeterProvider(d.MeterProvider()))
		}
	}

	// Open the database and connect to the coordination service in parallel
	listener := &leadershipListener{}
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		store, err := storage.Open(grpCtx, cfg.StorageConfig(), d.Clock(), logger)
		if err != nil {
			return err
		}
		s.store = store
		return nil
	})
	grp.Go(func() error {
		elector, err := election.Connect(
			grpCtx,
			o.connector,
			s.identity,
			listener,
			logger,
			election.WithPath(cfg.ElectionPath),
			election.WithMeterProvider(d.MeterProvider()),
		)
		if err != nil {
			return err
		}
		s.elector = elector
		return nil
	})
	err := grp.Wait()

	// Close the store, it is the last resource on shutdown
	if s.store != nil {
		proc.OnShutdown(func(ctx context.Context) {
			if err := s.store.Close(); err != nil {
				logger.Errorf(ctx, "cannot close database: %s", err)
			}
		})
	}
	if err != nil {
		if s.elector != nil {
			_ = s.elector.Close(ctx)
		}
		return nil, err
	}

	// Create the scheduler, it is started by the leadership listener
	job := ingest.NewCoinGecko(cfg.IngestConfig(), d.Clock(), s.store, logger)
	s.scheduler = scraper.New(
		cfg.ScraperConfig(),
		job,
		s.store,
		logger,
		scraper.WithClock(d.Clock()),
		scraper.WithMeterProvider(d.MeterProvider()),
	)
	listener.scheduler.Store(s.scheduler)

	// Start the health monitor
	var monitorOpts []health.Option
	if o.alertHandler != nil {
		monitorOpts = append(monitorOpts, health.WithAlertHandler(o.alertHandler))
	}
	s.monitor = health.New(d, cfg.HealthConfig(), s.scheduler, monitorOpts...)
	s.monitor.Start()
	proc.OnShutdown(func(ctx context.Context) {
		s.monitor.Stop()
	})

	// Wait for the in-flight run, after the leadership is released
	proc.OnShutdown(func(ctx context.Context) {
		if err := s.scheduler.Shutdown(ctx); err != nil {
			logger.Warnf(ctx, "scraper shutdown: %s", err)
		}
	})

	// Start the retention sweeper, it registers its own shutdown callback
	s.sweeper, err = retention.Start(d, cfg.RetentionPolicy(), s.store)
	if err != nil {
		_ = s.elector.Close(ctx)
		return nil, err
	}

	// Give up the leadership first on shutdown
	proc.OnShutdown(func(ctx context.Context) {
		if err := s.elector.Close(ctx); err != nil {
			logger.Warnf(ctx, "cannot close elector: %s", err)
		}
	})

	// Join the election
	if err := s.elector.Join(ctx); err != nil {
		return nil, errors.PrefixError(err, "cannot join the election")
	}

	// Start the HTTP server
	s.server, err = httpserver.Start(ctx, d, httpserver.Config{
		ListenAddress: cfg.MetricsListen,
		Mount:         s.mount(o.metricsHandler),
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) Identity() string {
	return s.identity
}

func (s *Service) IsLeader() bool {
	return s.elector.IsLeader()
}

func (s *Service) HealthStats() health.Stats {
	return s.monitor.Stats()
}

func (s *Service) ScraperStats() scraper.Stats {
	return s.scheduler.Stats()
}

// Store returns the database of the node.
func (s *Service) Store() *storage.Store {
	return s.store
}

// ListenAddr returns the address of the metrics and health-check HTTP server.
func (s *Service) ListenAddr() string {
	return s.server.ListenAddr()
}

func (s *Service) mount(metricsHandler http.Handler) func(router *httptreemux.ContextMux) {
	return func(router *httptreemux.ContextMux) {
		if metricsHandler != nil {
			router.Handler(http.MethodGet, telemetry.MetricsPath, metricsHandler)
		}
		router.GET(HealthCheckPath, s.healthCheck)
	}
}

// healthCheck responds with the health stats.
// The status code is 503 if the scraper runs on the node and it is not healthy, a follower node is always 200.
func (s *Service) healthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := s.monitor.Stats()
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(stats)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if stats.Running && !stats.Healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
