// Package config defines the configuration of the price-tracker node.
package config

import (
	"context"
	"strings"
	"time"

	"github.com/keboola/price-tracker/internal/pkg/env"
	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/configmap"
	"github.com/keboola/price-tracker/internal/pkg/service/common/coordination/etcdcoord"
	"github.com/keboola/price-tracker/internal/pkg/service/common/etcdclient"
	"github.com/keboola/price-tracker/internal/pkg/service/common/servicectx"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/election"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/health"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/ingest"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/retention"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/scraper"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/storage"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
	"github.com/keboola/price-tracker/internal/pkg/validator"
)

const (
	EnvPrefix = "TRACKER_"

	CoordinationEtcd     = "etcd"
	CoordinationInMemory = "inmemory"

	DefaultMetricsListen = "0.0.0.0:9000"
)

type Config struct {
	NodeID                string        `mapstructure:"node-id" usage:"Unique node ID, defaults to the process unique ID."`
	Debug                 bool          `mapstructure:"debug" usage:"Enable debug log level."`
	LogFormat             string        `mapstructure:"log-format" usage:"Log format: \"json\" or \"console\"." validate:"oneof=json console"`
	Coordination          string        `mapstructure:"coordination" usage:"Coordination backend: \"etcd\" or \"inmemory\"." validate:"oneof=etcd inmemory"`
	ElectionPath          string        `mapstructure:"election-path" usage:"Parent path of the election membership nodes." validate:"required,startswith=/"`
	SessionTTLSeconds     int           `mapstructure:"session-ttl-seconds" usage:"Coordination session TTL in seconds." validate:"min=2"`
	ScrapeIntervalSeconds int           `mapstructure:"scrape-interval-seconds" usage:"Delay between the end of a scrape and the start of the next one." validate:"min=1"`
	MaxFetchRetries       int           `mapstructure:"max-fetch-retries" usage:"Maximum number of fetch attempts in one run." validate:"min=1"`
	RetryBackoffMs        int           `mapstructure:"retry-backoff-ms" usage:"Delay between fetch attempts in milliseconds." validate:"min=0"`
	FetchTimeout          time.Duration `mapstructure:"fetch-timeout" usage:"Timeout of one fetch attempt." validate:"required"`
	StaleThresholdMinutes int           `mapstructure:"stale-threshold-minutes" usage:"Maximum age of the last successful scrape of a healthy node." validate:"min=1"`
	RetentionHours        int           `mapstructure:"retention-hours" usage:"Price records older than the retention are deleted." validate:"min=1"`
	CleanupIntervalHours  int           `mapstructure:"cleanup-interval-hours" usage:"Interval of the retention cleanup." validate:"min=1"`
	StorageDSN            string        `mapstructure:"storage-dsn" usage:"SQLite database DSN." validate:"required"`
	CoinGeckoURL          string        `mapstructure:"coingecko-url" usage:"Base URL of the CoinGecko API." validate:"required,url"`
	MetricsListen         string        `mapstructure:"metrics-listen" usage:"Listen address of the metrics and health-check HTTP server." validate:"required,hostname_port"`
	ShutdownTimeout       time.Duration `mapstructure:"shutdown-timeout" usage:"Maximum duration of the graceful shutdown." validate:"required"`

	Etcd etcdclient.Config `mapstructure:",squash"`
}

func New() Config {
	return Config{
		LogFormat:             string(log.LogFormatJSON),
		Coordination:          CoordinationEtcd,
		ElectionPath:          election.DefaultPath,
		SessionTTLSeconds:     etcdcoord.DefaultSessionTTLSeconds,
		ScrapeIntervalSeconds: int(scraper.DefaultInterval / time.Second),
		MaxFetchRetries:       scraper.DefaultMaxFetchRetries,
		RetryBackoffMs:        int(scraper.DefaultRetryBackoff / time.Millisecond),
		FetchTimeout:          scraper.DefaultFetchTimeout,
		StaleThresholdMinutes: int(health.DefaultStaleThreshold / time.Minute),
		RetentionHours:        int(retention.DefaultWindow / time.Hour),
		CleanupIntervalHours:  int(retention.DefaultInterval / time.Hour),
		StorageDSN:            storage.DefaultDSN,
		CoinGeckoURL:          ingest.DefaultBaseURL,
		MetricsListen:         DefaultMetricsListen,
		ShutdownTimeout:       servicectx.DefaultShutdownTimeout,
		Etcd:                  etcdclient.NewConfig(),
	}
}

// Load loads the configuration from flags, ENVs, ".env" files and the config file, then it is normalized and validated.
func Load(ctx context.Context, args []string, osEnvs *env.Map, logger log.Logger) (Config, error) {
	envs := env.LoadDotEnv(ctx, logger, osEnvs, []string{"."})

	cfg := New()
	if err := configmap.Bind(configmap.BindConfig{Args: args, Envs: envs, EnvPrefix: EnvPrefix}, &cfg); err != nil {
		return Config{}, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	c.NodeID = strings.TrimSpace(c.NodeID)
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Coordination = strings.ToLower(strings.TrimSpace(c.Coordination))
	c.ElectionPath = "/" + strings.Trim(c.ElectionPath, " /")
	c.CoinGeckoURL = strings.TrimRight(strings.TrimSpace(c.CoinGeckoURL), "/")
	c.Etcd.Normalize()
}

func (c *Config) Validate() error {
	errs := errors.NewMultiError()
	if err := validator.New().Validate(context.Background(), c); err != nil {
		errs.Append(err)
	}
	if c.Coordination == CoordinationEtcd {
		if err := c.Etcd.Validate(); err != nil {
			errs.Append(err)
		}
	}
	if c.ElectionPath == "/" {
		errs.Append(errors.New("election path must not be the root"))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return errors.PrefixError(err, "invalid configuration")
	}
	return nil
}

func (c Config) ScraperConfig() scraper.Config {
	cfg := scraper.NewConfig()
	cfg.Interval = time.Duration(c.ScrapeIntervalSeconds) * time.Second
	cfg.MaxFetchRetries = c.MaxFetchRetries
	cfg.RetryBackoff = time.Duration(c.RetryBackoffMs) * time.Millisecond
	cfg.FetchTimeout = c.FetchTimeout
	return cfg
}

func (c Config) HealthConfig() health.Config {
	threshold := time.Duration(c.StaleThresholdMinutes) * time.Minute
	return health.Config{StaleThreshold: threshold, CheckInterval: threshold}
}

func (c Config) RetentionPolicy() retention.Policy {
	policy := retention.NewPolicy()
	policy.Window = time.Duration(c.RetentionHours) * time.Hour
	policy.Interval = time.Duration(c.CleanupIntervalHours) * time.Hour
	return policy
}

func (c Config) StorageConfig() storage.Config {
	cfg := storage.NewConfig()
	cfg.DSN = c.StorageDSN
	return cfg
}

func (c Config) IngestConfig() ingest.Config {
	cfg := ingest.NewConfig()
	cfg.BaseURL = c.CoinGeckoURL
	cfg.Timeout = c.FetchTimeout
	return cfg
}
