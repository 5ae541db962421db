// nolint: gocritic
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/keboola/price-tracker/internal/pkg/env"
	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/common/configmap"
	"github.com/keboola/price-tracker/internal/pkg/service/common/servicectx"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/config"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/dependencies"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/service"
	"github.com/keboola/price-tracker/internal/pkg/telemetry"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const ServiceName = "price-tracker"

func main() {
	if err := run(); err != nil {
		fmt.Println(errors.PrefixError(err, "fatal error").Error()) // nolint:forbidigo
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration.
	bootLogger := log.NewServiceLogger(os.Stderr, false, log.LogFormatJSON).WithComponent(ServiceName) // nolint:forbidigo
	cfg, err := config.Load(ctx, os.Args, env.FromOs(), bootLogger)
	var helpErr configmap.HelpError
	if errors.As(err, &helpErr) {
		// Stop on --help flag
		fmt.Print(helpErr.Help) // nolint:forbidigo
		return nil
	} else if err != nil {
		return err
	}

	// Create logger.
	logFormat, err := log.NewLogFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	logger := log.NewServiceLogger(os.Stderr, cfg.Debug, logFormat).WithComponent(ServiceName) // nolint:forbidigo

	// Create process abstraction.
	procOpts := []servicectx.Option{servicectx.WithLogger(logger), servicectx.WithShutdownTimeout(cfg.ShutdownTimeout)}
	if cfg.NodeID != "" {
		procOpts = append(procOpts, servicectx.WithUniqueID(cfg.NodeID))
	}
	proc, err := servicectx.New(procOpts...)
	if err != nil {
		return err
	}

	// Setup telemetry
	provider, err := telemetry.NewPrometheusProvider()
	if err != nil {
		return err
	}

	// Create dependencies.
	scope := dependencies.NewServiceScope(proc, logger, clockwork.NewRealClock(), provider)

	logger.Infof(ctx, "starting price tracker, coordination %s, metrics listen address %s", cfg.Coordination, cfg.MetricsListen)
	if _, err := service.Start(ctx, scope, cfg, service.WithMetricsHandler(provider.Handler())); err != nil {
		// Release already started components
		proc.Shutdown(ctx, err)
		proc.WaitForShutdown()
		return err
	}

	// Wait for the service shutdown.
	proc.WaitForShutdown()
	return nil
}
