package main

import (
	"feltfuzz/config"
	"feltfuzz/internal/worker"
	"feltfuzz/pkg/database"
	"feltfuzz/pkg/logger"
	"feltfuzz/pkg/telemetry"
	"feltfuzz/pkg/vmclient"
	"feltfuzz/pkg/watchdog"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// newRunner picks the execution boundary: one subprocess per artifact when
// a VM binary is configured, the built-in reference VM otherwise.
func newRunner(appConfig *config.AppConfig, log *zap.Logger) vmclient.Runner {
	if appConfig.Campaign.VMBinary != "" {
		return vmclient.NewSubprocess(appConfig.Campaign.VMBinary, log)
	}
	log.Info("No VM binary configured, using the built-in reference VM")
	return &vmclient.Mock{}
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,           // inject config
			database.NewDBConnection,    // inject db connection
			logger.NewLogger,            // inject logger
			telemetry.NewTelemetry,      // inject telemetry
			telemetry.NewTracerFactory,  // inject telemetry tracer factory
			watchdog.NewWatchDogFactory, // inject watchdog factory
			newRunner,                   // inject vm runner
		),
		fx.Invoke(
			worker.NewWorker,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
	app.Run()
}
