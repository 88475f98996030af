package main

// replays a crashing input and shrinks it while the crash signature holds

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"feltfuzz/config"
	"feltfuzz/internal/bytestream"
	"feltfuzz/internal/encoding"
	"feltfuzz/internal/gen"
	"feltfuzz/internal/minimize"
	"feltfuzz/internal/oracle"
	"feltfuzz/pkg/logger"
	"feltfuzz/pkg/telemetry"
	"feltfuzz/pkg/vmclient"
)

type minApp struct {
	cfg        *config.AppConfig
	logger     *zap.Logger
	runner     vmclient.Runner
	shutdowner fx.Shutdowner
}

type minParams struct {
	fx.In

	Logger     *zap.Logger
	AppConfig  *config.AppConfig
	Runner     vmclient.Runner
	Shutdowner fx.Shutdowner
}

func newMinApp(p minParams) *minApp {
	return &minApp{
		cfg:        p.AppConfig,
		logger:     p.Logger,
		runner:     p.Runner,
		shutdowner: p.Shutdowner,
	}
}

func newRunner(appConfig *config.AppConfig, log *zap.Logger) vmclient.Runner {
	if appConfig.Campaign.VMBinary != "" {
		return vmclient.NewSubprocess(appConfig.Campaign.VMBinary, log)
	}
	return &vmclient.Mock{}
}

func (m *minApp) minimizeInput(inputPath, outputPath string, attempts int) error {
	defer m.shutdowner.Shutdown()

	input, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	orc := oracle.New(m.runner, m.cfg.Campaign.Timeout, m.logger)
	pipeline := func(ctx context.Context, raw []byte) (oracle.Outcome, error) {
		prog := gen.Generate(bytestream.New(raw), gen.Options{
			MaxInstructions: m.cfg.Campaign.MaxProgramLen,
		})
		artifact, err := encoding.Encode(prog)
		if err != nil {
			return oracle.Outcome{}, err
		}
		return orc.Run(ctx, artifact)
	}

	if attempts <= 0 {
		attempts = m.cfg.Campaign.MinimizeAttempts
	}
	small, err := minimize.New(pipeline, attempts, m.logger).Minimize(context.Background(), input)
	if err != nil {
		return err
	}

	if outputPath == "" {
		outputPath = inputPath + ".min"
	}
	if err := os.WriteFile(outputPath, small, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	m.logger.Info("Minimized crash input",
		zap.String("output", outputPath),
		zap.Int("from", len(input)),
		zap.Int("to", len(small)),
	)
	return nil
}

func main() {
	inputPath := flag.String("input", "", "crashing input file to minimize")
	outputPath := flag.String("output", "", "where to write the result (default <input>.min)")
	attempts := flag.Int("attempts", 0, "replay budget, 0 uses the campaign setting")
	flag.Parse()

	if *inputPath == "" {
		fmt.Println("Usage: feltmin -input <file> [-output <file>] [-attempts <n>]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			telemetry.NewTelemetry,
			logger.NewLogger,
			newRunner,
			newMinApp,
		),
		fx.Invoke(func(m *minApp) error {
			return m.minimizeInput(*inputPath, *outputPath, *attempts)
		}),
	)
	app.Run()
}
