// Package worker runs the fuzzing loop. Each iteration stands alone: pick
// a seed, mutate it, grow a program from the bytes, encode it and hand the
// artifact to the oracle, then commit the classified result to the corpus
// or the crash store. Workers never talk to each other directly; the
// shared corpus directory is the only channel, watched for seeds that
// peers rename in.
package worker

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"feltfuzz/config"
	"feltfuzz/internal/bytestream"
	"feltfuzz/internal/corpus"
	"feltfuzz/internal/crash"
	"feltfuzz/internal/dict"
	"feltfuzz/internal/encoding"
	"feltfuzz/internal/gen"
	"feltfuzz/internal/minimize"
	"feltfuzz/internal/mutate"
	"feltfuzz/internal/oracle"
	"feltfuzz/internal/utils"
	"feltfuzz/pkg/database"
	"feltfuzz/pkg/telemetry"
	"feltfuzz/pkg/vmclient"
	"feltfuzz/pkg/watchdog"
)

const ctrlLen = 64

type stats struct {
	iterations int64
	retained   int64
	discarded  int64
	expected   int64
}

type Worker struct {
	cfg        *config.AppConfig
	logger     *zap.Logger
	db         *gorm.DB
	shutdowner fx.Shutdowner
	tracers    *telemetry.TracerFactory

	corpus    *corpus.Store
	crashes   *crash.Store
	oracle    *oracle.Oracle
	mutator   *mutate.Mutator
	minimizer *minimize.Minimizer
	rng       *rand.Rand

	stats stats
	done  chan struct{}
}

type WorkerParams struct {
	fx.In

	Lc            fx.Lifecycle
	Shutdowner    fx.Shutdowner
	Logger        *zap.Logger
	AppConfig     *config.AppConfig
	Runner        vmclient.Runner
	DB            *gorm.DB
	TracerFactory *telemetry.TracerFactory
	Watchdogs     *watchdog.WatchDogFactory
}

func NewWorker(params WorkerParams) *Worker {
	logger := params.Logger.Named("worker")
	campaign := params.AppConfig.Campaign

	corpusDir := filepath.Join(campaign.Workspace, "corpus")
	corpusStore, err := corpus.NewStore(corpusDir, logger)
	if err != nil {
		logger.Fatal("Failed to open corpus store", zap.Error(err))
		return nil
	}
	crashStore, err := crash.NewStore(filepath.Join(campaign.Workspace, "crashes"),
		params.DB, params.AppConfig.CampaignID, params.AppConfig.WorkerID, logger)
	if err != nil {
		logger.Fatal("Failed to open crash store", zap.Error(err))
		return nil
	}

	var fragments []dict.Fragment
	if campaign.DictPath != "" {
		fragments, err = dict.Load(campaign.DictPath)
		if err != nil {
			logger.Warn("Failed to load dictionary, continuing without", zap.Error(err))
		} else {
			logger.Info("Dictionary loaded", zap.Int("fragments", len(fragments)))
		}
	}

	seed := campaign.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	w := &Worker{
		cfg:        params.AppConfig,
		logger:     logger,
		db:         params.DB,
		shutdowner: params.Shutdowner,
		tracers:    params.TracerFactory,
		corpus:     corpusStore,
		crashes:    crashStore,
		oracle:     oracle.New(params.Runner, campaign.Timeout, logger),
		mutator:    mutate.New(campaign.MaxInputSize, fragments),
		rng:        rand.New(rand.NewSource(seed)),
		done:       make(chan struct{}),
	}
	w.minimizer = minimize.New(w.execute, campaign.MinimizeAttempts, logger)

	workerCtx, cancel := context.WithCancel(context.Background())

	mergeChan := make(chan string, 1024)
	wd := params.Watchdogs.New(workerCtx, mergeChan, func(path string) bool {
		return !utils.IsTempPath(path) && !strings.HasSuffix(path, ".cov")
	})
	wd.AddDir(corpusDir)
	go w.mergePeerSeeds(mergeChan)

	params.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting worker",
				zap.String("workerId", params.AppConfig.WorkerID),
				zap.Int64("seed", seed),
			)
			go w.run(workerCtx, fragments)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			<-w.done
			return nil
		},
	})
	return w
}

func (w *Worker) requestShutdown() {
	if err := w.shutdowner.Shutdown(); err != nil {
		w.logger.Error("Failed to request shutdown", zap.Error(err))
	}
}

func (w *Worker) mergePeerSeeds(mergeChan <-chan string) {
	for path := range mergeChan {
		added, err := w.corpus.MergeFile(path)
		if err != nil {
			w.logger.Debug("Failed to merge corpus file", zap.String("file", path), zap.Error(err))
			continue
		}
		if added {
			w.logger.Debug("Merged corpus entry", zap.String("file", path))
		}
	}
}

func (w *Worker) run(ctx context.Context, fragments []dict.Fragment) {
	defer close(w.done)
	started := time.Now()
	defer func() {
		w.crashes.Flush(context.Background())
		w.reportStats(context.Background(), started)
		w.logger.Info("Worker stopped", zap.Int64("iterations", w.stats.iterations))
	}()

	w.seedCorpus(ctx, fragments)

	statsTicker := time.NewTicker(w.cfg.Campaign.StatsInterval)
	defer statsTicker.Stop()

	var durationBudget <-chan time.Time
	if w.cfg.Campaign.MaxDuration > 0 {
		timer := time.NewTimer(w.cfg.Campaign.MaxDuration)
		defer timer.Stop()
		durationBudget = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-durationBudget:
			w.logger.Info("Campaign duration reached", zap.Duration("maxDuration", w.cfg.Campaign.MaxDuration))
			w.requestShutdown()
			return
		case <-statsTicker.C:
			w.crashes.Flush(ctx)
			w.reportStats(ctx, started)
		default:
			w.iterate(ctx)
			if max := w.cfg.Campaign.MaxIterations; max > 0 && w.stats.iterations >= int64(max) {
				w.logger.Info("Iteration budget reached", zap.Int64("iterations", w.stats.iterations))
				w.requestShutdown()
				return
			}
		}
	}
}

// seedCorpus primes an empty campaign: the empty input exercises the
// zero-instruction path, every dictionary fragment runs once as-is, and
// user-supplied seed inputs replay through the full pipeline.
func (w *Worker) seedCorpus(ctx context.Context, fragments []dict.Fragment) {
	inputs := [][]byte{{}}
	for _, frag := range fragments {
		inputs = append(inputs, frag.Data)
	}
	for _, input := range inputs {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, input)
	}
	if dir := w.cfg.Campaign.SeedsDir; dir != "" {
		w.importSeeds(ctx, dir)
	}
}

func (w *Worker) importSeeds(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("Failed to read seeds directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	imported := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			w.logger.Warn("Failed to read seed input", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if max := w.cfg.Campaign.MaxInputSize; max > 0 && len(data) > max {
			data = data[:max]
		}
		w.process(ctx, data)
		imported++
	}
	if imported > 0 {
		w.logger.Info("Seed inputs imported", zap.String("dir", dir), zap.Int("count", imported))
	}
}

func (w *Worker) iterate(ctx context.Context) {
	w.stats.iterations++
	w.process(ctx, w.nextInput())
}

// nextInput draws control bytes from the worker's rng, so a campaign seed
// reproduces the exact input sequence. While the corpus is empty inputs
// are raw random bytes; afterwards they are mutations of retained seeds.
func (w *Worker) nextInput() []byte {
	ctrl := make([]byte, ctrlLen)
	w.rng.Read(ctrl)
	stream := bytestream.New(ctrl)

	seed := w.corpus.PickSeed(stream)
	if seed == nil {
		fresh := make([]byte, 1+w.rng.Intn(ctrlLen))
		w.rng.Read(fresh)
		return fresh
	}
	donor := w.corpus.PickSeed(stream)
	return w.mutator.Mutate(seed, donor, stream)
}

func (w *Worker) process(ctx context.Context, input []byte) {
	out, err := w.execute(ctx, input)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("Iteration failed", zap.Error(err))
		}
		return
	}
	w.classify(ctx, input, out)
}

// execute runs one raw input end to end: bytes to program to artifact to
// oracle verdict. The minimizer replays candidates through this same path.
func (w *Worker) execute(ctx context.Context, input []byte) (oracle.Outcome, error) {
	prog := gen.Generate(bytestream.New(input), gen.Options{
		MaxInstructions: w.cfg.Campaign.MaxProgramLen,
	})
	artifact, err := encoding.Encode(prog)
	if err != nil {
		// the generator emitted something the encoder rejects; that is a
		// harness defect, not a finding
		w.logger.Fatal("Encoder rejected generated program", zap.Error(err))
		return oracle.Outcome{}, err
	}
	return w.oracle.Run(ctx, artifact)
}

func (w *Worker) classify(ctx context.Context, input []byte, out oracle.Outcome) {
	switch out.Kind {
	case oracle.Completed:
		w.commit(input, out)
	case oracle.ExpectedError:
		w.stats.expected++
		w.commit(input, out)
	case oracle.Crash:
		w.recordCrash(ctx, input, out)
	}
}

func (w *Worker) commit(input []byte, out oracle.Outcome) {
	if len(out.Coverage) == 0 {
		w.stats.discarded++
		return
	}
	retained, err := w.corpus.Add(input, out.Coverage)
	if err != nil {
		w.logger.Warn("Failed to commit corpus entry", zap.Error(err))
		return
	}
	if retained {
		w.stats.retained++
	} else {
		w.stats.discarded++
	}
}

func (w *Worker) recordCrash(ctx context.Context, input []byte, out oracle.Outcome) {
	fresh, err := w.crashes.Record(ctx, input, out)
	if err != nil {
		w.logger.Warn("Failed to record crash", zap.Error(err))
		return
	}
	if !fresh {
		return
	}

	tracer := w.tracers.NewTracer(ctx, "crash_report")
	tracer.WithAttributes(&telemetry.SpanAttributes{
		CampaignID: w.cfg.CampaignID,
		WorkerID:   w.cfg.WorkerID,
		Action:     "record_crash",
	}).Start()
	defer tracer.End()
	tracer.AddEvent("recorded", telemetry.EventAttributes{
		"signature": out.Signature.Hash(),
		"kind":      out.Signature.Kind,
	})

	w.logger.Warn("New crash recorded",
		zap.String("kind", out.Signature.Kind),
		zap.String("frame", out.Signature.Frame),
		zap.String("signature", out.Signature.Hash()),
		zap.Int("inputSize", len(input)),
	)

	if w.cfg.Campaign.AutoMinimize {
		w.minimizeCrash(ctx, input, out)
	}
}

func (w *Worker) minimizeCrash(ctx context.Context, input []byte, out oracle.Outcome) {
	small, err := w.minimizer.Minimize(ctx, input)
	if err != nil {
		w.logger.Warn("Minimization failed", zap.Error(err))
		return
	}
	if len(small) >= len(input) {
		return
	}
	if err := w.crashes.SaveMinimized(out.Signature.Hash(), small); err != nil {
		w.logger.Warn("Failed to save minimized input", zap.Error(err))
		return
	}
	w.logger.Info("Crash input minimized",
		zap.String("signature", out.Signature.Hash()),
		zap.Int("from", len(input)),
		zap.Int("to", len(small)),
	)
}

func (w *Worker) reportStats(ctx context.Context, started time.Time) {
	findings, duplicates := w.crashes.Counts()
	elapsed := time.Since(started).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(w.stats.iterations) / elapsed
	}

	w.logger.Info("Campaign stats",
		zap.Int64("iterations", w.stats.iterations),
		zap.Float64("execsPerSec", rate),
		zap.Int64("retained", w.stats.retained),
		zap.Int64("discarded", w.stats.discarded),
		zap.Int64("expectedErrors", w.stats.expected),
		zap.Int("corpus", w.corpus.Count()),
		zap.Int("frontier", w.corpus.FrontierSize()),
		zap.Int("findings", findings),
		zap.Int("duplicates", duplicates),
	)

	stat := &database.CampaignStat{
		CampaignID:   w.cfg.CampaignID,
		WorkerID:     w.cfg.WorkerID,
		Iterations:   w.stats.iterations,
		ExecsPerSec:  rate,
		CorpusCount:  w.corpus.Count(),
		FrontierSize: w.corpus.FrontierSize(),
		Crashes:      findings,
		Duplicates:   duplicates,
	}
	if err := database.AddCampaignStat(ctx, w.db, stat); err != nil {
		w.logger.Warn("Failed to store campaign stats", zap.Error(err))
	}
}
