package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"codegraph/internal/config"
	"codegraph/internal/crawler"
	"codegraph/internal/extractor"
	"codegraph/internal/graph"
	"codegraph/internal/index"
	"codegraph/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// ErrAborted is returned when the run is cancelled before every file has
// been extracted. Pass 2 never starts after it.
var ErrAborted = errors.New("indexing aborted")

// BackendSequential is reported when a run does not fan out.
const BackendSequential = "sequential"

// Options control how pass 1 is spread over workers.
type Options struct {
	Parallel            bool
	MinFilesForParallel int
	MaxWorkers          int
	Backend             string
	MaxFileSize         int64
	AllowSyntaxErrors   bool

	// WorkerCommand starts one worker process. Empty means the running
	// executable with the "worker" argument.
	WorkerCommand []string
	// WorkerEnv is appended to the environment of worker processes.
	WorkerEnv []string
}

// OptionsFromConfig copies the indexing settings of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Parallel:            cfg.Indexing.Parallel,
		MinFilesForParallel: cfg.Indexing.MinFilesForParallel,
		MaxWorkers:          cfg.Indexing.MaxWorkers,
		Backend:             cfg.Indexing.Backend,
		MaxFileSize:         cfg.Indexing.MaxFileSize,
		AllowSyntaxErrors:   cfg.Indexing.AllowSyntaxErrors,
	}
}

func (o Options) adapterOptions() []extractor.Option {
	return []extractor.Option{
		extractor.WithMaxFileSize(o.MaxFileSize),
		extractor.WithSyntaxErrors(o.AllowSyntaxErrors),
	}
}

// Info describes the executor a large run would use.
type Info struct {
	Backend             string `json:"backend"`
	Workers             int    `json:"workers"`
	Parallel            bool   `json:"parallel"`
	MinFilesForParallel int    `json:"min_files_for_parallel"`
	GOMAXPROCS          int    `json:"gomaxprocs"`
}

// FileError is a pass-1 failure of a single file.
type FileError struct {
	Path     string
	Language string
	Err      error
}

func (e *FileError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// Pass1 is the reduced output of pass 1.
type Pass1 struct {
	Graph   *graph.Graph
	Pending []graph.PendingReference
	Index   *index.ModuleIndex
	Files   int
	Failed  []*FileError
	Backend string
	Workers int
}

// Coordinator runs pass 1 over routed files and reduces the per-worker
// output into one graph, one ordered pending list and one module index.
type Coordinator struct {
	opts    Options
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

func NewCoordinator(opts Options, logger *slog.Logger, metrics *telemetry.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.Backend == "" {
		opts.Backend = config.BackendAuto
	}
	return &Coordinator{opts: opts, logger: logger, metrics: metrics}
}

func (c *Coordinator) Info() Info {
	return Info{
		Backend:             c.backend(),
		Workers:             c.opts.MaxWorkers,
		Parallel:            c.opts.Parallel,
		MinFilesForParallel: c.opts.MinFilesForParallel,
		GOMAXPROCS:          runtime.GOMAXPROCS(0),
	}
}

// backend resolves "auto": goroutines need more than one OS thread to run
// in parallel, otherwise worker processes are used.
func (c *Coordinator) backend() string {
	switch c.opts.Backend {
	case config.BackendGoroutine, config.BackendProcess:
		return c.opts.Backend
	}
	if runtime.GOMAXPROCS(0) > 1 {
		return config.BackendGoroutine
	}
	return config.BackendProcess
}

func (c *Coordinator) plan(n int) (string, int) {
	if !c.opts.Parallel || n == 0 || n < c.opts.MinFilesForParallel || c.opts.MaxWorkers <= 1 {
		return BackendSequential, 1
	}
	return c.backend(), min(c.opts.MaxWorkers, n)
}

// Run extracts every file. Per-file failures are collected in the result;
// the only error is ErrAborted.
func (c *Coordinator) Run(ctx context.Context, files []crawler.Routed) (*Pass1, error) {
	backend, workers := c.plan(len(files))

	ctx, span := telemetry.Tracer().Start(ctx, "codegraph.pass1")
	defer span.End()
	span.SetAttributes(
		attribute.String("backend", backend),
		attribute.Int("workers", workers),
		attribute.Int("files", len(files)),
	)

	c.logger.Info("pass 1 starting",
		slog.String("backend", backend),
		slog.Int("workers", workers),
		slog.Int("files", len(files)))

	var accs []*accumulator
	switch backend {
	case config.BackendGoroutine:
		accs = c.runGoroutines(ctx, files, workers)
	case config.BackendProcess:
		accs = c.runProcesses(ctx, files, workers)
	default:
		accs = c.runSequential(ctx, files)
	}

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "aborted")
		return nil, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	out := reduce(accs, len(files))
	out.Backend = backend
	out.Workers = workers
	span.SetAttributes(attribute.Int("failed", len(out.Failed)))
	return out, nil
}

func (c *Coordinator) runSequential(ctx context.Context, files []crawler.Routed) []*accumulator {
	acc := newAccumulator()
	for pos, rt := range files {
		if ctx.Err() != nil {
			break
		}
		res, err := c.extractUnit(ctx, rt)
		acc.add(pos, rt, res, err)
	}
	return []*accumulator{acc}
}

// runGoroutines starts one goroutine per worker; each owns its accumulator
// and pulls file positions from a shared channel.
func (c *Coordinator) runGoroutines(ctx context.Context, files []crawler.Routed, workers int) []*accumulator {
	jobs := make(chan int)
	accs := make([]*accumulator, workers)

	var g errgroup.Group
	g.SetLimit(workers)
	for w := range accs {
		acc := newAccumulator()
		accs[w] = acc
		g.Go(func() error {
			for pos := range jobs {
				res, err := c.extractUnit(ctx, files[pos])
				acc.add(pos, files[pos], res, err)
			}
			return nil
		})
	}

feed:
	for pos := range files {
		select {
		case jobs <- pos:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	_ = g.Wait()
	return accs
}

// extractUnit runs one adapter on one file inside the unit boundary.
func (c *Coordinator) extractUnit(ctx context.Context, rt crawler.Routed) (*extractor.FileResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "codegraph.extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("path", rt.Path),
		attribute.String("language", rt.Language),
	)

	start := time.Now()
	res, err := extractFile(ctx, rt.Adapter, rt.Path, rt.Language)
	c.metrics.ObserveFile(rt.Language, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, telemetry.Outcome(err))
		c.logger.Warn("failed to extract file",
			slog.String("path", rt.Path),
			slog.String("language", rt.Language),
			slog.Any("error", err))
	}
	return res, err
}

// extractFile always returns a result. A panic escaping the adapter becomes
// ErrAdapterPanic with an empty result.
func extractFile(ctx context.Context, a extractor.Adapter, path, language string) (res *extractor.FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = extractor.NewFileResult(path, language)
			err = fmt.Errorf("%w: %s: %v", extractor.ErrAdapterPanic, path, r)
		}
	}()
	res, err = a.Extract(ctx, path, true)
	if res == nil {
		res = extractor.NewFileResult(path, language)
	}
	return res, err
}

// accumulator is private to one worker until reduce.
type accumulator struct {
	graph   *graph.Graph
	index   *index.ModuleIndex
	pending map[int][]graph.PendingReference
	failed  []*FileError
}

func newAccumulator() *accumulator {
	return &accumulator{
		graph:   graph.NewGraph(),
		index:   index.New(),
		pending: make(map[int][]graph.PendingReference),
	}
}

func (a *accumulator) add(pos int, rt crawler.Routed, res *extractor.FileResult, err error) {
	if err != nil {
		a.failed = append(a.failed, &FileError{Path: rt.Path, Language: rt.Language, Err: err})
	}
	if res == nil {
		return
	}
	a.graph.Merge(res.Graph)
	if res.Index.Module != "" {
		a.index.Contribute(res.Index)
	}
	if len(res.Pending) > 0 {
		a.pending[pos] = res.Pending
	}
}

// reduce merges accumulators on one goroutine. Pending references are laid
// out by input position, so their order does not depend on scheduling.
func reduce(accs []*accumulator, files int) *Pass1 {
	out := &Pass1{
		Graph: graph.NewGraph(),
		Index: index.New(),
		Files: files,
	}
	byPos := make(map[int][]graph.PendingReference)
	for _, acc := range accs {
		out.Graph.Merge(acc.graph)
		out.Index.Merge(acc.index)
		for pos, refs := range acc.pending {
			byPos[pos] = refs
		}
		out.Failed = append(out.Failed, acc.failed...)
	}
	for pos := 0; pos < files; pos++ {
		out.Pending = append(out.Pending, byPos[pos]...)
	}
	sort.Slice(out.Failed, func(i, j int) bool { return out.Failed[i].Path < out.Failed[j].Path })
	return out
}
